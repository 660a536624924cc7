/*
Copyright 2025 Tandem Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mocks

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/tandemhq/tandem/model"
)

// MockDataSource is a testify mock of database.IDataSource.
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) CreateInventoryItem(ctx context.Context, item *model.InventoryItem) (*model.InventoryItem, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InventoryItem), args.Error(1)
}

func (m *MockDataSource) GetInventoryItem(ctx context.Context, inventoryID string) (*model.InventoryItem, error) {
	args := m.Called(ctx, inventoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InventoryItem), args.Error(1)
}

func (m *MockDataSource) AdjustInventoryQuantity(ctx context.Context, inventoryID string, delta int64) error {
	args := m.Called(ctx, inventoryID, delta)
	return args.Error(0)
}

func (m *MockDataSource) CreateReservation(ctx context.Context, reservation *model.InventoryReservation, event *model.DomainEvent) (*model.InventoryReservation, error) {
	args := m.Called(ctx, reservation, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InventoryReservation), args.Error(1)
}

func (m *MockDataSource) GetReservationByKey(ctx context.Context, reservationKey string) (*model.InventoryReservation, error) {
	args := m.Called(ctx, reservationKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InventoryReservation), args.Error(1)
}

func (m *MockDataSource) GetReservation(ctx context.Context, reservationID string) (*model.InventoryReservation, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InventoryReservation), args.Error(1)
}

func (m *MockDataSource) TransitionReservation(ctx context.Context, reservationID, fromStatus, toStatus string, event *model.DomainEvent) (bool, error) {
	args := m.Called(ctx, reservationID, fromStatus, toStatus, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetExpiredReservations(ctx context.Context, asOf time.Time) ([]*model.InventoryReservation, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.InventoryReservation), args.Error(1)
}

func (m *MockDataSource) CreateSagaInstance(ctx context.Context, instance *model.SagaInstance, event *model.DomainEvent) (*model.SagaInstance, error) {
	args := m.Called(ctx, instance, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SagaInstance), args.Error(1)
}

func (m *MockDataSource) GetSagaInstance(ctx context.Context, sagaID string) (*model.SagaInstance, error) {
	args := m.Called(ctx, sagaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SagaInstance), args.Error(1)
}

func (m *MockDataSource) TransitionSagaStatus(ctx context.Context, sagaID, fromStatus, toStatus string, event *model.DomainEvent) (bool, error) {
	args := m.Called(ctx, sagaID, fromStatus, toStatus, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) SetSagaCurrentStep(ctx context.Context, sagaID string, step int) error {
	args := m.Called(ctx, sagaID, step)
	return args.Error(0)
}

func (m *MockDataSource) RecordSagaStepResult(ctx context.Context, sagaID string, stepResults map[string]interface{}, event *model.DomainEvent) error {
	args := m.Called(ctx, sagaID, stepResults, event)
	return args.Error(0)
}

func (m *MockDataSource) FinalizeSaga(ctx context.Context, sagaID, fromStatus, toStatus, lastError string, event *model.DomainEvent) (bool, error) {
	args := m.Called(ctx, sagaID, fromStatus, toStatus, lastError, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetSagasByStatus(ctx context.Context, status string, limit int) ([]*model.SagaInstance, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SagaInstance), args.Error(1)
}

func (m *MockDataSource) RecordLedgerEntries(ctx context.Context, entries []*model.LedgerEntry) ([]*model.LedgerEntry, error) {
	args := m.Called(ctx, entries)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) GetLastRunningBalance(ctx context.Context, scope model.AccountScope, currency string) (decimal.Decimal, error) {
	args := m.Called(ctx, scope, currency)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockDataSource) GetEntriesBySubject(ctx context.Context, subjectID string) ([]*model.LedgerEntry, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) GetEntriesByAccount(ctx context.Context, scope model.AccountScope, currency string) ([]*model.LedgerEntry, error) {
	args := m.Called(ctx, scope, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) AppendEvent(ctx context.Context, event *model.DomainEvent) (*model.DomainEvent, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DomainEvent), args.Error(1)
}

func (m *MockDataSource) ReadEventsFrom(ctx context.Context, aggregateID string, fromVersion int64) ([]*model.DomainEvent, error) {
	args := m.Called(ctx, aggregateID, fromVersion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.DomainEvent), args.Error(1)
}

func (m *MockDataSource) GetUndispatchedEvents(ctx context.Context, limit int) ([]*model.DomainEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.DomainEvent), args.Error(1)
}

func (m *MockDataSource) MarkEventDispatched(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}
