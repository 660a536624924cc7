package database

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tandemhq/tandem/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	inventory   // Interface for inventory record operations
	reservation // Interface for reservation-related operations
	saga        // Interface for saga instance operations
	ledger      // Interface for ledger entry operations
	events      // Interface for the domain event outbox
}

// inventory defines methods for the stock records reservations hold against.
type inventory interface {
	CreateInventoryItem(ctx context.Context, item *model.InventoryItem) (*model.InventoryItem, error)
	GetInventoryItem(ctx context.Context, inventoryID string) (*model.InventoryItem, error)
	AdjustInventoryQuantity(ctx context.Context, inventoryID string, delta int64) error
}

// reservation defines methods for handling inventory holds.
type reservation interface {
	CreateReservation(ctx context.Context, reservation *model.InventoryReservation, event *model.DomainEvent) (*model.InventoryReservation, error) // Creates a hold and bumps reserved stock atomically
	GetReservationByKey(ctx context.Context, reservationKey string) (*model.InventoryReservation, error)                                          // Latest reservation for an idempotency key
	GetReservation(ctx context.Context, reservationID string) (*model.InventoryReservation, error)                                                // Retrieves a reservation by ID
	TransitionReservation(ctx context.Context, reservationID, fromStatus, toStatus string, event *model.DomainEvent) (bool, error)                // Single conditional status flip plus inventory bookkeeping
	GetExpiredReservations(ctx context.Context, asOf time.Time) ([]*model.InventoryReservation, error)                                            // ACTIVE holds past their expiry
}

// saga defines methods for persisting saga instances.
type saga interface {
	CreateSagaInstance(ctx context.Context, instance *model.SagaInstance, event *model.DomainEvent) (*model.SagaInstance, error)
	GetSagaInstance(ctx context.Context, sagaID string) (*model.SagaInstance, error)
	TransitionSagaStatus(ctx context.Context, sagaID, fromStatus, toStatus string, event *model.DomainEvent) (bool, error)
	SetSagaCurrentStep(ctx context.Context, sagaID string, step int) error
	RecordSagaStepResult(ctx context.Context, sagaID string, stepResults map[string]interface{}, event *model.DomainEvent) error
	FinalizeSaga(ctx context.Context, sagaID, fromStatus, toStatus, lastError string, event *model.DomainEvent) (bool, error)
	GetSagasByStatus(ctx context.Context, status string, limit int) ([]*model.SagaInstance, error)
}

// ledger defines methods for the append-only ledger entries.
type ledger interface {
	RecordLedgerEntries(ctx context.Context, entries []*model.LedgerEntry) ([]*model.LedgerEntry, error)           // Appends a batch in one transaction
	GetLastRunningBalance(ctx context.Context, scope model.AccountScope, currency string) (decimal.Decimal, error) // Last stored balance for an account scope, zero when none
	GetEntriesBySubject(ctx context.Context, subjectID string) ([]*model.LedgerEntry, error)                       // All entries for a subject in creation order
	GetEntriesByAccount(ctx context.Context, scope model.AccountScope, currency string) ([]*model.LedgerEntry, error)
}

// events defines methods for the append-only domain event outbox.
type events interface {
	AppendEvent(ctx context.Context, event *model.DomainEvent) (*model.DomainEvent, error)
	ReadEventsFrom(ctx context.Context, aggregateID string, fromVersion int64) ([]*model.DomainEvent, error)
	GetUndispatchedEvents(ctx context.Context, limit int) ([]*model.DomainEvent, error)
	MarkEventDispatched(ctx context.Context, eventID string) error
}
