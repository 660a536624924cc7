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
package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/tandemhq/tandem/model"
)

// CreateInventoryItem is the request body for registering a stock record.
type CreateInventoryItem struct {
	SKU            string `json:"sku"`
	QuantityOnHand int64  `json:"quantity_on_hand"`
	TrackQuantity  *bool  `json:"track_quantity,omitempty"`
}

func (i *CreateInventoryItem) ValidateCreateInventoryItem() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.SKU, validation.Required),
		validation.Field(&i.QuantityOnHand, validation.Min(0)),
	)
}

func (i *CreateInventoryItem) ToInventoryItem() *model.InventoryItem {
	track := true
	if i.TrackQuantity != nil {
		track = *i.TrackQuantity
	}
	return &model.InventoryItem{
		InventoryID:    model.GenerateUUIDWithSuffix("inv"),
		SKU:            i.SKU,
		QuantityOnHand: i.QuantityOnHand,
		TrackQuantity:  track,
	}
}

// AdjustInventory is the request body for a signed on-hand adjustment.
type AdjustInventory struct {
	Delta int64 `json:"delta"`
}

func (a *AdjustInventory) ValidateAdjustInventory() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Delta, validation.Required),
	)
}

// CreateReservation is the request body for placing a hold on inventory.
// TTLSeconds of zero requests a hold with no expiry; absent falls back to the
// configured default.
type CreateReservation struct {
	InventoryID   string `json:"inventory_id"`
	Quantity      int64  `json:"quantity"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	TTLSeconds    *int64 `json:"ttl_seconds,omitempty"`
}

func (r *CreateReservation) ValidateCreateReservation() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.InventoryID, validation.Required),
		validation.Field(&r.Quantity, validation.Required, validation.Min(1)),
		validation.Field(&r.ReferenceType, validation.Required),
		validation.Field(&r.ReferenceID, validation.Required),
	)
}

// TTL converts the optional request TTL into the engine's representation.
func (r *CreateReservation) TTL() *time.Duration {
	if r.TTLSeconds == nil {
		return nil
	}
	ttl := time.Duration(*r.TTLSeconds) * time.Second
	return &ttl
}

// ReservationAction is the request body for committing or releasing a hold.
type ReservationAction struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func (a *ReservationAction) ValidateReservationAction() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Actor, validation.Required),
	)
}

// LedgerEntryRequest is one entry inside a batch of ledger writes.
type LedgerEntryRequest struct {
	SubjectID   string          `json:"subject_id"`
	EntryType   string          `json:"entry_type"`
	AccountType string          `json:"account_type"`
	AccountID   string          `json:"account_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	CreatedBy   string          `json:"created_by,omitempty"`
}

// CreateLedgerEntries is the request body for appending a batch of entries.
type CreateLedgerEntries struct {
	Entries []LedgerEntryRequest `json:"entries"`
}

func (l *CreateLedgerEntries) ValidateCreateLedgerEntries() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.Entries, validation.Required, validation.Length(1, 0)),
	)
}

func (l *CreateLedgerEntries) ToInputs() []*model.LedgerEntryInput {
	inputs := make([]*model.LedgerEntryInput, 0, len(l.Entries))
	for _, entry := range l.Entries {
		inputs = append(inputs, &model.LedgerEntryInput{
			SubjectID:   entry.SubjectID,
			EntryType:   entry.EntryType,
			AccountType: entry.AccountType,
			AccountID:   entry.AccountID,
			Amount:      entry.Amount,
			Currency:    entry.Currency,
			Description: entry.Description,
			Reference:   entry.Reference,
			CreatedBy:   entry.CreatedBy,
		})
	}
	return inputs
}

// StartSaga is the request body for kicking off a saga.
type StartSaga struct {
	SagaType      string                 `json:"saga_type"`
	TenantID      string                 `json:"tenant_id"`
	ActorID       string                 `json:"actor_id"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
}

func (s *StartSaga) ValidateStartSaga() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.SagaType, validation.Required),
		validation.Field(&s.Payload, validation.Required),
	)
}
