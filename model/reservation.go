package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	ReservationStatusActive    = "ACTIVE"
	ReservationStatusCommitted = "COMMITTED"
	ReservationStatusReleased  = "RELEASED"
	ReservationStatusExpired   = "EXPIRED"
)

const (
	ReferenceTypeCart   = "CART"
	ReferenceTypeOrder  = "ORDER"
	ReferenceTypeQuote  = "QUOTE"
	ReferenceTypeSystem = "SYSTEM"
)

// InventoryReservation is a time-boxed or indefinite hold on inventory quantity.
// Status moves one way: ACTIVE -> COMMITTED | RELEASED | EXPIRED. Terminal rows
// are kept forever for audit.
type InventoryReservation struct {
	ID                  int64                  `json:"-"`
	ReservationID       string                 `json:"reservation_id"`
	ReservationKey      string                 `json:"reservation_key"`
	InventoryID         string                 `json:"inventory_id"`
	Quantity            int64                  `json:"quantity"`
	Status              string                 `json:"status"`
	ReferenceType       string                 `json:"reference_type"`
	ReferenceID         string                 `json:"reference_id"`
	ParentReservationID string                 `json:"parent_reservation_id,omitempty"`
	CreatedBy           string                 `json:"created_by"`
	ExpiresAt           *time.Time             `json:"expires_at,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
	MetaData            map[string]interface{} `json:"meta_data,omitempty"`
}

// InventoryItem is the stock record a reservation holds quantity against.
// Available quantity for new holds is OnHand - Reserved - Committed.
type InventoryItem struct {
	ID                int64     `json:"-"`
	InventoryID       string    `json:"inventory_id"`
	SKU               string    `json:"sku"`
	QuantityOnHand    int64     `json:"quantity_on_hand"`
	QuantityReserved  int64     `json:"quantity_reserved"`
	QuantityCommitted int64     `json:"quantity_committed"`
	TrackQuantity     bool      `json:"track_quantity"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AvailableQuantity returns the quantity still open to new holds.
func (i *InventoryItem) AvailableQuantity() int64 {
	return i.QuantityOnHand - i.QuantityReserved - i.QuantityCommitted
}

// ReservationKey derives the idempotency key for a hold from its reference.
// Two requests holding stock for the same reference item map to the same key,
// so a repeated reserve call is a no-op returning the existing record.
func ReservationKey(referenceType, referenceID string) string {
	return fmt.Sprintf("%s_%s", strings.ToLower(referenceType), referenceID)
}

// ValidReferenceType reports whether the given reference type is one of the
// enumerated reservation origins.
func ValidReferenceType(referenceType string) bool {
	switch referenceType {
	case ReferenceTypeCart, ReferenceTypeOrder, ReferenceTypeQuote, ReferenceTypeSystem:
		return true
	}
	return false
}

// IsTerminal reports whether the reservation can no longer change status.
func (r *InventoryReservation) IsTerminal() bool {
	switch r.Status {
	case ReservationStatusCommitted, ReservationStatusReleased, ReservationStatusExpired:
		return true
	}
	return false
}

// IsActive reports whether the hold is still live: status ACTIVE and either no
// expiry or an expiry still in the future.
func (r *InventoryReservation) IsActive(now time.Time) bool {
	if r.Status != ReservationStatusActive {
		return false
	}
	if r.ExpiresAt == nil {
		return true
	}
	return r.ExpiresAt.After(now)
}

// PastExpiry reports whether an ACTIVE hold has outlived its expiry. Such a
// hold must not be committed; it can only be released, and the release records
// EXPIRED rather than RELEASED to distinguish timeout from cancellation.
func (r *InventoryReservation) PastExpiry(now time.Time) bool {
	return r.Status == ReservationStatusActive && r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}
