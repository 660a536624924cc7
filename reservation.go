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

package tandem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tandemhq/tandem/config"
	"github.com/tandemhq/tandem/database"
	"github.com/tandemhq/tandem/internal/apierror"
	"github.com/tandemhq/tandem/model"
)

// CreateInventoryItem registers a new stock record that reservations can hold
// quantity against.
func (t *Tandem) CreateInventoryItem(ctx context.Context, item *model.InventoryItem) (*model.InventoryItem, error) {
	ctx, span := tracer.Start(ctx, "CreateInventoryItem")
	defer span.End()

	if item.SKU == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "SKU is required", nil)
	}
	if item.QuantityOnHand < 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Quantity on hand cannot be negative", nil)
	}
	return t.datasource.CreateInventoryItem(ctx, item)
}

// GetInventoryItem retrieves a stock record by its ID.
func (t *Tandem) GetInventoryItem(ctx context.Context, inventoryID string) (*model.InventoryItem, error) {
	return t.datasource.GetInventoryItem(ctx, inventoryID)
}

// AdjustInventoryQuantity applies a signed on-hand delta for restocks and
// manual corrections. The adjustment fails when it would push availability
// below the quantities already reserved or committed.
func (t *Tandem) AdjustInventoryQuantity(ctx context.Context, inventoryID string, delta int64) error {
	ctx, span := tracer.Start(ctx, "AdjustInventoryQuantity")
	defer span.End()

	if delta == 0 {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Adjustment delta cannot be zero", nil)
	}
	return t.datasource.AdjustInventoryQuantity(ctx, inventoryID, delta)
}

// Reserve places a hold on inventory quantity, idempotent on the reservation
// key derived from (referenceType, referenceId). A repeated call while the hold
// is still active returns the existing reservation unchanged; only one live
// hold can exist per key. A nil ttl falls back to the configured default; a
// zero ttl creates a hold with no expiry.
func (t *Tandem) Reserve(ctx context.Context, inventoryID string, quantity int64, referenceType, referenceID string, ttl *time.Duration) (*model.InventoryReservation, error) {
	ctx, span := tracer.Start(ctx, "Reserve")
	defer span.End()

	if quantity <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Reservation quantity must be positive", nil)
	}
	if !model.ValidReferenceType(referenceType) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unknown reference type '%s'", referenceType), nil)
	}
	if referenceID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Reference ID is required", nil)
	}

	reservationKey := model.ReservationKey(referenceType, referenceID)
	existing, err := t.datasource.GetReservationByKey(ctx, reservationKey)
	if err == nil {
		now := time.Now()
		if existing.IsActive(now) {
			return existing, nil
		}
		// A hold past its expiry that the sweeper has not reached yet still
		// occupies the key's unique active slot. Expire it here so its stock
		// comes back and the new hold can be created.
		if existing.Status == model.ReservationStatusActive && existing.PastExpiry(now) {
			if _, err := t.datasource.TransitionReservation(ctx, existing.ReservationID,
				model.ReservationStatusActive, model.ReservationStatusExpired, &model.DomainEvent{
					AggregateID: reservationKey,
					EventType:   model.EventReservationExpired,
					Payload:     map[string]interface{}{"actor": "system", "reason": "expired"},
				}); err != nil {
				return nil, err
			}
		}
	}
	if err != nil && apierror.Code(err) != apierror.ErrNotFound {
		return nil, err
	}

	expiresAt, err := t.reservationExpiry(ttl)
	if err != nil {
		return nil, err
	}

	reservation := &model.InventoryReservation{
		ReservationKey: reservationKey,
		InventoryID:    inventoryID,
		Quantity:       quantity,
		ReferenceType:  referenceType,
		ReferenceID:    referenceID,
		ExpiresAt:      expiresAt,
	}
	created, err := t.datasource.CreateReservation(ctx, reservation, &model.DomainEvent{
		AggregateID: reservationKey,
		EventType:   model.EventReservationCreated,
		Payload: map[string]interface{}{
			"inventory_id": inventoryID,
			"quantity":     quantity,
		},
	})
	if err != nil {
		// Lost the race to another caller holding the same key. Return the
		// winner's reservation, matching the idempotency contract. A winner
		// that is itself past expiry is no use to the caller, so that race
		// surfaces as a conflict instead.
		if errors.Is(err, database.ErrDuplicateActiveReservation) {
			winner, readErr := t.datasource.GetReservationByKey(ctx, reservationKey)
			if readErr != nil {
				return nil, readErr
			}
			if winner.IsActive(time.Now()) {
				return winner, nil
			}
			return nil, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("Reservation key '%s' is held by an expired reservation", reservationKey), nil)
		}
		return nil, err
	}

	return created, nil
}

func (t *Tandem) reservationExpiry(ttl *time.Duration) (*time.Time, error) {
	if ttl == nil {
		cfg, err := config.Fetch()
		if err != nil {
			return nil, err
		}
		expiry := time.Now().Add(time.Duration(cfg.Reservation.DefaultTTLMinutes) * time.Minute)
		return &expiry, nil
	}
	if *ttl == 0 {
		return nil, nil
	}
	expiry := time.Now().Add(*ttl)
	return &expiry, nil
}

// CommitReservation turns an active hold into a permanent stock deduction.
// Committing an already-committed reservation succeeds silently; committing a
// released or expired one, or an active hold past its expiry, fails with an
// invalid-state error. The hold past expiry stays ACTIVE until released or
// swept.
func (t *Tandem) CommitReservation(ctx context.Context, reservationKey, actor, reason string) error {
	ctx, span := tracer.Start(ctx, "CommitReservation")
	defer span.End()

	reservation, err := t.datasource.GetReservationByKey(ctx, reservationKey)
	if err != nil {
		return err
	}

	switch reservation.Status {
	case model.ReservationStatusCommitted:
		return nil
	case model.ReservationStatusReleased, model.ReservationStatusExpired:
		return apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("Cannot commit reservation '%s' in status %s", reservation.ReservationID, reservation.Status), nil)
	}
	if reservation.PastExpiry(time.Now()) {
		return apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("Reservation '%s' expired at %s and must be released, not committed", reservation.ReservationID, reservation.ExpiresAt.Format(time.RFC3339)), nil)
	}

	moved, err := t.datasource.TransitionReservation(ctx, reservation.ReservationID,
		model.ReservationStatusActive, model.ReservationStatusCommitted, &model.DomainEvent{
			AggregateID: reservationKey,
			EventType:   model.EventReservationCommit,
			Payload:     map[string]interface{}{"actor": actor, "reason": reason},
		})
	if err != nil {
		return err
	}
	if !moved {
		// A concurrent caller transitioned first. Re-read and apply the same
		// idempotency rules against the state it left behind.
		current, err := t.datasource.GetReservation(ctx, reservation.ReservationID)
		if err != nil {
			return err
		}
		if current.Status == model.ReservationStatusCommitted {
			return nil
		}
		return apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("Cannot commit reservation '%s' in status %s", current.ReservationID, current.Status), nil)
	}

	return nil
}

// ReleaseReservation returns a hold's quantity to availability. Releasing an
// already-released or expired reservation succeeds silently; releasing a
// committed one fails. An active hold past its expiry is recorded as EXPIRED
// rather than RELEASED to distinguish timeout from deliberate cancellation.
func (t *Tandem) ReleaseReservation(ctx context.Context, reservationKey, actor, reason string) error {
	ctx, span := tracer.Start(ctx, "ReleaseReservation")
	defer span.End()

	reservation, err := t.datasource.GetReservationByKey(ctx, reservationKey)
	if err != nil {
		return err
	}

	switch reservation.Status {
	case model.ReservationStatusReleased, model.ReservationStatusExpired:
		return nil
	case model.ReservationStatusCommitted:
		return apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("Cannot release committed reservation '%s'", reservation.ReservationID), nil)
	}

	toStatus := model.ReservationStatusReleased
	eventType := model.EventReservationReleased
	if reservation.PastExpiry(time.Now()) {
		toStatus = model.ReservationStatusExpired
		eventType = model.EventReservationExpired
	}

	moved, err := t.datasource.TransitionReservation(ctx, reservation.ReservationID,
		model.ReservationStatusActive, toStatus, &model.DomainEvent{
			AggregateID: reservationKey,
			EventType:   eventType,
			Payload:     map[string]interface{}{"actor": actor, "reason": reason},
		})
	if err != nil {
		return err
	}
	if !moved {
		current, err := t.datasource.GetReservation(ctx, reservation.ReservationID)
		if err != nil {
			return err
		}
		switch current.Status {
		case model.ReservationStatusReleased, model.ReservationStatusExpired:
			return nil
		}
		return apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("Cannot release reservation '%s' in status %s", current.ReservationID, current.Status), nil)
	}

	return nil
}

// SweepExpiredReservations finds active holds past their expiry and moves them
// to EXPIRED, returning held stock to availability. It is the periodic
// counterpart to an explicit release of a timed-out hold; a hold another caller
// transitions mid-sweep is skipped rather than counted.
func (t *Tandem) SweepExpiredReservations(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "SweepExpiredReservations")
	defer span.End()

	expired, err := t.datasource.GetExpiredReservations(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, reservation := range expired {
		moved, err := t.datasource.TransitionReservation(ctx, reservation.ReservationID,
			model.ReservationStatusActive, model.ReservationStatusExpired, &model.DomainEvent{
				AggregateID: reservation.ReservationKey,
				EventType:   model.EventReservationExpired,
				Payload:     map[string]interface{}{"actor": "system", "reason": "expired"},
			})
		if err != nil {
			logrus.Errorf("sweep: failed to expire reservation %s: %v", reservation.ReservationID, err)
			continue
		}
		if moved {
			swept++
		}
	}

	if swept > 0 {
		logrus.Infof("sweep: expired %d reservations", swept)
	}
	return swept, nil
}

// GetReservation retrieves a reservation by its ID.
func (t *Tandem) GetReservation(ctx context.Context, reservationID string) (*model.InventoryReservation, error) {
	return t.datasource.GetReservation(ctx, reservationID)
}

// GetReservationByKey retrieves the latest reservation for an idempotency key.
func (t *Tandem) GetReservationByKey(ctx context.Context, reservationKey string) (*model.InventoryReservation, error) {
	return t.datasource.GetReservationByKey(ctx, reservationKey)
}
