package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/tandemhq/tandem/internal/apierror"
	"github.com/tandemhq/tandem/model"
)

// ErrDuplicateActiveReservation signals that another caller created the active
// hold for the same key first. The reservation manager treats it as the
// idempotent case and re-reads the winner's record.
var ErrDuplicateActiveReservation = errors.New("an active reservation already exists for this key")

// CreateReservation inserts a hold and bumps the inventory's reserved quantity
// in one transaction. The availability check runs against a row locked FOR
// UPDATE, so two concurrent holds cannot both pass on the same stock.
func (d Datasource) CreateReservation(ctx context.Context, reservation *model.InventoryReservation, event *model.DomainEvent) (*model.InventoryReservation, error) {
	if reservation.ReservationID == "" {
		reservation.ReservationID = model.GenerateUUIDWithSuffix("rsv")
	}
	reservation.CreatedAt = time.Now()
	reservation.UpdatedAt = reservation.CreatedAt
	reservation.Status = model.ReservationStatusActive

	metaDataJSON, err := json.Marshal(reservation.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	item := &model.InventoryItem{}
	err = tx.QueryRowContext(ctx, `
		SELECT inventory_id, quantity_on_hand, quantity_reserved, quantity_committed, track_quantity
		FROM inventory_items
		WHERE inventory_id = $1
		FOR UPDATE
	`, reservation.InventoryID).Scan(&item.InventoryID, &item.QuantityOnHand, &item.QuantityReserved, &item.QuantityCommitted, &item.TrackQuantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Inventory item with ID '%s' not found", reservation.InventoryID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock inventory item", err)
	}

	if item.TrackQuantity && item.AvailableQuantity() < reservation.Quantity {
		return nil, apierror.NewAPIError(apierror.ErrInsufficientStock,
			fmt.Sprintf("Requested %d units of inventory '%s' but only %d available", reservation.Quantity, item.InventoryID, item.AvailableQuantity()), nil)
	}

	var parentID sql.NullString
	if reservation.ParentReservationID != "" {
		parentID = sql.NullString{String: reservation.ParentReservationID, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (reservation_id, reservation_key, inventory_id, quantity, status, reference_type, reference_id, parent_reservation_id, created_by, expires_at, created_at, updated_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, reservation.ReservationID, reservation.ReservationKey, reservation.InventoryID, reservation.Quantity, reservation.Status,
		reservation.ReferenceType, reservation.ReferenceID, parentID, reservation.CreatedBy, reservation.ExpiresAt,
		reservation.CreatedAt, reservation.UpdatedAt, metaDataJSON)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateActiveReservation
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create reservation", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE inventory_items
		SET quantity_reserved = quantity_reserved + $2, updated_at = NOW()
		WHERE inventory_id = $1
	`, reservation.InventoryID, reservation.Quantity)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update reserved quantity", err)
	}

	if event != nil {
		if _, err := appendEventTx(ctx, tx, event); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit reservation", err)
	}

	d.invalidateInventoryCache(ctx, reservation.InventoryID)

	return reservation, nil
}

// GetReservationByKey returns the most recent reservation for an idempotency
// key, terminal or not.
func (d Datasource) GetReservationByKey(ctx context.Context, reservationKey string) (*model.InventoryReservation, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT reservation_id, reservation_key, inventory_id, quantity, status, reference_type, reference_id, COALESCE(parent_reservation_id, ''), COALESCE(created_by, ''), expires_at, created_at, updated_at, meta_data
		FROM reservations
		WHERE reservation_key = $1
		ORDER BY id DESC
		LIMIT 1
	`, reservationKey)

	return scanReservation(row, fmt.Sprintf("Reservation with key '%s' not found", reservationKey))
}

func (d Datasource) GetReservation(ctx context.Context, reservationID string) (*model.InventoryReservation, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT reservation_id, reservation_key, inventory_id, quantity, status, reference_type, reference_id, COALESCE(parent_reservation_id, ''), COALESCE(created_by, ''), expires_at, created_at, updated_at, meta_data
		FROM reservations
		WHERE reservation_id = $1
	`, reservationID)

	return scanReservation(row, fmt.Sprintf("Reservation with ID '%s' not found", reservationID))
}

// TransitionReservation flips status with a single conditional update and
// applies the matching inventory bookkeeping. When two callers race, exactly
// one sees rowsAffected = 1; the loser gets (false, nil) and re-reads the row
// to decide between the idempotent case and a terminal-state error.
func (d Datasource) TransitionReservation(ctx context.Context, reservationID, fromStatus, toStatus string, event *model.DomainEvent) (bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var inventoryID string
	var quantity int64
	err = tx.QueryRowContext(ctx, `
		UPDATE reservations
		SET status = $3, updated_at = NOW()
		WHERE reservation_id = $1 AND status = $2
		RETURNING inventory_id, quantity
	`, reservationID, fromStatus, toStatus).Scan(&inventoryID, &quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to transition reservation", err)
	}

	bookkeeping := ""
	switch toStatus {
	case model.ReservationStatusCommitted:
		// The hold becomes a permanent deduction.
		bookkeeping = `
			UPDATE inventory_items
			SET quantity_reserved = quantity_reserved - $2, quantity_committed = quantity_committed + $2, updated_at = NOW()
			WHERE inventory_id = $1`
	case model.ReservationStatusReleased, model.ReservationStatusExpired:
		// The held quantity returns to availability.
		bookkeeping = `
			UPDATE inventory_items
			SET quantity_reserved = quantity_reserved - $2, updated_at = NOW()
			WHERE inventory_id = $1`
	}
	if bookkeeping != "" {
		if _, err := tx.ExecContext(ctx, bookkeeping, inventoryID, quantity); err != nil {
			return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update inventory bookkeeping", err)
		}
	}

	if event != nil {
		if _, err := appendEventTx(ctx, tx, event); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit reservation transition", err)
	}

	d.invalidateInventoryCache(ctx, inventoryID)

	return true, nil
}

func (d Datasource) invalidateInventoryCache(ctx context.Context, inventoryID string) {
	if d.Cache == nil {
		return
	}
	if err := d.Cache.Delete(ctx, inventoryCacheKey(inventoryID)); err != nil {
		log.Printf("Failed to invalidate inventory cache: %v", err)
	}
}

func (d Datasource) GetExpiredReservations(ctx context.Context, asOf time.Time) ([]*model.InventoryReservation, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT reservation_id, reservation_key, inventory_id, quantity, status, reference_type, reference_id, COALESCE(parent_reservation_id, ''), COALESCE(created_by, ''), expires_at, created_at, updated_at, meta_data
		FROM reservations
		WHERE status = 'ACTIVE' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC
	`, asOf)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch expired reservations", err)
	}
	defer rows.Close()

	var result []*model.InventoryReservation
	for rows.Next() {
		reservation, err := scanReservationRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over reservations", err)
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row *sql.Row, notFoundMsg string) (*model.InventoryReservation, error) {
	reservation, err := scanReservationFields(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, notFoundMsg, err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve reservation", err)
	}
	return reservation, nil
}

func scanReservationRow(rows *sql.Rows) (*model.InventoryReservation, error) {
	reservation, err := scanReservationFields(rows)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan reservation data", err)
	}
	return reservation, nil
}

func scanReservationFields(scanner rowScanner) (*model.InventoryReservation, error) {
	reservation := &model.InventoryReservation{}
	var expiresAt sql.NullTime
	var metaDataJSON []byte

	err := scanner.Scan(&reservation.ReservationID, &reservation.ReservationKey, &reservation.InventoryID, &reservation.Quantity,
		&reservation.Status, &reservation.ReferenceType, &reservation.ReferenceID, &reservation.ParentReservationID,
		&reservation.CreatedBy, &expiresAt, &reservation.CreatedAt, &reservation.UpdatedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		reservation.ExpiresAt = &expiresAt.Time
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &reservation.MetaData); err != nil {
			return nil, err
		}
	}

	return reservation, nil
}
