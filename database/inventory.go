package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/tandemhq/tandem/internal/apierror"
	"github.com/tandemhq/tandem/model"
)

func (d Datasource) CreateInventoryItem(ctx context.Context, item *model.InventoryItem) (*model.InventoryItem, error) {
	if item.InventoryID == "" {
		item.InventoryID = model.GenerateUUIDWithSuffix("inv")
	}
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO inventory_items (inventory_id, sku, quantity_on_hand, quantity_reserved, quantity_committed, track_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.InventoryID, item.SKU, item.QuantityOnHand, item.QuantityReserved, item.QuantityCommitted, item.TrackQuantity, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Inventory item with SKU '%s' already exists", item.SKU), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create inventory item", err)
	}

	return item, nil
}

func inventoryCacheKey(inventoryID string) string {
	return "inventory:" + inventoryID
}

func (d Datasource) GetInventoryItem(ctx context.Context, inventoryID string) (*model.InventoryItem, error) {
	if d.Cache != nil {
		var cached model.InventoryItem
		if err := d.Cache.Get(ctx, inventoryCacheKey(inventoryID), &cached); err == nil && cached.InventoryID != "" {
			return &cached, nil
		}
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT inventory_id, sku, quantity_on_hand, quantity_reserved, quantity_committed, track_quantity, created_at, updated_at
		FROM inventory_items
		WHERE inventory_id = $1
	`, inventoryID)

	item := &model.InventoryItem{}
	err := row.Scan(&item.InventoryID, &item.SKU, &item.QuantityOnHand, &item.QuantityReserved, &item.QuantityCommitted, &item.TrackQuantity, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Inventory item with ID '%s' not found", inventoryID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve inventory item", err)
	}

	if d.Cache != nil {
		if err := d.Cache.Set(ctx, inventoryCacheKey(inventoryID), item, time.Minute); err != nil {
			log.Printf("Failed to cache inventory item: %v", err)
		}
	}

	return item, nil
}

// AdjustInventoryQuantity changes the on-hand quantity by delta (restocks and
// manual corrections). The guard stops an adjustment from pushing on-hand
// below what is already promised.
func (d Datasource) AdjustInventoryQuantity(ctx context.Context, inventoryID string, delta int64) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE inventory_items
		SET quantity_on_hand = quantity_on_hand + $2, updated_at = NOW()
		WHERE inventory_id = $1
		AND quantity_on_hand + $2 >= quantity_reserved + quantity_committed
	`, inventoryID, delta)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to adjust inventory quantity", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("Adjustment of %d rejected for inventory '%s'", delta, inventoryID), nil)
	}

	if d.Cache != nil {
		if err := d.Cache.Delete(ctx, inventoryCacheKey(inventoryID)); err != nil {
			log.Printf("Failed to invalidate inventory cache: %v", err)
		}
	}
	return nil
}
