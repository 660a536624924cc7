package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tandemhq/tandem/internal/apierror"
	"github.com/tandemhq/tandem/model"
)

// execer covers both *sql.DB and *sql.Tx so event appends can ride inside the
// transaction of the state change they describe (the outbox contract).
type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// appendEventTx assigns the next version for the aggregate and inserts the
// event row. Callers pass the tx of the owning state change; the unique
// (aggregate_id, version) constraint catches two writers racing on a version.
func appendEventTx(ctx context.Context, q execer, event *model.DomainEvent) (*model.DomainEvent, error) {
	if event.EventID == "" {
		event.EventID = model.GenerateUUIDWithSuffix("evt")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal event payload", err)
	}

	err = q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM saga_events WHERE aggregate_id = $1
	`, event.AggregateID).Scan(&event.Version)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute next event version", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO saga_events (event_id, aggregate_id, version, event_type, payload, dispatched, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`, event.EventID, event.AggregateID, event.Version, event.EventType, payloadJSON, event.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append domain event", err)
	}

	return event, nil
}

func (d Datasource) AppendEvent(ctx context.Context, event *model.DomainEvent) (*model.DomainEvent, error) {
	return appendEventTx(ctx, d.Conn, event)
}

func (d Datasource) ReadEventsFrom(ctx context.Context, aggregateID string, fromVersion int64) ([]*model.DomainEvent, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT event_id, aggregate_id, version, event_type, payload, dispatched, created_at
		FROM saga_events
		WHERE aggregate_id = $1 AND version >= $2
		ORDER BY version ASC
	`, aggregateID, fromVersion)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read domain events", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (d Datasource) GetUndispatchedEvents(ctx context.Context, limit int) ([]*model.DomainEvent, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT event_id, aggregate_id, version, event_type, payload, dispatched, created_at
		FROM saga_events
		WHERE dispatched = FALSE
		ORDER BY id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch undispatched events", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (d Datasource) MarkEventDispatched(ctx context.Context, eventID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE saga_events SET dispatched = TRUE WHERE event_id = $1
	`, eventID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark event dispatched", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Event with ID '%s' not found", eventID), nil)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]*model.DomainEvent, error) {
	var result []*model.DomainEvent
	for rows.Next() {
		event := &model.DomainEvent{}
		var payloadJSON []byte
		err := rows.Scan(&event.EventID, &event.AggregateID, &event.Version, &event.EventType, &payloadJSON, &event.Dispatched, &event.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan event data", err)
		}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &event.Payload); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal event payload", err)
			}
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over events", err)
	}
	return result, nil
}
