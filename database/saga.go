package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tandemhq/tandem/internal/apierror"
	"github.com/tandemhq/tandem/model"
)

// CreateSagaInstance persists a new saga in PENDING and appends its started
// event in the same transaction.
func (d Datasource) CreateSagaInstance(ctx context.Context, instance *model.SagaInstance, event *model.DomainEvent) (*model.SagaInstance, error) {
	if instance.SagaID == "" {
		instance.SagaID = model.GenerateUUIDWithSuffix("sga")
	}
	instance.Status = model.SagaStatusPending
	instance.CurrentStep = 0
	instance.CreatedAt = time.Now()
	instance.UpdatedAt = instance.CreatedAt
	if instance.StepResults == nil {
		instance.StepResults = map[string]interface{}{}
	}

	dataJSON, err := json.Marshal(instance.Data)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal saga data", err)
	}
	stepResultsJSON, err := json.Marshal(instance.StepResults)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal step results", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sagas (saga_id, saga_type, correlation_id, status, current_step, data, step_results, tenant_id, actor_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, instance.SagaID, instance.SagaType, instance.CorrelationID, instance.Status, instance.CurrentStep,
		dataJSON, stepResultsJSON, instance.TenantID, instance.ActorID, instance.CreatedAt, instance.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Saga with ID '%s' already exists", instance.SagaID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create saga instance", err)
	}

	if event != nil {
		if _, err := appendEventTx(ctx, tx, event); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit saga creation", err)
	}

	return instance, nil
}

func (d Datasource) GetSagaInstance(ctx context.Context, sagaID string) (*model.SagaInstance, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT saga_id, saga_type, COALESCE(correlation_id, ''), status, current_step, data, step_results, COALESCE(tenant_id, ''), COALESCE(actor_id, ''), COALESCE(last_error, ''), created_at, updated_at, completed_at
		FROM sagas
		WHERE saga_id = $1
	`, sagaID)

	instance, err := scanSagaFields(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Saga with ID '%s' not found", sagaID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve saga instance", err)
	}
	return instance, nil
}

// TransitionSagaStatus flips the saga's status only when it still holds the
// expected prior status. Recovery workers and the live orchestrator race on this
// update; exactly one of them wins.
func (d Datasource) TransitionSagaStatus(ctx context.Context, sagaID, fromStatus, toStatus string, event *model.DomainEvent) (bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE sagas SET status = $3, updated_at = NOW()
		WHERE saga_id = $1 AND status = $2
	`, sagaID, fromStatus, toStatus)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to transition saga status", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if rows == 0 {
		return false, nil
	}

	if event != nil {
		if _, err := appendEventTx(ctx, tx, event); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit saga transition", err)
	}

	return true, nil
}

// SetSagaCurrentStep records which step the orchestrator is about to run, so a
// crashed saga resumes from the step it died on rather than from the start.
func (d Datasource) SetSagaCurrentStep(ctx context.Context, sagaID string, step int) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE sagas SET current_step = $2, updated_at = NOW()
		WHERE saga_id = $1
	`, sagaID, step)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update saga step", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Saga with ID '%s' not found", sagaID), nil)
	}
	return nil
}

// RecordSagaStepResult replaces the saga's accumulated step results and appends
// the step event atomically.
func (d Datasource) RecordSagaStepResult(ctx context.Context, sagaID string, stepResults map[string]interface{}, event *model.DomainEvent) error {
	stepResultsJSON, err := json.Marshal(stepResults)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal step results", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE sagas SET step_results = $2, updated_at = NOW()
		WHERE saga_id = $1
	`, sagaID, stepResultsJSON)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record step result", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Saga with ID '%s' not found", sagaID), nil)
	}

	if event != nil {
		if _, err := appendEventTx(ctx, tx, event); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit step result", err)
	}

	return nil
}

// FinalizeSaga moves the saga into a terminal status, stamping completed_at and
// the last error. The conditional update keeps a finished saga from being
// finished twice.
func (d Datasource) FinalizeSaga(ctx context.Context, sagaID, fromStatus, toStatus, lastError string, event *model.DomainEvent) (bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var errValue sql.NullString
	if lastError != "" {
		errValue = sql.NullString{String: lastError, Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE sagas SET status = $3, last_error = $4, completed_at = NOW(), updated_at = NOW()
		WHERE saga_id = $1 AND status = $2
	`, sagaID, fromStatus, toStatus, errValue)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to finalize saga", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if rows == 0 {
		return false, nil
	}

	if event != nil {
		if _, err := appendEventTx(ctx, tx, event); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit saga finalization", err)
	}

	return true, nil
}

// GetSagasByStatus returns oldest-first sagas in the given status. The recovery
// worker uses it to pick up RUNNING and COMPENSATING instances after a restart.
func (d Datasource) GetSagasByStatus(ctx context.Context, status string, limit int) ([]*model.SagaInstance, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT saga_id, saga_type, COALESCE(correlation_id, ''), status, current_step, data, step_results, COALESCE(tenant_id, ''), COALESCE(actor_id, ''), COALESCE(last_error, ''), created_at, updated_at, completed_at
		FROM sagas
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch sagas", err)
	}
	defer rows.Close()

	var result []*model.SagaInstance
	for rows.Next() {
		instance, err := scanSagaFields(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan saga data", err)
		}
		result = append(result, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over sagas", err)
	}

	return result, nil
}

func scanSagaFields(scanner rowScanner) (*model.SagaInstance, error) {
	instance := &model.SagaInstance{}
	var dataJSON, stepResultsJSON []byte
	var completedAt sql.NullTime

	err := scanner.Scan(&instance.SagaID, &instance.SagaType, &instance.CorrelationID, &instance.Status, &instance.CurrentStep,
		&dataJSON, &stepResultsJSON, &instance.TenantID, &instance.ActorID, &instance.LastError,
		&instance.CreatedAt, &instance.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &instance.Data); err != nil {
			return nil, err
		}
	}
	if len(stepResultsJSON) > 0 {
		if err := json.Unmarshal(stepResultsJSON, &instance.StepResults); err != nil {
			return nil, err
		}
	}
	if instance.StepResults == nil {
		instance.StepResults = map[string]interface{}{}
	}
	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}

	return instance, nil
}
