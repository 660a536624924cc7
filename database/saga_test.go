package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemhq/tandem/model"
)

func TestCreateSagaInstance(t *testing.T) {
	ds, mock := newTestDatasource(t)

	instance := &model.SagaInstance{
		SagaType:      "order_fulfillment",
		CorrelationID: "ord_1",
		Data:          map[string]interface{}{"order_id": "ord_1"},
	}
	event := &model.DomainEvent{AggregateID: "sga", EventType: model.EventSagaStarted}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sagas")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM saga_events")).
		WithArgs(event.AggregateID).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO saga_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	created, err := ds.CreateSagaInstance(context.Background(), instance, event)
	require.NoError(t, err)
	assert.Contains(t, created.SagaID, "sga_")
	assert.Equal(t, model.SagaStatusPending, created.Status)
	assert.Equal(t, 0, created.CurrentStep)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionSagaStatus(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sagas SET status = $3")).
		WithArgs("sga_1", model.SagaStatusPending, model.SagaStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	moved, err := ds.TransitionSagaStatus(context.Background(), "sga_1", model.SagaStatusPending, model.SagaStatusRunning, nil)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionSagaStatusAlreadyMoved(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sagas SET status = $3")).
		WithArgs("sga_1", model.SagaStatusRunning, model.SagaStatusCompensating).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	moved, err := ds.TransitionSagaStatus(context.Background(), "sga_1", model.SagaStatusRunning, model.SagaStatusCompensating, nil)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeSaga(t *testing.T) {
	ds, mock := newTestDatasource(t)

	event := &model.DomainEvent{AggregateID: "sga_1", EventType: model.EventSagaCompensated}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("completed_at = NOW()")).
		WithArgs("sga_1", model.SagaStatusCompensating, model.SagaStatusCompensated, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM saga_events")).
		WithArgs("sga_1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO saga_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	moved, err := ds.FinalizeSaga(context.Background(), "sga_1", model.SagaStatusCompensating, model.SagaStatusCompensated, "payment declined", event)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSagasByStatus(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1")).
		WithArgs(model.SagaStatusRunning, 100).
		WillReturnRows(sqlmock.NewRows([]string{"saga_id", "saga_type", "correlation_id", "status", "current_step", "data", "step_results", "tenant_id", "actor_id", "last_error", "created_at", "updated_at", "completed_at"}).
			AddRow("sga_1", "order_fulfillment", "ord_1", model.SagaStatusRunning, 1,
				[]byte(`{"order_id":"ord_1"}`), []byte(`{"reserve_inventory":{"success":true}}`), "", "", "", now, now, nil))

	sagas, err := ds.GetSagasByStatus(context.Background(), model.SagaStatusRunning, 100)
	require.NoError(t, err)
	require.Len(t, sagas, 1)
	assert.Equal(t, 1, sagas[0].CurrentStep)
	assert.Equal(t, "ord_1", sagas[0].Data["order_id"])
	assert.Contains(t, sagas[0].StepResults, "reserve_inventory")
	assert.NoError(t, mock.ExpectationsWereMet())
}
