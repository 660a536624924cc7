package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemhq/tandem/model"
)

func TestRecordLedgerEntries(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	entries := []*model.LedgerEntry{
		{
			EntryID:        "ent_1",
			SubjectID:      "rfnd_1",
			EntryType:      model.EntryTypeRefundInitiated,
			AccountType:    model.AccountTypeCustomer,
			AccountID:      "cus_1",
			Amount:         decimal.NewFromInt(100),
			Currency:       "USD",
			RunningBalance: decimal.NewFromInt(100),
			Description:    "refund initiated",
			CreatedAt:      now,
		},
		{
			EntryID:        "ent_2",
			SubjectID:      "rfnd_1",
			EntryType:      model.EntryTypeRefundProcessed,
			AccountType:    model.AccountTypeMerchant,
			AccountID:      "mer_1",
			Amount:         decimal.NewFromInt(-100),
			Currency:       "USD",
			RunningBalance: decimal.NewFromInt(-100),
			Description:    "refund processed",
			CreatedAt:      now,
		},
	}

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO ledger_entries"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	recorded, err := ds.RecordLedgerEntries(context.Background(), entries)
	require.NoError(t, err)
	assert.Len(t, recorded, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordLedgerEntriesSkipsDuplicates(t *testing.T) {
	ds, mock := newTestDatasource(t)

	entry := &model.LedgerEntry{
		EntryID:        "ent_1",
		SubjectID:      "rfnd_1",
		EntryType:      model.EntryTypeRefundInitiated,
		AccountType:    model.AccountTypeCustomer,
		AccountID:      "cus_1",
		Amount:         decimal.NewFromInt(100),
		Currency:       "USD",
		RunningBalance: decimal.NewFromInt(100),
		CreatedAt:      time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("ON CONFLICT (entry_id) DO NOTHING"))
	// The id is already stored; re-posting is a no-op, not an error.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	recorded, err := ds.RecordLedgerEntries(context.Background(), []*model.LedgerEntry{entry})
	require.NoError(t, err)
	assert.Len(t, recorded, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLastRunningBalance(t *testing.T) {
	ds, mock := newTestDatasource(t)

	scope := model.AccountScope{AccountType: model.AccountTypeCustomer, AccountID: "cus_1"}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT running_balance")).
		WithArgs(scope.AccountType, scope.AccountID, "USD").
		WillReturnRows(sqlmock.NewRows([]string{"running_balance"}).AddRow("42.5000"))

	balance, err := ds.GetLastRunningBalance(context.Background(), scope, "USD")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromFloat(42.5)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLastRunningBalanceEmptyAccount(t *testing.T) {
	ds, mock := newTestDatasource(t)

	scope := model.AccountScope{AccountType: model.AccountTypePlatform}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT running_balance")).
		WithArgs(scope.AccountType, "", "USD").
		WillReturnRows(sqlmock.NewRows([]string{"running_balance"}))

	balance, err := ds.GetLastRunningBalance(context.Background(), scope, "USD")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntriesBySubject(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE subject_id = $1")).
		WithArgs("rfnd_1").
		WillReturnRows(sqlmock.NewRows([]string{"entry_id", "subject_id", "entry_type", "account_type", "account_id", "amount", "currency", "running_balance", "description", "reference", "created_by", "created_at"}).
			AddRow("ent_1", "rfnd_1", model.EntryTypeRefundInitiated, model.AccountTypeCustomer, "cus_1", "100", "USD", "100", "refund initiated", "", "", now).
			AddRow("ent_2", "rfnd_1", model.EntryTypeRefundProcessed, model.AccountTypeMerchant, "mer_1", "-100", "USD", "-100", "refund processed", "", "", now))

	entries, err := ds.GetEntriesBySubject(context.Background(), "rfnd_1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	validation := model.ValidateEntries("rfnd_1", entries)
	assert.True(t, validation.IsBalanced)
	assert.NoError(t, mock.ExpectationsWereMet())
}
