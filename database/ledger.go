package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tandemhq/tandem/internal/apierror"
	"github.com/tandemhq/tandem/model"
)

// RecordLedgerEntries appends a batch of entries in one transaction. Running
// balances are computed by the caller under the account-scope lock; this layer
// only makes the batch atomic. An entry whose id is already stored is skipped,
// so a batch with deterministic ids can be re-posted after a crash without
// double-counting.
func (d Datasource) RecordLedgerEntries(ctx context.Context, entries []*model.LedgerEntry) ([]*model.LedgerEntry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_entries (entry_id, subject_id, entry_type, account_type, account_id, amount, currency, running_balance, description, reference, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (entry_id) DO NOTHING
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to prepare ledger insert", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		_, err := stmt.ExecContext(ctx, entry.EntryID, entry.SubjectID, entry.EntryType, entry.AccountType, entry.AccountID,
			entry.Amount, entry.Currency, entry.RunningBalance, entry.Description, entry.Reference, entry.CreatedBy, entry.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record ledger entry", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit ledger entries", err)
	}

	return entries, nil
}

// GetLastRunningBalance returns the running balance stored on the newest entry
// for an account scope, or zero when the scope has no entries yet.
func (d Datasource) GetLastRunningBalance(ctx context.Context, scope model.AccountScope, currency string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := d.Conn.QueryRowContext(ctx, `
		SELECT running_balance
		FROM ledger_entries
		WHERE account_type = $1 AND account_id = $2 AND currency = $3
		ORDER BY id DESC
		LIMIT 1
	`, scope.AccountType, scope.AccountID, currency).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch running balance", err)
	}
	return balance, nil
}

// GetEntriesBySubject returns every entry for a subject in creation order.
func (d Datasource) GetEntriesBySubject(ctx context.Context, subjectID string) ([]*model.LedgerEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT entry_id, subject_id, entry_type, account_type, account_id, amount, currency, running_balance, description, COALESCE(reference, ''), COALESCE(created_by, ''), created_at
		FROM ledger_entries
		WHERE subject_id = $1
		ORDER BY id ASC
	`, subjectID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch ledger entries", err)
	}
	return scanLedgerEntries(rows)
}

// GetEntriesByAccount returns every entry for an account scope in creation
// order, so replaying them reproduces the stored running balances.
func (d Datasource) GetEntriesByAccount(ctx context.Context, scope model.AccountScope, currency string) ([]*model.LedgerEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT entry_id, subject_id, entry_type, account_type, account_id, amount, currency, running_balance, description, COALESCE(reference, ''), COALESCE(created_by, ''), created_at
		FROM ledger_entries
		WHERE account_type = $1 AND account_id = $2 AND currency = $3
		ORDER BY id ASC
	`, scope.AccountType, scope.AccountID, currency)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch account entries", err)
	}
	return scanLedgerEntries(rows)
}

func scanLedgerEntries(rows *sql.Rows) ([]*model.LedgerEntry, error) {
	defer rows.Close()

	var entries []*model.LedgerEntry
	for rows.Next() {
		entry := &model.LedgerEntry{}
		err := rows.Scan(&entry.EntryID, &entry.SubjectID, &entry.EntryType, &entry.AccountType, &entry.AccountID,
			&entry.Amount, &entry.Currency, &entry.RunningBalance, &entry.Description, &entry.Reference, &entry.CreatedBy, &entry.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ledger entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over ledger entries", err)
	}

	return entries, nil
}
