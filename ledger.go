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
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tandemhq/tandem/internal/apierror"
	redlock "github.com/tandemhq/tandem/internal/lock"
	"github.com/tandemhq/tandem/model"
)

const (
	ledgerLockTimeout = 30 * time.Second
	ledgerLockWait    = 10 * time.Second
)

// RecordEntries validates and appends a batch of ledger entries, assigning each
// entry a running balance in its (accountType, accountId, currency) scope. The
// whole batch fails on the first invalid input. Running-balance computation is
// serialized per scope with a redis lock so two concurrent batches can never
// both extend the same stale balance; lock keys are acquired in sorted order so
// overlapping batches cannot deadlock.
func (t *Tandem) RecordEntries(ctx context.Context, inputs []*model.LedgerEntryInput) ([]*model.LedgerEntry, error) {
	ctx, span := tracer.Start(ctx, "RecordEntries")
	defer span.End()

	if len(inputs) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "At least one ledger entry is required", nil)
	}
	for i, input := range inputs {
		if err := input.Validate(); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Invalid ledger entry at index %d: %s", i, err), err)
		}
	}

	lockKeys := balanceLockKeys(inputs)
	var lockers []*redlock.Locker
	defer func() {
		for i := len(lockers) - 1; i >= 0; i-- {
			_ = lockers[i].Unlock(context.Background())
		}
	}()
	for _, key := range lockKeys {
		locker := redlock.NewLocker(t.redis, key, model.GenerateUUIDWithSuffix("loc"))
		if err := locker.WaitLock(ctx, ledgerLockTimeout, ledgerLockWait); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Failed to acquire balance lock %s", key), err)
		}
		lockers = append(lockers, locker)
	}

	balances := make(map[string]decimal.Decimal)
	now := time.Now()
	entries := make([]*model.LedgerEntry, 0, len(inputs))
	for _, input := range inputs {
		key := balanceKey(input.Scope(), input.Currency)
		previous, seen := balances[key]
		if !seen {
			stored, err := t.datasource.GetLastRunningBalance(ctx, input.Scope(), input.Currency)
			if err != nil {
				return nil, err
			}
			previous = stored
		}
		running := previous.Add(input.Amount)
		balances[key] = running

		entryID := input.EntryID
		if entryID == "" {
			entryID = model.GenerateUUIDWithSuffix("ent")
		}
		entries = append(entries, &model.LedgerEntry{
			EntryID:        entryID,
			SubjectID:      input.SubjectID,
			EntryType:      input.EntryType,
			AccountType:    input.AccountType,
			AccountID:      input.AccountID,
			Amount:         input.Amount,
			Currency:       input.Currency,
			RunningBalance: running,
			Description:    input.Description,
			Reference:      input.Reference,
			CreatedBy:      input.CreatedBy,
			CreatedAt:      now,
		})
	}

	return t.datasource.RecordLedgerEntries(ctx, entries)
}

// SummarizeSubject folds all of a subject's entries into totals and a per
// account breakdown.
func (t *Tandem) SummarizeSubject(ctx context.Context, subjectID string) (*model.LedgerSummary, error) {
	ctx, span := tracer.Start(ctx, "SummarizeSubject")
	defer span.End()

	entries, err := t.datasource.GetEntriesBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No ledger entries found for subject '%s'", subjectID), nil)
	}
	return model.SummarizeEntries(subjectID, entries), nil
}

// ValidateSubjectBalance reconciles a subject directly from its stored entries.
// The verdict is recomputed every call and never read from a cached total.
func (t *Tandem) ValidateSubjectBalance(ctx context.Context, subjectID string) (*model.BalanceValidation, error) {
	ctx, span := tracer.Start(ctx, "ValidateSubjectBalance")
	defer span.End()

	entries, err := t.datasource.GetEntriesBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No ledger entries found for subject '%s'", subjectID), nil)
	}
	return model.ValidateEntries(subjectID, entries), nil
}

// AccountBalance sums all entries in an account scope and reports the time of
// the newest entry.
func (t *Tandem) AccountBalance(ctx context.Context, scope model.AccountScope, currency string) (*model.LedgerBalance, error) {
	ctx, span := tracer.Start(ctx, "AccountBalance")
	defer span.End()

	if !model.ValidAccountType(scope.AccountType) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unknown account type '%s'", scope.AccountType), nil)
	}

	entries, err := t.datasource.GetEntriesByAccount(ctx, scope, currency)
	if err != nil {
		return nil, err
	}

	balance := &model.LedgerBalance{
		AccountType: scope.AccountType,
		AccountID:   scope.AccountID,
		Currency:    currency,
		Balance:     decimal.Zero,
		EntryCount:  len(entries),
	}
	for _, entry := range entries {
		balance.Balance = balance.Balance.Add(entry.Amount)
		if entry.CreatedAt.After(balance.LastUpdated) {
			balance.LastUpdated = entry.CreatedAt
		}
	}
	return balance, nil
}

// GetEntriesBySubject returns a subject's entries in creation order.
func (t *Tandem) GetEntriesBySubject(ctx context.Context, subjectID string) ([]*model.LedgerEntry, error) {
	return t.datasource.GetEntriesBySubject(ctx, subjectID)
}

func balanceKey(scope model.AccountScope, currency string) string {
	return scope.Key() + ":" + currency
}

func balanceLockKeys(inputs []*model.LedgerEntryInput) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, input := range inputs {
		key := "ledger:" + balanceKey(input.Scope(), input.Currency)
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
