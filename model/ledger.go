package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountTypeCustomer = "CUSTOMER"
	AccountTypeMerchant = "MERCHANT"
	AccountTypePlatform = "PLATFORM"
	AccountTypeGateway  = "GATEWAY"
	AccountTypeEscrow   = "ESCROW"
)

const (
	EntryTypeRefundInitiated = "REFUND_INITIATED"
	EntryTypeRefundProcessed = "REFUND_PROCESSED"
	EntryTypeFeeDeducted     = "FEE_DEDUCTED"
	EntryTypePaymentCaptured = "PAYMENT_CAPTURED"
	EntryTypeAdjustment      = "ADJUSTMENT"
	EntryTypeReversal        = "REVERSAL"
)

// BalanceEpsilon is the rounding tolerance for reconciliation. A subject whose
// credits and debits differ by less than one minor currency unit is balanced.
var BalanceEpsilon = decimal.NewFromFloat(0.01)

// LedgerEntry is an immutable record of one signed monetary movement against an
// account. Positive amounts credit the account, negative amounts debit it.
// Entries are never updated or deleted; corrections are new REVERSAL or
// ADJUSTMENT entries.
type LedgerEntry struct {
	ID             int64           `json:"-"`
	EntryID        string          `json:"entry_id"`
	SubjectID      string          `json:"subject_id"`
	EntryType      string          `json:"entry_type"`
	AccountType    string          `json:"account_type"`
	AccountID      string          `json:"account_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	RunningBalance decimal.Decimal `json:"running_balance"`
	Description    string          `json:"description"`
	Reference      string          `json:"reference,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// LedgerEntryInput is the caller-supplied shape of a new entry before running
// balances are assigned.
type LedgerEntryInput struct {
	// EntryID is optional; when set, the entry is written under this id and a
	// repeat submission of the same id is dropped instead of double-posted.
	EntryID     string          `json:"entry_id,omitempty"`
	SubjectID   string          `json:"subject_id"`
	EntryType   string          `json:"entry_type"`
	AccountType string          `json:"account_type"`
	AccountID   string          `json:"account_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	CreatedBy   string          `json:"created_by"`
}

// AccountScope identifies the (accountType, accountId) pair a running balance
// is tracked against.
type AccountScope struct {
	AccountType string `json:"account_type"`
	AccountID   string `json:"account_id,omitempty"`
}

// Key renders the scope as a single string, used for lock keys and map keys.
func (s AccountScope) Key() string {
	if s.AccountID == "" {
		return s.AccountType
	}
	return s.AccountType + ":" + s.AccountID
}

// LedgerSummary aggregates all entries recorded against one subject.
type LedgerSummary struct {
	SubjectID    string                     `json:"subject_id"`
	TotalDebits  decimal.Decimal            `json:"total_debits"`
	TotalCredits decimal.Decimal            `json:"total_credits"`
	NetAmount    decimal.Decimal            `json:"net_amount"`
	Currency     string                     `json:"currency"`
	Accounts     map[string]decimal.Decimal `json:"accounts"`
	EntryCount   int                        `json:"entry_count"`
}

// BalanceValidation is the reconciliation verdict for one subject.
type BalanceValidation struct {
	SubjectID   string          `json:"subject_id"`
	IsBalanced  bool            `json:"is_balanced"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
}

// LedgerBalance is the cumulative position of one account scope.
type LedgerBalance struct {
	AccountType string          `json:"account_type"`
	AccountID   string          `json:"account_id,omitempty"`
	Currency    string          `json:"currency"`
	Balance     decimal.Decimal `json:"balance"`
	EntryCount  int             `json:"entry_count"`
	LastUpdated time.Time       `json:"last_updated"`
}

// ValidAccountType reports whether the account type is one of the enumerated
// ledger accounts.
func ValidAccountType(accountType string) bool {
	switch accountType {
	case AccountTypeCustomer, AccountTypeMerchant, AccountTypePlatform, AccountTypeGateway, AccountTypeEscrow:
		return true
	}
	return false
}

// ValidEntryType reports whether the entry type is enumerated.
func ValidEntryType(entryType string) bool {
	switch entryType {
	case EntryTypeRefundInitiated, EntryTypeRefundProcessed, EntryTypeFeeDeducted,
		EntryTypePaymentCaptured, EntryTypeAdjustment, EntryTypeReversal:
		return true
	}
	return false
}

// Validate checks a single entry input. Zero amounts are disallowed: every entry
// must move money, and balanced zero movements are modeled by writing nothing.
func (in *LedgerEntryInput) Validate() error {
	if in.SubjectID == "" {
		return ErrSubjectRequired
	}
	if in.Amount.IsZero() {
		return ErrZeroAmount
	}
	if !ValidAccountType(in.AccountType) {
		return ErrUnknownAccountType
	}
	if !ValidEntryType(in.EntryType) {
		return ErrUnknownEntryType
	}
	if in.Description == "" {
		return ErrDescriptionRequired
	}
	if in.Currency == "" {
		return ErrCurrencyRequired
	}
	return nil
}

// Scope returns the account scope this input's running balance is computed in.
func (in *LedgerEntryInput) Scope() AccountScope {
	return AccountScope{AccountType: in.AccountType, AccountID: in.AccountID}
}

// SummarizeEntries folds a subject's entries into a summary. Credits are the
// positive amounts, debits the absolute value of the negative ones; the net is
// credits minus debits, which for a fully settled subject sits inside
// BalanceEpsilon of zero.
func SummarizeEntries(subjectID string, entries []*LedgerEntry) *LedgerSummary {
	summary := &LedgerSummary{
		SubjectID:    subjectID,
		TotalDebits:  decimal.Zero,
		TotalCredits: decimal.Zero,
		NetAmount:    decimal.Zero,
		Accounts:     make(map[string]decimal.Decimal),
		EntryCount:   len(entries),
	}
	for _, entry := range entries {
		if entry.Amount.IsNegative() {
			summary.TotalDebits = summary.TotalDebits.Add(entry.Amount.Abs())
		} else {
			summary.TotalCredits = summary.TotalCredits.Add(entry.Amount)
		}
		scope := AccountScope{AccountType: entry.AccountType, AccountID: entry.AccountID}
		summary.Accounts[scope.Key()] = summary.Accounts[scope.Key()].Add(entry.Amount)
		if summary.Currency == "" {
			summary.Currency = entry.Currency
		}
	}
	summary.NetAmount = summary.TotalCredits.Sub(summary.TotalDebits)
	return summary
}

// ValidateEntries checks whether a subject's entries net to zero within the
// rounding tolerance. It is a pure function of stored data and never consults a
// cached total, so replaying the entries always reproduces the verdict.
func ValidateEntries(subjectID string, entries []*LedgerEntry) *BalanceValidation {
	summary := SummarizeEntries(subjectID, entries)
	discrepancy := summary.TotalCredits.Sub(summary.TotalDebits)
	return &BalanceValidation{
		SubjectID:   subjectID,
		IsBalanced:  discrepancy.Abs().LessThan(BalanceEpsilon),
		Discrepancy: discrepancy,
	}
}
