package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func entry(accountType, accountID string, amount float64) *LedgerEntry {
	return &LedgerEntry{
		EntryID:     GenerateUUIDWithSuffix("ent"),
		SubjectID:   "rfd_123",
		EntryType:   EntryTypeRefundProcessed,
		AccountType: accountType,
		AccountID:   accountID,
		Amount:      decimal.NewFromFloat(amount),
		Currency:    "USD",
		Description: "test entry",
	}
}

func TestSummarizeEntries(t *testing.T) {
	entries := []*LedgerEntry{
		entry(AccountTypeCustomer, "cus_1", 100),
		entry(AccountTypePlatform, "", -100),
	}

	summary := SummarizeEntries("rfd_123", entries)

	assert.True(t, summary.TotalDebits.Equal(decimal.NewFromInt(100)))
	assert.True(t, summary.TotalCredits.Equal(decimal.NewFromInt(100)))
	assert.True(t, summary.NetAmount.IsZero())
	assert.Equal(t, 2, summary.EntryCount)
	assert.True(t, summary.Accounts["CUSTOMER:cus_1"].Equal(decimal.NewFromInt(100)))
	assert.True(t, summary.Accounts["PLATFORM"].Equal(decimal.NewFromInt(-100)))
}

func TestValidateEntries_Balanced(t *testing.T) {
	entries := []*LedgerEntry{
		entry(AccountTypeCustomer, "cus_1", 49.995),
		entry(AccountTypePlatform, "", -50),
	}

	validation := ValidateEntries("rfd_123", entries)

	assert.True(t, validation.IsBalanced, "a discrepancy under the minor unit tolerance is balanced")
}

func TestValidateEntries_Unbalanced(t *testing.T) {
	entries := []*LedgerEntry{
		entry(AccountTypeCustomer, "cus_1", 100),
		entry(AccountTypePlatform, "", -75),
	}

	validation := ValidateEntries("rfd_123", entries)

	assert.False(t, validation.IsBalanced)
	assert.True(t, validation.Discrepancy.Equal(decimal.NewFromInt(25)))
}

func TestLedgerEntryInputValidate(t *testing.T) {
	valid := LedgerEntryInput{
		SubjectID:   "rfd_123",
		EntryType:   EntryTypeRefundProcessed,
		AccountType: AccountTypeCustomer,
		AccountID:   "cus_1",
		Amount:      decimal.NewFromInt(25),
		Currency:    "USD",
		Description: "refund to customer",
	}
	assert.NoError(t, valid.Validate())

	zeroAmount := valid
	zeroAmount.Amount = decimal.Zero
	assert.ErrorIs(t, zeroAmount.Validate(), ErrZeroAmount)

	badAccount := valid
	badAccount.AccountType = "WAREHOUSE"
	assert.ErrorIs(t, badAccount.Validate(), ErrUnknownAccountType)

	badEntry := valid
	badEntry.EntryType = "UNKNOWN"
	assert.ErrorIs(t, badEntry.Validate(), ErrUnknownEntryType)

	noDescription := valid
	noDescription.Description = ""
	assert.ErrorIs(t, noDescription.Validate(), ErrDescriptionRequired)

	noSubject := valid
	noSubject.SubjectID = ""
	assert.ErrorIs(t, noSubject.Validate(), ErrSubjectRequired)
}

func TestAccountScopeKey(t *testing.T) {
	assert.Equal(t, "CUSTOMER:cus_1", AccountScope{AccountType: AccountTypeCustomer, AccountID: "cus_1"}.Key())
	assert.Equal(t, "PLATFORM", AccountScope{AccountType: AccountTypePlatform}.Key())
}
