package model

import "errors"

var (
	ErrSubjectRequired     = errors.New("ledger entry subject id is required")
	ErrZeroAmount          = errors.New("ledger entry amount must be non-zero")
	ErrUnknownAccountType  = errors.New("unknown ledger account type")
	ErrUnknownEntryType    = errors.New("unknown ledger entry type")
	ErrDescriptionRequired = errors.New("ledger entry description is required")
	ErrCurrencyRequired    = errors.New("ledger entry currency is required")
)
