package storage

import (
	"errors"
	"fmt"

	"github.com/shepherdwind/bean-talk/internal/model"
)

// Validation errors.
var (
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// validateTransaction checks that txn carries everything a journal row and a
// spending report need.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	var missing string
	switch {
	case txn.ID == "":
		missing = "id"
	case txn.Hash == "":
		missing = "hash"
	case txn.Date.IsZero():
		missing = "date"
	case txn.Merchant == "":
		missing = "merchant"
	case txn.Account == "":
		missing = "asset account"
	case txn.Category == "":
		missing = "category"
	case txn.Amount.Currency == "":
		missing = "currency"
	default:
		return nil
	}
	return fmt.Errorf("%w: %s %q has no %s", ErrInvalidTransaction, txn.Source, txn.Merchant, missing)
}
