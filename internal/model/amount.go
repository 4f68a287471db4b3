package model

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Amount is a decimal value in a single currency.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

// NewAmount builds an Amount, normalizing the currency code to upper case.
func NewAmount(value decimal.Decimal, currency string) Amount {
	return Amount{Value: value, Currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// Neg returns the amount with its sign flipped.
func (a Amount) Neg() Amount {
	return Amount{Value: a.Value.Neg(), Currency: a.Currency}
}

// IsZero reports whether the value is zero.
func (a Amount) IsZero() bool {
	return a.Value.IsZero()
}

// String formats the amount the way ledger postings expect it: "20.00 USD".
func (a Amount) String() string {
	return a.Value.StringFixed(2) + " " + a.Currency
}

// Display formats the amount for humans using the currency's symbol and
// fraction digits. Unknown currencies fall back to String.
func (a Amount) Display() string {
	cur := money.GetCurrency(a.Currency)
	if cur == nil {
		return a.String()
	}

	factor := decimal.New(1, int32(cur.Fraction))
	minor := a.Value.Mul(factor).Round(0)
	return money.New(minor.IntPart(), a.Currency).Display()
}
