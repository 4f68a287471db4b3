package coordinator

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/shepherdwind/bean-talk/internal/common"
	"github.com/shepherdwind/bean-talk/internal/model"
)

// ParseBill reads "[CUR] <amount> <description>", e.g. "12.50 lunch" or
// "USD 9.99 app store".
func ParseBill(text, defaultCurrency string) (model.Amount, string, error) {
	fields := strings.Fields(text)
	currency := defaultCurrency
	if len(fields) > 0 && isCurrencyCode(fields[0]) {
		currency = fields[0]
		fields = fields[1:]
	}
	if len(fields) < 2 {
		return model.Amount{}, "", fmt.Errorf("%w: expected amount and description", common.ErrInvalidBill)
	}

	raw := strings.TrimLeft(fields[0], "$")
	value, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return model.Amount{}, "", fmt.Errorf("%w: amount %q: %v", common.ErrInvalidBill, fields[0], err)
	}
	if !value.IsPositive() {
		return model.Amount{}, "", fmt.Errorf("%w: amount must be positive", common.ErrInvalidBill)
	}

	description := strings.Join(fields[1:], " ")
	return model.NewAmount(value, currency), description, nil
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
