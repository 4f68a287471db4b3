package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdwind/bean-talk/internal/common"
)

func TestParseBill(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		value       string
		currency    string
		description string
		wantErr     bool
	}{
		{name: "amount and description", input: "12.50 lunch at hawker", value: "12.5", currency: "SGD", description: "lunch at hawker"},
		{name: "currency prefix", input: "usd 9.99 app store", value: "9.99", currency: "USD", description: "app store"},
		{name: "dollar sign and thousands", input: "$1,200 new laptop", value: "1200", currency: "SGD", description: "new laptop"},
		{name: "missing description", input: "12.50", wantErr: true},
		{name: "not a number", input: "twelve lunch", wantErr: true},
		{name: "zero", input: "0 nothing", wantErr: true},
		{name: "negative", input: "-5 refund", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, description, err := ParseBill(tt.input, "SGD")
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrInvalidBill)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.value, amount.Value.String())
			assert.Equal(t, tt.currency, amount.Currency)
			assert.Equal(t, tt.description, description)
		})
	}
}
