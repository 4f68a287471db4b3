package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount_String(t *testing.T) {
	a := NewAmount(decimal.RequireFromString("20"), "usd")
	assert.Equal(t, "20.00 USD", a.String())
	assert.Equal(t, "-20.00 USD", a.Neg().String())
	assert.False(t, a.IsZero())
}

func TestAmount_Display(t *testing.T) {
	a := NewAmount(decimal.RequireFromString("1234.5"), "USD")
	assert.Equal(t, "$1,234.50", a.Display())

	unknown := NewAmount(decimal.RequireFromString("3"), "XYZ")
	assert.Equal(t, "3.00 XYZ", unknown.Display())
}

func TestMerchantID(t *testing.T) {
	at := time.Unix(1, 0)
	assert.Equal(t, "acme_1", MerchantID("ACME", at))
	assert.Equal(t, "gamma_app_1", MerchantID("GAMMA.APP", at))
	assert.Equal(t, "merchant_1", MerchantID("***", at))
}

func TestMerchantCategorySelected_Skipped(t *testing.T) {
	assert.True(t, MerchantCategorySelected{}.Skipped())
	assert.True(t, MerchantCategorySelected{SelectedCategory: "  "}.Skipped())
	assert.False(t, MerchantCategorySelected{SelectedCategory: "Expenses:Food"}.Skipped())
}

func TestEntryFor(t *testing.T) {
	tx := Transaction{
		Date:     time.Date(2025, 4, 18, 13, 29, 0, 0, time.UTC),
		Amount:   NewAmount(decimal.RequireFromString("20"), "USD"),
		Merchant: "GAMMA.APP",
		Account:  "Assets:DBS:SGD:Saving",
		Category: "Expenses:Software",
		EmailID:  "msg-1",
		Source:   SourceEmail,
	}

	entry := EntryFor(tx)
	require.Len(t, entry.Postings, 2)
	assert.Equal(t, "GAMMA.APP", entry.Narration)
	assert.Equal(t, "Assets:DBS:SGD:Saving", entry.Postings[0].Account)
	assert.Equal(t, "-20.00 USD", entry.Postings[0].Amount.String())
	assert.Equal(t, "Expenses:Software", entry.Postings[1].Account)
	assert.Equal(t, "20.00 USD", entry.Postings[1].Amount.String())
	assert.Contains(t, entry.Metadata, Metadata{Key: "emailId", Value: "msg-1"})
}

func TestTransaction_GenerateHash(t *testing.T) {
	tx := Transaction{Merchant: "A", Amount: NewAmount(decimal.NewFromInt(1), "SGD")}
	h1 := tx.GenerateHash()
	tx.Merchant = "B"
	assert.NotEqual(t, h1, tx.GenerateHash())
	assert.Len(t, h1, 64)
}
