package model

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Event names carried on the bus.
const (
	EventMerchantNeedsCategorization = "merchantNeedsCategorization"
	EventMerchantCategorySelected    = "merchantCategorySelected"
)

// MerchantNeedsCategorization is published when ingestion meets a merchant
// the category store cannot resolve.
type MerchantNeedsCategorization struct {
	Timestamp  time.Time
	Amount     *Amount
	Merchant   string
	MerchantID string
	EmailRef   string
	Recipient  string
}

// MerchantName identifies the merchant a queued payload belongs to.
func (e MerchantNeedsCategorization) MerchantName() string {
	return e.Merchant
}

// MerchantCategorySelected carries a human decision. An empty
// SelectedCategory means the merchant was skipped.
type MerchantCategorySelected struct {
	MerchantID       string
	Merchant         string
	SelectedCategory string
}

// Skipped reports whether the selection leaves the merchant uncategorized.
func (e MerchantCategorySelected) Skipped() bool {
	return strings.TrimSpace(e.SelectedCategory) == ""
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// MerchantID derives the categorization id for a merchant discovered at the
// given time: a lowercase slug followed by the unix timestamp.
func MerchantID(merchant string, at time.Time) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(merchant), "_"), "_")
	if slug == "" {
		slug = "merchant"
	}
	return slug + "_" + strconv.FormatInt(at.Unix(), 10)
}
