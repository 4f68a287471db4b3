// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/shepherdwind/bean-talk/internal/model"
)

// CategoryStore resolves merchants to ledger categories.
type CategoryStore interface {
	FindCategory(merchant string) (string, bool)
	AddUnresolvedMerchant(merchant, category string) error
	Categories() []string
}

// Mailbox is the source of bank alert emails.
type Mailbox interface {
	ListUnread(ctx context.Context) ([]model.Email, error)
	MarkAsRead(ctx context.Context, id string) error
}

// Ledger appends balanced entries to the plain-text ledger.
type Ledger interface {
	Append(ctx context.Context, entry model.Entry) error
}

// Journal remembers which transactions have already been written to the
// ledger and answers reporting queries over them.
type Journal interface {
	HasTransaction(ctx context.Context, emailID, hash string) (bool, error)
	SaveTransaction(ctx context.Context, tx *model.Transaction) error
	SpendingByAccount(ctx context.Context, start, end time.Time) ([]AccountTotal, error)
}

// AccountTotal is the summed spend of one ledger account in one currency.
type AccountTotal struct {
	Account  string
	Currency string
	Total    string
	Count    int
}

// Button is a selectable option attached to an outgoing message.
type Button struct {
	Text string
	Data string
}

// Notifier delivers messages to the chat the bot serves.
type Notifier interface {
	// SendMessage sends HTML text, optionally with one row of buttons per slice entry.
	SendMessage(ctx context.Context, chatID int64, text string, buttons [][]Button) error
}

// Suggestion is a ranked set of categories proposed for a merchant.
type Suggestion struct {
	Primary     string
	Alternative string
	Suggested   string
}

// Suggester proposes categories for a merchant given free-text context.
type Suggester interface {
	SuggestCategories(ctx context.Context, merchant, hint string, categories []string) (*Suggestion, error)
}

// RetryOptions configures retry behavior.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
