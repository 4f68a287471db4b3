package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Source identifies where a transaction was discovered.
type Source string

const (
	// SourceEmail marks transactions parsed from bank alert emails.
	SourceEmail Source = "email"
	// SourceOFX marks transactions imported from OFX/QFX statements.
	SourceOFX Source = "ofx"
	// SourceCash marks transactions entered by hand through the chat bot.
	SourceCash Source = "cash"
)

// Transaction represents a single spend extracted from a bank notice.
type Transaction struct {
	Date      time.Time
	Amount    Amount
	ID        string
	Merchant  string // Counterparty as printed by the bank
	Narration string
	Card      string // Card or account the bank debited, e.g. "DBS/POSB card ending 8558"
	Account   string // Ledger asset account the money left
	Category  string // Ledger expense account, empty until resolved
	Recipient string // Mailbox the alert was delivered to
	EmailID   string
	Source    Source
	Hash      string
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		t.Date.UTC().Format(time.RFC3339),
		t.Amount.String(),
		t.Merchant,
		t.Card)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// Posting is one leg of a balanced ledger entry.
type Posting struct {
	Account string
	Amount  Amount
}

// Metadata is a single key/value annotation on a ledger entry.
type Metadata struct {
	Key   string
	Value string
}

// Entry is a complete double-entry ledger record.
type Entry struct {
	Date      time.Time
	Narration string
	Postings  []Posting
	Metadata  []Metadata
}

// EntryFor builds the two-posting entry for a resolved transaction: the
// category receives the spend and the asset account is credited.
func EntryFor(tx Transaction) Entry {
	narration := tx.Narration
	if narration == "" {
		narration = tx.Merchant
	}

	entry := Entry{
		Date:      tx.Date,
		Narration: narration,
		Postings: []Posting{
			{Account: tx.Account, Amount: tx.Amount.Neg()},
			{Account: tx.Category, Amount: tx.Amount},
		},
	}
	if tx.EmailID != "" {
		entry.Metadata = append(entry.Metadata, Metadata{Key: "emailId", Value: tx.EmailID})
	}
	if tx.Card != "" {
		entry.Metadata = append(entry.Metadata, Metadata{Key: "card", Value: tx.Card})
	}
	if tx.Source != "" {
		entry.Metadata = append(entry.Metadata, Metadata{Key: "source", Value: string(tx.Source)})
	}
	return entry
}
