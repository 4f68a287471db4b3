// Package ingest scans the mailbox for bank alerts and records what it can
// resolve, asking for categories for the rest.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/shepherdwind/bean-talk/internal/bus"
	"github.com/shepherdwind/bean-talk/internal/common"
	"github.com/shepherdwind/bean-talk/internal/metrics"
	"github.com/shepherdwind/bean-talk/internal/model"
	"github.com/shepherdwind/bean-talk/internal/parser"
	"github.com/shepherdwind/bean-talk/internal/service"
)

// Publisher announces merchants that need a category.
type Publisher interface {
	Publish(ctx context.Context, ev bus.Event)
}

// Deps are the collaborators of a Scanner. Notifier and Metrics are optional.
type Deps struct {
	Mailbox  service.Mailbox
	Parsers  *parser.Registry
	Store    service.CategoryStore
	Ledger   service.Ledger
	Journal  service.Journal
	Bus      Publisher
	Notifier service.Notifier
	Metrics  *metrics.Metrics
}

// Config holds scanner settings.
type Config struct {
	AssetAccounts       map[string]string // Card or recipient fragment to asset account
	DefaultAssetAccount string
	NotifyRetry         service.RetryOptions
	ChatID              int64
}

// Result summarizes one scan.
type Result struct {
	ScanID     string
	Seen       int
	Recorded   int
	Unresolved int
	Duplicates int
	Skipped    int
	Failed     int
}

// Scanner turns unread alert emails into ledger entries.
type Scanner struct {
	deps  Deps
	group singleflight.Group
	cfg   Config
	mu    sync.Mutex // serializes ledger and journal writes
}

// New creates a scanner.
func New(deps Deps, cfg Config) *Scanner {
	if cfg.DefaultAssetAccount == "" {
		cfg.DefaultAssetAccount = "Assets:DBS:SGD:Saving"
	}
	if cfg.NotifyRetry.MaxAttempts <= 0 {
		cfg.NotifyRetry = service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 2 * time.Second,
			MaxDelay:     2 * time.Second,
			Multiplier:   1,
		}
	}
	return &Scanner{deps: deps, cfg: cfg}
}

// Trigger runs a scan, joining one that is already running.
func (s *Scanner) Trigger(ctx context.Context) (Result, error) {
	result, _, err := s.trigger(ctx)
	return result, err
}

func (s *Scanner) trigger(ctx context.Context) (Result, bool, error) {
	v, err, shared := s.group.Do("scan", func() (any, error) {
		return s.Scan(ctx)
	})
	result, _ := v.(Result)
	return result, shared, err
}

// ScanAfterDrain starts a scan in the background. If a scan was already
// running it may have missed the latest categories, so one more runs after it.
func (s *Scanner) ScanAfterDrain(ctx context.Context) {
	go func() {
		for range 2 {
			_, shared, err := s.trigger(ctx)
			if err != nil {
				slog.Error("Re-scan after queue drain failed", "error", err)
			}
			if !shared {
				return
			}
		}
	}()
}

// Scan processes every unread alert once. Failures on one email are logged
// and do not stop the others.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{ScanID: uuid.NewString()}
	logger := slog.With("scan_id", result.ScanID)

	if s.deps.Mailbox == nil {
		return result, fmt.Errorf("%w: no mailbox configured", common.ErrMissingConfig)
	}
	emails, err := s.deps.Mailbox.ListUnread(ctx)
	if err != nil {
		s.deps.Metrics.ObserveScan(time.Since(start), err)
		return result, fmt.Errorf("failed to list emails: %w", err)
	}
	logger.Info("Scanning mailbox", "emails", len(emails))

	for _, email := range emails {
		if ctx.Err() != nil {
			s.deps.Metrics.ObserveScan(time.Since(start), ctx.Err())
			return result, ctx.Err()
		}
		result.Seen++
		if err := s.processEmail(ctx, email, &result); err != nil {
			result.Failed++
			logger.Error("Failed to process email", "email_id", email.ID, "subject", email.Subject, "error", err)
		}
	}

	s.deps.Metrics.ObserveScan(time.Since(start), nil)
	logger.Info("Scan finished",
		"seen", result.Seen,
		"recorded", result.Recorded,
		"unresolved", result.Unresolved,
		"duplicates", result.Duplicates,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", time.Since(start))
	return result, nil
}

func (s *Scanner) processEmail(ctx context.Context, email model.Email, result *Result) error {
	p := s.deps.Parsers.Find(email)
	if p == nil {
		result.Skipped++
		slog.Debug("No parser for email", "email_id", email.ID, "subject", email.Subject)
		return nil
	}

	tx, err := p.Parse(email)
	if err != nil {
		s.deps.Metrics.IncTransaction(string(model.SourceEmail), "failed")
		return fmt.Errorf("%s parser: %w", p.Name(), err)
	}
	tx.EmailID = email.ID
	tx.Recipient = email.To
	tx.Source = model.SourceEmail
	tx.Account = s.assetAccount(tx)

	done, err := s.deps.Journal.HasTransaction(ctx, tx.EmailID, tx.Hash)
	if err != nil {
		return fmt.Errorf("failed to check journal: %w", err)
	}
	if done {
		result.Duplicates++
		s.deps.Metrics.IncTransaction(string(tx.Source), "duplicate")
		return s.deps.Mailbox.MarkAsRead(ctx, email.ID)
	}

	category, ok := s.deps.Store.FindCategory(tx.Merchant)
	if !ok {
		return s.requestCategory(ctx, tx, result)
	}
	tx.Category = category

	if err := s.RecordTransaction(ctx, tx); err != nil {
		return err
	}
	result.Recorded++

	if err := s.deps.Mailbox.MarkAsRead(ctx, email.ID); err != nil {
		slog.Warn("Failed to mark email as read", "email_id", email.ID, "error", err)
	}
	s.notifyRecorded(ctx, tx)
	return nil
}

// requestCategory parks the merchant as unresolved and asks for a category.
// The email stays unread so a later scan records it.
func (s *Scanner) requestCategory(ctx context.Context, tx *model.Transaction, result *Result) error {
	if err := s.deps.Store.AddUnresolvedMerchant(tx.Merchant, ""); err != nil {
		return fmt.Errorf("failed to park merchant %s: %w", tx.Merchant, err)
	}

	amount := tx.Amount
	s.deps.Bus.Publish(ctx, bus.Event{
		Name: model.EventMerchantNeedsCategorization,
		Payload: model.MerchantNeedsCategorization{
			Merchant:   tx.Merchant,
			MerchantID: model.MerchantID(tx.Merchant, tx.Date),
			Timestamp:  tx.Date,
			Amount:     &amount,
			EmailRef:   tx.EmailID,
			Recipient:  tx.Recipient,
		},
	})

	result.Unresolved++
	s.deps.Metrics.IncTransaction(string(tx.Source), "unresolved")
	slog.Info("Merchant needs categorization", "merchant", tx.Merchant, "email_id", tx.EmailID)
	return nil
}

// RecordTransaction appends tx to the ledger and remembers it in the journal.
func (s *Scanner) RecordTransaction(ctx context.Context, tx *model.Transaction) error {
	if tx.Category == "" {
		return fmt.Errorf("%w: %s", common.ErrUnresolvedMerchant, tx.Merchant)
	}
	if tx.Account == "" {
		tx.Account = s.assetAccount(tx)
	}
	if tx.Hash == "" {
		tx.Hash = tx.GenerateHash()
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deps.Ledger.Append(ctx, model.EntryFor(*tx)); err != nil {
		s.deps.Metrics.IncTransaction(string(tx.Source), "failed")
		return fmt.Errorf("failed to append to ledger: %w", err)
	}
	if err := s.deps.Journal.SaveTransaction(ctx, tx); err != nil {
		if !errors.Is(err, common.ErrDuplicateEntry) {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		slog.Warn("Transaction already journaled", "merchant", tx.Merchant, "hash", tx.Hash)
	}

	s.deps.Metrics.IncTransaction(string(tx.Source), "recorded")
	slog.Info("Transaction recorded",
		"merchant", tx.Merchant,
		"amount", tx.Amount.String(),
		"category", tx.Category,
		"account", tx.Account)
	return nil
}

func (s *Scanner) assetAccount(tx *model.Transaction) string {
	fragments := slices.SortedFunc(maps.Keys(s.cfg.AssetAccounts), func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	for _, candidate := range []string{tx.Card, tx.Recipient} {
		lower := strings.ToLower(candidate)
		if lower == "" {
			continue
		}
		for _, fragment := range fragments {
			if fragment != "" && strings.Contains(lower, strings.ToLower(fragment)) {
				return s.cfg.AssetAccounts[fragment]
			}
		}
	}
	return s.cfg.DefaultAssetAccount
}

func (s *Scanner) notifyRecorded(ctx context.Context, tx *model.Transaction) {
	if s.deps.Notifier == nil || s.cfg.ChatID == 0 {
		return
	}
	text := fmt.Sprintf("New transaction:\n<b>%s</b> %s\n%s",
		html.EscapeString(tx.Merchant),
		html.EscapeString(tx.Amount.Display()),
		html.EscapeString(tx.Category))

	err := common.WithRetry(ctx, "send transaction notice", s.cfg.NotifyRetry, func(int) error {
		return s.deps.Notifier.SendMessage(ctx, s.cfg.ChatID, text, nil)
	})
	if err != nil {
		slog.Warn("Failed to send transaction notice", "merchant", tx.Merchant, "error", err)
	}
}
