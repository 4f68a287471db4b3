// Package coordinator drives merchant categorization: it queues merchants
// that need a category, prompts the user one merchant at a time and feeds
// decisions back into the category store.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shepherdwind/bean-talk/internal/bus"
	"github.com/shepherdwind/bean-talk/internal/common"
	"github.com/shepherdwind/bean-talk/internal/ingest"
	"github.com/shepherdwind/bean-talk/internal/metrics"
	"github.com/shepherdwind/bean-talk/internal/model"
	"github.com/shepherdwind/bean-talk/internal/queue"
	"github.com/shepherdwind/bean-talk/internal/service"
)

// ErrMalformedEvent is returned for event payloads the coordinator cannot use.
var ErrMalformedEvent = errors.New("malformed event payload")

// EventBus is the subset of the bus the coordinator uses.
type EventBus interface {
	Subscribe(name string, h bus.Handler)
	Publish(ctx context.Context, ev bus.Event)
}

// TaskQueue serializes categorization prompts.
type TaskQueue interface {
	Enqueue(ctx context.Context, eventName string, payload any, taskID string) bool
	CompleteTask(ctx context.Context, taskID string) bool
	ClearTasksByMerchant(merchant string) int
	InFlight() (queue.Item, bool)
	Snapshot() []queue.Item
}

// Recorder writes a resolved transaction to the ledger.
type Recorder interface {
	RecordTransaction(ctx context.Context, tx *model.Transaction) error
}

// Scanner runs a mailbox scan on demand.
type Scanner interface {
	Trigger(ctx context.Context) (ingest.Result, error)
}

// Deps are the collaborators of a Coordinator. Suggester, Recorder, Scanner,
// Journal and Metrics are optional.
type Deps struct {
	Store     service.CategoryStore
	Bus       EventBus
	Queue     TaskQueue
	Notifier  service.Notifier
	Suggester service.Suggester
	Recorder  Recorder
	Scanner   Scanner
	Journal   service.Journal
	Metrics   *metrics.Metrics
}

// Config holds coordinator settings.
type Config struct {
	Now                   func() time.Time
	Mentions              map[string]string // Recipient address or "@domain" to chat mention
	DefaultExpenseAccount string
	CashAccount           string
	DefaultCurrency       string
	NotifyRetry           service.RetryOptions
	ChatID                int64 // Chat that receives categorization prompts
	ReportDays            int
}

// DefaultConfig returns settings suitable for a single-user deployment.
func DefaultConfig() Config {
	return Config{
		DefaultExpenseAccount: "Expenses:Uncategorized",
		CashAccount:           "Assets:Cash",
		DefaultCurrency:       "SGD",
		ReportDays:            30,
		NotifyRetry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 2 * time.Second,
			MaxDelay:     2 * time.Second,
			Multiplier:   1,
		},
		Now: time.Now,
	}
}

// Coordinator bridges the task queue, the category store and the chat.
type Coordinator struct {
	deps        Deps
	sessions    map[int64]*session
	tasks       map[string]model.MerchantNeedsCategorization
	suggestions map[string]*service.Suggestion
	skipped     map[string]string // merchant id -> merchant, left uncategorized by the user
	shortIDs    *shortIDTable
	mentions    map[string]string
	cfg         Config
	mu          sync.Mutex
}

// New creates a coordinator. Call Register to subscribe it to the bus.
func New(deps Deps, cfg Config) *Coordinator {
	defaults := DefaultConfig()
	if cfg.Now == nil {
		cfg.Now = defaults.Now
	}
	if cfg.DefaultExpenseAccount == "" {
		cfg.DefaultExpenseAccount = defaults.DefaultExpenseAccount
	}
	if cfg.CashAccount == "" {
		cfg.CashAccount = defaults.CashAccount
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = defaults.DefaultCurrency
	}
	if cfg.ReportDays <= 0 {
		cfg.ReportDays = defaults.ReportDays
	}
	if cfg.NotifyRetry.MaxAttempts <= 0 {
		cfg.NotifyRetry = defaults.NotifyRetry
	}

	mentions := make(map[string]string, len(cfg.Mentions))
	for k, v := range cfg.Mentions {
		mentions[strings.ToLower(strings.TrimSpace(k))] = v
	}

	return &Coordinator{
		deps:        deps,
		cfg:         cfg,
		sessions:    make(map[int64]*session),
		tasks:       make(map[string]model.MerchantNeedsCategorization),
		suggestions: make(map[string]*service.Suggestion),
		skipped:     make(map[string]string),
		shortIDs:    newShortIDTable(),
		mentions:    mentions,
	}
}

// Register subscribes the coordinator's handlers. The store update runs
// before the task completes so a drain re-scan sees the new mapping.
func (c *Coordinator) Register() {
	c.deps.Bus.Subscribe(model.EventMerchantNeedsCategorization, c.onNeedsCategorization)
	c.deps.Bus.Subscribe(bus.QueueTopic(model.EventMerchantNeedsCategorization), c.onPrompt)
	c.deps.Bus.Subscribe(model.EventMerchantCategorySelected, c.onSelectionPersist)
	c.deps.Bus.Subscribe(model.EventMerchantCategorySelected, c.onSelectionComplete)
}

func (c *Coordinator) onNeedsCategorization(ctx context.Context, ev bus.Event) error {
	task, err := needsPayload(ev.Payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	_, skipped := c.skipped[task.MerchantID]
	c.mu.Unlock()
	if skipped {
		slog.Debug("Merchant was skipped, not prompting again",
			"merchant", task.Merchant,
			"merchant_id", task.MerchantID)
		c.deps.Metrics.IncPrompt("suppressed")
		return nil
	}

	c.deps.Queue.ClearTasksByMerchant(task.Merchant)

	// Prune tasks for the same merchant that are no longer queued. The queue
	// is read under c.mu so a task moving in flight meanwhile keeps its entry.
	c.mu.Lock()
	queued := make(map[string]bool)
	for _, item := range c.deps.Queue.Snapshot() {
		queued[item.TaskID] = true
	}
	for id, known := range c.tasks {
		if known.Merchant == task.Merchant && id != task.MerchantID && !queued[id] {
			delete(c.tasks, id)
		}
	}
	c.tasks[task.MerchantID] = task
	c.mu.Unlock()

	c.deps.Queue.Enqueue(ctx, ev.Name, task, task.MerchantID)
	return nil
}

func (c *Coordinator) onPrompt(ctx context.Context, ev bus.Event) error {
	task, err := needsPayload(ev.Payload)
	if err != nil {
		return err
	}

	if category, ok := c.deps.Store.FindCategory(task.Merchant); ok {
		slog.Info("Merchant resolved before prompting",
			"merchant", task.Merchant,
			"merchant_id", task.MerchantID,
			"category", category)
		c.deps.Metrics.IncPrompt("auto_resolved")
		c.forget(task.MerchantID)
		c.deps.Queue.CompleteTask(ctx, task.MerchantID)
		return nil
	}

	c.mu.Lock()
	c.tasks[task.MerchantID] = task
	short := c.shortIDs.put(task.MerchantID)
	s := c.sessionLocked(c.cfg.ChatID)
	if s.state != StateAwaitingBillInput {
		s.state = StateAwaitingCategorizationInput
		s.merchantID = task.MerchantID
	}
	c.mu.Unlock()

	text := renderNotification(task, c.mention(task.Recipient))
	if err := c.send(ctx, c.cfg.ChatID, text, promptButtons(short)); err != nil {
		c.deps.Metrics.IncPrompt("failed")
		return fmt.Errorf("failed to prompt for %s: %w", task.Merchant, err)
	}

	c.deps.Metrics.IncPrompt("sent")
	slog.Info("Categorization prompt sent", "merchant", task.Merchant, "merchant_id", task.MerchantID)
	return nil
}

func (c *Coordinator) onSelectionPersist(_ context.Context, ev bus.Event) error {
	sel, err := selectedPayload(ev.Payload)
	if err != nil {
		return err
	}

	c.deps.Metrics.IncSelection(sel.Skipped())

	merchant := sel.Merchant
	if merchant == "" {
		c.mu.Lock()
		merchant = c.tasks[sel.MerchantID].Merchant
		c.mu.Unlock()
	}

	if sel.Skipped() {
		c.mu.Lock()
		c.skipped[sel.MerchantID] = merchant
		c.mu.Unlock()
		slog.Info("Merchant left uncategorized", "merchant", merchant, "merchant_id", sel.MerchantID)
		return nil
	}
	if merchant == "" {
		return fmt.Errorf("%w: no merchant known for id %s", ErrMalformedEvent, sel.MerchantID)
	}

	if err := c.deps.Store.AddUnresolvedMerchant(merchant, strings.TrimSpace(sel.SelectedCategory)); err != nil {
		return fmt.Errorf("failed to save category for %s: %w", merchant, err)
	}

	// Skipped purchases of this merchant now resolve from the store.
	c.mu.Lock()
	for id, m := range c.skipped {
		if m == merchant {
			delete(c.skipped, id)
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) onSelectionComplete(ctx context.Context, ev bus.Event) error {
	sel, err := selectedPayload(ev.Payload)
	if err != nil {
		return err
	}
	c.forget(sel.MerchantID)
	c.deps.Queue.CompleteTask(ctx, sel.MerchantID)
	return nil
}

// publishSelection announces a decision for merchantID. An empty category skips it.
func (c *Coordinator) publishSelection(ctx context.Context, merchantID, category string) {
	c.mu.Lock()
	merchant := c.tasks[merchantID].Merchant
	c.mu.Unlock()

	c.deps.Bus.Publish(ctx, bus.Event{
		Name: model.EventMerchantCategorySelected,
		Payload: model.MerchantCategorySelected{
			MerchantID:       merchantID,
			Merchant:         merchant,
			SelectedCategory: category,
		},
	})
}

func (c *Coordinator) send(ctx context.Context, chatID int64, text string, buttons [][]service.Button) error {
	return common.WithRetry(ctx, "send chat message", c.cfg.NotifyRetry, func(int) error {
		return c.deps.Notifier.SendMessage(ctx, chatID, text, buttons)
	})
}

func (c *Coordinator) reply(ctx context.Context, chatID int64, text string) error {
	if err := c.send(ctx, chatID, text, nil); err != nil {
		slog.Error("Failed to reply", "chat_id", chatID, "error", err)
		return err
	}
	return nil
}

// mention finds the chat handle configured for an email recipient, by full
// address first and then by "@domain".
func (c *Coordinator) mention(recipient string) string {
	addr := strings.ToLower(strings.TrimSpace(recipient))
	if addr == "" {
		return ""
	}
	if m, ok := c.mentions[addr]; ok {
		return m
	}
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		if m, ok := c.mentions[addr[at:]]; ok {
			return m
		}
	}
	return ""
}

func (c *Coordinator) newTransactionID() string {
	return uuid.NewString()
}

func needsPayload(payload any) (model.MerchantNeedsCategorization, error) {
	var task model.MerchantNeedsCategorization
	switch p := payload.(type) {
	case model.MerchantNeedsCategorization:
		task = p
	case *model.MerchantNeedsCategorization:
		if p == nil {
			return task, fmt.Errorf("%w: nil categorization request", ErrMalformedEvent)
		}
		task = *p
	default:
		return task, fmt.Errorf("%w: unexpected %T", ErrMalformedEvent, payload)
	}
	if strings.TrimSpace(task.Merchant) == "" || task.MerchantID == "" {
		return task, fmt.Errorf("%w: categorization request without merchant", ErrMalformedEvent)
	}
	return task, nil
}

func selectedPayload(payload any) (model.MerchantCategorySelected, error) {
	switch p := payload.(type) {
	case model.MerchantCategorySelected:
		if p.MerchantID == "" {
			return p, fmt.Errorf("%w: selection without merchant id", ErrMalformedEvent)
		}
		return p, nil
	case *model.MerchantCategorySelected:
		if p == nil || p.MerchantID == "" {
			return model.MerchantCategorySelected{}, fmt.Errorf("%w: selection without merchant id", ErrMalformedEvent)
		}
		return *p, nil
	default:
		return model.MerchantCategorySelected{}, fmt.Errorf("%w: unexpected %T", ErrMalformedEvent, payload)
	}
}
