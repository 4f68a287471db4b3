package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shepherdwind/bean-talk/internal/common"
	"github.com/shepherdwind/bean-talk/internal/model"
	"github.com/shepherdwind/bean-talk/internal/queue"
)

const (
	msgBillCancelled = "Bill input cancelled."
	msgUnavailable   = "This command is not available right now."
)

// HandleText processes a free-text message according to the chat's state.
func (c *Coordinator) HandleText(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	s := *c.sessionLocked(chatID)
	c.mu.Unlock()

	switch s.state {
	case StateAwaitingCategorizationInput:
		return c.suggest(ctx, chatID, s.merchantID, text)
	case StateAwaitingBillInput:
		return c.recordBill(ctx, chatID, text)
	default:
		return c.reply(ctx, chatID, msgIdleHint)
	}
}

// HandleCallback processes an inline button press.
func (c *Coordinator) HandleCallback(ctx context.Context, chatID int64, data string) error {
	parts := strings.Split(data, ":")
	if len(parts) < 2 {
		return fmt.Errorf("%w: %q", common.ErrUnknownCallback, data)
	}
	prefix, short := parts[0], parts[1]

	c.mu.Lock()
	merchantID, ok := c.shortIDs.get(short)
	task, known := c.tasks[merchantID]
	c.mu.Unlock()

	if prefix != callbackCategorize && prefix != callbackSelect && prefix != callbackCancel {
		return fmt.Errorf("%w: %q", common.ErrUnknownCallback, data)
	}
	if !ok || !known {
		return c.reply(ctx, chatID, msgExpired)
	}

	switch prefix {
	case callbackCategorize:
		c.setState(chatID, StateAwaitingCategorizationInput, merchantID)
		return c.reply(ctx, chatID, fmt.Sprintf(msgCategorizationPrompt, escape(task.Merchant)))

	case callbackSelect:
		if len(parts) < 3 {
			return fmt.Errorf("%w: %q", common.ErrUnknownCallback, data)
		}
		category := strings.TrimSpace(pickSuggestion(c.suggestionFor(merchantID), parts[2]))
		if category == "" {
			return c.reply(ctx, chatID, msgExpired)
		}
		c.setState(chatID, StateIdle, "")
		err := c.reply(ctx, chatID, fmt.Sprintf(msgCategorySelected, escape(task.Merchant), escape(category)))
		c.publishSelection(ctx, merchantID, category)
		return err

	default:
		c.setState(chatID, StateIdle, "")
		err := c.reply(ctx, chatID, fmt.Sprintf(msgCancelled, escape(task.Merchant)))
		c.publishSelection(ctx, merchantID, "")
		return err
	}
}

// HandleCommand processes a slash command. command has no leading slash.
func (c *Coordinator) HandleCommand(ctx context.Context, chatID int64, command, args string) error {
	args = strings.TrimSpace(args)

	switch strings.ToLower(command) {
	case "start", "help":
		return c.reply(ctx, chatID, msgHelp)
	case "cancel":
		return c.cancel(ctx, chatID)
	case "add":
		if args != "" {
			return c.recordBill(ctx, chatID, args)
		}
		c.setState(chatID, StateAwaitingBillInput, "")
		return c.reply(ctx, chatID, msgBillPrompt)
	case "check":
		return c.check(ctx, chatID)
	case "report":
		return c.report(ctx, chatID, args)
	case "status":
		return c.status(ctx, chatID)
	default:
		return c.reply(ctx, chatID, msgIdleHint)
	}
}

func (c *Coordinator) cancel(ctx context.Context, chatID int64) error {
	c.mu.Lock()
	s := c.sessionLocked(chatID)
	prev, merchantID := s.state, s.merchantID
	s.state, s.merchantID = StateIdle, ""
	task, known := c.tasks[merchantID]
	c.mu.Unlock()

	switch prev {
	case StateAwaitingCategorizationInput:
		if !known {
			return c.reply(ctx, chatID, msgNothingToCancel)
		}
		err := c.reply(ctx, chatID, fmt.Sprintf(msgCancelled, escape(task.Merchant)))
		c.publishSelection(ctx, merchantID, "")
		return err
	case StateAwaitingBillInput:
		return c.reply(ctx, chatID, msgBillCancelled)
	default:
		return c.reply(ctx, chatID, msgNothingToCancel)
	}
}

func (c *Coordinator) suggest(ctx context.Context, chatID int64, merchantID, hint string) error {
	c.mu.Lock()
	task, ok := c.tasks[merchantID]
	c.mu.Unlock()
	if !ok {
		c.setState(chatID, StateIdle, "")
		return c.reply(ctx, chatID, msgExpired)
	}
	if c.deps.Suggester == nil {
		return c.reply(ctx, chatID, msgSuggestionFailed)
	}

	if err := c.send(ctx, chatID, msgAnalyzing, nil); err != nil {
		slog.Warn("Failed to send progress message", "merchant", task.Merchant, "error", err)
	}

	suggestion, err := c.deps.Suggester.SuggestCategories(ctx, task.Merchant, hint, c.deps.Store.Categories())
	if err != nil {
		slog.Error("Category suggestion failed", "merchant", task.Merchant, "error", err)
		return c.reply(ctx, chatID, common.UserMessage(err, msgSuggestionFailed))
	}

	c.mu.Lock()
	c.suggestions[merchantID] = suggestion
	short := c.shortIDs.put(merchantID)
	c.mu.Unlock()

	return c.send(ctx, chatID, fmt.Sprintf(msgChooseCategory, escape(task.Merchant)), suggestionButtons(short, suggestion))
}

func (c *Coordinator) recordBill(ctx context.Context, chatID int64, text string) error {
	amount, description, err := ParseBill(text, c.cfg.DefaultCurrency)
	if err != nil {
		slog.Debug("Rejected bill input", "text", text, "error", err)
		return c.reply(ctx, chatID, msgBillPrompt)
	}
	if c.deps.Recorder == nil {
		return c.reply(ctx, chatID, msgUnavailable)
	}

	category, ok := c.deps.Store.FindCategory(description)
	if !ok {
		category = c.cfg.DefaultExpenseAccount
	}

	tx := &model.Transaction{
		ID:        c.newTransactionID(),
		Date:      c.cfg.Now(),
		Amount:    amount,
		Merchant:  description,
		Narration: description,
		Account:   c.cfg.CashAccount,
		Category:  category,
		Source:    model.SourceCash,
	}
	tx.Hash = tx.GenerateHash()

	if err := c.deps.Recorder.RecordTransaction(ctx, tx); err != nil {
		slog.Error("Failed to record bill", "description", description, "error", err)
		_ = c.reply(ctx, chatID, msgBillFailed)
		return err
	}

	c.setState(chatID, StateIdle, "")
	return c.reply(ctx, chatID, fmt.Sprintf(msgBillRecorded, escape(amount.Display()), escape(description), escape(category)))
}

func (c *Coordinator) check(ctx context.Context, chatID int64) error {
	if c.deps.Scanner == nil {
		return c.reply(ctx, chatID, msgUnavailable)
	}
	result, err := c.deps.Scanner.Trigger(ctx)
	if err != nil {
		slog.Error("Manual scan failed", "error", err)
		return c.reply(ctx, chatID, msgScanFailed)
	}
	return c.reply(ctx, chatID, fmt.Sprintf(msgScanFinished, result.Recorded, result.Unresolved, result.Failed))
}

func (c *Coordinator) report(ctx context.Context, chatID int64, args string) error {
	if c.deps.Journal == nil {
		return c.reply(ctx, chatID, msgReportUnavailable)
	}

	days := c.cfg.ReportDays
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			return c.reply(ctx, chatID, "Usage: /report [days]")
		}
		days = n
	}

	end := c.cfg.Now()
	start := end.AddDate(0, 0, -days)
	totals, err := c.deps.Journal.SpendingByAccount(ctx, start, end)
	if err != nil {
		slog.Error("Failed to build report", "error", err)
		return c.reply(ctx, chatID, msgReportUnavailable)
	}
	if len(totals) == 0 {
		return c.reply(ctx, chatID, fmt.Sprintf(msgReportEmpty, days))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Spending, last %d days</b>\n<pre>", days)
	for _, t := range totals {
		fmt.Fprintf(&b, "%-32s %12s %s (%d)\n", escape(t.Account), t.Total, t.Currency, t.Count)
	}
	b.WriteString("</pre>")
	return c.reply(ctx, chatID, b.String())
}

func (c *Coordinator) status(ctx context.Context, chatID int64) error {
	items := c.deps.Queue.Snapshot()
	current, ok := c.deps.Queue.InFlight()
	if len(items) == 0 || !ok {
		return c.reply(ctx, chatID, msgStatusIdle)
	}
	text := fmt.Sprintf(msgStatusQueue, len(items), escape(queuedMerchant(current)))

	var next []string
	for _, item := range items {
		if item.TaskID != current.TaskID {
			next = append(next, escape(queuedMerchant(item)))
		}
	}
	if len(next) > 0 {
		text += "\n" + fmt.Sprintf(msgStatusNext, strings.Join(next, ", "))
	}
	return c.reply(ctx, chatID, text)
}

func queuedMerchant(item queue.Item) string {
	if task, err := needsPayload(item.Payload); err == nil {
		return task.Merchant
	}
	return item.TaskID
}
