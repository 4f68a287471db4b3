package telegram

import (
	"context"
	"errors"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shepherdwind/bean-talk/internal/common"
)

const msgFailed = "Something went wrong, please try again."

// Handler receives chat input. It is implemented by the coordinator.
type Handler interface {
	HandleText(ctx context.Context, chatID int64, text string) error
	HandleCallback(ctx context.Context, chatID int64, data string) error
	HandleCommand(ctx context.Context, chatID int64, command, args string) error
}

// Poller long-polls the Bot API and routes updates to a Handler.
type Poller struct {
	bot      Bot
	handler  Handler
	notifier *Notifier
	chatID   int64
	timeout  int
}

// NewPoller creates a poller. When chatID is non-zero, updates from any other
// chat are ignored.
func NewPoller(bot Bot, handler Handler, chatID int64) *Poller {
	return &Poller{
		bot:      bot,
		handler:  handler,
		notifier: NewNotifier(bot),
		chatID:   chatID,
		timeout:  30,
	}
}

// Run processes updates until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.timeout
	updates := p.bot.GetUpdatesChan(u)
	defer p.bot.StopReceivingUpdates()

	slog.Info("Telegram polling started", "bot", p.bot.GetSelf().UserName)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Telegram polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			p.handleUpdate(ctx, update)
		}
	}
}

func (p *Poller) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		p.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		p.handleMessage(ctx, update.Message)
	}
}

func (p *Poller) allowed(chatID int64) bool {
	return p.chatID == 0 || p.chatID == chatID
}

func (p *Poller) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !p.allowed(msg.Chat.ID) {
		if msg.Chat != nil {
			slog.Warn("Rejected message from unknown chat", "chat_id", msg.Chat.ID)
		}
		return
	}

	var err error
	if msg.IsCommand() {
		err = p.handler.HandleCommand(ctx, msg.Chat.ID, msg.Command(), msg.CommandArguments())
	} else {
		err = p.handler.HandleText(ctx, msg.Chat.ID, msg.Text)
	}
	p.report(ctx, msg.Chat.ID, err)
}

func (p *Poller) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := p.bot.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		slog.Warn("Failed to answer callback query", "error", err)
	}

	if q.Message == nil || q.Message.Chat == nil || !p.allowed(q.Message.Chat.ID) {
		slog.Warn("Rejected callback from unknown chat")
		return
	}

	err := p.handler.HandleCallback(ctx, q.Message.Chat.ID, q.Data)
	p.report(ctx, q.Message.Chat.ID, err)
}

// report logs a handler failure and tells the user when the error carries a
// message meant for them.
func (p *Poller) report(ctx context.Context, chatID int64, err error) {
	if err == nil {
		return
	}
	slog.Error("Failed to handle telegram update", "chat_id", chatID, "error", err)

	var userErr *common.UserError
	if !errors.As(err, &userErr) {
		return
	}
	if sendErr := p.notifier.SendMessage(ctx, chatID, common.UserMessage(err, msgFailed), nil); sendErr != nil {
		slog.Error("Failed to send error reply", "chat_id", chatID, "error", sendErr)
	}
}
