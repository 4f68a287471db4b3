package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shepherdwind/bean-talk/internal/service"
)

// Telegram rejects messages over 4096 characters.
const maxMessageLen = 4000

// Notifier sends HTML messages with optional inline keyboards.
type Notifier struct {
	bot Bot
}

// NewNotifier creates a notifier on bot.
func NewNotifier(bot Bot) *Notifier {
	return &Notifier{bot: bot}
}

// SendMessage delivers text to chatID. Long text is split at line breaks and
// the keyboard is attached to the last chunk.
func (n *Notifier) SendMessage(ctx context.Context, chatID int64, text string, buttons [][]service.Button) error {
	if n.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	chunks := splitMessage(text, maxMessageLen)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		if i == len(chunks)-1 && len(buttons) > 0 {
			msg.ReplyMarkup = keyboard(buttons)
		}

		if _, err := n.bot.Send(msg); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

func keyboard(buttons [][]service.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		if len(row) == 0 {
			continue
		}
		kbRow := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			kbRow = append(kbRow, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, kbRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			if idx := strings.LastIndex(chunk[:maxLen], "\n"); idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		text = strings.TrimPrefix(text[len(chunk):], "\n")
		chunks = append(chunks, chunk)
	}
	return chunks
}
