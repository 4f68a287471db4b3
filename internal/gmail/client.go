// Package gmail reads bank alert emails from a Gmail mailbox.
package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/shepherdwind/bean-talk/internal/model"
)

// DefaultQuery selects unread DBS alerts.
const DefaultQuery = "from:*@dbs.com is:unread"

const (
	user        = "me"
	unreadLabel = "UNREAD"
)

// Client lists and acknowledges messages through the Gmail API.
type Client struct {
	svc   *gmailapi.Service
	query string
}

// NewClient creates a Gmail client on an authorized HTTP client. Extra
// options are appended, which lets tests point it at a local endpoint.
func NewClient(ctx context.Context, httpClient *http.Client, query string, opts ...option.ClientOption) (*Client, error) {
	if query == "" {
		query = DefaultQuery
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &Client{svc: svc, query: query}, nil
}

// ListUnread returns every message matching the query. Messages that cannot
// be fetched are logged and skipped.
func (c *Client) ListUnread(ctx context.Context) ([]model.Email, error) {
	var ids []string
	err := c.svc.Users.Messages.List(user).Q(c.query).Pages(ctx, func(resp *gmailapi.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	emails := make([]model.Email, 0, len(ids))
	for _, id := range ids {
		msg, err := c.svc.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("Failed to fetch message", "email_id", id, "error", err)
			continue
		}
		emails = append(emails, toEmail(msg))
	}

	slog.Debug("Listed messages", "query", c.query, "count", len(emails))
	return emails, nil
}

// MarkAsRead removes the UNREAD label from a message.
func (c *Client) MarkAsRead(ctx context.Context, id string) error {
	req := &gmailapi.ModifyMessageRequest{RemoveLabelIds: []string{unreadLabel}}
	if _, err := c.svc.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to mark message %s as read: %w", id, err)
	}
	return nil
}

func toEmail(msg *gmailapi.Message) model.Email {
	email := model.Email{ID: msg.Id}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				email.Subject = h.Value
			case "from":
				email.From = h.Value
			case "to":
				email.To = h.Value
			case "date":
				if t, err := mail.ParseDate(h.Value); err == nil {
					email.Date = t
				}
			}
		}
	}
	if email.Date.IsZero() && msg.InternalDate > 0 {
		email.Date = time.UnixMilli(msg.InternalDate)
	}
	email.Body = extractBody(msg.Payload)
	return email
}
