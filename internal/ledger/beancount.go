// Package ledger writes transactions to a beancount file.
package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shepherdwind/bean-talk/internal/model"
)

// Writer appends entries to a beancount ledger. Existing content is never
// rewritten.
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter creates a writer for the ledger at path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the ledger file location.
func (w *Writer) Path() string {
	return w.path
}

// Format renders entry in beancount syntax.
func Format(entry model.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s * %s\n", entry.Date.Format("2006-01-02"), quote(entry.Narration))
	for _, m := range entry.Metadata {
		fmt.Fprintf(&b, "  %s: %s\n", m.Key, quote(m.Value))
	}
	for _, p := range entry.Postings {
		fmt.Fprintf(&b, "  %s  %s %s\n", p.Account, p.Amount.Value.StringFixed(2), p.Amount.Currency)
	}
	return b.String()
}

// Append writes entry at the end of the ledger, separated from previous
// content by a blank line.
func (w *Writer) Append(ctx context.Context, entry model.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(entry); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0750); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	f, err := os.OpenFile(w.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() { _ = f.Close() }()

	sep, err := separator(f)
	if err != nil {
		return err
	}

	if _, err := f.WriteString(sep + Format(entry)); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}

	slog.Debug("Ledger entry appended", "path", w.path, "narration", entry.Narration)
	return nil
}

// separator returns what must precede a new entry so that entries are
// divided by exactly one blank line.
func separator(f *os.File) (string, error) {
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat ledger: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return "", nil
	}

	n := int64(2)
	if size < n {
		n = size
	}
	tail := make([]byte, n)
	if _, err := f.ReadAt(tail, size-n); err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read ledger tail: %w", err)
	}

	switch {
	case strings.HasSuffix(string(tail), "\n\n"):
		return "", nil
	case strings.HasSuffix(string(tail), "\n"):
		return "\n", nil
	default:
		return "\n\n", nil
	}
}

func validate(entry model.Entry) error {
	if entry.Date.IsZero() {
		return fmt.Errorf("ledger entry has no date")
	}
	if len(entry.Postings) < 2 {
		return fmt.Errorf("ledger entry needs at least two postings")
	}
	for _, p := range entry.Postings {
		if p.Account == "" {
			return fmt.Errorf("ledger posting has no account")
		}
	}
	return nil
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", " ")
	return `"` + s + `"`
}
