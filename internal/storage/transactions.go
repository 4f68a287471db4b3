package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shepherdwind/bean-talk/internal/common"
	"github.com/shepherdwind/bean-talk/internal/model"
	"github.com/shepherdwind/bean-talk/internal/service"
)

// HasTransaction reports whether a transaction from emailID, or with hash,
// was already journaled. Either may be empty.
func (s *SQLiteStorage) HasTransaction(ctx context.Context, emailID, hash string) (bool, error) {
	if emailID == "" && hash == "" {
		return false, fmt.Errorf("%w: emailID or hash", ErrEmptyString)
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE (? != '' AND email_id = ?) OR (? != '' AND hash = ?)
	`, emailID, emailID, hash, hash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query transaction: %w", err)
	}
	return count > 0, nil
}

// SaveTransaction journals txn. A transaction with the same hash or email
// id yields common.ErrDuplicateEntry.
func (s *SQLiteStorage) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateTransaction(txn); err != nil {
		return err
	}

	var emailID sql.NullString
	if txn.EmailID != "" {
		emailID = sql.NullString{String: txn.EmailID, Valid: true}
	}
	source := txn.Source
	if source == "" {
		source = model.SourceEmail
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, hash, email_id, date, merchant, narration,
			amount, currency, card, account, category, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		txn.ID, txn.Hash, emailID, txn.Date.UTC(), txn.Merchant, txn.Narration,
		txn.Amount.Value.String(), txn.Amount.Currency, txn.Card, txn.Account, txn.Category, string(source),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check insert: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: transaction %s", common.ErrDuplicateEntry, txn.Hash)
	}
	return nil
}

// SpendingByAccount sums journaled amounts per category account and currency
// for transactions dated in [start, end).
func (s *SQLiteStorage) SpendingByAccount(ctx context.Context, start, end time.Time) ([]service.AccountTotal, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, end, start)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, currency, amount FROM transactions
		WHERE date >= ? AND date < ?
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query spending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type key struct{ account, currency string }
	sums := make(map[key]decimal.Decimal)
	counts := make(map[key]int)

	for rows.Next() {
		var account, currency, raw string
		if err := rows.Scan(&account, &currency, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan spending row: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid stored amount %q: %w", raw, err)
		}
		k := key{account, currency}
		sums[k] = sums[k].Add(amount)
		counts[k]++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read spending rows: %w", err)
	}

	totals := make([]service.AccountTotal, 0, len(sums))
	for k, sum := range sums {
		totals = append(totals, service.AccountTotal{
			Account:  k.account,
			Currency: k.currency,
			Total:    sum.StringFixed(2),
			Count:    counts[k],
		})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Account != totals[j].Account {
			return totals[i].Account < totals[j].Account
		}
		return totals[i].Currency < totals[j].Currency
	})
	return totals, nil
}

// CountTransactions returns the number of journaled transactions.
func (s *SQLiteStorage) CountTransactions(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
