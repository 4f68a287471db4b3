package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shepherdwind/bean-talk/internal/model"
)

// ImportResult summarizes a statement import.
type ImportResult struct {
	Recorded      int
	Uncategorized int
	Duplicates    int
	Credits       int
	Failed        int
}

// Import records statement transactions. Merchants without a category are
// booked to fallback and added to the category store with an empty category.
// Credits are skipped. progress, when set, is called after each
// transaction.
func (s *Scanner) Import(ctx context.Context, txs []model.Transaction, fallback string, progress func()) (ImportResult, error) {
	var result ImportResult
	if fallback == "" {
		return result, fmt.Errorf("fallback category is required")
	}

	for i := range txs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		s.importOne(ctx, &txs[i], fallback, &result)
		if progress != nil {
			progress()
		}
	}

	slog.Info("Import finished",
		"recorded", result.Recorded,
		"uncategorized", result.Uncategorized,
		"duplicates", result.Duplicates,
		"credits", result.Credits,
		"failed", result.Failed)
	return result, nil
}

func (s *Scanner) importOne(ctx context.Context, tx *model.Transaction, fallback string, result *ImportResult) {
	if !tx.Amount.Value.IsPositive() {
		result.Credits++
		return
	}
	if tx.Hash == "" {
		tx.Hash = tx.GenerateHash()
	}

	done, err := s.deps.Journal.HasTransaction(ctx, "", tx.Hash)
	if err != nil {
		result.Failed++
		slog.Error("Failed to check journal", "merchant", tx.Merchant, "error", err)
		return
	}
	if done {
		result.Duplicates++
		s.deps.Metrics.IncTransaction(string(tx.Source), "duplicate")
		return
	}

	category, ok := s.deps.Store.FindCategory(tx.Merchant)
	if !ok {
		category = fallback
		if err := s.deps.Store.AddUnresolvedMerchant(tx.Merchant, ""); err != nil {
			slog.Warn("Failed to park merchant", "merchant", tx.Merchant, "error", err)
		}
		result.Uncategorized++
	}
	tx.Category = category

	if err := s.RecordTransaction(ctx, tx); err != nil {
		result.Failed++
		slog.Error("Failed to import transaction", "merchant", tx.Merchant, "error", err)
		return
	}
	result.Recorded++
}
