package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shepherdwind/bean-talk/internal/common"
	"github.com/shepherdwind/bean-talk/internal/model"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func testTransaction(id, merchant, category, amount string, date time.Time) *model.Transaction {
	txn := &model.Transaction{
		ID:       id,
		Date:     date,
		Merchant: merchant,
		Amount:   model.NewAmount(decimal.RequireFromString(amount), "SGD"),
		Account:  "Assets:DBS:SGD:Saving",
		Category: category,
		EmailID:  "email-" + id,
		Source:   model.SourceEmail,
	}
	txn.Hash = txn.GenerateHash()
	return txn
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}

	var version int
	if err := store.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("Failed to read version: %v", err)
	}
	if version != ExpectedSchemaVersion {
		t.Errorf("version = %d, want %d", version, ExpectedSchemaVersion)
	}
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStorage(" "); !errors.Is(err, ErrEmptyString) {
		t.Errorf("expected ErrEmptyString, got %v", err)
	}
}

func TestSaveTransaction_Duplicate(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	txn := testTransaction("t1", "GAMMA.APP", "Expenses:Software", "20", time.Now())
	if err := store.SaveTransaction(ctx, txn); err != nil {
		t.Fatalf("SaveTransaction failed: %v", err)
	}

	again := *txn
	again.ID = "t2"
	err := store.SaveTransaction(ctx, &again)
	if !errors.Is(err, common.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}

	count, err := store.CountTransactions(ctx)
	if err != nil {
		t.Fatalf("CountTransactions failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestSaveTransaction_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	txn := testTransaction("t1", "GAMMA.APP", "", "20", time.Now())
	if err := store.SaveTransaction(context.Background(), txn); !errors.Is(err, ErrInvalidTransaction) {
		t.Errorf("expected ErrInvalidTransaction, got %v", err)
	}
	if err := store.SaveTransaction(context.Background(), nil); !errors.Is(err, ErrNilParameter) {
		t.Errorf("expected ErrNilParameter, got %v", err)
	}
}

func TestSaveTransaction_CashWithoutEmail(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	for i, desc := range []string{"lunch", "coffee"} {
		txn := testTransaction(desc, desc, "Expenses:Food", "5", time.Now().Add(time.Duration(i)*time.Minute))
		txn.EmailID = ""
		txn.Source = model.SourceCash
		if err := store.SaveTransaction(ctx, txn); err != nil {
			t.Fatalf("SaveTransaction(%s) failed: %v", desc, err)
		}
	}
}

func TestHasTransaction(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	txn := testTransaction("t1", "GAMMA.APP", "Expenses:Software", "20", time.Now())
	if err := store.SaveTransaction(ctx, txn); err != nil {
		t.Fatalf("SaveTransaction failed: %v", err)
	}

	tests := []struct {
		name    string
		emailID string
		hash    string
		want    bool
	}{
		{"by email", "email-t1", "", true},
		{"by hash", "", txn.Hash, true},
		{"unknown", "email-x", "nope", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.HasTransaction(ctx, tt.emailID, tt.hash)
			if err != nil {
				t.Fatalf("HasTransaction failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("HasTransaction = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := store.HasTransaction(ctx, "", ""); !errors.Is(err, ErrEmptyString) {
		t.Errorf("expected ErrEmptyString, got %v", err)
	}
}

func TestSpendingByAccount(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	sgt := time.FixedZone("SGT", 8*3600)
	base := time.Date(2025, 4, 10, 12, 0, 0, 0, sgt)
	txns := []*model.Transaction{
		testTransaction("a", "NTUC", "Expenses:Food", "10.10", base),
		testTransaction("b", "KOPI", "Expenses:Food", "2.20", base.Add(time.Hour)),
		testTransaction("c", "GRAB", "Expenses:Transport", "15", base.Add(2*time.Hour)),
		testTransaction("d", "OLD", "Expenses:Food", "99", base.AddDate(0, -2, 0)),
	}
	for _, txn := range txns {
		if err := store.SaveTransaction(ctx, txn); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
	}

	totals, err := store.SpendingByAccount(ctx, base.AddDate(0, 0, -7), base.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("SpendingByAccount failed: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("len(totals) = %d, want 2: %+v", len(totals), totals)
	}
	if totals[0].Account != "Expenses:Food" || totals[0].Total != "12.30" || totals[0].Count != 2 {
		t.Errorf("food total = %+v", totals[0])
	}
	if totals[1].Account != "Expenses:Transport" || totals[1].Total != "15.00" {
		t.Errorf("transport total = %+v", totals[1])
	}

	if _, err := store.SpendingByAccount(ctx, base, base.AddDate(0, 0, -1)); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("expected ErrInvalidDateRange, got %v", err)
	}
}

func TestMigrate_RejectsNewerJournal(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	newer := ExpectedSchemaVersion + 1
	if _, err := store.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", newer)); err != nil {
		t.Fatalf("Failed to set version: %v", err)
	}
	if err := store.Migrate(context.Background()); err == nil {
		t.Fatal("expected migrate to reject a newer journal")
	}
}
