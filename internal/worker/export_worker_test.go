package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/sheets/memory"
	"bilancio/internal/snapshot"
	"bilancio/internal/storage"
)

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedSnapshot(t *testing.T, repo *storage.SQLiteRepository) {
	t.Helper()

	doc := snapshot.Document{
		Incomes: []core.Income{{
			ID:    "inc-1",
			Title: "Stipendio",
			Type:  core.IncomeFixed,
			ValueHistory: []core.ValueHistoryItem{
				{Month: core.Month("2025-01"), Value: core.Money{Cents: 200000}},
			},
		}},
		Expenses: []core.Expense{{
			ID:               "exp-1",
			Title:            "Affitto",
			Type:             core.ExpenseOneTime,
			BillingMonth:     core.Month("2025-02"),
			InstallmentValue: core.Money{Cents: 80000},
		}},
		LastUpdated: time.Now(),
	}
	if err := repo.SaveSnapshot(context.Background(), doc); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
}

func TestHandleEntityChangeExportsListedMonths(t *testing.T) {
	repo := newTestRepo(t)
	seedSnapshot(t, repo)
	store := memory.New()
	w := NewExportWorker(repo, store, 12)

	msg := amqp.NewEntityChangeMessage(amqp.EntityExpense, "exp-1", "updated",
		[]core.Month{"2025-02", "2025-02", "2025-03"})
	if err := w.HandleEntityChange(context.Background(), msg); err != nil {
		t.Fatalf("HandleEntityChange() error = %v", err)
	}

	months := store.Months()
	if len(months) != 2 {
		t.Fatalf("exported %d months, want 2 (duplicates collapsed)", len(months))
	}

	feb, ok := store.Summary(core.Month("2025-02"))
	if !ok {
		t.Fatal("no summary exported for 2025-02")
	}
	if feb.TotalIncome.Cents != 200000 {
		t.Errorf("February income = %d, want 200000", feb.TotalIncome.Cents)
	}
	if feb.TotalExpense.Cents != 80000 {
		t.Errorf("February expense = %d, want 80000", feb.TotalExpense.Cents)
	}

	mar, ok := store.Summary(core.Month("2025-03"))
	if !ok {
		t.Fatal("no summary exported for 2025-03")
	}
	if mar.TotalExpense.Cents != 0 {
		t.Errorf("March expense = %d, want 0 (one-time bills a single month)", mar.TotalExpense.Cents)
	}
}

func TestHandleEntityChangeDropsStaleMessage(t *testing.T) {
	repo := newTestRepo(t)
	seedSnapshot(t, repo)
	store := memory.New()
	w := NewExportWorker(repo, store, 12)

	newer := amqp.NewEntityChangeMessage(amqp.EntityExpense, "exp-1", "updated",
		[]core.Month{"2025-02"})
	if err := w.HandleEntityChange(context.Background(), newer); err != nil {
		t.Fatalf("HandleEntityChange() error = %v", err)
	}
	written := len(store.Months())

	stale := &amqp.EntityChangeMessage{
		Kind:      amqp.EntityExpense,
		ID:        "exp-1",
		Action:    "updated",
		Months:    []core.Month{"2025-04"},
		Timestamp: newer.Timestamp.Add(-time.Minute),
	}
	if err := w.HandleEntityChange(context.Background(), stale); err != nil {
		t.Fatalf("HandleEntityChange(stale) error = %v", err)
	}

	if got := len(store.Months()); got != written {
		t.Errorf("stale message triggered an export: %d months written, want %d", got, written)
	}
}

func TestHandleEntityChangeWithoutMonthsExportsWindow(t *testing.T) {
	repo := newTestRepo(t)
	seedSnapshot(t, repo)
	store := memory.New()
	w := NewExportWorker(repo, store, 3)

	msg := amqp.NewEntityChangeMessage(amqp.EntitySnapshot, "", "updated", nil)
	if err := w.HandleEntityChange(context.Background(), msg); err != nil {
		t.Fatalf("HandleEntityChange() error = %v", err)
	}

	if got := len(store.Months()); got != 3 {
		t.Errorf("exported %d months, want the full 3 month window", got)
	}
}

func TestExportWindow(t *testing.T) {
	repo := newTestRepo(t)
	seedSnapshot(t, repo)
	store := memory.New()
	w := NewExportWorker(repo, store, 2)

	if err := w.ExportWindow(context.Background()); err != nil {
		t.Fatalf("ExportWindow() error = %v", err)
	}

	months := store.Months()
	if len(months) != 2 {
		t.Fatalf("exported %d months, want 2", len(months))
	}
	if months[0] != core.MonthOf(time.Now()) {
		t.Errorf("window starts at %s, want the current month", months[0])
	}
}
