// Package worker consumes entity change events and re-exports the
// affected month summaries to the dashboard. It is a separate process
// from the server and reads its own view of the data from SQLite.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/sheets"
	"bilancio/internal/snapshot"
	"bilancio/internal/storage"
)

// ExportWorker recomputes and exports month summaries.
type ExportWorker struct {
	storage *storage.SQLiteRepository
	writer  sheets.SummaryWriter
	months  int

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewExportWorker(repo *storage.SQLiteRepository, writer sheets.SummaryWriter, months int) *ExportWorker {
	if months < 1 {
		months = 12
	}
	return &ExportWorker{
		storage:  repo,
		writer:   writer,
		months:   months,
		lastSeen: make(map[string]time.Time),
	}
}

// HandleEntityChange processes one change event. Messages older than
// the last one seen for the same entity are dropped; last write wins.
// Events without explicit months, such as a snapshot restore, trigger
// a full window re-export.
func (w *ExportWorker) HandleEntityChange(ctx context.Context, msg *amqp.EntityChangeMessage) error {
	if w.isStale(msg) {
		slog.InfoContext(ctx, "Dropping stale change event",
			"kind", msg.Kind,
			"id", msg.ID,
			"timestamp", msg.Timestamp)
		return nil
	}

	slog.InfoContext(ctx, "Processing change event",
		"kind", msg.Kind,
		"id", msg.ID,
		"action", msg.Action,
		"months", len(msg.Months))

	doc, err := w.storage.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	months := dedupeMonths(msg.Months)
	if len(months) == 0 {
		months = w.defaultWindow()
	}
	return w.exportMonths(ctx, doc, months)
}

// ExportWindow re-exports the default window of months. Runs on a
// timer as a backstop for lost events.
func (w *ExportWorker) ExportWindow(ctx context.Context) error {
	doc, err := w.storage.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	return w.exportMonths(ctx, doc, w.defaultWindow())
}

func (w *ExportWorker) exportMonths(ctx context.Context, doc snapshot.Document, months []core.Month) error {
	exported := 0
	for _, month := range months {
		if !month.Valid() {
			slog.WarnContext(ctx, "Skipping invalid month in change event", "month", month)
			continue
		}
		summary := core.AggregateMonth(
			doc.Incomes, doc.Expenses, doc.Cards,
			doc.ExpenseCategories, doc.CardPayments, month)
		if err := w.writer.WriteMonthSummary(ctx, summary); err != nil {
			return fmt.Errorf("export month %s: %w", month, err)
		}
		exported++
	}

	slog.InfoContext(ctx, "Month summaries exported", "count", exported)
	return nil
}

// isStale records the message timestamp per entity and reports whether
// a newer message was already handled.
func (w *ExportWorker) isStale(msg *amqp.EntityChangeMessage) bool {
	key := msg.Kind + "/" + msg.ID

	w.mu.Lock()
	defer w.mu.Unlock()

	if last, ok := w.lastSeen[key]; ok && msg.Timestamp.Before(last) {
		return true
	}
	w.lastSeen[key] = msg.Timestamp
	return false
}

func (w *ExportWorker) defaultWindow() []core.Month {
	start := core.MonthOf(time.Now())
	months := make([]core.Month, 0, w.months)
	for i := 0; i < w.months; i++ {
		months = append(months, start.AddMonths(i))
	}
	return months
}

func dedupeMonths(months []core.Month) []core.Month {
	seen := make(map[core.Month]bool, len(months))
	out := make([]core.Month, 0, len(months))
	for _, m := range months {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
