// Package storage persists the entity set in SQLite. The tracker owns
// the in-memory arrays and saves them wholesale; the repository's job
// is a faithful, transactional dump and restore of the snapshot
// document, not per-entity CRUD.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/snapshot"

	_ "modernc.org/sqlite"
)

const lastUpdatedKey = "last_updated"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveSnapshot replaces the stored entity set with the document, in
// one transaction. Last write wins at document granularity; there is
// no per-row merge.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, doc snapshot.Document) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"incomes", "expenses", "categories", "cards", "card_payments"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, inc := range doc.Incomes {
		if err := insertIncome(ctx, tx, inc); err != nil {
			return err
		}
	}
	for _, e := range doc.Expenses {
		if err := insertExpense(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, c := range doc.IncomeCategories {
		if err := insertCategory(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, c := range doc.ExpenseCategories {
		if err := insertCategory(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, c := range doc.Cards {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cards (id, name, closing_day, due_day, color) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.ClosingDay, c.DueDay, c.Color); err != nil {
			return fmt.Errorf("insert card %s: %w", c.ID, err)
		}
	}
	for _, p := range doc.CardPayments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO card_payments (card_id, month, is_paid) VALUES (?, ?, ?)`,
			p.CardID, string(p.Month), boolToInt(p.IsPaid)); err != nil {
			return fmt.Errorf("insert card payment %s/%s: %w", p.CardID, p.Month, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		lastUpdatedKey, doc.LastUpdated.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("update last_updated: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save transaction: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot saved",
		"incomes", len(doc.Incomes),
		"expenses", len(doc.Expenses),
		"cards", len(doc.Cards))
	return nil
}

// LoadSnapshot reads the whole entity set back. A fresh database
// yields an empty document with a zero LastUpdated.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context) (snapshot.Document, error) {
	var doc snapshot.Document

	incomes, err := r.loadIncomes(ctx)
	if err != nil {
		return doc, err
	}
	doc.Incomes = incomes

	expenses, err := r.loadExpenses(ctx)
	if err != nil {
		return doc, err
	}
	doc.Expenses = expenses

	if err := r.loadCategories(ctx, &doc); err != nil {
		return doc, err
	}
	if err := r.loadCards(ctx, &doc); err != nil {
		return doc, err
	}
	if err := r.loadCardPayments(ctx, &doc); err != nil {
		return doc, err
	}

	var raw string
	err = r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, lastUpdatedKey).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		// Fresh database.
	case err != nil:
		return doc, fmt.Errorf("load last_updated: %w", err)
	default:
		if ts, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			doc.LastUpdated = ts
		}
	}

	return doc, nil
}

func insertIncome(ctx context.Context, tx *sql.Tx, inc core.Income) error {
	history, err := json.Marshal(inc.ValueHistory)
	if err != nil {
		return fmt.Errorf("marshal income history %s: %w", inc.ID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO incomes
		 (id, title, category_id, type, payment_method, amount_cents, start_month, duration_months, value_history, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.Title, inc.CategoryID, string(inc.Type), inc.PaymentMethod,
		inc.Amount.Cents, string(inc.StartMonth), inc.DurationMonths, string(history), inc.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert income %s: %w", inc.ID, err)
	}
	return nil
}

func insertExpense(ctx context.Context, tx *sql.Tx, e core.Expense) error {
	history, err := json.Marshal(e.ValueHistory)
	if err != nil {
		return fmt.Errorf("marshal expense history %s: %w", e.ID, err)
	}
	current, total := 0, 0
	if e.Installments != nil {
		current, total = e.Installments.Current, e.Installments.Total
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses
		 (id, title, category_id, type, purchase_date, billing_month, is_installment,
		  total_cents, installment_cents, installment_current, installment_total,
		  payment_method, is_paid, series_id, value_history, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.CategoryID, string(e.Type), e.PurchaseDate, string(e.BillingMonth),
		boolToInt(e.IsInstallment), e.TotalValue.Cents, e.InstallmentValue.Cents,
		current, total, e.PaymentMethod, boolToInt(e.IsPaid), e.SeriesID, string(history), e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert expense %s: %w", e.ID, err)
	}
	return nil
}

func insertCategory(ctx context.Context, tx *sql.Tx, c core.Category) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO categories (id, name, color, kind) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Color, string(c.Kind)); err != nil {
		return fmt.Errorf("insert category %s: %w", c.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) loadIncomes(ctx context.Context) ([]core.Income, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, category_id, type, payment_method, amount_cents, start_month, duration_months, value_history, created_at
		 FROM incomes ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query incomes: %w", err)
	}
	defer rows.Close()

	var incomes []core.Income
	for rows.Next() {
		var (
			inc     core.Income
			incType string
			start   string
			history string
		)
		if err := rows.Scan(&inc.ID, &inc.Title, &inc.CategoryID, &incType, &inc.PaymentMethod,
			&inc.Amount.Cents, &start, &inc.DurationMonths, &history, &inc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		inc.Type = core.IncomeType(incType)
		inc.StartMonth = core.Month(start)
		if err := json.Unmarshal([]byte(history), &inc.ValueHistory); err != nil {
			return nil, fmt.Errorf("unmarshal income history %s: %w", inc.ID, err)
		}
		incomes = append(incomes, inc)
	}
	return incomes, rows.Err()
}

func (r *SQLiteRepository) loadExpenses(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, category_id, type, purchase_date, billing_month, is_installment,
		        total_cents, installment_cents, installment_current, installment_total,
		        payment_method, is_paid, series_id, value_history, created_at
		 FROM expenses ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var (
			e              core.Expense
			expType        string
			billing        string
			isInstallment  int
			isPaid         int
			current, total int
			history        string
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.CategoryID, &expType, &e.PurchaseDate, &billing,
			&isInstallment, &e.TotalValue.Cents, &e.InstallmentValue.Cents, &current, &total,
			&e.PaymentMethod, &isPaid, &e.SeriesID, &history, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Type = core.ExpenseType(expType)
		e.BillingMonth = core.Month(billing)
		e.IsInstallment = isInstallment != 0
		e.IsPaid = isPaid != 0
		if total > 0 {
			e.Installments = &core.Installments{Current: current, Total: total}
		}
		if err := json.Unmarshal([]byte(history), &e.ValueHistory); err != nil {
			return nil, fmt.Errorf("unmarshal expense history %s: %w", e.ID, err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (r *SQLiteRepository) loadCategories(ctx context.Context, doc *snapshot.Document) error {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, color, kind FROM categories ORDER BY name, id`)
	if err != nil {
		return fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c    core.Category
			kind string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &kind); err != nil {
			return fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.CategoryKind(kind)
		if c.Kind == core.CategoryIncome {
			doc.IncomeCategories = append(doc.IncomeCategories, c)
		} else {
			doc.ExpenseCategories = append(doc.ExpenseCategories, c)
		}
	}
	return rows.Err()
}

func (r *SQLiteRepository) loadCards(ctx context.Context, doc *snapshot.Document) error {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, closing_day, due_day, color FROM cards ORDER BY name, id`)
	if err != nil {
		return fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c core.CreditCard
		if err := rows.Scan(&c.ID, &c.Name, &c.ClosingDay, &c.DueDay, &c.Color); err != nil {
			return fmt.Errorf("scan card: %w", err)
		}
		doc.Cards = append(doc.Cards, c)
	}
	return rows.Err()
}

func (r *SQLiteRepository) loadCardPayments(ctx context.Context, doc *snapshot.Document) error {
	rows, err := r.db.QueryContext(ctx, `SELECT card_id, month, is_paid FROM card_payments ORDER BY month, card_id`)
	if err != nil {
		return fmt.Errorf("query card payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p      core.CardPaymentStatus
			month  string
			isPaid int
		)
		if err := rows.Scan(&p.CardID, &month, &isPaid); err != nil {
			return fmt.Errorf("scan card payment: %w", err)
		}
		p.Month = core.Month(month)
		p.IsPaid = isPaid != 0
		doc.CardPayments = append(doc.CardPayments, p)
	}
	return rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
