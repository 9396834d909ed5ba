// Package services hosts the Tracker, the single owner of the live
// entity set. All mutations go through it: it validates, updates the
// in-memory arrays, marks the state dirty and publishes a change
// event. Persistence is explicit via Save or Flush so callers can
// debounce writes instead of hitting SQLite on every keystroke.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/snapshot"
	"bilancio/internal/storage"
)

// Tracker orchestrates entity operations across SQLite and AMQP.
type Tracker struct {
	mu         sync.RWMutex
	doc        snapshot.Document
	dirty      bool
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

// NewTracker loads the stored snapshot into memory. The AMQP client
// may be nil; change events are then skipped with a warning.
func NewTracker(ctx context.Context, repo *storage.SQLiteRepository, amqpClient *amqp.Client) (*Tracker, error) {
	doc, err := repo.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Tracker loaded",
		"incomes", len(doc.Incomes),
		"expenses", len(doc.Expenses),
		"cards", len(doc.Cards))

	return &Tracker{
		doc:        doc,
		storage:    repo,
		amqpClient: amqpClient,
	}, nil
}

// Dirty reports whether the in-memory state has unsaved changes.
func (t *Tracker) Dirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dirty
}

// Save persists the current state unconditionally.
func (t *Tracker) Save(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked(ctx)
}

// Flush persists the current state only if it changed since the last
// save. The debounced flusher in the server main calls this on a
// timer.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}
	return t.saveLocked(ctx)
}

func (t *Tracker) saveLocked(ctx context.Context) error {
	if err := t.storage.SaveSnapshot(ctx, t.doc); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	t.dirty = false
	return nil
}

// Close flushes pending changes and closes storage and AMQP.
func (t *Tracker) Close(ctx context.Context) error {
	var errs []error

	if err := t.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	if t.storage != nil {
		if err := t.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if t.amqpClient != nil {
		if err := t.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close tracker: %v", errs)
	}
	return nil
}

// Snapshot returns a deep copy of the current entity set, suitable for
// export. Mutating the copy never touches the tracker's state.
func (t *Tracker) Snapshot() snapshot.Document {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneDocument(t.doc)
}

// Restore replaces the entire entity set with the imported document.
// The document is validated as a whole first; a single invalid record
// rejects the import.
func (t *Tracker) Restore(ctx context.Context, doc snapshot.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("validate snapshot: %w", err)
	}

	t.mu.Lock()
	t.doc = cloneDocument(doc)
	t.doc.LastUpdated = time.Now()
	t.dirty = true
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntitySnapshot, "", "updated", nil)
	return t.Save(ctx)
}

// Incomes returns a copy of the income list.
func (t *Tracker) Incomes() []core.Income {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneIncomes(t.doc.Incomes)
}

// AddIncome validates and stores a new income, assigning an ID when
// the caller left it empty.
func (t *Tracker) AddIncome(ctx context.Context, inc core.Income) (core.Income, error) {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now()
	}
	if err := inc.Validate(); err != nil {
		return core.Income{}, fmt.Errorf("validate income: %w", err)
	}

	t.mu.Lock()
	t.doc.Incomes = append(cloneIncomes(t.doc.Incomes), inc)
	t.markDirtyLocked()
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityIncome, inc.ID, "created", incomeMonths(inc))
	return inc, nil
}

// UpdateIncome replaces the income with the same ID.
func (t *Tracker) UpdateIncome(ctx context.Context, inc core.Income) error {
	if err := inc.Validate(); err != nil {
		return fmt.Errorf("validate income: %w", err)
	}

	t.mu.Lock()
	next := cloneIncomes(t.doc.Incomes)
	target := -1
	for i, existing := range next {
		if existing.ID == inc.ID {
			target = i
			break
		}
	}
	if target == -1 {
		t.mu.Unlock()
		return fmt.Errorf("income %s: %w", inc.ID, core.ErrNotFound)
	}
	inc.CreatedAt = next[target].CreatedAt
	next[target] = inc
	t.doc.Incomes = next
	t.markDirtyLocked()
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityIncome, inc.ID, "updated", incomeMonths(inc))
	return nil
}

// DeleteIncome removes the income with the given ID.
func (t *Tracker) DeleteIncome(ctx context.Context, id string) error {
	t.mu.Lock()
	next := make([]core.Income, 0, len(t.doc.Incomes))
	found := false
	for _, inc := range t.doc.Incomes {
		if inc.ID == id {
			found = true
			continue
		}
		next = append(next, inc)
	}
	if !found {
		t.mu.Unlock()
		return fmt.Errorf("income %s: %w", id, core.ErrNotFound)
	}
	t.doc.Incomes = next
	t.markDirtyLocked()
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityIncome, id, "deleted", nil)
	return nil
}

// PushIncomeValue appends an entry to a fixed income's value ledger.
// From that month on the income resolves to the new value; earlier
// months keep resolving to what the ledger said back then.
func (t *Tracker) PushIncomeValue(ctx context.Context, id string, month core.Month, value core.Money, paymentMethod string) error {
	if !month.Valid() {
		return core.ErrInvalidMonth
	}
	if err := value.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	next := cloneIncomes(t.doc.Incomes)
	target := -1
	for i, inc := range next {
		if inc.ID == id {
			target = i
			break
		}
	}
	if target == -1 {
		t.mu.Unlock()
		return fmt.Errorf("income %s: %w", id, core.ErrNotFound)
	}
	next[target].ValueHistory = core.PushHistoryEntry(next[target].ValueHistory, month, value, paymentMethod)
	t.doc.Incomes = next
	t.markDirtyLocked()
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityIncome, id, "updated", []core.Month{month})
	return nil
}

// Expenses returns a copy of the expense list.
func (t *Tracker) Expenses() []core.Expense {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneExpenses(t.doc.Expenses)
}

// AddExpense stores a new expense. When installmentCount is above one
// the expense is expanded into a full series of sibling records billed
// to consecutive months, and all of them are returned.
func (t *Tracker) AddExpense(ctx context.Context, e core.Expense, installmentCount int) ([]core.Expense, error) {
	var added []core.Expense

	if installmentCount > 1 || e.Type == core.ExpenseInstallment {
		if installmentCount < 1 {
			return nil, core.ErrInvalidInstallments
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		series, err := core.ExpandInstallments(e, e.BillingMonth, installmentCount)
		if err != nil {
			return nil, fmt.Errorf("expand installments: %w", err)
		}
		for _, member := range series {
			if err := member.Validate(); err != nil {
				return nil, fmt.Errorf("validate installment: %w", err)
			}
		}
		added = series
	} else {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("validate expense: %w", err)
		}
		added = []core.Expense{e}
	}

	t.mu.Lock()
	t.doc.Expenses = append(cloneExpenses(t.doc.Expenses), added...)
	t.markDirtyLocked()
	t.mu.Unlock()

	for _, member := range added {
		t.publishChange(ctx, amqp.EntityExpense, member.ID, "created", []core.Month{member.BillingMonth})
	}
	return added, nil
}

// UpdateExpense applies a partial edit to the expense and, per the
// scope, to its installment siblings.
func (t *Tracker) UpdateExpense(ctx context.Context, id string, upd core.ExpenseUpdate, scope core.EditScope) error {
	t.mu.Lock()
	next, err := core.UpdateExpenseWithScope(t.doc.Expenses, id, upd, scope)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.doc.Expenses = next
	t.markDirtyLocked()
	months := expenseMonths(next, id)
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityExpense, id, "updated", months)
	return nil
}

// DeleteExpense removes the expense and, per the scope, its
// installment siblings.
func (t *Tracker) DeleteExpense(ctx context.Context, id string, scope core.EditScope) error {
	t.mu.Lock()
	months := expenseMonths(t.doc.Expenses, id)
	next, err := core.DeleteExpenseWithScope(t.doc.Expenses, id, scope)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.doc.Expenses = next
	t.markDirtyLocked()
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityExpense, id, "deleted", months)
	return nil
}

// ToggleExpensePaid flips the paid flag on a single expense and
// returns the new state. Paid status is always per record, never per
// series.
func (t *Tracker) ToggleExpensePaid(ctx context.Context, id string) (bool, error) {
	t.mu.Lock()
	next := cloneExpenses(t.doc.Expenses)
	target := -1
	for i, e := range next {
		if e.ID == id {
			target = i
			break
		}
	}
	if target == -1 {
		t.mu.Unlock()
		return false, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	next[target].IsPaid = !next[target].IsPaid
	paid := next[target].IsPaid
	month := next[target].BillingMonth
	t.doc.Expenses = next
	t.markDirtyLocked()
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityExpense, id, "updated", []core.Month{month})
	return paid, nil
}

// PushExpenseValue appends an entry to a fixed expense's value ledger.
func (t *Tracker) PushExpenseValue(ctx context.Context, id string, month core.Month, value core.Money, paymentMethod string) error {
	if !month.Valid() {
		return core.ErrInvalidMonth
	}
	if err := value.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	next := cloneExpenses(t.doc.Expenses)
	target := -1
	for i, e := range next {
		if e.ID == id {
			target = i
			break
		}
	}
	if target == -1 {
		t.mu.Unlock()
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	next[target].ValueHistory = core.PushHistoryEntry(next[target].ValueHistory, month, value, paymentMethod)
	t.doc.Expenses = next
	t.markDirtyLocked()
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityExpense, id, "updated", []core.Month{month})
	return nil
}

// Categories returns copies of the income and expense category lists.
func (t *Tracker) Categories() ([]core.Category, []core.Category) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	income := make([]core.Category, len(t.doc.IncomeCategories))
	copy(income, t.doc.IncomeCategories)
	expense := make([]core.Category, len(t.doc.ExpenseCategories))
	copy(expense, t.doc.ExpenseCategories)
	return income, expense
}

// AddCategory validates and stores a new category under the list its
// kind selects.
func (t *Tracker) AddCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("validate category: %w", err)
	}

	t.mu.Lock()
	if c.Kind == core.CategoryIncome {
		t.doc.IncomeCategories = append(t.doc.IncomeCategories, c)
	} else {
		t.doc.ExpenseCategories = append(t.doc.ExpenseCategories, c)
	}
	t.markDirtyLocked()
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityCategory, c.ID, "created", nil)
	return c, nil
}

// DeleteCategory removes a category. Records referencing it are left
// alone and fold into the Other bucket at aggregation time.
func (t *Tracker) DeleteCategory(ctx context.Context, id string) error {
	t.mu.Lock()
	found := false
	t.doc.IncomeCategories, found = removeCategory(t.doc.IncomeCategories, id)
	if !found {
		t.doc.ExpenseCategories, found = removeCategory(t.doc.ExpenseCategories, id)
	}
	if !found {
		t.mu.Unlock()
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	t.markDirtyLocked()
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityCategory, id, "deleted", nil)
	return nil
}

// Cards returns a copy of the card list.
func (t *Tracker) Cards() []core.CreditCard {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cards := make([]core.CreditCard, len(t.doc.Cards))
	copy(cards, t.doc.Cards)
	return cards
}

// AddCard validates and stores a new credit card.
func (t *Tracker) AddCard(ctx context.Context, c core.CreditCard) (core.CreditCard, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := c.Validate(); err != nil {
		return core.CreditCard{}, fmt.Errorf("validate card: %w", err)
	}

	t.mu.Lock()
	t.doc.Cards = append(t.doc.Cards, c)
	t.markDirtyLocked()
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityCard, c.ID, "created", nil)
	return c, nil
}

// UpdateCard replaces the card with the same ID.
func (t *Tracker) UpdateCard(ctx context.Context, c core.CreditCard) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate card: %w", err)
	}

	t.mu.Lock()
	target := -1
	for i, existing := range t.doc.Cards {
		if existing.ID == c.ID {
			target = i
			break
		}
	}
	if target == -1 {
		t.mu.Unlock()
		return fmt.Errorf("card %s: %w", c.ID, core.ErrNotFound)
	}
	next := make([]core.CreditCard, len(t.doc.Cards))
	copy(next, t.doc.Cards)
	next[target] = c
	t.doc.Cards = next
	t.markDirtyLocked()
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityCard, c.ID, "updated", nil)
	return nil
}

// DeleteCard removes a card. Expenses that referenced it degrade to
// the cash bucket; payment statuses for the card are dropped.
func (t *Tracker) DeleteCard(ctx context.Context, id string) error {
	t.mu.Lock()
	next := make([]core.CreditCard, 0, len(t.doc.Cards))
	found := false
	for _, c := range t.doc.Cards {
		if c.ID == id {
			found = true
			continue
		}
		next = append(next, c)
	}
	if !found {
		t.mu.Unlock()
		return fmt.Errorf("card %s: %w", id, core.ErrNotFound)
	}
	t.doc.Cards = next

	payments := make([]core.CardPaymentStatus, 0, len(t.doc.CardPayments))
	for _, p := range t.doc.CardPayments {
		if p.CardID != id {
			payments = append(payments, p)
		}
	}
	t.doc.CardPayments = payments
	t.markDirtyLocked()
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityCard, id, "deleted", nil)
	return nil
}

// ToggleCardPayment flips the paid status of a card's statement for
// one month and returns the new state. With no existing record the
// statement counts as unpaid, so the first toggle marks it paid.
func (t *Tracker) ToggleCardPayment(ctx context.Context, cardID string, month core.Month) (bool, error) {
	if !month.Valid() {
		return false, core.ErrInvalidMonth
	}

	t.mu.Lock()
	known := false
	for _, c := range t.doc.Cards {
		if c.ID == cardID {
			known = true
			break
		}
	}
	if !known {
		t.mu.Unlock()
		return false, fmt.Errorf("card %s: %w", cardID, core.ErrNotFound)
	}

	next := make([]core.CardPaymentStatus, len(t.doc.CardPayments))
	copy(next, t.doc.CardPayments)
	paid := true
	found := false
	for i, p := range next {
		if p.CardID == cardID && p.Month == month {
			next[i].IsPaid = !p.IsPaid
			paid = next[i].IsPaid
			found = true
			break
		}
	}
	if !found {
		next = append(next, core.CardPaymentStatus{CardID: cardID, Month: month, IsPaid: true})
	}
	t.doc.CardPayments = next
	t.markDirtyLocked()
	t.mu.Unlock()

	t.publishChange(ctx, amqp.EntityCardPayment, cardID, "updated", []core.Month{month})
	return paid, nil
}

// Summary resolves every entity for the target month and folds the
// results into one view. The tracker computes it fresh on every call;
// caching lives at the HTTP layer.
func (t *Tracker) Summary(month core.Month) core.MonthSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return core.AggregateMonth(
		t.doc.Incomes, t.doc.Expenses, t.doc.Cards,
		t.doc.ExpenseCategories, t.doc.CardPayments, month)
}

// CashFlow resolves income and expense totals independently for each
// of the months consecutive months starting at start.
func (t *Tracker) CashFlow(start core.Month, months int) []core.CashFlowPoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return core.CashFlowSeries(t.doc.Incomes, t.doc.Expenses, start, months)
}

func (t *Tracker) markDirtyLocked() {
	t.dirty = true
	t.doc.LastUpdated = time.Now()
}

func (t *Tracker) publishChange(ctx context.Context, kind, id, action string, months []core.Month) {
	if t.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping change event",
			"kind", kind, "id", id, "action", action)
		return
	}

	msg := amqp.NewEntityChangeMessage(kind, id, action, months)
	if err := t.amqpClient.PublishEntityChange(ctx, msg); err != nil {
		// The mutation already succeeded locally; a lost event only
		// delays the dashboard export.
		slog.ErrorContext(ctx, "Failed to publish change event",
			"kind", kind, "id", id, "error", err)
	}
}

// incomeMonths lists the months an income mutation can affect. Fixed
// incomes change from their earliest ledger entry onward, so only the
// entry months are reported.
func incomeMonths(inc core.Income) []core.Month {
	switch inc.Type {
	case core.IncomeTemporary:
		months := make([]core.Month, 0, inc.DurationMonths)
		for i := 0; i < inc.DurationMonths; i++ {
			months = append(months, inc.StartMonth.AddMonths(i))
		}
		return months
	default:
		months := make([]core.Month, 0, len(inc.ValueHistory))
		for _, item := range inc.ValueHistory {
			months = append(months, item.Month)
		}
		return months
	}
}

// expenseMonths lists the billing months of the expense and its series
// siblings, before or after an edit.
func expenseMonths(expenses []core.Expense, id string) []core.Month {
	var seriesID string
	for _, e := range expenses {
		if e.ID == id {
			seriesID = e.SeriesID
			if seriesID == "" {
				return []core.Month{e.BillingMonth}
			}
			break
		}
	}
	if seriesID == "" {
		return nil
	}

	var months []core.Month
	for _, e := range expenses {
		if e.SeriesID == seriesID {
			months = append(months, e.BillingMonth)
		}
	}
	return months
}

func removeCategory(categories []core.Category, id string) ([]core.Category, bool) {
	for i, c := range categories {
		if c.ID == id {
			next := make([]core.Category, 0, len(categories)-1)
			next = append(next, categories[:i]...)
			return append(next, categories[i+1:]...), true
		}
	}
	return categories, false
}

func cloneDocument(doc snapshot.Document) snapshot.Document {
	out := doc
	out.Incomes = cloneIncomes(doc.Incomes)
	out.Expenses = cloneExpenses(doc.Expenses)
	out.IncomeCategories = append([]core.Category(nil), doc.IncomeCategories...)
	out.ExpenseCategories = append([]core.Category(nil), doc.ExpenseCategories...)
	out.Cards = append([]core.CreditCard(nil), doc.Cards...)
	out.CardPayments = append([]core.CardPaymentStatus(nil), doc.CardPayments...)
	return out
}

func cloneIncomes(incomes []core.Income) []core.Income {
	next := make([]core.Income, len(incomes))
	copy(next, incomes)
	for i := range next {
		next[i].ValueHistory = append([]core.ValueHistoryItem(nil), next[i].ValueHistory...)
	}
	return next
}

func cloneExpenses(expenses []core.Expense) []core.Expense {
	next := make([]core.Expense, len(expenses))
	copy(next, expenses)
	for i := range next {
		if next[i].Installments != nil {
			cloned := *next[i].Installments
			next[i].Installments = &cloned
		}
		next[i].ValueHistory = append([]core.ValueHistoryItem(nil), next[i].ValueHistory...)
	}
	return next
}
