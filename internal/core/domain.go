package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// IncomeFixed incomes carry a value history ledger; the ledger is
	// the sole value source once it has entries.
	IncomeFixed IncomeType = "fixed"
	// IncomeTemporary incomes carry a flat amount active only inside
	// [StartMonth, StartMonth+DurationMonths-1].
	IncomeTemporary IncomeType = "temporary"

	// ExpenseFixed expenses resolve through a value history ledger,
	// exactly like fixed incomes.
	ExpenseFixed ExpenseType = "fixed"
	// ExpenseOneTime expenses bill a single month and are zero
	// everywhere else.
	ExpenseOneTime ExpenseType = "one_time"
	// ExpenseInstallment expenses are one member of a series of dated
	// charges sharing a SeriesID.
	ExpenseInstallment ExpenseType = "installment"

	CategoryIncome  CategoryKind = "income"
	CategoryExpense CategoryKind = "expense"

	// PaymentCash is the payment method fallback. Unknown or missing
	// payment method references degrade to this bucket, never to an
	// error: deleting a card must not break the expenses that used it.
	PaymentCash = "cash"

	// UncategorizedName labels amounts whose category reference
	// dangles or was never set.
	UncategorizedName = "Other"
)

type (
	IncomeType   string
	ExpenseType  string
	CategoryKind string

	// Category is a user-defined label for incomes or expenses.
	// Deleting a category never cascades; referencing records degrade
	// to the Uncategorized bucket at resolution time.
	Category struct {
		ID    string       `json:"id"`
		Name  string       `json:"name"`
		Color string       `json:"color,omitempty"`
		Kind  CategoryKind `json:"type"`
	}

	// CreditCard is a payment method with informational billing-cycle
	// markers. ClosingDay and DueDay are stored and displayed but the
	// engine bills every purchase to the next calendar month.
	CreditCard struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		ClosingDay int    `json:"closingDay"`
		DueDay     int    `json:"dueDay"`
		Color      string `json:"color,omitempty"`
	}

	// ValueHistoryItem is one entry in a fixed entity's value ledger.
	ValueHistoryItem struct {
		Month         Month  `json:"monthYear"`
		Value         Money  `json:"value"`
		PaymentMethod string `json:"paymentMethod,omitempty"`
	}

	// Income is a recurring or temporary income source, tagged by Type.
	Income struct {
		ID            string             `json:"id"`
		Title         string             `json:"title"`
		CategoryID    string             `json:"categoryId,omitempty"`
		Type          IncomeType         `json:"type"`
		PaymentMethod string             `json:"paymentMethod,omitempty"`
		ValueHistory  []ValueHistoryItem `json:"valueHistory,omitempty"`
		Amount        Money              `json:"amount,omitempty"`
		StartMonth    Month              `json:"startMonth,omitempty"`
		DurationMonths int               `json:"durationMonths,omitempty"`
		CreatedAt     time.Time          `json:"createdAt,omitempty"`
	}

	// Installments positions one expense inside its series. Current is
	// 1-indexed and unique within a series; Total is identical across
	// all live members after any re-projection.
	Installments struct {
		Current int `json:"current"`
		Total   int `json:"total"`
	}

	// Expense is a single charge record, tagged by Type. Installment
	// series members share a SeriesID (serialized as originalId).
	Expense struct {
		ID               string             `json:"id"`
		Title            string             `json:"title"`
		CategoryID       string             `json:"categoryId,omitempty"`
		Type             ExpenseType        `json:"type"`
		PurchaseDate     string             `json:"purchaseDate,omitempty"`
		BillingMonth     Month              `json:"billingMonth"`
		IsInstallment    bool               `json:"isInstallment"`
		TotalValue       Money              `json:"totalValue"`
		InstallmentValue Money              `json:"installmentValue"`
		Installments     *Installments      `json:"installments,omitempty"`
		PaymentMethod    string             `json:"paymentMethod,omitempty"`
		IsPaid           bool               `json:"isPaid"`
		SeriesID         string             `json:"originalId,omitempty"`
		ValueHistory     []ValueHistoryItem `json:"valueHistory,omitempty"`
		CreatedAt        time.Time          `json:"createdAt,omitempty"`
	}

	// CardPaymentStatus records whether a card's statement for one
	// month was paid. Absence of a record means unpaid.
	CardPaymentStatus struct {
		CardID string `json:"cardId"`
		Month  Month  `json:"monthYear"`
		IsPaid bool   `json:"isPaid"`
	}
)

var (
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidDuration     = errors.New("invalid duration")
	ErrInvalidInstallments = errors.New("installment count must be at least 1")
	ErrInvalidDay          = errors.New("invalid day of month")
	ErrEmptyTitle          = errors.New("empty title")
	ErrUnknownIncomeType   = errors.New("unknown income type")
	ErrUnknownExpenseType  = errors.New("unknown expense type")
	ErrNotFound            = errors.New("record not found")
)

// Validate checks the category's invariants.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyTitle
	}
	switch c.Kind {
	case CategoryIncome, CategoryExpense:
		return nil
	default:
		return fmt.Errorf("unknown category kind: %q", c.Kind)
	}
}

// Validate checks the card's invariants. Closing and due day stay in
// calendar range even though they never feed billing math.
func (c CreditCard) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyTitle
	}
	if c.ClosingDay < 1 || c.ClosingDay > 31 {
		return fmt.Errorf("closing day: %w", ErrInvalidDay)
	}
	if c.DueDay < 1 || c.DueDay > 31 {
		return fmt.Errorf("due day: %w", ErrInvalidDay)
	}
	return nil
}

// Validate checks per-type invariants: fixed incomes look up value via
// the history ledger, temporary incomes via the amount and window.
func (inc Income) Validate() error {
	if strings.TrimSpace(inc.Title) == "" {
		return ErrEmptyTitle
	}
	switch inc.Type {
	case IncomeFixed:
		for _, item := range inc.ValueHistory {
			if !item.Month.Valid() {
				return fmt.Errorf("history entry: %w", ErrInvalidMonth)
			}
		}
		return nil
	case IncomeTemporary:
		if !inc.StartMonth.Valid() {
			return fmt.Errorf("start month: %w", ErrInvalidMonth)
		}
		if inc.DurationMonths < 1 {
			return ErrInvalidDuration
		}
		return inc.Amount.Validate()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownIncomeType, inc.Type)
	}
}

// Validate checks per-type invariants. One-time and installment
// expenses must carry a billing month; installment members must be
// consistently positioned in their series.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	switch e.Type {
	case ExpenseFixed:
		for _, item := range e.ValueHistory {
			if !item.Month.Valid() {
				return fmt.Errorf("history entry: %w", ErrInvalidMonth)
			}
		}
		return nil
	case ExpenseOneTime:
		if !e.BillingMonth.Valid() {
			return fmt.Errorf("billing month: %w", ErrInvalidMonth)
		}
		return e.InstallmentValue.Validate()
	case ExpenseInstallment:
		if !e.BillingMonth.Valid() {
			return fmt.Errorf("billing month: %w", ErrInvalidMonth)
		}
		if e.Installments == nil || e.Installments.Total < 1 {
			return ErrInvalidInstallments
		}
		if e.Installments.Current < 1 || e.Installments.Current > e.Installments.Total {
			return fmt.Errorf("%w: parcel %d of %d", ErrInvalidInstallments, e.Installments.Current, e.Installments.Total)
		}
		if e.SeriesID == "" {
			return errors.New("installment expense missing series id")
		}
		return e.InstallmentValue.Validate()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownExpenseType, e.Type)
	}
}

// EffectivePaymentMethod returns the expense's payment method or the
// cash fallback when it was never set.
func (e Expense) EffectivePaymentMethod() string {
	if e.PaymentMethod == "" {
		return PaymentCash
	}
	return e.PaymentMethod
}
