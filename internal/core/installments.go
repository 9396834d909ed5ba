// This file implements installment expansion and scoped re-projection.
// A purchase paid in N parcels becomes N sibling expense records, one
// per billing month, linked by a shared SeriesID. Edits re-divide the
// series within the chosen scope only; records outside the scope keep
// their old values, which can leave the series totals inconsistent
// across the scope boundary. That is intentional partial-update
// semantics, not a defect.

package core

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

const (
	// ScopeOnly edits exactly the targeted record.
	ScopeOnly EditScope = "only"
	// ScopeFuture edits the targeted record and every later parcel.
	ScopeFuture EditScope = "future"
	// ScopeAll edits the whole series, past parcels included.
	ScopeAll EditScope = "all"
)

type (
	EditScope string

	// ExpenseUpdate is a partial edit. Nil fields are left untouched.
	// TotalValue and InstallmentCount trigger a re-division of the
	// affected parcels; the remaining fields are plain overwrites.
	ExpenseUpdate struct {
		Title            *string
		CategoryID       *string
		PaymentMethod    *string
		BillingMonth     *Month
		TotalValue       *Money
		InstallmentCount *int
		IsPaid           *bool
	}

	// SeriesIndex maps a SeriesID to the indices of its members in the
	// expense slice, ordered by parcel position. Building it once per
	// update replaces repeated string-equality scans over the whole
	// expense array.
	SeriesIndex map[string][]int
)

// Validate checks the scope is one of the three supported values.
func (s EditScope) Validate() error {
	switch s {
	case ScopeOnly, ScopeFuture, ScopeAll:
		return nil
	default:
		return fmt.Errorf("unknown edit scope: %q", s)
	}
}

// ExpandInstallments generates the full series for a purchase: total
// sibling records billed to consecutive months starting at startMonth,
// positioned 1..total and linked by one SeriesID. The purchase total
// is divided in cents with the last parcel absorbing the remainder, so
// the parcels always sum back to the total.
func ExpandInstallments(base Expense, startMonth Month, total int) ([]Expense, error) {
	if total < 1 {
		return nil, ErrInvalidInstallments
	}
	if !startMonth.Valid() {
		return nil, fmt.Errorf("start month: %w", ErrInvalidMonth)
	}

	seriesID := base.SeriesID
	if seriesID == "" {
		seriesID = uuid.NewString()
	}

	shares := SplitEven(base.TotalValue, total)
	series := make([]Expense, total)
	for i := range series {
		member := base
		member.ID = uuid.NewString()
		member.Type = ExpenseInstallment
		member.IsInstallment = true
		member.SeriesID = seriesID
		member.BillingMonth = startMonth.AddMonths(i)
		member.InstallmentValue = shares[i]
		member.Installments = &Installments{Current: i + 1, Total: total}
		member.ValueHistory = nil
		series[i] = member
	}
	return series, nil
}

// BuildSeriesIndex groups installment expenses by SeriesID, each group
// ordered by parcel position.
func BuildSeriesIndex(expenses []Expense) SeriesIndex {
	index := make(SeriesIndex)
	for i, e := range expenses {
		if e.SeriesID == "" || e.Installments == nil {
			continue
		}
		index[e.SeriesID] = append(index[e.SeriesID], i)
	}
	for id := range index {
		members := index[id]
		sort.Slice(members, func(a, b int) bool {
			return expenses[members[a]].Installments.Current < expenses[members[b]].Installments.Current
		})
	}
	return index
}

// UpdateExpenseWithScope applies a partial edit to the expense
// identified by id and, depending on scope, to its installment
// siblings. It returns a new slice; the input is never mutated.
//
// When the edit changes the total value or the installment count, each
// affected parcel gets an even share of the new total and the new
// count is written uniformly across the affected records. Parcels
// outside the scope keep their previous value and count.
func UpdateExpenseWithScope(expenses []Expense, id string, upd ExpenseUpdate, scope EditScope) ([]Expense, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if upd.InstallmentCount != nil && *upd.InstallmentCount < 1 {
		return nil, ErrInvalidInstallments
	}

	target := -1
	for i, e := range expenses {
		if e.ID == id {
			target = i
			break
		}
	}
	if target == -1 {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}

	next := make([]Expense, len(expenses))
	copy(next, expenses)

	affected := affectedIndices(next, target, scope)
	for _, i := range affected {
		// Installments is a pointer; clone it so the caller's slice
		// stays untouched.
		if next[i].Installments != nil {
			cloned := *next[i].Installments
			next[i].Installments = &cloned
		}
		applyFieldUpdates(&next[i], upd)
	}

	if upd.TotalValue != nil || upd.InstallmentCount != nil {
		reprojectSeries(next, affected, upd)
	}
	return next, nil
}

// DeleteExpenseWithScope removes the expense identified by id and,
// depending on scope, its installment siblings. Surviving parcels keep
// their positions; nothing is renumbered. It returns a new slice.
func DeleteExpenseWithScope(expenses []Expense, id string, scope EditScope) ([]Expense, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	target := -1
	for i, e := range expenses {
		if e.ID == id {
			target = i
			break
		}
	}
	if target == -1 {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}

	doomed := make(map[int]bool)
	for _, i := range affectedIndices(expenses, target, scope) {
		doomed[i] = true
	}

	next := make([]Expense, 0, len(expenses)-len(doomed))
	for i, e := range expenses {
		if !doomed[i] {
			next = append(next, e)
		}
	}
	return next, nil
}

// affectedIndices selects the records an edit touches. Expenses that
// are not part of a series are always edited alone, whatever the
// scope says.
func affectedIndices(expenses []Expense, target int, scope EditScope) []int {
	t := expenses[target]
	if scope == ScopeOnly || t.SeriesID == "" || t.Installments == nil {
		return []int{target}
	}

	members := BuildSeriesIndex(expenses)[t.SeriesID]
	if scope == ScopeAll {
		return members
	}

	// ScopeFuture: this parcel and all later ones.
	var affected []int
	for _, i := range members {
		if expenses[i].Installments.Current >= t.Installments.Current {
			affected = append(affected, i)
		}
	}
	return affected
}

func applyFieldUpdates(e *Expense, upd ExpenseUpdate) {
	if upd.Title != nil {
		e.Title = *upd.Title
	}
	if upd.CategoryID != nil {
		e.CategoryID = *upd.CategoryID
	}
	if upd.PaymentMethod != nil {
		e.PaymentMethod = *upd.PaymentMethod
	}
	if upd.BillingMonth != nil {
		e.BillingMonth = *upd.BillingMonth
	}
	if upd.IsPaid != nil {
		e.IsPaid = *upd.IsPaid
	}
}

// reprojectSeries re-divides the affected parcels after a total or
// count edit. Shares are assigned in parcel order and the last
// affected parcel absorbs the cent remainder.
func reprojectSeries(expenses []Expense, affected []int, upd ExpenseUpdate) {
	first := expenses[affected[0]]

	total := first.TotalValue
	if upd.TotalValue != nil {
		total = *upd.TotalValue
	}
	count := len(affected)
	if first.Installments != nil {
		count = first.Installments.Total
	}
	if upd.InstallmentCount != nil {
		count = *upd.InstallmentCount
	}

	shares := SplitEven(total, count)
	for pos, i := range affected {
		expenses[i].TotalValue = total
		share := shares[len(shares)-1]
		if pos < len(shares) {
			share = shares[pos]
		}
		expenses[i].InstallmentValue = share
		if expenses[i].Installments != nil {
			expenses[i].Installments.Total = count
		}
	}
}
