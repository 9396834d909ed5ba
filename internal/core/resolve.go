// This file implements the month-bucketed value resolution engine.
// Each entity type has its own resolver that encapsulates how the
// effective value for an arbitrary target month is found. Fixed
// entities model "the standing value as of any point in time" through
// a sparse changelog; one-time and installment entities model a dated
// charge that exists in exactly one billing bucket. The asymmetry is
// deliberate and the two algorithms must not be merged.

package core

// ResolvedExpense is the outcome of resolving one expense for one
// month: the effective value and the payment method that applied.
type ResolvedExpense struct {
	Value         Money
	PaymentMethod string
}

// IncomeResolver is the strategy interface for resolving an income's
// effective value in a target month.
type IncomeResolver interface {
	Resolve(inc Income, month Month) Money
}

// ExpenseResolver is the strategy interface for resolving an expense's
// effective value and payment method in a target month.
type ExpenseResolver interface {
	Resolve(e Expense, month Month) ResolvedExpense
}

// fixedIncomeResolver resolves through the value history ledger.
type fixedIncomeResolver struct{}

func (fixedIncomeResolver) Resolve(inc Income, month Month) Money {
	entry, ok := HistoryAt(inc.ValueHistory, month)
	if !ok {
		return Money{}
	}
	return entry.Value
}

// temporaryIncomeResolver resolves to the flat amount inside the
// activity window and zero outside it. The window check happens at
// query time; temporary incomes are never deleted by expiry.
type temporaryIncomeResolver struct{}

func (temporaryIncomeResolver) Resolve(inc Income, month Month) Money {
	if inc.DurationMonths < 1 {
		return Money{}
	}
	endMonth := inc.StartMonth.AddMonths(inc.DurationMonths - 1)
	if month < inc.StartMonth || month > endMonth {
		return Money{}
	}
	return inc.Amount
}

// fixedExpenseResolver mirrors the fixed income lookup. The payment
// method comes from the chosen ledger entry, falling back to the
// expense's own when the entry has none.
type fixedExpenseResolver struct{}

func (fixedExpenseResolver) Resolve(e Expense, month Month) ResolvedExpense {
	entry, ok := HistoryAt(e.ValueHistory, month)
	if !ok {
		return ResolvedExpense{PaymentMethod: e.EffectivePaymentMethod()}
	}
	method := entry.PaymentMethod
	if method == "" {
		method = e.EffectivePaymentMethod()
	}
	return ResolvedExpense{Value: entry.Value, PaymentMethod: method}
}

// billedExpenseResolver covers one-time and installment expenses: the
// installment value applies only when the billing month matches.
type billedExpenseResolver struct{}

func (billedExpenseResolver) Resolve(e Expense, month Month) ResolvedExpense {
	resolved := ResolvedExpense{PaymentMethod: e.EffectivePaymentMethod()}
	if e.BillingMonth == month {
		resolved.Value = e.InstallmentValue
	}
	return resolved
}

var incomeResolvers = map[IncomeType]IncomeResolver{
	IncomeFixed:     fixedIncomeResolver{},
	IncomeTemporary: temporaryIncomeResolver{},
}

var expenseResolvers = map[ExpenseType]ExpenseResolver{
	ExpenseFixed:       fixedExpenseResolver{},
	ExpenseOneTime:     billedExpenseResolver{},
	ExpenseInstallment: billedExpenseResolver{},
}

// ResolveIncomeForMonth computes the income's effective value for the
// target month. Unknown types resolve to zero rather than erroring;
// resolution is called once per rendered row and must never panic.
func ResolveIncomeForMonth(inc Income, month Month) Money {
	resolver, ok := incomeResolvers[inc.Type]
	if !ok {
		return Money{}
	}
	return resolver.Resolve(inc, month)
}

// ResolveExpenseForMonth computes the expense's effective value and
// payment method for the target month. Unknown types resolve to a
// zero value on the cash bucket.
func ResolveExpenseForMonth(e Expense, month Month) ResolvedExpense {
	resolver, ok := expenseResolvers[e.Type]
	if !ok {
		return ResolvedExpense{PaymentMethod: e.EffectivePaymentMethod()}
	}
	return resolver.Resolve(e, month)
}
