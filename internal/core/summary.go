package core

// CategoryAmount is an amount aggregated under one category.
type CategoryAmount struct {
	CategoryID string `json:"categoryId,omitempty"`
	Name       string `json:"name"`
	Amount     Money  `json:"amount"`
}

// CardAmount is the month's total charged to one card, with the
// statement payment status for that month.
type CardAmount struct {
	CardID string `json:"cardId"`
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
	IsPaid bool   `json:"isPaid"`
}

// MonthSummary is the fully resolved view of one calendar month.
type MonthSummary struct {
	Month        Month            `json:"month"`
	TotalIncome  Money            `json:"totalIncome"`
	TotalExpense Money            `json:"totalExpense"`
	Balance      Money            `json:"balance"`
	CashTotal    Money            `json:"cashTotal"`
	PerCard      []CardAmount     `json:"perCard"`
	PerCategory  []CategoryAmount `json:"perCategory"`
}

// CashFlowPoint is one month of a cash-flow series. Each point stands
// alone; nothing is cumulative.
type CashFlowPoint struct {
	Month   Month `json:"month"`
	Income  Money `json:"income"`
	Expense Money `json:"expense"`
	Balance Money `json:"balance"`
}

// AggregateMonth folds every entity's resolved value for the target
// month into a summary. It is a pure function over its inputs: calling
// it twice with unmutated inputs yields identical results, and nothing
// is cached here. Expenses only count when they resolve to a value
// above zero; dangling category references fold into the Other bucket
// and unknown payment methods into cash.
func AggregateMonth(incomes []Income, expenses []Expense, cards []CreditCard, categories []Category, payments []CardPaymentStatus, month Month) MonthSummary {
	summary := MonthSummary{Month: month}

	for _, inc := range incomes {
		summary.TotalIncome = summary.TotalIncome.Add(ResolveIncomeForMonth(inc, month))
	}

	categoryNames := make(map[string]string, len(categories))
	for _, c := range categories {
		categoryNames[c.ID] = c.Name
	}
	cardTotals := make(map[string]Money, len(cards))
	knownCards := make(map[string]bool, len(cards))
	for _, c := range cards {
		knownCards[c.ID] = true
	}

	categoryTotals := make(map[string]Money)
	var categoryOrder []string

	for _, e := range expenses {
		resolved := ResolveExpenseForMonth(e, month)
		if !resolved.Value.IsPositive() {
			continue
		}
		summary.TotalExpense = summary.TotalExpense.Add(resolved.Value)

		if knownCards[resolved.PaymentMethod] {
			cardTotals[resolved.PaymentMethod] = cardTotals[resolved.PaymentMethod].Add(resolved.Value)
		} else {
			// Cash and dangling card references share one bucket.
			summary.CashTotal = summary.CashTotal.Add(resolved.Value)
		}

		catID := e.CategoryID
		if _, known := categoryNames[catID]; !known {
			catID = ""
		}
		if _, seen := categoryTotals[catID]; !seen {
			categoryOrder = append(categoryOrder, catID)
		}
		categoryTotals[catID] = categoryTotals[catID].Add(resolved.Value)
	}

	summary.Balance = summary.TotalIncome.Sub(summary.TotalExpense)

	for _, card := range cards {
		summary.PerCard = append(summary.PerCard, CardAmount{
			CardID: card.ID,
			Name:   card.Name,
			Amount: cardTotals[card.ID],
			IsPaid: cardPaid(payments, card.ID, month),
		})
	}

	for _, catID := range categoryOrder {
		name := categoryNames[catID]
		if catID == "" {
			name = UncategorizedName
		}
		summary.PerCategory = append(summary.PerCategory, CategoryAmount{
			CategoryID: catID,
			Name:       name,
			Amount:     categoryTotals[catID],
		})
	}

	return summary
}

// CashFlowSeries resolves total income and expense independently for
// each of the months consecutive months starting at start.
func CashFlowSeries(incomes []Income, expenses []Expense, start Month, months int) []CashFlowPoint {
	if months < 1 {
		return nil
	}
	series := make([]CashFlowPoint, 0, months)
	for i := 0; i < months; i++ {
		month := start.AddMonths(i)
		point := CashFlowPoint{Month: month}
		for _, inc := range incomes {
			point.Income = point.Income.Add(ResolveIncomeForMonth(inc, month))
		}
		for _, e := range expenses {
			if resolved := ResolveExpenseForMonth(e, month); resolved.Value.IsPositive() {
				point.Expense = point.Expense.Add(resolved.Value)
			}
		}
		point.Balance = point.Income.Sub(point.Expense)
		series = append(series, point)
	}
	return series
}

// cardPaid looks up the (card, month) payment toggle. No record means
// the statement has not been paid.
func cardPaid(payments []CardPaymentStatus, cardID string, month Month) bool {
	for _, p := range payments {
		if p.CardID == cardID && p.Month == month {
			return p.IsPaid
		}
	}
	return false
}
