package core

import "testing"

func TestExpandInstallments(t *testing.T) {
	base := Expense{
		Title:         "New fridge",
		CategoryID:    "cat-home",
		TotalValue:    Money{Cents: 1200},
		PaymentMethod: "card-1",
	}

	series, err := ExpandInstallments(base, "2024-01", 3)
	if err != nil {
		t.Fatalf("ExpandInstallments: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("got %d records, want 3", len(series))
	}

	wantMonths := []Month{"2024-01", "2024-02", "2024-03"}
	for i, e := range series {
		if e.BillingMonth != wantMonths[i] {
			t.Errorf("parcel %d: billing month %s, want %s", i+1, e.BillingMonth, wantMonths[i])
		}
		if e.Installments.Current != i+1 {
			t.Errorf("parcel %d: current = %d", i+1, e.Installments.Current)
		}
		if e.Installments.Total != 3 {
			t.Errorf("parcel %d: total = %d, want 3", i+1, e.Installments.Total)
		}
		if e.SeriesID != series[0].SeriesID {
			t.Errorf("parcel %d: series id %q differs from %q", i+1, e.SeriesID, series[0].SeriesID)
		}
		if e.InstallmentValue.Cents != 400 {
			t.Errorf("parcel %d: value %d, want 400", i+1, e.InstallmentValue.Cents)
		}
		if e.Title != "New fridge" || e.CategoryID != "cat-home" || e.PaymentMethod != "card-1" {
			t.Errorf("parcel %d: base fields not carried over: %+v", i+1, e)
		}
	}
	if series[0].SeriesID == "" {
		t.Error("series id must be assigned")
	}
}

func TestExpandInstallmentsRemainderGoesToLastParcel(t *testing.T) {
	series, err := ExpandInstallments(Expense{Title: "Sofa", TotalValue: Money{Cents: 100000}}, "2024-01", 3)
	if err != nil {
		t.Fatalf("ExpandInstallments: %v", err)
	}

	var sum int64
	for _, e := range series {
		sum += e.InstallmentValue.Cents
	}
	if sum != 100000 {
		t.Errorf("parcels sum to %d, want 100000", sum)
	}
	if series[0].InstallmentValue.Cents != 33333 || series[2].InstallmentValue.Cents != 33334 {
		t.Errorf("remainder must land on the last parcel: got %d/%d/%d",
			series[0].InstallmentValue.Cents, series[1].InstallmentValue.Cents, series[2].InstallmentValue.Cents)
	}
}

func TestExpandInstallmentsRejectsBadInput(t *testing.T) {
	if _, err := ExpandInstallments(Expense{Title: "x"}, "2024-01", 0); err == nil {
		t.Error("zero installments must be rejected")
	}
	if _, err := ExpandInstallments(Expense{Title: "x"}, "garbage", 2); err == nil {
		t.Error("malformed start month must be rejected")
	}
}

// threeParcelSeries builds a 3-parcel series of 100 cents each for the
// re-projection tests.
func threeParcelSeries(t *testing.T) []Expense {
	t.Helper()
	series, err := ExpandInstallments(Expense{Title: "TV", TotalValue: Money{Cents: 300}}, "2024-01", 3)
	if err != nil {
		t.Fatalf("ExpandInstallments: %v", err)
	}
	return series
}

func TestUpdateExpenseScopeFuture(t *testing.T) {
	expenses := threeParcelSeries(t)

	newTotal := Money{Cents: 180}
	newCount := 2
	updated, err := UpdateExpenseWithScope(expenses, expenses[1].ID, ExpenseUpdate{
		TotalValue:       &newTotal,
		InstallmentCount: &newCount,
	}, ScopeFuture)
	if err != nil {
		t.Fatalf("UpdateExpenseWithScope: %v", err)
	}

	// Parcel 1 is before the scope boundary and keeps its old values.
	if updated[0].InstallmentValue.Cents != 100 || updated[0].Installments.Total != 3 {
		t.Errorf("parcel 1 must be untouched: value %d total %d", updated[0].InstallmentValue.Cents, updated[0].Installments.Total)
	}
	for i := 1; i <= 2; i++ {
		if updated[i].InstallmentValue.Cents != 90 {
			t.Errorf("parcel %d: value %d, want 90", i+1, updated[i].InstallmentValue.Cents)
		}
		if updated[i].Installments.Total != 2 {
			t.Errorf("parcel %d: total %d, want 2", i+1, updated[i].Installments.Total)
		}
	}

	// Input slice must stay untouched.
	if expenses[1].InstallmentValue.Cents != 100 || expenses[1].Installments.Total != 3 {
		t.Error("input slice was mutated")
	}
}

func TestUpdateExpenseScopeOnly(t *testing.T) {
	expenses := threeParcelSeries(t)

	title := "TV (warranty)"
	updated, err := UpdateExpenseWithScope(expenses, expenses[1].ID, ExpenseUpdate{Title: &title}, ScopeOnly)
	if err != nil {
		t.Fatalf("UpdateExpenseWithScope: %v", err)
	}

	if updated[1].Title != title {
		t.Errorf("target title = %q, want %q", updated[1].Title, title)
	}
	if updated[0].Title != "TV" || updated[2].Title != "TV" {
		t.Error("siblings must not change on scope only")
	}
}

func TestUpdateExpenseScopeAll(t *testing.T) {
	expenses := threeParcelSeries(t)

	newTotal := Money{Cents: 600}
	updated, err := UpdateExpenseWithScope(expenses, expenses[2].ID, ExpenseUpdate{TotalValue: &newTotal}, ScopeAll)
	if err != nil {
		t.Fatalf("UpdateExpenseWithScope: %v", err)
	}

	for i := range updated {
		if updated[i].InstallmentValue.Cents != 200 {
			t.Errorf("parcel %d: value %d, want 200", i+1, updated[i].InstallmentValue.Cents)
		}
		if updated[i].TotalValue.Cents != 600 {
			t.Errorf("parcel %d: total value %d, want 600", i+1, updated[i].TotalValue.Cents)
		}
	}
}

func TestUpdateExpenseScopeIgnoredForNonSeries(t *testing.T) {
	expenses := []Expense{
		{ID: "a", Title: "Dinner", Type: ExpenseOneTime, BillingMonth: "2024-01", InstallmentValue: Money{Cents: 40}},
		{ID: "b", Title: "Taxi", Type: ExpenseOneTime, BillingMonth: "2024-01", InstallmentValue: Money{Cents: 20}},
	}

	title := "Dinner out"
	updated, err := UpdateExpenseWithScope(expenses, "a", ExpenseUpdate{Title: &title}, ScopeAll)
	if err != nil {
		t.Fatalf("UpdateExpenseWithScope: %v", err)
	}
	if updated[0].Title != title {
		t.Errorf("target not updated: %q", updated[0].Title)
	}
	if updated[1].Title != "Taxi" {
		t.Error("unrelated record was touched")
	}
}

func TestUpdateExpenseErrors(t *testing.T) {
	expenses := threeParcelSeries(t)

	if _, err := UpdateExpenseWithScope(expenses, "missing", ExpenseUpdate{}, ScopeOnly); err == nil {
		t.Error("unknown id must error")
	}
	if _, err := UpdateExpenseWithScope(expenses, expenses[0].ID, ExpenseUpdate{}, "sideways"); err == nil {
		t.Error("unknown scope must error")
	}
	zero := 0
	if _, err := UpdateExpenseWithScope(expenses, expenses[0].ID, ExpenseUpdate{InstallmentCount: &zero}, ScopeAll); err == nil {
		t.Error("installment count below 1 must error")
	}
}

func TestBuildSeriesIndexOrdersByParcel(t *testing.T) {
	series := threeParcelSeries(t)
	// Shuffle storage order; the index must still come out parcel-ordered.
	shuffled := []Expense{series[2], series[0], series[1]}

	index := BuildSeriesIndex(shuffled)
	members := index[series[0].SeriesID]
	if len(members) != 3 {
		t.Fatalf("got %d members, want 3", len(members))
	}
	for pos, i := range members {
		if shuffled[i].Installments.Current != pos+1 {
			t.Errorf("position %d holds parcel %d", pos, shuffled[i].Installments.Current)
		}
	}
}
