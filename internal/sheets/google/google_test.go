package google

import (
	"testing"

	"bilancio/internal/core"
)

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Dashboard", 2025, "2025 Dashboard"},
		{"2024 Dashboard", 2025, "2024 Dashboard"},
		{"  Dashboard  ", 2025, "2025 Dashboard"},
		{"", 2025, ""},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestCardBreakdown(t *testing.T) {
	cards := []core.CardAmount{
		{Name: "Visa", Amount: core.Money{Cents: 12345}, IsPaid: true},
		{Name: "Amex", Amount: core.Money{Cents: 0}},
		{Name: "Mastercard", Amount: core.Money{Cents: 500}},
	}

	got := cardBreakdown(cards)
	want := "Visa: €123,45 (paid), Mastercard: €5,00 (unpaid)"
	if got != want {
		t.Errorf("cardBreakdown() = %q, want %q", got, want)
	}
}

func TestCardBreakdownEmpty(t *testing.T) {
	if got := cardBreakdown(nil); got != "" {
		t.Errorf("cardBreakdown(nil) = %q, want empty", got)
	}
}
