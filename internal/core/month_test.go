package core

import (
	"testing"
	"time"
)

func TestMonthAddMonths(t *testing.T) {
	tests := []struct {
		name  string
		month Month
		n     int
		want  Month
	}{
		{name: "within year", month: "2024-03", n: 2, want: "2024-05"},
		{name: "year rollover forward", month: "2024-12", n: 1, want: "2025-01"},
		{name: "multi-year jump", month: "2024-11", n: 14, want: "2026-01"},
		{name: "zero months", month: "2024-06", n: 0, want: "2024-06"},
		{name: "backward within year", month: "2024-06", n: -3, want: "2024-03"},
		{name: "year rollover backward", month: "2025-01", n: -1, want: "2024-12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.month.AddMonths(tt.n); got != tt.want {
				t.Errorf("AddMonths(%d) = %s, want %s", tt.n, got, tt.want)
			}
		})
	}
}

func TestMonthValid(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"2024-01", true},
		{"2024-12", true},
		{"2024-13", false},
		{"2024-00", false},
		{"2024-1", false},
		{"202401", false},
		{"abcd-ef", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Month(tt.input).Valid(); got != tt.want {
				t.Errorf("Month(%q).Valid() = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestMonthOrderingIsChronological(t *testing.T) {
	if !Month("2024-09").Before("2024-10") {
		t.Error("2024-09 should sort before 2024-10")
	}
	if !Month("2024-12").Before("2025-01") {
		t.Error("2024-12 should sort before 2025-01")
	}
}

func TestBillingMonthFor(t *testing.T) {
	purchase := time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC)
	if got := BillingMonthFor(purchase); got != "2025-01" {
		t.Errorf("BillingMonthFor(2024-12-20) = %s, want 2025-01", got)
	}
}
