package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "12.34", want: 1234},
		{input: "12,34", want: 1234},
		{input: "12.345", want: 1234},
		{input: "12.346", want: 1235},
		{input: "7", want: 700},
		{input: "-3.00", wantErr: true},
		{input: "0", wantErr: true},
		{input: "", wantErr: true},
		{input: "1.2.3", wantErr: true},
		{input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalToCents(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDecimalToCents(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimalToCents(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDecimalToCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitEven(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		n     int
		want  []int64
	}{
		{name: "even split", total: 1200, n: 3, want: []int64{400, 400, 400}},
		{name: "remainder to last", total: 1000, n: 3, want: []int64{333, 333, 334}},
		{name: "single share", total: 555, n: 1, want: []int64{555}},
		{name: "rejects zero shares", total: 100, n: 0, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares := SplitEven(Money{Cents: tt.total}, tt.n)
			if len(shares) != len(tt.want) {
				t.Fatalf("got %d shares, want %d", len(shares), len(tt.want))
			}
			var sum int64
			for i, s := range shares {
				if s.Cents != tt.want[i] {
					t.Errorf("share %d = %d, want %d", i, s.Cents, tt.want[i])
				}
				sum += s.Cents
			}
			if tt.n > 0 && sum != tt.total {
				t.Errorf("shares sum to %d, want %d", sum, tt.total)
			}
		})
	}
}

func TestFormatEuros(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{1234, "€12,34"},
		{100, "€1,00"},
		{5, "€0,05"},
		{-250, "-€2,50"},
	}

	for _, tt := range tests {
		if got := FormatEuros(tt.cents); got != tt.want {
			t.Errorf("FormatEuros(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
