// Package memory is an in-memory SummaryWriter used by worker tests.
package memory

import (
	"context"
	"sync"

	"bilancio/internal/core"
)

type Store struct {
	mu        sync.Mutex
	summaries map[core.Month]core.MonthSummary
	order     []core.Month
}

func New() *Store {
	return &Store{summaries: make(map[core.Month]core.MonthSummary)}
}

// WriteMonthSummary stores the summary, overwriting any earlier write
// for the same month.
func (s *Store) WriteMonthSummary(_ context.Context, summary core.MonthSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.summaries[summary.Month]; !seen {
		s.order = append(s.order, summary.Month)
	}
	s.summaries[summary.Month] = summary
	return nil
}

// Summary returns the last summary written for a month.
func (s *Store) Summary(month core.Month) (core.MonthSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, ok := s.summaries[month]
	return summary, ok
}

// Months lists the months written so far, in first-write order.
func (s *Store) Months() []core.Month {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Month(nil), s.order...)
}
