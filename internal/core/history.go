package core

import "sort"

// PushHistoryEntry appends a ledger entry and returns a new slice,
// sorted ascending by month and deduplicated so that at most one entry
// exists per month. Re-pushing a month overwrites the earlier entry
// (last write wins); the input slice is never mutated.
func PushHistoryEntry(history []ValueHistoryItem, month Month, value Money, paymentMethod string) []ValueHistoryItem {
	next := make([]ValueHistoryItem, 0, len(history)+1)
	next = append(next, history...)
	next = append(next, ValueHistoryItem{
		Month:         month,
		Value:         value,
		PaymentMethod: paymentMethod,
	})

	sort.SliceStable(next, func(i, j int) bool {
		return next[i].Month < next[j].Month
	})

	// Stable sort keeps push order within one month, so the last
	// occurrence is the newest write.
	deduped := next[:0]
	for i, item := range next {
		if i+1 < len(next) && next[i+1].Month == item.Month {
			continue
		}
		deduped = append(deduped, item)
	}
	return deduped
}

// HistoryAt picks the ledger entry in effect for the target month: the
// most recent entry at or before it. Targets earlier than the whole
// ledger fall back to the earliest entry, so a fixed entity keeps its
// first known value when queried into the past instead of dropping to
// zero. The boolean is false only for an empty ledger.
func HistoryAt(history []ValueHistoryItem, month Month) (ValueHistoryItem, bool) {
	if len(history) == 0 {
		return ValueHistoryItem{}, false
	}

	var (
		chosen ValueHistoryItem
		found  bool
	)
	for _, item := range history {
		if item.Month > month {
			continue
		}
		if !found || item.Month > chosen.Month {
			chosen = item
			found = true
		}
	}
	if found {
		return chosen, true
	}

	// Target predates every entry: back-project the earliest value.
	earliest := history[0]
	for _, item := range history[1:] {
		if item.Month < earliest.Month {
			earliest = item
		}
	}
	return earliest, true
}
