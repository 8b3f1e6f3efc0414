package reconciler

import (
	"slices"

	"github.com/septivank/youtilitics-worker/internal/youtilitics"
	"github.com/septivank/youtilitics-worker/tools/timeparser"
)

// sortReadings returns a copy of readings ordered by timestamp, ties kept in arrival order
func sortReadings(readings []youtilitics.Reading) []youtilitics.Reading {
	sorted := slices.Clone(readings)
	slices.SortStableFunc(sorted, func(a, b youtilitics.Reading) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return sorted
}

// groupByDay splits sorted readings into runs sharing a calendar date
func groupByDay(sorted []youtilitics.Reading) [][]youtilitics.Reading {
	var (
		days    [][]youtilitics.Reading
		current []youtilitics.Reading
		key     string
	)
	for _, r := range sorted {
		k := timeparser.DayKey(r.Timestamp)
		if len(current) > 0 && k != key {
			days = append(days, current)
			current = nil
		}
		key = k
		current = append(current, r)
	}
	if len(current) > 0 {
		days = append(days, current)
	}
	return days
}

// sampled reports whether index i of a day batch is emitted during backfill
func sampled(i, stride int) bool {
	return i%stride == 0
}
