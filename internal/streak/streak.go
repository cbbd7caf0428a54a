// Package streak derives consecutive-day counts from a mood ledger.
// Every function here is pure and safe to call on each ledger read.
package streak

import (
	"time"

	"moodledger/internal/models"

	"golang.org/x/exp/slices"
)

// MaxWindow bounds the backward scan so Compute stays O(MaxWindow)
const MaxWindow = 365

// Compute counts consecutive calendar days ending today that have an entry.
// A ledger without an entry for today has a streak of 0.
func Compute(entries map[string]models.MoodEntry, today time.Time) int {
	day := models.CalendarDay(today)
	count := 0
	for count < MaxWindow {
		if _, ok := entries[models.FormatDate(day)]; !ok {
			break
		}
		count++
		day = day.AddDate(0, 0, -1)
	}
	return count
}

// Longest returns the longest run of consecutive logged days anywhere in
// entries. Malformed date keys are ignored.
func Longest(entries map[string]models.MoodEntry) int {
	days := make([]time.Time, 0, len(entries))
	for key := range entries {
		d, err := models.ParseDate(key)
		if err != nil {
			continue
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return 0
	}

	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })

	best, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i-1].AddDate(0, 0, 1).Equal(days[i]) {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
