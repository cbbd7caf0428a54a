package ledger

import (
	"fmt"
	"strings"
	"time"

	"moodledger/internal/apperrors"
	"moodledger/internal/models"
)

// Range names a trailing window ending today
type Range string

const (
	Range7D  Range = "7d"
	Range30D Range = "30d"
	Range90D Range = "90d"
	Range6M  Range = "6m"
	Range1Y  Range = "1y"
	RangeAll Range = "all"
)

// Ranges lists every supported range
var Ranges = []Range{Range7D, Range30D, Range90D, Range6M, Range1Y, RangeAll}

// ParseRange parses a range name
func ParseRange(s string) (Range, error) {
	r := Range(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Ranges {
		if r == known {
			return r, nil
		}
	}
	return "", apperrors.NewDetailedValidationError("invalid range", []apperrors.FieldError{{
		Field: "range", Value: s, Message: fmt.Sprintf("must be one of %v", Ranges), Code: "oneof",
	}})
}

// Bounds returns the inclusive calendar-day interval [start, today] for r.
// ok is false for RangeAll and unknown ranges.
func (r Range) Bounds(now time.Time) (start, end time.Time, ok bool) {
	today := models.CalendarDay(now)
	switch r {
	case Range7D:
		return today.AddDate(0, 0, -7), today, true
	case Range30D:
		return today.AddDate(0, 0, -30), today, true
	case Range90D:
		return today.AddDate(0, 0, -90), today, true
	case Range6M:
		return today.AddDate(0, -6, 0), today, true
	case Range1Y:
		return today.AddDate(-1, 0, 0), today, true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// FilterRange selects entries whose date key falls in rng relative to now.
// RangeAll returns every entry; malformed keys never match a bounded range.
func FilterRange(entries map[string]models.MoodEntry, rng Range, now time.Time) []models.MoodEntry {
	out := make([]models.MoodEntry, 0, len(entries))

	start, end, bounded := rng.Bounds(now)
	if !bounded {
		if rng != RangeAll {
			return out
		}
		for _, e := range entries {
			out = append(out, e)
		}
		return out
	}

	for key, e := range entries {
		d, err := models.ParseDate(key)
		if err != nil {
			continue
		}
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Summarize computes count, average and distribution over entries
func Summarize(entries []models.MoodEntry) models.MoodSummary {
	s := models.MoodSummary{Distribution: make(map[int]int, models.MaxMoodValue)}
	for v := models.MinMoodValue; v <= models.MaxMoodValue; v++ {
		s.Distribution[v] = 0
	}
	if len(entries) == 0 {
		return s
	}

	total := 0
	for _, e := range entries {
		total += e.MoodValue
		s.Distribution[e.MoodValue]++
	}
	s.Count = len(entries)
	s.Average = float64(total) / float64(len(entries))

	// ties go to the higher mood
	best := 0
	for v := models.MaxMoodValue; v >= models.MinMoodValue; v-- {
		if s.Distribution[v] > best {
			best = s.Distribution[v]
			s.MostCommon = v
		}
	}
	return s
}
