package models

import "time"

// DateLayout is the calendar-date format used as the ledger key
const DateLayout = "2006-01-02"

// Mood value bounds and entry limits
const (
	MinMoodValue  = 1
	MaxMoodValue  = 5
	MaxNoteLength = 200
	MaxTags       = 5
)

// MoodEntry represents one day's logged mood.
// The ledger holds at most one entry per Date.
type MoodEntry struct {
	Date      string    `json:"date" validate:"required,isodate"`
	MoodValue int       `json:"moodValue" validate:"min=1,max=5"`
	Label     string    `json:"label"`
	Emoji     string    `json:"emoji"`
	Note      string    `json:"note,omitempty" validate:"max=200"`
	Tags      []string  `json:"tags,omitempty" validate:"max=5,unique,dive,required"`
	LoggedAt  time.Time `json:"loggedAt"`
}

// MoodInfo is the static presentation attached to a mood value
type MoodInfo struct {
	Value int    `json:"value"`
	Label string `json:"label"`
	Emoji string `json:"emoji"`
}

var moodTable = map[int]MoodInfo{
	1: {Value: 1, Label: "Awful", Emoji: "😢"},
	2: {Value: 2, Label: "Bad", Emoji: "😕"},
	3: {Value: 3, Label: "Okay", Emoji: "😐"},
	4: {Value: 4, Label: "Good", Emoji: "🙂"},
	5: {Value: 5, Label: "Great", Emoji: "😄"},
}

// LookupMood returns the label and emoji for a mood value
func LookupMood(value int) (MoodInfo, bool) {
	info, ok := moodTable[value]
	return info, ok
}

// Decorate fills Label and Emoji from MoodValue
func (e *MoodEntry) Decorate() {
	if info, ok := LookupMood(e.MoodValue); ok {
		e.Label = info.Label
		e.Emoji = info.Emoji
	}
}

// IsPositive reports whether the entry counts toward positive-mood badges
func (e MoodEntry) IsPositive() bool {
	return e.MoodValue >= 4
}

// ParseDate parses a ledger date key
func ParseDate(date string) (time.Time, error) {
	return time.Parse(DateLayout, date)
}

// FormatDate formats t's calendar date (in t's location) as a ledger key
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// CalendarDay truncates t to midnight UTC of its calendar date in t's location.
// Comparing CalendarDay values gives day-granularity ordering independent of
// wall-clock time and DST.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MoodSummary aggregates entries in a range
type MoodSummary struct {
	Count        int         `json:"count"`
	Average      float64     `json:"average"`
	Distribution map[int]int `json:"distribution"`
	MostCommon   int         `json:"mostCommon,omitempty"`
}
