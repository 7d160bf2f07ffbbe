package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidMonth is returned for a month that is not YYYY-MM.
var ErrInvalidMonth = errors.New("invalid month")

// DateLayout is the calendar-day format stored in HistoryEntry.DateString.
const DateLayout = "2006-01-02"

// HistoryEntry is the summary kept after a session finishes. It answers
// "did the user train on day D" and is never replayed.
type HistoryEntry struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	EndTime    time.Time `json:"endTime"`
	DateString string    `json:"dateString"`
}

// NewHistoryEntry summarises a sealed session. The calendar day is taken in
// the location of the session's end time.
func NewHistoryEntry(s *Session) HistoryEntry {
	var end time.Time
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return HistoryEntry{
		ID:         s.ID,
		Name:       s.Name,
		EndTime:    end,
		DateString: end.Format(DateLayout),
	}
}

// TrainedOn reports whether any entry falls on day's calendar date.
func TrainedOn(entries []HistoryEntry, day time.Time) bool {
	key := day.Format(DateLayout)
	for _, e := range entries {
		if e.DateString == key {
			return true
		}
	}
	return false
}

// TrainingDays returns the sorted, de-duplicated days of month that have at
// least one entry.
func TrainingDays(entries []HistoryEntry, year int, month time.Month) []int {
	seen := make(map[int]bool)
	for _, e := range entries {
		d, err := time.Parse(DateLayout, e.DateString)
		if err != nil {
			continue
		}
		if d.Year() == year && d.Month() == month {
			seen[d.Day()] = true
		}
	}
	days := make([]int, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}

// MonthLayout is the format of a HistoryReport month.
const MonthLayout = "2006-01"

// HistoryReport is the history of one calendar month, or of all time when
// Month is empty.
type HistoryReport struct {
	Month        string         `json:"month,omitempty"`
	Entries      []HistoryEntry `json:"entries"`
	TrainingDays []int          `json:"trainingDays,omitempty"`
}

// MonthReport filters entries to month (YYYY-MM). An empty month keeps
// every entry and lists no training days.
func MonthReport(entries []HistoryEntry, month string) (HistoryReport, error) {
	if month == "" {
		out := make([]HistoryEntry, len(entries))
		copy(out, entries)
		return HistoryReport{Entries: out}, nil
	}
	m, err := time.Parse(MonthLayout, month)
	if err != nil {
		return HistoryReport{}, fmt.Errorf("%w: %q is not YYYY-MM", ErrInvalidMonth, month)
	}

	r := HistoryReport{
		Month:        month,
		Entries:      []HistoryEntry{},
		TrainingDays: TrainingDays(entries, m.Year(), m.Month()),
	}
	prefix := month + "-"
	for _, e := range entries {
		if len(e.DateString) > len(prefix) && e.DateString[:len(prefix)] == prefix {
			r.Entries = append(r.Entries, e)
		}
	}
	return r, nil
}
