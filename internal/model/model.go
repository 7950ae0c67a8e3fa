package model

import (
	"errors"
	"fmt"
	"time"
)

// Event is one calendar entry as published by the portal, after repair.
//
// Start and End keep the portal's text ("2024-08-19T08:00:00"); use
// StartTime/EndTime for parsed values. Start <= End is not enforced.
type Event struct {
	ID              string `json:"id"`
	Start           string `json:"start"`
	End             string `json:"end"`
	Title           string `json:"title"`
	ClassName       string `json:"className"`
	BackgroundColor string `json:"backgroundColor"`
	// Comment comes from extendedProps.commentaire and may contain HTML.
	Comment string `json:"comment"`
}

// Layouts accepted for Start/End. The portal has no zone designator.
var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ErrNoTime is returned when a start or end value is empty.
var ErrNoTime = errors.New("model: empty timestamp")

// ParseTime parses a portal timestamp as a wall-clock time in UTC.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, ErrNoTime
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("model: parse timestamp %q: %w", s, lastErr)
}

// StartTime parses Start.
func (e Event) StartTime() (time.Time, error) {
	return ParseTime(e.Start)
}

// EndTime parses End.
func (e Event) EndTime() (time.Time, error) {
	return ParseTime(e.End)
}

// OnDate reports whether the event starts on the given calendar day.
// Events with an unparseable start never match.
func (e Event) OnDate(day time.Time) bool {
	st, err := e.StartTime()
	if err != nil {
		return false
	}
	y1, m1, d1 := st.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// FilterByDate returns the events starting on day, preserving order.
func FilterByDate(events []Event, day time.Time) []Event {
	out := make([]Event, 0)
	for _, e := range events {
		if e.OnDate(day) {
			out = append(out, e)
		}
	}
	return out
}
