// Package localtime converts between UTC instants and the wall-clock view
// used by activity rules ("Saturday morning", "weekday commute").
// ALL timestamps in the codebase are UTC; local time exists only for rule checks.
package localtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the civil date format used in files and summaries.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date as local midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return d, nil
}

// Day returns local midnight of the day containing t.
func Day(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// DayBounds returns the UTC instants at which the local day containing date starts and ends.
// The end is exclusive; DST days are 23 or 25 hours long.
func DayBounds(date time.Time, loc *time.Location) (start, end time.Time) {
	d := Day(date, loc)
	return d.UTC(), d.AddDate(0, 0, 1).UTC()
}

// Dates returns every local date from start to end inclusive.
func Dates(start, end time.Time, loc *time.Location) []time.Time {
	s, e := Day(start, loc), Day(end, loc)
	var out []time.Time
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Clock is a wall-clock time of day, in minutes after midnight.
type Clock int

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parsing clock %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// UnmarshalJSON accepts "HH:MM".
func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("clock must be a string: %w", err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalJSON writes "HH:MM".
func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// clockOf returns the local time of day of t, with second precision.
func clockOf(t time.Time, loc *time.Location) time.Duration {
	l := t.In(loc)
	return time.Duration(l.Hour())*time.Hour + time.Duration(l.Minute())*time.Minute + time.Duration(l.Second())*time.Second
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Weekdays is a set of days of the week. The empty set means every day.
type Weekdays uint8

// Weekday set shorthands.
const (
	EveryDay Weekdays = 0
	Workdays Weekdays = 1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday | 1<<time.Thursday | 1<<time.Friday
	Weekend  Weekdays = 1<<time.Saturday | 1<<time.Sunday
)

// DaysOf builds a set from the given weekdays.
func DaysOf(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= 1 << d
	}
	return w
}

// Has reports whether d is in the set.
func (w Weekdays) Has(d time.Weekday) bool {
	return w == EveryDay || w&(1<<d) != 0
}

// UnmarshalJSON accepts a list of three-letter day names ("mon".."sun").
func (w *Weekdays) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return fmt.Errorf("days must be a list of day names: %w", err)
	}
	var set Weekdays
	for _, n := range names {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return fmt.Errorf("unknown day %q", n)
		}
		set |= 1 << d
	}
	*w = set
	return nil
}

// MarshalJSON writes the set as day names; an empty list means every day.
func (w Weekdays) MarshalJSON() ([]byte, error) {
	names := []string{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w != EveryDay && w&(1<<d) != 0 {
			names = append(names, strings.ToLower(d.String()[:3]))
		}
	}
	return json.Marshal(names)
}

// Window is a daily time-of-day range on a set of weekdays. End is inclusive.
type Window struct {
	Days  Weekdays `json:"days"`
	Start Clock    `json:"start"`
	End   Clock    `json:"end"`
}

// Contains reports whether t falls inside the window in loc.
func (w Window) Contains(t time.Time, loc *time.Location) bool {
	dist, ok := w.Distance(t, loc)
	return ok && dist == 0
}

// Distance returns how far outside the window t lies on its own day; zero when inside.
// ok is false when t falls on a day the window does not cover.
func (w Window) Distance(t time.Time, loc *time.Location) (dist time.Duration, ok bool) {
	if !w.Days.Has(t.In(loc).Weekday()) {
		return 0, false
	}
	c := clockOf(t, loc)
	start := time.Duration(w.Start) * time.Minute
	end := time.Duration(w.End) * time.Minute
	switch {
	case c < start:
		return start - c, true
	case c > end:
		return c - end, true
	default:
		return 0, true
	}
}
