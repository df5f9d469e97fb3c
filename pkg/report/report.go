// Package report renders daily and trip summaries for the terminal.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/activity"
	"github.com/codeGROOVE-dev/tripsense/pkg/localtime"
	"github.com/codeGROOVE-dev/tripsense/pkg/trip"
	"github.com/fatih/color"
)

// slotsPerDay is the timeline resolution: one cell per 30 minutes.
const slotsPerDay = 48

// symbols marks each activity type on the timeline.
var symbols = map[activity.Type]string{
	activity.TypeGolf:         "G",
	activity.TypeParkrun:      "P",
	activity.TypeRunning:      "R",
	activity.TypeCommute:      "C",
	activity.TypeDogWalking:   "D",
	activity.TypeSnowboarding: "S",
}

func symbolFor(t activity.Type) string {
	if s, ok := symbols[t]; ok {
		return s
	}
	return "?"
}

// labelColor returns the color for a confidence label.
func labelColor(l activity.Label) *color.Color {
	switch l {
	case activity.LabelConfirmed:
		return color.New(color.FgBlue, color.Bold)
	case activity.LabelHigh:
		return color.New(color.FgGreen)
	case activity.LabelMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

// slot is one timeline cell; session is nil when nothing happened.
type slot struct {
	session *activity.Session
}

// timeline assigns sessions to the half-hour cells of the local day. When two
// sessions share a cell the one covering more of it wins.
func timeline(sessions []activity.Session, day time.Time, loc *time.Location) []slot {
	d := localtime.Day(day, loc)
	slots := make([]slot, slotsPerDay)
	best := make([]time.Duration, slotsPerDay)
	for i := range slotsPerDay {
		start := time.Date(d.Year(), d.Month(), d.Day(), i/2, (i%2)*30, 0, 0, loc)
		end := start.Add(30 * time.Minute)
		for j := range sessions {
			s := &sessions[j]
			covered := minTime(s.End, end).Sub(maxTime(s.Start, start))
			if covered > best[i] {
				best[i] = covered
				slots[i].session = s
			}
		}
	}
	return slots
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// Day renders one daily summary: a header, a half-hour timeline and one line per session.
func Day(sum trip.DailySummary, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var out strings.Builder

	header := "📅 " + sum.Date
	if sum.Trip != "" {
		header += " · " + sum.Trip
	}
	out.WriteString(color.New(color.Bold).Sprint(header) + "\n")

	if sum.Status != trip.StatusOK {
		out.WriteString(color.New(color.FgHiBlack).Sprintf("   no data: %s\n", sum.Error))
		return out.String()
	}

	day, err := localtime.ParseDate(sum.Date, loc)
	if err != nil {
		out.WriteString(fmt.Sprintf("   invalid date: %v\n", err))
		return out.String()
	}

	out.WriteString("   " + axis() + "\n")
	grey := color.New(color.FgHiBlack)
	var line strings.Builder
	for _, s := range timeline(sum.Sessions, day, loc) {
		if s.session == nil {
			line.WriteString(grey.Sprint("·"))
			continue
		}
		line.WriteString(labelColor(s.session.Label).Sprint(symbolFor(s.session.Type)))
	}
	out.WriteString("   " + line.String() + "\n")

	if len(sum.Sessions) == 0 {
		out.WriteString(fmt.Sprintf("   no activities (%d points)\n", sum.Points))
		return out.String()
	}
	for _, s := range sum.Sessions {
		out.WriteString("   " + sessionLine(s, loc) + "\n")
	}
	if sum.Dropped > 0 {
		out.WriteString(grey.Sprintf("   %d overlapping candidate(s) dropped\n", sum.Dropped))
	}
	return out.String()
}

// axis labels every third hour above the 48-cell timeline.
func axis() string {
	var b strings.Builder
	for h := 0; h < 24; h += 3 {
		b.WriteString(fmt.Sprintf("%-6s", fmt.Sprintf("%02d", h)))
	}
	return strings.TrimRight(b.String(), " ")
}

func sessionLine(s activity.Session, loc *time.Location) string {
	line := fmt.Sprintf("%s-%s  %-12s %s %4.2f  %s",
		s.Start.In(loc).Format("15:04"),
		s.End.In(loc).Format("15:04"),
		s.Type,
		labelColor(s.Label).Sprintf("%-9s", s.Label),
		s.Score,
		formatDuration(s.Duration))
	if s.LocationName != "" {
		line += "  @ " + s.LocationName
	}
	if d := formatDetails(s.Details); d != "" {
		line += "  (" + d + ")"
	}
	return line
}

func formatDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := details[k].(type) {
		case float64:
			parts = append(parts, fmt.Sprintf("%s=%.0f", k, v))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}

// Trip renders a trip summary with per-activity totals.
func Trip(ts trip.TripSummary) string {
	var out strings.Builder
	name := ts.Name
	if name == "" {
		name = "At home"
	}
	out.WriteString(color.New(color.Bold).Sprintf("🧳 %s  %s..%s  (%d days", name, ts.Start, ts.End, ts.Days))
	if ts.Unavailable > 0 {
		out.WriteString(color.New(color.Bold).Sprintf(", %d without data", ts.Unavailable))
	}
	out.WriteString(color.New(color.Bold).Sprint(")") + "\n")
	out.WriteString(strings.Repeat("─", 50) + "\n")

	if len(ts.Activities) == 0 {
		out.WriteString("   no activities\n")
		return out.String()
	}
	types := make([]activity.Type, 0, len(ts.Activities))
	for t := range ts.Activities {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		tot := ts.Activities[t]
		out.WriteString(fmt.Sprintf("   %s %-12s %3d × %s\n", symbolFor(t), t, tot.Count, formatDuration(tot.Duration)))
	}
	return out.String()
}

// Render writes every day followed by the trip summaries.
func Render(w io.Writer, days []trip.DailySummary, trips []trip.TripSummary, loc *time.Location) error {
	for _, d := range days {
		if _, err := io.WriteString(w, Day(d, loc)+"\n"); err != nil {
			return err
		}
	}
	for _, ts := range trips {
		if _, err := io.WriteString(w, Trip(ts)+"\n"); err != nil {
			return err
		}
	}
	return nil
}
