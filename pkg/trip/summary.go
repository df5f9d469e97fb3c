package trip

import (
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/activity"
)

// Totals counts the sessions of one activity type.
type Totals struct {
	Count    int           `json:"count"`
	Duration time.Duration `json:"duration"`
}

// TripSummary aggregates consecutive days that share a trip. Name is empty for days
// outside any trip.
type TripSummary struct {
	Activities  map[activity.Type]*Totals `json:"activities"`
	Name        string                    `json:"name,omitempty"`
	Start       string                    `json:"start"`
	End         string                    `json:"end"`
	Days        int                       `json:"days"`
	Unavailable int                       `json:"unavailable_days"`
	Points      int                       `json:"points"`
	Sessions    int                       `json:"sessions"`
}

// Summarize groups days, which must be in date order, into runs of the same trip.
func Summarize(days []DailySummary) []TripSummary {
	var out []TripSummary
	for i, d := range days {
		if i == 0 || d.Trip != days[i-1].Trip {
			out = append(out, TripSummary{
				Name:       d.Trip,
				Start:      d.Date,
				Activities: map[activity.Type]*Totals{},
			})
		}
		ts := &out[len(out)-1]
		ts.End = d.Date
		ts.Days++
		ts.Points += d.Points
		if d.Status != StatusOK {
			ts.Unavailable++
		}
		for _, s := range d.Sessions {
			t, ok := ts.Activities[s.Type]
			if !ok {
				t = &Totals{}
				ts.Activities[s.Type] = t
			}
			t.Count++
			t.Duration += s.Duration
			ts.Sessions++
		}
	}
	return out
}
