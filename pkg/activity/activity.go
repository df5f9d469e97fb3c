// Package activity detects labeled activity sessions in a day of location points.
//
// Every analyzer runs the same pipeline over the day's segments: qualify each
// segment against the analyzer's speed band, cluster qualifying segments that
// are close in time, validate each cluster, and score the survivors with a
// weighted sum of independent confidence factors.
package activity

import (
	"fmt"
	"sort"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/config"
	"github.com/codeGROOVE-dev/tripsense/pkg/geo"
	"github.com/codeGROOVE-dev/tripsense/pkg/locations"
	"github.com/codeGROOVE-dev/tripsense/pkg/track"
	"github.com/google/uuid"
)

// Type names an activity.
type Type string

// Activity types.
const (
	TypeGolf         Type = "golf"
	TypeParkrun      Type = "parkrun"
	TypeRunning      Type = "running"
	TypeCommute      Type = "commute"
	TypeDogWalking   Type = "dog_walking"
	TypeSnowboarding Type = "snowboarding"
)

// Label is the confidence class of a session.
type Label string

// Confidence labels.
const (
	LabelHigh      Label = "HIGH"
	LabelMedium    Label = "MEDIUM"
	LabelLow       Label = "LOW"
	LabelConfirmed Label = "CONFIRMED"
)

// LabelFor maps a score to its label.
func LabelFor(score float64) Label {
	switch {
	case score >= 0.8:
		return LabelHigh
	case score >= 0.6:
		return LabelMedium
	default:
		return LabelLow
	}
}

// Session is one detected (or externally confirmed) activity.
type Session struct {
	Start        time.Time                 `json:"start"`
	End          time.Time                 `json:"end"`
	Factors      map[config.Factor]float64 `json:"factors,omitempty"`
	Details      map[string]any            `json:"details,omitempty"`
	ID           string                    `json:"id"`
	Type         Type                      `json:"type"`
	LocationName string                    `json:"location_name,omitempty"`
	Label        Label                     `json:"label"`
	Centroid     geo.Coordinates           `json:"centroid"`
	Duration     time.Duration             `json:"duration"`
	Score        float64                   `json:"score"`
}

// Overlaps reports whether s and o share any instant. Touching sessions do not overlap.
func (s Session) Overlaps(o Session) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

var sessionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/codeGROOVE-dev/tripsense/session"))

// SessionID derives a stable identifier from the activity type and time bounds.
func SessionID(t Type, start, end time.Time) string {
	key := fmt.Sprintf("%s|%d|%d", t, start.UnixNano(), end.UnixNano())
	return uuid.NewSHA1(sessionNamespace, []byte(key)).String()
}

// Confirmed builds an externally verified session, such as one imported from a
// fitness tracker. It always outranks detected sessions.
func Confirmed(t Type, start, end time.Time, locationName string) Session {
	start, end = start.UTC(), end.UTC()
	return Session{
		ID:           SessionID(t, start, end),
		Type:         t,
		Start:        start,
		End:          end,
		Duration:     end.Sub(start),
		LocationName: locationName,
		Label:        LabelConfirmed,
		Score:        1,
	}
}

// Analyzer detects one kind of activity.
type Analyzer interface {
	Type() Type
	Enabled() bool
	// DetectSessions returns sessions sorted by start. It never fails; sparse or
	// unusable input yields no sessions.
	DetectSessions(points []track.Point, lc locations.Context) []Session
}

// NewAnalyzers builds the full analyzer set from cfg, in a fixed order.
func NewAnalyzers(cfg *config.Analyzers) []Analyzer {
	loc := cfg.Location()
	return []Analyzer{
		NewGolf(cfg.Golf, loc),
		NewParkrun(cfg.Parkrun, loc),
		NewCommute(cfg.Commute, loc),
		NewDogWalking(cfg.DogWalking, loc),
		NewSnowboarding(cfg.Snowboarding, loc),
	}
}

// SortSessions orders sessions by start, then type, then ID.
func SortSessions(s []Session) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].Start.Equal(s[j].Start) {
			return s[i].Start.Before(s[j].Start)
		}
		if s[i].Type != s[j].Type {
			return s[i].Type < s[j].Type
		}
		return s[i].ID < s[j].ID
	})
}
