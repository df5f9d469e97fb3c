package activity

import (
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/config"
	"github.com/codeGROOVE-dev/tripsense/pkg/geo"
	"github.com/codeGROOVE-dev/tripsense/pkg/locations"
	"github.com/codeGROOVE-dev/tripsense/pkg/track"
)

// Commute directions.
const (
	DirectionToOffice = "to_office"
	DirectionToHome   = "to_home"
)

// Commute detects weekday journeys between an origin (home) and a destination (office).
type Commute struct {
	cfg *config.Commute
	base
}

// NewCommute returns a commute analyzer. A nil cfg yields a disabled analyzer.
func NewCommute(cfg *config.Commute, loc *time.Location) *Commute {
	c := &Commute{cfg: cfg}
	if cfg != nil {
		c.base = newBase(TypeCommute, &cfg.Thresholds, loc)
	} else {
		c.base = newBase(TypeCommute, nil, loc)
	}
	return c
}

// endpoint is a location matched near one end of a journey.
type endpoint struct {
	loc    locations.Location
	inside bool // within the radius, not just the slack
}

// near returns the closest location of the given categories within radius+slack of p.
func (a *Commute) near(p geo.Coordinates, lc locations.Context, categories []string) (endpoint, bool) {
	if l, ok := lc.FindNearby(p, categories...); ok {
		return endpoint{loc: l, inside: true}, true
	}
	var best endpoint
	bestDist := -1.0
	for _, l := range lc.ByCategory(categories...) {
		d := geo.Distance(p, l.Coordinates)
		if d > l.RadiusM+a.cfg.EndpointSlackM {
			continue
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = endpoint{loc: l}, d
		}
	}
	return best, bestDist >= 0
}

// DetectSessions implements Analyzer.
func (a *Commute) DetectSessions(points []track.Point, lc locations.Context) []Session {
	if !a.Enabled() {
		return nil
	}
	var out []Session
	for _, c := range a.candidates(points) {
		if !a.accept(c, lc) {
			continue
		}
		switch c.start().In(a.loc).Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}

		var from, to endpoint
		var direction string
		windows := a.cfg.OutboundWindows
		if o, ok := a.near(c.first(), lc, a.cfg.OriginCategories); ok {
			if d, ok := a.near(c.last(), lc, a.cfg.DestinationCategories); ok {
				from, to, direction = o, d, DirectionToOffice
			}
		}
		if direction == "" {
			if d, ok := a.near(c.first(), lc, a.cfg.DestinationCategories); ok {
				if o, ok := a.near(c.last(), lc, a.cfg.OriginCategories); ok {
					from, to, direction = d, o, DirectionToHome
					windows = a.cfg.ReturnWindows
				}
			}
		}
		if direction == "" || from.loc.ID == to.loc.ID {
			continue
		}

		factors := a.commonFactors(c, lc, windows)
		factors[config.FactorEndpoints] = 1
		if !from.inside || !to.inside {
			factors[config.FactorEndpoints] = 0.8
		}
		out = append(out, a.emit(TypeCommute, c, to.loc.Name, factors, map[string]any{
			"direction":  direction,
			"from":       from.loc.Name,
			"to":         to.loc.Name,
			"distance_m": round(c.distance(), 0),
		}))
	}
	SortSessions(out)
	return out
}
