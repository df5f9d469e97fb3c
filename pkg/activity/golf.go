package activity

import (
	"math"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/config"
	"github.com/codeGROOVE-dev/tripsense/pkg/locations"
	"github.com/codeGROOVE-dev/tripsense/pkg/track"
)

// Golf detects rounds of golf: hours of walking pace movement broken by short stops
// at tees and greens.
type Golf struct {
	cfg *config.Golf
	base
}

// NewGolf returns a golf analyzer. A nil cfg yields a disabled analyzer.
func NewGolf(cfg *config.Golf, loc *time.Location) *Golf {
	g := &Golf{cfg: cfg}
	if cfg != nil {
		g.base = newBase(TypeGolf, &cfg.Thresholds, loc)
	} else {
		g.base = newBase(TypeGolf, nil, loc)
	}
	return g
}

// DetectSessions implements Analyzer.
func (g *Golf) DetectSessions(points []track.Point, lc locations.Context) []Session {
	if !g.Enabled() {
		return nil
	}
	var out []Session
	for _, c := range g.candidates(points) {
		if !g.accept(c, lc) {
			continue
		}
		dwells := g.dwells(c)
		factors := g.commonFactors(c, lc, g.cfg.Windows)
		factors[config.FactorDwell] = 1
		if g.cfg.MinDwells > 0 {
			factors[config.FactorDwell] = math.Min(float64(dwells)/float64(g.cfg.MinDwells), 1)
		}
		out = append(out, g.emit(TypeGolf, c, g.locationName(c, lc), factors, map[string]any{
			"dwells":         dwells,
			"distance_m":     round(c.distance(), 0),
			"moving_minutes": round(c.movingTime().Minutes(), 1),
		}))
	}
	SortSessions(out)
	return out
}

// dwells counts maximal runs of stationary segments lasting at least the dwell minimum.
func (g *Golf) dwells(c candidate) int {
	n := 0
	runStart := -1
	closeRun := func(end int) {
		if runStart < 0 {
			return
		}
		span := c.segs[end].To.Time.Sub(c.segs[runStart].From.Time)
		if span >= g.cfg.DwellMinDuration.Std() {
			n++
		}
		runStart = -1
	}
	for i := range c.segs {
		switch {
		case c.isStationary(i) && runStart < 0:
			runStart = i
		case !c.isStationary(i) && runStart >= 0:
			closeRun(i - 1)
		}
	}
	closeRun(len(c.segs) - 1)
	return n
}
