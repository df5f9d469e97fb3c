package activity

import (
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/config"
	"github.com/codeGROOVE-dev/tripsense/pkg/locations"
	"github.com/codeGROOVE-dev/tripsense/pkg/track"
)

// Parkrun detects timed 5k runs on Saturday mornings. Runs at other times are reported
// as plain running when ReportOtherRuns is set.
type Parkrun struct {
	cfg *config.Parkrun
	base
}

// NewParkrun returns a parkrun analyzer. A nil cfg yields a disabled analyzer.
func NewParkrun(cfg *config.Parkrun, loc *time.Location) *Parkrun {
	p := &Parkrun{cfg: cfg}
	if cfg != nil {
		p.base = newBase(TypeParkrun, &cfg.Thresholds, loc)
	} else {
		p.base = newBase(TypeParkrun, nil, loc)
	}
	return p
}

// DetectSessions implements Analyzer.
func (p *Parkrun) DetectSessions(points []track.Point, lc locations.Context) []Session {
	if !p.Enabled() {
		return nil
	}
	var out []Session
	for _, c := range p.candidates(points) {
		if !p.accept(c, lc) {
			continue
		}
		_, venue := p.locationMatch(c, lc)
		inWindow := inAnyWindow(c.start(), p.loc, p.cfg.Windows)

		typ := TypeParkrun
		if !inWindow && venue == 0 {
			if !p.cfg.ReportOtherRuns {
				continue
			}
			typ = TypeRunning
		}

		dist := c.distance()
		factors := p.commonFactors(c, lc, p.cfg.Windows)
		factors[config.FactorDistance] = bandFactor(dist, p.cfg.TargetDistanceM, p.cfg.TargetDistanceM)

		details := map[string]any{
			"distance_m":     round(dist, 0),
			"venue_override": typ == TypeParkrun && !inWindow,
		}
		if dist > 0 {
			details["pace_s_per_km"] = round(c.movingTime().Seconds()/(dist/1000), 0)
		}
		out = append(out, p.emit(typ, c, p.locationName(c, lc), factors, details))
	}
	SortSessions(out)
	return out
}
