package activity

import (
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/config"
	"github.com/codeGROOVE-dev/tripsense/pkg/geo"
	"github.com/codeGROOVE-dev/tripsense/pkg/locations"
	"github.com/codeGROOVE-dev/tripsense/pkg/track"
)

// DogWalking detects slow walks that start or end at an anchor (usually home) and
// come back roughly to where they began.
type DogWalking struct {
	cfg *config.DogWalking
	base
}

// NewDogWalking returns a dog-walking analyzer. A nil cfg yields a disabled analyzer.
func NewDogWalking(cfg *config.DogWalking, loc *time.Location) *DogWalking {
	d := &DogWalking{cfg: cfg}
	if cfg != nil {
		d.base = newBase(TypeDogWalking, &cfg.Thresholds, loc)
	} else {
		d.base = newBase(TypeDogWalking, nil, loc)
	}
	return d
}

func (d *DogWalking) anchored(p geo.Coordinates, lc locations.Context) bool {
	for _, l := range lc.ByCategory(d.cfg.AnchorCategories...) {
		if geo.Within(p, l.Coordinates, l.RadiusM+d.cfg.MaxLoopGapM) {
			return true
		}
	}
	return false
}

// DetectSessions implements Analyzer.
func (d *DogWalking) DetectSessions(points []track.Point, lc locations.Context) []Session {
	if !d.Enabled() {
		return nil
	}
	var out []Session
	for _, c := range d.candidates(points) {
		if !d.accept(c, lc) {
			continue
		}
		if !d.anchored(c.first(), lc) && !d.anchored(c.last(), lc) {
			continue
		}
		gap := geo.Distance(c.first(), c.last())
		if gap > d.cfg.MaxLoopGapM {
			continue
		}

		factors := d.commonFactors(c, lc, d.cfg.Windows)
		factors[config.FactorLoop] = clamp01(1 - gap/d.cfg.MaxLoopGapM)
		out = append(out, d.emit(TypeDogWalking, c, d.locationName(c, lc), factors, map[string]any{
			"loop_gap_m": round(gap, 0),
			"distance_m": round(c.distance(), 0),
		}))
	}
	SortSessions(out)
	return out
}
