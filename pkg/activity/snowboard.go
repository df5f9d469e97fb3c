package activity

import (
	"math"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/config"
	"github.com/codeGROOVE-dev/tripsense/pkg/locations"
	"github.com/codeGROOVE-dev/tripsense/pkg/track"
	"gonum.org/v1/gonum/floats"
)

type phaseClass int

const (
	phaseNeutral phaseClass = iota
	phaseLift
	phaseDescent
)

type phase struct {
	class phaseClass
	gain  float64 // metres, positive for lifts, positive drop for descents
}

// Snowboarding detects resort days: repeated lift rides followed by fast descents.
type Snowboarding struct {
	cfg *config.Snowboarding
	base
}

// NewSnowboarding returns a snowboarding analyzer. A nil cfg yields a disabled analyzer.
func NewSnowboarding(cfg *config.Snowboarding, loc *time.Location) *Snowboarding {
	s := &Snowboarding{cfg: cfg}
	if cfg != nil {
		s.base = newBase(TypeSnowboarding, &cfg.Thresholds, loc)
	} else {
		s.base = newBase(TypeSnowboarding, nil, loc)
	}
	return s
}

// classifySegment puts a segment in a lift or descent phase. Segments without both
// altitudes are neutral.
func (s *Snowboarding) classifySegment(seg track.Segment) phaseClass {
	if !seg.HasClimb {
		return phaseNeutral
	}
	rate := seg.ClimbRate()
	switch {
	case rate >= s.cfg.LiftMinClimbMPS:
		return phaseLift
	case -rate >= s.cfg.DescentMinDropMPS && seg.Velocity >= s.cfg.DescentMinMPS:
		return phaseDescent
	default:
		return phaseNeutral
	}
}

func (s *Snowboarding) phases(c candidate) []phase {
	var out []phase
	for _, seg := range c.segs {
		cls := s.classifySegment(seg)
		if cls == phaseNeutral {
			if len(out) == 0 || out[len(out)-1].class != phaseNeutral {
				out = append(out, phase{class: phaseNeutral})
			}
			continue
		}
		if len(out) == 0 || out[len(out)-1].class != cls {
			out = append(out, phase{class: cls})
		}
		out[len(out)-1].gain += math.Abs(seg.Climb)
	}
	return out
}

// runs counts lift phases gaining enough height followed by a long enough descent.
// Flat stretches between the lift and the descent do not break a run.
func (s *Snowboarding) runs(c candidate) (n int, vertical float64) {
	armed := false
	for _, p := range s.phases(c) {
		switch p.class {
		case phaseLift:
			if p.gain >= s.cfg.MinLiftGainM {
				armed = true
			}
		case phaseDescent:
			if armed && p.gain >= s.cfg.MinRunVerticalM {
				n++
				vertical += p.gain
				armed = false
			}
		}
	}
	return n, vertical
}

// DetectSessions implements Analyzer.
func (s *Snowboarding) DetectSessions(points []track.Point, lc locations.Context) []Session {
	if !s.Enabled() {
		return nil
	}
	var out []Session
	for _, c := range s.candidates(points) {
		if !s.accept(c, lc) {
			continue
		}
		runs, vertical := s.runs(c)
		if runs < s.cfg.MinRuns {
			continue
		}

		speeds := make([]float64, len(c.segs))
		for i, seg := range c.segs {
			speeds[i] = seg.Velocity
		}
		factors := s.commonFactors(c, lc, s.cfg.Windows)
		factors[config.FactorRuns] = math.Min(float64(runs)/float64(s.cfg.ExpectedRuns), 1)
		factors[config.FactorVertical] = math.Min(vertical/s.cfg.ExpectedVerticalM, 1)
		out = append(out, s.emit(TypeSnowboarding, c, s.locationName(c, lc), factors, map[string]any{
			"runs":          runs,
			"vertical_m":    round(vertical, 0),
			"max_speed_mps": round(floats.Max(speeds), 1),
		}))
	}
	SortSessions(out)
	return out
}
