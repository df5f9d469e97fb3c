package activity

import (
	"maps"
	"math"
	"slices"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/config"
	"github.com/codeGROOVE-dev/tripsense/pkg/geo"
	"github.com/codeGROOVE-dev/tripsense/pkg/localtime"
	"github.com/codeGROOVE-dev/tripsense/pkg/locations"
	"github.com/codeGROOVE-dev/tripsense/pkg/track"
	"gonum.org/v1/gonum/stat"
)

type segClass int

const (
	classNone segClass = iota
	classMoving
	classStationary
)

// candidate is a cluster of qualifying segments in time order.
type candidate struct {
	segs    []track.Segment
	classes []segClass
}

func (c candidate) start() time.Time { return c.segs[0].From.Time }
func (c candidate) end() time.Time { return c.segs[len(c.segs)-1].To.Time }
func (c candidate) duration() time.Duration { return c.end().Sub(c.start()) }
func (c candidate) first() geo.Coordinates { return c.segs[0].From.Coordinates() }
func (c candidate) last() geo.Coordinates { return c.segs[len(c.segs)-1].To.Coordinates() }
func (c candidate) empty() bool { return len(c.segs) == 0 }
func (c candidate) isMoving(i int) bool { return c.classes[i] == classMoving }
func (c candidate) isStationary(i int) bool { return c.classes[i] == classStationary }

func (c candidate) movingTime() time.Duration {
	var d time.Duration
	for i, s := range c.segs {
		if c.isMoving(i) {
			d += s.Elapsed
		}
	}
	return d
}

func (c candidate) distance() float64 {
	total := 0.0
	for _, s := range c.segs {
		total += s.Distance
	}
	return total
}

// coordinates returns every point in the cluster, once each.
func (c candidate) coordinates() []geo.Coordinates {
	out := make([]geo.Coordinates, 0, len(c.segs)+1)
	var prev time.Time
	for i, s := range c.segs {
		if i == 0 || !s.From.Time.Equal(prev) {
			out = append(out, s.From.Coordinates())
		}
		out = append(out, s.To.Coordinates())
		prev = s.To.Time
	}
	return out
}

func (c candidate) centroid() geo.Coordinates { return geo.Centroid(c.coordinates()) }

// meanMovingVelocity is the elapsed-time weighted mean velocity of moving segments.
func (c candidate) meanMovingVelocity() (mean, std float64) {
	var v, w []float64
	for i, s := range c.segs {
		if c.isMoving(i) {
			v = append(v, s.Velocity)
			w = append(w, s.Elapsed.Seconds())
		}
	}
	if len(v) == 0 {
		return 0, 0
	}
	if len(v) == 1 {
		return v[0], 0
	}
	return stat.MeanStdDev(v, w)
}

// base holds what every analyzer shares: its type, thresholds and local time zone.
type base struct {
	th  *config.Thresholds
	loc *time.Location
	typ Type
}

func newBase(typ Type, th *config.Thresholds, loc *time.Location) base {
	if loc == nil {
		loc = time.UTC
	}
	return base{typ: typ, th: th, loc: loc}
}

func (b base) Type() Type { return b.typ }

func (b base) Enabled() bool { return b.th != nil && b.th.Enabled }

// classify applies the analyzer's speed band. Segments spanning more than the gap
// tolerance are silence, not movement.
func (b base) classify(s track.Segment) segClass {
	if s.Elapsed > b.th.GapTolerance.Std() {
		return classNone
	}
	if s.Velocity >= b.th.MinMPS && s.Velocity <= b.th.MaxMPS {
		return classMoving
	}
	if b.th.AllowDwell && s.Velocity <= b.th.StationaryMaxMPS {
		return classStationary
	}
	return classNone
}

// candidates clusters qualifying segments. A gap equal to the tolerance still merges.
func (b base) candidates(points []track.Point) []candidate {
	segs := track.Segments(points)
	if len(segs) == 0 {
		return nil
	}
	gap := b.th.GapTolerance.Std()

	var out []candidate
	var cur candidate
	flush := func() {
		if t := trimStationary(cur); !t.empty() {
			out = append(out, t)
		}
		cur = candidate{}
	}
	for _, s := range segs {
		cls := b.classify(s)
		if cls == classNone {
			continue
		}
		if !cur.empty() && s.From.Time.Sub(cur.end()) > gap {
			flush()
		}
		cur.segs = append(cur.segs, s)
		cur.classes = append(cur.classes, cls)
	}
	if !cur.empty() {
		flush()
	}
	return out
}

// trimStationary drops leading and trailing stationary segments, so a session starts
// and ends with movement.
func trimStationary(c candidate) candidate {
	lo, hi := 0, len(c.segs)
	for lo < hi && c.isStationary(lo) {
		lo++
	}
	for hi > lo && c.isStationary(hi-1) {
		hi--
	}
	return candidate{segs: c.segs[lo:hi], classes: c.classes[lo:hi]}
}

// accept applies the checks every analyzer shares.
func (b base) accept(c candidate, lc locations.Context) bool {
	d := c.duration()
	if d < b.th.MinSessionDuration.Std() || d > b.th.MaxSessionDuration.Std() {
		return false
	}
	if d <= 0 || c.movingTime().Seconds()/d.Seconds() < b.th.MinMovingFraction {
		return false
	}
	if b.th.RequireLocation {
		if _, f := b.locationMatch(c, lc); f == 0 {
			return false
		}
	}
	return true
}

// locationMatch finds a location of the analyzer's categories: 1.0 when it contains the
// centroid, 0.8 when it contains only the first or last point.
func (b base) locationMatch(c candidate, lc locations.Context) (locations.Location, float64) {
	cats := b.th.LocationCategories
	if len(cats) == 0 {
		return locations.Location{}, 0
	}
	if l, ok := lc.FindNearby(c.centroid(), cats...); ok {
		return l, 1
	}
	for _, p := range []geo.Coordinates{c.first(), c.last()} {
		if l, ok := lc.FindNearby(p, cats...); ok {
			return l, 0.8
		}
	}
	return locations.Location{}, 0
}

// locationName prefers a category match and falls back to any known location at the centroid.
func (b base) locationName(c candidate, lc locations.Context) string {
	if l, f := b.locationMatch(c, lc); f > 0 {
		return l.Name
	}
	if l, ok := lc.FindNearby(c.centroid()); ok {
		return l.Name
	}
	return ""
}

// commonFactors scores location, time window, velocity and duration.
func (b base) commonFactors(c candidate, lc locations.Context, windows []localtime.Window) map[config.Factor]float64 {
	_, loc := b.locationMatch(c, lc)
	mean, _ := c.meanMovingVelocity()
	return map[config.Factor]float64{
		config.FactorLocation:   loc,
		config.FactorTimeWindow: windowFactor(c.start(), b.loc, windows, b.th.WindowSlack.Std()),
		config.FactorVelocity:   bandFactor(mean, b.th.TypicalMPS, (b.th.MaxMPS-b.th.MinMPS)/2),
		config.FactorDuration:   bandFactor(c.duration().Seconds(), b.th.TypicalDuration.Std().Seconds(), b.th.TypicalDuration.Std().Seconds()),
	}
}

// windowFactor is 1 inside any window, decays linearly to 0 over slack outside it on an
// allowed day, and is 0 on days no window covers. Without windows every time fits.
func windowFactor(t time.Time, loc *time.Location, windows []localtime.Window, slack time.Duration) float64 {
	if len(windows) == 0 {
		return 1
	}
	best := 0.0
	for _, w := range windows {
		dist, ok := w.Distance(t, loc)
		if !ok {
			continue
		}
		f := 0.0
		switch {
		case dist == 0:
			f = 1
		case slack > 0:
			f = clamp01(1 - dist.Seconds()/slack.Seconds())
		}
		best = math.Max(best, f)
	}
	return best
}

func inAnyWindow(t time.Time, loc *time.Location, windows []localtime.Window) bool {
	for _, w := range windows {
		if w.Contains(t, loc) {
			return true
		}
	}
	return false
}

// bandFactor is 1 at typical and falls linearly to 0 at typical±halfWidth.
func bandFactor(v, typical, halfWidth float64) float64 {
	if halfWidth <= 0 {
		if v == typical {
			return 1
		}
		return 0
	}
	return clamp01(1 - math.Abs(v-typical)/halfWidth)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// score is the weighted sum of the configured factors, clamped to [0, 1]. Factors are
// summed in name order so identical input gives an identical float.
func score(weights map[config.Factor]float64, factors map[config.Factor]float64) float64 {
	total := 0.0
	for _, f := range slices.Sorted(maps.Keys(weights)) {
		total += weights[f] * factors[f]
	}
	return clamp01(total)
}

// emit builds the session for an accepted candidate. Only weighted factors are recorded.
func (b base) emit(typ Type, c candidate, name string, factors map[config.Factor]float64, details map[string]any) Session {
	recorded := make(map[config.Factor]float64, len(b.th.Weights))
	for f := range b.th.Weights {
		recorded[f] = factors[f]
	}
	sc := score(b.th.Weights, factors)
	start, end := c.start().UTC(), c.end().UTC()
	return Session{
		ID:           SessionID(typ, start, end),
		Type:         typ,
		Start:        start,
		End:          end,
		Duration:     end.Sub(start),
		LocationName: name,
		Centroid:     c.centroid(),
		Label:        LabelFor(sc),
		Score:        sc,
		Factors:      recorded,
		Details:      details,
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
