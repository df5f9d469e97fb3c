package activity

import (
	"math"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/geo"
	"github.com/codeGROOVE-dev/tripsense/pkg/track"
)

// trackBuilder generates synthetic tracks one ping at a time.
type trackBuilder struct {
	now    time.Time
	pos    geo.Coordinates
	points []track.Point
	step   time.Duration
	alt    float64
	hasAlt bool
}

func newTrack(start time.Time, pos geo.Coordinates, step time.Duration) *trackBuilder {
	b := &trackBuilder{now: start.UTC(), pos: pos, step: step}
	b.emit()
	return b
}

func (b *trackBuilder) withAltitude(alt float64) *trackBuilder {
	b.alt, b.hasAlt = alt, true
	b.points[len(b.points)-1] = b.point()
	return b
}

func (b *trackBuilder) point() track.Point {
	p := track.Point{Time: b.now, Lat: b.pos.Lat, Lon: b.pos.Lon}
	if b.hasAlt {
		alt := b.alt
		p.Altitude = &alt
	}
	return p
}

func (b *trackBuilder) emit() { b.points = append(b.points, b.point()) }

func (b *trackBuilder) steps(d time.Duration) int { return int(d / b.step) }

// circle walks around center at speed m/s for d, continuing from the current position.
func (b *trackBuilder) circle(center geo.Coordinates, speed float64, d time.Duration) *trackBuilder {
	const metresPerDegree = 111_320.0
	north := (b.pos.Lat - center.Lat) * metresPerDegree
	east := (b.pos.Lon - center.Lon) * metresPerDegree * math.Cos(center.Lat*math.Pi/180)
	radius := math.Hypot(north, east)
	theta := math.Atan2(north, east)
	dTheta := speed * b.step.Seconds() / radius
	for range b.steps(d) {
		theta += dTheta
		b.now = b.now.Add(b.step)
		b.pos = geo.Offset(center, radius*math.Sin(theta), radius*math.Cos(theta))
		b.emit()
	}
	return b
}

// dwell stays put for d, still pinging.
func (b *trackBuilder) dwell(d time.Duration) *trackBuilder {
	for range b.steps(d) {
		b.now = b.now.Add(b.step)
		b.emit()
	}
	return b
}

// line moves in a straight line by north/east metres at speed m/s, changing altitude by
// climb metres over the leg.
func (b *trackBuilder) line(north, east, speed, climb float64) *trackBuilder {
	n := int(math.Round(math.Hypot(north, east) / (speed * b.step.Seconds())))
	origin, alt := b.pos, b.alt
	for i := 1; i <= n; i++ {
		f := float64(i) / float64(n)
		b.now = b.now.Add(b.step)
		b.pos = geo.Offset(origin, north*f, east*f)
		b.alt = alt + climb*f
		b.emit()
	}
	return b
}

// silence advances the clock without a ping; the next ping lands after the gap.
func (b *trackBuilder) silence(d time.Duration) *trackBuilder {
	b.now = b.now.Add(d)
	b.emit()
	return b
}

func (b *trackBuilder) build() []track.Point { return b.points }
