// Package track holds location points as they come off a tracker and the
// segments derived from consecutive pairs of them.
package track

import (
	"math"
	"sort"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/geo"
)

// RawPoint is the wire record supplied by a location data source.
type RawPoint struct {
	Alt *float64 `json:"alt,omitempty"`
	Acc *float64 `json:"acc,omitempty"`
	Lat float64  `json:"lat"`
	Lon float64  `json:"lon"`
	Tst int64    `json:"tst"` // unix epoch seconds
}

// Point is an immutable, validated location fix.
type Point struct {
	Time     time.Time
	Altitude *float64
	Accuracy *float64
	Lat      float64
	Lon      float64
}

// Coordinates returns the position of p.
func (p Point) Coordinates() geo.Coordinates {
	return geo.Coordinates{Lat: p.Lat, Lon: p.Lon}
}

// PrepareOptions controls point filtering in Prepare.
type PrepareOptions struct {
	// MaxAccuracyM drops points reporting a worse horizontal accuracy. Zero disables the filter.
	MaxAccuracyM float64
}

// Prepare converts raw records into points in strictly increasing time order.
// Invalid coordinates and low-accuracy fixes are dropped; duplicate timestamps
// keep the first record seen.
func Prepare(raw []RawPoint, opts PrepareOptions) []Point {
	points := make([]Point, 0, len(raw))
	for _, r := range raw {
		if !(geo.Coordinates{Lat: r.Lat, Lon: r.Lon}).Valid() {
			continue
		}
		if opts.MaxAccuracyM > 0 && r.Acc != nil && *r.Acc > opts.MaxAccuracyM {
			continue
		}
		if r.Alt != nil && (math.IsNaN(*r.Alt) || math.IsInf(*r.Alt, 0)) {
			r.Alt = nil
		}
		points = append(points, Point{
			Time:     time.Unix(r.Tst, 0).UTC(),
			Lat:      r.Lat,
			Lon:      r.Lon,
			Altitude: r.Alt,
			Accuracy: r.Acc,
		})
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})

	deduped := points[:0]
	for i, p := range points {
		if i > 0 && p.Time.Equal(deduped[len(deduped)-1].Time) {
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped
}

// Segment is the movement between two consecutive points.
type Segment struct {
	From     Point
	To       Point
	Distance float64 // metres
	Elapsed  time.Duration
	Velocity float64 // metres per second
	Climb    float64 // metres, valid when HasClimb
	HasClimb bool
}

// ClimbRate returns the vertical speed in m/s; positive is uphill.
func (s Segment) ClimbRate() float64 {
	if !s.HasClimb {
		return 0
	}
	return s.Climb / s.Elapsed.Seconds()
}

// Segments derives segments from points, which must already be prepared.
// Pairs with no elapsed time are skipped.
func Segments(points []Point) []Segment {
	if len(points) < 2 {
		return nil
	}
	segs := make([]Segment, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		from, to := points[i-1], points[i]
		elapsed := to.Time.Sub(from.Time)
		if elapsed <= 0 {
			continue
		}
		dist := geo.Distance(from.Coordinates(), to.Coordinates())
		v := dist / elapsed.Seconds()
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			continue
		}
		seg := Segment{
			From:     from,
			To:       to,
			Distance: dist,
			Elapsed:  elapsed,
			Velocity: v,
		}
		if from.Altitude != nil && to.Altitude != nil {
			seg.Climb = *to.Altitude - *from.Altitude
			seg.HasClimb = true
		}
		segs = append(segs, seg)
	}
	return segs
}
