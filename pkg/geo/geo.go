// Package geo provides the small set of geodesic helpers used by the analyzers.
// Coordinates are WGS84 degrees; distances are metres.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point returns c as an orb point (orb uses lon, lat ordering).
func (c Coordinates) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// Valid reports whether c is a finite coordinate on the globe.
// The null island (0,0) is treated as invalid since trackers emit it on fix loss.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return false
	}
	return c.Lat != 0 || c.Lon != 0
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Lat, c.Lon)
}

// FromPoint converts an orb point back to Coordinates.
func FromPoint(p orb.Point) Coordinates {
	return Coordinates{Lat: p.Lat(), Lon: p.Lon()}
}

// Distance returns the great-circle (haversine) distance between a and b in metres.
func Distance(a, b Coordinates) float64 {
	return orbgeo.DistanceHaversine(a.Point(), b.Point())
}

// Within reports whether c lies inside the circle of radius metres around center.
func Within(c, center Coordinates, radius float64) bool {
	if radius <= 0 {
		return false
	}
	// Cheap rejection before the trigonometry.
	if !orbgeo.NewBoundAroundPoint(center.Point(), radius).Contains(c.Point()) {
		return false
	}
	return Distance(c, center) <= radius
}

// Centroid returns the mean position of cs. It returns the zero value for an empty slice.
func Centroid(cs []Coordinates) Coordinates {
	if len(cs) == 0 {
		return Coordinates{}
	}
	mp := make(orb.MultiPoint, 0, len(cs))
	for _, c := range cs {
		mp = append(mp, c.Point())
	}
	centroid, _ := planar.CentroidArea(mp)
	return FromPoint(centroid)
}

// Offset moves c by north and east metres using an equirectangular approximation.
// It is accurate to well under a metre for the few-kilometre offsets used for synthetic tracks.
func Offset(c Coordinates, north, east float64) Coordinates {
	const metresPerDegree = 111_320.0
	dLat := north / metresPerDegree
	dLon := east / (metresPerDegree * math.Cos(c.Lat*math.Pi/180))
	return Coordinates{Lat: c.Lat + dLat, Lon: c.Lon + dLon}
}
