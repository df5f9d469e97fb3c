// Package locations owns the known-location database: a permanent base set
// plus trip overlays that apply only inside their date range.
package locations

import (
	"math"
	"sort"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/geo"
	"github.com/codeGROOVE-dev/tripsense/pkg/localtime"
)

// Common location categories. Categories are free-form strings; these are the ones the
// built-in analyzer thresholds refer to.
const (
	CategoryHome       = "home"
	CategoryOffice     = "office"
	CategoryGolfCourse = "golf_course"
	CategoryParkrun    = "parkrun"
	CategorySkiResort  = "ski_resort"
	CategoryDogWalk    = "dog_walk"
	CategoryPark       = "park"
)

// Location is a named, radius-bounded area.
type Location struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Coordinates geo.Coordinates `json:"coordinates"`
	RadiusM     float64         `json:"radius_m"`
}

// Contains reports whether c lies inside the location's radius.
func (l Location) Contains(c geo.Coordinates) bool {
	return geo.Within(c, l.Coordinates, l.RadiusM)
}

// Trip is a set of locations scoped to an inclusive range of local dates.
type Trip struct {
	Locations map[string]Location
	Start     time.Time // local midnight of the first day
	End       time.Time // local midnight of the last day
	Name      string
}

// Covers reports whether the local date of d falls within the trip.
func (t Trip) Covers(d time.Time) bool {
	day := localtime.Day(d, t.Start.Location())
	return !day.Before(t.Start) && !day.After(t.End)
}

// Context is the resolved, read-only location set for one date.
type Context struct {
	Date      time.Time
	Trip      string
	Locations []Location // sorted by ID
}

// FindNearby returns the nearest location whose radius contains c, optionally limited to
// the given categories. Equidistant matches go to the smallest radius, then the lowest ID.
func (c Context) FindNearby(p geo.Coordinates, categories ...string) (Location, bool) {
	return nearest(c.Locations, p, categories)
}

// ByCategory returns the locations in any of the given categories.
func (c Context) ByCategory(categories ...string) []Location {
	var out []Location
	for _, l := range c.Locations {
		if inCategories(l.Category, categories) {
			out = append(out, l)
		}
	}
	return out
}

// NewContext builds a context from an explicit location list, e.g. for tests or ad-hoc analysis.
func NewContext(date time.Time, locs ...Location) Context {
	sorted := append([]Location(nil), locs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return Context{Date: date, Locations: sorted}
}

// tieTolerance is the distance, in metres, below which two candidates count as equidistant.
const tieTolerance = 0.01

func nearest(locs []Location, p geo.Coordinates, categories []string) (Location, bool) {
	var best Location
	bestDist := math.Inf(1)
	found := false
	for _, l := range locs {
		if !inCategories(l.Category, categories) {
			continue
		}
		d := geo.Distance(p, l.Coordinates)
		if d > l.RadiusM {
			continue
		}
		switch {
		case !found, d < bestDist-tieTolerance:
		case math.Abs(d-bestDist) <= tieTolerance && (l.RadiusM < best.RadiusM ||
			(l.RadiusM == best.RadiusM && l.ID < best.ID)):
		default:
			continue
		}
		best, bestDist, found = l, d, true
	}
	return best, found
}

func inCategories(category string, categories []string) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}
