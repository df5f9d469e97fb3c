package locations

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/config"
	"github.com/codeGROOVE-dev/tripsense/pkg/geo"
	"github.com/codeGROOVE-dev/tripsense/pkg/localtime"
)

// fileLocation is the on-disk form of a location: {name, type, coordinates:[lat,lon], radius}.
type fileLocation struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
	Radius      float64   `json:"radius"`
}

type fileTrip struct {
	Locations map[string]fileLocation `json:"locations"`
	Name      string                  `json:"name"`
	StartDate string                  `json:"start_date"`
	EndDate   string                  `json:"end_date"`
}

// LoadBase reads the permanent location file, a JSON object keyed by location ID.
func LoadBase(path string) (map[string]Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &config.Error{Path: path, Err: fmt.Errorf("reading locations: %w", err)}
	}
	var raw map[string]fileLocation
	if err := decodeStrict(data, &raw); err != nil {
		return nil, &config.Error{Path: path, Err: fmt.Errorf("decoding locations: %w", err)}
	}
	return convertLocations(path, "", raw)
}

// LoadTrip reads one trip overlay file. Dates are interpreted in loc.
func LoadTrip(path string, loc *time.Location) (Trip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Trip{}, &config.Error{Path: path, Err: fmt.Errorf("reading trip: %w", err)}
	}
	var raw fileTrip
	if err := decodeStrict(data, &raw); err != nil {
		return Trip{}, &config.Error{Path: path, Err: fmt.Errorf("decoding trip: %w", err)}
	}
	if raw.Name == "" {
		return Trip{}, config.Errorf(path, "name", "is required")
	}
	start, err := localtime.ParseDate(raw.StartDate, loc)
	if err != nil {
		return Trip{}, config.Errorf(path, "start_date", "%v", err)
	}
	end, err := localtime.ParseDate(raw.EndDate, loc)
	if err != nil {
		return Trip{}, config.Errorf(path, "end_date", "%v", err)
	}
	if end.Before(start) {
		return Trip{}, config.Errorf(path, "end_date", "%s is before start_date %s", raw.EndDate, raw.StartDate)
	}
	locs, err := convertLocations(path, "locations.", raw.Locations)
	if err != nil {
		return Trip{}, err
	}
	return Trip{Name: raw.Name, Start: start, End: end, Locations: locs}, nil
}

// LoadTrips loads every given trip file.
func LoadTrips(loc *time.Location, paths ...string) ([]Trip, error) {
	trips := make([]Trip, 0, len(paths))
	for _, p := range paths {
		t, err := LoadTrip(p, loc)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, nil
}

// LoadTripDir loads every *.json file in dir, in name order.
func LoadTripDir(dir string, loc *time.Location) ([]Trip, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, &config.Error{Path: dir, Err: err}
	}
	sort.Strings(paths)
	return LoadTrips(loc, paths...)
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func convertLocations(path, prefix string, raw map[string]fileLocation) (map[string]Location, error) {
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	out := make(map[string]Location, len(raw))
	for _, id := range ids {
		r := raw[id]
		field := prefix + id
		switch {
		case id == "":
			errs = append(errs, config.Errorf(path, prefix+"<empty>", "location ID must not be empty"))
			continue
		case r.Name == "":
			errs = append(errs, config.Errorf(path, field+".name", "is required"))
			continue
		case r.Type == "":
			errs = append(errs, config.Errorf(path, field+".type", "is required"))
			continue
		case len(r.Coordinates) != 2:
			errs = append(errs, config.Errorf(path, field+".coordinates", "want [lat, lon], got %d values", len(r.Coordinates)))
			continue
		case !(r.Radius > 0):
			errs = append(errs, config.Errorf(path, field+".radius", "must be positive, got %v", r.Radius))
			continue
		}
		c := geo.Coordinates{Lat: r.Coordinates[0], Lon: r.Coordinates[1]}
		if !c.Valid() {
			errs = append(errs, config.Errorf(path, field+".coordinates", "%v is not a valid position", r.Coordinates))
			continue
		}
		out[id] = Location{ID: id, Name: r.Name, Category: r.Type, Coordinates: c, RadiusM: r.Radius}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Registry holds the base location set and trip overlays. It is immutable once built
// and safe for concurrent use.
type Registry struct {
	base  map[string]Location
	trips []Trip // sorted by start
}

// NewRegistry builds a registry. Trips must have distinct names and must not overlap.
func NewRegistry(base map[string]Location, trips ...Trip) (*Registry, error) {
	r := &Registry{base: make(map[string]Location, len(base))}
	for id, l := range base {
		r.base[id] = l
	}

	sorted := make([]Trip, len(trips))
	for i, t := range trips {
		locs := make(map[string]Location, len(t.Locations))
		for id, l := range t.Locations {
			locs[id] = l
		}
		t.Locations = locs
		sorted[i] = t
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	names := map[string]bool{}
	var latest Trip // the trip with the latest end seen so far
	for i, t := range sorted {
		if names[t.Name] {
			return nil, config.Errorf("", "trips", "duplicate trip name %q", t.Name)
		}
		names[t.Name] = true
		if i > 0 && !t.Start.After(latest.End) {
			return nil, config.Errorf("", "trips", "trip %q (%s) overlaps %q (%s..%s)",
				t.Name, t.Start.Format(localtime.DateLayout),
				latest.Name, latest.Start.Format(localtime.DateLayout), latest.End.Format(localtime.DateLayout))
		}
		if i == 0 || t.End.After(latest.End) {
			latest = t
		}
	}
	r.trips = sorted
	return r, nil
}

// Load reads the base location file and the trip directory (optional) into a registry.
func Load(basePath, tripDir string, loc *time.Location) (*Registry, error) {
	base := map[string]Location{}
	if basePath != "" {
		b, err := LoadBase(basePath)
		if err != nil {
			return nil, err
		}
		base = b
	}
	var trips []Trip
	if tripDir != "" {
		t, err := LoadTripDir(tripDir, loc)
		if err != nil {
			return nil, err
		}
		trips = t
	}
	return NewRegistry(base, trips...)
}

// TripFor returns the trip covering date, if any.
func (r *Registry) TripFor(date time.Time) (Trip, bool) {
	for _, t := range r.trips {
		if t.Covers(date) {
			return t, true
		}
	}
	return Trip{}, false
}

// Trips returns the trips in start order.
func (r *Registry) Trips() []Trip {
	return append([]Trip(nil), r.trips...)
}

// Base returns a copy of the permanent locations.
func (r *Registry) Base() map[string]Location {
	out := make(map[string]Location, len(r.base))
	for id, l := range r.base {
		out[id] = l
	}
	return out
}

// ResolveContext returns the location set in force on date: the base set plus the
// covering trip's locations, with same-ID trip entries shadowing base ones.
func (r *Registry) ResolveContext(date time.Time) Context {
	merged := r.Base()
	ctx := Context{Date: date}
	if t, ok := r.TripFor(date); ok {
		ctx.Trip = t.Name
		for id, l := range t.Locations {
			merged[id] = l
		}
	}
	ctx.Locations = make([]Location, 0, len(merged))
	for _, l := range merged {
		ctx.Locations = append(ctx.Locations, l)
	}
	sort.Slice(ctx.Locations, func(i, j int) bool { return ctx.Locations[i].ID < ctx.Locations[j].ID })
	return ctx
}

// FindNearby resolves the context for date and returns the nearest matching location.
func (r *Registry) FindNearby(date time.Time, c geo.Coordinates, categories ...string) (Location, bool) {
	return r.ResolveContext(date).FindNearby(c, categories...)
}
