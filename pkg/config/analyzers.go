package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/localtime"
)

// Duration is a time.Duration written as a Go duration string in JSON ("2h", "90s").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalJSON parses a duration string.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"90s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON writes the duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Factor names one independently normalized confidence signal.
type Factor string

// Confidence factors understood by the analyzers.
const (
	FactorLocation   Factor = "location"
	FactorTimeWindow Factor = "time_window"
	FactorVelocity   Factor = "velocity"
	FactorDuration   Factor = "duration"
	FactorDwell      Factor = "dwell"
	FactorDistance   Factor = "distance"
	FactorEndpoints  Factor = "endpoints"
	FactorLoop       Factor = "loop"
	FactorRuns       Factor = "runs"
	FactorVertical   Factor = "vertical"
)

// Thresholds are the settings shared by every analyzer.
type Thresholds struct {
	Weights            map[Factor]float64 `json:"confidence_weights"`
	LocationCategories []string           `json:"location_categories,omitempty"`
	Windows            []localtime.Window `json:"windows,omitempty"`
	MinMPS             float64            `json:"min_mps"`
	MaxMPS             float64            `json:"max_mps"`
	TypicalMPS         float64            `json:"typical_mps"`
	StationaryMaxMPS   float64            `json:"stationary_max_mps,omitempty"`
	MinMovingFraction  float64            `json:"min_moving_fraction,omitempty"`
	MinSessionDuration Duration           `json:"min_session_duration"`
	MaxSessionDuration Duration           `json:"max_session_duration"`
	TypicalDuration    Duration           `json:"typical_duration"`
	GapTolerance       Duration           `json:"gap_tolerance"`
	WindowSlack        Duration           `json:"window_slack,omitempty"`
	Enabled            bool               `json:"enabled"`
	AllowDwell         bool               `json:"allow_dwell,omitempty"`
	RequireLocation    bool               `json:"require_location,omitempty"`
}

// Golf configures the golf analyzer.
type Golf struct {
	Thresholds

	MinDwells        int      `json:"min_dwells"`
	DwellMinDuration Duration `json:"dwell_min_duration"`
}

// Parkrun configures the parkrun/running analyzer.
type Parkrun struct {
	Thresholds

	TargetDistanceM float64 `json:"target_distance_m"`
	ReportOtherRuns bool    `json:"report_other_runs"`
}

// Commute configures the commute analyzer.
type Commute struct {
	Thresholds

	OriginCategories      []string           `json:"origin_categories"`
	DestinationCategories []string           `json:"destination_categories"`
	OutboundWindows       []localtime.Window `json:"outbound_windows"`
	ReturnWindows         []localtime.Window `json:"return_windows"`
	EndpointSlackM        float64            `json:"endpoint_slack_m"`
}

// DogWalking configures the dog-walking analyzer.
type DogWalking struct {
	Thresholds

	AnchorCategories []string `json:"anchor_categories"`
	MaxLoopGapM      float64  `json:"max_loop_gap_m"`
}

// Snowboarding configures the snowboarding analyzer.
type Snowboarding struct {
	Thresholds

	MinRuns           int     `json:"min_runs"`
	ExpectedRuns      int     `json:"expected_runs"`
	LiftMinClimbMPS   float64 `json:"lift_min_climb_mps"`
	DescentMinDropMPS float64 `json:"descent_min_drop_mps"`
	DescentMinMPS     float64 `json:"descent_min_mps"`
	MinLiftGainM      float64 `json:"min_lift_gain_m"`
	MinRunVerticalM   float64 `json:"min_run_vertical_m"`
	ExpectedVerticalM float64 `json:"expected_vertical_m"`
}

// Analyzers is the complete analyzer configuration. It is immutable after Load or Default.
type Analyzers struct {
	loc *time.Location

	Golf         *Golf         `json:"golf"`
	Parkrun      *Parkrun      `json:"parkrun"`
	Commute      *Commute      `json:"commute"`
	DogWalking   *DogWalking   `json:"dog_walking"`
	Snowboarding *Snowboarding `json:"snowboarding"`
	Timezone     string        `json:"timezone"`
	MaxAccuracyM float64       `json:"max_accuracy_m"`
}

// Location returns the time zone that local-time rules are evaluated in.
func (a *Analyzers) Location() *time.Location {
	if a.loc == nil {
		return time.UTC
	}
	return a.loc
}

// WithLocation returns a copy of a whose local-time rules are evaluated in loc.
// The threshold sections are shared with a.
func (a *Analyzers) WithLocation(loc *time.Location) *Analyzers {
	if loc == nil {
		return a
	}
	c := *a
	c.loc = loc
	c.Timezone = loc.String()
	return &c
}

var allowedFactors = map[string][]Factor{
	"golf":         {FactorLocation, FactorTimeWindow, FactorVelocity, FactorDuration, FactorDwell},
	"parkrun":      {FactorLocation, FactorTimeWindow, FactorVelocity, FactorDuration, FactorDistance},
	"commute":      {FactorEndpoints, FactorTimeWindow, FactorVelocity, FactorDuration},
	"dog_walking":  {FactorLocation, FactorTimeWindow, FactorVelocity, FactorDuration, FactorLoop},
	"snowboarding": {FactorLocation, FactorTimeWindow, FactorVelocity, FactorDuration, FactorRuns, FactorVertical},
}

// Load reads and validates an analyzer configuration file.
func Load(path string) (*Analyzers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("reading analyzer config: %w", err)}
	}
	return Parse(bytes.NewReader(data), path)
}

// Parse decodes and validates an analyzer configuration. path is used in error messages only.
func Parse(r io.Reader, path string) (*Analyzers, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var a Analyzers
	if err := dec.Decode(&a); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("decoding analyzer config: %w", err)}
	}
	if err := a.validate(path); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Analyzers) validate(path string) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, Errorf(path, field, format, args...))
	}

	tz := a.Timezone
	if tz == "" {
		add("timezone", "is required (use \"UTC\" explicitly)")
	} else if loc, err := time.LoadLocation(tz); err != nil {
		add("timezone", "loading %q: %v", tz, err)
	} else {
		a.loc = loc
	}
	if a.MaxAccuracyM < 0 {
		add("max_accuracy_m", "must not be negative")
	}

	if a.Golf == nil {
		add("golf", "section missing (set enabled=false to disable)")
	} else if a.Golf.Enabled {
		validateThresholds("golf", &a.Golf.Thresholds, add)
		if a.Golf.MinDwells < 0 {
			add("golf.min_dwells", "must not be negative")
		}
		if a.Golf.MinDwells > 0 && a.Golf.DwellMinDuration <= 0 {
			add("golf.dwell_min_duration", "must be positive when min_dwells is set")
		}
		if !a.Golf.AllowDwell {
			add("golf.allow_dwell", "must be true; dwell periods are part of the golf signal")
		}
	}

	if a.Parkrun == nil {
		add("parkrun", "section missing (set enabled=false to disable)")
	} else if a.Parkrun.Enabled {
		validateThresholds("parkrun", &a.Parkrun.Thresholds, add)
		if a.Parkrun.TargetDistanceM <= 0 {
			add("parkrun.target_distance_m", "must be positive")
		}
	}

	if a.Commute == nil {
		add("commute", "section missing (set enabled=false to disable)")
	} else if c := a.Commute; c.Enabled {
		validateThresholds("commute", &c.Thresholds, add)
		if len(c.OriginCategories) == 0 {
			add("commute.origin_categories", "must not be empty")
		}
		if len(c.DestinationCategories) == 0 {
			add("commute.destination_categories", "must not be empty")
		}
		if c.EndpointSlackM < 0 {
			add("commute.endpoint_slack_m", "must not be negative")
		}
		validateWindows("commute.outbound_windows", c.OutboundWindows, add)
		validateWindows("commute.return_windows", c.ReturnWindows, add)
	}

	if a.DogWalking == nil {
		add("dog_walking", "section missing (set enabled=false to disable)")
	} else if d := a.DogWalking; d.Enabled {
		validateThresholds("dog_walking", &d.Thresholds, add)
		if len(d.AnchorCategories) == 0 {
			add("dog_walking.anchor_categories", "must not be empty")
		}
		if d.MaxLoopGapM <= 0 {
			add("dog_walking.max_loop_gap_m", "must be positive")
		}
	}

	if a.Snowboarding == nil {
		add("snowboarding", "section missing (set enabled=false to disable)")
	} else if s := a.Snowboarding; s.Enabled {
		validateThresholds("snowboarding", &s.Thresholds, add)
		if s.MinRuns < 2 {
			add("snowboarding.min_runs", "must be at least 2")
		}
		if s.ExpectedRuns < s.MinRuns {
			add("snowboarding.expected_runs", "must be at least min_runs")
		}
		for field, v := range map[string]float64{
			"lift_min_climb_mps":   s.LiftMinClimbMPS,
			"descent_min_drop_mps": s.DescentMinDropMPS,
			"descent_min_mps":      s.DescentMinMPS,
			"min_lift_gain_m":      s.MinLiftGainM,
			"min_run_vertical_m":   s.MinRunVerticalM,
			"expected_vertical_m":  s.ExpectedVerticalM,
		} {
			if v <= 0 {
				add("snowboarding."+field, "must be positive")
			}
		}
	}

	// Map iteration above makes the order nondeterministic.
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errors.Join(errs...)
}

func validateThresholds(name string, t *Thresholds, add func(field, format string, args ...any)) {
	f := func(field string) string { return name + "." + field }

	switch {
	case t.MinMPS < 0:
		add(f("min_mps"), "must not be negative")
	case t.MaxMPS <= 0:
		add(f("max_mps"), "must be positive")
	case t.MinMPS > t.MaxMPS:
		add(f("min_mps"), "%.2f exceeds max_mps %.2f", t.MinMPS, t.MaxMPS)
	case t.TypicalMPS < t.MinMPS || t.TypicalMPS > t.MaxMPS:
		add(f("typical_mps"), "%.2f outside [%.2f, %.2f]", t.TypicalMPS, t.MinMPS, t.MaxMPS)
	}

	switch {
	case t.MinSessionDuration <= 0:
		add(f("min_session_duration"), "must be positive")
	case t.MaxSessionDuration < t.MinSessionDuration:
		add(f("max_session_duration"), "%v is less than min_session_duration %v",
			t.MaxSessionDuration.Std(), t.MinSessionDuration.Std())
	case t.TypicalDuration < t.MinSessionDuration || t.TypicalDuration > t.MaxSessionDuration:
		add(f("typical_duration"), "%v outside [%v, %v]",
			t.TypicalDuration.Std(), t.MinSessionDuration.Std(), t.MaxSessionDuration.Std())
	}
	if t.GapTolerance <= 0 {
		add(f("gap_tolerance"), "must be positive")
	}
	if t.WindowSlack < 0 {
		add(f("window_slack"), "must not be negative")
	}

	if t.AllowDwell && (t.StationaryMaxMPS <= 0 || t.StationaryMaxMPS > t.MinMPS) {
		add(f("stationary_max_mps"), "must be in (0, min_mps] when allow_dwell is set")
	}
	if t.MinMovingFraction < 0 || t.MinMovingFraction > 1 {
		add(f("min_moving_fraction"), "must be within [0, 1]")
	}
	if t.RequireLocation && len(t.LocationCategories) == 0 {
		add(f("location_categories"), "must not be empty when require_location is set")
	}
	validateWindows(f("windows"), t.Windows, add)

	allowed := map[Factor]bool{}
	for _, factor := range allowedFactors[name] {
		allowed[factor] = true
	}
	if len(t.Weights) == 0 {
		add(f("confidence_weights"), "must not be empty")
		return
	}
	sum := 0.0
	for factor, w := range t.Weights {
		if !allowed[factor] {
			add(f("confidence_weights"), "unknown factor %q (allowed: %s)", factor, joinFactors(allowedFactors[name]))
		}
		if w < 0 || math.IsNaN(w) {
			add(f("confidence_weights."+string(factor)), "must not be negative")
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		add(f("confidence_weights"), "sum to %.4f, want 1.0", sum)
	}
}

func validateWindows(field string, windows []localtime.Window, add func(field, format string, args ...any)) {
	for i, w := range windows {
		if w.End < w.Start {
			add(fmt.Sprintf("%s[%d]", field, i), "end %v is before start %v", w.End, w.Start)
		}
	}
}

func joinFactors(fs []Factor) string {
	s := make([]string, len(fs))
	for i, f := range fs {
		s[i] = string(f)
	}
	return strings.Join(s, ", ")
}
