package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestDefaultIsValid(t *testing.T) {
	a := Default("Europe/London")
	if a.Location().String() != "Europe/London" {
		t.Errorf("Location() = %v", a.Location())
	}
	if Default("Not/AZone").Timezone != "UTC" {
		t.Error("unknown zone should fall back to UTC")
	}
}

func TestWithLocation(t *testing.T) {
	orig := Default("Europe/London")
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	got := orig.WithLocation(tokyo)
	if got.Location() != tokyo || got.Timezone != "Asia/Tokyo" {
		t.Errorf("WithLocation() zone = %v (%q)", got.Location(), got.Timezone)
	}
	if orig.Location().String() != "Europe/London" || orig.Timezone != "Europe/London" {
		t.Errorf("original changed to %v (%q)", orig.Location(), orig.Timezone)
	}
	if got.Golf != orig.Golf {
		t.Error("threshold sections should be shared")
	}
	if orig.WithLocation(nil) != orig {
		t.Error("WithLocation(nil) should return the receiver")
	}
}

func TestDefaultsRoundTrip(t *testing.T) {
	want := Default("UTC")
	b, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Parse(bytes.NewReader(b), "roundtrip.json")
	if err != nil {
		t.Fatalf("Parse(marshalled defaults) error = %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreUnexported(Analyzers{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// mutate marshals the defaults to a generic map, applies fn, and re-encodes.
func mutate(t *testing.T, fn func(m map[string]any)) []byte {
	t.Helper()
	b, err := json.Marshal(Default("UTC"))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	fn(m)
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func section(m map[string]any, name string) map[string]any {
	return m[name].(map[string]any)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(m map[string]any)
		wantField string
	}{
		{
			name:      "min above max",
			mutate:    func(m map[string]any) { section(m, "golf")["min_mps"] = 5.0 },
			wantField: "golf.min_mps",
		},
		{
			name:      "typical outside band",
			mutate:    func(m map[string]any) { section(m, "parkrun")["typical_mps"] = 9.0 },
			wantField: "parkrun.typical_mps",
		},
		{
			name:      "max duration below min",
			mutate:    func(m map[string]any) { section(m, "golf")["max_session_duration"] = "1h" },
			wantField: "golf.max_session_duration",
		},
		{
			name: "weights do not sum to one",
			mutate: func(m map[string]any) {
				section(m, "commute")["confidence_weights"] = map[string]any{"endpoints": 0.5, "velocity": 0.2}
			},
			wantField: "commute.confidence_weights",
		},
		{
			name: "unknown factor",
			mutate: func(m map[string]any) {
				section(m, "golf")["confidence_weights"] = map[string]any{"location": 0.5, "runs": 0.5}
			},
			wantField: "golf.confidence_weights",
		},
		{
			name:      "zero gap tolerance",
			mutate:    func(m map[string]any) { section(m, "dog_walking")["gap_tolerance"] = "0s" },
			wantField: "dog_walking.gap_tolerance",
		},
		{
			name:      "single snowboard run",
			mutate:    func(m map[string]any) { section(m, "snowboarding")["min_runs"] = 1 },
			wantField: "snowboarding.min_runs",
		},
		{
			name:      "stationary above band",
			mutate:    func(m map[string]any) { section(m, "golf")["stationary_max_mps"] = 1.0 },
			wantField: "golf.stationary_max_mps",
		},
		{
			name:      "missing section",
			mutate:    func(m map[string]any) { delete(m, "commute") },
			wantField: "commute",
		},
		{
			name:      "bad timezone",
			mutate:    func(m map[string]any) { m["timezone"] = "Mars/Olympus" },
			wantField: "timezone",
		},
		{
			name: "window ends before start",
			mutate: func(m map[string]any) {
				section(m, "parkrun")["windows"] = []any{map[string]any{"days": []any{"sat"}, "start": "10:00", "end": "09:00"}}
			},
			wantField: "parkrun.windows[0]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(bytes.NewReader(mutate(t, tt.mutate)), "analyzers.json")
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v does not match ErrInvalid", err)
			}
			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error %T is not *Error", err)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("error %q does not mention %q", err, tt.wantField)
			}
		})
	}
}

func TestParseDisabledSkipsValidation(t *testing.T) {
	b := mutate(t, func(m map[string]any) {
		golf := section(m, "golf")
		golf["enabled"] = false
		golf["min_mps"] = 99.0
	})
	a, err := Parse(bytes.NewReader(b), "analyzers.json")
	if err != nil {
		t.Fatalf("disabled analyzer should not be validated: %v", err)
	}
	if a.Golf.Enabled {
		t.Error("golf should be disabled")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	b := mutate(t, func(m map[string]any) { section(m, "golf")["min_mps_typo"] = 1.0 })
	if _, err := Parse(bytes.NewReader(b), "analyzers.json"); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for unknown field, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestLoadApp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
timezone: Europe/London
owntracks:
  url: https://recorder.example.com
  user: anna
  device: phone
store: points.db
locations: locations.json
trips: /etc/tripsense/trips
cache:
  ttl: 336h
workers: 3
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadApp(path)
	if err != nil {
		t.Fatalf("LoadApp() error = %v", err)
	}
	if cfg.Owntracks.User != "anna" || cfg.Workers != 3 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Cache.TTL != 336*time.Hour {
		t.Errorf("cache ttl = %v", cfg.Cache.TTL)
	}
	if cfg.Store != filepath.Join(dir, "points.db") {
		t.Errorf("relative store path not resolved: %s", cfg.Store)
	}
	if cfg.Trips != "/etc/tripsense/trips" {
		t.Errorf("absolute path changed: %s", cfg.Trips)
	}
}

func TestLoadAppExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("store: ~/owntracks.db\nlocations: ~/places/locations.json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadApp(path)
	if err != nil {
		t.Fatalf("LoadApp() error = %v", err)
	}
	if want := filepath.Join(home, "owntracks.db"); cfg.Store != want {
		t.Errorf("store = %q, want %q", cfg.Store, want)
	}
	if want := filepath.Join(home, "places", "locations.json"); cfg.Locations != want {
		t.Errorf("locations = %q, want %q", cfg.Locations, want)
	}
}

func TestLoadAppMissingAndMalformed(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadApp(filepath.Join(dir, "missing.yaml"))
	if err != nil || cfg == nil {
		t.Fatalf("missing file should give empty config, got %v, %v", cfg, err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("owntracks: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadApp(bad); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}

	noURL := filepath.Join(dir, "nourl.yaml")
	if err := os.WriteFile(noURL, []byte("owntracks:\n  user: anna\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadApp(noURL); err == nil || !strings.Contains(err.Error(), "owntracks.url") {
		t.Errorf("expected owntracks.url error, got %v", err)
	}
}
