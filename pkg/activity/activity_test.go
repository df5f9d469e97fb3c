package activity

import (
	"math"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/config"
	"github.com/codeGROOVE-dev/tripsense/pkg/geo"
	"github.com/codeGROOVE-dev/tripsense/pkg/localtime"
	"github.com/codeGROOVE-dev/tripsense/pkg/locations"
	"github.com/codeGROOVE-dev/tripsense/pkg/track"
	"github.com/google/go-cmp/cmp"
)

var (
	courseCenter = geo.Coordinates{Lat: 51.4000, Lon: -0.3000}
	parkCenter   = geo.Coordinates{Lat: 51.4500, Lon: -0.2000}
	home         = geo.Coordinates{Lat: 51.5000, Lon: -0.1200}
	resort       = geo.Coordinates{Lat: 45.9237, Lon: 6.8694}
)

// Tuesday 2025-03-04, Saturday 2025-03-01, Wednesday 2025-03-05, Sunday 2025-03-02.
func at(day string, hour, minute int) time.Time {
	d, err := time.Parse(localtime.DateLayout, day)
	if err != nil {
		panic(err)
	}
	return d.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func golfDay() []track.Point {
	start := geo.Offset(courseCenter, 0, 300)
	return newTrack(at("2025-03-04", 9, 0), start, 30*time.Second).
		circle(courseCenter, 1.5, 60*time.Minute).
		dwell(5*time.Minute).
		circle(courseCenter, 1.5, 55*time.Minute).
		dwell(5*time.Minute).
		circle(courseCenter, 1.5, 55*time.Minute).
		build()
}

func golfContext() locations.Context {
	return locations.NewContext(at("2025-03-04", 0, 0),
		locations.Location{ID: "course", Name: "Royal Mid-Surrey", Category: locations.CategoryGolfCourse, Coordinates: courseCenter, RadiusM: 600})
}

func parkrunContext(date string) locations.Context {
	return locations.NewContext(at(date, 0, 0),
		locations.Location{ID: "bushy", Name: "Bushy parkrun", Category: locations.CategoryParkrun, Coordinates: parkCenter, RadiusM: 200})
}

func run(start time.Time, center geo.Coordinates, d time.Duration) []track.Point {
	return newTrack(start, geo.Offset(center, 0, 150), 10*time.Second).
		circle(center, 3, d).
		build()
}

func commuteContext(date string) (locations.Context, geo.Coordinates) {
	office := geo.Offset(home, 30_000, 0)
	return locations.NewContext(at(date, 0, 0),
		locations.Location{ID: "home", Name: "Home", Category: locations.CategoryHome, Coordinates: home, RadiusM: 300},
		locations.Location{ID: "office", Name: "Office", Category: locations.CategoryOffice, Coordinates: office, RadiusM: 300},
	), office
}

func drive(start time.Time, from geo.Coordinates, north float64) []track.Point {
	return newTrack(start, from, 30*time.Second).line(north, 0, 20, 0).build()
}

func snowDay(start time.Time, runs int) []track.Point {
	b := newTrack(start, resort, 30*time.Second).withAltitude(1000)
	for range runs {
		b.line(1440, 0, 4, 360)   // chairlift: 6 minutes, 1 m/s up
		b.line(-1440, 0, 6, -360) // descent: 4 minutes, 1.5 m/s down
	}
	return b.build()
}

func snowContext(start time.Time) locations.Context {
	return locations.NewContext(start,
		locations.Location{ID: "chamonix", Name: "Chamonix", Category: locations.CategorySkiResort, Coordinates: resort, RadiusM: 5000})
}

func dogWalk(start time.Time, park geo.Coordinates, d time.Duration) []track.Point {
	return newTrack(start, geo.Offset(park, -200, 0), 30*time.Second).
		circle(park, 1.1, d).
		build()
}

func dogContext(park geo.Coordinates) locations.Context {
	return locations.NewContext(time.Time{},
		locations.Location{ID: "home", Name: "Home", Category: locations.CategoryHome, Coordinates: geo.Offset(park, -200, 0), RadiusM: 50},
		locations.Location{ID: "common", Name: "The Common", Category: locations.CategoryPark, Coordinates: park, RadiusM: 400},
	)
}

func defaults() *config.Analyzers { return config.Default("UTC") }

func detectAll(t *testing.T, points []track.Point, lc locations.Context) map[Type][]Session {
	t.Helper()
	out := map[Type][]Session{}
	for _, a := range NewAnalyzers(defaults()) {
		for _, s := range a.DetectSessions(points, lc) {
			out[s.Type] = append(out[s.Type], s)
		}
	}
	return out
}

func checkSession(t *testing.T, s Session) {
	t.Helper()
	if !s.Start.Before(s.End) {
		t.Errorf("%s session start %v not before end %v", s.Type, s.Start, s.End)
	}
	if s.Duration != s.End.Sub(s.Start) {
		t.Errorf("%s duration %v != end-start", s.Type, s.Duration)
	}
	if s.Score < 0 || s.Score > 1 {
		t.Errorf("%s score %v outside [0,1]", s.Type, s.Score)
	}
	if s.Label != LabelFor(s.Score) {
		t.Errorf("%s label %s does not match score %.3f", s.Type, s.Label, s.Score)
	}
	for f, v := range s.Factors {
		if v < 0 || v > 1 {
			t.Errorf("%s factor %s = %v outside [0,1]", s.Type, f, v)
		}
	}
}

func TestGolfRound(t *testing.T) {
	got := detectAll(t, golfDay(), golfContext())
	if len(got) != 1 || len(got[TypeGolf]) != 1 {
		t.Fatalf("want exactly one golf session, got %v", summarize(got))
	}
	s := got[TypeGolf][0]
	checkSession(t, s)
	if s.Label != LabelHigh {
		t.Errorf("label = %s (score %.3f), want HIGH", s.Label, s.Score)
	}
	if s.Score < 0.9 {
		t.Errorf("score = %.3f, want >= 0.9", s.Score)
	}
	if !s.Start.Equal(at("2025-03-04", 9, 0)) || s.Duration != 3*time.Hour {
		t.Errorf("session %v for %v, want 09:00 for 3h", s.Start, s.Duration)
	}
	if s.LocationName != "Royal Mid-Surrey" {
		t.Errorf("location = %q", s.LocationName)
	}
	if s.Details["dwells"] != 2 {
		t.Errorf("dwells = %v, want 2", s.Details["dwells"])
	}
	if s.Factors[config.FactorLocation] != 1 || s.Factors[config.FactorDwell] != 1 {
		t.Errorf("factors = %v", s.Factors)
	}
}

func TestGolfTooShort(t *testing.T) {
	points := newTrack(at("2025-03-04", 9, 0), geo.Offset(courseCenter, 0, 300), 30*time.Second).
		circle(courseCenter, 1.5, 40*time.Minute).
		dwell(5*time.Minute).
		circle(courseCenter, 1.5, 45*time.Minute).
		build()
	if got := NewGolf(defaults().Golf, time.UTC).DetectSessions(points, golfContext()); len(got) != 0 {
		t.Errorf("90 minute walk produced golf sessions: %+v", got)
	}
}

func TestParkrun(t *testing.T) {
	p := NewParkrun(defaults().Parkrun, time.UTC)

	t.Run("saturday at venue", func(t *testing.T) {
		got := p.DetectSessions(run(at("2025-03-01", 9, 0), parkCenter, 23*time.Minute), parkrunContext("2025-03-01"))
		if len(got) != 1 {
			t.Fatalf("got %d sessions, want 1", len(got))
		}
		s := got[0]
		checkSession(t, s)
		if s.Type != TypeParkrun || s.Label != LabelHigh {
			t.Errorf("got %s/%s (score %.3f), want parkrun/HIGH", s.Type, s.Label, s.Score)
		}
		if s.Details["venue_override"] != false {
			t.Errorf("venue_override = %v", s.Details["venue_override"])
		}
		if d := s.Details["distance_m"].(float64); d < 4000 || d > 4200 {
			t.Errorf("distance = %v", d)
		}
		if s.LocationName != "Bushy parkrun" {
			t.Errorf("location = %q", s.LocationName)
		}
	})

	t.Run("tuesday at venue", func(t *testing.T) {
		got := p.DetectSessions(run(at("2025-03-04", 18, 0), parkCenter, 23*time.Minute), parkrunContext("2025-03-04"))
		if len(got) != 1 || got[0].Type != TypeParkrun || got[0].Details["venue_override"] != true {
			t.Fatalf("want venue-override parkrun, got %+v", got)
		}
		if got[0].Factors[config.FactorTimeWindow] != 0 {
			t.Errorf("time window factor on a Tuesday = %v", got[0].Factors[config.FactorTimeWindow])
		}
	})

	t.Run("tuesday elsewhere", func(t *testing.T) {
		elsewhere := geo.Offset(parkCenter, 5000, 0)
		got := p.DetectSessions(run(at("2025-03-04", 18, 0), elsewhere, 23*time.Minute), parkrunContext("2025-03-04"))
		if len(got) != 1 || got[0].Type != TypeRunning {
			t.Fatalf("want one running session, got %+v", got)
		}
		checkSession(t, got[0])

		cfg := defaults().Parkrun
		cfg.ReportOtherRuns = false
		if got := NewParkrun(cfg, time.UTC).DetectSessions(run(at("2025-03-04", 18, 0), elsewhere, 23*time.Minute), parkrunContext("2025-03-04")); len(got) != 0 {
			t.Errorf("other runs should be dropped, got %+v", got)
		}
	})
}

func TestCommute(t *testing.T) {
	c := NewCommute(defaults().Commute, time.UTC)

	t.Run("morning", func(t *testing.T) {
		lc, _ := commuteContext("2025-03-05")
		got := c.DetectSessions(drive(at("2025-03-05", 7, 30), home, 30_000), lc)
		if len(got) != 1 {
			t.Fatalf("got %d sessions, want 1", len(got))
		}
		s := got[0]
		checkSession(t, s)
		if s.Details["direction"] != DirectionToOffice || s.Details["from"] != "Home" || s.Details["to"] != "Office" {
			t.Errorf("details = %v", s.Details)
		}
		if s.Label != LabelHigh {
			t.Errorf("label = %s (score %.3f), want HIGH", s.Label, s.Score)
		}
		if s.Duration != 25*time.Minute {
			t.Errorf("duration = %v, want 25m", s.Duration)
		}
	})

	t.Run("evening", func(t *testing.T) {
		lc, office := commuteContext("2025-03-05")
		got := c.DetectSessions(drive(at("2025-03-05", 17, 45), office, -30_000), lc)
		if len(got) != 1 || got[0].Details["direction"] != DirectionToHome {
			t.Fatalf("want one to_home commute, got %+v", got)
		}
		if got[0].Factors[config.FactorTimeWindow] != 1 {
			t.Errorf("return window factor = %v", got[0].Factors[config.FactorTimeWindow])
		}
	})

	t.Run("endpoint slack", func(t *testing.T) {
		lc, _ := commuteContext("2025-03-05")
		from := geo.Offset(home, -800, 0) // outside the radius, inside the slack
		got := c.DetectSessions(drive(at("2025-03-05", 7, 30), from, 30_800), lc)
		if len(got) != 1 || got[0].Factors[config.FactorEndpoints] != 0.8 {
			t.Fatalf("want one commute with endpoint factor 0.8, got %+v", got)
		}
	})

	t.Run("weekend", func(t *testing.T) {
		lc, _ := commuteContext("2025-03-01")
		if got := c.DetectSessions(drive(at("2025-03-01", 7, 30), home, 30_000), lc); len(got) != 0 {
			t.Errorf("saturday drive produced commute: %+v", got)
		}
	})

	t.Run("unrelated endpoints", func(t *testing.T) {
		lc, _ := commuteContext("2025-03-05")
		elsewhere := geo.Offset(home, 0, 20_000)
		if got := c.DetectSessions(drive(at("2025-03-05", 7, 30), elsewhere, 30_000), lc); len(got) != 0 {
			t.Errorf("drive between unknown places produced commute: %+v", got)
		}
	})
}

func TestDogWalking(t *testing.T) {
	d := NewDogWalking(defaults().DogWalking, time.UTC)

	got := d.DetectSessions(dogWalk(at("2025-03-02", 7, 0), parkCenter, 40*time.Minute), dogContext(parkCenter))
	if len(got) != 1 {
		t.Fatalf("got %d sessions, want 1", len(got))
	}
	s := got[0]
	checkSession(t, s)
	if s.Label != LabelHigh {
		t.Errorf("label = %s (score %.3f), want HIGH", s.Label, s.Score)
	}
	if gap := s.Details["loop_gap_m"].(float64); gap < 100 || gap > 150 {
		t.Errorf("loop gap = %v, want about 125", gap)
	}
	if s.LocationName != "The Common" {
		t.Errorf("location = %q", s.LocationName)
	}

	// A one-way walk never closes the loop.
	oneWay := newTrack(at("2025-03-02", 7, 0), geo.Offset(parkCenter, -200, 0), 30*time.Second).
		line(2500, 0, 1.1, 0).
		build()
	if got := d.DetectSessions(oneWay, dogContext(parkCenter)); len(got) != 0 {
		t.Errorf("one-way walk produced dog walk: %+v", got)
	}

	// A loop far from any anchor is not a dog walk.
	far := geo.Offset(parkCenter, 10_000, 10_000)
	if got := d.DetectSessions(dogWalk(at("2025-03-02", 7, 0), far, 40*time.Minute), dogContext(parkCenter)); len(got) != 0 {
		t.Errorf("unanchored loop produced dog walk: %+v", got)
	}
}

func TestSnowboarding(t *testing.T) {
	s := NewSnowboarding(defaults().Snowboarding, time.UTC)
	start := at("2025-02-12", 10, 0)

	got := s.DetectSessions(snowDay(start, 8), snowContext(start))
	if len(got) != 1 {
		t.Fatalf("got %d sessions, want 1", len(got))
	}
	sess := got[0]
	checkSession(t, sess)
	if sess.Details["runs"] != 8 {
		t.Errorf("runs = %v, want 8", sess.Details["runs"])
	}
	if v := sess.Details["vertical_m"].(float64); v != 2880 {
		t.Errorf("vertical = %v, want 2880", v)
	}
	if sess.Label != LabelHigh {
		t.Errorf("label = %s (score %.3f), want HIGH", sess.Label, sess.Score)
	}

	// Without altitude there are no runs.
	flat := make([]track.Point, 0)
	for _, p := range snowDay(start, 8) {
		p.Altitude = nil
		flat = append(flat, p)
	}
	if got := s.DetectSessions(flat, snowContext(start)); len(got) != 0 {
		t.Errorf("day without altitude produced snowboarding: %+v", got)
	}
}

func TestClusteringGapBoundary(t *testing.T) {
	th := config.Thresholds{
		Enabled:            true,
		MinMPS:             1,
		MaxMPS:             5,
		TypicalMPS:         2,
		MinSessionDuration: config.Duration(time.Minute),
		MaxSessionDuration: config.Duration(10 * time.Hour),
		TypicalDuration:    config.Duration(time.Hour),
		GapTolerance:       config.Duration(5 * time.Minute),
	}
	b := newBase(TypeGolf, &th, time.UTC)
	origin := geo.Coordinates{Lat: 50, Lon: 0}

	tests := []struct {
		name string
		gap  time.Duration
		want int
	}{
		{"gap equal to tolerance merges", 5 * time.Minute, 1},
		{"gap one second over splits", 5*time.Minute + time.Second, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points := newTrack(at("2025-03-04", 9, 0), origin, 30*time.Second).
				line(600, 0, 2, 0).
				silence(tt.gap).
				line(600, 0, 2, 0).
				build()
			if got := b.candidates(points); len(got) != tt.want {
				t.Errorf("got %d clusters, want %d", len(got), tt.want)
			}
		})
	}
}

func TestTrimStationary(t *testing.T) {
	th := defaults().Golf.Thresholds
	b := newBase(TypeGolf, &th, time.UTC)
	start := geo.Offset(courseCenter, 0, 300)
	points := newTrack(at("2025-03-04", 9, 0), start, 30*time.Second).
		dwell(8*time.Minute).
		circle(courseCenter, 1.5, 30*time.Minute).
		dwell(8*time.Minute).
		build()
	got := b.candidates(points)
	if len(got) != 1 {
		t.Fatalf("got %d clusters, want 1", len(got))
	}
	if !got[0].start().Equal(at("2025-03-04", 9, 8)) || got[0].duration() != 30*time.Minute {
		t.Errorf("cluster %v for %v, want 09:08 for 30m", got[0].start(), got[0].duration())
	}
}

func TestWindowFactor(t *testing.T) {
	windows := defaults().Parkrun.Windows
	slack := 30 * time.Minute
	tests := []struct {
		at   time.Time
		want float64
	}{
		{at("2025-03-01", 9, 0), 1},
		{at("2025-03-01", 9, 30), 1},
		{at("2025-03-01", 9, 45), 0.5},
		{at("2025-03-01", 10, 30), 0},
		{at("2025-03-01", 8, 30), 0.5},
		{at("2025-03-04", 9, 0), 0},
	}
	for _, tt := range tests {
		if got := windowFactor(tt.at, time.UTC, windows, slack); got != tt.want {
			t.Errorf("windowFactor(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
	if got := windowFactor(at("2025-03-04", 3, 0), time.UTC, nil, slack); got != 1 {
		t.Errorf("no windows = %v, want 1", got)
	}
}

func TestWindowFactorUsesLocalTime(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	windows := defaults().Parkrun.Windows
	// 14:00 UTC is 09:00 in New York (EST) on 2025-03-01.
	if got := windowFactor(at("2025-03-01", 14, 0), ny, windows, 30*time.Minute); got != 1 {
		t.Errorf("local 09:00 Saturday = %v, want 1", got)
	}
	if got := windowFactor(at("2025-03-01", 9, 0), time.UTC, windows, 30*time.Minute); got != 1 {
		t.Errorf("UTC 09:00 Saturday = %v, want 1", got)
	}
}

func TestSparseInput(t *testing.T) {
	lc := golfContext()
	one := golfDay()[:1]
	for _, a := range NewAnalyzers(defaults()) {
		if got := a.DetectSessions(nil, lc); got != nil {
			t.Errorf("%s on no points = %v", a.Type(), got)
		}
		if got := a.DetectSessions(one, lc); got != nil {
			t.Errorf("%s on one point = %v", a.Type(), got)
		}
	}
}

func TestDisabledAnalyzers(t *testing.T) {
	cfg := defaults()
	cfg.Golf.Enabled = false
	g := NewGolf(cfg.Golf, time.UTC)
	if g.Enabled() {
		t.Fatal("Enabled() = true")
	}
	if got := g.DetectSessions(golfDay(), golfContext()); got != nil {
		t.Errorf("disabled analyzer returned %v", got)
	}
	if NewGolf(nil, nil).Enabled() {
		t.Error("nil config should be disabled")
	}
}

func TestDeterministic(t *testing.T) {
	days := []struct {
		points []track.Point
		lc     locations.Context
	}{
		{golfDay(), golfContext()},
		{run(at("2025-03-01", 9, 0), parkCenter, 23*time.Minute), parkrunContext("2025-03-01")},
		{snowDay(at("2025-02-12", 10, 0), 6), snowContext(at("2025-02-12", 0, 0))},
	}
	for _, d := range days {
		first := detectAll(t, d.points, d.lc)
		second := detectAll(t, d.points, d.lc)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("repeated detection differs (-first +second):\n%s", diff)
		}
		for _, sessions := range first {
			for _, s := range sessions {
				checkSession(t, s)
				if s.ID != SessionID(s.Type, s.Start, s.End) {
					t.Errorf("session ID %s is not derived from type and bounds", s.ID)
				}
			}
		}
	}
}

func TestScoreIsOrderIndependent(t *testing.T) {
	weights := map[config.Factor]float64{
		config.FactorLocation:   0.35,
		config.FactorTimeWindow: 0.20,
		config.FactorVelocity:   0.15,
		config.FactorDuration:   0.15,
		config.FactorDwell:      0.15,
	}
	factors := map[config.Factor]float64{
		config.FactorLocation:   1,
		config.FactorTimeWindow: 0.7,
		config.FactorVelocity:   0.9133,
		config.FactorDuration:   0.61,
		config.FactorDwell:      1,
	}
	seen := map[uint64]int{}
	for range 500 {
		seen[math.Float64bits(score(weights, factors))]++
	}
	if len(seen) != 1 {
		t.Errorf("score returned %d distinct values for identical input: %v", len(seen), seen)
	}
}

func TestConfirmed(t *testing.T) {
	s := Confirmed(TypeGolf, at("2025-03-04", 9, 0), at("2025-03-04", 13, 0), "Royal Mid-Surrey")
	if s.Label != LabelConfirmed || s.Score != 1 || s.Duration != 4*time.Hour {
		t.Errorf("Confirmed() = %+v", s)
	}
}

func TestLabelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Label
	}{
		{1, LabelHigh}, {0.8, LabelHigh}, {0.79, LabelMedium}, {0.6, LabelMedium}, {0.59, LabelLow}, {0, LabelLow},
	}
	for _, tt := range tests {
		if got := LabelFor(tt.score); got != tt.want {
			t.Errorf("LabelFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func summarize(got map[Type][]Session) map[Type]int {
	out := map[Type]int{}
	for t, s := range got {
		out[t] = len(s)
	}
	return out
}
