// Package main implements the tripsense CLI, which turns Owntracks location history
// into daily activity reports.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/activity"
	"github.com/codeGROOVE-dev/tripsense/pkg/config"
	"github.com/codeGROOVE-dev/tripsense/pkg/localtime"
	"github.com/codeGROOVE-dev/tripsense/pkg/locations"
	"github.com/codeGROOVE-dev/tripsense/pkg/owntracks"
	"github.com/codeGROOVE-dev/tripsense/pkg/pointcache"
	"github.com/codeGROOVE-dev/tripsense/pkg/pointstore"
	"github.com/codeGROOVE-dev/tripsense/pkg/report"
	"github.com/codeGROOVE-dev/tripsense/pkg/track"
	"github.com/codeGROOVE-dev/tripsense/pkg/trip"
)

var (
	configPath    = flag.String("config", "", "Application config file (default ~/.config/tripsense/config.yaml)")
	owntracksURL  = flag.String("owntracks-url", "", "Owntracks Recorder base URL (or set TRIPSENSE_OWNTRACKS_URL)")
	user          = flag.String("user", "", "Owntracks user whose history is analyzed")
	device        = flag.String("device", "", "Owntracks device whose history is analyzed")
	storePath     = flag.String("store", "", "SQLite point archive, used instead of the Recorder when set")
	importFile    = flag.String("import", "", "Import an Owntracks Recorder .rec file into -store and exit")
	locationsPath = flag.String("locations", "", "Base known-locations JSON file")
	tripsDir      = flag.String("trips", "", "Directory of trip overlay JSON files")
	analyzersPath = flag.String("analyzers", "", "Analyzer thresholds JSON file (default: built-in thresholds)")
	confirmedPath = flag.String("confirmed", "", "JSON file of externally confirmed sessions")
	tz            = flag.String("tz", "", "Time zone defining local days (default: analyzer config)")
	date          = flag.String("date", "", "Analyze one date, YYYY-MM-DD (default: yesterday)")
	fromDate      = flag.String("from", "", "First date of a range, YYYY-MM-DD")
	toDate        = flag.String("to", "", "Last date of a range, YYYY-MM-DD (default: -from)")
	tripName      = flag.String("trip", "", "Analyze every day of the named trip")
	workers       = flag.Int("workers", 0, "Days analyzed in parallel (default 4)")
	cacheDir      = flag.String("cache-dir", "", "Cache directory (or set CACHE_DIR)")
	noCache       = flag.Bool("no-cache", false, "Disable caching")
	jsonOut       = flag.Bool("json", false, "Print summaries as JSON")
	verbose       = flag.Bool("verbose", false, "Enable verbose logging")
	version       = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("tripsense v0.3.0")
		return
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "tripsense: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	if *importFile != "" {
		return importRecorder(ctx, s, logger)
	}

	analyzersCfg, err := loadAnalyzers(s)
	if err != nil {
		return err
	}
	loc := analyzersCfg.Location()

	reg, err := locations.Load(s.locations, s.trips, loc)
	if err != nil {
		return err
	}

	src, closeSource, err := openSource(s, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	opts := []trip.Option{
		trip.WithIdentity(s.user, s.device),
		trip.WithTimezone(loc),
		trip.WithWorkers(s.workers),
		trip.WithPrepare(track.PrepareOptions{MaxAccuracyM: analyzersCfg.MaxAccuracyM}),
	}
	if !s.cache.Disabled {
		cache, err := pointcache.New(ctx, s.cache.Dir, s.cache.TTL, logger)
		if err != nil {
			logger.Warn("cache unavailable, continuing without it", "error", err)
		} else {
			defer func() {
				if err := cache.Close(); err != nil {
					logger.Error("failed to close cache", "error", err)
				}
			}()
			opts = append(opts, trip.WithCache(cache))
		}
	}
	if *confirmedPath != "" {
		confirmed, err := loadConfirmed(*confirmedPath)
		if err != nil {
			return err
		}
		opts = append(opts, trip.WithConfirmed(confirmed...))
	}

	orch := trip.New(reg, activity.NewAnalyzers(analyzersCfg), src, logger, opts...)

	var days []trip.DailySummary
	switch {
	case *tripName != "":
		_, days, err = orch.AnalyzeTrip(ctx, *tripName)
	default:
		start, end, rerr := dateRange(loc)
		if rerr != nil {
			return rerr
		}
		days, err = orch.AnalyzeRange(ctx, start, end)
	}
	if err != nil {
		return err
	}
	trips := trip.Summarize(days)

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Days  []trip.DailySummary `json:"days"`
			Trips []trip.TripSummary  `json:"trips"`
		}{days, trips})
	}
	return report.Render(os.Stdout, days, trips, loc)
}

// loadAnalyzers reads the analyzer thresholds. A -tz or YAML timezone replaces the
// zone of the analyzer file, so local days and local-time rules agree.
func loadAnalyzers(s *settings) (*config.Analyzers, error) {
	cfg := config.Default(s.timezone)
	if s.analyzers != "" {
		var err error
		if cfg, err = config.Load(s.analyzers); err != nil {
			return nil, err
		}
	}
	if s.timezone == "" {
		return cfg, nil
	}
	loc, err := time.LoadLocation(s.timezone)
	if err != nil {
		return nil, fmt.Errorf("loading time zone: %w", err)
	}
	return cfg.WithLocation(loc), nil
}

// dateRange resolves -date, -from and -to. With none set, yesterday is analyzed.
func dateRange(loc *time.Location) (start, end time.Time, err error) {
	parse := func(s string) (time.Time, error) { return localtime.ParseDate(s, loc) }
	switch {
	case *date != "" && (*fromDate != "" || *toDate != ""):
		return start, end, errors.New("-date cannot be combined with -from/-to")
	case *date != "":
		start, err = parse(*date)
		return start, start, err
	case *fromDate != "":
		if start, err = parse(*fromDate); err != nil {
			return start, end, err
		}
		end = start
		if *toDate != "" {
			end, err = parse(*toDate)
		}
		return start, end, err
	case *toDate != "":
		return start, end, errors.New("-to requires -from")
	default:
		y := localtime.Day(time.Now(), loc).AddDate(0, 0, -1)
		return y, y, nil
	}
}

func openSource(s *settings, logger *slog.Logger) (track.Source, func(), error) {
	if s.store != "" {
		store, err := pointstore.Open(s.store, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close point store", "error", err)
			}
		}, nil
	}
	if s.owntracksURL == "" {
		return nil, nil, errors.New("no data source: set -owntracks-url or -store")
	}
	var opts []owntracks.Option
	if s.username != "" {
		opts = append(opts, owntracks.WithBasicAuth(s.username, s.password))
	}
	return owntracks.NewClient(s.owntracksURL, nil, logger, opts...), func() {}, nil
}

func importRecorder(ctx context.Context, s *settings, logger *slog.Logger) error {
	if s.store == "" {
		return errors.New("-import requires -store")
	}
	if s.user == "" || s.device == "" {
		return errors.New("-import requires -user and -device")
	}
	store, err := pointstore.Open(s.store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close point store", "error", err)
		}
	}()

	f, err := os.Open(filepath.Clean(*importFile))
	if err != nil {
		return fmt.Errorf("opening recorder file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Debug("failed to close recorder file", "error", err)
		}
	}()

	stats, err := store.ImportRecorder(ctx, f, s.user, s.device)
	if err != nil {
		return err
	}
	fmt.Printf("📥 %s: %d lines, %d new points, %d already stored, %d other messages, %d malformed\n",
		*importFile, stats.Lines, stats.Inserted, stats.Skipped, stats.Ignored, stats.Malformed)
	return nil
}

type confirmedFile struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Type     activity.Type `json:"type"`
	Location string        `json:"location,omitempty"`
}

func loadConfirmed(path string) ([]activity.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &config.Error{Path: path, Err: err}
	}
	var raw []confirmedFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &config.Error{Path: path, Err: fmt.Errorf("parsing confirmed sessions: %w", err)}
	}
	sessions := make([]activity.Session, 0, len(raw))
	for i, r := range raw {
		if r.Type == "" || !r.Start.Before(r.End) {
			return nil, config.Errorf(path, fmt.Sprintf("[%d]", i), "needs a type and start before end")
		}
		sessions = append(sessions, activity.Confirmed(r.Type, r.Start, r.End, r.Location))
	}
	return sessions, nil
}
