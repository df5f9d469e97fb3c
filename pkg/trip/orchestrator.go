// Package trip runs the activity analyzers over days and trips: it fetches points,
// resolves the location context, merges analyzer output and summarizes the result.
package trip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/codeGROOVE-dev/tripsense/pkg/activity"
	"github.com/codeGROOVE-dev/tripsense/pkg/locations"
	"github.com/codeGROOVE-dev/tripsense/pkg/localtime"
	"github.com/codeGROOVE-dev/tripsense/pkg/pointcache"
	"github.com/codeGROOVE-dev/tripsense/pkg/track"
)

// ErrDataUnavailable means no points could be obtained for a date.
var ErrDataUnavailable = errors.New("data unavailable")

// Status of a DailySummary.
type Status string

// Day statuses.
const (
	StatusOK              Status = "ok"
	StatusDataUnavailable Status = "data_unavailable"
)

// Cache stores raw points per device and day. *pointcache.Cache implements it.
type Cache interface {
	Get(k pointcache.Key) ([]track.RawPoint, bool)
	Set(k pointcache.Key, points []track.RawPoint)
}

// DailySummary is the analysis of one local date.
type DailySummary struct {
	Err      error              `json:"-"`
	Date     string             `json:"date"`
	Trip     string             `json:"trip,omitempty"`
	Status   Status             `json:"status"`
	Error    string             `json:"error,omitempty"`
	Sessions []activity.Session `json:"sessions"`
	Points   int                `json:"points"`
	Dropped  int                `json:"dropped"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache sets the point cache.
func WithCache(c Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithIdentity sets the user and device whose points are analyzed.
func WithIdentity(user, device string) Option {
	return func(o *Orchestrator) {
		o.user = user
		o.device = device
	}
}

// WithTimezone sets the zone that defines local days. The default is UTC.
func WithTimezone(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithWorkers bounds how many days AnalyzeRange processes at once.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithRetry sets the fetch attempt ceiling and the backoff bounds.
func WithRetry(attempts uint, delay, maxDelay time.Duration) Option {
	return func(o *Orchestrator) {
		if attempts > 0 {
			o.attempts = attempts
		}
		o.delay = delay
		o.maxDelay = maxDelay
	}
}

// WithPrepare sets the point quality filter.
func WithPrepare(opts track.PrepareOptions) Option {
	return func(o *Orchestrator) { o.prepare = opts }
}

// WithConfirmed adds externally verified sessions. Each is merged into the day it starts on.
func WithConfirmed(sessions ...activity.Session) Option {
	return func(o *Orchestrator) { o.confirmed = append(o.confirmed, sessions...) }
}

// WithClock overrides the current time, which decides whether a day has ended.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator analyzes days. It holds no per-call state and is safe for concurrent use.
type Orchestrator struct {
	source    track.Source
	cache     Cache
	registry  *locations.Registry
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
	user      string
	device    string
	analyzers []activity.Analyzer
	confirmed []activity.Session
	prepare   track.PrepareOptions
	delay     time.Duration
	maxDelay  time.Duration
	workers   int
	attempts  uint
}

// New creates an orchestrator. A nil registry means no known locations.
func New(reg *locations.Registry, analyzers []activity.Analyzer, src track.Source, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = &locations.Registry{}
	}
	o := &Orchestrator{
		registry:  reg,
		analyzers: analyzers,
		source:    src,
		logger:    logger,
		loc:       time.UTC,
		now:       time.Now,
		workers:   4,
		attempts:  4,
		delay:     time.Second,
		maxDelay:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AnalyzeDay analyzes the local date containing date. Failures to obtain points are
// reported in the summary, never returned.
func (o *Orchestrator) AnalyzeDay(ctx context.Context, date time.Time) DailySummary {
	day := localtime.Day(date, o.loc)
	lc := o.registry.ResolveContext(day)
	sum := DailySummary{
		Date:     day.Format(localtime.DateLayout),
		Trip:     lc.Trip,
		Status:   StatusOK,
		Sessions: []activity.Session{},
	}

	raw, err := o.fetch(ctx, day)
	if err == nil && len(raw) == 0 {
		err = fmt.Errorf("%w: no points for %s", ErrDataUnavailable, sum.Date)
	}
	if err != nil {
		if !errors.Is(err, ErrDataUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDataUnavailable, err)
		}
		o.logger.Warn("day unavailable", "date", sum.Date, "error", err)
		sum.Status = StatusDataUnavailable
		sum.Err = err
		sum.Error = err.Error()
		return sum
	}

	points := track.Prepare(raw, o.prepare)
	sum.Points = len(points)

	candidates := o.detect(points, lc)
	for _, s := range o.confirmed {
		if localtime.Day(s.Start, o.loc).Equal(day) {
			candidates = append(candidates, s)
		}
	}

	accepted, dropped := Resolve(candidates)
	for _, s := range dropped {
		o.logger.Debug("dropped overlapping session",
			"date", sum.Date,
			"type", s.Type,
			"start", s.Start,
			"score", s.Score)
	}
	sum.Sessions = accepted
	sum.Dropped = len(dropped)

	o.logger.Info("analyzed day",
		"date", sum.Date,
		"trip", sum.Trip,
		"points", sum.Points,
		"sessions", len(sum.Sessions),
		"dropped", sum.Dropped)
	return sum
}

// detect runs every enabled analyzer concurrently.
func (o *Orchestrator) detect(points []track.Point, lc locations.Context) []activity.Session {
	results := make([][]activity.Session, len(o.analyzers))
	var wg sync.WaitGroup
	for i, a := range o.analyzers {
		if !a.Enabled() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = a.DetectSessions(points, lc)
		}()
	}
	wg.Wait()

	var all []activity.Session
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// fetch returns the raw points of day, from the cache when possible. Only fully
// ended, non-empty days are written back.
func (o *Orchestrator) fetch(ctx context.Context, day time.Time) ([]track.RawPoint, error) {
	key := pointcache.Key{User: o.user, Device: o.device, Date: day.Format(localtime.DateLayout)}
	if o.cache != nil {
		if points, ok := o.cache.Get(key); ok {
			o.logger.Debug("points served from cache", "date", key.Date, "points", len(points))
			return points, nil
		}
	}
	if o.source == nil {
		return nil, fmt.Errorf("%w: no data source configured", ErrDataUnavailable)
	}

	from, to := localtime.DayBounds(day, o.loc)
	q := track.Query{From: from, To: to, User: o.user, Device: o.device}

	var points []track.RawPoint
	err := retry.Do(
		func() error {
			var err error
			points, err = o.source.FetchPoints(ctx, q)
			if err != nil && !track.IsTransient(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(o.delay),
		retry.MaxDelay(o.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			o.logger.Debug("retrying point fetch",
				"date", key.Date,
				"attempt", n+1,
				"error", err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("fetching points after %d attempts: %w", o.attempts, err)
	}

	if o.cache != nil && len(points) > 0 && !o.now().Before(to) {
		o.cache.Set(key, points)
	}
	return points, nil
}

// AnalyzeRange analyzes every local date from start to end inclusive, in date order.
// A day without data does not stop the range; only a reversed range or a done
// context is an error.
func (o *Orchestrator) AnalyzeRange(ctx context.Context, start, end time.Time) ([]DailySummary, error) {
	s, e := localtime.Day(start, o.loc), localtime.Day(end, o.loc)
	if e.Before(s) {
		return nil, fmt.Errorf("end date %s is before start date %s",
			e.Format(localtime.DateLayout), s.Format(localtime.DateLayout))
	}
	dates := localtime.Dates(s, e, o.loc)
	out := make([]DailySummary, len(dates))

	jobs := make(chan int)
	workers := min(o.workers, len(dates))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = o.AnalyzeDay(ctx, dates[i])
			}
		}()
	}

feed:
	for i := range dates {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analyzing %s..%s: %w",
			s.Format(localtime.DateLayout), e.Format(localtime.DateLayout), err)
	}
	return out, nil
}

// AnalyzeTrip analyzes every day of the named trip.
func (o *Orchestrator) AnalyzeTrip(ctx context.Context, name string) (TripSummary, []DailySummary, error) {
	for _, t := range o.registry.Trips() {
		if t.Name != name {
			continue
		}
		days, err := o.AnalyzeRange(ctx, t.Start, t.End)
		if err != nil {
			return TripSummary{}, nil, err
		}
		for _, ts := range Summarize(days) {
			if ts.Name == name {
				return ts, days, nil
			}
		}
		return TripSummary{}, days, fmt.Errorf("trip %q produced no summary", name)
	}
	return TripSummary{}, nil, fmt.Errorf("unknown trip %q", name)
}
