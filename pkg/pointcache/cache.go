// Package pointcache caches a day of raw location points per (user, device, date),
// in memory with optional persistence to disk between runs.
package pointcache

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/track"
	"github.com/maypok86/otter/v2"
)

// DefaultTTL keeps finished days for two weeks.
const DefaultTTL = 14 * 24 * time.Hour

const fileName = "points-cache.gob"

// Key identifies one local day of one device.
type Key struct {
	User   string
	Device string
	Date   string // YYYY-MM-DD in the analysis time zone
}

func (k Key) String() string { return k.User + "/" + k.Device + "/" + k.Date }

// Entry is a cached day.
type Entry struct {
	ExpiresAt time.Time
	Points    []track.RawPoint
}

// Cache is safe for concurrent use. Writing the same key twice is harmless.
type Cache struct {
	cache      *otter.Cache[Key, Entry]
	logger     *slog.Logger
	saveCancel context.CancelFunc
	dir        string
	saveWg     sync.WaitGroup
	ttl        time.Duration
	mu         sync.Mutex
}

func newCache(ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		cache: otter.Must(&otter.Options[Key, Entry]{
			MaximumSize:      10_000,
			InitialCapacity:  512,
			ExpiryCalculator: otter.ExpiryWriting[Key, Entry](ttl),
		}),
		ttl:    ttl,
		logger: logger,
	}
}

// NewMemory returns a cache that lives only as long as the process.
func NewMemory(ttl time.Duration, logger *slog.Logger) *Cache {
	return newCache(ttl, logger)
}

// New returns a cache persisted under dir. Existing entries are loaded, and the cache is
// saved every five minutes until ctx is done or Close is called.
// gob cannot tell a nil pointer from a pointer to zero, so a persisted altitude or
// accuracy of exactly 0 reloads as unknown.
func New(ctx context.Context, dir string, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	c := newCache(ttl, logger)
	c.dir = dir

	if err := c.loadFromDisk(); err != nil {
		c.logger.Warn("failed to load cache from disk", "error", err)
	}
	c.logger.Info("cache initialized", "dir", dir, "entries_loaded", c.cache.EstimatedSize())

	c.startPeriodicSave(ctx, 5*time.Minute)
	return c, nil
}

// Get returns the cached points for k. Callers must not modify the returned slice.
func (c *Cache) Get(k Key) ([]track.RawPoint, bool) {
	entry, found := c.cache.GetIfPresent(k)
	if !found {
		c.logger.Debug("cache miss", "key", k.String(), "reason", "not_found")
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		c.logger.Debug("cache miss", "key", k.String(), "reason", "expired", "expired_at", entry.ExpiresAt)
		c.cache.Invalidate(k)
		return nil, false
	}
	return entry.Points, true
}

// Set stores a copy of points under k.
func (c *Cache) Set(k Key, points []track.RawPoint) {
	entry := Entry{
		Points:    append([]track.RawPoint(nil), points...),
		ExpiresAt: time.Now().Add(c.ttl),
	}
	c.cache.Set(k, entry)
	c.logger.Debug("cache set", "key", k.String(), "expires_at", entry.ExpiresAt, "points", len(points))
}

// Len returns the approximate number of cached days.
func (c *Cache) Len() int { return c.cache.EstimatedSize() }

func (c *Cache) path() string { return filepath.Join(c.dir, fileName) }

func (c *Cache) loadFromDisk() error {
	file, err := os.Open(c.path())
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Info("no existing cache file found", "path", c.path())
			return nil
		}
		return fmt.Errorf("opening cache file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			c.logger.Debug("failed to close cache file", "error", closeErr)
		}
	}()

	var entries map[Key]Entry
	if err := gob.NewDecoder(file).Decode(&entries); err != nil {
		return fmt.Errorf("decoding cache file: %w", err)
	}

	now := time.Now()
	valid := 0
	for k, entry := range entries {
		if now.Before(entry.ExpiresAt) {
			c.cache.Set(k, entry)
			valid++
		}
	}
	c.logger.Info("loaded cache from disk",
		"path", c.path(),
		"total_entries", len(entries),
		"valid_entries", valid,
		"expired_entries", len(entries)-valid)
	return nil
}

func (c *Cache) saveToDisk() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tempPath := c.path() + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	defer func() {
		if removeErr := os.Remove(tempPath); removeErr != nil && !os.IsNotExist(removeErr) {
			c.logger.Debug("failed to remove temp file", "error", removeErr)
		}
	}()

	entries := make(map[Key]Entry)
	now := time.Now()
	for k, entry := range c.cache.All() {
		if now.Before(entry.ExpiresAt) {
			entries[k] = entry
		}
	}

	if err := gob.NewEncoder(file).Encode(entries); err != nil {
		_ = file.Close()
		return fmt.Errorf("encoding cache to file: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("syncing cache file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tempPath, c.path()); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}

	c.logger.Info("cache saved to disk", "entries", len(entries), "path", c.path())
	return nil
}

func (c *Cache) startPeriodicSave(ctx context.Context, interval time.Duration) {
	saveCtx, cancel := context.WithCancel(ctx)
	c.saveCancel = cancel

	c.saveWg.Add(1)
	go func() {
		defer c.saveWg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-saveCtx.Done():
				return
			case <-ticker.C:
				if err := c.saveToDisk(); err != nil {
					c.logger.Error("periodic cache save failed", "error", err)
				}
			}
		}
	}()
}

// Close stops periodic saving and writes the cache to disk one last time.
// It is a no-op for memory-only caches.
func (c *Cache) Close() error {
	if c.dir == "" {
		return nil
	}
	if c.saveCancel != nil {
		c.saveCancel()
	}
	c.saveWg.Wait()

	if err := c.saveToDisk(); err != nil {
		c.logger.Error("final cache save failed", "error", err)
		return err
	}
	c.logger.Info("cache closed and saved to disk")
	return nil
}
