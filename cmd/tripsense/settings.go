package main

import (
	"os"
	"path/filepath"

	"github.com/codeGROOVE-dev/tripsense/pkg/config"
	"github.com/codeGROOVE-dev/tripsense/pkg/pointcache"
)

// settings is the merged configuration: flags override environment variables,
// which override the YAML config file.
type settings struct {
	timezone     string
	owntracksURL string
	user         string
	device       string
	username     string
	password     string
	store        string
	locations    string
	trips        string
	analyzers    string
	cache        config.CacheConfig
	workers      int
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func loadSettings() (*settings, error) {
	app, err := config.LoadApp(*configPath)
	if err != nil {
		return nil, err
	}
	ot := app.Owntracks
	if ot == nil {
		ot = &config.OwntracksConfig{}
	}

	s := &settings{
		timezone:     firstSet(*tz, app.Timezone),
		owntracksURL: firstSet(*owntracksURL, os.Getenv("TRIPSENSE_OWNTRACKS_URL"), ot.URL),
		user:         firstSet(*user, ot.User),
		device:       firstSet(*device, ot.Device),
		username:     firstSet(os.Getenv("OWNTRACKS_USER"), ot.Username),
		password:     firstSet(os.Getenv("OWNTRACKS_PASSWORD"), ot.Password),
		store:        firstSet(*storePath, app.Store),
		locations:    firstSet(*locationsPath, app.Locations),
		trips:        firstSet(*tripsDir, app.Trips),
		analyzers:    firstSet(*analyzersPath, app.Analyzers),
		cache:        app.Cache,
		workers:      app.Workers,
	}
	if *workers > 0 {
		s.workers = *workers
	}

	s.cache.Dir = firstSet(*cacheDir, os.Getenv("CACHE_DIR"), app.Cache.Dir)
	if *noCache {
		s.cache.Disabled = true
	}
	if s.cache.TTL == 0 {
		s.cache.TTL = pointcache.DefaultTTL
	}
	if s.cache.Dir == "" {
		if userCacheDir, err := os.UserCacheDir(); err == nil {
			s.cache.Dir = filepath.Join(userCacheDir, "tripsense")
		} else {
			s.cache.Disabled = true
		}
	}
	return s, nil
}
