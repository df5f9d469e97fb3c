package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// App holds the settings of the tripsense command.
type App struct {
	Owntracks *OwntracksConfig `yaml:"owntracks,omitempty"`
	Cache     CacheConfig      `yaml:"cache"`
	Timezone  string           `yaml:"timezone,omitempty"`
	Store     string           `yaml:"store,omitempty"`
	Locations string           `yaml:"locations,omitempty"`
	Trips     string           `yaml:"trips,omitempty"`
	Analyzers string           `yaml:"analyzers,omitempty"`
	Workers   int              `yaml:"workers,omitempty"`
}

// OwntracksConfig holds Owntracks Recorder connection details.
type OwntracksConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Device   string `yaml:"device"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// CacheConfig controls the point cache.
type CacheConfig struct {
	Dir      string        `yaml:"dir,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
	Disabled bool          `yaml:"disabled,omitempty"`
}

// DefaultAppPath returns the default config file path following the XDG base directory convention.
func DefaultAppPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "tripsense", "config.yaml")
}

// LoadApp loads the application config. A missing file yields an empty config, not an error.
// Relative paths inside the file are resolved against the file's directory.
func LoadApp(path string) (*App, error) {
	if path == "" {
		path = DefaultAppPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &App{}, nil
		}
		return nil, &Error{Path: path, Err: fmt.Errorf("reading config file: %w", err)}
	}

	var cfg App
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("parsing config file: %w", err)}
	}
	if cfg.Workers < 0 {
		return nil, Errorf(path, "workers", "must not be negative")
	}
	if cfg.Cache.TTL < 0 {
		return nil, Errorf(path, "cache.ttl", "must not be negative")
	}
	if cfg.Owntracks != nil && cfg.Owntracks.URL == "" {
		return nil, Errorf(path, "owntracks.url", "is required when the owntracks section is present")
	}

	dir := filepath.Dir(path)
	for _, p := range []*string{&cfg.Store, &cfg.Locations, &cfg.Trips, &cfg.Analyzers, &cfg.Cache.Dir} {
		resolved, err := resolvePath(*p, dir)
		if err != nil {
			return nil, &Error{Path: path, Err: err}
		}
		*p = resolved
	}
	return &cfg, nil
}

// resolvePath expands a leading "~/" to the home directory and joins other
// relative paths to dir.
func resolvePath(p, dir string) (string, error) {
	switch {
	case p == "" || filepath.IsAbs(p):
		return p, nil
	case p == "~" || strings.HasPrefix(p, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding %s: %w", p, err)
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
	default:
		return filepath.Join(dir, p), nil
	}
}
