package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the jobtally pipeline.
type Config struct {
	DBPath    string
	UserAgent string
	Sources   []SourceConfig
	Fetch     FetchConfig
	Schedule  ScheduleConfig
}

// SourceConfig describes a single job site to ingest.
type SourceConfig struct {
	Name    string `yaml:"name"`     // "remoteok" or "weworkremotely"
	BaseURL string `yaml:"base_url"` // override for testing/mirrors, empty = site default
	Enabled bool   `yaml:"enabled"`
}

// FetchConfig controls the fetch executor shared policy.
type FetchConfig struct {
	MinInterval     time.Duration            // minimum gap between requests to the same source
	MaxRetries      int                      // additional attempts after the first failure
	BaseDelay       time.Duration            // delay before the first retry
	Timeout         time.Duration            // hard timeout per attempt
	SourceOverrides map[string]time.Duration // per-source min-interval overrides
}

// MinIntervalFor returns the configured interval for the given source,
// falling back to MinInterval.
func (f FetchConfig) MinIntervalFor(source string) time.Duration {
	if d, ok := f.SourceOverrides[source]; ok {
		return d
	}
	return f.MinInterval
}

// ScheduleConfig controls the serve daemon's cadence.
type ScheduleConfig struct {
	Cron string `yaml:"cron"` // standard 5-field cron spec
}

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	DBPath    string         `yaml:"db_path"`
	UserAgent string         `yaml:"user_agent"`
	Sources   []SourceConfig `yaml:"sources"`
	Fetch     rawFetchConfig `yaml:"fetch"`
	Schedule  ScheduleConfig `yaml:"schedule"`
}

type rawFetchConfig struct {
	MinInterval     string            `yaml:"min_interval"`
	MaxRetries      *int              `yaml:"max_retries"`
	BaseDelay       string            `yaml:"base_delay"`
	Timeout         string            `yaml:"timeout"`
	SourceOverrides map[string]string `yaml:"source_overrides"`
}

// knownSources is the set of source names adapters exist for.
var knownSources = map[string]bool{
	"remoteok":       true,
	"weworkremotely": true,
}

// Load reads and parses the YAML config file at path, validates it, and
// returns Config. A .env file next to the process, if present, is loaded
// first so ${VAR} references in the YAML can resolve.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	minInterval := 2 * time.Second // default
	if raw.Fetch.MinInterval != "" {
		minInterval, err = time.ParseDuration(raw.Fetch.MinInterval)
		if err != nil {
			return nil, fmt.Errorf("parse fetch.min_interval %q: %w", raw.Fetch.MinInterval, err)
		}
	}

	baseDelay := 5 * time.Second // default
	if raw.Fetch.BaseDelay != "" {
		baseDelay, err = time.ParseDuration(raw.Fetch.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("parse fetch.base_delay %q: %w", raw.Fetch.BaseDelay, err)
		}
	}

	timeout := 30 * time.Second // default
	if raw.Fetch.Timeout != "" {
		timeout, err = time.ParseDuration(raw.Fetch.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse fetch.timeout %q: %w", raw.Fetch.Timeout, err)
		}
	}

	maxRetries := 2 // default
	if raw.Fetch.MaxRetries != nil {
		maxRetries = *raw.Fetch.MaxRetries
	}

	overrides := make(map[string]time.Duration)
	for source, rawDur := range raw.Fetch.SourceOverrides {
		d, err := time.ParseDuration(rawDur)
		if err != nil {
			return nil, fmt.Errorf("parse fetch.source_overrides[%q]: %w", source, err)
		}
		overrides[source] = d
	}

	dbPath := raw.DBPath
	if dbPath == "" {
		dbPath = "jobtally.db"
	}

	userAgent := raw.UserAgent
	if userAgent == "" {
		userAgent = "jobtally/1.0"
	}

	cronSpec := raw.Schedule.Cron
	if cronSpec == "" {
		cronSpec = "0 */6 * * *" // every six hours
	}

	cfg := &Config{
		DBPath:    dbPath,
		UserAgent: userAgent,
		Sources:   raw.Sources,
		Fetch: FetchConfig{
			MinInterval:     minInterval,
			MaxRetries:      maxRetries,
			BaseDelay:       baseDelay,
			Timeout:         timeout,
			SourceOverrides: overrides,
		},
		Schedule: ScheduleConfig{Cron: cronSpec},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	enabled := 0
	for _, s := range cfg.Sources {
		if !knownSources[s.Name] {
			return fmt.Errorf("unknown source %q (known: remoteok, weworkremotely)", s.Name)
		}
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}

	if cfg.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative, got %d", cfg.Fetch.MaxRetries)
	}
	if cfg.Fetch.MinInterval <= 0 {
		return fmt.Errorf("fetch.min_interval must be positive, got %v", cfg.Fetch.MinInterval)
	}
	if cfg.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %v", cfg.Fetch.Timeout)
	}

	return nil
}
