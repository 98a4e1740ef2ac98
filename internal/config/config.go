// Package config loads the monitor configuration from a YAML file and
// fills in development defaults for anything the file leaves out.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/raysh454/vigil/internal/detector"
	"github.com/raysh454/vigil/internal/webclient"
)

// minCheckInterval is the shortest accepted check interval in seconds.
const minCheckInterval = 60

// URLConfig describes a single monitored URL. CheckInterval overrides
// the central check interval for this URL when positive.
type URLConfig struct {
	URL           string `yaml:"url"`
	CheckInterval int    `yaml:"check_interval,omitempty"`
	Type          string `yaml:"type"`     // policy, research, guideline
	Priority      string `yaml:"priority"` // low, medium, high, critical
}

// SchedulingConfig holds the two monitoring intervals. CheckInterval
// is how often each URL is re-checked; PollingInterval is how often
// the service looks for due URLs.
type SchedulingConfig struct {
	CheckInterval   int `yaml:"check_interval"`
	PollingInterval int `yaml:"polling_interval"`
}

// PathsConfig holds the on-disk locations the service writes to.
type PathsConfig struct {
	DataDir     string `yaml:"data_dir"`
	HistoryFile string `yaml:"history_file"`
	ChangeLogDB string `yaml:"changelog_db"`
	ReportsDir  string `yaml:"reports_dir"`
}

// ServerConfig holds the status API settings.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// ThresholdOverrides mirrors detector.Thresholds with optional fields.
// Pointers keep an explicit zero (maximum sensitivity) distinct from an
// absent key, which falls back to the detector default.
type ThresholdOverrides struct {
	ContentSize        *int `yaml:"content_size,omitempty"`
	WordCount          *int `yaml:"word_count,omitempty"`
	WordCountMajor     *int `yaml:"word_count_major,omitempty"`
	PolicyKeywordCount *int `yaml:"policy_keyword_count,omitempty"`
}

// Config is the top-level service configuration.
type Config struct {
	MonitoredURLs []URLConfig        `yaml:"monitored_urls"`
	Scheduling    SchedulingConfig   `yaml:"scheduling"`
	Thresholds    ThresholdOverrides `yaml:"thresholds"`
	Paths         PathsConfig        `yaml:"paths"`
	Server        ServerConfig       `yaml:"server"`
	WebClient     webclient.Config   `yaml:"webclient"`
	LogLevel      string             `yaml:"log_level"`
}

// DetectorThresholds resolves the configured overrides against the
// detector defaults.
func (c *Config) DetectorThresholds() detector.Thresholds {
	t := detector.DefaultThresholds()
	if c.Thresholds.ContentSize != nil {
		t.ContentSize = *c.Thresholds.ContentSize
	}
	if c.Thresholds.WordCount != nil {
		t.WordCount = *c.Thresholds.WordCount
	}
	if c.Thresholds.WordCountMajor != nil {
		t.WordCountMajor = *c.Thresholds.WordCountMajor
	}
	if c.Thresholds.PolicyKeywordCount != nil {
		t.PolicyKeywordCount = *c.Thresholds.PolicyKeywordCount
	}
	return t
}

// Default returns the development defaults used when a config file is
// absent or partial. The threshold overrides are filled in so the
// written template shows every tunable.
func Default() *Config {
	dt := detector.DefaultThresholds()
	return &Config{
		Scheduling: SchedulingConfig{
			CheckInterval:   3600,
			PollingInterval: 300,
		},
		Thresholds: ThresholdOverrides{
			ContentSize:        &dt.ContentSize,
			WordCount:          &dt.WordCount,
			WordCountMajor:     &dt.WordCountMajor,
			PolicyKeywordCount: &dt.PolicyKeywordCount,
		},
		Paths: PathsConfig{
			DataDir:     "data",
			HistoryFile: "data/url_history.json",
			ChangeLogDB: "data/changelog.db",
			ReportsDir:  "data/reports",
		},
		Server: ServerConfig{
			Addr:    ":8080",
			Enabled: true,
		},
		WebClient: webclient.Config{
			Backend:   webclient.BackendNetHTTP,
			Timeout:   10,
			IdleAfter: 2,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config from path. A missing file is created with
// defaults so a first run leaves an editable template behind.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if werr := writeDefault(path, cfg); werr != nil {
			return nil, fmt.Errorf("create default config %s: %w", path, werr)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config %s: %v", path, errs)
	}
	return cfg, nil
}

func writeDefault(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyDefaults backfills zero values left by a partial file.
// Thresholds are not touched here; their pointer overrides resolve in
// DetectorThresholds so an explicit zero stays zero.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Scheduling.CheckInterval <= 0 {
		c.Scheduling.CheckInterval = def.Scheduling.CheckInterval
	}
	if c.Scheduling.PollingInterval <= 0 {
		c.Scheduling.PollingInterval = def.Scheduling.PollingInterval
	}
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = def.Paths.DataDir
	}
	if c.Paths.HistoryFile == "" {
		c.Paths.HistoryFile = filepath.Join(c.Paths.DataDir, "url_history.json")
	}
	if c.Paths.ChangeLogDB == "" {
		c.Paths.ChangeLogDB = filepath.Join(c.Paths.DataDir, "changelog.db")
	}
	if c.Paths.ReportsDir == "" {
		c.Paths.ReportsDir = filepath.Join(c.Paths.DataDir, "reports")
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.WebClient.Backend == "" {
		c.WebClient.Backend = def.WebClient.Backend
	}
	if c.WebClient.Timeout <= 0 {
		c.WebClient.Timeout = def.WebClient.Timeout
	}
	if c.WebClient.IdleAfter <= 0 {
		c.WebClient.IdleAfter = def.WebClient.IdleAfter
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	for i := range c.MonitoredURLs {
		if c.MonitoredURLs[i].Type == "" {
			c.MonitoredURLs[i].Type = "policy"
		}
		if c.MonitoredURLs[i].Priority == "" {
			c.MonitoredURLs[i].Priority = "medium"
		}
	}
}

// Validate reports every configuration problem rather than stopping
// at the first.
func (c *Config) Validate() []error {
	var errs []error
	seen := map[string]struct{}{}
	for _, u := range c.MonitoredURLs {
		if u.URL == "" {
			errs = append(errs, fmt.Errorf("monitored URL with empty url field"))
			continue
		}
		if _, dup := seen[u.URL]; dup {
			errs = append(errs, fmt.Errorf("duplicate URL: %s", u.URL))
		}
		seen[u.URL] = struct{}{}
		if u.CheckInterval != 0 && u.CheckInterval < minCheckInterval {
			errs = append(errs, fmt.Errorf("check interval for %s too short: %ds (minimum %ds)", u.URL, u.CheckInterval, minCheckInterval))
		}
	}
	if c.Scheduling.CheckInterval < minCheckInterval {
		errs = append(errs, fmt.Errorf("check interval too short: %ds (minimum %ds)", c.Scheduling.CheckInterval, minCheckInterval))
	}
	if c.Scheduling.PollingInterval < 1 {
		errs = append(errs, fmt.Errorf("polling interval must be positive"))
	}
	for name, v := range map[string]*int{
		"content_size":         c.Thresholds.ContentSize,
		"word_count":           c.Thresholds.WordCount,
		"word_count_major":     c.Thresholds.WordCountMajor,
		"policy_keyword_count": c.Thresholds.PolicyKeywordCount,
	} {
		if v != nil && *v < 0 {
			errs = append(errs, fmt.Errorf("threshold %s must not be negative: %d", name, *v))
		}
	}
	return errs
}
