// Package config holds the harvester's single Config struct — every item
// spec.md §6 lists as an input — plus load/save and startup validation.
//
// Grounded on internal/config/user_config.go's UserConfig shape (banner-
// commented, grouped struct with pointer sub-configs for optional blocks),
// adapted from JSON tags to YAML tags per SPEC_FULL.md's ambient-stack
// decision to use gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the single source of truth for a harvester run.
type Config struct {
	// =========================================================================
	// CATEGORIES
	// =========================================================================

	// Categories lists the (intent, segment) pairs to harvest, e.g.
	// sale/residential, rent/commercial.
	Categories []CategorySpec `yaml:"categories"`

	Site string `yaml:"site"` // "propertyguru" (default) or "iproperty"

	// =========================================================================
	// WORKER POOL
	// =========================================================================

	ADListWorkers int `yaml:"adlist_workers"`
	ADViewWorkers int `yaml:"adview_workers"`

	// LaunchStaggerSeconds is the per-worker startup delay multiplier:
	// worker i launches at (i+1)*LaunchStaggerSeconds.
	LaunchStaggerSeconds int `yaml:"launch_stagger_seconds"`

	// Inter-request sleep bounds the random per-worker delay between
	// requests, in seconds.
	InterRequestSleepMinSeconds float64 `yaml:"inter_request_sleep_min_seconds"`
	InterRequestSleepMaxSeconds float64 `yaml:"inter_request_sleep_max_seconds"`

	// =========================================================================
	// BROWSER
	// =========================================================================

	Browser *BrowserConfig `yaml:"browser,omitempty"`

	// =========================================================================
	// PROXIES
	// =========================================================================

	Proxies []ProxySpec `yaml:"proxies"`

	// ProxyAuthMode selects how proxy credentials reach the browser:
	// "extension" (inject an unpacked Chrome extension) or "whitelist"
	// (rely on IP whitelisting, no credentials supplied).
	ProxyAuthMode string `yaml:"proxy_auth_mode"`

	// ProxyExtensionDir is the unpacked Chrome extension directory used
	// when ProxyAuthMode is "extension".
	ProxyExtensionDir string `yaml:"proxy_extension_dir,omitempty"`

	// =========================================================================
	// RETRY POLICY
	// =========================================================================

	Retry *RetryConfig `yaml:"retry,omitempty"`

	// =========================================================================
	// OUTPUT
	// =========================================================================

	// OutputDir is the root under which adlist_<ts>/, adview_<ts>/ and
	// logs_<ts>/ are created.
	OutputDir string `yaml:"output_dir"`

	// =========================================================================
	// NOTIFICATIONS
	// =========================================================================

	Notify *NotifyConfig `yaml:"notify,omitempty"`

	// =========================================================================
	// LOGGING
	// =========================================================================

	Logging *LoggingConfig `yaml:"logging,omitempty"`
}

// CategorySpec is one (intent, segment) harvest target plus its starting
// search-page URL template.
type CategorySpec struct {
	Intent        string `yaml:"intent"`  // "sale" or "rent"
	Segment       string `yaml:"segment"` // "residential" or "commercial"
	SearchURLBase string `yaml:"search_url_base"`
	MaxPages      int    `yaml:"max_pages"`
}

// ProxySpec is one configured upstream proxy entry.
type ProxySpec struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// BrowserConfig covers the Fetcher's launch and wait behavior.
type BrowserConfig struct {
	BinaryPath             string `yaml:"binary_path,omitempty"`
	Headless               bool   `yaml:"headless"`
	PageLoadTimeoutSeconds int    `yaml:"page_load_timeout_seconds"`
	ElementWaitSeconds     int    `yaml:"element_wait_seconds"`
	PayloadSelector        string `yaml:"payload_selector"`
	UserAgent              string `yaml:"user_agent,omitempty"`
}

// RetryConfig is the tiered retry/backoff policy spec.md §4.2 defines.
type RetryConfig struct {
	Attempt1DelayMinSeconds int `yaml:"attempt1_delay_min_seconds"`
	Attempt1DelayMaxSeconds int `yaml:"attempt1_delay_max_seconds"`
	Attempt2DelayMinSeconds int `yaml:"attempt2_delay_min_seconds"`
	Attempt2DelayMaxSeconds int `yaml:"attempt2_delay_max_seconds"`
	MaxPrimaryAttempts      int `yaml:"max_primary_attempts"`
}

// NotifyConfig configures the best-effort external notification sink.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url,omitempty"`
	Enabled    bool   `yaml:"enabled"`
}

// LoggingConfig controls category file logging verbosity.
type LoggingConfig struct {
	Debug      bool     `yaml:"debug"`
	Categories []string `yaml:"categories,omitempty"`
}

// DefaultConfig returns the baseline configuration, matching the tiers and
// timeouts spec.md names throughout §4.
func DefaultConfig() *Config {
	return &Config{
		Site:                        "propertyguru",
		ADListWorkers:               4,
		ADViewWorkers:               8,
		LaunchStaggerSeconds:        2,
		InterRequestSleepMinSeconds: 1.6,
		InterRequestSleepMaxSeconds: 3.2,
		Browser: &BrowserConfig{
			Headless:               true,
			PageLoadTimeoutSeconds: 45,
			ElementWaitSeconds:     25,
			PayloadSelector:        "script#__NEXT_DATA__",
		},
		ProxyAuthMode: "whitelist",
		Retry: &RetryConfig{
			Attempt1DelayMinSeconds: 60,
			Attempt1DelayMaxSeconds: 180,
			Attempt2DelayMinSeconds: 600,
			Attempt2DelayMaxSeconds: 780,
			MaxPrimaryAttempts:      3,
		},
		OutputDir: "./output",
		Notify:    &NotifyConfig{Enabled: false},
		Logging:   &LoggingConfig{Debug: false},
	}
}

// Load reads and parses a YAML config file, filling any unset fields from
// DefaultConfig first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config back out as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate performs the fatal startup checks spec.md §7 requires: a
// non-empty proxy list and a writable output root.
func (c *Config) Validate() error {
	if len(c.Proxies) == 0 {
		return fmt.Errorf("config: proxies list is empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("config: output_dir is required")
	}
	if err := os.MkdirAll(c.OutputDir, 0o755); err != nil {
		return fmt.Errorf("config: output_dir %q is not writable: %w", c.OutputDir, err)
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("config: categories list is empty")
	}
	return nil
}
