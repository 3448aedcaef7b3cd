package crawler

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/fragcrawl/internal/browser"
	"github.com/PentesterFlow/fragcrawl/internal/extract"
	"github.com/PentesterFlow/fragcrawl/internal/logger"
	"github.com/PentesterFlow/fragcrawl/internal/model"
	"github.com/PentesterFlow/fragcrawl/internal/output"
	"github.com/PentesterFlow/fragcrawl/internal/ratelimit"
)

// Environment variables that override file configuration.
const (
	EnvOutputDir  = "FRAGCRAWL_OUTPUT_DIR"
	EnvBrowserBin = "FRAGCRAWL_BROWSER_BIN"
	EnvLogLevel   = "FRAGCRAWL_LOG_LEVEL"
	EnvStateFile  = "FRAGCRAWL_STATE_FILE"
)

// Config holds all crawler configuration.
type Config struct {
	// Categories to crawl, processed in this order
	Targets []model.CrawlTarget `json:"targets" yaml:"targets"`

	// CSS selectors for listing and detail pages
	Selectors extract.Selectors `json:"selectors" yaml:"selectors"`

	// When a rendered listing or item page is considered ready
	ListingWait browser.WaitPolicy `json:"listing_wait" yaml:"listing_wait"`
	ItemWait    browser.WaitPolicy `json:"item_wait" yaml:"item_wait"`

	// Per-session throttle between item pages
	RateLimit ratelimit.Config `json:"rate_limit" yaml:"rate_limit"`

	// Browser session configuration
	Browser browser.Config `json:"browser" yaml:"browser"`

	// Extra attempts for timed-out or network-failed page loads
	NavigationRetries int `json:"navigation_retries" yaml:"navigation_retries"`

	// Number of workers, each with its own browser session
	Parallelism int `json:"parallelism" yaml:"parallelism"`

	// Output files
	Output output.Config `json:"output" yaml:"output"`

	// Run state persistence
	State StateConfig `json:"state" yaml:"state"`

	// Skip item URLs already visited earlier in the run, across categories
	DedupURLs bool `json:"dedup_urls" yaml:"dedup_urls"`

	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"`
	LogJSON  bool   `json:"log_json" yaml:"log_json"`
}

// StateConfig defines run state persistence.
type StateConfig struct {
	FilePath string `json:"file_path" yaml:"file_path"`
	Resume   bool   `json:"resume" yaml:"resume"`
}

// DefaultTargets returns the two award categories crawled by default.
func DefaultTargets() []model.CrawlTarget {
	return []model.CrawlTarget{
		{Label: "WSZECH_CZASOW", URL: "https://www.fragrantica.com/awards/2024/best-perfumes-of-all-time"},
		{Label: "NAJLEPSZE_2024", URL: "https://www.fragrantica.com/awards/2024/best-perfume-2024"},
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Targets:     DefaultTargets(),
		Selectors:   extract.DefaultSelectors(),
		ListingWait: browser.FixedWait(10 * time.Second),
		ItemWait:    browser.FixedWait(5 * time.Second),
		RateLimit:   ratelimit.DefaultConfig(),
		Browser:     browser.DefaultConfig(),
		Parallelism: 1,
		Output:      output.DefaultConfig(),
		LogLevel:    "info",
	}
}

// LoadFromFile loads configuration from a file (YAML or JSON) over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration as YAML, or JSON for a .json path.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides settings from environment variables. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvOutputDir); ok && v != "" {
		c.Output.Dir = v
	}
	if v, ok := lookup(EnvBrowserBin); ok && v != "" {
		c.Browser.BrowserBin = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvStateFile); ok && v != "" {
		c.State.FilePath = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	seen := make(map[string]bool, len(c.Targets))
	files := make(map[string]string, len(c.Targets))
	for i, t := range c.Targets {
		if strings.TrimSpace(t.Label) == "" {
			return fmt.Errorf("target %d: label is required", i)
		}
		if seen[t.Label] {
			return fmt.Errorf("target %d: duplicate label %q", i, t.Label)
		}
		seen[t.Label] = true

		name := output.SanitizeLabel(t.Label)
		if other, ok := files[name]; ok {
			return fmt.Errorf("target %d: labels %q and %q map to the same output file", i, other, t.Label)
		}
		files[name] = t.Label

		u, err := url.Parse(t.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("target %q: url must be an absolute http(s) URL, got %q", t.Label, t.URL)
		}
	}

	if c.RateLimit.DelayMin < 0 || c.RateLimit.DelayMax < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if c.RateLimit.DelayMin > c.RateLimit.DelayMax {
		return fmt.Errorf("delay_min (%s) must not exceed delay_max (%s)", c.RateLimit.DelayMin, c.RateLimit.DelayMax)
	}

	if c.Browser.LoadTimeout <= 0 {
		return fmt.Errorf("browser load timeout must be positive")
	}
	if c.Browser.ReadTimeout <= 0 {
		return fmt.Errorf("browser read timeout must be positive")
	}
	for name, w := range map[string]browser.WaitPolicy{"listing_wait": c.ListingWait, "item_wait": c.ItemWait} {
		if w.Settle < 0 {
			return fmt.Errorf("%s: settle must not be negative", name)
		}
		if w.UsesReadySelector() && w.ReadyTimeout <= 0 {
			return fmt.Errorf("%s: ready_timeout must be positive with a ready_selector", name)
		}
	}

	if c.NavigationRetries < 0 {
		return fmt.Errorf("navigation retries must not be negative")
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1")
	}
	if !output.ValidFormat(c.Output.Format) {
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}
	if c.State.Resume && c.State.FilePath == "" {
		return fmt.Errorf("resume requires a state file")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Targets = append([]model.CrawlTarget(nil), c.Targets...)
	return &clone
}

// ParseTarget parses a "label=url" command-line target.
func ParseTarget(s string) (model.CrawlTarget, error) {
	label, rawURL, ok := strings.Cut(s, "=")
	label = strings.TrimSpace(label)
	rawURL = strings.TrimSpace(rawURL)
	if !ok || label == "" || rawURL == "" {
		return model.CrawlTarget{}, fmt.Errorf("target %q must look like label=url", s)
	}
	return model.CrawlTarget{Label: label, URL: rawURL}, nil
}
