package crawler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PentesterFlow/fragcrawl/internal/browser"
	"github.com/PentesterFlow/fragcrawl/internal/model"
)

// =============================================================================
// DefaultConfig Tests
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Targets) != 2 {
		t.Fatalf("Targets = %d, want 2", len(cfg.Targets))
	}
	if cfg.Targets[0].Label != "WSZECH_CZASOW" || cfg.Targets[1].Label != "NAJLEPSZE_2024" {
		t.Errorf("Targets = %+v", cfg.Targets)
	}
	if cfg.ListingWait.Settle != 10*time.Second || cfg.ItemWait.Settle != 5*time.Second {
		t.Errorf("settle = %v/%v, want 10s/5s", cfg.ListingWait.Settle, cfg.ItemWait.Settle)
	}
	if cfg.RateLimit.DelayMin != 2*time.Second || cfg.RateLimit.DelayMax != 4*time.Second {
		t.Errorf("delay = %v..%v, want 2s..4s", cfg.RateLimit.DelayMin, cfg.RateLimit.DelayMax)
	}
	if cfg.Parallelism != 1 {
		t.Errorf("Parallelism = %d, want 1", cfg.Parallelism)
	}
	if cfg.NavigationRetries != 0 {
		t.Errorf("NavigationRetries = %d, want 0", cfg.NavigationRetries)
	}
	if cfg.Output.Format != "csv" || cfg.Output.Prefix != "perfumy_" {
		t.Errorf("Output = %+v", cfg.Output)
	}
	if cfg.DedupURLs {
		t.Error("DedupURLs should default to false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no targets", func(c *Config) { c.Targets = nil }, "at least one target"},
		{"blank label", func(c *Config) { c.Targets[0].Label = " " }, "label is required"},
		{"duplicate label", func(c *Config) { c.Targets[1].Label = c.Targets[0].Label }, "duplicate label"},
		{"labels share a file name", func(c *Config) {
			c.Targets[0].Label = "BEST 2024"
			c.Targets[1].Label = "BEST/2024"
		}, "same output file"},
		{"relative url", func(c *Config) { c.Targets[0].URL = "/awards" }, "absolute http(s)"},
		{"ftp url", func(c *Config) { c.Targets[0].URL = "ftp://example.com/x" }, "absolute http(s)"},
		{"min above max", func(c *Config) { c.RateLimit.DelayMin = 5 * time.Second }, "must not exceed"},
		{"negative delay", func(c *Config) { c.RateLimit.DelayMin = -time.Second }, "negative"},
		{"zero load timeout", func(c *Config) { c.Browser.LoadTimeout = 0 }, "load timeout"},
		{"zero read timeout", func(c *Config) { c.Browser.ReadTimeout = 0 }, "read timeout"},
		{"ready without timeout", func(c *Config) {
			c.ItemWait = browser.WaitPolicy{ReadySelector: "main h1"}
		}, "ready_timeout"},
		{"negative retries", func(c *Config) { c.NavigationRetries = -1 }, "retries"},
		{"zero parallelism", func(c *Config) { c.Parallelism = 0 }, "parallelism"},
		{"bad format", func(c *Config) { c.Output.Format = "xml" }, "output format"},
		{"resume without state", func(c *Config) { c.State.Resume = true }, "state file"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// File and Environment Tests
// =============================================================================

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fragcrawl.yaml")
	data := `
targets:
  - label: MEN
    url: https://www.example.com/awards/men
listing_wait:
  settle: 3s
item_wait:
  ready_selector: main h1
  ready_timeout: 8s
rate_limit:
  delay_min: 1s
  delay_max: 2s
parallelism: 2
output:
  dir: out
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if len(cfg.Targets) != 1 || cfg.Targets[0].Label != "MEN" {
		t.Errorf("Targets = %+v", cfg.Targets)
	}
	if cfg.ListingWait.Settle != 3*time.Second {
		t.Errorf("ListingWait.Settle = %v, want 3s", cfg.ListingWait.Settle)
	}
	if !cfg.ItemWait.UsesReadySelector() || cfg.ItemWait.ReadyTimeout != 8*time.Second {
		t.Errorf("ItemWait = %+v", cfg.ItemWait)
	}
	if cfg.RateLimit.DelayMax != 2*time.Second || cfg.Parallelism != 2 {
		t.Errorf("RateLimit = %+v Parallelism = %d", cfg.RateLimit, cfg.Parallelism)
	}
	if cfg.Output.Dir != "out" || cfg.Output.Prefix != "perfumy_" {
		t.Errorf("Output = %+v, want dir override and default prefix", cfg.Output)
	}
	if cfg.Browser.LoadTimeout != 60*time.Second {
		t.Errorf("Browser.LoadTimeout = %v, want default 60s", cfg.Browser.LoadTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFromFile() should fail for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("targets: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("LoadFromFile() should fail for malformed content")
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Targets = []model.CrawlTarget{{Label: "X", URL: "https://www.example.com/x"}}
	cfg.ListingWait.Settle = 7 * time.Second

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if len(loaded.Targets) != 1 || loaded.Targets[0] != cfg.Targets[0] {
		t.Errorf("Targets = %+v", loaded.Targets)
	}
	if loaded.ListingWait.Settle != 7*time.Second {
		t.Errorf("ListingWait.Settle = %v, want 7s", loaded.ListingWait.Settle)
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvOutputDir:  "/data/out",
		EnvBrowserBin: "/usr/bin/chromium",
		EnvLogLevel:   "debug",
		EnvStateFile:  "",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := DefaultConfig()
	cfg.State.FilePath = "keep.db"
	cfg.ApplyEnv(lookup)

	if cfg.Output.Dir != "/data/out" {
		t.Errorf("Output.Dir = %s", cfg.Output.Dir)
	}
	if cfg.Browser.BrowserBin != "/usr/bin/chromium" {
		t.Errorf("BrowserBin = %s", cfg.Browser.BrowserBin)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s", cfg.LogLevel)
	}
	if cfg.State.FilePath != "keep.db" {
		t.Errorf("empty env value should not override, got %s", cfg.State.FilePath)
	}
}

func TestConfig_Clone(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Targets[0].Label = "CHANGED"
	clone.Parallelism = 9

	if cfg.Targets[0].Label == "CHANGED" {
		t.Error("Clone() shares the targets slice")
	}
	if cfg.Parallelism == 9 {
		t.Error("Clone() shares scalar fields")
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in      string
		want    model.CrawlTarget
		wantErr bool
	}{
		{"MEN=https://example.com/men", model.CrawlTarget{Label: "MEN", URL: "https://example.com/men"}, false},
		{" A = https://example.com/a?x=1 ", model.CrawlTarget{Label: "A", URL: "https://example.com/a?x=1"}, false},
		{"https://example.com", model.CrawlTarget{}, true},
		{"=https://example.com", model.CrawlTarget{}, true},
		{"A=", model.CrawlTarget{}, true},
	}

	for _, tt := range tests {
		got, err := ParseTarget(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTarget(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTarget(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestLoadFromFile_Example(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join("..", "..", "fragcrawl.example.yaml"))
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("example config should validate, got %v", err)
	}

	def := DefaultConfig()
	if len(cfg.Targets) != len(def.Targets) || cfg.Targets[0] != def.Targets[0] {
		t.Errorf("Targets = %+v, want defaults", cfg.Targets)
	}
	if cfg.Selectors != def.Selectors {
		t.Errorf("Selectors = %+v, want %+v", cfg.Selectors, def.Selectors)
	}
	if cfg.ItemWait != def.ItemWait || cfg.RateLimit != def.RateLimit {
		t.Errorf("waits or rate limit differ from defaults: %+v %+v", cfg.ItemWait, cfg.RateLimit)
	}
}
