package crawler

import (
	"fmt"
	"time"

	"github.com/PentesterFlow/fragcrawl/internal/browser"
	"github.com/PentesterFlow/fragcrawl/internal/extract"
	"github.com/PentesterFlow/fragcrawl/internal/logger"
	"github.com/PentesterFlow/fragcrawl/internal/metrics"
	"github.com/PentesterFlow/fragcrawl/internal/model"
	"github.com/PentesterFlow/fragcrawl/internal/progress"
	"github.com/PentesterFlow/fragcrawl/internal/ratelimit"
	"github.com/PentesterFlow/fragcrawl/internal/state"
)

// Option is a functional option for configuring the Crawler.
type Option func(*Crawler) error

// WithConfig replaces the whole configuration.
func WithConfig(config *Config) Option {
	return func(c *Crawler) error {
		if config == nil {
			return fmt.Errorf("config must not be nil")
		}
		c.config = config.Clone()
		return nil
	}
}

// WithTargets replaces the configured categories.
func WithTargets(targets ...model.CrawlTarget) Option {
	return func(c *Crawler) error {
		c.config.Targets = append([]model.CrawlTarget(nil), targets...)
		return nil
	}
}

// WithTarget adds one category.
func WithTarget(label, url string) Option {
	return func(c *Crawler) error {
		c.config.Targets = append(c.config.Targets, model.CrawlTarget{Label: label, URL: url})
		return nil
	}
}

// WithSelectors sets the page selectors.
func WithSelectors(selectors extract.Selectors) Option {
	return func(c *Crawler) error {
		c.config.Selectors = selectors
		return nil
	}
}

// WithSettle sets fixed settle waits for listing and item pages.
func WithSettle(listing, item time.Duration) Option {
	return func(c *Crawler) error {
		c.config.ListingWait = browser.FixedWait(listing)
		c.config.ItemWait = browser.FixedWait(item)
		return nil
	}
}

// WithWaitPolicies sets the listing and item wait policies.
func WithWaitPolicies(listing, item browser.WaitPolicy) Option {
	return func(c *Crawler) error {
		c.config.ListingWait = listing
		c.config.ItemWait = item
		return nil
	}
}

// WithDelay sets the random pause range before each item.
func WithDelay(min, max time.Duration) Option {
	return func(c *Crawler) error {
		c.config.RateLimit.DelayMin = min
		c.config.RateLimit.DelayMax = max
		return nil
	}
}

// WithRateLimit sets the token bucket floor under the random delay.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Crawler) error {
		c.config.RateLimit.RequestsPerSecond = rps
		c.config.RateLimit.Burst = burst
		return nil
	}
}

// WithSeed makes the random delays reproducible.
func WithSeed(seed int64) Option {
	return func(c *Crawler) error {
		c.config.RateLimit.Seed = seed
		return nil
	}
}

// WithParallelism sets the number of concurrent browser sessions.
func WithParallelism(n int) Option {
	return func(c *Crawler) error {
		if n < 1 {
			n = 1
		}
		c.config.Parallelism = n
		return nil
	}
}

// WithHeadless enables/disables headless mode.
func WithHeadless(headless bool) Option {
	return func(c *Crawler) error {
		c.config.Browser.Headless = headless
		return nil
	}
}

// WithBrowserBin sets the browser executable.
func WithBrowserBin(path string) Option {
	return func(c *Crawler) error {
		c.config.Browser.BrowserBin = path
		return nil
	}
}

// WithLoadTimeout sets the page-load timeout.
func WithLoadTimeout(timeout time.Duration) Option {
	return func(c *Crawler) error {
		c.config.Browser.LoadTimeout = timeout
		return nil
	}
}

// WithNavigationRetries sets extra attempts for failed page loads.
func WithNavigationRetries(n int) Option {
	return func(c *Crawler) error {
		c.config.NavigationRetries = n
		return nil
	}
}

// WithOutputDir sets the output directory.
func WithOutputDir(dir string) Option {
	return func(c *Crawler) error {
		c.config.Output.Dir = dir
		return nil
	}
}

// WithOutputFormat sets the output format (csv or jsonl).
func WithOutputFormat(format string) Option {
	return func(c *Crawler) error {
		c.config.Output.Format = format
		return nil
	}
}

// WithFilePrefix sets the output file name prefix.
func WithFilePrefix(prefix string) Option {
	return func(c *Crawler) error {
		c.config.Output.Prefix = prefix
		return nil
	}
}

// WithStateFile enables run state persistence.
func WithStateFile(path string) Option {
	return func(c *Crawler) error {
		c.config.State.FilePath = path
		return nil
	}
}

// WithResume skips categories completed by an earlier run.
func WithResume(resume bool) Option {
	return func(c *Crawler) error {
		c.config.State.Resume = resume
		return nil
	}
}

// WithDedupURLs skips item URLs already visited during the run.
func WithDedupURLs(dedup bool) Option {
	return func(c *Crawler) error {
		c.config.DedupURLs = dedup
		return nil
	}
}

// WithLogLevel sets the log level by name.
func WithLogLevel(level string) Option {
	return func(c *Crawler) error {
		c.config.LogLevel = level
		return nil
	}
}

// WithVerbose enables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(c *Crawler) error {
		if verbose {
			c.config.LogLevel = "debug"
		}
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Crawler) error {
		c.logger = log
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Crawler) error {
		c.metrics = m
		return nil
	}
}

// WithStateManager sets the state manager. The caller keeps ownership.
func WithStateManager(m *state.Manager) Option {
	return func(c *Crawler) error {
		c.state = m
		return nil
	}
}

// WithSessionOpener replaces how browser sessions are started.
func WithSessionOpener(open SessionOpener) Option {
	return func(c *Crawler) error {
		if open == nil {
			return fmt.Errorf("session opener must not be nil")
		}
		c.openSession = open
		return nil
	}
}

// WithSleep replaces the pause used between items.
func WithSleep(sleep ratelimit.SleepFunc) Option {
	return func(c *Crawler) error {
		c.sleep = sleep
		return nil
	}
}

// WithProgress draws a progress bar while items are crawled.
func WithProgress(display *progress.Display) Option {
	return func(c *Crawler) error {
		c.progress = display
		return nil
	}
}
