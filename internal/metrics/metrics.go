// Package metrics provides Prometheus metrics for the crawl pipeline.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Page kinds for render metrics.
const (
	PageListing = "listing"
	PageItem    = "item"
)

// Collector bundles Prometheus collectors on a dedicated registry and keeps
// running totals for the end-of-run summary. A nil *Collector is a no-op.
type Collector struct {
	Registry *prometheus.Registry

	categories     *prometheus.CounterVec
	items          *prometheus.CounterVec
	renders        *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	records        prometheus.Counter
	errors         *prometheus.CounterVec
	activeSessions prometheus.Gauge

	rendersTotal  atomic.Int64
	itemsOK       atomic.Int64
	itemsFailed   atomic.Int64
	itemsSkipped  atomic.Int64
	recordsTotal  atomic.Int64
	renderNanos   atomic.Int64
	errorMu       sync.Mutex
	errorCounts   map[string]int64
	categoryMu    sync.Mutex
	categoryCount map[string]int64

	startTime time.Time
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		Registry: registry,
		categories: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragcrawl_categories_total",
				Help: "Categories processed, by terminal state.",
			},
			[]string{"state"},
		),
		items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragcrawl_items_total",
				Help: "Item pages processed, by outcome.",
			},
			[]string{"outcome"},
		),
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragcrawl_renders_total",
				Help: "Pages rendered in the browser, by page kind.",
			},
			[]string{"kind"},
		),
		renderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fragcrawl_render_duration_seconds",
				Help:    "Time to load, settle and read a page.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 15, 30, 60, 90},
			},
			[]string{"kind"},
		),
		records: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fragcrawl_records_written_total",
				Help: "Records written to output files.",
			},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragcrawl_errors_total",
				Help: "Errors by type.",
			},
			[]string{"error_type"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fragcrawl_active_sessions",
				Help: "Browser sessions currently open.",
			},
		),
		errorCounts:   make(map[string]int64),
		categoryCount: make(map[string]int64),
		startTime:     time.Now(),
	}

	registry.MustRegister(c.categories, c.items, c.renders, c.renderDuration, c.records, c.errors, c.activeSessions)
	return c
}

// ObserveRender records one page render and its duration.
func (c *Collector) ObserveRender(kind string, d time.Duration) {
	if c == nil {
		return
	}
	c.renders.WithLabelValues(kind).Inc()
	c.renderDuration.WithLabelValues(kind).Observe(d.Seconds())
	c.rendersTotal.Add(1)
	c.renderNanos.Add(int64(d))
}

// RecordItem records an item outcome: "ok", "failed" or "skipped".
func (c *Collector) RecordItem(outcome string) {
	if c == nil {
		return
	}
	c.items.WithLabelValues(outcome).Inc()
	switch outcome {
	case "ok":
		c.itemsOK.Add(1)
	case "failed":
		c.itemsFailed.Add(1)
	case "skipped":
		c.itemsSkipped.Add(1)
	}
}

// RecordCategory records a category's terminal state.
func (c *Collector) RecordCategory(state string) {
	if c == nil {
		return
	}
	c.categories.WithLabelValues(state).Inc()
	c.categoryMu.Lock()
	c.categoryCount[state]++
	c.categoryMu.Unlock()
}

// RecordWritten adds n written records.
func (c *Collector) RecordWritten(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.records.Add(float64(n))
	c.recordsTotal.Add(int64(n))
}

// RecordError increments the error counter for a type label.
func (c *Collector) RecordError(errorType string) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(errorType).Inc()
	c.errorMu.Lock()
	c.errorCounts[errorType]++
	c.errorMu.Unlock()
}

// SessionOpened increments the active session gauge.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.activeSessions.Dec()
}

// Snapshot returns a point-in-time view of the running totals.
func (c *Collector) Snapshot() *Snapshot {
	if c == nil {
		return &Snapshot{ErrorCounts: map[string]int64{}, Categories: map[string]int64{}}
	}

	s := &Snapshot{
		Timestamp:    time.Now(),
		Uptime:       time.Since(c.startTime),
		Renders:      c.rendersTotal.Load(),
		ItemsOK:      c.itemsOK.Load(),
		ItemsFailed:  c.itemsFailed.Load(),
		ItemsSkipped: c.itemsSkipped.Load(),
		Records:      c.recordsTotal.Load(),
		ErrorCounts:  make(map[string]int64),
		Categories:   make(map[string]int64),
	}
	if s.Renders > 0 {
		s.AverageRender = time.Duration(c.renderNanos.Load() / s.Renders)
	}

	c.errorMu.Lock()
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v
	}
	c.errorMu.Unlock()

	c.categoryMu.Lock()
	for k, v := range c.categoryCount {
		s.Categories[k] = v
	}
	c.categoryMu.Unlock()

	return s
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp     time.Time        `json:"timestamp"`
	Uptime        time.Duration    `json:"uptime"`
	Renders       int64            `json:"renders"`
	AverageRender time.Duration    `json:"average_render"`
	ItemsOK       int64            `json:"items_ok"`
	ItemsFailed   int64            `json:"items_failed"`
	ItemsSkipped  int64            `json:"items_skipped"`
	Records       int64            `json:"records"`
	ErrorCounts   map[string]int64 `json:"error_counts"`
	Categories    map[string]int64 `json:"categories"`
}

// ErrorRate returns failed items over attempted items.
func (s *Snapshot) ErrorRate() float64 {
	attempted := s.ItemsOK + s.ItemsFailed
	if attempted == 0 {
		return 0
	}
	return float64(s.ItemsFailed) / float64(attempted)
}

// Summary returns a flat map for the statistics log line.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":            s.Uptime.Round(time.Millisecond).String(),
		"renders":           s.Renders,
		"avg_render_ms":     s.AverageRender.Milliseconds(),
		"items_ok":          s.ItemsOK,
		"items_failed":      s.ItemsFailed,
		"items_skipped":     s.ItemsSkipped,
		"records_written":   s.Records,
		"item_failure_rate": s.ErrorRate(),
	}
}
