package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/PentesterFlow/fragcrawl/internal/browser"
	crawlerrors "github.com/PentesterFlow/fragcrawl/internal/errors"
	"github.com/PentesterFlow/fragcrawl/internal/extract"
	"github.com/PentesterFlow/fragcrawl/internal/logger"
	"github.com/PentesterFlow/fragcrawl/internal/metrics"
	"github.com/PentesterFlow/fragcrawl/internal/model"
	"github.com/PentesterFlow/fragcrawl/internal/output"
	"github.com/PentesterFlow/fragcrawl/internal/progress"
	"github.com/PentesterFlow/fragcrawl/internal/ratelimit"
	"github.com/PentesterFlow/fragcrawl/internal/state"
)

// Renderer loads a page and returns its rendered document.
// *browser.Session is the production implementation.
type Renderer interface {
	Render(ctx context.Context, url string, wait browser.WaitPolicy) (string, error)
	Close() error
}

// SessionOpener starts the renderer owned by one worker.
type SessionOpener func(ctx context.Context, worker int) (Renderer, error)

// Crawler is the main crawl orchestrator.
type Crawler struct {
	config      *Config
	extractor   *extract.Extractor
	sink        *output.Sink
	state       *state.Manager
	ownsState   bool
	logger      *logger.Logger
	metrics     *metrics.Collector
	progress    *progress.Display
	openSession SessionOpener
	sleep       ratelimit.SleepFunc

	cleanupMu   sync.Mutex
	cleanupErrs []error

	sessionsMu sync.Mutex
	sessions   map[int]Renderer // live sessions by worker id

	throttle []ratelimit.LimiterStats // per worker, filled when the worker exits
}

// New creates a new Crawler with the given options.
func New(opts ...Option) (*Crawler, error) {
	c := &Crawler{
		config:   DefaultConfig(),
		sessions: make(map[int]Renderer),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	// Validate config
	if err := c.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.logger == nil {
		level, _ := logger.ParseLevel(c.config.LogLevel)
		c.logger = logger.New(logger.Config{
			Level:     level,
			Pretty:    !c.config.LogJSON,
			Component: "crawler",
		})
	}

	if c.metrics == nil {
		c.metrics = metrics.New()
	}

	c.extractor = extract.New(c.config.Selectors)
	c.sink = output.NewSink(c.config.Output, c.logger)

	if c.state == nil {
		var store state.Store
		if c.config.State.FilePath != "" {
			bolt, err := state.NewBoltStore(c.config.State.FilePath)
			if err != nil {
				return nil, fmt.Errorf("failed to open state file: %w", err)
			}
			c.logger.Debugf("Using state file %s", bolt.Path())
			store = bolt
		}
		c.state = state.NewManager(store, c.config.DedupURLs, 0)
		c.ownsState = true
	}

	if c.openSession == nil {
		c.openSession = c.openBrowserSession
	}

	return c, nil
}

// Config returns a copy of the crawler configuration.
func (c *Crawler) Config() *Config {
	return c.config.Clone()
}

// Metrics returns the metrics collector.
func (c *Crawler) Metrics() *metrics.Collector {
	return c.metrics
}

// Abort closes every browser session that is still open. It is meant for a forced
// exit while Run is in flight; Run's own teardown then skips those sessions.
func (c *Crawler) Abort() error {
	c.sessionsMu.Lock()
	live := c.sessions
	c.sessions = make(map[int]Renderer)
	c.sessionsMu.Unlock()

	var errs []error
	for _, r := range live {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if n := len(live); n > 0 {
		c.logger.Warnf("Aborted %d open browser sessions", n)
	}
	return errors.Join(errs...)
}

// Close releases the state store if the crawler opened it.
func (c *Crawler) Close() error {
	if c.ownsState && c.state != nil {
		return c.state.Close()
	}
	return nil
}

func (c *Crawler) openBrowserSession(ctx context.Context, worker int) (Renderer, error) {
	cfg := c.config.Browser
	cfg.Retry = crawlerrors.DefaultRetryPolicy()
	cfg.Retry.MaxRetries = c.config.NavigationRetries

	session, err := browser.Open(ctx, cfg, c.logger.WithWorker(worker))
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Run crawls every configured category and writes one file per category that
// produced records. Item and category failures are logged and recorded in the
// result; only a browser session that cannot start aborts the run.
// A cancelled ctx stops at the next item boundary and flushes what was collected.
func (c *Crawler) Run(ctx context.Context) (*RunResult, error) {
	run := &RunResult{
		RunID:      uuid.New().String(),
		StartedAt:  time.Now(),
		Categories: make([]CategoryResult, len(c.config.Targets)),
	}
	log := c.logger.WithField("run_id", run.RunID)
	log.WithField("dedup_urls", c.state.DedupEnabled()).
		Infof("Starting crawl of %d categories", len(c.config.Targets))
	c.state.ResetRun()

	pending := make([]int, 0, len(c.config.Targets))
	for i, target := range c.config.Targets {
		run.Categories[i] = CategoryResult{Target: target, State: StateIdle}

		if c.config.State.Resume {
			done, err := c.state.IsCompleted(target.Label)
			if err != nil {
				log.WarnEvent(err, "state_lookup")
			}
			if done {
				log.WithCategory(target.Label).Info("Already completed, skipping")
				run.Categories[i].State = StateSkipped
				c.metrics.RecordCategory(StateSkipped.String())
				continue
			}
		}
		pending = append(pending, i)
	}

	workers := c.config.Parallelism
	if workers > len(pending) {
		workers = len(pending)
	}

	if c.progress != nil {
		c.progress.Start()
	}
	c.throttle = make([]ratelimit.LimiterStats, workers)

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, i := range pending {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		id := w
		g.Go(func() error {
			return c.worker(gctx, id, run.RunID, jobs, run.Categories)
		})
	}

	err := g.Wait()
	if c.progress != nil {
		c.progress.Stop()
	}

	run.FinishedAt = time.Now()
	run.Interrupted = ctx.Err() != nil
	run.Stats = computeStats(run.Categories, run.FinishedAt.Sub(run.StartedAt))
	run.Stats.URLsSeen = c.state.SeenURLs()
	for _, t := range c.throttle {
		run.Stats.Waits += t.Waits
		run.Stats.TotalDelay += t.TotalDelay
	}
	run.CleanupErr = c.cleanupError()

	c.recordRun(run, log)
	log.StatsEvent(run.Stats.Summary())

	if err != nil {
		return run, err
	}
	if run.Interrupted {
		log.Warn("Crawl interrupted, partial results flushed")
	}
	return run, nil
}

// worker owns one browser session for its lifetime and processes categories from jobs.
func (c *Crawler) worker(ctx context.Context, id int, runID string, jobs <-chan int, results []CategoryResult) error {
	log := c.logger.WithWorker(id)

	session, err := c.openSession(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted before the browser came up; nothing to tear down.
			return nil
		}
		if crawlerrors.GetErrorType(err) == crawlerrors.Unknown {
			err = crawlerrors.NewSessionStartError("open", err)
		}
		log.ErrorEvent(err, "", "", "session_start")
		c.metrics.RecordError(crawlerrors.GetErrorType(err).String())
		return err
	}
	c.metrics.SessionOpened()
	c.trackSession(id, session)

	limiter := ratelimit.NewLimiter(c.limiterConfig(id))
	if c.sleep != nil {
		limiter.SetSleep(c.sleep)
	}

	defer func() {
		c.throttle[id] = limiter.Stats()
		c.metrics.SessionClosed()
		if !c.untrackSession(id) {
			// Already closed by Abort.
			return
		}
		if err := session.Close(); err != nil {
			log.WarnEvent(err, "session_close")
			c.addCleanupError(err)
		}
	}()

	for i := range jobs {
		results[i] = c.processCategory(ctx, runID, session, limiter, results[i].Target)
	}
	return nil
}

func (c *Crawler) trackSession(id int, r Renderer) {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	c.sessions[id] = r
}

// untrackSession reports whether the session was still open and removes it.
func (c *Crawler) untrackSession(id int) bool {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	_, ok := c.sessions[id]
	delete(c.sessions, id)
	return ok
}

func (c *Crawler) limiterConfig(worker int) ratelimit.Config {
	cfg := c.config.RateLimit
	if cfg.Seed != 0 {
		cfg.Seed += int64(worker)
	}
	return cfg
}

// processCategory runs both stages for one category and hands the records to the sink once.
func (c *Crawler) processCategory(ctx context.Context, runID string, r Renderer, limiter *ratelimit.Limiter, target model.CrawlTarget) (res CategoryResult) {
	res = CategoryResult{Target: target, State: StateListingFetch, StartedAt: time.Now()}
	log := c.logger.WithCategory(target.Label)

	defer func() {
		if rec := recover(); rec != nil {
			res.Err = fmt.Errorf("category %s: panic: %v", target.Label, rec)
			res.State = StateAbandoned
			log.ErrorEvent(res.Err, target.Label, target.URL, "category")
		}
		res.FinishedAt = time.Now()
		c.finishCategory(runID, &res, log)
	}()

	if ctx.Err() != nil {
		res.State = StateInterrupted
		return res
	}

	log.CategoryEvent(target.Label, target.URL, StateListingFetch.String())
	start := time.Now()
	document, err := r.Render(ctx, target.URL, c.config.ListingWait)
	c.metrics.ObserveRender(metrics.PageListing, time.Since(start))
	if err != nil {
		if ctx.Err() != nil || crawlerrors.IsCancelled(err) {
			res.State = StateInterrupted
			return res
		}
		res.Err = crawlerrors.WithCategory(err, target.Label)
		res.State = StateAbandoned
		log.ErrorEvent(res.Err, target.Label, target.URL, "listing")
		c.metrics.RecordError(crawlerrors.GetErrorType(err).String())
		return res
	}

	links := c.extractor.ExtractLinks(document, target.URL)
	res.State = StateListingParsed
	res.Links = len(links)
	if len(links) == 0 {
		res.Err = crawlerrors.NewEmptyListingError(target.Label, target.URL)
		res.State = StateAbandoned
		log.Warnf("No item links found on %s", target.URL)
		c.metrics.RecordError(crawlerrors.GetErrorType(res.Err).String())
		return res
	}
	log.Infof("Found %d item links", len(links))
	if c.progress != nil {
		c.progress.CategoryStarted(target.Label, len(links))
	}

	res.State = StateItemLoop
	records := make([]model.ItemRecord, 0, len(links))

	for i, link := range links {
		if ctx.Err() != nil {
			res.State = StateInterrupted
			break
		}

		ref := model.ItemReference{URL: link, Category: target.Label}
		if !c.state.ShouldVisit(link) {
			log.WithURL(link).Debug("Already visited, skipping")
			res.Items = append(res.Items, ItemResult{Ref: ref, Skipped: true})
			c.metrics.RecordItem("skipped")
			continue
		}

		if _, err := limiter.Wait(ctx); err != nil {
			res.State = StateInterrupted
			break
		}

		log.ItemEvent(target.Label, i+1, len(links), link)
		item := c.processItem(ctx, r, ref)

		if item.Err != nil && ctx.Err() != nil && crawlerrors.IsCancelled(item.Err) {
			res.State = StateInterrupted
			break
		}

		res.Items = append(res.Items, item)
		if c.progress != nil {
			c.progress.ItemDone(item.Err == nil)
		}
		if item.Err != nil {
			log.ErrorEvent(item.Err, target.Label, link, "item")
			c.metrics.RecordItem("failed")
			c.metrics.RecordError(crawlerrors.GetErrorType(item.Err).String())
			continue
		}
		records = append(records, *item.Record)
		c.metrics.RecordItem("ok")
	}

	res.Records = records

	path, err := c.sink.Write(target.Label, records)
	if err != nil {
		res.Err = err
		res.State = StateAbandoned
		log.ErrorEvent(err, target.Label, c.sink.Path(target.Label), "write")
		c.metrics.RecordError(crawlerrors.GetErrorType(err).String())
		return res
	}
	res.Path = path
	if path != "" {
		c.metrics.RecordWritten(len(records))
		log.Infof("Saved %d records to %s", len(records), path)
	}

	if res.State == StateItemLoop {
		if path != "" {
			res.State = StateDone
		} else {
			res.State = StateEmpty
			log.Warnf("No records collected from %d links", len(links))
		}
	}
	return res
}

// processItem renders and extracts one detail page. Any failure, including a panic,
// stays inside the returned result.
func (c *Crawler) processItem(ctx context.Context, r Renderer, ref model.ItemReference) (res ItemResult) {
	res = ItemResult{Ref: ref, Stage: ItemFetch}
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			res.Err = fmt.Errorf("item %s: panic: %v", ref.URL, rec)
			res.Record = nil
		}
		res.Duration = time.Since(start)
	}()

	document, err := r.Render(ctx, ref.URL, c.config.ItemWait)
	c.metrics.ObserveRender(metrics.PageItem, time.Since(start))
	if err != nil {
		res.Err = crawlerrors.WithCategory(err, ref.Category)
		return res
	}
	res.Stage = ItemParsed

	record, err := c.extractor.ExtractRecord(document, ref.URL)
	if err != nil {
		res.Err = crawlerrors.WithCategory(err, ref.Category)
		return res
	}
	res.Record = &record
	res.Stage = ItemStored
	return res
}

func (c *Crawler) finishCategory(runID string, res *CategoryResult, log *logger.Logger) {
	c.metrics.RecordCategory(res.State.String())
	log.CategoryEvent(res.Target.Label, res.Target.URL, res.State.String())

	rec := state.CategoryRecord{
		Label:   res.Target.Label,
		URL:     res.Target.URL,
		State:   res.State.String(),
		Links:   res.Links,
		Records: len(res.Records),
		Failed:  res.Failed(),
		Path:    res.Path,
		RunID:   runID,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := c.state.RecordCategory(rec); err != nil {
		log.WarnEvent(err, "state_save")
	}
}

func (c *Crawler) recordRun(run *RunResult, log *logger.Logger) {
	labels := make([]string, 0, len(run.Categories))
	for _, cat := range run.Categories {
		labels = append(labels, cat.Target.Label)
	}
	err := c.state.RecordRun(state.RunRecord{
		RunID:       run.RunID,
		StartedAt:   run.StartedAt.UTC(),
		FinishedAt:  run.FinishedAt.UTC(),
		Categories:  labels,
		Records:     run.Stats.Records,
		Files:       run.Stats.Files,
		Interrupted: run.Interrupted,
	})
	if err != nil {
		log.WarnEvent(err, "state_save")
	}
}

func (c *Crawler) addCleanupError(err error) {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()
	c.cleanupErrs = append(c.cleanupErrs, err)
}

func (c *Crawler) cleanupError() error {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()
	err := errors.Join(c.cleanupErrs...)
	c.cleanupErrs = nil
	return err
}
