package crawler

import (
	"time"

	"github.com/PentesterFlow/fragcrawl/internal/model"
)

// CategoryState is the lifecycle position of one category.
type CategoryState int

const (
	StateIdle CategoryState = iota
	StateListingFetch
	StateListingParsed
	StateItemLoop
	StateDone
	StateAbandoned
	StateInterrupted
	StateSkipped
	StateEmpty // item loop finished without a single record
)

// String returns the string representation of the state.
func (s CategoryState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListingFetch:
		return "listing_fetch"
	case StateListingParsed:
		return "listing_parsed"
	case StateItemLoop:
		return "item_loop"
	case StateDone:
		return "done"
	case StateAbandoned:
		return "abandoned"
	case StateInterrupted:
		return "interrupted"
	case StateSkipped:
		return "skipped"
	case StateEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further work will happen for the category.
func (s CategoryState) Terminal() bool {
	switch s {
	case StateDone, StateAbandoned, StateInterrupted, StateSkipped, StateEmpty:
		return true
	}
	return false
}

// ItemStage is how far a single item got.
type ItemStage int

const (
	ItemFetch ItemStage = iota
	ItemParsed
	ItemStored
)

// String returns the string representation of the stage.
func (s ItemStage) String() string {
	switch s {
	case ItemFetch:
		return "fetch"
	case ItemParsed:
		return "parsed"
	case ItemStored:
		return "stored"
	default:
		return "unknown"
	}
}

// ItemResult is the outcome of one detail page.
type ItemResult struct {
	Ref      model.ItemReference `json:"ref"`
	Record   *model.ItemRecord   `json:"record,omitempty"`
	Stage    ItemStage           `json:"stage"`
	Skipped  bool                `json:"skipped,omitempty"`
	Duration time.Duration       `json:"duration"`
	Err      error               `json:"-"`
}

// OK reports whether the item produced a record.
func (r ItemResult) OK() bool {
	return r.Err == nil && r.Record != nil
}

// CategoryResult is the outcome of one category.
type CategoryResult struct {
	Target     model.CrawlTarget  `json:"target"`
	State      CategoryState      `json:"state"`
	Links      int                `json:"links"`
	Items      []ItemResult       `json:"items,omitempty"`
	Records    []model.ItemRecord `json:"records,omitempty"`
	Path       string             `json:"path,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Err        error              `json:"-"`
}

// Failed returns the number of items that produced no record.
func (r CategoryResult) Failed() int {
	n := 0
	for _, item := range r.Items {
		if item.Err != nil {
			n++
		}
	}
	return n
}

// Skipped returns the number of items skipped as already visited.
func (r CategoryResult) Skipped() int {
	n := 0
	for _, item := range r.Items {
		if item.Skipped {
			n++
		}
	}
	return n
}

// RunResult is the outcome of a whole crawl.
type RunResult struct {
	RunID       string           `json:"run_id"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Categories  []CategoryResult `json:"categories"`
	Stats       Stats            `json:"stats"`
	Interrupted bool             `json:"interrupted"`

	// Session teardown failures; the crawl output is still valid.
	CleanupErr error `json:"-"`
}

// Files returns the paths of the files written, in target order.
func (r *RunResult) Files() []string {
	files := make([]string, 0, len(r.Categories))
	for _, c := range r.Categories {
		if c.Path != "" {
			files = append(files, c.Path)
		}
	}
	return files
}

// Stats holds crawl statistics.
type Stats struct {
	Categories          int           `json:"categories"`
	CategoriesDone      int           `json:"categories_done"`
	CategoriesAbandoned int           `json:"categories_abandoned"`
	CategoriesSkipped   int           `json:"categories_skipped"`
	CategoriesEmpty     int           `json:"categories_empty"`
	Links               int           `json:"links"`
	ItemsFailed         int           `json:"items_failed"`
	ItemsSkipped        int           `json:"items_skipped"`
	Records             int           `json:"records"`
	Files               int           `json:"files"`
	URLsSeen            int           `json:"urls_seen"`
	Waits               int           `json:"waits"`
	TotalDelay          time.Duration `json:"total_delay"`
	Duration            time.Duration `json:"duration"`
}

func computeStats(categories []CategoryResult, duration time.Duration) Stats {
	stats := Stats{Categories: len(categories), Duration: duration}
	for _, c := range categories {
		switch c.State {
		case StateDone:
			stats.CategoriesDone++
		case StateAbandoned:
			stats.CategoriesAbandoned++
		case StateSkipped:
			stats.CategoriesSkipped++
		case StateEmpty:
			stats.CategoriesEmpty++
		}
		stats.Links += c.Links
		stats.ItemsFailed += c.Failed()
		stats.ItemsSkipped += c.Skipped()
		stats.Records += len(c.Records)
		if c.Path != "" {
			stats.Files++
		}
	}
	return stats
}

// Summary returns the statistics as log fields.
func (s Stats) Summary() map[string]interface{} {
	return map[string]interface{}{
		"categories":           s.Categories,
		"categories_done":      s.CategoriesDone,
		"categories_abandoned": s.CategoriesAbandoned,
		"categories_skipped":   s.CategoriesSkipped,
		"categories_empty":     s.CategoriesEmpty,
		"links":                s.Links,
		"items_failed":         s.ItemsFailed,
		"items_skipped":        s.ItemsSkipped,
		"records":              s.Records,
		"files":                s.Files,
		"urls_seen":            s.URLsSeen,
		"waits":                s.Waits,
		"total_delay":          s.TotalDelay.String(),
		"duration":             s.Duration.String(),
	}
}
