// Package progress renders a single-line progress bar for the item loop.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const barWidth = 30

// Display tracks items across categories and redraws one status line per update.
// It is safe for concurrent use by several workers.
type Display struct {
	mu      sync.Mutex
	out     io.Writer
	started bool
	stopped bool

	// Stats
	categories atomic.Int64
	itemsTotal atomic.Int64
	itemsDone  atomic.Int64
	records    atomic.Int64
	failed     atomic.Int64

	// Timing
	startTime time.Time

	// Display
	current  string
	lastLine string
}

// New creates a display writing to stderr.
func New() *Display {
	return NewWithWriter(os.Stderr)
}

// NewWithWriter creates a display writing to w.
func NewWithWriter(w io.Writer) *Display {
	return &Display{out: w}
}

// Start begins the progress display.
func (d *Display) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}
	d.started = true
	d.startTime = time.Now()
}

// CategoryStarted adds a category's item links to the total.
func (d *Display) CategoryStarted(label string, items int) {
	d.categories.Add(1)
	d.itemsTotal.Add(int64(items))

	d.mu.Lock()
	d.current = label
	d.mu.Unlock()
	d.redraw()
}

// ItemDone counts one finished item.
func (d *Display) ItemDone(ok bool) {
	d.itemsDone.Add(1)
	if ok {
		d.records.Add(1)
	} else {
		d.failed.Add(1)
	}
	d.redraw()
}

func (d *Display) redraw() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.stopped {
		return
	}

	total := d.itemsTotal.Load()
	done := d.itemsDone.Load()
	percent := 0
	if total > 0 {
		percent = int(float64(done) / float64(total) * 100)
	}
	if percent > 100 {
		percent = 100
	}

	filled := percent * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %3d%% | %s | Items: %d/%d | Records: %d | Failed: %d | %s",
		bar, percent, d.current, done, total, d.records.Load(), d.failed.Load(),
		formatDuration(time.Since(d.startTime)))

	// Clear previous line and print new one
	if len(line) < len(d.lastLine) {
		fmt.Fprint(d.out, "\r"+strings.Repeat(" ", len(d.lastLine)))
	}
	fmt.Fprint(d.out, line)
	d.lastLine = line
}

// Stop stops the progress display.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}
	d.stopped = true

	// Print newline to move past progress bar
	fmt.Fprintln(d.out)
}

// Stats returns current counts.
func (d *Display) Stats() (categories, itemsTotal, itemsDone, records, failed int64) {
	return d.categories.Load(),
		d.itemsTotal.Load(),
		d.itemsDone.Load(),
		d.records.Load(),
		d.failed.Load()
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
