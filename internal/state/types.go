package state

import "time"

// CategoryRecord is the persisted outcome of one category.
type CategoryRecord struct {
	Label       string    `json:"label"`
	URL         string    `json:"url"`
	State       string    `json:"state"`
	Links       int       `json:"links"`
	Records     int       `json:"records"`
	Failed      int       `json:"failed"`
	Path        string    `json:"path,omitempty"`
	Error       string    `json:"error,omitempty"`
	RunID       string    `json:"run_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Completed reports whether the category finished with an output file.
// A category that ended without records is retried on resume.
func (c CategoryRecord) Completed() bool {
	return c.State == "done" && c.Path != ""
}

// RunRecord summarizes one crawl run.
type RunRecord struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	Categories  []string  `json:"categories"`
	Records     int       `json:"records"`
	Files       int       `json:"files"`
	Interrupted bool      `json:"interrupted"`
}
