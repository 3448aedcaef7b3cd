package output

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/PentesterFlow/fragcrawl/internal/errors"
	"github.com/PentesterFlow/fragcrawl/internal/logger"
	"github.com/PentesterFlow/fragcrawl/internal/model"
)

// Config holds sink configuration.
type Config struct {
	Dir    string `json:"dir" yaml:"dir"`
	Prefix string `json:"prefix" yaml:"prefix"`
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default sink configuration.
func DefaultConfig() Config {
	return Config{
		Dir:    ".",
		Prefix: "perfumy_",
		Format: FormatCSV,
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Sink writes one file per category.
type Sink struct {
	config Config
	log    *logger.Logger

	mu      sync.Mutex
	written map[string]string // path -> label that wrote it
}

// NewSink creates a sink. A nil logger discards log output.
func NewSink(config Config, log *logger.Logger) *Sink {
	if config.Format == "" {
		config.Format = FormatCSV
	}
	if config.Dir == "" {
		config.Dir = "."
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sink{
		config:  config,
		log:     log.WithComponent("sink"),
		written: make(map[string]string),
	}
}

// Path returns the file path used for a category label.
func (s *Sink) Path(label string) string {
	name := s.config.Prefix + SanitizeLabel(label) + "." + Extension(s.config.Format)
	return filepath.Join(s.config.Dir, name)
}

// Write persists records for label and returns the written path.
// No records means no file: the call is a logged no-op returning "".
// The file is written to a temp file and renamed, so a failed write leaves nothing behind.
func (s *Sink) Write(label string, records []model.ItemRecord) (string, error) {
	if len(records) == 0 {
		s.log.WithCategory(label).Info("No records, skipping output file")
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(label)
	if owner, ok := s.written[path]; ok && owner != label {
		return "", errors.NewSinkError(label, path, fmt.Errorf("file already written for category %q", owner))
	}
	if err := os.MkdirAll(s.config.Dir, 0o755); err != nil {
		return "", errors.NewSinkError(label, path, fmt.Errorf("create directory %q: %w", s.config.Dir, err))
	}

	tmp, err := os.CreateTemp(s.config.Dir, ".fragcrawl-*.tmp")
	if err != nil {
		return "", errors.NewSinkError(label, path, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	enc, err := NewEncoder(tmp, s.config.Format)
	if err != nil {
		return "", errors.NewSinkError(label, path, err)
	}
	for _, rec := range records {
		if err := enc.WriteRecord(rec); err != nil {
			return "", errors.NewSinkError(label, path, err)
		}
	}
	if err := enc.Flush(); err != nil {
		return "", errors.NewSinkError(label, path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.NewSinkError(label, path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return "", errors.NewSinkError(label, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", errors.NewSinkError(label, path, err)
	}
	committed = true
	s.written[path] = label

	s.log.WithCategory(label).Infof("Wrote %d records to %s", len(records), path)
	return path, nil
}

// SanitizeLabel makes a category label safe to use in a file name.
func SanitizeLabel(label string) string {
	clean := unsafeChars.ReplaceAllString(strings.TrimSpace(label), "_")
	clean = strings.Trim(clean, "._")
	if clean == "" {
		return "category"
	}
	return clean
}
