// Package browser manages headless Chrome sessions via Rod and renders pages into HTML.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/google/uuid"

	crawlerrors "github.com/PentesterFlow/fragcrawl/internal/errors"
	"github.com/PentesterFlow/fragcrawl/internal/logger"
)

// ProfilePrefix is the directory name prefix of every session profile.
const ProfilePrefix = "fragcrawl-profile-"

// Config defines browser session configuration.
type Config struct {
	Headless       bool                    `json:"headless" yaml:"headless"`
	NoSandbox      bool                    `json:"no_sandbox" yaml:"no_sandbox"`
	Leakless       bool                    `json:"leakless" yaml:"leakless"`
	Stealth        bool                    `json:"stealth" yaml:"stealth"`
	BrowserBin     string                  `json:"browser_bin" yaml:"browser_bin"`
	ProfileRoot    string                  `json:"profile_root" yaml:"profile_root"`
	UserAgent      string                  `json:"user_agent" yaml:"user_agent"`
	AcceptLanguage string                  `json:"accept_language" yaml:"accept_language"`
	LoadTimeout    time.Duration           `json:"load_timeout" yaml:"load_timeout"`
	ReadTimeout    time.Duration           `json:"read_timeout" yaml:"read_timeout"`
	Retry          crawlerrors.RetryPolicy `json:"-" yaml:"-"`
}

// DefaultConfig returns default session configuration.
func DefaultConfig() Config {
	return Config{
		Headless:       true,
		NoSandbox:      true,
		Leakless:       true,
		Stealth:        true,
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
		LoadTimeout:    60 * time.Second,
		ReadTimeout:    15 * time.Second,
		Retry:          crawlerrors.DefaultRetryPolicy(),
	}
}

// Session is one Chrome process bound to one private profile directory.
// A session is used by one worker at a time; Render calls are serialized.
type Session struct {
	id         string
	profileDir string
	config     Config
	log        *logger.Logger

	launcher *launcher.Launcher
	browser  *rod.Browser
	retrier  *crawlerrors.Retrier

	mu      sync.Mutex // serializes Render
	closed  atomic.Bool
	renders atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// Open creates the profile directory, launches Chrome against it and connects.
// On any failure the profile directory is removed and a session start error is returned.
func Open(ctx context.Context, config Config, log *logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.Nop()
	}
	if err := ctx.Err(); err != nil {
		return nil, crawlerrors.NewSessionStartError("open", err)
	}

	s, err := newSession(config, log)
	if err != nil {
		return nil, err
	}

	if err := s.launch(); err != nil {
		if rmErr := removeProfile(s.profileDir); rmErr != nil {
			s.log.WarnEvent(rmErr, "profile_cleanup")
		}
		return nil, err
	}

	s.log.Debugf("Session started with profile %s", s.profileDir)
	return s, nil
}

// newSession allocates a session and its unique profile directory without launching.
func newSession(config Config, log *logger.Logger) (*Session, error) {
	id := uuid.NewString()
	root := config.ProfileRoot
	if root == "" {
		root = os.TempDir()
	}

	dir := filepath.Join(root, ProfilePrefix+id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, crawlerrors.NewSessionStartError("create_profile", err)
	}

	return &Session{
		id:         id,
		profileDir: dir,
		config:     config,
		log:        log.WithComponent("browser").WithSession(id),
		retrier:    crawlerrors.NewRetrier(config.Retry),
	}, nil
}

func (s *Session) launch() error {
	l := launcher.New().
		Headless(s.config.Headless).
		NoSandbox(s.config.NoSandbox).
		Leakless(s.config.Leakless).
		UserDataDir(s.profileDir).
		Set("disable-extensions").
		Set("disable-dev-shm-usage").
		Set("start-maximized").
		Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation")

	if s.config.BrowserBin != "" {
		l = l.Bin(s.config.BrowserBin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return crawlerrors.NewSessionStartError("launch", err)
	}
	s.launcher = l

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		s.launcher = nil
		return crawlerrors.NewSessionStartError("connect", err)
	}
	s.browser = b

	return nil
}

// ProfileDir returns the session's private profile directory.
func (s *Session) ProfileDir() string {
	return s.profileDir
}

// Renders returns how many pages this session has rendered.
func (s *Session) Renders() int {
	return int(s.renders.Load())
}

// Close tears the session down: browser, process, then profile directory.
// Safe to call more than once; only the first call does work. Close does not
// wait for an in-flight Render, which fails once the browser is gone.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		var errs []error
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
		}
		if s.launcher != nil {
			s.launcher.Kill()
		}
		if err := removeProfile(s.profileDir); err != nil {
			errs = append(errs, err)
		}

		s.closeErr = errors.Join(errs...)
		if s.closeErr == nil {
			s.log.Debugf("Session closed after %d renders", s.Renders())
		}
	})
	return s.closeErr
}

// removeProfile deletes dir, retrying briefly while Chrome releases its files.
func removeProfile(dir string) error {
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		err = os.RemoveAll(dir)
		if err == nil {
			return nil
		}
		time.Sleep(crawlerrors.BackoffDuration(attempt, 50*time.Millisecond, 500*time.Millisecond, 2))
	}
	return fmt.Errorf("remove profile %s: %w", dir, err)
}
