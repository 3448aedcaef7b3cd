package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	crawlerrors "github.com/PentesterFlow/fragcrawl/internal/errors"
)

// Render loads url in a fresh tab, applies the wait policy and returns the document HTML.
// Load failures are navigation errors; a missing ready marker only produces a warning.
func (s *Session) Render(ctx context.Context, url string, wait WaitPolicy) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() || s.browser == nil {
		return "", crawlerrors.NewNavigationError(url, fmt.Errorf("session %s is closed", s.id))
	}
	s.renders.Add(1)

	html, attempts, err := crawlerrors.Retry(ctx, s.retrier, url, func(ctx context.Context) (string, error) {
		return s.renderOnce(ctx, url, wait)
	})
	if err != nil {
		return "", err
	}
	if attempts > 1 {
		s.log.Infof("Rendered %s after %d attempts", url, attempts)
	}
	return html, nil
}

func (s *Session) renderOnce(ctx context.Context, url string, wait WaitPolicy) (string, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", crawlerrors.NewNavigationError(url, fmt.Errorf("open tab: %w", err))
	}
	defer func() { _ = page.Close() }()

	s.prepareTab(page)

	if err := s.navigate(ctx, page, url); err != nil {
		return "", err
	}

	ready, err := wait.await(ctx, func(ctx context.Context) (bool, error) {
		found, _, err := page.Context(ctx).Has(wait.ReadySelector)
		return found, err
	})
	if err != nil {
		return "", crawlerrors.NewCancelledError(url, "wait")
	}
	if !ready {
		s.log.WithURL(url).Warnf("Ready marker %q not found within %s, reading document anyway",
			wait.ReadySelector, wait.ReadyTimeout)
	}

	readCtx, cancel := context.WithTimeout(ctx, s.readTimeout())
	defer cancel()

	html, err := page.Context(readCtx).HTML()
	if err != nil {
		if ctx.Err() != nil {
			return "", crawlerrors.NewCancelledError(url, "read")
		}
		return "", crawlerrors.NewNavigationError(url, fmt.Errorf("read document: %w", err))
	}
	return html, nil
}

// navigate loads url and waits for the load event under the page-load timeout.
func (s *Session) navigate(ctx context.Context, page *rod.Page, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.loadTimeout())
	defer cancel()

	p := page.Context(navCtx)
	err := p.Navigate(url)
	if err == nil {
		err = p.WaitLoad()
	}
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return crawlerrors.NewCancelledError(url, "navigate")
	}
	if navCtx.Err() != nil {
		err = fmt.Errorf("%w after %s", context.DeadlineExceeded, s.loadTimeout())
	}
	return crawlerrors.NewNavigationError(url, err)
}

func (s *Session) loadTimeout() time.Duration {
	if s.config.LoadTimeout > 0 {
		return s.config.LoadTimeout
	}
	return 60 * time.Second
}

func (s *Session) readTimeout() time.Duration {
	if s.config.ReadTimeout > 0 {
		return s.config.ReadTimeout
	}
	return 15 * time.Second
}
