package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// stealthScript hides the usual automation fingerprints before any page script runs.
const stealthScript = `(() => {
	Object.defineProperty(navigator, 'webdriver', {
		get: () => undefined
	});

	Object.defineProperty(navigator, 'plugins', {
		get: () => [
			{name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer'},
			{name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai'}
		]
	});

	Object.defineProperty(navigator, 'languages', {
		get: () => ['en-US', 'en']
	});

	if (!window.chrome) {
		window.chrome = { runtime: {}, app: {} };
	}
})();`

// prepareTab applies the stealth script and identity overrides to a fresh tab.
// Failures here are not fatal; the page still renders without them.
func (s *Session) prepareTab(page *rod.Page) {
	if s.config.Stealth {
		if _, err := page.EvalOnNewDocument(stealthScript); err != nil {
			s.log.Debugf("stealth script not applied: %v", err)
		}
	}

	if s.config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{
			UserAgent:      s.config.UserAgent,
			AcceptLanguage: s.config.AcceptLanguage,
		}.Call(page)
	}

	if s.config.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{"Accept-Language": gson.New(s.config.AcceptLanguage)},
		}.Call(page)
	}
}
