package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks returns the absolute item URLs found on a listing document, in document order.
// Markers without an anchor, anchors without a usable href and non-http(s) links are skipped.
// Relative hrefs resolve against baseURL. Repeated links are kept; an empty result is not an error.
func (e *Extractor) ExtractLinks(document, baseURL string) []string {
	doc, err := parse(document)
	if err != nil {
		return []string{}
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	links := make([]string, 0)

	doc.Find(e.selectors.ItemMarker).Each(func(i int, marker *goquery.Selection) {
		anchor := marker.Find(e.selectors.ItemLink).First()
		if anchor.Length() == 0 && marker.Is(e.selectors.ItemLink) {
			anchor = marker
		}
		if anchor.Length() == 0 {
			return
		}

		href, exists := anchor.Attr("href")
		if !exists {
			return
		}

		resolved := resolveLink(base, href)
		if resolved == "" {
			return
		}
		links = append(links, resolved)
	})

	return links
}

// resolveLink returns an absolute http(s) URL for href, or "" if it is unusable.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	if !ref.IsAbs() {
		if base == nil {
			return ""
		}
		ref = base.ResolveReference(ref)
	}

	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	if ref.Host == "" {
		return ""
	}

	ref.Fragment = ""
	return ref.String()
}
