// Package extract turns rendered documents into item links and item records.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors holds the CSS selectors that locate data in rendered pages.
type Selectors struct {
	ItemMarker      string `json:"item_marker" yaml:"item_marker"`           // Listing element wrapping each item
	ItemLink        string `json:"item_link" yaml:"item_link"`               // Anchor inside the item marker
	PrimaryHeading  string `json:"primary_heading" yaml:"primary_heading"`   // Detail page name
	AttributeMarker string `json:"attribute_marker" yaml:"attribute_marker"` // Detail page attribute tags
}

// DefaultSelectors returns the selectors for the awards listing and perfume pages.
func DefaultSelectors() Selectors {
	return Selectors{
		ItemMarker:      "h3",
		ItemLink:        "a",
		PrimaryHeading:  "main h1",
		AttributeMarker: `div[data-testid="note"]`,
	}
}

// Extractor applies Selectors to documents. It holds no state and is safe for concurrent use.
type Extractor struct {
	selectors Selectors
}

// New creates an extractor, filling empty selectors with defaults.
func New(selectors Selectors) *Extractor {
	def := DefaultSelectors()
	if selectors.ItemMarker == "" {
		selectors.ItemMarker = def.ItemMarker
	}
	if selectors.ItemLink == "" {
		selectors.ItemLink = def.ItemLink
	}
	if selectors.PrimaryHeading == "" {
		selectors.PrimaryHeading = def.PrimaryHeading
	}
	if selectors.AttributeMarker == "" {
		selectors.AttributeMarker = def.AttributeMarker
	}
	return &Extractor{selectors: selectors}
}

// Selectors returns the effective selectors.
func (e *Extractor) Selectors() Selectors {
	return e.selectors
}

func parse(document string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(document))
}
