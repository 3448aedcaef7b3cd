// Package model holds the data passed between the crawl stages.
package model

import "strings"

// NotesSeparator joins attribute tags into the flat notes column.
const NotesSeparator = ", "

// CrawlTarget is one configured category and its listing page.
type CrawlTarget struct {
	Label string `json:"label" yaml:"label"`
	URL   string `json:"url" yaml:"url"`
}

// ItemReference is an item URL discovered on a category listing.
type ItemReference struct {
	URL      string `json:"url"`
	Category string `json:"category"`
}

// ItemRecord is the structured output of one detail page.
type ItemRecord struct {
	Name       string   `json:"name"`
	Attributes []string `json:"attributes"`
	URL        string   `json:"url"`
}

// Notes returns the attributes flattened into a single text field.
func (r ItemRecord) Notes() string {
	return strings.Join(r.Attributes, NotesSeparator)
}
