package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/PentesterFlow/fragcrawl/internal/errors"
	"github.com/PentesterFlow/fragcrawl/internal/model"
)

// ExtractRecord reads the item name and attribute tags from a detail document.
// A missing or blank name is an extraction error; missing attributes are not.
func (e *Extractor) ExtractRecord(document, sourceURL string) (model.ItemRecord, error) {
	doc, err := parse(document)
	if err != nil {
		extErr := errors.NewExtractionError(sourceURL, "document")
		extErr.Cause = err
		return model.ItemRecord{}, extErr
	}

	name := strings.TrimSpace(doc.Find(e.selectors.PrimaryHeading).First().Text())
	if name == "" {
		return model.ItemRecord{}, errors.NewExtractionError(sourceURL, "name")
	}

	attributes := make([]string, 0)
	doc.Find(e.selectors.AttributeMarker).Each(func(i int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			attributes = append(attributes, text)
		}
	})

	return model.ItemRecord{
		Name:       name,
		Attributes: attributes,
		URL:        sourceURL,
	}, nil
}
