package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/PentesterFlow/fragcrawl/internal/model"
)

// jsonRecord is the JSON Lines shape of a record.
type jsonRecord struct {
	Name       string   `json:"name"`
	Notes      string   `json:"notes"`
	Attributes []string `json:"attributes"`
	URL        string   `json:"url"`
}

// JSONLEncoder writes newline-delimited JSON records.
type JSONLEncoder struct {
	buffer  *bufio.Writer
	encoder *json.Encoder
}

// NewJSONLEncoder creates a JSON Lines encoder.
func NewJSONLEncoder(w io.Writer) *JSONLEncoder {
	buffer := bufio.NewWriter(w)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONLEncoder{buffer: buffer, encoder: encoder}
}

// WriteRecord writes one JSON object followed by a newline.
func (j *JSONLEncoder) WriteRecord(rec model.ItemRecord) error {
	attrs := rec.Attributes
	if attrs == nil {
		attrs = []string{}
	}
	if err := j.encoder.Encode(jsonRecord{
		Name:       rec.Name,
		Notes:      rec.Notes(),
		Attributes: attrs,
		URL:        rec.URL,
	}); err != nil {
		return fmt.Errorf("encode json record: %w", err)
	}
	return nil
}

// Flush flushes buffered output.
func (j *JSONLEncoder) Flush() error {
	if err := j.buffer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}
