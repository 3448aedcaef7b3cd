package output

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/PentesterFlow/fragcrawl/internal/model"
)

// CSVEncoder writes records as name,notes,url rows.
type CSVEncoder struct {
	writer *csv.Writer
}

// NewCSVEncoder creates a CSV encoder and writes the header row.
func NewCSVEncoder(w io.Writer) (*CSVEncoder, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return &CSVEncoder{writer: writer}, nil
}

// WriteRecord writes one row.
func (c *CSVEncoder) WriteRecord(rec model.ItemRecord) error {
	if err := c.writer.Write([]string{rec.Name, rec.Notes(), rec.URL}); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	return nil
}

// Flush flushes buffered rows.
func (c *CSVEncoder) Flush() error {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}
