// Package output writes per-category record files.
package output

import (
	"fmt"
	"io"

	"github.com/PentesterFlow/fragcrawl/internal/model"
)

// Supported output formats.
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

// Header is the column order of tabular output.
var Header = []string{"name", "notes", "url"}

// Encoder writes records to an underlying stream.
type Encoder interface {
	// WriteRecord writes a single record
	WriteRecord(rec model.ItemRecord) error

	// Flush flushes any buffered output
	Flush() error
}

// NewEncoder creates an encoder for format. CSV encoders write the header immediately.
func NewEncoder(w io.Writer, format string) (Encoder, error) {
	switch format {
	case FormatCSV, "":
		return NewCSVEncoder(w)
	case FormatJSONL:
		return NewJSONLEncoder(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// Extension returns the file extension for format.
func Extension(format string) string {
	if format == FormatJSONL {
		return "jsonl"
	}
	return "csv"
}

// ValidFormat reports whether format is supported.
func ValidFormat(format string) bool {
	return format == FormatCSV || format == FormatJSONL
}
