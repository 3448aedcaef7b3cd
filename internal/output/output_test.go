package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PentesterFlow/fragcrawl/internal/errors"
	"github.com/PentesterFlow/fragcrawl/internal/model"
)

func sampleRecords() []model.ItemRecord {
	return []model.ItemRecord{
		{Name: "Aventus Creed", Attributes: []string{"Pineapple", "Birch"}, URL: "https://example.com/p/1"},
		{Name: `Eau "Quoted", Comma`, Attributes: nil, URL: "https://example.com/p/2"},
	}
}

// =============================================================================
// Encoder Tests
// =============================================================================

func TestCSVEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, FormatCSV)
	require.NoError(t, err)

	for _, rec := range sampleRecords() {
		require.NoError(t, enc.WriteRecord(rec))
	}
	require.NoError(t, enc.Flush())

	want := "name,notes,url\n" +
		"Aventus Creed,\"Pineapple, Birch\",https://example.com/p/1\n" +
		"\"Eau \"\"Quoted\"\", Comma\",,https://example.com/p/2\n"
	assert.Equal(t, want, buf.String())
}

func TestJSONLEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, FormatJSONL)
	require.NoError(t, err)

	for _, rec := range sampleRecords() {
		require.NoError(t, enc.WriteRecord(rec))
	}
	require.NoError(t, enc.Flush())

	scanner := bufio.NewScanner(&buf)
	var lines []map[string]interface{}
	for scanner.Scan() {
		var obj map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj))
		lines = append(lines, obj)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "Pineapple, Birch", lines[0]["notes"])
	assert.Equal(t, []interface{}{"Pineapple", "Birch"}, lines[0]["attributes"])
	assert.Equal(t, []interface{}{}, lines[1]["attributes"])
}

func TestNewEncoder_UnknownFormat(t *testing.T) {
	_, err := NewEncoder(&bytes.Buffer{}, "xml")
	assert.Error(t, err)
	assert.False(t, ValidFormat("xml"))
	assert.True(t, ValidFormat(FormatJSONL))
}

// =============================================================================
// Sink Tests
// =============================================================================

func TestSink_WriteCSV(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(Config{Dir: dir, Prefix: "perfumy_", Format: FormatCSV}, nil)

	path, err := sink.Write("WSZECH_CZASOW", sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "perfumy_WSZECH_CZASOW.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Equal(t, "name,notes,url", lines[0])
	assert.Len(t, lines, 3)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should not remain")
}

func TestSink_WriteEmptyIsNoop(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink := NewSink(Config{Dir: dir, Prefix: "p_"}, nil)

	for _, records := range [][]model.ItemRecord{nil, {}} {
		path, err := sink.Write("EMPTY", records)
		require.NoError(t, err)
		assert.Empty(t, path)
	}

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "output dir should not be created for empty categories")
}

func TestSink_WriteTwiceIsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(Config{Dir: dir, Prefix: "p_", Format: FormatCSV}, nil)

	path, err := sink.Write("BEST", sampleRecords())
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = sink.Write("BEST", sampleRecords())
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSink_WriteRefusesCollidingLabels(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(Config{Dir: dir, Prefix: "p_", Format: FormatCSV}, nil)

	first, err := sink.Write("BEST 2024", sampleRecords())
	require.NoError(t, err)
	before, err := os.ReadFile(first)
	require.NoError(t, err)

	_, err = sink.Write("BEST/2024", sampleRecords()[:1])
	require.Error(t, err)
	assert.Equal(t, errors.Sink, errors.GetErrorType(err))
	assert.Contains(t, err.Error(), "BEST 2024")

	after, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, before, after, "first category's file must not be overwritten")
}

func TestSink_WriteJSONL(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(Config{Dir: dir, Prefix: "p_", Format: FormatJSONL}, nil)

	path, err := sink.Write("BEST", sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, ".jsonl", filepath.Ext(path))
}

func TestSink_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	sink := NewSink(Config{Dir: filepath.Join(blocker, "sub"), Prefix: "p_"}, nil)
	_, err := sink.Write("BEST", sampleRecords())

	require.Error(t, err)
	assert.Equal(t, errors.Sink, errors.GetErrorType(err))
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"NAJLEPSZE_2024", "NAJLEPSZE_2024"},
		{"best of/all time", "best_of_all_time"},
		{"../etc", "etc"},
		{"   ", "category"},
		{"Zażółć", "Za"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeLabel(tt.label))
		})
	}
}
