package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestDisplay_Counts(t *testing.T) {
	var buf bytes.Buffer
	d := NewWithWriter(&buf)
	d.Start()

	d.CategoryStarted("MEN", 4)
	d.ItemDone(true)
	d.ItemDone(false)
	d.CategoryStarted("WOMEN", 2)
	d.ItemDone(true)

	categories, total, done, records, failed := d.Stats()
	if categories != 2 || total != 6 || done != 3 || records != 2 || failed != 1 {
		t.Errorf("Stats() = %d %d %d %d %d, want 2 6 3 2 1", categories, total, done, records, failed)
	}

	out := buf.String()
	if !strings.Contains(out, "Items: 3/6") {
		t.Errorf("output missing item counts: %q", out)
	}
	if !strings.Contains(out, " 50% ") {
		t.Errorf("output missing percentage: %q", out)
	}
	if !strings.Contains(out, "WOMEN") {
		t.Errorf("output missing current category: %q", out)
	}
}

func TestDisplay_SilentUntilStarted(t *testing.T) {
	var buf bytes.Buffer
	d := NewWithWriter(&buf)

	d.CategoryStarted("MEN", 1)
	d.ItemDone(true)
	d.Stop()

	if buf.Len() != 0 {
		t.Errorf("unstarted display wrote %q", buf.String())
	}
}

func TestDisplay_StopOnce(t *testing.T) {
	var buf bytes.Buffer
	d := NewWithWriter(&buf)
	d.Start()
	d.Stop()
	d.Stop()
	d.ItemDone(true)

	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Errorf("newlines = %d, want 1", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h02m03s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.d, got, tt.want)
		}
	}
}
