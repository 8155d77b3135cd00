package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestDisplay_Update(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)

	d.Update(1, 10, 0, time.Second)
	if buf.Len() != 0 {
		t.Error("Update() before Start() should not draw")
	}

	d.Start(4)
	d.Update(2, 40, 3, 1500*time.Millisecond)

	line := buf.String()
	for _, want := range []string{" 50%", "Endpoints: 2/4", "Probes: 40", "Failed: 3", "Max: 1.5s"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q should contain %q", line, want)
		}
	}

	if d.done != 2 || d.total != 4 || d.probes != 40 || d.failures != 3 {
		t.Errorf("state = %d, %d, %d, %d", d.done, d.total, d.probes, d.failures)
	}
}

func TestDisplay_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	d.Start(0)
	d.Update(0, 0, 0, 0)

	if !strings.Contains(buf.String(), "100%") {
		t.Errorf("empty run should show 100%%: %q", buf.String())
	}
}

func TestDisplay_Stop(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)

	d.Stop()
	if buf.Len() != 0 {
		t.Error("Stop() before Start() should not write")
	}

	d.Start(1)
	d.Stop()
	d.Stop()
	if buf.String() != "\n" {
		t.Errorf("Stop() output = %q, want a single newline", buf.String())
	}

	d.Update(1, 1, 0, 0)
	if buf.String() != "\n" {
		t.Error("Update() after Stop() should not draw")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{4 * time.Second, "4s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h02m03s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
