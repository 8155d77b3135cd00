// Package progress renders a one-line fuzzing progress bar.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const barWidth = 30

// Display manages progress bar display during fuzzing.
type Display struct {
	mu      sync.Mutex
	out     io.Writer
	started bool
	stopped bool

	total      int
	done       int
	probes     int
	failures   int
	maxLatency time.Duration

	startTime time.Time
	lastLine  string
}

// New creates a progress display writing to out, or to stderr when out is nil.
func New(out io.Writer) *Display {
	if out == nil {
		out = os.Stderr
	}
	return &Display{out: out}
}

// Start begins the display for total endpoints.
func (d *Display) Start(total int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	d.started = true
	d.total = total
	d.startTime = time.Now()
}

// Update redraws the bar after done endpoints.
func (d *Display) Update(done, probes, failures int, maxLatency time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.done = done
	d.probes = probes
	d.failures = failures
	d.maxLatency = maxLatency

	if !d.started || d.stopped {
		return
	}

	percent := 100
	if d.total > 0 {
		percent = done * 100 / d.total
		if percent > 100 {
			percent = 100
		}
	}

	elapsed := time.Since(d.startTime)
	rate := float64(0)
	if elapsed.Seconds() > 0 {
		rate = float64(probes) / elapsed.Seconds()
	}

	filled := percent * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %3d%% | Endpoints: %d/%d | Probes: %d | Failed: %d | Max: %s | %.1f p/s | %s",
		bar, percent, done, d.total, probes, failures, maxLatency.Round(time.Millisecond), rate, formatDuration(elapsed))

	// overwrite leftovers of a longer previous line
	if len(line) < len(d.lastLine) {
		fmt.Fprint(d.out, "\r"+strings.Repeat(" ", len(d.lastLine)))
	}
	fmt.Fprint(d.out, line)
	d.lastLine = line
}

// Stop ends the display and moves past the bar.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}

	d.stopped = true
	fmt.Fprintln(d.out)
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
