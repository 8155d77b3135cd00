// Package metrics collects counters for a scan.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates scan metrics. A nil *Collector is a
// valid no-op collector.
type Collector struct {
	// Crawl counters
	pagesRendered        atomic.Int64
	renderFailures       atomic.Int64
	requestsIntercepted  atomic.Int64
	requestsAborted      atomic.Int64
	endpointsRecorded    atomic.Int64
	malformedPayloads    atomic.Int64
	unclassifiedPayloads atomic.Int64

	// Fuzz counters
	endpointsFuzzed  atomic.Int64
	endpointsSkipped atomic.Int64
	probesTotal      atomic.Int64
	probeFailures    atomic.Int64
	descriptors      atomic.Int64

	// Probe latency tracking
	latencySum atomic.Int64
	latencyMax atomic.Int64

	// Histogram buckets for probe latency in ms
	latencyBuckets [10]atomic.Int64 // <10, <50, <100, <250, <500, <1000, <2500, <5000, <10000, >=10000

	// Failure breakdown by error type
	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	// Status code breakdown
	statusCodes map[int]*atomic.Int64
	statusMu    sync.RWMutex

	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	return &Collector{
		errorCounts: make(map[string]*atomic.Int64),
		statusCodes: make(map[int]*atomic.Int64),
		startTime:   time.Now(),
	}
}

// RecordRender records a rendered page with its intercepted and aborted requests.
func (c *Collector) RecordRender(intercepted, aborted int) {
	if c == nil {
		return
	}
	c.pagesRendered.Add(1)
	c.requestsIntercepted.Add(int64(intercepted))
	c.requestsAborted.Add(int64(aborted))
}

// RecordRenderFailure records a page that could not be rendered.
func (c *Collector) RecordRenderFailure() {
	if c == nil {
		return
	}
	c.pagesRendered.Add(1)
	c.renderFailures.Add(1)
}

// RecordEndpoint records a newly discovered endpoint.
func (c *Collector) RecordEndpoint() {
	if c == nil {
		return
	}
	c.endpointsRecorded.Add(1)
}

// RecordMalformedPayload records a payload that could not be decoded.
func (c *Collector) RecordMalformedPayload() {
	if c == nil {
		return
	}
	c.malformedPayloads.Add(1)
}

// RecordUnclassifiedPayload records a payload the schema extractor rejected.
func (c *Collector) RecordUnclassifiedPayload() {
	if c == nil {
		return
	}
	c.unclassifiedPayloads.Add(1)
}

// RecordEndpointFuzzed records an endpoint whose fuzzing completed.
func (c *Collector) RecordEndpointFuzzed() {
	if c == nil {
		return
	}
	c.endpointsFuzzed.Add(1)
}

// RecordEndpointSkipped records an endpoint with nothing to fuzz.
func (c *Collector) RecordEndpointSkipped() {
	if c == nil {
		return
	}
	c.endpointsSkipped.Add(1)
}

// RecordProbe records one timed probe. statusCode is zero when no response
// arrived; errorType is empty for a successful probe.
func (c *Collector) RecordProbe(elapsed time.Duration, statusCode int, errorType string) {
	if c == nil {
		return
	}
	c.probesTotal.Add(1)

	ms := elapsed.Milliseconds()
	c.latencySum.Add(ms)
	for {
		current := c.latencyMax.Load()
		if ms <= current || c.latencyMax.CompareAndSwap(current, ms) {
			break
		}
	}
	c.latencyBuckets[getBucket(ms)].Add(1)

	if statusCode > 0 {
		c.statusMu.Lock()
		if c.statusCodes[statusCode] == nil {
			c.statusCodes[statusCode] = &atomic.Int64{}
		}
		c.statusCodes[statusCode].Add(1)
		c.statusMu.Unlock()
	}

	if errorType != "" {
		c.probeFailures.Add(1)
		c.errorMu.Lock()
		if c.errorCounts[errorType] == nil {
			c.errorCounts[errorType] = &atomic.Int64{}
		}
		c.errorCounts[errorType].Add(1)
		c.errorMu.Unlock()
	}
}

// RecordDescriptors records generated descriptors.
func (c *Collector) RecordDescriptors(n int) {
	if c == nil {
		return
	}
	c.descriptors.Add(int64(n))
}

// getBucket returns the histogram bucket for a latency.
func getBucket(ms int64) int {
	switch {
	case ms < 10:
		return 0
	case ms < 50:
		return 1
	case ms < 100:
		return 2
	case ms < 250:
		return 3
	case ms < 500:
		return 4
	case ms < 1000:
		return 5
	case ms < 2500:
		return 6
	case ms < 5000:
		return 7
	case ms < 10000:
		return 8
	default:
		return 9
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	s := &Snapshot{
		Timestamp:   time.Now(),
		ErrorCounts: make(map[string]int64),
		StatusCodes: make(map[int]int64),
		LatencyHist: make([]int64, 10),
	}
	if c == nil {
		return s
	}

	s.Uptime = time.Since(c.startTime)
	s.PagesRendered = c.pagesRendered.Load()
	s.RenderFailures = c.renderFailures.Load()
	s.RequestsIntercepted = c.requestsIntercepted.Load()
	s.RequestsAborted = c.requestsAborted.Load()
	s.EndpointsRecorded = c.endpointsRecorded.Load()
	s.MalformedPayloads = c.malformedPayloads.Load()
	s.UnclassifiedPayloads = c.unclassifiedPayloads.Load()
	s.EndpointsFuzzed = c.endpointsFuzzed.Load()
	s.EndpointsSkipped = c.endpointsSkipped.Load()
	s.ProbesTotal = c.probesTotal.Load()
	s.ProbeFailures = c.probeFailures.Load()
	s.Descriptors = c.descriptors.Load()
	s.MaxLatency = time.Duration(c.latencyMax.Load()) * time.Millisecond
	if s.ProbesTotal > 0 {
		s.AverageLatency = time.Duration(c.latencySum.Load()/s.ProbesTotal) * time.Millisecond
	}

	c.errorMu.RLock()
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v.Load()
	}
	c.errorMu.RUnlock()

	c.statusMu.RLock()
	for k, v := range c.statusCodes {
		s.StatusCodes[k] = v.Load()
	}
	c.statusMu.RUnlock()

	for i := range c.latencyBuckets {
		s.LatencyHist[i] = c.latencyBuckets[i].Load()
	}

	return s
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp            time.Time        `json:"timestamp"`
	Uptime               time.Duration    `json:"uptime"`
	PagesRendered        int64            `json:"pages_rendered"`
	RenderFailures       int64            `json:"render_failures"`
	RequestsIntercepted  int64            `json:"requests_intercepted"`
	RequestsAborted      int64            `json:"requests_aborted"`
	EndpointsRecorded    int64            `json:"endpoints_recorded"`
	MalformedPayloads    int64            `json:"malformed_payloads"`
	UnclassifiedPayloads int64            `json:"unclassified_payloads"`
	EndpointsFuzzed      int64            `json:"endpoints_fuzzed"`
	EndpointsSkipped     int64            `json:"endpoints_skipped"`
	ProbesTotal          int64            `json:"probes_total"`
	ProbeFailures        int64            `json:"probe_failures"`
	Descriptors          int64            `json:"descriptors"`
	AverageLatency       time.Duration    `json:"average_latency"`
	MaxLatency           time.Duration    `json:"max_latency"`
	ErrorCounts          map[string]int64 `json:"error_counts"`
	StatusCodes          map[int]int64    `json:"status_codes"`
	LatencyHist          []int64          `json:"latency_histogram"`
}

// FailureRate returns probe failures over probes.
func (s *Snapshot) FailureRate() float64 {
	if s.ProbesTotal == 0 {
		return 0
	}
	return float64(s.ProbeFailures) / float64(s.ProbesTotal)
}

// Summary returns a flat map suitable for structured logging.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":            s.Uptime.String(),
		"pages_rendered":    s.PagesRendered,
		"render_failures":   s.RenderFailures,
		"endpoints":         s.EndpointsRecorded,
		"endpoints_fuzzed":  s.EndpointsFuzzed,
		"endpoints_skipped": s.EndpointsSkipped,
		"probes":            s.ProbesTotal,
		"probe_failures":    s.ProbeFailures,
		"failure_rate":      s.FailureRate(),
		"avg_latency_ms":    s.AverageLatency.Milliseconds(),
		"max_latency_ms":    s.MaxLatency.Milliseconds(),
		"descriptors":       s.Descriptors,
	}
}
