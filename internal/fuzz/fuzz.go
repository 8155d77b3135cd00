// Package fuzz measures how endpoint latency reacts to edge-case parameter
// values and keeps the slowest payloads.
package fuzz

import (
	"context"
	"time"

	"github.com/PentesterFlow/slowscope/internal/corpus"
	scanerrors "github.com/PentesterFlow/slowscope/internal/errors"
	"github.com/PentesterFlow/slowscope/internal/logger"
	"github.com/PentesterFlow/slowscope/internal/metrics"
	"github.com/PentesterFlow/slowscope/internal/payload"
	"github.com/PentesterFlow/slowscope/internal/ratelimit"
	"github.com/PentesterFlow/slowscope/internal/registry"
)

// Prober sends one payload to an endpoint and reports the status code,
// zero when no response arrived.
type Prober interface {
	Probe(ctx context.Context, method, url string, p payload.Payload) (int, error)
}

// Config controls fuzzing.
type Config struct {
	// Trials is the number of probes per (field, value) pair.
	Trials int
	// TopK is the number of payloads kept per endpoint.
	TopK int
	// Dedup keeps only the slowest sample of identical payloads when ranking.
	Dedup bool
	// Delay is the pause between consecutive probes.
	Delay time.Duration
	// RequestsPerSecond caps the probe rate; zero means no cap.
	RequestsPerSecond float64
}

// DefaultProbeDelay is the pause awaited before every probe but the first.
const DefaultProbeDelay = 100 * time.Millisecond

// DefaultConfig returns default fuzzing settings.
func DefaultConfig() Config {
	return Config{
		Trials: 5,
		TopK:   3,
		Delay:  DefaultProbeDelay,
	}
}

// Sample is one timed probe.
type Sample struct {
	Payload    payload.Payload `json:"payload"`
	Field      string          `json:"field"`
	Elapsed    time.Duration   `json:"elapsed"`
	StatusCode int             `json:"status_code,omitempty"`
	// Err is the probe failure, if any. Failed probes still count.
	Err error `json:"-"`
}

// Result is the outcome of fuzzing one endpoint.
type Result struct {
	Endpoint *registry.Endpoint `json:"endpoint"`
	// Slowest holds up to TopK samples, slowest first.
	Slowest  []Sample      `json:"slowest"`
	Probes   int           `json:"probes"`
	Failures int           `json:"failures"`
	Duration time.Duration `json:"duration"`
}

// Payloads returns the payloads of the slowest samples in rank order.
func (r *Result) Payloads() []payload.Payload {
	return Payloads(r.Slowest)
}

// Fuzzer probes endpoints one request at a time.
type Fuzzer struct {
	prober   Prober
	corpus   *corpus.Corpus
	config   Config
	throttle *ratelimit.Throttle
	log      *logger.Logger
	metrics  *metrics.Collector
	now      func() time.Time

	// sent counts probes across all Fuzz calls so the pause also
	// separates the last probe of one endpoint from the first of the next.
	sent int
}

// New creates a fuzzer. A nil corpus selects corpus.Default; log and m may be nil.
func New(prober Prober, c *corpus.Corpus, config Config, log *logger.Logger, m *metrics.Collector) *Fuzzer {
	if c == nil {
		c = corpus.Default()
	}
	if config.Trials < 1 {
		config.Trials = 1
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Fuzzer{
		prober:   prober,
		corpus:   c,
		config:   config,
		throttle: ratelimit.NewThrottle(config.Delay, config.RequestsPerSecond, 1),
		log:      log.WithComponent("fuzz"),
		metrics:  m,
		now:      time.Now,
	}
}

// Fuzz substitutes every corpus value of the matching kind into every
// schema field of ep, one field at a time, and times Trials probes of each
// payload. Probe failures are recorded as samples. The returned result
// holds the TopK slowest samples.
//
// When ctx ends the error is the context error and the result ranks the
// samples taken so far.
func (f *Fuzzer) Fuzz(ctx context.Context, ep *registry.Endpoint) (*Result, error) {
	start := f.now()
	log := f.log.WithEndpoint(ep.Method, ep.URL)

	var samples []Sample
	result := &Result{Endpoint: ep}
	finish := func() *Result {
		result.Slowest = Rank(samples, f.config.TopK, f.config.Dedup)
		result.Duration = f.now().Sub(start)
		return result
	}

	planned := 0
	for _, kind := range ep.Schema {
		planned += f.corpus.Len(kind) * f.config.Trials
	}
	log.Debugf("Fuzzing %d fields with %d planned probes", len(ep.Schema), planned)

	for _, field := range ep.Schema.Fields() {
		kind := ep.Schema[field]
		for _, value := range f.corpus.Values(kind) {
			candidate := ep.Payload.With(field, value)

			for trial := 0; trial < f.config.Trials; trial++ {
				if f.sent > 0 {
					if err := f.throttle.Wait(ctx); err != nil {
						return finish(), err
					}
				}

				sample, ok := f.probe(ctx, ep, field, candidate)
				if !ok {
					return finish(), ctx.Err()
				}
				f.sent++
				result.Probes++
				if sample.Err != nil {
					result.Failures++
				}
				samples = append(samples, sample)
			}
		}
	}

	finish()
	for i, s := range result.Slowest {
		log.SlowPayloadEvent(ep.Method, ep.URL, i+1, s.Elapsed, s.Payload)
	}
	return result, nil
}

// probe sends one payload. ok is false when ctx ended during the probe,
// in which case the timing is discarded.
func (f *Fuzzer) probe(ctx context.Context, ep *registry.Endpoint, field string, p payload.Payload) (Sample, bool) {
	began := f.now()
	status, err := f.prober.Probe(ctx, ep.Method, ep.URL, p)
	elapsed := f.now().Sub(began)

	if ctx.Err() != nil {
		return Sample{}, false
	}

	errType := ""
	if err != nil {
		errType = scanerrors.Cause(err).String()
	}
	f.metrics.RecordProbe(elapsed, status, errType)
	f.log.ProbeEvent(ep.Method, ep.URL, field, status, elapsed, err)

	return Sample{
		Payload:    p,
		Field:      field,
		Elapsed:    elapsed,
		StatusCode: status,
		Err:        err,
	}, true
}
