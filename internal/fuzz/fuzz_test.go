package fuzz

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PentesterFlow/slowscope/internal/corpus"
	scanerrors "github.com/PentesterFlow/slowscope/internal/errors"
	"github.com/PentesterFlow/slowscope/internal/metrics"
	"github.com/PentesterFlow/slowscope/internal/payload"
	"github.com/PentesterFlow/slowscope/internal/registry"
	"github.com/PentesterFlow/slowscope/internal/schema"
)

// fakeClock is advanced by the fake prober so timings are exact.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

type call struct {
	method  string
	url     string
	payload payload.Payload
}

// fakeProber takes latency(p) of simulated time per probe.
type fakeProber struct {
	clock   *fakeClock
	latency func(p payload.Payload) time.Duration
	fail    func(p payload.Payload) error
	calls   []call
	onProbe func(n int)
}

func (f *fakeProber) Probe(ctx context.Context, method, url string, p payload.Payload) (int, error) {
	f.calls = append(f.calls, call{method, url, p})
	if f.onProbe != nil {
		f.onProbe(len(f.calls))
	}
	if f.latency != nil {
		f.clock.t = f.clock.t.Add(f.latency(p))
	}
	if f.fail != nil {
		if err := f.fail(p); err != nil {
			return 400, err
		}
	}
	return 200, nil
}

func isWhitespace(v any) bool {
	s, ok := v.(string)
	return ok && s != "" && strings.TrimSpace(s) == ""
}

func newTestFuzzer(p *fakeProber, cfg Config, m *metrics.Collector) *Fuzzer {
	f := New(p, corpus.Default(), cfg, nil, m)
	f.now = p.clock.now
	return f
}

func loginEndpoint() *registry.Endpoint {
	return &registry.Endpoint{
		Key:     "http://localhost:3000/api/login",
		URL:     "http://localhost:3000/api/login",
		Method:  "POST",
		Payload: payload.Payload{"login": "", "password": ""},
		Schema:  schema.Schema{"login": schema.KindString, "password": schema.KindString},
	}
}

// =============================================================================
// Fuzz Tests
// =============================================================================

func TestFuzz_ProbeCount(t *testing.T) {
	p := &fakeProber{clock: &fakeClock{}}
	cfg := Config{Trials: 5, TopK: 3}

	result, err := newTestFuzzer(p, cfg, nil).Fuzz(context.Background(), loginEndpoint())
	if err != nil {
		t.Fatalf("Fuzz() error = %v", err)
	}

	want := 2 * corpus.Default().Len(schema.KindString) * 5
	if len(p.calls) != want || result.Probes != want {
		t.Errorf("probes = %d (result %d), want %d", len(p.calls), result.Probes, want)
	}
	if len(result.Slowest) != 3 {
		t.Errorf("len(Slowest) = %d, want 3", len(result.Slowest))
	}
	for _, c := range p.calls {
		if c.method != "POST" || c.url != "http://localhost:3000/api/login" {
			t.Fatalf("probe sent to %s %s", c.method, c.url)
		}
	}
}

func TestFuzz_SubstitutesOneFieldAtATime(t *testing.T) {
	p := &fakeProber{clock: &fakeClock{}}
	ep := loginEndpoint()
	ep.Payload = payload.Payload{"login": "admin", "password": "secret"}

	if _, err := newTestFuzzer(p, Config{Trials: 1, TopK: 1}, nil).Fuzz(context.Background(), ep); err != nil {
		t.Fatal(err)
	}

	for _, c := range p.calls {
		changed := 0
		if c.payload["login"] != "admin" {
			changed++
		}
		if c.payload["password"] != "secret" {
			changed++
		}
		if changed > 1 {
			t.Fatalf("payload %v changes more than one field", c.payload)
		}
	}
	if ep.Payload["login"] != "admin" || ep.Payload["password"] != "secret" {
		t.Errorf("base payload was mutated: %v", ep.Payload)
	}
}

func TestFuzz_KeepsSlowest(t *testing.T) {
	clock := &fakeClock{}
	p := &fakeProber{
		clock: clock,
		latency: func(p payload.Payload) time.Duration {
			if isWhitespace(p["q"]) {
				return 2 * time.Second
			}
			return 10 * time.Millisecond
		},
	}
	ep := &registry.Endpoint{
		URL:     "http://x/search",
		Method:  "GET",
		Payload: payload.Payload{"q": "a"},
		Schema:  schema.Schema{"q": schema.KindString},
	}

	result, err := newTestFuzzer(p, Config{Trials: 5, TopK: 3}, nil).Fuzz(context.Background(), ep)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Slowest) != 3 {
		t.Fatalf("len(Slowest) = %d, want 3", len(result.Slowest))
	}
	// without dedup, repeated trials of the same payload fill the top places
	for i, s := range result.Slowest {
		if s.Elapsed != 2*time.Second {
			t.Errorf("Slowest[%d].Elapsed = %v, want 2s", i, s.Elapsed)
		}
		if !isWhitespace(s.Payload["q"]) {
			t.Errorf("Slowest[%d] payload = %v", i, s.Payload)
		}
	}
}

func TestFuzz_DedupPayloads(t *testing.T) {
	clock := &fakeClock{}
	p := &fakeProber{
		clock: clock,
		latency: func(p payload.Payload) time.Duration {
			if isWhitespace(p["q"]) {
				return 2 * time.Second
			}
			return time.Duration(len(p.Key())) * time.Millisecond
		},
	}
	ep := &registry.Endpoint{
		URL:     "http://x/search",
		Method:  "GET",
		Payload: payload.Payload{"q": "a"},
		Schema:  schema.Schema{"q": schema.KindString},
	}

	result, err := newTestFuzzer(p, Config{Trials: 5, TopK: 3, Dedup: true}, nil).Fuzz(context.Background(), ep)
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for _, s := range result.Slowest {
		if seen[s.Payload.Key()] {
			t.Errorf("payload %s ranked twice", s.Payload.Key())
		}
		seen[s.Payload.Key()] = true
	}
	if len(result.Slowest) != 3 {
		t.Errorf("len(Slowest) = %d, want 3", len(result.Slowest))
	}
}

func TestFuzz_FailuresAreSamples(t *testing.T) {
	p := &fakeProber{
		clock:   &fakeClock{},
		latency: func(payload.Payload) time.Duration { return time.Millisecond },
		fail: func(payload.Payload) error {
			return scanerrors.NewProbeFailure("http://x", scanerrors.CategorizeHTTPStatus(400, "http://x"))
		},
	}
	m := metrics.New()

	result, err := newTestFuzzer(p, Config{Trials: 2, TopK: 3}, m).Fuzz(context.Background(), loginEndpoint())
	if err != nil {
		t.Fatalf("Fuzz() error = %v, failures must not abort", err)
	}
	if result.Failures != result.Probes {
		t.Errorf("Failures = %d, Probes = %d", result.Failures, result.Probes)
	}
	if len(result.Slowest) != 3 {
		t.Errorf("len(Slowest) = %d, want 3", len(result.Slowest))
	}
	if result.Slowest[0].StatusCode != 400 || result.Slowest[0].Err == nil {
		t.Errorf("failed sample = %+v", result.Slowest[0])
	}

	snap := m.Snapshot()
	if snap.ProbeFailures != int64(result.Probes) {
		t.Errorf("ProbeFailures = %d", snap.ProbeFailures)
	}
	if snap.ErrorCounts["client_error"] != int64(result.Probes) {
		t.Errorf("ErrorCounts = %v", snap.ErrorCounts)
	}
}

func TestFuzz_EmptySchema(t *testing.T) {
	p := &fakeProber{clock: &fakeClock{}}
	ep := &registry.Endpoint{URL: "http://x/ping", Method: "GET", Payload: payload.Payload{}, Schema: schema.Schema{}}

	result, err := newTestFuzzer(p, DefaultConfig(), nil).Fuzz(context.Background(), ep)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 0 || len(result.Slowest) != 0 {
		t.Errorf("empty schema should not probe: calls=%d slowest=%d", len(p.calls), len(result.Slowest))
	}
}

func TestFuzz_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProber{clock: &fakeClock{}}
	p.onProbe = func(n int) {
		if n == 4 {
			cancel()
		}
	}

	result, err := newTestFuzzer(p, Config{Trials: 5, TopK: 3}, nil).Fuzz(ctx, loginEndpoint())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Fuzz() error = %v, want context.Canceled", err)
	}
	if result.Probes != 3 {
		t.Errorf("Probes = %d, want the 3 completed before cancellation", result.Probes)
	}
	if len(result.Slowest) != 3 {
		t.Errorf("partial result should still be ranked, got %d", len(result.Slowest))
	}
}

func TestFuzz_AwaitsDelay(t *testing.T) {
	p := &fakeProber{clock: &fakeClock{}}
	ep := &registry.Endpoint{
		URL:     "http://x/flag",
		Method:  "GET",
		Payload: payload.Payload{"on": "true"},
		Schema:  schema.Schema{"on": schema.KindBoolean},
	}
	f := newTestFuzzer(p, Config{Trials: 2, TopK: 1, Delay: 20 * time.Millisecond}, nil)

	start := time.Now()
	if _, err := f.Fuzz(context.Background(), ep); err != nil {
		t.Fatal(err)
	}
	// 2 values x 2 trials = 4 probes, 3 pauses between them
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("Fuzz() took %v, want at least 60ms of pauses", elapsed)
	}
}

func TestFuzz_DelayBetweenEndpoints(t *testing.T) {
	var sentAt []time.Time
	p := &fakeProber{clock: &fakeClock{}}
	p.onProbe = func(int) { sentAt = append(sentAt, time.Now()) }

	flag := func(path string) *registry.Endpoint {
		return &registry.Endpoint{
			URL:     "http://x" + path,
			Method:  "GET",
			Payload: payload.Payload{"on": "true"},
			Schema:  schema.Schema{"on": schema.KindBoolean},
		}
	}
	f := newTestFuzzer(p, Config{Trials: 1, TopK: 1, Delay: 30 * time.Millisecond}, nil)

	for _, ep := range []*registry.Endpoint{flag("/a"), flag("/b")} {
		if _, err := f.Fuzz(context.Background(), ep); err != nil {
			t.Fatal(err)
		}
	}

	// 2 boolean values per endpoint; call 3 is the first probe of /b
	if len(sentAt) != 4 {
		t.Fatalf("calls = %d, want 4", len(sentAt))
	}
	if gap := sentAt[2].Sub(sentAt[1]); gap < 30*time.Millisecond {
		t.Errorf("gap between endpoints = %v, want at least 30ms", gap)
	}
	if p.calls[2].url != "http://x/b" {
		t.Errorf("third call = %s, want the second endpoint", p.calls[2].url)
	}
}

func TestDefaultConfig_ProbeDelay(t *testing.T) {
	if got := DefaultConfig().Delay; got != 100*time.Millisecond {
		t.Errorf("DefaultConfig().Delay = %v, want 100ms", got)
	}
}

// =============================================================================
// Rank Tests
// =============================================================================

func samplesOf(ms ...int) []Sample {
	out := make([]Sample, len(ms))
	for i, v := range ms {
		out[i] = Sample{
			Payload: payload.Payload{"i": float64(i)},
			Elapsed: time.Duration(v) * time.Millisecond,
		}
	}
	return out
}

func TestRank_LengthAndOrder(t *testing.T) {
	tests := []struct {
		name string
		ms   []int
		k    int
		want int
	}{
		{"fewer than k", []int{5, 1}, 3, 2},
		{"exactly k", []int{5, 1, 3}, 3, 3},
		{"more than k", []int{5, 1, 3, 9, 7}, 3, 3},
		{"empty", nil, 3, 0},
		{"k zero", []int{1, 2}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rank(samplesOf(tt.ms...), tt.k, false)
			if len(got) != tt.want {
				t.Fatalf("len(Rank()) = %d, want %d", len(got), tt.want)
			}
			for i := 1; i < len(got); i++ {
				if got[i].Elapsed > got[i-1].Elapsed {
					t.Errorf("Rank() not non-increasing at %d: %v > %v", i, got[i].Elapsed, got[i-1].Elapsed)
				}
			}
		})
	}
}

func TestRank_PicksLargest(t *testing.T) {
	got := Rank(samplesOf(5, 1, 3, 9, 7), 3, false)
	want := []time.Duration{9, 7, 5}
	for i := range want {
		if got[i].Elapsed != want[i]*time.Millisecond {
			t.Errorf("Rank()[%d] = %v, want %vms", i, got[i].Elapsed, want[i])
		}
	}
}

func TestRank_StableOnTies(t *testing.T) {
	got := Rank(samplesOf(4, 4, 4), 2, false)
	if got[0].Payload["i"] != 0.0 || got[1].Payload["i"] != 1.0 {
		t.Errorf("ties should keep probe order: %v, %v", got[0].Payload, got[1].Payload)
	}
}

func TestRank_DoesNotModifyInput(t *testing.T) {
	in := samplesOf(1, 2, 3)
	Rank(in, 2, true)
	if in[0].Elapsed != time.Millisecond || in[2].Elapsed != 3*time.Millisecond {
		t.Error("Rank() reordered its input")
	}
}

func TestRank_Dedup(t *testing.T) {
	same := payload.Payload{"q": "x"}
	samples := []Sample{
		{Payload: same, Elapsed: 9 * time.Millisecond},
		{Payload: same, Elapsed: 8 * time.Millisecond},
		{Payload: payload.Payload{"q": "y"}, Elapsed: 1 * time.Millisecond},
	}

	if got := Rank(samples, 2, false); got[1].Payload["q"] != "x" {
		t.Error("without dedup the repeated payload should take both places")
	}

	got := Rank(samples, 2, true)
	if len(got) != 2 || got[0].Payload["q"] != "x" || got[1].Payload["q"] != "y" {
		t.Errorf("Rank(dedup) = %+v", got)
	}
	if got[0].Elapsed != 9*time.Millisecond {
		t.Error("dedup should keep the slowest occurrence")
	}
}

func TestPayloads(t *testing.T) {
	r := &Result{Slowest: samplesOf(3, 2)}
	ps := r.Payloads()
	if len(ps) != 2 || ps[0]["i"] != 0.0 || ps[1]["i"] != 1.0 {
		t.Errorf("Payloads() = %v", ps)
	}
}
