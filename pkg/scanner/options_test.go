package scanner

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/PentesterFlow/slowscope/internal/corpus"
	"github.com/PentesterFlow/slowscope/internal/logger"
	"github.com/PentesterFlow/slowscope/internal/metrics"
	"github.com/PentesterFlow/slowscope/internal/output"
)

func TestNew_Defaults(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.logger == nil || s.metrics == nil || s.corpus == nil {
		t.Error("New() should fill logger, metrics and corpus")
	}
	if s.corpus != corpus.Default() {
		t.Error("without a seed the shared corpus should be used")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(WithTarget("not a url")); err == nil {
		t.Error("New() should reject an invalid target")
	}
}

func TestNew_OptionError(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(func(*Scanner) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("New() error = %v, want wrapped option error", err)
	}
}

func TestOptions(t *testing.T) {
	var out bytes.Buffer
	m := metrics.New()
	l := logger.Nop()

	s, err := New(
		WithTarget("http://localhost:3000/"),
		WithMaxDepth(4),
		WithMaxPages(50),
		WithCrawlDelay(time.Second),
		WithExcludePatterns("logout", "admin"),
		WithTrials(2),
		WithTopK(5),
		WithDedup(true),
		WithProbeDelay(10*time.Millisecond),
		WithRateLimit(20),
		WithSeed(42),
		WithProbeTimeout(5*time.Second),
		WithHeadless(false),
		WithUserAgent("test-agent"),
		WithBrowserControlURL("ws://127.0.0.1:9222"),
		WithCustomHeaders(map[string]string{"X-A": "1"}),
		WithCustomHeaders(map[string]string{"X-B": "2"}),
		WithInterval(250*time.Millisecond),
		WithProxyPlaceholder("{{proxies}}"),
		WithOutput(&out),
		WithOutputFile("out.json"),
		WithPrettyOutput(false),
		WithStateFile("scan.db"),
		WithVerbose(true),
		WithDebug(true),
		WithJSONLogs(true),
		WithLogger(l),
		WithMetrics(m),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	c := s.Config()
	if c.Crawl.MaxDepth != 4 || c.Crawl.MaxPages != 50 || c.Crawl.Delay != time.Second {
		t.Errorf("Crawl = %+v", c.Crawl)
	}
	if len(c.Crawl.ExcludePatterns) != 2 {
		t.Errorf("ExcludePatterns = %v", c.Crawl.ExcludePatterns)
	}
	if c.Fuzz.Trials != 2 || c.Fuzz.TopK != 5 || !c.Fuzz.DedupPayloads {
		t.Errorf("Fuzz = %+v", c.Fuzz)
	}
	if c.Fuzz.Delay != 10*time.Millisecond || c.Fuzz.RequestsPerSecond != 20 || c.Fuzz.Seed != 42 {
		t.Errorf("Fuzz throttling = %+v", c.Fuzz)
	}
	if c.HTTP.Timeout != 5*time.Second {
		t.Errorf("HTTP.Timeout = %v", c.HTTP.Timeout)
	}
	if c.Browser.Headless || c.Browser.UserAgent != "test-agent" || c.Browser.ControlURL == "" {
		t.Errorf("Browser = %+v", c.Browser)
	}
	if len(c.CustomHeaders) != 2 {
		t.Errorf("CustomHeaders = %v, want both merged", c.CustomHeaders)
	}
	if c.Descriptor.Interval != 250*time.Millisecond || c.Descriptor.ProxyPlaceholder != "{{proxies}}" {
		t.Errorf("Descriptor = %+v", c.Descriptor)
	}
	if c.Output.FilePath != "out.json" || c.Output.Pretty {
		t.Errorf("Output = %+v", c.Output)
	}
	if c.State.FilePath != "scan.db" {
		t.Errorf("State = %+v", c.State)
	}
	if !c.Verbose || !c.Debug || !c.JSONLogs {
		t.Error("logging flags not applied")
	}
	if s.logger != l || s.Metrics() != m || s.outputWriter != &out {
		t.Error("injected collaborators not applied")
	}
	if s.corpus == corpus.Default() {
		t.Error("a seed should build a dedicated corpus")
	}
}

func TestOptions_Clamp(t *testing.T) {
	s, err := New(WithMaxDepth(0), WithMaxPages(-5), WithTrials(-1), WithTopK(0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c := s.Config()
	if c.Crawl.MaxDepth != 1 || c.Crawl.MaxPages != 0 || c.Fuzz.Trials != 1 || c.Fuzz.TopK != 1 {
		t.Errorf("clamped config = %+v / %+v", c.Crawl, c.Fuzz)
	}
}

func TestWithReportOutput(t *testing.T) {
	s, err := New(WithReportOutput(true))
	if err != nil {
		t.Fatal(err)
	}
	if s.Config().Output.Format != output.FormatReport {
		t.Errorf("Format = %q, want report", s.Config().Output.Format)
	}

	s, err = New(WithReportOutput(true), WithReportOutput(false))
	if err != nil {
		t.Fatal(err)
	}
	if s.Config().Output.Format != output.FormatDescriptors {
		t.Errorf("Format = %q, want descriptors", s.Config().Output.Format)
	}
}

func TestWithConfig(t *testing.T) {
	config := DefaultConfig()
	config.Fuzz.TopK = 8

	s, err := New(WithConfig(config), WithTrials(3))
	if err != nil {
		t.Fatal(err)
	}
	if s.Config().Fuzz.TopK != 8 || s.Config().Fuzz.Trials != 3 {
		t.Errorf("Fuzz = %+v", s.Config().Fuzz)
	}
}
