package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/PentesterFlow/slowscope/internal/browser"
	"github.com/PentesterFlow/slowscope/internal/corpus"
	"github.com/PentesterFlow/slowscope/internal/crawl"
	"github.com/PentesterFlow/slowscope/internal/descriptor"
	"github.com/PentesterFlow/slowscope/internal/fuzz"
	probehttp "github.com/PentesterFlow/slowscope/internal/http"
	"github.com/PentesterFlow/slowscope/internal/logger"
	"github.com/PentesterFlow/slowscope/internal/metrics"
	"github.com/PentesterFlow/slowscope/internal/output"
	"github.com/PentesterFlow/slowscope/internal/progress"
	"github.com/PentesterFlow/slowscope/internal/registry"
	"github.com/PentesterFlow/slowscope/internal/scope"
	"github.com/PentesterFlow/slowscope/internal/state"
)

// ErrNoTarget is returned when a crawl is requested without a target URL.
var ErrNoTarget = errors.New("target URL is required")

// ErrNoState is returned when stored endpoints are requested without a state file.
var ErrNoState = errors.New("state file is required")

// ErrNoDescriptors is returned when the state file holds no descriptors for
// the requested scan.
var ErrNoDescriptors = errors.New("no stored descriptors")

// Scanner runs the crawl and fuzz phases. A Scanner runs one phase at a
// time; it is not safe for concurrent use.
type Scanner struct {
	config       *Config
	renderer     crawl.Renderer
	prober       fuzz.Prober
	corpus       *corpus.Corpus
	outputWriter io.Writer
	logger       *logger.Logger
	metrics      *metrics.Collector
	progress     *progress.Display
}

// New creates a new scanner with the given options.
func New(opts ...Option) (*Scanner, error) {
	s := &Scanner{
		config: DefaultConfig(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if s.logger == nil {
		logLevel := logger.WarnLevel
		if s.config.Debug {
			logLevel = logger.DebugLevel
		} else if s.config.Verbose {
			logLevel = logger.InfoLevel
		}
		if s.config.LogLevel != "" {
			// checked by Validate
			logLevel, _ = logger.ParseLevel(s.config.LogLevel)
		}
		s.logger = logger.New(logger.Config{
			Level:     logLevel,
			Pretty:    !s.config.JSONLogs,
			Component: "scanner",
		})
	}

	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	if s.corpus == nil {
		if s.config.Fuzz.Seed != 0 {
			s.corpus = corpus.New(rand.New(rand.NewSource(s.config.Fuzz.Seed)))
		} else {
			s.corpus = corpus.Default()
		}
	}

	return s, nil
}

// Config returns the scanner configuration.
func (s *Scanner) Config() *Config {
	return s.config
}

// Metrics returns the metrics collector.
func (s *Scanner) Metrics() *metrics.Collector {
	return s.metrics
}

// SetProgress attaches a progress display updated after every fuzzed endpoint.
func (s *Scanner) SetProgress(d *progress.Display) {
	s.progress = d
}

// Run crawls the target, fuzzes every endpoint found and writes the
// descriptors of the slowest payloads. When ctx ends, whatever was produced
// so far is still written and returned with Cancelled set; the error is nil
// in that case. Errors are returned only for setup and output failures.
func (s *Scanner) Run(ctx context.Context) (*ScanResult, error) {
	session, err := s.Crawl(ctx)
	if session == nil {
		return nil, err
	}

	result := s.newResult(session.Root)
	result.StartedAt = session.StartedAt
	applySession(result, session)

	if err != nil {
		if ctx.Err() == nil {
			return result, err
		}
		result.Cancelled = true
		s.logger.Warn("Crawl interrupted, skipping fuzzing")
		return result, s.finish(result, nil)
	}

	return s.fuzzInto(ctx, result)
}

// Crawl renders the target and returns the session holding every endpoint
// observed. With a state file configured the endpoints are stored so a later
// Fuzz can reuse them. A non-nil session is returned together with a context
// error when ctx ends mid-crawl.
func (s *Scanner) Crawl(ctx context.Context) (*crawl.Session, error) {
	if s.config.Target == "" {
		return nil, ErrNoTarget
	}

	renderer := s.renderer
	if renderer == nil {
		bcfg := s.config.Browser
		bcfg.Headers = mergeHeaders(bcfg.Headers, s.config.CustomHeaders)
		r, err := browser.New(bcfg)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		renderer = r
	}

	crawler := crawl.New(renderer, crawl.Config{
		MaxDepth:     s.config.Crawl.MaxDepth,
		MaxPages:     s.config.Crawl.MaxPages,
		Delay:        s.config.Crawl.Delay,
		CaptureTypes: s.config.Browser.CaptureTypes,
		Scope:        scope.Rules{ExcludePatterns: s.config.Crawl.ExcludePatterns},
	}, s.logger, s.metrics)

	s.logger.WithURL(s.config.Target).Info("Starting crawl")
	session, err := crawler.Crawl(ctx, s.config.Target)
	if session == nil {
		return nil, err
	}

	s.logger.Infof("Crawl finished: %d pages rendered, %d endpoints",
		session.PagesRendered, session.Registry.Len())

	if s.config.State.Enabled() {
		if serr := s.saveEndpoints(session); serr != nil {
			return session, serr
		}
	}

	return session, err
}

// Fuzz probes the given endpoints and writes the resulting descriptors.
// Endpoints with an empty schema are skipped.
func (s *Scanner) Fuzz(ctx context.Context, endpoints []*registry.Endpoint) (*ScanResult, error) {
	result := s.newResult(s.config.Target)
	result.Endpoints = endpoints
	result.Stats.Endpoints = len(endpoints)
	return s.fuzzInto(ctx, result)
}

// FuzzStored fuzzes the endpoints recorded in the state file by an earlier
// crawl.
func (s *Scanner) FuzzStored(ctx context.Context) (*ScanResult, error) {
	endpoints, target, err := s.LoadEndpoints()
	if err != nil {
		return nil, err
	}
	if s.config.Target == "" {
		s.config.Target = target
	}
	return s.Fuzz(ctx, endpoints)
}

// LoadEndpoints reads the endpoints and target stored in the state file.
func (s *Scanner) LoadEndpoints() ([]*registry.Endpoint, string, error) {
	if !s.config.State.Enabled() {
		return nil, "", ErrNoState
	}

	store, err := state.NewBoltStore(s.config.State.FilePath)
	if err != nil {
		return nil, "", err
	}
	defer store.Close()

	target, err := store.LoadTarget()
	if err != nil {
		return nil, "", err
	}
	endpoints, err := store.LoadEndpoints()
	if err != nil {
		return nil, "", err
	}
	return endpoints, target, nil
}

// ExportDescriptors writes the descriptors stored for scanID, or for the
// latest scan when scanID is empty, to the configured output.
func (s *Scanner) ExportDescriptors(scanID string) ([]descriptor.Descriptor, error) {
	if !s.config.State.Enabled() {
		return nil, ErrNoState
	}

	store, err := state.NewBoltStore(s.config.State.FilePath)
	if err != nil {
		return nil, err
	}
	descriptors, err := store.LoadDescriptors(scanID)
	store.Close()
	if err != nil {
		return nil, err
	}
	if descriptors == nil {
		return nil, ErrNoDescriptors
	}

	writer, err := s.openOutput()
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	for _, d := range descriptors {
		if err := writer.WriteDescriptor(d); err != nil {
			return nil, fmt.Errorf("failed to write descriptor: %w", err)
		}
	}
	if err := writer.WriteDescriptors(descriptors); err != nil {
		return nil, fmt.Errorf("failed to write descriptors: %w", err)
	}
	return descriptors, writer.Flush()
}

func (s *Scanner) fuzzInto(ctx context.Context, result *ScanResult) (*ScanResult, error) {
	prober := s.prober
	if prober == nil {
		client, err := probehttp.New(probehttp.Config{
			Timeout:         s.config.HTTP.Timeout,
			MaxConnsPerHost: s.config.HTTP.MaxConnsPerHost,
			UserAgent:       s.config.Browser.UserAgent,
			Headers:         s.config.CustomHeaders,
			SkipTLSVerify:   s.config.HTTP.SkipTLSVerify,
			MaxBodyBytes:    s.config.HTTP.MaxBodyBytes,
		})
		if err != nil {
			return nil, err
		}
		prober = client
	}

	writer, err := s.openOutput()
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	fuzzer := fuzz.New(prober, s.corpus, fuzz.Config{
		Trials:            s.config.Fuzz.Trials,
		TopK:              s.config.Fuzz.TopK,
		Dedup:             s.config.Fuzz.DedupPayloads,
		Delay:             s.config.Fuzz.Delay,
		RequestsPerSecond: s.config.Fuzz.RequestsPerSecond,
	}, s.logger.WithField("scan_id", result.ID), s.metrics)

	generator := descriptor.NewGenerator(
		s.config.Descriptor.Interval,
		s.config.Descriptor.ProxyPlaceholder,
		s.config.CustomHeaders,
	)

	if s.progress != nil {
		s.progress.Start(len(result.Endpoints))
		defer s.progress.Stop()
	}

	for i, ep := range result.Endpoints {
		if len(ep.Schema) == 0 {
			result.Stats.Skipped++
			s.metrics.RecordEndpointSkipped()
			s.logger.WithEndpoint(ep.Method, ep.URL).Debug("No parameters to fuzz, skipping")
			s.updateProgress(i+1, result)
			continue
		}

		res, ferr := fuzzer.Fuzz(ctx, ep)
		if res != nil {
			result.Results = append(result.Results, res)
			result.Stats.Fuzzed++
			result.Stats.Probes += res.Probes
			result.Stats.ProbeFailures += res.Failures
			s.metrics.RecordEndpointFuzzed()

			for _, d := range generator.GenerateAll(ep, res.Payloads()) {
				result.Descriptors = append(result.Descriptors, d)
				if err := writer.WriteDescriptor(d); err != nil {
					return result, fmt.Errorf("failed to write descriptor: %w", err)
				}
			}
		}
		s.updateProgress(i+1, result)

		if ferr != nil {
			result.Cancelled = true
			s.logger.Warnf("Fuzzing interrupted after %d of %d endpoints", i+1, len(result.Endpoints))
			break
		}
	}

	return result, s.finish(result, writer)
}

// finish stamps the result, writes it and stores the descriptors. A nil
// writer opens the configured output.
func (s *Scanner) finish(result *ScanResult, writer output.Writer) error {
	result.CompletedAt = time.Now()
	result.Stats.Duration = result.CompletedAt.Sub(result.StartedAt)
	s.metrics.RecordDescriptors(len(result.Descriptors))
	result.Stats.Metrics = s.metrics.Snapshot()
	s.logger.StatsEvent(result.Stats.Metrics.Summary())

	if writer == nil {
		w, err := s.openOutput()
		if err != nil {
			return err
		}
		defer w.Close()
		writer = w
	}

	if s.config.Output.Format == output.FormatReport {
		if err := writer.WriteReport(result.Report()); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	} else if err := writer.WriteDescriptors(result.Descriptors); err != nil {
		return fmt.Errorf("failed to write descriptors: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	if s.config.State.Enabled() {
		return s.saveDescriptors(result)
	}
	return nil
}

func (s *Scanner) openOutput() (output.Writer, error) {
	if s.outputWriter != nil {
		return output.NewWriter(s.outputWriter, s.config.Output), nil
	}
	return output.Open(s.config.Output)
}

func (s *Scanner) saveEndpoints(session *crawl.Session) error {
	store, err := state.NewBoltStore(s.config.State.FilePath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveTarget(session.Root); err != nil {
		return err
	}
	return store.SaveEndpoints(session.Registry.Endpoints())
}

func (s *Scanner) saveDescriptors(result *ScanResult) error {
	store, err := state.NewBoltStore(s.config.State.FilePath)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.SaveDescriptors(result.ID, result.Descriptors)
}

func (s *Scanner) updateProgress(done int, result *ScanResult) {
	if s.progress == nil {
		return
	}
	snap := s.metrics.Snapshot()
	s.progress.Update(done, result.Stats.Probes, result.Stats.ProbeFailures, snap.MaxLatency)
}

func (s *Scanner) newResult(target string) *ScanResult {
	return &ScanResult{
		ID:        uuid.New().String(),
		Target:    target,
		StartedAt: time.Now(),
	}
}

func applySession(result *ScanResult, session *crawl.Session) {
	result.Endpoints = session.Registry.Endpoints()
	result.Stats.PagesRendered = session.PagesRendered
	result.Stats.RenderFailures = session.RenderFailures
	result.Stats.Truncated = session.Truncated
	result.Stats.Endpoints = len(result.Endpoints)
}

func mergeHeaders(base, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
