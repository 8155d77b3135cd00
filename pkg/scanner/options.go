package scanner

import (
	"io"
	"time"

	"github.com/PentesterFlow/slowscope/internal/corpus"
	"github.com/PentesterFlow/slowscope/internal/crawl"
	"github.com/PentesterFlow/slowscope/internal/fuzz"
	"github.com/PentesterFlow/slowscope/internal/logger"
	"github.com/PentesterFlow/slowscope/internal/metrics"
	"github.com/PentesterFlow/slowscope/internal/output"
)

// Option is a functional option for configuring the Scanner.
type Option func(*Scanner) error

// WithTarget sets the target URL to crawl.
func WithTarget(url string) Option {
	return func(s *Scanner) error {
		s.config.Target = url
		return nil
	}
}

// WithMaxDepth sets the maximum crawl depth.
func WithMaxDepth(depth int) Option {
	return func(s *Scanner) error {
		if depth < 1 {
			depth = 1
		}
		s.config.Crawl.MaxDepth = depth
		return nil
	}
}

// WithMaxPages bounds the number of pages rendered. Zero removes the bound.
func WithMaxPages(n int) Option {
	return func(s *Scanner) error {
		if n < 0 {
			n = 0
		}
		s.config.Crawl.MaxPages = n
		return nil
	}
}

// WithCrawlDelay sets the pause before every child page render.
func WithCrawlDelay(d time.Duration) Option {
	return func(s *Scanner) error {
		s.config.Crawl.Delay = d
		return nil
	}
}

// WithExcludePatterns adds link patterns that are never followed.
func WithExcludePatterns(patterns ...string) Option {
	return func(s *Scanner) error {
		s.config.Crawl.ExcludePatterns = append(s.config.Crawl.ExcludePatterns, patterns...)
		return nil
	}
}

// WithTrials sets the number of probes per payload.
func WithTrials(n int) Option {
	return func(s *Scanner) error {
		if n < 1 {
			n = 1
		}
		s.config.Fuzz.Trials = n
		return nil
	}
}

// WithTopK sets how many of the slowest payloads are kept per endpoint.
func WithTopK(k int) Option {
	return func(s *Scanner) error {
		if k < 1 {
			k = 1
		}
		s.config.Fuzz.TopK = k
		return nil
	}
}

// WithDedup enables/disables payload de-duplication before ranking.
func WithDedup(enabled bool) Option {
	return func(s *Scanner) error {
		s.config.Fuzz.DedupPayloads = enabled
		return nil
	}
}

// WithProbeDelay sets the pause between consecutive probes.
func WithProbeDelay(d time.Duration) Option {
	return func(s *Scanner) error {
		s.config.Fuzz.Delay = d
		return nil
	}
}

// WithRateLimit caps probes per second. Zero removes the cap.
func WithRateLimit(rps float64) Option {
	return func(s *Scanner) error {
		s.config.Fuzz.RequestsPerSecond = rps
		return nil
	}
}

// WithSeed sets the seed of the generated object values.
func WithSeed(seed int64) Option {
	return func(s *Scanner) error {
		s.config.Fuzz.Seed = seed
		return nil
	}
}

// WithProbeTimeout sets the per-probe timeout.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(s *Scanner) error {
		s.config.HTTP.Timeout = timeout
		return nil
	}
}

// WithHeadless enables/disables headless mode.
func WithHeadless(headless bool) Option {
	return func(s *Scanner) error {
		s.config.Browser.Headless = headless
		return nil
	}
}

// WithUserAgent sets the user agent of the browser.
func WithUserAgent(ua string) Option {
	return func(s *Scanner) error {
		s.config.Browser.UserAgent = ua
		return nil
	}
}

// WithBrowserControlURL connects to a running browser instead of launching one.
func WithBrowserControlURL(controlURL string) Option {
	return func(s *Scanner) error {
		s.config.Browser.ControlURL = controlURL
		return nil
	}
}

// WithCustomHeaders sets custom headers for all requests.
func WithCustomHeaders(headers map[string]string) Option {
	return func(s *Scanner) error {
		if s.config.CustomHeaders == nil {
			s.config.CustomHeaders = make(map[string]string)
		}
		for k, v := range headers {
			s.config.CustomHeaders[k] = v
		}
		return nil
	}
}

// WithInterval sets the request interval written into descriptors.
func WithInterval(d time.Duration) Option {
	return func(s *Scanner) error {
		s.config.Descriptor.Interval = d
		return nil
	}
}

// WithProxyPlaceholder sets the proxy list placeholder of descriptors.
func WithProxyPlaceholder(placeholder string) Option {
	return func(s *Scanner) error {
		s.config.Descriptor.ProxyPlaceholder = placeholder
		return nil
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(s *Scanner) error {
		s.outputWriter = w
		return nil
	}
}

// WithOutputFile sets the output file path.
func WithOutputFile(path string) Option {
	return func(s *Scanner) error {
		s.config.Output.FilePath = path
		return nil
	}
}

// WithPrettyOutput enables/disables pretty JSON output.
func WithPrettyOutput(pretty bool) Option {
	return func(s *Scanner) error {
		s.config.Output.Pretty = pretty
		return nil
	}
}

// WithStreamMode enables streaming output mode.
func WithStreamMode(stream bool) Option {
	return func(s *Scanner) error {
		s.config.Output.Stream = stream
		return nil
	}
}

// WithReportOutput writes the full report instead of the descriptor array.
func WithReportOutput(report bool) Option {
	return func(s *Scanner) error {
		if report {
			s.config.Output.Format = output.FormatReport
		} else {
			s.config.Output.Format = output.FormatDescriptors
		}
		return nil
	}
}

// WithStateFile sets the state file path for persistence.
func WithStateFile(path string) Option {
	return func(s *Scanner) error {
		s.config.State.FilePath = path
		return nil
	}
}

// WithVerbose enables/disables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(s *Scanner) error {
		s.config.Verbose = verbose
		return nil
	}
}

// WithDebug enables/disables debug mode.
func WithDebug(debug bool) Option {
	return func(s *Scanner) error {
		s.config.Debug = debug
		return nil
	}
}

// WithJSONLogs switches log output to JSON lines.
func WithJSONLogs(enabled bool) Option {
	return func(s *Scanner) error {
		s.config.JSONLogs = enabled
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scanner) error {
		s.logger = l
		return nil
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Scanner) error {
		s.metrics = m
		return nil
	}
}

// WithRenderer replaces the headless browser. The scanner does not close it.
func WithRenderer(r crawl.Renderer) Option {
	return func(s *Scanner) error {
		s.renderer = r
		return nil
	}
}

// WithProber replaces the HTTP probe client.
func WithProber(p fuzz.Prober) Option {
	return func(s *Scanner) error {
		s.prober = p
		return nil
	}
}

// WithCorpus replaces the edge-case corpus.
func WithCorpus(c *corpus.Corpus) Option {
	return func(s *Scanner) error {
		s.corpus = c
		return nil
	}
}

// WithConfig sets the entire configuration.
func WithConfig(config *Config) Option {
	return func(s *Scanner) error {
		s.config = config
		return nil
	}
}
