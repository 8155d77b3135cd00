package scanner

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/slowscope/internal/browser"
	"github.com/PentesterFlow/slowscope/internal/descriptor"
	"github.com/PentesterFlow/slowscope/internal/fuzz"
	"github.com/PentesterFlow/slowscope/internal/logger"
	"github.com/PentesterFlow/slowscope/internal/output"
)

// Config holds all scanner configuration.
type Config struct {
	// Target URL to crawl
	Target string `json:"target" yaml:"target"`

	// Crawl phase settings
	Crawl CrawlConfig `json:"crawl" yaml:"crawl"`

	// Fuzzing phase settings
	Fuzz FuzzConfig `json:"fuzz" yaml:"fuzz"`

	// Browser configuration
	Browser browser.Config `json:"browser" yaml:"browser"`

	// Probe client settings
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Load-test descriptor settings
	Descriptor DescriptorConfig `json:"descriptor" yaml:"descriptor"`

	// Output configuration
	Output output.Config `json:"output" yaml:"output"`

	// State persistence
	State StateConfig `json:"state" yaml:"state"`

	// Custom headers sent by the browser, every probe and every descriptor
	CustomHeaders map[string]string `json:"custom_headers" yaml:"custom_headers"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`

	// JSONLogs switches the log output from console to JSON lines
	JSONLogs bool `json:"json_logs" yaml:"json_logs"`

	// LogLevel overrides the level chosen by Verbose and Debug
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// CrawlConfig holds crawl phase settings.
type CrawlConfig struct {
	MaxDepth int `json:"max_depth" yaml:"max_depth"`
	// MaxPages bounds the number of renders; zero means unbounded.
	MaxPages        int           `json:"max_pages" yaml:"max_pages"`
	Delay           time.Duration `json:"delay" yaml:"delay"`
	ExcludePatterns []string      `json:"exclude_patterns,omitempty" yaml:"exclude_patterns,omitempty"`
}

// FuzzConfig holds fuzzing phase settings.
type FuzzConfig struct {
	Trials        int  `json:"trials" yaml:"trials"`
	TopK          int  `json:"top_k" yaml:"top_k"`
	DedupPayloads bool `json:"dedup_payloads" yaml:"dedup_payloads"`
	// Delay is awaited between consecutive probes.
	Delay             time.Duration `json:"delay" yaml:"delay"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	// Seed feeds the random strings of generated objects; zero keeps the
	// built-in corpus.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// HTTPConfig holds probe client settings.
type HTTPConfig struct {
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	MaxConnsPerHost int           `json:"max_conns_per_host" yaml:"max_conns_per_host"`
	SkipTLSVerify   bool          `json:"skip_tls_verify" yaml:"skip_tls_verify"`
	MaxBodyBytes    int64         `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// DescriptorConfig holds load-test descriptor settings.
type DescriptorConfig struct {
	Interval         time.Duration `json:"interval" yaml:"interval"`
	ProxyPlaceholder string        `json:"proxy_placeholder" yaml:"proxy_placeholder"`
}

// StateConfig holds state persistence configuration.
type StateConfig struct {
	FilePath string `json:"file_path" yaml:"file_path"`
}

// Enabled reports whether a state file is configured.
func (s StateConfig) Enabled() bool {
	return s.FilePath != ""
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			MaxDepth: 2,
			MaxPages: 200,
			Delay:    100 * time.Millisecond,
		},
		Fuzz: FuzzConfig{
			Trials:        5,
			TopK:          3,
			DedupPayloads: false,
			Delay:         fuzz.DefaultProbeDelay,
		},
		Browser: browser.DefaultConfig(),
		HTTP: HTTPConfig{
			Timeout:         30 * time.Second,
			MaxConnsPerHost: 4,
			SkipTLSVerify:   true,
			MaxBodyBytes:    10 * 1024 * 1024,
		},
		Descriptor: DescriptorConfig{
			Interval:         descriptor.DefaultInterval,
			ProxyPlaceholder: descriptor.DefaultProxyPlaceholder,
		},
		Output: output.Config{
			Format: output.FormatDescriptors,
			Pretty: true,
		},
	}
}

// LoadFromFile loads configuration from a file (JSON or YAML). Values not
// present in the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		config = DefaultConfig()
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file. A .json extension selects JSON,
// anything else YAML.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration. The target is optional here since
// fuzzing stored endpoints does not need one.
func (c *Config) Validate() error {
	if c.Target != "" {
		u, err := url.Parse(c.Target)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("target must be an absolute URL: %q", c.Target)
		}
	}

	if c.Crawl.MaxDepth < 1 {
		return fmt.Errorf("max depth must be at least 1")
	}

	if c.Crawl.MaxPages < 0 {
		return fmt.Errorf("max pages must not be negative")
	}

	if c.Crawl.Delay < 0 || c.Fuzz.Delay < 0 {
		return fmt.Errorf("delays must not be negative")
	}

	for _, pattern := range c.Crawl.ExcludePatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	if c.Fuzz.Trials < 1 {
		return fmt.Errorf("trials must be at least 1")
	}

	if c.Fuzz.TopK < 1 {
		return fmt.Errorf("top-k must be at least 1")
	}

	if c.Fuzz.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}

	switch c.Output.Format {
	case "", output.FormatDescriptors, output.FormatReport:
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}

	if c.Output.Stream && c.Output.Format == output.FormatReport {
		return fmt.Errorf("stream mode only applies to descriptor output")
	}

	if c.LogLevel != "" {
		if _, err := logger.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
		}
	}

	return nil
}
