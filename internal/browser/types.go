package browser

import "time"

// Config defines renderer configuration.
type Config struct {
	Headless          bool              `json:"headless" yaml:"headless"`
	Timeout           time.Duration     `json:"timeout" yaml:"timeout"`
	SettleTime        time.Duration     `json:"settle_time" yaml:"settle_time"`
	UserAgent         string            `json:"user_agent" yaml:"user_agent"`
	ViewportWidth     int               `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int               `json:"viewport_height" yaml:"viewport_height"`
	IgnoreHTTPSErrors bool              `json:"ignore_https_errors" yaml:"ignore_https_errors"`
	BlockedTypes      []string          `json:"blocked_resource_types" yaml:"blocked_resource_types"`
	CaptureTypes      []string          `json:"capture_resource_types" yaml:"capture_resource_types"`
	Headers           map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// ControlURL connects to a running browser instead of launching one.
	ControlURL string `json:"control_url,omitempty" yaml:"control_url,omitempty"`
}

// DefaultBlockedTypes are static assets that are aborted instead of fetched.
var DefaultBlockedTypes = []string{"stylesheet", "font", "image", "media"}

// DefaultCaptureTypes are the resource types recorded as API traffic.
var DefaultCaptureTypes = []string{"xhr", "fetch"}

// DefaultConfig returns default renderer configuration.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		Timeout:           30 * time.Second,
		SettleTime:        200 * time.Millisecond,
		UserAgent:         "slowscope/1.0 (Latency Scanner)",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		IgnoreHTTPSErrors: true,
		BlockedTypes:      append([]string(nil), DefaultBlockedTypes...),
		CaptureTypes:      append([]string(nil), DefaultCaptureTypes...),
	}
}

// NetworkRequest represents an intercepted network request.
type NetworkRequest struct {
	URL          string
	Method       string
	Headers      map[string]string
	PostData     string
	ResourceType string
	Timestamp    time.Time
}

// RenderResult is what a single page render produced.
type RenderResult struct {
	URL      string
	Requests []NetworkRequest
	// Links holds the raw href of every anchor, in document order.
	Links    []string
	Aborted  int
	Duration time.Duration
}
