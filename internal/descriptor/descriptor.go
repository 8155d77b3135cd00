// Package descriptor turns slow payloads into load-test descriptors.
package descriptor

import (
	"strings"
	"time"

	probehttp "github.com/PentesterFlow/slowscope/internal/http"
	"github.com/PentesterFlow/slowscope/internal/payload"
	"github.com/PentesterFlow/slowscope/internal/registry"
)

// DefaultProxyPlaceholder is substituted by the load-test tool with its proxy pool.
const DefaultProxyPlaceholder = "{{proxy_urls}}"

// DefaultInterval is the issuance interval written into descriptors.
const DefaultInterval = 100 * time.Millisecond

// Descriptor is one load-test configuration record.
type Descriptor struct {
	Type   string `json:"type"`
	Args   Args   `json:"args"`
	Client Client `json:"client"`
}

// Args describes the request the load-test tool issues.
type Args struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
	// Body is set for non-read methods only.
	Body       any   `json:"body,omitempty"`
	IntervalMs int64 `json:"interval_ms"`
}

// Client carries load-generator settings.
type Client struct {
	ProxyURLs string `json:"proxy_urls"`
}

// Generator builds descriptors.
type Generator struct {
	Headers          map[string]string
	Interval         time.Duration
	ProxyPlaceholder string
}

// NewGenerator creates a generator with the cache-busting headers plus extra.
func NewGenerator(interval time.Duration, proxyPlaceholder string, extra map[string]string) *Generator {
	headers := probehttp.CacheBustingHeaders()
	for k, v := range extra {
		headers[k] = v
	}
	if proxyPlaceholder == "" {
		proxyPlaceholder = DefaultProxyPlaceholder
	}
	return &Generator{
		Headers:          headers,
		Interval:         interval,
		ProxyPlaceholder: proxyPlaceholder,
	}
}

// Generate converts one winning payload of ep into a descriptor. Read
// methods carry the payload in the query string, others in the body.
func (g *Generator) Generate(ep *registry.Endpoint, p payload.Payload) Descriptor {
	headers := make(map[string]string, len(g.Headers))
	for k, v := range g.Headers {
		headers[k] = v
	}

	args := Args{
		Method:     ep.Method,
		Path:       ep.URL,
		Headers:    headers,
		IntervalMs: g.Interval.Milliseconds(),
	}

	if ep.IsRead() {
		if query := p.Encode(); query != "" {
			sep := "?"
			if strings.Contains(args.Path, "?") {
				sep = "&"
			}
			args.Path += sep + query
		}
	} else {
		body := p.Clone()
		args.Body = body
	}

	return Descriptor{
		Type:   "http",
		Args:   args,
		Client: Client{ProxyURLs: g.ProxyPlaceholder},
	}
}

// GenerateAll converts every payload of ep, preserving order.
func (g *Generator) GenerateAll(ep *registry.Endpoint, payloads []payload.Payload) []Descriptor {
	out := make([]Descriptor, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, g.Generate(ep, p))
	}
	return out
}
