package output

import (
	"time"

	"github.com/PentesterFlow/slowscope/internal/descriptor"
	"github.com/PentesterFlow/slowscope/internal/metrics"
	"github.com/PentesterFlow/slowscope/internal/payload"
	"github.com/PentesterFlow/slowscope/internal/schema"
)

// Report is the complete result of a scan.
type Report struct {
	ID          string                  `json:"id"`
	Target      string                  `json:"target"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt time.Time               `json:"completed_at,omitempty"`
	Endpoints   []EndpointReport        `json:"endpoints"`
	Descriptors []descriptor.Descriptor `json:"descriptors"`
	Stats       *metrics.Snapshot       `json:"stats,omitempty"`
	Cancelled   bool                    `json:"cancelled,omitempty"`
}

// EndpointReport describes one endpoint and its slowest payloads.
type EndpointReport struct {
	Method         string          `json:"method"`
	URL            string          `json:"url"`
	DiscoveredFrom string          `json:"discovered_from,omitempty"`
	Payload        payload.Payload `json:"payload"`
	Schema         schema.Schema   `json:"schema"`
	Probes         int             `json:"probes"`
	Failures       int             `json:"failures"`
	Slowest        []SlowPayload   `json:"slowest,omitempty"`
}

// SlowPayload is one ranked payload.
type SlowPayload struct {
	Rank       int             `json:"rank"`
	Field      string          `json:"field"`
	ElapsedMs  float64         `json:"elapsed_ms"`
	StatusCode int             `json:"status_code,omitempty"`
	Error      string          `json:"error,omitempty"`
	Payload    payload.Payload `json:"payload"`
}
