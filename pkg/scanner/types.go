// Package scanner crawls a web application, fuzzes the API endpoints it
// calls and turns the slowest payloads into load-test descriptors.
package scanner

import (
	"time"

	"github.com/PentesterFlow/slowscope/internal/descriptor"
	"github.com/PentesterFlow/slowscope/internal/fuzz"
	"github.com/PentesterFlow/slowscope/internal/metrics"
	"github.com/PentesterFlow/slowscope/internal/output"
	"github.com/PentesterFlow/slowscope/internal/registry"
)

// ScanResult represents the complete result of a scan.
type ScanResult struct {
	ID          string    `json:"id"`
	Target      string    `json:"target"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Endpoints in discovery order
	Endpoints []*registry.Endpoint `json:"endpoints"`

	// Results holds one entry per fuzzed endpoint
	Results     []*fuzz.Result          `json:"results"`
	Descriptors []descriptor.Descriptor `json:"descriptors"`
	Stats       ScanStats               `json:"stats"`

	// Cancelled is set when the scan was interrupted; everything above
	// holds what was produced before that.
	Cancelled bool `json:"cancelled,omitempty"`
}

// ScanStats holds scan statistics.
type ScanStats struct {
	PagesRendered  int               `json:"pages_rendered"`
	RenderFailures int               `json:"render_failures"`
	Truncated      bool              `json:"truncated,omitempty"`
	Endpoints      int               `json:"endpoints"`
	Fuzzed         int               `json:"fuzzed"`
	Skipped        int               `json:"skipped"`
	Probes         int               `json:"probes"`
	ProbeFailures  int               `json:"probe_failures"`
	Duration       time.Duration     `json:"duration"`
	Metrics        *metrics.Snapshot `json:"metrics,omitempty"`
}

// Duration returns how long the scan ran.
func (r *ScanResult) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Report converts the result into the report written by the report output
// format.
func (r *ScanResult) Report() *output.Report {
	report := &output.Report{
		ID:          r.ID,
		Target:      r.Target,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Endpoints:   make([]output.EndpointReport, 0, len(r.Endpoints)),
		Descriptors: r.Descriptors,
		Stats:       r.Stats.Metrics,
		Cancelled:   r.Cancelled,
	}
	if report.Descriptors == nil {
		report.Descriptors = []descriptor.Descriptor{}
	}

	fuzzed := make(map[string]*fuzz.Result, len(r.Results))
	for _, res := range r.Results {
		fuzzed[res.Endpoint.Key] = res
	}

	for _, ep := range r.Endpoints {
		er := output.EndpointReport{
			Method:         ep.Method,
			URL:            ep.URL,
			DiscoveredFrom: ep.DiscoveredFrom,
			Payload:        ep.Payload,
			Schema:         ep.Schema,
		}
		if res, ok := fuzzed[ep.Key]; ok {
			er.Probes = res.Probes
			er.Failures = res.Failures
			for i, sample := range res.Slowest {
				sp := output.SlowPayload{
					Rank:       i + 1,
					Field:      sample.Field,
					ElapsedMs:  float64(sample.Elapsed.Microseconds()) / 1000,
					StatusCode: sample.StatusCode,
					Payload:    sample.Payload,
				}
				if sample.Err != nil {
					sp.Error = sample.Err.Error()
				}
				er.Slowest = append(er.Slowest, sp)
			}
		}
		report.Endpoints = append(report.Endpoints, er)
	}

	return report
}
