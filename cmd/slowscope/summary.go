package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/PentesterFlow/slowscope/internal/registry"
	"github.com/PentesterFlow/slowscope/pkg/scanner"
)

func printBanner(config *scanner.Config) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "slowscope v%s\n", version)
	fmt.Fprintf(os.Stderr, "Target:     %s\n", config.Target)
	fmt.Fprintf(os.Stderr, "Max Depth:  %d\n", config.Crawl.MaxDepth)
	fmt.Fprintf(os.Stderr, "Trials:     %d, top %d per endpoint\n", config.Fuzz.Trials, config.Fuzz.TopK)
	fmt.Fprintln(os.Stderr)
}

func printEndpoints(endpoints []*registry.Endpoint) {
	if len(endpoints) == 0 {
		fmt.Fprintln(os.Stderr, "No API endpoints discovered.")
		return
	}

	table := tablewriter.NewWriter(os.Stderr)
	table.SetHeader([]string{"Method", "URL", "Fields", "Discovered From"})
	table.SetBorder(true)
	for _, ep := range endpoints {
		table.Append([]string{
			ep.Method,
			ep.URL,
			strconv.Itoa(len(ep.Schema)),
			ep.DiscoveredFrom,
		})
	}
	table.Render()
}

func printSummary(result *scanner.ScanResult) {
	stats := result.Stats

	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Scan ID: %s\n", result.ID)
	if result.Cancelled {
		fmt.Fprintln(os.Stderr, "Scan interrupted; results below are partial.")
	}

	table := tablewriter.NewWriter(os.Stderr)
	table.SetHeader([]string{"Duration", "Pages", "Endpoints", "Fuzzed", "Skipped", "Probes", "Failed", "Descriptors"})
	table.SetBorder(true)
	table.Append([]string{
		stats.Duration.Round(time.Millisecond).String(),
		strconv.Itoa(stats.PagesRendered),
		strconv.Itoa(stats.Endpoints),
		strconv.Itoa(stats.Fuzzed),
		strconv.Itoa(stats.Skipped),
		strconv.Itoa(stats.Probes),
		strconv.Itoa(stats.ProbeFailures),
		strconv.Itoa(len(result.Descriptors)),
	})
	table.Render()

	if len(result.Results) == 0 {
		return
	}

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Slowest payloads:")

	slow := tablewriter.NewWriter(os.Stderr)
	slow.SetHeader([]string{"Method", "URL", "Rank", "Field", "Elapsed", "Status"})
	slow.SetBorder(true)
	for _, res := range result.Results {
		for i, sample := range res.Slowest {
			status := strconv.Itoa(sample.StatusCode)
			if sample.StatusCode == 0 {
				status = "-"
			}
			slow.Append([]string{
				res.Endpoint.Method,
				res.Endpoint.URL,
				strconv.Itoa(i + 1),
				sample.Field,
				sample.Elapsed.Round(time.Millisecond).String(),
				status,
			})
		}
	}
	slow.Render()
}
