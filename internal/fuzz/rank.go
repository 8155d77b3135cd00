package fuzz

import (
	"sort"

	"github.com/PentesterFlow/slowscope/internal/payload"
)

// Rank returns the k slowest samples, slowest first. Equal elapsed times
// keep their probe order. With dedup set, only the slowest sample of each
// distinct payload competes for a place. The input is not modified.
func Rank(samples []Sample, k int, dedup bool) []Sample {
	if k <= 0 || len(samples) == 0 {
		return nil
	}

	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Elapsed > sorted[j].Elapsed
	})

	if dedup {
		seen := make(map[string]struct{}, len(sorted))
		unique := sorted[:0]
		for _, s := range sorted {
			key := s.Payload.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			unique = append(unique, s)
		}
		sorted = unique
	}

	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

// Payloads extracts the payloads of samples in order.
func Payloads(samples []Sample) []payload.Payload {
	out := make([]payload.Payload, len(samples))
	for i, s := range samples {
		out[i] = s.Payload
	}
	return out
}
