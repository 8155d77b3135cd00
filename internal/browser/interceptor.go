package browser

import (
	"strings"
	"sync"
)

// Action is the interceptor's decision for one outgoing request.
type Action int

const (
	// ActionContinue lets the request through untouched.
	ActionContinue Action = iota
	// ActionRecord lets the request through and records it.
	ActionRecord
	// ActionAbort fails the request without sending it.
	ActionAbort
)

// Interceptor decides what happens to requests issued while a page renders
// and keeps the captured API traffic.
type Interceptor struct {
	mu       sync.Mutex
	blocked  map[string]struct{}
	capture  map[string]struct{}
	requests []NetworkRequest
	aborted  int
}

// NewInterceptor creates an interceptor. Resource types compare case-insensitively.
func NewInterceptor(blockedTypes, captureTypes []string) *Interceptor {
	return &Interceptor{
		blocked: typeSet(blockedTypes),
		capture: typeSet(captureTypes),
	}
}

func typeSet(types []string) map[string]struct{} {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[strings.ToLower(t)] = struct{}{}
	}
	return set
}

// Decide returns the action for a request of resourceType and counts aborts.
func (i *Interceptor) Decide(resourceType string) Action {
	rt := strings.ToLower(resourceType)
	if _, ok := i.blocked[rt]; ok {
		i.mu.Lock()
		i.aborted++
		i.mu.Unlock()
		return ActionAbort
	}
	if _, ok := i.capture[rt]; ok {
		return ActionRecord
	}
	return ActionContinue
}

// Record stores a captured request.
func (i *Interceptor) Record(req NetworkRequest) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.requests = append(i.requests, req)
}

// Requests returns the captured requests in arrival order.
func (i *Interceptor) Requests() []NetworkRequest {
	i.mu.Lock()
	defer i.mu.Unlock()

	result := make([]NetworkRequest, len(i.requests))
	copy(result, i.requests)
	return result
}

// Aborted returns how many requests were blocked.
func (i *Interceptor) Aborted() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.aborted
}
