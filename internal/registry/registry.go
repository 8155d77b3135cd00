// Package registry records the endpoints discovered while crawling.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	scanerrors "github.com/PentesterFlow/slowscope/internal/errors"
	"github.com/PentesterFlow/slowscope/internal/payload"
	"github.com/PentesterFlow/slowscope/internal/schema"
)

// Endpoint is a backend URL and method observed in intercepted traffic.
// It is immutable once recorded.
type Endpoint struct {
	Key            string          `json:"key"`
	URL            string          `json:"url"`
	Method         string          `json:"method"`
	Payload        payload.Payload `json:"payload"`
	Schema         schema.Schema   `json:"schema"`
	DiscoveredFrom string          `json:"discovered_from,omitempty"`
	DiscoveredAt   time.Time       `json:"discovered_at"`
}

// Registry is an insertion-ordered set of endpoints keyed by raw request URL.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	order     []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		endpoints: make(map[string]*Endpoint),
	}
}

// RecordIfAbsent inserts an endpoint for rawURL unless one already exists.
// The base payload is the decoded query string when it is non-empty,
// otherwise the decoded JSON body.
//
// The returned bool reports whether a new endpoint was inserted. A non-nil
// error means the payload could not be decoded or classified; the endpoint
// is still recorded, with an empty schema.
func (r *Registry) RecordIfAbsent(rawURL, method, body string) (*Endpoint, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ep, ok := r.endpoints[rawURL]; ok {
		return ep, false, nil
	}

	ep, err := newEndpoint(rawURL, method, body)
	r.insert(ep)
	return ep, true, err
}

// Add inserts a previously recorded endpoint unless its key is taken.
func (r *Registry) Add(ep *Endpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.endpoints[ep.Key]; ok {
		return false
	}
	r.insert(ep)
	return true
}

func (r *Registry) insert(ep *Endpoint) {
	r.endpoints[ep.Key] = ep
	r.order = append(r.order, ep.Key)
}

// Get returns the endpoint recorded for rawURL.
func (r *Registry) Get(rawURL string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[rawURL]
	return ep, ok
}

// Endpoints returns the endpoints in discovery order.
func (r *Registry) Endpoints() []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Endpoint, len(r.order))
	for i, key := range r.order {
		out[i] = r.endpoints[key]
	}
	return out
}

// Len returns the number of recorded endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func newEndpoint(rawURL, method, body string) (*Endpoint, error) {
	ep := &Endpoint{
		Key:          rawURL,
		URL:          rawURL,
		Method:       normalizeMethod(method),
		Payload:      payload.Payload{},
		Schema:       schema.Schema{},
		DiscoveredAt: time.Now(),
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ep, scanerrors.NewMalformedPayload(rawURL, err)
	}
	ep.URL = Normalize(u)

	p, err := decodePayload(u.RawQuery, body)
	if err != nil {
		return ep, scanerrors.NewMalformedPayload(rawURL, err)
	}

	s, err := schema.Extract(p)
	if err != nil {
		// keep the payload for reference but leave nothing to fuzz
		ep.Payload = p
		return ep, err
	}
	ep.Payload = p
	ep.Schema = s
	return ep, nil
}

func decodePayload(rawQuery, body string) (payload.Payload, error) {
	if rawQuery != "" {
		values, err := url.ParseQuery(rawQuery)
		if err != nil {
			return payload.Payload{}, fmt.Errorf("query string: %w", err)
		}
		if len(values) > 0 {
			return payload.FromQuery(values), nil
		}
	}

	if strings.TrimSpace(body) == "" {
		return payload.Payload{}, nil
	}

	var decoded any
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(&decoded); err != nil {
		return payload.Payload{}, fmt.Errorf("request body: %w", err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return payload.Payload{}, nil
	}
	return payload.Payload(obj), nil
}

// Normalize returns the scheme, host and path of u.
func Normalize(u *url.URL) string {
	n := url.URL{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   u.Path,
	}
	return n.String()
}

func normalizeMethod(method string) string {
	if method == "" {
		return "GET"
	}
	return strings.ToUpper(method)
}

// IsRead reports whether the endpoint is called with a query string.
func (e *Endpoint) IsRead() bool {
	return payload.IsReadMethod(e.Method)
}
