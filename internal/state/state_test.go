package state

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/PentesterFlow/slowscope/internal/descriptor"
	"github.com/PentesterFlow/slowscope/internal/payload"
	"github.com/PentesterFlow/slowscope/internal/registry"
	"github.com/PentesterFlow/slowscope/internal/schema"
)

// =============================================================================
// Deduplicator Tests
// =============================================================================

func TestDeduplicator_Add(t *testing.T) {
	d := NewDeduplicator(10)

	if !d.Add("/about") {
		t.Error("first Add() should report a new key")
	}
	if d.Add("/about") {
		t.Error("second Add() should report a duplicate")
	}
	if !d.filter.TestString("/about") {
		t.Error("Add() should record the key in the Bloom filter")
	}
	if d.filter.TestString("/contact") {
		t.Error("Bloom filter should not report an unseen key here")
	}
	if d.Count() != 1 {
		t.Errorf("Count() = %d, want 1", d.Count())
	}
}

func TestDeduplicator_FalsePositives(t *testing.T) {
	// a one-word filter answers "maybe" for nearly everything
	d := &Deduplicator{
		filter: bloom.New(64, 1),
		exact:  make(map[string]struct{}),
	}
	for i := 0; i < 200; i++ {
		if !d.Add(fmt.Sprintf("/page/%d", i)) {
			t.Fatalf("Add(/page/%d) reported a duplicate for a new key", i)
		}
	}
	if d.Add("/page/7") {
		t.Error("Add() should reject a repeated key")
	}
	if d.Count() != 200 {
		t.Errorf("Count() = %d, want 200", d.Count())
	}
}

func TestDeduplicator_Many(t *testing.T) {
	d := NewDeduplicator(100)
	for i := 0; i < 5000; i++ {
		d.Add(fmt.Sprintf("/page/%d", i))
	}
	if d.Count() != 5000 {
		t.Errorf("Count() = %d, want 5000", d.Count())
	}
}

// =============================================================================
// BoltStore Tests
// =============================================================================

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "nested", "state.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStore_Endpoints(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	eps := []*registry.Endpoint{
		{
			Key:          "http://x/api/login?login=&password=",
			URL:          "http://x/api/login",
			Method:       "GET",
			Payload:      payload.Payload{"login": "", "password": ""},
			Schema:       schema.Schema{"login": schema.KindString, "password": schema.KindString},
			DiscoveredAt: now,
		},
		{
			Key:          "http://x/api/a",
			URL:          "http://x/api/a",
			Method:       "POST",
			Payload:      payload.Payload{"n": 5.0},
			Schema:       schema.Schema{"n": schema.KindInt},
			DiscoveredAt: now.Add(time.Second),
		},
	}

	if err := s.SaveEndpoints(eps); err != nil {
		t.Fatalf("SaveEndpoints() error = %v", err)
	}

	loaded, err := s.LoadEndpoints()
	if err != nil {
		t.Fatalf("LoadEndpoints() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("len = %d, want 2", len(loaded))
	}
	if loaded[0].Key != eps[0].Key {
		t.Errorf("order not preserved: first = %s", loaded[0].Key)
	}
	if loaded[0].Schema["login"] != schema.KindString {
		t.Errorf("Schema = %v", loaded[0].Schema)
	}
	if loaded[1].Schema["n"] != schema.KindInt || loaded[1].Payload["n"] != 5.0 {
		t.Errorf("second endpoint = %+v", loaded[1])
	}
}

func TestBoltStore_EndpointsFirstSeenWins(t *testing.T) {
	s := newTestStore(t)

	s.SaveEndpoints([]*registry.Endpoint{{Key: "k", Method: "GET", Payload: payload.Payload{"a": "1"}}})
	s.SaveEndpoints([]*registry.Endpoint{{Key: "k", Method: "GET", Payload: payload.Payload{"b": "2"}}})

	loaded, err := s.LoadEndpoints()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].Payload["a"] != "1" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestBoltStore_Descriptors(t *testing.T) {
	s := newTestStore(t)

	if ds, err := s.LoadDescriptors(""); err != nil || ds != nil {
		t.Fatalf("empty store: %v, %v", ds, err)
	}

	g := descriptor.NewGenerator(descriptor.DefaultInterval, "", nil)
	ep := &registry.Endpoint{URL: "/search", Method: "GET"}
	first := []descriptor.Descriptor{g.Generate(ep, payload.Payload{"q": "1"})}
	second := []descriptor.Descriptor{g.Generate(ep, payload.Payload{"q": "2"})}

	if err := s.SaveDescriptors("scan-1", first); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveDescriptors("scan-2", second); err != nil {
		t.Fatal(err)
	}

	latest, err := s.LoadDescriptors("")
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || latest[0].Args.Path != "/search?q=2" {
		t.Errorf("latest = %+v", latest)
	}

	byID, _ := s.LoadDescriptors("scan-1")
	if len(byID) != 1 || byID[0].Args.Path != "/search?q=1" {
		t.Errorf("scan-1 = %+v", byID)
	}
}

func TestBoltStore_Target(t *testing.T) {
	s := newTestStore(t)

	if target, _ := s.LoadTarget(); target != "" {
		t.Errorf("LoadTarget() = %q, want empty", target)
	}
	if err := s.SaveTarget("http://localhost:3000"); err != nil {
		t.Fatal(err)
	}
	if target, _ := s.LoadTarget(); target != "http://localhost:3000" {
		t.Errorf("LoadTarget() = %q", target)
	}
}

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	s.SaveEndpoints([]*registry.Endpoint{{Key: "k", Method: "GET"}})
	s.Close()

	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	loaded, _ := s.LoadEndpoints()
	if len(loaded) != 1 {
		t.Errorf("len = %d after reopen, want 1", len(loaded))
	}
}
