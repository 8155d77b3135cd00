package descriptor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/PentesterFlow/slowscope/internal/payload"
	"github.com/PentesterFlow/slowscope/internal/registry"
)

func TestGenerate_Get(t *testing.T) {
	g := NewGenerator(DefaultInterval, "", nil)
	ep := &registry.Endpoint{URL: "/search", Method: "GET"}

	d := g.Generate(ep, payload.Payload{"q": "1"})

	if d.Type != "http" {
		t.Errorf("Type = %q, want http", d.Type)
	}
	if d.Args.Path != "/search?q=1" {
		t.Errorf("Path = %q, want /search?q=1", d.Args.Path)
	}
	if d.Args.Body != nil {
		t.Errorf("Body = %v, want none", d.Args.Body)
	}
	if d.Args.IntervalMs != 100 {
		t.Errorf("IntervalMs = %d, want 100", d.Args.IntervalMs)
	}
	if d.Client.ProxyURLs != DefaultProxyPlaceholder {
		t.Errorf("ProxyURLs = %q", d.Client.ProxyURLs)
	}
}

func TestGenerate_Post(t *testing.T) {
	g := NewGenerator(DefaultInterval, "", nil)
	ep := &registry.Endpoint{URL: "/search", Method: "POST"}

	d := g.Generate(ep, payload.Payload{"q": "1"})

	if d.Args.Path != "/search" {
		t.Errorf("Path = %q, want /search", d.Args.Path)
	}
	body, ok := d.Args.Body.(payload.Payload)
	if !ok || body["q"] != "1" || len(body) != 1 {
		t.Errorf("Body = %#v, want {q: 1}", d.Args.Body)
	}
}

func TestGenerate_JSONShape(t *testing.T) {
	g := NewGenerator(250*time.Millisecond, "{{pool}}", map[string]string{"X-Scan": "1"})

	get, _ := json.Marshal(g.Generate(&registry.Endpoint{URL: "/a", Method: "GET"}, payload.Payload{"q": "1"}))
	var data map[string]map[string]any
	if err := json.Unmarshal(get, &data); err != nil {
		t.Fatal(err)
	}
	if _, ok := data["args"]["body"]; ok {
		t.Error("GET descriptor should not carry a body")
	}
	if data["args"]["interval_ms"] != 250.0 {
		t.Errorf("interval_ms = %v", data["args"]["interval_ms"])
	}
	if data["client"]["proxy_urls"] != "{{pool}}" {
		t.Errorf("proxy_urls = %v", data["client"]["proxy_urls"])
	}
	headers := data["args"]["headers"].(map[string]any)
	if headers["Pragma"] != "no-cache" || headers["X-Scan"] != "1" {
		t.Errorf("headers = %v", headers)
	}

	post, _ := json.Marshal(g.Generate(&registry.Endpoint{URL: "/a", Method: "POST"}, payload.Payload{}))
	data = nil
	if err := json.Unmarshal(post, &data); err != nil {
		t.Fatal(err)
	}
	if _, ok := data["args"]["body"]; !ok {
		t.Error("POST descriptor should carry a body even when empty")
	}
}

func TestGenerate_QueryEncoding(t *testing.T) {
	g := NewGenerator(DefaultInterval, "", nil)
	ep := &registry.Endpoint{URL: "http://x/api", Method: "HEAD"}

	d := g.Generate(ep, payload.Payload{"b": []any{1.0, 2.0}, "a": " "})

	if d.Args.Path != "http://x/api?a=+&b=1&b=2" {
		t.Errorf("Path = %q", d.Args.Path)
	}
}

func TestGenerate_EmptyGetPayload(t *testing.T) {
	g := NewGenerator(DefaultInterval, "", nil)
	d := g.Generate(&registry.Endpoint{URL: "/ping", Method: "GET"}, payload.Payload{})
	if d.Args.Path != "/ping" {
		t.Errorf("Path = %q, want /ping", d.Args.Path)
	}
}

func TestGenerate_HeadersNotShared(t *testing.T) {
	g := NewGenerator(DefaultInterval, "", nil)
	ep := &registry.Endpoint{URL: "/a", Method: "GET"}

	d := g.Generate(ep, nil)
	d.Args.Headers["Pragma"] = "changed"

	if g.Generate(ep, nil).Args.Headers["Pragma"] != "no-cache" {
		t.Error("descriptors should not share the generator's header map")
	}
}

func TestGenerateAll(t *testing.T) {
	g := NewGenerator(DefaultInterval, "", nil)
	ep := &registry.Endpoint{URL: "/a", Method: "GET"}

	ds := g.GenerateAll(ep, []payload.Payload{{"q": "1"}, {"q": "2"}})
	if len(ds) != 2 || ds[0].Args.Path != "/a?q=1" || ds[1].Args.Path != "/a?q=2" {
		t.Errorf("GenerateAll() = %+v", ds)
	}
}
