// Package browser renders pages in headless Chrome via Rod and captures
// the API traffic they issue.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	scanerrors "github.com/PentesterFlow/slowscope/internal/errors"
)

// Renderer wraps a Rod browser instance. Pages are rendered one at a time.
type Renderer struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	config   Config
	mu       sync.Mutex
}

// New launches (or connects to) a browser.
func New(config Config) (*Renderer, error) {
	controlURL := config.ControlURL
	var l *launcher.Launcher

	if controlURL == "" {
		l = launcher.New().Headless(config.Headless)
		if config.IgnoreHTTPSErrors {
			l = l.Set("ignore-certificate-errors", "true")
		}

		var err error
		controlURL, err = l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &Renderer{
		browser:  b,
		launcher: l,
		config:   config,
	}, nil
}

// Render loads pageURL, aborting static assets and recording API traffic
// issued while it loads. Any failure is returned as a RenderFailure.
func (r *Renderer) Render(ctx context.Context, pageURL string) (*RenderResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()

	page, err := r.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, scanerrors.NewRenderFailure(pageURL, fmt.Errorf("failed to create page: %w", err))
	}
	defer page.Close()

	page = page.Context(ctx)
	if r.config.Timeout > 0 {
		page = page.Timeout(r.config.Timeout)
	}

	r.preparePage(page)

	interceptor := NewInterceptor(r.config.BlockedTypes, r.config.CaptureTypes)
	router := page.HijackRequests()
	err = router.Add("*", "", func(hijack *rod.Hijack) {
		resourceType := string(hijack.Request.Type())

		switch interceptor.Decide(resourceType) {
		case ActionAbort:
			hijack.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		case ActionRecord:
			reqHeaders := make(map[string]string)
			for k, vals := range hijack.Request.Req().Header {
				if len(vals) > 0 {
					reqHeaders[k] = vals[0]
				}
			}
			interceptor.Record(NetworkRequest{
				URL:          hijack.Request.URL().String(),
				Method:       hijack.Request.Method(),
				Headers:      reqHeaders,
				PostData:     hijack.Request.Body(),
				ResourceType: resourceType,
				Timestamp:    time.Now(),
			})
		}

		hijack.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, scanerrors.NewRenderFailure(pageURL, fmt.Errorf("failed to intercept requests: %w", err))
	}
	go router.Run()
	defer router.Stop()

	if err := page.Navigate(pageURL); err != nil {
		return nil, scanerrors.NewRenderFailure(pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, scanerrors.NewRenderFailure(pageURL, err)
	}

	// requests fired from load handlers may still be in flight
	if r.config.SettleTime > 0 {
		timer := time.NewTimer(r.config.SettleTime)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, scanerrors.NewRenderFailure(pageURL, ctx.Err())
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, scanerrors.NewRenderFailure(pageURL, fmt.Errorf("failed to read document: %w", err))
	}
	links, err := ExtractLinks(html)
	if err != nil {
		return nil, scanerrors.NewRenderFailure(pageURL, fmt.Errorf("failed to parse document: %w", err))
	}

	return &RenderResult{
		URL:      pageURL,
		Requests: interceptor.Requests(),
		Links:    links,
		Aborted:  interceptor.Aborted(),
		Duration: time.Since(start),
	}, nil
}

// preparePage applies viewport, user agent and extra headers. Failures here
// are not fatal to the render.
func (r *Renderer) preparePage(page *rod.Page) {
	if r.config.ViewportWidth > 0 && r.config.ViewportHeight > 0 {
		_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  r.config.ViewportWidth,
			Height: r.config.ViewportHeight,
		})
	}

	if r.config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{
			UserAgent: r.config.UserAgent,
		}.Call(page)
	}

	if len(r.config.Headers) > 0 {
		networkHeaders := make(proto.NetworkHeaders)
		for k, v := range r.config.Headers {
			networkHeaders[k] = gson.New(v)
		}
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders}.Call(page)
	}
}

// Close closes the browser and kills a launched process.
func (r *Renderer) Close() error {
	err := r.browser.Close()
	if r.launcher != nil {
		r.launcher.Kill()
	}
	return err
}
