// Package crawl drives the renderer across a site and fills an endpoint
// registry from the API traffic it observes.
package crawl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PentesterFlow/slowscope/internal/browser"
	scanerrors "github.com/PentesterFlow/slowscope/internal/errors"
	"github.com/PentesterFlow/slowscope/internal/logger"
	"github.com/PentesterFlow/slowscope/internal/metrics"
	"github.com/PentesterFlow/slowscope/internal/queue"
	"github.com/PentesterFlow/slowscope/internal/ratelimit"
	"github.com/PentesterFlow/slowscope/internal/registry"
	"github.com/PentesterFlow/slowscope/internal/scope"
	"github.com/PentesterFlow/slowscope/internal/state"
)

// Renderer renders one page and reports the traffic and links it produced.
type Renderer interface {
	Render(ctx context.Context, url string) (*browser.RenderResult, error)
}

// Config controls a crawl.
type Config struct {
	// MaxDepth is the deepest level rendered; the root is level 1.
	MaxDepth int
	// MaxPages bounds the total number of renders; zero means unbounded.
	MaxPages int
	// Delay is the pause before every child page render.
	Delay time.Duration
	// CaptureTypes are the resource types treated as API traffic.
	CaptureTypes []string
	Scope        scope.Rules
}

// DefaultConfig returns default crawl settings.
func DefaultConfig() Config {
	return Config{
		MaxDepth:     2,
		MaxPages:     200,
		Delay:        100 * time.Millisecond,
		CaptureTypes: append([]string(nil), browser.DefaultCaptureTypes...),
	}
}

// Session is the state of one crawl. Nothing in it is shared across crawls.
type Session struct {
	Root     string
	Registry *registry.Registry

	PagesRendered  int
	RenderFailures int
	// Truncated is set when MaxPages stopped the crawl with work pending.
	Truncated  bool
	StartedAt  time.Time
	FinishedAt time.Time

	visitedLinks *state.Deduplicator
}

// VisitedLinks returns the number of distinct hrefs queued for rendering.
func (s *Session) VisitedLinks() int {
	return s.visitedLinks.Count()
}

// Crawler renders pages depth-first from a root URL.
type Crawler struct {
	renderer Renderer
	config   Config
	throttle *ratelimit.Throttle
	log      *logger.Logger
	metrics  *metrics.Collector
	capture  map[string]struct{}
}

// New creates a crawler. log and m may be nil.
func New(renderer Renderer, config Config, log *logger.Logger, m *metrics.Collector) *Crawler {
	if config.MaxDepth < 1 {
		config.MaxDepth = 1
	}
	if len(config.CaptureTypes) == 0 {
		config.CaptureTypes = browser.DefaultCaptureTypes
	}
	if log == nil {
		log = logger.Nop()
	}

	capture := make(map[string]struct{}, len(config.CaptureTypes))
	for _, t := range config.CaptureTypes {
		capture[strings.ToLower(t)] = struct{}{}
	}

	return &Crawler{
		renderer: renderer,
		config:   config,
		throttle: ratelimit.NewThrottle(config.Delay, 0, 0),
		log:      log.WithComponent("crawl"),
		metrics:  m,
		capture:  capture,
	}
}

// Crawl renders rootURL and the pages it links to, down to MaxDepth, and
// returns the session holding every endpoint observed. Render failures end
// that branch only. The error is non-nil for an invalid root or when ctx
// ends; the session returned with a context error holds what was found so far.
func (c *Crawler) Crawl(ctx context.Context, rootURL string) (*Session, error) {
	filter, err := scope.NewFilter(rootURL, c.config.Scope)
	if err != nil {
		return nil, err
	}

	session := &Session{
		Root:         rootURL,
		Registry:     registry.New(),
		StartedAt:    time.Now(),
		visitedLinks: state.NewDeduplicator(c.config.MaxPages),
	}
	defer func() { session.FinishedAt = time.Now() }()

	stack := queue.NewStack()
	stack.Push(&queue.Item{URL: rootURL, Depth: 1})

	for !stack.IsEmpty() {
		if err := ctx.Err(); err != nil {
			return session, err
		}
		if c.config.MaxPages > 0 && session.PagesRendered >= c.config.MaxPages {
			session.Truncated = true
			c.log.Warnf("Page limit of %d reached, %d pages left unvisited", c.config.MaxPages, stack.Len())
			break
		}

		item, err := stack.Pop()
		if err != nil {
			break
		}

		if item.Depth > 1 {
			if err := c.throttle.Wait(ctx); err != nil {
				return session, err
			}
		}

		children := c.visit(ctx, session, filter, item)
		stack.PushAll(children)
	}

	return session, nil
}

// visit renders one page, records its traffic and returns the child pages
// to render next.
func (c *Crawler) visit(ctx context.Context, session *Session, filter *scope.Filter, item *queue.Item) []*queue.Item {
	session.PagesRendered++

	result, err := c.renderer.Render(ctx, item.URL)
	if err != nil {
		session.RenderFailures++
		c.metrics.RecordRenderFailure()
		if ctx.Err() == nil {
			if scanerrors.GetErrorType(err) != scanerrors.RenderFailure {
				err = scanerrors.NewRenderFailure(item.URL, err)
			}
			c.log.ErrorEvent(err, item.URL, "render")
		}
		return nil
	}

	c.metrics.RecordRender(len(result.Requests), result.Aborted)
	c.log.RenderEvent(item.URL, item.Depth, len(result.Requests), len(result.Links), result.Duration)

	for _, req := range result.Requests {
		c.record(session, item.URL, req)
	}

	if item.Depth >= c.config.MaxDepth {
		return nil
	}

	var children []*queue.Item
	for _, href := range result.Links {
		if !filter.Allow(href) {
			continue
		}
		// marked at enqueue so a link found twice is rendered once
		if !session.visitedLinks.Add(href) {
			continue
		}
		target, err := filter.Resolve(href)
		if err != nil {
			c.log.WithURL(item.URL).WithError(err).Debugf("Skipping unresolvable link %q", href)
			continue
		}
		children = append(children, &queue.Item{URL: target, Href: href, Depth: item.Depth + 1})
	}
	return children
}

func (c *Crawler) record(session *Session, pageURL string, req browser.NetworkRequest) {
	if _, ok := c.capture[strings.ToLower(req.ResourceType)]; !ok {
		return
	}

	ep, added, err := session.Registry.RecordIfAbsent(req.URL, req.Method, req.PostData)
	if !added {
		return
	}
	ep.DiscoveredFrom = pageURL

	c.metrics.RecordEndpoint()
	c.log.DiscoveryEvent(ep.Method, ep.URL, len(ep.Schema), strings.ToLower(req.ResourceType))

	if err != nil {
		switch scanerrors.GetErrorType(err) {
		case scanerrors.MalformedPayload:
			c.metrics.RecordMalformedPayload()
		case scanerrors.UnclassifiableInput:
			c.metrics.RecordUnclassifiedPayload()
		}
		c.log.ErrorEvent(fmt.Errorf("endpoint recorded without schema: %w", err), req.URL, "record")
	}
}
