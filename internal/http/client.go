// Package http replays fuzzed requests against discovered endpoints.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	scanerrors "github.com/PentesterFlow/slowscope/internal/errors"
	"github.com/PentesterFlow/slowscope/internal/payload"
)

// Config holds configuration for the probe client.
type Config struct {
	Timeout         time.Duration
	MaxConnsPerHost int
	UserAgent       string
	// Headers are sent with every probe, after the cache-busting set.
	Headers       map[string]string
	SkipTLSVerify bool
	// MaxBodyBytes bounds how much of a response body is drained.
	MaxBodyBytes int64
}

// DefaultConfig returns client defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxConnsPerHost: 4,
		UserAgent:       "slowscope/1.0 (Latency Scanner)",
		SkipTLSVerify:   true,
		MaxBodyBytes:    10 * 1024 * 1024,
	}
}

// Response is the outcome of one probe.
type Response struct {
	StatusCode int
	Bytes      int64
	Duration   time.Duration
}

// ProbeClient sends probes one at a time. Caching is disabled on every
// request and response bodies are read to the end, so the measured time
// covers the whole origin response.
type ProbeClient struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	headers   map[string]string
}

// CacheBustingHeaders returns the headers that keep intermediaries from
// answering in place of the origin.
func CacheBustingHeaders() map[string]string {
	return map[string]string{
		"Cache-Control": "no-cache, no-store, must-revalidate",
		"Pragma":        "no-cache",
		"Expires":       "0",
	}
}

// New creates a probe client with its own cookie jar.
func New(config Config) (*ProbeClient, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxConnsPerHost,
		MaxIdleConnsPerHost:   config.MaxConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	maxBody := config.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultConfig().MaxBodyBytes
	}

	headers := make(map[string]string, len(config.Headers))
	for k, v := range config.Headers {
		headers[k] = v
	}

	return &ProbeClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: config.UserAgent,
		maxBody:   maxBody,
		headers:   headers,
	}, nil
}

// Get sends a GET with query merged into targetURL's query string.
func (c *ProbeClient) Get(ctx context.Context, targetURL string, query url.Values) (*Response, error) {
	return c.send(ctx, http.MethodGet, withQuery(targetURL, query), nil)
}

// Post sends body as JSON.
func (c *ProbeClient) Post(ctx context.Context, targetURL string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPost, targetURL, body)
}

// Probe sends p to an endpoint: as a query string for read methods, as a
// JSON body otherwise. It returns the status code, zero when no response
// arrived. Any failure, including a non-2xx status, is a NetworkProbeFailure.
func (c *ProbeClient) Probe(ctx context.Context, method, targetURL string, p payload.Payload) (int, error) {
	method = strings.ToUpper(method)
	var (
		resp *Response
		err  error
	)
	if payload.IsReadMethod(method) {
		resp, err = c.send(ctx, method, withQuery(targetURL, p.Query()), nil)
	} else {
		if p == nil {
			p = payload.Payload{}
		}
		resp, err = c.sendJSON(ctx, method, targetURL, p)
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if err != nil {
		return status, scanerrors.NewProbeFailure(targetURL, err)
	}
	return status, nil
}

func (c *ProbeClient) sendJSON(ctx context.Context, method, targetURL string, body any) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, scanerrors.NewMalformedPayload(targetURL, err)
	}
	return c.send(ctx, method, targetURL, data)
}

// send performs the request. A response with a non-2xx status is returned
// together with its categorized error.
func (c *ProbeClient) send(ctx context.Context, method, targetURL string, body []byte) (*Response, error) {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, targetURL, reader)
	if err != nil {
		return nil, scanerrors.New(scanerrors.Unknown, targetURL, "request_creation", "failed to create request", err)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	for k, v := range CacheBustingHeaders() {
		req.Header.Set(k, v)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, scanerrors.Categorize(err, targetURL)
	}
	defer resp.Body.Close()

	n, readErr := io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBody))
	result := &Response{
		StatusCode: resp.StatusCode,
		Bytes:      n,
		Duration:   time.Since(start),
	}
	if readErr != nil {
		return result, scanerrors.NewNetworkError(targetURL, "body_read", readErr)
	}
	if httpErr := scanerrors.CategorizeHTTPStatus(resp.StatusCode, targetURL); httpErr != nil {
		return result, httpErr
	}
	return result, nil
}

// withQuery appends query to targetURL, keeping any query it already has.
func withQuery(targetURL string, query url.Values) string {
	encoded := query.Encode()
	if encoded == "" {
		return targetURL
	}
	sep := "?"
	if strings.Contains(targetURL, "?") {
		sep = "&"
	}
	return targetURL + sep + encoded
}
