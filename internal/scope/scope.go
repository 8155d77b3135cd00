// Package scope decides which link targets the crawler follows.
package scope

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Rules defines extra crawl scope restrictions.
type Rules struct {
	// ExcludePatterns are regular expressions matched against the raw href.
	ExcludePatterns []string
}

// Filter selects and resolves the link targets of a crawl rooted at one URL.
type Filter struct {
	root           *url.URL
	excludeRegexps []*regexp.Regexp
}

// NewFilter creates a filter for links found under rootURL.
func NewFilter(rootURL string, rules Rules) (*Filter, error) {
	root, err := url.Parse(rootURL)
	if err != nil {
		return nil, fmt.Errorf("invalid root URL: %w", err)
	}
	if root.Scheme == "" || root.Host == "" {
		return nil, fmt.Errorf("invalid root URL %q: scheme and host required", rootURL)
	}

	f := &Filter{root: root}
	for _, pattern := range rules.ExcludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		f.excludeRegexps = append(f.excludeRegexps, re)
	}
	return f, nil
}

// Allow reports whether href should be followed. Empty targets, in-page
// fragments and absolute https:// links are skipped.
func (f *Filter) Allow(href string) bool {
	switch {
	case href == "":
		return false
	case strings.HasPrefix(href, "#"), strings.HasPrefix(href, "/#"):
		return false
	case strings.HasPrefix(href, "https://"):
		return false
	}

	for _, re := range f.excludeRegexps {
		if re.MatchString(href) {
			return false
		}
	}
	return true
}

// Resolve returns href resolved against the root URL.
func (f *Filter) Resolve(href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	resolved := f.root.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String(), nil
}
