package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// FetchMode selects how a page is retrieved.
type FetchMode string

const (
	// ModePlain issues a direct HTTP GET.
	ModePlain FetchMode = "plain"
	// ModeRendered drives a headless browser and returns the rendered DOM.
	ModeRendered FetchMode = "rendered"
)

// Request represents a page to be fetched.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Mode selects the plain or rendered fetcher.
	Mode FetchMode

	// Headers are extra HTTP headers layered over the rotated identity.
	Headers http.Header

	// Timeout overrides the fetcher's default per-call timeout.
	Timeout time.Duration

	// Target is the name of the source target that produced this request.
	Target string
}

// NewRequest creates a plain-mode Request for rawURL.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return &Request{
		URL:     u,
		Mode:    ModePlain,
		Headers: make(http.Header),
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Domain returns the hostname of the request URL.
func (r *Request) Domain() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Hostname()
}
