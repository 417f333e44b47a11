// Package web implements the read-only http: and https: backend.
//
// Probes issue HEAD requests; reads issue GET requests. A resource carrying
// a resource.UserPassword credential authenticates with HTTP basic auth.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/marmos91/dittores/pkg/resource"
)

// DefaultTimeout bounds a single request when the caller supplies no client.
const DefaultTimeout = 30 * time.Second

// Backend serves http(s) URLs.
type Backend struct {
	client    *http.Client
	userAgent string
}

// Option configures a Backend.
type Option func(*Backend)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(b *Backend) { b.client = c }
}

// WithUserAgent sets the User-Agent header of every request.
func WithUserAgent(ua string) Option {
	return func(b *Backend) { b.userAgent = ua }
}

// New creates a backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: "dittores",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Resource returns the resource for the absolute URL raw.
func (b *Backend) Resource(raw string) (*resource.Resource, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &resource.ConfigError{Msg: "invalid URL " + raw, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, resource.Configf("unsupported scheme %q", u.Scheme)
	}
	return resource.New(b, u, resource.TypeFile), nil
}

// Scheme reports the generic scheme; concrete URIs keep http or https.
func (b *Backend) Scheme() string { return "http" }

// AcceptsCredential accepts basic auth credentials.
func (b *Backend) AcceptsCredential(c resource.Credential) bool {
	_, ok := c.(resource.UserPassword)
	return ok
}

// ============================================================================
// Requests
// ============================================================================

func (b *Backend) do(ctx context.Context, method, op string, r *resource.Resource) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.String(), nil)
	if err != nil {
		return nil, resource.Wrap(op, r.String(), err)
	}
	req.Header.Set("User-Agent", b.userAgent)
	if up, ok := r.Credential().(resource.UserPassword); ok {
		req.SetBasicAuth(up.User, up.Password)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, resource.NewIOError(op, r.String(), resource.ReasonFailure, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil, translateStatus(op, r.String(), resp.StatusCode)
}

func translateStatus(op, uri string, status int) error {
	err := fmt.Errorf("HTTP %d %s", status, http.StatusText(status))
	switch status {
	case http.StatusNotFound, http.StatusGone:
		return resource.NewIOError(op, uri, resource.ReasonNotFound, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return resource.NewIOError(op, uri, resource.ReasonPermission, err)
	default:
		return resource.NewIOError(op, uri, resource.ReasonFailure, err)
	}
}

func (b *Backend) head(ctx context.Context, op string, r *resource.Resource) (http.Header, error) {
	resp, err := b.do(ctx, http.MethodHead, op, r)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp.Header, nil
}

// ============================================================================
// Probes and Streams
// ============================================================================

func (b *Backend) Exists(ctx context.Context, r *resource.Resource) (bool, error) {
	_, err := b.head(ctx, "exists", r)
	if resource.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// Length returns the Content-Length of a HEAD response, or 0 when the
// server does not announce one.
func (b *Backend) Length(ctx context.Context, r *resource.Resource) (int64, error) {
	h, err := b.head(ctx, "length", r)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(h.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// LastModified parses the Last-Modified header, or returns the zero time.
func (b *Backend) LastModified(ctx context.Context, r *resource.Resource) (time.Time, error) {
	h, err := b.head(ctx, "last_modified", r)
	if err != nil {
		return time.Time{}, err
	}
	t, err := http.ParseTime(h.Get("Last-Modified"))
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// OpenReader returns the body of a GET response.
func (b *Backend) OpenReader(ctx context.Context, r *resource.Resource) (io.ReadCloser, error) {
	resp, err := b.do(ctx, http.MethodGet, "read", r)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
