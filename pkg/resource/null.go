package resource

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"time"
)

// nullBackend serves URIs nothing else could resolve: it never exists, has
// no content, and silently discards writes.
type nullBackend struct {
	scheme string
}

// Null returns the resource used for unresolvable URIs.
func Null(u *url.URL) *Resource {
	return New(nullBackend{scheme: u.Scheme}, u, TypeFile)
}

// IsNull reports whether r is a null resource.
func IsNull(r *Resource) bool {
	_, ok := r.backend.(nullBackend)
	return ok
}

func (b nullBackend) Scheme() string { return b.scheme }

func (nullBackend) OpenReader(context.Context, *Resource) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (nullBackend) OpenWriter(context.Context, *Resource) (io.WriteCloser, error) {
	return nopWriteCloser{io.Discard}, nil
}

func (nullBackend) Exists(context.Context, *Resource) (bool, error)            { return false, nil }
func (nullBackend) Length(context.Context, *Resource) (int64, error)           { return 0, nil }
func (nullBackend) LastModified(context.Context, *Resource) (time.Time, error) { return time.Time{}, nil }

func (nullBackend) ListChildren(context.Context, *Resource) ([]*Resource, error) { return nil, nil }

func (nullBackend) CreateFile(context.Context, *Resource) error      { return nil }
func (nullBackend) CreateDirectory(context.Context, *Resource) error { return nil }
func (nullBackend) Remove(context.Context, *Resource) error          { return nil }

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NopWriteCloser adapts w to io.WriteCloser with a no-op Close.
func NopWriteCloser(w io.Writer) io.WriteCloser { return nopWriteCloser{w} }
