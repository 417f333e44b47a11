package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittores/pkg/resource"
)

var errDirectoryNotEmpty = errors.New("directory not empty")

// bytesBackend serves a single read-only resource over a fixed buffer.
type bytesBackend struct {
	data    []byte
	created time.Time
}

// FromBytes wraps data in a read-only file resource named name. Each call
// gets a fresh random id. The identity hash of the result folds the content
// itself instead of its URI, so two buffers with the same bytes and name
// hash identically.
func FromBytes(data []byte, name string) *resource.Resource {
	buf := make([]byte, len(data))
	copy(buf, data)

	id := uuid.NewString()
	u := &url.URL{Scheme: Scheme, Path: path.Join("/", ".bytes", id, path.Base("/"+name))}
	return resource.New(&bytesBackend{data: buf, created: time.Now()}, u, resource.TypeFile, resource.WithID(id))
}

func (b *bytesBackend) Scheme() string { return Scheme }

func (b *bytesBackend) OpenReader(context.Context, *resource.Resource) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

func (b *bytesBackend) Exists(context.Context, *resource.Resource) (bool, error) { return true, nil }

func (b *bytesBackend) Length(context.Context, *resource.Resource) (int64, error) {
	return int64(len(b.data)), nil
}

func (b *bytesBackend) LastModified(context.Context, *resource.Resource) (time.Time, error) {
	return b.created, nil
}

func (b *bytesBackend) HashContent(_ *resource.Resource, w io.Writer) bool {
	_, _ = w.Write(b.data)
	return true
}
