package resource

import (
	"context"
	"io"
	"net/url"
	"time"
)

// ============================================================================
// Backend Primitives
// ============================================================================

// Backend supplies the I/O primitives behind a Resource.
//
// Only Scheme is mandatory. Every other primitive is an optional interface;
// a backend that does not implement one makes the corresponding Resource
// operation fail with ErrNotSupported. Callers must treat that as a normal
// outcome, not a bug.
//
// The Resource core builds everything else (buffering, processors, metrics,
// hashing, create/delete/empty, walk/list/copy) on top of these primitives.
type Backend interface {
	// Scheme returns the URI scheme this backend serves, e.g. "file".
	Scheme() string
}

// Opener opens the raw byte stream of a file resource.
type Opener interface {
	OpenReader(ctx context.Context, r *Resource) (io.ReadCloser, error)
}

// WriterOpener opens a stream that replaces the content of a file resource.
// The content must be visible to readers once Close returns nil.
type WriterOpener interface {
	OpenWriter(ctx context.Context, r *Resource) (io.WriteCloser, error)
}

// ExistsProber reports whether the resource exists. A missing resource is
// (false, nil), never an error.
type ExistsProber interface {
	Exists(ctx context.Context, r *Resource) (bool, error)
}

// LengthProber returns the content length in bytes.
type LengthProber interface {
	Length(ctx context.Context, r *Resource) (int64, error)
}

// ModTimeProber returns the last modification time.
type ModTimeProber interface {
	LastModified(ctx context.Context, r *Resource) (time.Time, error)
}

// Lister returns the immediate children of a directory resource.
type Lister interface {
	ListChildren(ctx context.Context, r *Resource) ([]*Resource, error)
}

// Creator creates an empty file or an empty directory. The parent is
// expected to exist; a missing parent is reported as ErrNotFound.
type Creator interface {
	CreateFile(ctx context.Context, r *Resource) error
	CreateDirectory(ctx context.Context, r *Resource) error
}

// Deleter removes a single file or an empty directory.
type Deleter interface {
	Remove(ctx context.Context, r *Resource) error
}

// TypeResolver reconciles the declared type with the backend's view. It is
// called at most once per Resource instance.
type TypeResolver interface {
	ResolveType(ctx context.Context, r *Resource, declared Type) (Type, error)
}

// Deriver builds related resources (children, parents) for backends that
// keep per-instance state such as a live session.
type Deriver interface {
	Derive(from *Resource, u *url.URL, typ Type) (*Resource, error)
}

// CredentialAware backends accept credentials attached to their resources.
type CredentialAware interface {
	AcceptsCredential(c Credential) bool
}

// LocalPather marks local-file-like backends. Their identity hash omits the
// URI scheme and authority.
type LocalPather interface {
	LocalPath(r *Resource) string
}

// ContentHasher backends hold raw bytes. HashContent writes the content to
// w and reports true when it did; the URI-derived hash component is then
// suppressed.
type ContentHasher interface {
	HashContent(r *Resource, w io.Writer) bool
}

// ============================================================================
// Runtime
// ============================================================================

// Processor filters a resource stream after it is opened. Processors are
// installed by the resolution pipeline and applied in order.
type Processor interface {
	Process(ctx context.Context, r *Resource, rc io.ReadCloser) (io.ReadCloser, error)
}

// Runtime carries the pipeline-scoped collaborators a resource needs while
// serving reads: the processor chain and the metrics sink. Derived
// resources share their parent's runtime.
type Runtime struct {
	Processors []Processor
	Metrics    Metrics
}

func (rt *Runtime) metrics() Metrics {
	if rt == nil || rt.Metrics == nil {
		return noopMetrics{}
	}
	return rt.Metrics
}

func (rt *Runtime) processors() []Processor {
	if rt == nil {
		return nil
	}
	return rt.Processors
}
