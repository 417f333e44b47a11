// Package resource provides a uniform handle over byte-addressable entities
// (local files, embedded assets, memory buffers, object stores, SSH servers,
// embedded key-value engines, archive entries).
//
// A Resource is immutable. Every With* method returns a new instance that
// shares unrelated state with the receiver; the receiver is never modified.
// Equality is defined by (Type, ID) only.
//
// Backends supply a handful of primitives (see backend.go). Everything else
// (stream wrapping, metrics, hashing, create/delete/empty, walk/list/copy)
// lives here and works identically for every backend.
package resource

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/marmos91/dittores/internal/logger"
)

// Resource is an immutable handle over a file or directory of some backend.
type Resource struct {
	backend  Backend
	declared Type
	kind     *typeCell

	id  string
	uri *url.URL

	name        string
	description string
	credential  Credential
	attrs       *Attributes
	fragment    string

	mimeOverride string
	mime         *lazyString
	hash         *lazyString

	runtime *Runtime
}

// Option configures a Resource at construction time.
type Option func(*Resource)

// WithID sets an explicit identifier. By default the id is the URI string
// without its fragment.
func WithID(id string) Option {
	return func(r *Resource) { r.id = id }
}

// InFragment sets the sub-resource locator.
func InFragment(fragment string) Option {
	return func(r *Resource) { r.fragment = fragment }
}

// WithRuntimeOption installs processors and metrics.
func WithRuntimeOption(rt *Runtime) Option {
	return func(r *Resource) { r.runtime = rt }
}

// WithCredentialOption attaches a credential at construction time.
func WithCredentialOption(c Credential) Option {
	return func(r *Resource) { r.credential = c }
}

// New creates a resource served by backend. The URI is copied; a fragment
// on the URI becomes the resource fragment unless one is given explicitly.
// URIs without authority render as "scheme:/path".
func New(backend Backend, u *url.URL, typ Type, opts ...Option) *Resource {
	cp := *u
	r := &Resource{
		backend:  backend,
		declared: typ,
		kind:     newTypeCell(),
		uri:      &cp,
		fragment: u.Fragment,
		mime:     &lazyString{},
		hash:     &lazyString{},
	}
	r.uri.Fragment = ""
	r.uri.RawFragment = ""
	if r.uri.Host == "" && r.uri.User == nil {
		r.uri.OmitHost = true
	}

	for _, opt := range opts {
		opt(r)
	}
	if r.id == "" {
		r.id = r.uri.String()
	}
	return r
}

// ParseURI parses s and normalizes opaque forms ("memory:foo") into path
// forms ("memory:/foo") so every backend sees a rooted path.
func ParseURI(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, &ConfigError{Msg: "invalid URI " + s, Err: err}
	}
	if u.Opaque != "" {
		opaque := u.Opaque
		u.Opaque = ""
		u.Path = "/" + strings.TrimLeft(opaque, "/")
		u.RawPath = ""
	}
	if u.Scheme == "" {
		u.Scheme = "file"
	}
	return u, nil
}

// ============================================================================
// Accessors
// ============================================================================

func (r *Resource) Backend() Backend { return r.backend }

// ID returns the backend-scoped stable identifier.
func (r *Resource) ID() string { return r.id }

// URI returns a copy of the resource URI, including the fragment if any.
func (r *Resource) URI() *url.URL {
	cp := *r.uri
	cp.Fragment = r.fragment
	return &cp
}

func (r *Resource) Scheme() string { return r.uri.Scheme }

// Path returns the rooted, cleaned path component of the URI.
func (r *Resource) Path() string {
	p := r.uri.Path
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

// FileName returns the last path element, or "" for the root.
func (r *Resource) FileName() string {
	p := r.Path()
	if p == "/" {
		return ""
	}
	return path.Base(p)
}

// Name returns the display name, defaulting to FileName.
func (r *Resource) Name() string {
	if r.name != "" {
		return r.name
	}
	return r.FileName()
}

// Description defaults to Name.
func (r *Resource) Description() string {
	if r.description != "" {
		return r.description
	}
	return r.Name()
}

func (r *Resource) Credential() Credential { return r.credential }

// Attribute returns the attribute stored under key.
func (r *Resource) Attribute(key string) (string, bool) { return r.attrs.Get(key) }

// Attributes returns the attribute set. It must be treated as read-only.
func (r *Resource) Attributes() *Attributes { return r.attrs }

func (r *Resource) Fragment() string { return r.fragment }

// Runtime returns the processor/metrics runtime, possibly nil.
func (r *Resource) Runtime() *Runtime { return r.runtime }

// DeclaredType returns the type supplied at construction, before any probe.
func (r *Resource) DeclaredType() Type { return r.declared }

// Key is the equality key of a resource.
type Key struct {
	Type Type
	ID   string
}

// Key returns (declared type, id). The declared type is fixed when the
// instance is built, so the key does not change once Type has probed the
// backend.
func (r *Resource) Key() Key {
	return Key{Type: r.declared, ID: r.id}
}

// Equal reports whether both resources have the same (type, id).
func (r *Resource) Equal(other *Resource) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Key() == other.Key()
}

func (r *Resource) String() string {
	return r.URI().String()
}

// Type returns the reconciled type. The first call asks the backend (if it
// implements TypeResolver) and caches the answer for the lifetime of this
// instance; concurrent first calls resolve once.
func (r *Resource) Type(ctx context.Context) Type {
	r.kind.once.Do(func() {
		t := r.declared
		if resolver, ok := r.backend.(TypeResolver); ok {
			resolved, err := resolver.ResolveType(ctx, r, r.declared)
			if err != nil {
				logger.Debug("type resolution failed for %s, keeping %s: %v", r, r.declared, err)
			} else {
				t = resolved
			}
		}
		r.kind.resolved.Store(int32(t))
	})
	t, _ := r.kind.peek()
	return t
}

// IsDirectory is shorthand for Type(ctx) == TypeDirectory.
func (r *Resource) IsDirectory(ctx context.Context) bool {
	return r.Type(ctx) == TypeDirectory
}

// ============================================================================
// Derivation (copy-on-write)
// ============================================================================

// derive copies r, gives the copy a fresh hash cell, applies fn and returns
// the copy. The type and MIME cells are shared unless fn replaces them.
func (r *Resource) derive(fn func(c *Resource)) *Resource {
	c := *r
	c.hash = &lazyString{}
	fn(&c)
	return &c
}

// WithAttribute returns a copy with key set to value.
func (r *Resource) WithAttribute(key, value string) *Resource {
	return r.derive(func(c *Resource) { c.attrs = r.attrs.with(key, value) })
}

// WithAttributes returns a copy whose attributes are the union of the
// current ones and attrs (attrs wins on conflicts).
func (r *Resource) WithAttributes(attrs *Attributes) *Resource {
	return r.derive(func(c *Resource) { c.attrs = r.attrs.union(attrs) })
}

// WithoutAttribute returns a copy without key.
func (r *Resource) WithoutAttribute(key string) *Resource {
	return r.derive(func(c *Resource) { c.attrs = r.attrs.without(key) })
}

// WithCredential returns a copy carrying cred. Backends with per-instance
// sessions get a fresh session for the copy.
func (r *Resource) WithCredential(cred Credential) *Resource {
	c := r.derive(func(c *Resource) { c.credential = cred })
	if d, ok := r.backend.(Deriver); ok {
		if fresh, err := d.Derive(c, c.uri, c.declared); err == nil {
			fresh.copyIdentity(c)
			return fresh
		}
	}
	return c
}

// WithName overrides the display name.
func (r *Resource) WithName(name string) *Resource {
	return r.derive(func(c *Resource) { c.name = name })
}

// WithDescription overrides the description.
func (r *Resource) WithDescription(desc string) *Resource {
	return r.derive(func(c *Resource) { c.description = desc })
}

// WithMimeType overrides the MIME type; an empty value restores detection.
func (r *Resource) WithMimeType(mimeType string) *Resource {
	return r.derive(func(c *Resource) {
		c.mimeOverride = mimeType
		c.mime = &lazyString{}
	})
}

// WithFragment returns a copy addressing another sub-resource.
func (r *Resource) WithFragment(fragment string) *Resource {
	return r.derive(func(c *Resource) {
		c.fragment = fragment
		c.mime = &lazyString{}
	})
}

// WithType returns a copy with another declared type and a fresh type cell.
func (r *Resource) WithType(typ Type) *Resource {
	return r.derive(func(c *Resource) {
		c.declared = typ
		c.kind = newTypeCell()
	})
}

// WithRuntime returns a copy using rt for processors and metrics.
func (r *Resource) WithRuntime(rt *Runtime) *Resource {
	return r.derive(func(c *Resource) { c.runtime = rt })
}

// copyIdentity carries the caller-visible overrides of src onto r. Used when
// a Deriver returns a brand new instance that must look like src.
func (r *Resource) copyIdentity(src *Resource) {
	r.name = src.name
	r.description = src.description
	r.credential = src.credential
	r.attrs = src.attrs
	r.fragment = src.fragment
	r.mimeOverride = src.mimeOverride
	r.runtime = src.runtime
	r.id = src.id
}

// ============================================================================
// Navigation
// ============================================================================

// related builds a resource at u on the same backend, inheriting the
// credential and runtime but none of the per-instance overrides.
func (r *Resource) related(u *url.URL, typ Type) (*Resource, error) {
	if d, ok := r.backend.(Deriver); ok {
		out, err := d.Derive(r, u, typ)
		if err != nil {
			return nil, err
		}
		if out.runtime == nil {
			out.runtime = r.runtime
		}
		if out.credential == nil {
			out.credential = r.credential
		}
		return out, nil
	}
	return New(r.backend, u, typ, WithRuntimeOption(r.runtime), WithCredentialOption(r.credential)), nil
}

// Child returns the direct child called name.
func (r *Resource) Child(ctx context.Context, name string, typ Type) (*Resource, error) {
	if name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
		return nil, Configf("invalid child name %q", name)
	}
	if r.Type(ctx) != TypeDirectory {
		return nil, Configf("%s is not a directory", r)
	}
	return r.related(joinURI(r.uri, name), typ)
}

// Descendant resolves a slash separated relative path below r. Intermediate
// elements are directories; the last one gets typ.
func (r *Resource) Descendant(ctx context.Context, rel string, typ Type) (*Resource, error) {
	rel = strings.Trim(path.Clean("/"+rel), "/")
	if rel == "" {
		return r, nil
	}
	if r.Type(ctx) != TypeDirectory {
		return nil, Configf("%s is not a directory", r)
	}
	return r.related(joinURI(r.uri, rel), typ)
}

// Parent returns the containing directory, or nil for a root resource.
func (r *Resource) Parent() *Resource {
	p := r.Path()
	if p == "/" {
		return nil
	}
	u := *r.uri
	u.Path = path.Dir(p)
	u.RawPath = ""
	parent, err := r.related(&u, TypeDirectory)
	if err != nil {
		logger.Debug("cannot derive parent of %s: %v", r, err)
		return nil
	}
	return parent
}

// RelativePath returns the path of r relative to ancestor, or "" when r is
// not below ancestor.
func (r *Resource) RelativePath(ancestor *Resource) string {
	base := ancestor.Path()
	p := r.Path()
	if base == "/" {
		return strings.TrimPrefix(p, "/")
	}
	if !strings.HasPrefix(p, base+"/") {
		return ""
	}
	return strings.TrimPrefix(p, base+"/")
}

func joinURI(u *url.URL, rel string) *url.URL {
	out := *u
	out.Path = path.Join("/"+u.Path, rel)
	out.RawPath = ""
	out.Fragment = ""
	out.RawFragment = ""
	return &out
}
