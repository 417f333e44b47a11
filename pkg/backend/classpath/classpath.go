// Package classpath implements the read-only classpath: backend over an
// ordered list of embedded filesystems.
//
// The classpath is searched in order. A path found in exactly one root is
// an ordinary file or directory of that root. A path found in several roots
// is a composite: a directory-like resource whose length is the sum of its
// parts and whose children are the union of theirs.
package classpath

import (
	"context"
	"io"
	"io/fs"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/marmos91/dittores/pkg/resource"
)

// Scheme is the URI scheme served by this package.
const Scheme = "classpath"

// Root is one classpath entry.
type Root struct {
	Name string
	FS   fs.FS
}

// Backend serves one classpath path. roots is the whole classpath;
// matched holds the entries containing the path, in classpath order.
type Backend struct {
	roots   []Root
	matched []Root
}

// Classpath is an ordered list of roots.
type Classpath struct {
	roots []Root
}

// New creates a classpath searching roots in order.
func New(roots ...Root) *Classpath {
	return &Classpath{roots: append([]Root(nil), roots...)}
}

// Roots returns the classpath entries.
func (c *Classpath) Roots() []Root { return append([]Root(nil), c.roots...) }

// Resource returns the resource for the slash separated path p.
func (c *Classpath) Resource(p string, typ resource.Type) *resource.Resource {
	return build(c.roots, &url.URL{Scheme: Scheme, Path: path.Clean("/" + p)}, typ)
}

func build(roots []Root, u *url.URL, typ resource.Type) *resource.Resource {
	name := fsName(u.Path)
	var matched []Root
	for _, root := range roots {
		if _, err := fs.Stat(root.FS, name); err == nil {
			matched = append(matched, root)
		}
	}
	if len(matched) > 1 {
		typ = resource.TypeDirectory
	}
	return resource.New(&Backend{roots: roots, matched: matched}, u, typ)
}

func fsName(p string) string {
	name := strings.TrimPrefix(path.Clean("/"+p), "/")
	if name == "" {
		return "."
	}
	return name
}

func (b *Backend) Scheme() string { return Scheme }

// Composite reports whether the path was found in more than one root.
func (b *Backend) Composite() bool { return len(b.matched) > 1 }

// Matched returns the names of the roots containing the path.
func (b *Backend) Matched() []string {
	names := make([]string, len(b.matched))
	for i, root := range b.matched {
		names[i] = root.Name
	}
	return names
}

// Derive re-searches the whole classpath for related paths.
func (b *Backend) Derive(_ *resource.Resource, u *url.URL, typ resource.Type) (*resource.Resource, error) {
	return build(b.roots, u, typ), nil
}

// ============================================================================
// Probes
// ============================================================================

func (b *Backend) ResolveType(_ context.Context, r *resource.Resource, declared resource.Type) (resource.Type, error) {
	switch len(b.matched) {
	case 0:
		return declared, nil
	case 1:
		info, err := fs.Stat(b.matched[0].FS, fsName(r.Path()))
		if err != nil {
			return declared, resource.Wrap("stat", r.String(), err)
		}
		if info.IsDir() {
			return resource.TypeDirectory, nil
		}
		return resource.TypeFile, nil
	default:
		return resource.TypeDirectory, nil
	}
}

func (b *Backend) Exists(context.Context, *resource.Resource) (bool, error) {
	return len(b.matched) > 0, nil
}

// Length sums the sizes of the files found under the path.
func (b *Backend) Length(_ context.Context, r *resource.Resource) (int64, error) {
	if len(b.matched) == 0 {
		return 0, notFound("length", r)
	}
	var total int64
	for _, root := range b.matched {
		info, err := fs.Stat(root.FS, fsName(r.Path()))
		if err != nil {
			return 0, resource.Wrap("length", r.String(), err)
		}
		if !info.IsDir() {
			total += info.Size()
		}
	}
	return total, nil
}

// LastModified returns the newest modification time among the parts.
func (b *Backend) LastModified(_ context.Context, r *resource.Resource) (time.Time, error) {
	if len(b.matched) == 0 {
		return time.Time{}, notFound("last_modified", r)
	}
	var latest time.Time
	for _, root := range b.matched {
		info, err := fs.Stat(root.FS, fsName(r.Path()))
		if err != nil {
			return time.Time{}, resource.Wrap("last_modified", r.String(), err)
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}

func notFound(op string, r *resource.Resource) error {
	return resource.NewIOError(op, r.String(), resource.ReasonNotFound, fs.ErrNotExist)
}

// ============================================================================
// Streams and Structure
// ============================================================================

// OpenReader reads a file of a single root. Composites have no content of
// their own.
func (b *Backend) OpenReader(_ context.Context, r *resource.Resource) (io.ReadCloser, error) {
	switch len(b.matched) {
	case 0:
		return nil, notFound("read", r)
	case 1:
		f, err := b.matched[0].FS.Open(fsName(r.Path()))
		if err != nil {
			return nil, resource.Wrap("read", r.String(), err)
		}
		return f, nil
	default:
		return nil, resource.Unsupported("read", r)
	}
}

// ListChildren unions the entries of every matched root. A child present
// in several roots is itself a composite.
func (b *Backend) ListChildren(ctx context.Context, r *resource.Resource) ([]*resource.Resource, error) {
	if len(b.matched) == 0 {
		return nil, notFound("list", r)
	}

	seen := make(map[string]bool)
	var names []string
	for _, root := range b.matched {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := fs.ReadDir(root.FS, fsName(r.Path()))
		if err != nil {
			if len(b.matched) > 1 {
				// A file part of a composite has no children.
				continue
			}
			return nil, resource.Wrap("list", r.String(), err)
		}
		for _, e := range entries {
			if !seen[e.Name()] {
				seen[e.Name()] = true
				names = append(names, e.Name())
			}
		}
	}
	sort.Strings(names)

	children := make([]*resource.Resource, 0, len(names))
	for _, name := range names {
		u := r.URI()
		u.Path = path.Join(r.Path(), name)
		children = append(children, build(b.roots, u, resource.TypeFile))
	}
	return children, nil
}
