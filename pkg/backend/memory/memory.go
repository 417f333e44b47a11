// Package memory implements the memory: backend.
//
// All resources resolved through one Backend share a single named byte
// store, so two handles on the same path observe each other's writes.
// Directories are logical: a path is a directory when it was created as one
// or when some stored file lives below it. The root always exists.
package memory

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittores/pkg/resource"
)

// Scheme is the URI scheme served by this package.
const Scheme = "memory"

// Store holds file content keyed by normalized path.
//
// Thread Safety:
// All operations are protected by a sync.RWMutex. Content is copied on read
// and on write so callers never alias the stored slices.
type Store struct {
	mu    sync.RWMutex
	files map[string]*entry
	dirs  map[string]struct{}
}

type entry struct {
	data    []byte
	modTime time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		files: make(map[string]*entry),
		dirs:  make(map[string]struct{}),
	}
}

// Backend serves memory: resources from a Store.
type Backend struct {
	store *Store
}

// NewBackend creates a backend over store. A nil store gets a fresh one.
func NewBackend(store *Store) *Backend {
	if store == nil {
		store = NewStore()
	}
	return &Backend{store: store}
}

// Store returns the underlying store.
func (b *Backend) Store() *Store { return b.store }

// Resource returns the resource at p with the given declared type.
func (b *Backend) Resource(p string, typ resource.Type) *resource.Resource {
	return resource.New(b, &url.URL{Scheme: Scheme, Path: path.Clean("/" + p)}, typ)
}

func (b *Backend) Scheme() string { return Scheme }

// ============================================================================
// Probes
// ============================================================================

// ResolveType reports a stored file as FILE and a created or implied
// directory as DIRECTORY. Unknown paths keep the declared type.
func (b *Backend) ResolveType(_ context.Context, r *resource.Resource, declared resource.Type) (resource.Type, error) {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()

	p := r.Path()
	if _, ok := b.store.files[p]; ok {
		return resource.TypeFile, nil
	}
	if b.store.isDirLocked(p) {
		return resource.TypeDirectory, nil
	}
	return declared, nil
}

func (b *Backend) Exists(ctx context.Context, r *resource.Resource) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	b.store.mu.RLock()
	defer b.store.mu.RUnlock()

	p := r.Path()
	if _, ok := b.store.files[p]; ok {
		return true, nil
	}
	return b.store.isDirLocked(p), nil
}

func (b *Backend) Length(_ context.Context, r *resource.Resource) (int64, error) {
	e, err := b.lookup(r)
	if err != nil {
		return 0, err
	}
	return int64(len(e.data)), nil
}

func (b *Backend) LastModified(_ context.Context, r *resource.Resource) (time.Time, error) {
	e, err := b.lookup(r)
	if err != nil {
		return time.Time{}, err
	}
	return e.modTime, nil
}

func (b *Backend) lookup(r *resource.Resource) (*entry, error) {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()

	e, ok := b.store.files[r.Path()]
	if !ok {
		return nil, resource.NewIOError("stat", r.String(), resource.ReasonNotFound, nil)
	}
	return e, nil
}

// isDirLocked must be called with mu held.
func (s *Store) isDirLocked(p string) bool {
	if p == "/" {
		return true
	}
	if _, ok := s.dirs[p]; ok {
		return true
	}
	prefix := p + "/"
	for k := range s.files {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	for k := range s.dirs {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// ============================================================================
// Streams
// ============================================================================

// OpenReader returns a reader over a snapshot of the stored content.
func (b *Backend) OpenReader(_ context.Context, r *resource.Resource) (io.ReadCloser, error) {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()

	e, ok := b.store.files[r.Path()]
	if !ok {
		return nil, resource.NewIOError("read", r.String(), resource.ReasonNotFound, nil)
	}

	// Return a copy to prevent external modification
	data := make([]byte, len(e.data))
	copy(data, e.data)
	return io.NopCloser(bytes.NewReader(data)), nil
}

// OpenWriter buffers the written bytes and publishes them on Close.
func (b *Backend) OpenWriter(_ context.Context, r *resource.Resource) (io.WriteCloser, error) {
	return &writer{store: b.store, path: r.Path()}, nil
}

type writer struct {
	bytes.Buffer
	store  *Store
	path   string
	closed bool
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	data := make([]byte, w.Len())
	copy(data, w.Bytes())

	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.files[w.path] = &entry{data: data, modTime: time.Now()}
	return nil
}

// ============================================================================
// Structure
// ============================================================================

// ListChildren returns the immediate children of a directory path.
func (b *Backend) ListChildren(_ context.Context, r *resource.Resource) ([]*resource.Resource, error) {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()

	p := r.Path()
	prefix := p + "/"
	if p == "/" {
		prefix = "/"
	}

	kinds := make(map[string]resource.Type)
	collect := func(key string, leaf resource.Type) {
		if !strings.HasPrefix(key, prefix) || key == p {
			return
		}
		rest := strings.TrimPrefix(key, prefix)
		name, _, nested := strings.Cut(rest, "/")
		if nested {
			kinds[name] = resource.TypeDirectory
			return
		}
		if _, seen := kinds[name]; !seen {
			kinds[name] = leaf
		}
	}
	for k := range b.store.files {
		collect(k, resource.TypeFile)
	}
	for k := range b.store.dirs {
		collect(k, resource.TypeDirectory)
	}

	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	children := make([]*resource.Resource, 0, len(names))
	for _, name := range names {
		u := r.URI()
		u.Fragment = ""
		u.Path = path.Join(p, name)
		children = append(children, resource.New(b, u, kinds[name], resource.WithCredentialOption(r.Credential())))
	}
	return children, nil
}

func (b *Backend) CreateFile(_ context.Context, r *resource.Resource) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	p := r.Path()
	if _, ok := b.store.files[p]; !ok {
		b.store.files[p] = &entry{data: []byte{}, modTime: time.Now()}
	}
	return nil
}

func (b *Backend) CreateDirectory(_ context.Context, r *resource.Resource) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	if p := r.Path(); p != "/" {
		b.store.dirs[p] = struct{}{}
	}
	return nil
}

// Remove deletes a file or an empty directory.
func (b *Backend) Remove(_ context.Context, r *resource.Resource) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	p := r.Path()
	if _, ok := b.store.files[p]; ok {
		delete(b.store.files, p)
		return nil
	}
	if _, ok := b.store.dirs[p]; !ok {
		return resource.NewIOError("delete", r.String(), resource.ReasonNotFound, nil)
	}
	delete(b.store.dirs, p)
	if b.store.isDirLocked(p) {
		b.store.dirs[p] = struct{}{}
		return resource.NewIOError("delete", r.String(), resource.ReasonFailure, errDirectoryNotEmpty)
	}
	return nil
}
