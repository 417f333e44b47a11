// Package kv implements the kv: backend, storing files as framed records in
// an embedded badger database.
//
// All resources under one root directory share a single database handle
// obtained from a Manager. Each resource instance holds that handle through
// a session.Holder: the engine is the session, a badger transaction is the
// per-operation channel.
package kv

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittores/pkg/resource"
	"github.com/marmos91/dittores/pkg/session"
)

// Scheme is the URI scheme served by this package.
const Scheme = "kv"

// errEngineClosed marks a held engine whose database was closed underneath.
var errEngineClosed = errors.New("kv engine closed")

// Backend serves kv: resources under one root directory.
//
// A Backend is bound to exactly one resource instance (see Derive), so its
// Holder satisfies the one-live-session-per-resource rule.
type Backend struct {
	manager *Manager
	root    string
	holder  *session.Holder[*Engine, *badger.Txn]
}

// NewBackend creates a backend for root using manager's engine table.
func NewBackend(manager *Manager, root string) *Backend {
	p := &provider{manager: manager, root: root}
	return &Backend{
		manager: manager,
		root:    root,
		holder:  session.NewHolder[*Engine, *badger.Txn](p),
	}
}

// Resource returns the resource at p on a fresh backend instance.
func (b *Backend) Resource(p string, typ resource.Type) *resource.Resource {
	u := &url.URL{Scheme: Scheme, Path: cleanPath(p), RawQuery: url.Values{"root": {b.root}}.Encode()}
	return resource.New(b.fork(), u, typ)
}

func (b *Backend) fork() *Backend {
	return NewBackend(b.manager, b.root)
}

func (b *Backend) Scheme() string { return Scheme }

// Derive gives every derived resource its own backend and therefore its
// own session holder.
func (b *Backend) Derive(_ *resource.Resource, u *url.URL, typ resource.Type) (*resource.Resource, error) {
	return resource.New(b.fork(), u, typ), nil
}

// Close releases this instance's hold on the engine. The database itself
// stays open until the Manager sweeps it.
func (b *Backend) Close() error {
	return b.holder.Close()
}

// ============================================================================
// Session Provider
// ============================================================================

type provider struct {
	manager *Manager
	root    string
}

func (p *provider) Open(ctx context.Context) (*Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.manager.Get(p.root)
}

func (p *provider) Validate(_ context.Context, e *Engine) error {
	if e.Closed() {
		return errEngineClosed
	}
	return nil
}

// CloseSession drops the reference only; the database belongs to the Manager.
func (p *provider) CloseSession(*Engine) error { return nil }

func (p *provider) OpenChannel(_ context.Context, e *Engine) (*badger.Txn, error) {
	return e.db.NewTransaction(true), nil
}

func (p *provider) CloseChannel(txn *badger.Txn) error {
	txn.Discard()
	return nil
}

func (p *provider) Translate(op string, err error) error {
	var ioErr *resource.IOError
	if errors.As(err, &ioErr) {
		return err
	}
	uri := Scheme + "://" + p.root
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return resource.NewIOError(op, uri, resource.ReasonNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return resource.NewIOError(op, uri, resource.ReasonFailure, err)
	}
}

// ============================================================================
// Probes
// ============================================================================

// ResolveType reports a stored record as FILE and a path with records below
// it as DIRECTORY. The root is always a directory.
func (b *Backend) ResolveType(ctx context.Context, r *resource.Resource, declared resource.Type) (resource.Type, error) {
	p := r.Path()
	if p == "/" {
		return resource.TypeDirectory, nil
	}
	return session.Call(ctx, b.holder, "stat", func(txn *badger.Txn) (resource.Type, error) {
		_, err := txn.Get(keyRecord(p))
		switch {
		case err == nil:
			return resource.TypeFile, nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return declared, err
		case hasDescendants(txn, p):
			return resource.TypeDirectory, nil
		default:
			return declared, nil
		}
	})
}

// Exists is true for the root, for stored records and for logical
// directories with at least one record below them.
func (b *Backend) Exists(ctx context.Context, r *resource.Resource) (bool, error) {
	p := r.Path()
	if p == "/" {
		return true, nil
	}
	return session.Call(ctx, b.holder, "exists", func(txn *badger.Txn) (bool, error) {
		_, err := txn.Get(keyRecord(p))
		switch {
		case err == nil:
			return true, nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return false, err
		default:
			return hasDescendants(txn, p), nil
		}
	})
}

func (b *Backend) Length(ctx context.Context, r *resource.Resource) (int64, error) {
	h, err := b.header(ctx, r, "length")
	if err != nil {
		return 0, err
	}
	return int64(h.Length), nil
}

func (b *Backend) LastModified(ctx context.Context, r *resource.Resource) (time.Time, error) {
	h, err := b.header(ctx, r, "last_modified")
	if err != nil {
		return time.Time{}, err
	}
	return h.ModTime, nil
}

// header decodes only the fixed-size prefix of the record.
func (b *Backend) header(ctx context.Context, r *resource.Resource, op string) (recordHeader, error) {
	return session.Call(ctx, b.holder, op, func(txn *badger.Txn) (recordHeader, error) {
		item, err := txn.Get(keyRecord(r.Path()))
		if err != nil {
			return recordHeader{}, b.notFound(op, r, err)
		}
		var h recordHeader
		err = item.Value(func(val []byte) error {
			var err error
			h, err = decodeHeader(val)
			return err
		})
		return h, err
	})
}

func hasDescendants(txn *badger.Txn, p string) bool {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = keyChildPrefix(p)

	it := txn.NewIterator(opts)
	defer it.Close()

	it.Rewind()
	return it.Valid()
}

func (b *Backend) notFound(op string, r *resource.Resource, err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return resource.NewIOError(op, r.String(), resource.ReasonNotFound, err)
	}
	return err
}

// ============================================================================
// Streams
// ============================================================================

// OpenReader returns the payload of the record, stripped of its header.
func (b *Backend) OpenReader(ctx context.Context, r *resource.Resource) (io.ReadCloser, error) {
	payload, err := session.Call(ctx, b.holder, "read", func(txn *badger.Txn) ([]byte, error) {
		item, err := txn.Get(keyRecord(r.Path()))
		if err != nil {
			return nil, b.notFound("read", r, err)
		}
		var payload []byte
		err = item.Value(func(val []byte) error {
			var err error
			payload, _, err = decodeRecord(val)
			return err
		})
		return payload, err
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

// OpenWriter buffers the whole payload and stores it with one put on Close.
func (b *Backend) OpenWriter(ctx context.Context, r *resource.Resource) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &recordWriter{ctx: ctx, backend: b, key: keyRecord(r.Path())}, nil
}

type recordWriter struct {
	bytes.Buffer
	ctx     context.Context
	backend *Backend
	key     []byte
	closed  bool
}

func (w *recordWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	value := encodeRecord(w.Bytes(), time.Now())
	return w.backend.holder.Do(w.ctx, "write", func(txn *badger.Txn) error {
		if err := txn.Set(w.key, value); err != nil {
			return err
		}
		return txn.Commit()
	})
}

// ============================================================================
// Structure
// ============================================================================

// ListChildren folds the record keys below r into immediate children.
func (b *Backend) ListChildren(ctx context.Context, r *resource.Resource) ([]*resource.Resource, error) {
	p := r.Path()
	kinds, err := session.Call(ctx, b.holder, "list", func(txn *badger.Txn) (map[string]resource.Type, error) {
		prefix := keyChildPrefix(p)

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // Only need keys
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		kinds := make(map[string]resource.Type)
		count := 0
		for it.Rewind(); it.Valid(); it.Next() {
			// Check context periodically
			if count%100 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			count++

			name, dir := childOf(it.Item().Key(), prefix)
			if name == "" {
				continue
			}
			if dir {
				kinds[name] = resource.TypeDirectory
			} else if _, seen := kinds[name]; !seen {
				kinds[name] = resource.TypeFile
			}
		}
		return kinds, nil
	})
	if err != nil {
		return nil, err
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
		u.Path = cleanPath(p + "/" + name)
		children = append(children, resource.New(b.fork(), u, kinds[name]))
	}
	return children, nil
}

// CreateFile stores an empty record unless one exists.
func (b *Backend) CreateFile(ctx context.Context, r *resource.Resource) error {
	key := keyRecord(r.Path())
	return b.holder.Do(ctx, "create", func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, encodeRecord(nil, time.Now())); err != nil {
			return err
		}
		return txn.Commit()
	})
}

// CreateDirectory is a no-op: directories exist through their contents.
func (b *Backend) CreateDirectory(context.Context, *resource.Resource) error { return nil }

// Remove deletes a file record. Directories have no record to delete.
func (b *Backend) Remove(ctx context.Context, r *resource.Resource) error {
	p := r.Path()
	if p == "/" {
		return nil
	}
	return b.holder.Do(ctx, "delete", func(txn *badger.Txn) error {
		if err := txn.Delete(keyRecord(p)); err != nil {
			return err
		}
		return txn.Commit()
	})
}
