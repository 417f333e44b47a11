// Package local implements the file: backend on top of the operating system
// filesystem.
package local

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/marmos91/dittores/pkg/resource"
)

// Scheme is the URI scheme served by this package.
const Scheme = "file"

// Backend serves file: resources from the local filesystem.
//
// When root is set, URI paths are interpreted relative to it; the backend
// never reaches outside root because every path is cleaned from "/" first.
// An empty root maps URI paths to absolute OS paths.
//
// Thread Safety:
// The underlying filesystem operations are thread-safe at the OS level.
// Writers go through a temporary file renamed into place on Close, so
// readers never see a partially written file.
type Backend struct {
	root string
}

// New creates a backend rooted at root ("" for the whole filesystem).
func New(root string) *Backend {
	return &Backend{root: root}
}

// Resource returns the resource for the slash separated path p.
func (b *Backend) Resource(p string, typ resource.Type) *resource.Resource {
	return resource.New(b, &url.URL{Scheme: Scheme, Path: path.Clean("/" + p)}, typ)
}

func (b *Backend) Scheme() string { return Scheme }

// LocalPath returns the OS path of r.
//
// This is a lightweight helper that performs no I/O.
//
// Parameters:
//   - r: Resource served by this backend
//
// Returns:
//   - string: Full filesystem path for the resource
func (b *Backend) LocalPath(r *resource.Resource) string {
	p := filepath.FromSlash(r.Path())
	if b.root == "" {
		return p
	}
	return filepath.Join(b.root, p)
}

// ============================================================================
// Probes
// ============================================================================

// ResolveType stats the path; a missing path keeps the declared type.
func (b *Backend) ResolveType(ctx context.Context, r *resource.Resource, declared resource.Type) (resource.Type, error) {
	if err := ctx.Err(); err != nil {
		return declared, err
	}

	info, err := os.Stat(b.LocalPath(r))
	if err != nil {
		if os.IsNotExist(err) {
			return declared, nil
		}
		return declared, resource.Wrap("stat", r.String(), err)
	}
	if info.IsDir() {
		return resource.TypeDirectory, nil
	}
	return resource.TypeFile, nil
}

// Exists checks if the resource exists.
//
// This is a lightweight existence check that only performs a stat operation.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - r: Resource to check
//
// Returns:
//   - bool: True if the path exists, false otherwise
//   - error: Returns error on filesystem errors (excluding not-exists) or
//     context cancellation
func (b *Backend) Exists(ctx context.Context, r *resource.Resource) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(b.LocalPath(r))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, resource.Wrap("exists", r.String(), err)
	}
	return true, nil
}

func (b *Backend) Length(ctx context.Context, r *resource.Resource) (int64, error) {
	info, err := b.stat(ctx, r)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, nil
	}
	return info.Size(), nil
}

func (b *Backend) LastModified(ctx context.Context, r *resource.Resource) (time.Time, error) {
	info, err := b.stat(ctx, r)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (b *Backend) stat(ctx context.Context, r *resource.Resource) (os.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(b.LocalPath(r))
	if err != nil {
		return nil, resource.Wrap("stat", r.String(), err)
	}
	return info, nil
}

// ============================================================================
// Streams
// ============================================================================

// OpenReader returns a reader for the file content.
//
// The caller is responsible for closing the returned ReadCloser.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - r: File resource to read
//
// Returns:
//   - io.ReadCloser: Reader for the content (must be closed by caller)
//   - error: Returns ErrNotFound if the file is missing
func (b *Backend) OpenReader(ctx context.Context, r *resource.Resource) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(b.LocalPath(r))
	if err != nil {
		return nil, resource.Wrap("read", r.String(), err)
	}
	return file, nil
}

// OpenWriter returns a writer replacing the file content.
//
// Data goes to a temporary file next to the target, renamed over the target
// when the writer is closed. The parent directory must exist.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - r: File resource to write
//
// Returns:
//   - io.WriteCloser: Writer for the content (must be closed by caller)
//   - error: Returns ErrNotFound if the parent directory is missing
func (b *Backend) OpenWriter(ctx context.Context, r *resource.Resource) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := b.LocalPath(r)
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, resource.Wrap("write", r.String(), err)
	}
	return &atomicWriter{File: tmp, target: target}, nil
}

type atomicWriter struct {
	*os.File
	target string
	done   bool
}

func (w *atomicWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true

	if err := w.File.Close(); err != nil {
		_ = os.Remove(w.Name())
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(w.Name(), w.target); err != nil {
		_ = os.Remove(w.Name())
		return fmt.Errorf("failed to move content into place: %w", err)
	}
	return nil
}

// ============================================================================
// Structure
// ============================================================================

// ListChildren reads the directory entries of r.
func (b *Backend) ListChildren(ctx context.Context, r *resource.Resource) ([]*resource.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(b.LocalPath(r))
	if err != nil {
		return nil, resource.Wrap("list", r.String(), err)
	}

	children := make([]*resource.Resource, 0, len(entries))
	for _, e := range entries {
		typ := resource.TypeFile
		if e.IsDir() {
			typ = resource.TypeDirectory
		}
		u := r.URI()
		u.Fragment = ""
		u.Path = path.Join(r.Path(), e.Name())
		children = append(children, resource.New(b, u, typ))
	}
	return children, nil
}

// CreateFile creates an empty file. A missing parent is reported as
// ErrNotFound so the caller can create the parent chain and retry.
func (b *Backend) CreateFile(ctx context.Context, r *resource.Resource) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	file, err := os.OpenFile(b.LocalPath(r), os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return resource.Wrap("create", r.String(), err)
	}
	return file.Close()
}

func (b *Backend) CreateDirectory(ctx context.Context, r *resource.Resource) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Mkdir(b.LocalPath(r), 0755); err != nil && !os.IsExist(err) {
		return resource.Wrap("create", r.String(), err)
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context, r *resource.Resource) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(b.LocalPath(r)); err != nil {
		return resource.Wrap("delete", r.String(), err)
	}
	return nil
}
