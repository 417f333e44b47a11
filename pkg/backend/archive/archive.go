// Package archive exposes the entries of archive files as read-only
// resources.
//
// An archive is recognised by the extension of its file name. The archive
// file itself becomes a directory and every entry lives below it:
// "file:/data/site.zip/css/main.css" is the entry "css/main.css" of
// "/data/site.zip". Zip, tar, tar.gz and 7z archives hold many entries;
// gzip, bzip2, zstd and lz4 files hold a single entry named after the file
// without its compression extension.
package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/marmos91/dittores/internal/logger"
	"github.com/marmos91/dittores/pkg/processor"
	"github.com/marmos91/dittores/pkg/resource"
)

// Scheme names the backend in metrics; resources keep the scheme of the
// archive file.
const Scheme = "archive"

type entry struct {
	size    int64
	modTime time.Time
	dir     bool
}

// Backend serves the entries of one archive file. All resources of the
// same archive share the Backend and its entry index.
type Backend struct {
	source *resource.Resource
	format Format

	mu       sync.Mutex
	indexed  bool
	entries  map[string]*entry
	children map[string][]string
}

// Open returns the archive root for source, a directory listing the
// top-level entries.
func Open(source *resource.Resource, format Format) *resource.Resource {
	b := &Backend{source: source, format: format}
	u := source.URI()
	return resource.New(b, u, resource.TypeDirectory,
		resource.WithRuntimeOption(source.Runtime()),
		resource.WithCredentialOption(source.Credential()))
}

func (b *Backend) Scheme() string { return Scheme }

// Source returns the archive file.
func (b *Backend) Source() *resource.Resource { return b.source }

// Format returns the archive format.
func (b *Backend) Format() Format { return b.format }

// entryName returns the entry path of r, "" for the archive root.
func (b *Backend) entryName(r *resource.Resource) string {
	rel := strings.TrimPrefix(r.Path(), b.source.Path())
	return strings.Trim(rel, "/")
}

func (b *Backend) within(p string) bool {
	root := b.source.Path()
	return p == root || strings.HasPrefix(p, root+"/")
}

// Derive keeps paths inside the archive on this backend. The parent of the
// archive root is the parent of the archive file.
func (b *Backend) Derive(from *resource.Resource, u *url.URL, typ resource.Type) (*resource.Resource, error) {
	if b.within(u.Path) {
		return resource.New(b, u, typ), nil
	}
	if u.Path == path.Dir(b.source.Path()) {
		if parent := b.source.Parent(); parent != nil {
			return parent, nil
		}
	}
	return nil, resource.Configf("%s is outside archive %s", u.Path, b.source)
}

// ============================================================================
// Index
// ============================================================================

func (b *Backend) index(ctx context.Context) (map[string]*entry, map[string][]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.indexed {
		return b.entries, b.children, nil
	}

	exists, err := b.source.Exists(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, resource.NewIOError("index", b.source.String(), resource.ReasonNotFound, fs.ErrNotExist)
	}

	entries := make(map[string]*entry)
	add := func(name string, e *entry) {
		name = cleanEntry(name)
		if name == "" {
			return
		}
		entries[name] = e
		for dir := path.Dir(name); dir != "."; dir = path.Dir(dir) {
			if _, ok := entries[dir]; !ok {
				entries[dir] = &entry{dir: true, modTime: e.modTime}
			}
		}
	}

	if err := b.scan(ctx, add); err != nil {
		return nil, nil, err
	}

	children := make(map[string][]string)
	for name := range entries {
		parent := path.Dir(name)
		if parent == "." {
			parent = ""
		}
		children[parent] = append(children[parent], path.Base(name))
	}
	for _, names := range children {
		sort.Strings(names)
	}

	b.entries, b.children, b.indexed = entries, children, true
	logger.Debug("indexed %s archive %s: %d entries", b.format, b.source, len(entries))
	return entries, children, nil
}

func cleanEntry(name string) string {
	return strings.Trim(path.Clean("/"+name), "/")
}

func (b *Backend) scan(ctx context.Context, add func(string, *entry)) error {
	switch b.format {
	case FormatZip:
		zr, closer, err := b.openZip(ctx)
		if err != nil {
			return err
		}
		defer closer.Close()
		for _, f := range zr.File {
			add(f.Name, &entry{size: int64(f.UncompressedSize64), modTime: f.Modified, dir: f.FileInfo().IsDir()})
		}
		return nil

	case FormatSevenZip:
		sr, closer, err := b.openSevenZip(ctx)
		if err != nil {
			return err
		}
		defer closer.Close()
		for _, f := range sr.File {
			info := f.FileInfo()
			add(f.Name, &entry{size: info.Size(), modTime: info.ModTime(), dir: info.IsDir()})
		}
		return nil

	case FormatTar, FormatTarGz:
		tr, closer, err := b.openTar(ctx)
		if err != nil {
			return err
		}
		defer closer.Close()
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read tar header: %w", err)
			}
			switch hdr.Typeflag {
			case tar.TypeDir:
				add(hdr.Name, &entry{modTime: hdr.ModTime, dir: true})
			case tar.TypeReg:
				add(hdr.Name, &entry{size: hdr.Size, modTime: hdr.ModTime})
			}
		}

	default:
		mtime, err := b.source.LastModified(ctx)
		if err != nil {
			return err
		}
		// The decoded size is only known after decoding.
		rc, err := b.openSingle(ctx)
		if err != nil {
			return err
		}
		defer rc.Close()
		n, err := io.Copy(io.Discard, rc)
		if err != nil {
			return fmt.Errorf("decode %s stream: %w", b.format, err)
		}
		add(singleEntryName(b.source.Path()), &entry{size: n, modTime: mtime})
		return nil
	}
}

// ============================================================================
// Source Access
// ============================================================================

// openRandom gives random access to the archive file. Local files are
// opened directly; anything else is read into memory.
func (b *Backend) openRandom(ctx context.Context) (io.ReaderAt, int64, io.Closer, error) {
	if lp, ok := b.source.Backend().(resource.LocalPather); ok {
		f, err := os.Open(lp.LocalPath(b.source))
		if err != nil {
			return nil, 0, nil, resource.Wrap("read", b.source.String(), err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, nil, resource.Wrap("read", b.source.String(), err)
		}
		return f, info.Size(), f, nil
	}

	data, err := b.source.ReadAllRaw(ctx)
	if err != nil {
		return nil, 0, nil, err
	}
	return bytes.NewReader(data), int64(len(data)), nopCloser{}, nil
}

func (b *Backend) openZip(ctx context.Context) (*zip.Reader, io.Closer, error) {
	ra, size, closer, err := b.openRandom(ctx)
	if err != nil {
		return nil, nil, err
	}
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("open zip %s: %w", b.source, err)
	}
	return zr, closer, nil
}

func (b *Backend) openSevenZip(ctx context.Context) (*sevenzip.Reader, io.Closer, error) {
	ra, size, closer, err := b.openRandom(ctx)
	if err != nil {
		return nil, nil, err
	}
	sr, err := sevenzip.NewReader(ra, size)
	if err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("open 7z %s: %w", b.source, err)
	}
	return sr, closer, nil
}

func (b *Backend) openTar(ctx context.Context) (*tar.Reader, io.Closer, error) {
	rc, err := b.source.Reader(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	if b.format != FormatTarGz {
		return tar.NewReader(rc), rc, nil
	}
	zr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, nil, fmt.Errorf("open tar.gz %s: %w", b.source, err)
	}
	return tar.NewReader(zr), multiCloser{zr, rc}, nil
}

func (b *Backend) openSingle(ctx context.Context) (io.ReadCloser, error) {
	rc, err := b.source.Reader(ctx, true)
	if err != nil {
		return nil, err
	}
	dec, err := processor.NewReader(b.format.codec(), rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("open %s stream %s: %w", b.format, b.source, err)
	}
	return readCloser{Reader: dec, Closer: multiCloser{dec, rc}}, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type readCloser struct {
	io.Reader
	io.Closer
}

// ============================================================================
// Probes
// ============================================================================

func (b *Backend) lookup(ctx context.Context, r *resource.Resource) (*entry, error) {
	entries, _, err := b.index(ctx)
	if err != nil {
		return nil, err
	}
	e, ok := entries[b.entryName(r)]
	if !ok {
		return nil, resource.NewIOError("stat", r.String(), resource.ReasonNotFound, fs.ErrNotExist)
	}
	return e, nil
}

func (b *Backend) ResolveType(ctx context.Context, r *resource.Resource, declared resource.Type) (resource.Type, error) {
	if b.entryName(r) == "" {
		return resource.TypeDirectory, nil
	}
	e, err := b.lookup(ctx, r)
	if resource.IsNotFound(err) {
		return declared, nil
	}
	if err != nil {
		return declared, err
	}
	if e.dir {
		return resource.TypeDirectory, nil
	}
	return resource.TypeFile, nil
}

func (b *Backend) Exists(ctx context.Context, r *resource.Resource) (bool, error) {
	if b.entryName(r) == "" {
		return b.source.Exists(ctx)
	}
	_, err := b.lookup(ctx, r)
	if resource.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// Length is the decoded size of an entry, or the size of the archive file
// for the root.
func (b *Backend) Length(ctx context.Context, r *resource.Resource) (int64, error) {
	if b.entryName(r) == "" {
		return b.source.Length(ctx)
	}
	e, err := b.lookup(ctx, r)
	if err != nil {
		return 0, err
	}
	return e.size, nil
}

func (b *Backend) LastModified(ctx context.Context, r *resource.Resource) (time.Time, error) {
	if b.entryName(r) == "" {
		return b.source.LastModified(ctx)
	}
	e, err := b.lookup(ctx, r)
	if err != nil {
		return time.Time{}, err
	}
	return e.modTime, nil
}

// ============================================================================
// Streams and Structure
// ============================================================================

// OpenReader decodes one entry.
func (b *Backend) OpenReader(ctx context.Context, r *resource.Resource) (io.ReadCloser, error) {
	name := b.entryName(r)
	if _, err := b.lookup(ctx, r); err != nil {
		return nil, err
	}

	switch b.format {
	case FormatZip:
		zr, closer, err := b.openZip(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range zr.File {
			if cleanEntry(f.Name) == name {
				rc, err := f.Open()
				if err != nil {
					closer.Close()
					return nil, fmt.Errorf("open zip entry %s: %w", name, err)
				}
				return readCloser{Reader: rc, Closer: multiCloser{rc, closer}}, nil
			}
		}
		closer.Close()

	case FormatSevenZip:
		sr, closer, err := b.openSevenZip(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range sr.File {
			if cleanEntry(f.Name) == name {
				rc, err := f.Open()
				if err != nil {
					closer.Close()
					return nil, fmt.Errorf("open 7z entry %s: %w", name, err)
				}
				return readCloser{Reader: rc, Closer: multiCloser{rc, closer}}, nil
			}
		}
		closer.Close()

	case FormatTar, FormatTarGz:
		tr, closer, err := b.openTar(ctx)
		if err != nil {
			return nil, err
		}
		for {
			hdr, err := tr.Next()
			if err != nil {
				closer.Close()
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("read tar header: %w", err)
			}
			if hdr.Typeflag == tar.TypeReg && cleanEntry(hdr.Name) == name {
				return readCloser{Reader: tr, Closer: closer}, nil
			}
		}

	default:
		return b.openSingle(ctx)
	}

	return nil, resource.NewIOError("read", r.String(), resource.ReasonNotFound, fs.ErrNotExist)
}

// ListChildren lists the entries directly below r.
func (b *Backend) ListChildren(ctx context.Context, r *resource.Resource) ([]*resource.Resource, error) {
	entries, children, err := b.index(ctx)
	if err != nil {
		return nil, err
	}

	dir := b.entryName(r)
	if dir != "" {
		if e, ok := entries[dir]; !ok || !e.dir {
			return nil, resource.NewIOError("list", r.String(), resource.ReasonNotFound, fs.ErrNotExist)
		}
	}

	names := children[dir]
	out := make([]*resource.Resource, 0, len(names))
	for _, name := range names {
		full := name
		if dir != "" {
			full = dir + "/" + name
		}
		typ := resource.TypeFile
		if entries[full].dir {
			typ = resource.TypeDirectory
		}
		u := r.URI()
		u.Path = path.Join(r.Path(), name)
		out = append(out, resource.New(b, u, typ))
	}
	return out, nil
}
