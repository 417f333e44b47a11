package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/marmos91/dittores/internal/logger"
	"github.com/marmos91/dittores/pkg/resource"
)

// entryWriter adds entries to an archive being written.
type entryWriter interface {
	addDir(name string, modTime time.Time) error
	addFile(name string, size int64, modTime time.Time, content io.Reader) error
	Close() error
}

// Pack writes src (a file or a directory tree) into dst as a zip, tar or
// tar.gz archive.
//
// On failure the partially written dst is deleted on a best-effort basis;
// the original error is returned and cleanup errors are only logged.
func Pack(ctx context.Context, dst, src *resource.Resource, format Format) (err error) {
	if format != FormatZip && format != FormatTar && format != FormatTarGz {
		return resource.Configf("cannot pack %s archives", format)
	}

	if err := dst.CreateParents(ctx); err != nil {
		return err
	}
	out, err := dst.Writer(ctx)
	if err != nil {
		return err
	}

	w := newEntryWriter(format, out)
	defer func() {
		if err == nil {
			return
		}
		_ = w.Close()
		_ = out.Close()
		if delErr := dst.Delete(ctx); delErr != nil {
			logger.Debug("cleanup of partial archive %s failed: %v", dst, delErr)
		}
	}()

	if src.Type(ctx) != resource.TypeDirectory {
		if err = packFile(ctx, w, src.FileName(), src); err != nil {
			return err
		}
	} else {
		_, err = src.Walk(ctx, func(ctx context.Context, child *resource.Resource, _ int) (bool, error) {
			name := child.RelativePath(src)
			if child.Type(ctx) == resource.TypeDirectory {
				mtime, err := child.LastModified(ctx)
				if err != nil {
					return false, err
				}
				return true, w.addDir(name, mtime)
			}
			return true, packFile(ctx, w, name, child)
		}, 0)
		if err != nil {
			return err
		}
	}

	if err = w.Close(); err != nil {
		return fmt.Errorf("finish %s archive: %w", format, err)
	}
	if err = out.Close(); err != nil {
		return err
	}
	logger.Debug("packed %s into %s (%s)", src, dst, format)
	return nil
}

func packFile(ctx context.Context, w entryWriter, name string, r *resource.Resource) error {
	size, err := r.Length(ctx)
	if err != nil {
		return err
	}
	mtime, err := r.LastModified(ctx)
	if err != nil {
		return err
	}
	in, err := r.Reader(ctx, true)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := w.addFile(name, size, mtime, in); err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	return nil
}

func newEntryWriter(format Format, out io.Writer) entryWriter {
	switch format {
	case FormatZip:
		return &zipWriter{zw: zip.NewWriter(out)}
	case FormatTarGz:
		gz := gzip.NewWriter(out)
		return &tarWriter{tw: tar.NewWriter(gz), gz: gz}
	default:
		return &tarWriter{tw: tar.NewWriter(out)}
	}
}

// stamp replaces the zero time of backends without modification times.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

type zipWriter struct {
	zw *zip.Writer
}

func (z *zipWriter) addDir(name string, modTime time.Time) error {
	_, err := z.zw.CreateHeader(&zip.FileHeader{Name: name + "/", Modified: stamp(modTime)})
	return err
}

func (z *zipWriter) addFile(name string, _ int64, modTime time.Time, content io.Reader) error {
	w, err := z.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: stamp(modTime)})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, content)
	return err
}

func (z *zipWriter) Close() error { return z.zw.Close() }

type tarWriter struct {
	tw *tar.Writer
	gz *gzip.Writer
}

func (t *tarWriter) addDir(name string, modTime time.Time) error {
	return t.tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeDir,
		Name:     name + "/",
		Mode:     0755,
		ModTime:  stamp(modTime),
	})
}

func (t *tarWriter) addFile(name string, size int64, modTime time.Time, content io.Reader) error {
	err := t.tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0644,
		Size:     size,
		ModTime:  stamp(modTime),
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(t.tw, content)
	return err
}

func (t *tarWriter) Close() error {
	if err := t.tw.Close(); err != nil {
		return err
	}
	if t.gz != nil {
		return t.gz.Close()
	}
	return nil
}
