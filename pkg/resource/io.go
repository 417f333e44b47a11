package resource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

const bufferSize = 64 * 1024

// Reader opens the content of a file resource. The backend stream is
// buffered and, unless raw is set, passed through the runtime's processor
// chain (e.g. transparent decompression). The caller must close it.
func (r *Resource) Reader(ctx context.Context, raw bool) (io.ReadCloser, error) {
	var rc io.ReadCloser

	err := r.observe("read", func() error {
		opener, ok := r.backend.(Opener)
		if !ok || r.Type(ctx) == TypeDirectory {
			return Unsupported("read", r)
		}

		stream, err := opener.OpenReader(ctx, r)
		if err != nil {
			return Wrap("read", r.String(), err)
		}

		rc = &bufferedReadCloser{Reader: bufio.NewReaderSize(stream, bufferSize), closer: stream}
		if raw {
			return nil
		}

		for _, p := range r.runtime.processors() {
			next, err := p.Process(ctx, r, rc)
			if err != nil {
				_ = rc.Close()
				rc = nil
				return Wrap("read", r.String(), err)
			}
			rc = next
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &metricsReadCloser{ReadCloser: rc, metrics: r.runtime.metrics(), scheme: r.Scheme()}, nil
}

// Writer opens a buffered stream replacing the content of a file resource.
// Content becomes visible once Close returns nil.
func (r *Resource) Writer(ctx context.Context) (io.WriteCloser, error) {
	var wc io.WriteCloser

	err := r.observe("write", func() error {
		opener, ok := r.backend.(WriterOpener)
		if !ok || r.Type(ctx) == TypeDirectory {
			return Unsupported("write", r)
		}

		stream, err := opener.OpenWriter(ctx, r)
		if err != nil {
			return Wrap("write", r.String(), err)
		}
		wc = &bufferedWriteCloser{Writer: bufio.NewWriterSize(stream, bufferSize), closer: stream}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &metricsWriteCloser{WriteCloser: wc, metrics: r.runtime.metrics(), scheme: r.Scheme()}, nil
}

// ReadAll reads the processed content of r.
func (r *Resource) ReadAll(ctx context.Context) ([]byte, error) {
	return r.readAll(ctx, false)
}

// ReadAllRaw reads the unprocessed content of r.
func (r *Resource) ReadAllRaw(ctx context.Context) ([]byte, error) {
	return r.readAll(ctx, true)
}

func (r *Resource) readAll(ctx context.Context, raw bool) ([]byte, error) {
	rc, err := r.Reader(ctx, raw)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, Wrap("read", r.String(), err)
	}
	return data, nil
}

// WriteBytes replaces the content of r with data.
func (r *Resource) WriteBytes(ctx context.Context, data []byte) error {
	wc, err := r.Writer(ctx)
	if err != nil {
		return err
	}
	return writeAndClose(wc, bytes.NewReader(data), r)
}

func writeAndClose(wc io.WriteCloser, src io.Reader, r *Resource) error {
	if _, err := io.Copy(wc, src); err != nil {
		_ = wc.Close()
		return Wrap("write", r.String(), err)
	}
	if err := wc.Close(); err != nil {
		return Wrap("write", r.String(), err)
	}
	return nil
}

type bufferedReadCloser struct {
	*bufio.Reader
	closer io.Closer
}

func (b *bufferedReadCloser) Close() error { return b.closer.Close() }

type bufferedWriteCloser struct {
	*bufio.Writer
	closer io.Closer
	closed bool
}

func (b *bufferedWriteCloser) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	flushErr := b.Flush()
	closeErr := b.closer.Close()
	if flushErr != nil {
		return fmt.Errorf("flush: %w", errors.Join(flushErr, closeErr))
	}
	return closeErr
}
