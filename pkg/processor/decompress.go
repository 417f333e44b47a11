// Package processor contains stream processors installed by the resolution
// pipeline.
package processor

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/marmos91/dittores/internal/logger"
	"github.com/marmos91/dittores/pkg/resource"
)

// Decompress transparently decodes compressed content.
//
// The codec is sniffed from the first bytes of the stream, not from the
// file name, so a ".txt" holding gzip data is decoded and a ".gz" holding
// plain text passes through untouched. Raw reads bypass it.
type Decompress struct {
	priority int
	codecs   map[Codec]bool
}

// NewDecompress creates the processor. With no codecs every known codec is
// decoded.
func NewDecompress(priority int, codecs ...Codec) *Decompress {
	enabled := make(map[Codec]bool)
	if len(codecs) == 0 {
		codecs = []Codec{CodecGzip, CodecBzip2, CodecZstd, CodecLZ4}
	}
	for _, c := range codecs {
		if c != CodecNone {
			enabled[c] = true
		}
	}
	return &Decompress{priority: priority, codecs: enabled}
}

func (d *Decompress) Name() string  { return "decompress" }
func (d *Decompress) Priority() int { return d.priority }

// Process wraps rc with a decoder when its content is compressed with an
// enabled codec.
func (d *Decompress) Process(_ context.Context, r *resource.Resource, rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	head, err := br.Peek(magicLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	codec := Detect(head)
	if !d.codecs[codec] {
		return &stackedReadCloser{Reader: br, closers: []io.Closer{rc}}, nil
	}

	dec, err := NewReader(codec, br)
	if err != nil {
		return nil, err
	}
	logger.Debug("decompressing %s content of %s", codec, r)
	return &stackedReadCloser{Reader: dec, closers: []io.Closer{dec, rc}}, nil
}

// stackedReadCloser reads from the outermost reader and closes every layer
// in order.
type stackedReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReadCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
