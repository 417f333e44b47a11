package processor

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies a compressed stream format.
type Codec uint8

const (
	// CodecNone is an uncompressed stream.
	CodecNone Codec = iota

	// CodecGzip is RFC 1952 gzip.
	CodecGzip

	// CodecBzip2 is a bzip2 stream.
	CodecBzip2

	// CodecZstd is a zstd frame.
	CodecZstd

	// CodecLZ4 is an LZ4 frame (not a raw block).
	CodecLZ4
)

var magics = []struct {
	codec Codec
	magic []byte
}{
	{CodecGzip, []byte{0x1f, 0x8b}},
	{CodecBzip2, []byte("BZh")},
	{CodecZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{CodecLZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
}

// magicLen is the longest magic number.
const magicLen = 4

// String returns the human-readable name of a codec.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecGzip:
		return "gzip"
	case CodecBzip2:
		return "bzip2"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCodec parses a codec from its string representation.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none":
		return CodecNone, nil
	case "gzip", "gz":
		return CodecGzip, nil
	case "bzip2", "bz2":
		return CodecBzip2, nil
	case "zstd", "zst":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return CodecNone, fmt.Errorf("unknown codec: %q", name)
	}
}

// Detect identifies the codec of a stream from its leading bytes.
func Detect(head []byte) Codec {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.codec
		}
	}
	return CodecNone
}

// NewReader returns a decompressing reader over src. Closing it releases
// the decoder but not src.
func NewReader(c Codec, src io.Reader) (io.ReadCloser, error) {
	switch c {
	case CodecNone:
		return io.NopCloser(src), nil

	case CodecGzip:
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("gzip header: %w", err)
		}
		return zr, nil

	case CodecBzip2:
		return io.NopCloser(bzip2.NewReader(src)), nil

	case CodecZstd:
		zr, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return zr.IOReadCloser(), nil

	case CodecLZ4:
		return io.NopCloser(lz4.NewReader(src)), nil

	default:
		return nil, fmt.Errorf("unsupported codec: %s", c)
	}
}

// NewWriter returns a compressing writer over dst. Closing it flushes the
// trailer but does not close dst.
func NewWriter(c Codec, dst io.Writer) (io.WriteCloser, error) {
	switch c {
	case CodecNone:
		return nopWriteCloser{dst}, nil
	case CodecGzip:
		return gzip.NewWriter(dst), nil
	case CodecZstd:
		return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case CodecLZ4:
		return lz4.NewWriter(dst), nil
	default:
		// The standard library only decodes bzip2.
		return nil, fmt.Errorf("unsupported codec for writing: %s", c)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
