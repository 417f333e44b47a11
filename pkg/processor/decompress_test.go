package processor

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/marmos91/dittores/pkg/backend/memory"
	"github.com/marmos91/dittores/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compress(t *testing.T, c Codec, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(c, &buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type trackingCloser struct {
	io.Reader
	closed bool
}

func (t *trackingCloser) Close() error {
	t.closed = true
	return nil
}

func TestDetect(t *testing.T) {
	plain := []byte("plain text content")
	assert.Equal(t, CodecNone, Detect(plain))
	assert.Equal(t, CodecNone, Detect(nil))
	assert.Equal(t, CodecBzip2, Detect([]byte("BZh91AY&SY")))

	for _, c := range []Codec{CodecGzip, CodecZstd, CodecLZ4} {
		assert.Equal(t, c, Detect(compress(t, c, plain)), c.String())
	}
}

func TestParseCodec(t *testing.T) {
	for _, name := range []string{"none", "gzip", "bzip2", "zstd", "lz4"} {
		c, err := ParseCodec(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.String())
	}
	_, err := ParseCodec("rar")
	assert.Error(t, err)
}

func TestProcessDecodesEveryCodec(t *testing.T) {
	ctx := context.Background()
	payload := bytes.Repeat([]byte("compressible payload "), 200)
	r := memory.FromBytes(nil, "x")
	d := NewDecompress(0)

	for _, c := range []Codec{CodecGzip, CodecZstd, CodecLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			src := &trackingCloser{Reader: bytes.NewReader(compress(t, c, payload))}
			rc, err := d.Process(ctx, r, src)
			require.NoError(t, err)

			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, payload, got)

			require.NoError(t, rc.Close())
			assert.True(t, src.closed)
		})
	}
}

func TestProcessPassesPlainContentThrough(t *testing.T) {
	for _, data := range [][]byte{[]byte("hello world"), []byte("hi"), {}} {
		src := &trackingCloser{Reader: bytes.NewReader(data)}
		rc, err := NewDecompress(0).Process(context.Background(), memory.FromBytes(nil, "x"), src)
		require.NoError(t, err)

		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, string(data), string(got))
		require.NoError(t, rc.Close())
		assert.True(t, src.closed)
	}
}

func TestDisabledCodecPassesThrough(t *testing.T) {
	compressed := compress(t, CodecGzip, []byte("data"))
	rc, err := NewDecompress(0, CodecZstd).Process(context.Background(), memory.FromBytes(nil, "x"), io.NopCloser(bytes.NewReader(compressed)))
	require.NoError(t, err)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, compressed, got)
}

func TestResourceReadDecompresses(t *testing.T) {
	ctx := context.Background()
	compressed := compress(t, CodecZstd, []byte("stored compressed"))
	rt := &resource.Runtime{Processors: []resource.Processor{NewDecompress(0)}}
	r := memory.FromBytes(compressed, "data.txt").WithRuntime(rt)

	data, err := r.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stored compressed", string(data))

	raw, err := r.ReadAllRaw(ctx)
	require.NoError(t, err)
	assert.Equal(t, compressed, raw)
}
