package archive

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/marmos91/dittores/pkg/backend/local"
	"github.com/marmos91/dittores/pkg/backend/memory"
	"github.com/marmos91/dittores/pkg/pipeline"
	"github.com/marmos91/dittores/pkg/processor"
	"github.com/marmos91/dittores/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Unix(1700000000, 0)})
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newPipeline(backend *memory.Backend) *pipeline.Pipeline {
	return pipeline.New([]pipeline.Resolver{
		NewResolver(10),
		memory.NewResolver(backend, 0),
	}, nil)
}

func names(t *testing.T, r *resource.Resource) []string {
	t.Helper()
	children, err := r.List(context.Background())
	require.NoError(t, err)
	out := make([]string, len(children))
	for i, c := range children {
		out[i] = c.FileName()
	}
	return out
}

func TestDetect(t *testing.T) {
	cases := map[string]Format{
		"a.zip":     FormatZip,
		"lib.jar":   FormatZip,
		"a.tar":     FormatTar,
		"a.tar.gz":  FormatTarGz,
		"a.TGZ":     FormatTarGz,
		"a.7z":      FormatSevenZip,
		"log.gz":    FormatGzip,
		"log.bz2":   FormatBzip2,
		"log.zst":   FormatZstd,
		"log.lz4":   FormatLZ4,
		"plain.txt": FormatNone,
		".gz":       FormatNone,
	}
	for name, want := range cases {
		assert.Equal(t, want, Detect(name), name)
	}
}

func TestSplitArchivePath(t *testing.T) {
	archivePath, entry, f := splitArchivePath("/data/site.zip/css/main.css")
	assert.Equal(t, "/data/site.zip", archivePath)
	assert.Equal(t, "css/main.css", entry)
	assert.Equal(t, FormatZip, f)

	_, _, f = splitArchivePath("/data/site/main.css")
	assert.Equal(t, FormatNone, f)
}

func TestZipThroughPipeline(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend(nil)
	data := buildZip(t, map[string]string{
		"readme.txt":   "read me",
		"css/main.css": "body {}",
	})
	require.NoError(t, backend.Resource("/data/site.zip", resource.TypeFile).WriteBytes(ctx, data))
	p := newPipeline(backend)

	root, err := p.Resolve(ctx, "memory:/data/site.zip")
	require.NoError(t, err)
	assert.Equal(t, resource.TypeDirectory, root.Type(ctx))
	assert.Equal(t, []string{"css", "readme.txt"}, names(t, root))

	entry, err := p.Resolve(ctx, "memory:/data/site.zip/css/main.css")
	require.NoError(t, err)
	content, err := entry.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "body {}", string(content))

	length, err := entry.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), length)

	byFragment, err := p.Resolve(ctx, "memory:/data/site.zip#readme.txt")
	require.NoError(t, err)
	content, err = byFragment.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "read me", string(content))

	assert.Equal(t, "/data", root.Parent().Path())
	assert.Equal(t, "/data/site.zip", entry.Parent().Parent().Path())
}

func TestMissingEntry(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend(nil)
	require.NoError(t, backend.Resource("/a.zip", resource.TypeFile).WriteBytes(ctx, buildZip(t, map[string]string{"x": "y"})))

	r, err := newPipeline(backend).Resolve(ctx, "memory:/a.zip/nope")
	require.NoError(t, err)

	exists, err := r.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = r.ReadAll(ctx)
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestMissingArchive(t *testing.T) {
	ctx := context.Background()
	r, err := newPipeline(memory.NewBackend(nil)).Resolve(ctx, "memory:/none.zip/x.txt")
	require.NoError(t, err)

	exists, err := r.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSingleStreamArchive(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend(nil)

	var buf bytes.Buffer
	w, err := processor.NewWriter(processor.CodecZstd, &buf)
	require.NoError(t, err)
	_, err = w.Write([]byte("line one\nline two\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, backend.Resource("/logs/app.log.zst", resource.TypeFile).WriteBytes(ctx, buf.Bytes()))

	root, err := newPipeline(backend).Resolve(ctx, "memory:/logs/app.log.zst")
	require.NoError(t, err)
	assert.Equal(t, []string{"app.log"}, names(t, root))

	entry, err := root.Child(ctx, "app.log", resource.TypeFile)
	require.NoError(t, err)
	content, err := entry.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(content))

	length, err := entry.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(18), length)
}

func TestPackRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatZip, FormatTar, FormatTarGz} {
		t.Run(format.String(), func(t *testing.T) {
			ctx := context.Background()
			backend := memory.NewBackend(nil)
			require.NoError(t, backend.Resource("/src/a.txt", resource.TypeFile).WriteBytes(ctx, []byte("alpha")))
			require.NoError(t, backend.Resource("/src/sub/b.txt", resource.TypeFile).WriteBytes(ctx, []byte("beta")))

			name := "/out/bundle." + map[Format]string{FormatZip: "zip", FormatTar: "tar", FormatTarGz: "tar.gz"}[format]
			dst := backend.Resource(name, resource.TypeFile)
			require.NoError(t, Pack(ctx, dst, backend.Resource("/src", resource.TypeDirectory), format))

			p := newPipeline(backend)
			root, err := p.Resolve(ctx, "memory:"+name)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.txt", "sub"}, names(t, root))

			b, err := p.Resolve(ctx, "memory:"+name+"/sub/b.txt")
			require.NoError(t, err)
			content, err := b.ReadAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, "beta", string(content))
		})
	}
}

// brokenBackend exists but fails every read.
type brokenBackend struct{}

func (brokenBackend) Scheme() string { return "broken" }

func (brokenBackend) Exists(context.Context, *resource.Resource) (bool, error) { return true, nil }

func (brokenBackend) Length(context.Context, *resource.Resource) (int64, error) { return 3, nil }

func (brokenBackend) LastModified(context.Context, *resource.Resource) (time.Time, error) {
	return time.Now(), nil
}

func (brokenBackend) OpenReader(context.Context, *resource.Resource) (io.ReadCloser, error) {
	return nil, resource.NewIOError("read", "broken:/x", resource.ReasonFailure, io.ErrUnexpectedEOF)
}

func TestPackRemovesPartialOutput(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend(nil)
	dst := backend.Resource("/out/broken.zip", resource.TypeFile)
	src := resource.New(brokenBackend{}, &url.URL{Scheme: "broken", Path: "/x"}, resource.TypeFile)

	err := Pack(ctx, dst, src, FormatZip)
	assert.ErrorIs(t, err, resource.ErrBackend)

	exists, err := dst.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPackRejectsStreamFormats(t *testing.T) {
	backend := memory.NewBackend(nil)
	err := Pack(context.Background(), backend.Resource("/x.gz", resource.TypeFile), backend.Resource("/y", resource.TypeFile), FormatGzip)
	var cfgErr *resource.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLocalZipUsesFileDirectly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	lb := local.New(dir)
	require.NoError(t, lb.Resource("/pkg.zip", resource.TypeFile).WriteBytes(ctx, buildZip(t, map[string]string{"m.txt": "manifest"})))

	p := pipeline.New([]pipeline.Resolver{NewResolver(10), local.NewResolver(lb, 0)}, nil)
	r, err := p.Resolve(ctx, "file:/pkg.zip/m.txt")
	require.NoError(t, err)

	content, err := r.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "manifest", string(content))
	assert.FileExists(t, filepath.Join(dir, "pkg.zip"))
}
