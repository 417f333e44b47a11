package classpath

import (
	"context"
	"net/url"
	"testing"
	"testing/fstest"
	"time"

	"github.com/marmos91/dittores/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(data string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(data), Mode: 0644, ModTime: time.Unix(1700000000, 0)}
}

func primary() Root {
	return Root{Name: "primary", FS: fstest.MapFS{
		"dir1/file11.txt": file("1234"),
		"dir1/file12.txt": file("abc"),
		"shared.txt":      file("from primary"),
	}}
}

func secondary() Root {
	return Root{Name: "secondary", FS: fstest.MapFS{
		"dir1/file13.txt": file("xy"),
		"dir2/file21.txt": file("z"),
		"shared.txt":      &fstest.MapFile{Data: []byte("second"), ModTime: time.Unix(1800000000, 0)},
	}}
}

func resolve(t *testing.T, c *Classpath, raw string) *resource.Resource {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	r, err := NewResolver(c, 0).Resolve(context.Background(), u, resource.TypeFile)
	require.NoError(t, err)
	return r
}

func TestSingleMatchIsPlainFile(t *testing.T) {
	ctx := context.Background()
	r := resolve(t, New(primary()), "classpath:/dir1/file11.txt")

	assert.Equal(t, resource.TypeFile, r.Type(ctx))
	assert.Equal(t, "file11.txt", r.FileName())

	length, err := r.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), length)

	data, err := r.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1234", string(data))
}

func TestTwoMatchesMakeComposite(t *testing.T) {
	ctx := context.Background()
	c := New(primary(), secondary())

	r := resolve(t, c, "classpath:/shared.txt")
	backend := r.Backend().(*Backend)
	assert.True(t, backend.Composite())
	assert.Equal(t, []string{"primary", "secondary"}, backend.Matched())
	assert.Equal(t, resource.TypeDirectory, r.Type(ctx))

	length, err := r.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len("from primary")+len("second")), length)

	mtime, err := r.LastModified(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1800000000, 0), mtime)

	_, err = r.ReadAll(ctx)
	assert.ErrorIs(t, err, resource.ErrNotSupported)
}

func TestCompositeDirectoryUnionsChildren(t *testing.T) {
	ctx := context.Background()
	r := resolve(t, New(primary(), secondary()), "classpath:/dir1")

	children, err := r.List(ctx)
	require.NoError(t, err)

	names := make([]string, len(children))
	for i, c := range children {
		names[i] = c.FileName()
	}
	assert.Equal(t, []string{"file11.txt", "file12.txt", "file13.txt"}, names)

	data, err := children[2].ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "xy", string(data))
}

func TestRootListing(t *testing.T) {
	ctx := context.Background()
	root := New(primary(), secondary()).Resource("/", resource.TypeDirectory)

	children, err := root.List(ctx)
	require.NoError(t, err)
	require.Len(t, children, 3)
	assert.Equal(t, "dir1", children[0].FileName())
	assert.True(t, children[0].Backend().(*Backend).Composite())
	assert.False(t, children[1].Backend().(*Backend).Composite())
}

func TestMissingPath(t *testing.T) {
	ctx := context.Background()
	r := resolve(t, New(primary()), "classpath:/nope.txt")

	exists, err := r.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	length, err := r.Length(ctx)
	require.NoError(t, err)
	assert.Zero(t, length)

	_, err = r.ReadAll(ctx)
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	r := resolve(t, New(primary()), "classpath:/dir1/file11.txt")

	assert.ErrorIs(t, r.WriteBytes(ctx, []byte("x")), resource.ErrNotSupported)
	assert.ErrorIs(t, r.Delete(ctx), resource.ErrNotSupported)
}

func TestChildSearchesWholeClasspath(t *testing.T) {
	ctx := context.Background()
	dir := resolve(t, New(primary(), secondary()), "classpath:/dir2")
	child, err := dir.Child(ctx, "file21.txt", resource.TypeFile)
	require.NoError(t, err)

	data, err := child.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "z", string(data))
}
