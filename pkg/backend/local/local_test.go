package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/dittores/pkg/resource"
	restesting "github.com/marmos91/dittores/pkg/resource/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBackend(t *testing.T) {
	suite := &restesting.BackendTestSuite{
		NewRoot: func(t *testing.T) *resource.Resource {
			return New(t.TempDir()).Resource("/", resource.TypeDirectory)
		},
	}
	suite.Run(t)
}

func TestLocalPath(t *testing.T) {
	dir := t.TempDir()
	b := New(dir)

	r := b.Resource("/a/../b/c.txt", resource.TypeFile)

	assert.Equal(t, filepath.Join(dir, "b", "c.txt"), b.LocalPath(r))
}

func TestWriterIsAtomic(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := New(dir)
	r := b.Resource("/f.txt", resource.TypeFile)
	require.NoError(t, r.WriteBytes(ctx, []byte("old")))

	w, err := r.Writer(ctx)
	require.NoError(t, err)
	_, err = w.Write([]byte("new content"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data), "content must not change before Close")

	require.NoError(t, w.Close())
	data, err = os.ReadFile(filepath.Join(dir, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must be renamed away")
}

func TestWriteWithoutParentIsNotFound(t *testing.T) {
	r := New(t.TempDir()).Resource("/missing/f.txt", resource.TypeFile)

	_, err := r.Writer(context.Background())

	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestTypeFollowsDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d"), 0755))

	r := New(dir).Resource("/d", resource.TypeFile)

	assert.True(t, r.IsDirectory(ctx))
	assert.Equal(t, resource.TypeFile, r.DeclaredType())
}

func TestHashIgnoresLocation(t *testing.T) {
	ctx := context.Background()
	a := New(t.TempDir()).Resource("/x.txt", resource.TypeFile).WithAttribute(resource.AttrOriginalPath, "/x.txt")
	b := New(t.TempDir()).Resource("/x.txt", resource.TypeFile).WithAttribute(resource.AttrOriginalPath, "/x.txt")

	ha, err := a.Hash(ctx)
	require.NoError(t, err)
	hb, err := b.Hash(ctx)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}
