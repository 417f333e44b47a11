package memory

import (
	"context"
	"testing"

	"github.com/marmos91/dittores/pkg/resource"
	restesting "github.com/marmos91/dittores/pkg/resource/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend(t *testing.T) {
	suite := &restesting.BackendTestSuite{
		NewRoot: func(t *testing.T) *resource.Resource {
			return NewBackend(nil).Resource("/", resource.TypeDirectory)
		},
	}
	suite.Run(t)
}

func TestSharedStoreVisibility(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	a := NewBackend(store).Resource("/shared/x.txt", resource.TypeFile)
	b := NewBackend(store).Resource("/shared/x.txt", resource.TypeFile)

	require.NoError(t, a.WriteBytes(ctx, []byte("from a")))

	data, err := b.ReadAllRaw(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("from a"), data)
	assert.True(t, a.Equal(b))
}

func TestTypeResolution(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(nil)
	require.NoError(t, b.Resource("/dir/file.txt", resource.TypeFile).WriteBytes(ctx, []byte("x")))

	assert.True(t, b.Resource("/dir", resource.TypeFile).IsDirectory(ctx))
	assert.False(t, b.Resource("/dir/file.txt", resource.TypeDirectory).IsDirectory(ctx))
	assert.True(t, b.Resource("/", resource.TypeFile).IsDirectory(ctx))
}

func TestRemoveNonEmptyDirectoryFails(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(nil)
	dir := b.Resource("/d", resource.TypeDirectory)
	require.NoError(t, dir.Create(ctx))
	require.NoError(t, b.Resource("/d/f", resource.TypeFile).WriteBytes(ctx, []byte("x")))

	err := b.Remove(ctx, dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, resource.ErrBackend)
	assert.ErrorIs(t, err, errDirectoryNotEmpty)
}

func TestFromBytes(t *testing.T) {
	ctx := context.Background()
	r := FromBytes([]byte("raw content"), "note.txt")

	assert.Equal(t, "note.txt", r.FileName())
	exists, err := r.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := r.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	data, err := r.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw content"), data)

	_, err = r.Writer(ctx)
	assert.ErrorIs(t, err, resource.ErrNotSupported)
}

func TestFromBytesHashFoldsContent(t *testing.T) {
	ctx := context.Background()
	a := FromBytes([]byte("same"), "n.bin")
	b := FromBytes([]byte("same"), "n.bin")
	c := FromBytes([]byte("different"), "n.bin")

	assert.False(t, a.Equal(b), "each buffer gets its own id")

	ha, err := a.Hash(ctx)
	require.NoError(t, err)
	hb, err := b.Hash(ctx)
	require.NoError(t, err)
	hc, err := c.Hash(ctx)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.NotEqual(t, ha, hc)
}
