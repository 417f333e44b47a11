package pipeline

import (
	"context"
	"testing"

	"github.com/marmos91/dittores/pkg/backend/memory"
	"github.com/marmos91/dittores/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSharedPipeline(root string) (*Pipeline, *memory.Backend) {
	backend := memory.NewBackend(nil)
	p := New([]Resolver{
		memory.NewResolver(backend, 0),
		NewSharedResolver(root, 0),
	}, nil)
	return p, backend
}

func TestSharedResourcesSeeEachOtherWrites(t *testing.T) {
	ctx := context.Background()
	p, backend := newSharedPipeline("")

	target := backend.Resource("/store", resource.TypeDirectory)
	require.NoError(t, target.Create(ctx))
	require.NoError(t, p.Link("/docs", target))

	a, err := p.Resolve(ctx, "shared:/docs/notes.txt")
	require.NoError(t, err)
	b, err := p.Resolve(ctx, "shared:/docs/notes.txt")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.Equal(t, "memory:/store/notes.txt", a.String())

	require.NoError(t, a.WriteBytes(ctx, []byte("written through a")))
	data, err := b.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "written through a", string(data))

	direct := backend.Resource("/store/notes.txt", resource.TypeFile)
	data, err = direct.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "written through a", string(data))
}

func TestLongestPrefixWins(t *testing.T) {
	ctx := context.Background()
	p, backend := newSharedPipeline("")

	require.NoError(t, p.Link("/a", backend.Resource("/outer", resource.TypeDirectory)))
	require.NoError(t, p.Link("/a/b", backend.Resource("/inner", resource.TypeDirectory)))
	require.NoError(t, backend.Resource("/outer", resource.TypeDirectory).Create(ctx))
	require.NoError(t, backend.Resource("/inner", resource.TypeDirectory).Create(ctx))

	r, err := p.Resolve(ctx, "shared:/a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "/inner/c.txt", r.Path())

	r, err = p.Resolve(ctx, "shared:/a/bc.txt")
	require.NoError(t, err)
	assert.Equal(t, "/outer/bc.txt", r.Path())

	r, err = p.Resolve(ctx, "shared:/a/b")
	require.NoError(t, err)
	assert.Equal(t, "/inner", r.Path())
}

func TestSharedRootFallback(t *testing.T) {
	ctx := context.Background()
	p, backend := newSharedPipeline("memory:/shared")
	require.NoError(t, backend.Resource("/shared", resource.TypeDirectory).Create(ctx))

	r, err := p.Resolve(ctx, "shared:/x/y.txt")
	require.NoError(t, err)
	assert.Equal(t, "memory:/shared/x/y.txt", r.String())
}

func TestSharedWithoutRootOrLinkIsConfigError(t *testing.T) {
	p, _ := newSharedPipeline("")

	_, err := p.Resolve(context.Background(), "shared:/nowhere.txt")
	var cfgErr *resource.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSharedRootMustNotBeShared(t *testing.T) {
	p, _ := newSharedPipeline("shared:/loop")

	_, err := p.Resolve(context.Background(), "shared:/x")
	var cfgErr *resource.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLinkManagement(t *testing.T) {
	p, backend := newSharedPipeline("")
	target := backend.Resource("/t", resource.TypeDirectory)

	assert.Error(t, p.Link("/", target))
	assert.Error(t, p.Link("/x", nil))

	require.NoError(t, p.Link("docs/", target))
	require.NoError(t, p.Link("/assets", target))
	assert.Equal(t, []string{"/assets", "/docs"}, p.Links())

	assert.True(t, p.Unlink("/docs"))
	assert.False(t, p.Unlink("/docs"))
	assert.Equal(t, []string{"/assets"}, p.Links())
}
