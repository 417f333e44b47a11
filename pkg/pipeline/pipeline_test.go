package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/marmos91/dittores/pkg/backend/memory"
	"github.com/marmos91/dittores/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver claims every URI of its scheme and records the calls.
type fakeResolver struct {
	name     string
	scheme   string
	priority int
	backend  resource.Backend
	calls    int

	// decline makes Resolve return (nil, nil).
	decline bool
	// reenter makes Resolve delegate the same URI back to the pipeline.
	reenter bool
	err     error
}

func (f *fakeResolver) Name() string             { return f.name }
func (f *fakeResolver) Priority() int            { return f.priority }
func (f *fakeResolver) Supports(u *url.URL) bool { return u.Scheme == f.scheme }

func (f *fakeResolver) Resolve(ctx context.Context, u *url.URL, typ resource.Type) (*resource.Resource, error) {
	f.calls++
	switch {
	case f.err != nil:
		return nil, f.err
	case f.decline:
		return nil, nil
	case f.reenter:
		p, ok := FromContext(ctx)
		if !ok {
			return nil, errors.New("no pipeline in context")
		}
		inner, err := p.ResolveURL(ctx, u, AsType(typ))
		if err != nil {
			return nil, err
		}
		return inner.WithAttribute("wrapped-by", f.name), nil
	}
	return resource.New(f.backend, u, typ).WithAttribute("resolver", f.name), nil
}

// upperProcessor upper-cases the stream and records its application order.
type upperProcessor struct {
	name     string
	priority int
	order    *[]string
}

func (u *upperProcessor) Name() string  { return u.name }
func (u *upperProcessor) Priority() int { return u.priority }

func (u *upperProcessor) Process(_ context.Context, _ *resource.Resource, rc io.ReadCloser) (io.ReadCloser, error) {
	*u.order = append(*u.order, u.name)
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	_ = rc.Close()
	return io.NopCloser(bytes.NewReader([]byte(strings.ToUpper(string(data))))), nil
}

func resolverAttr(t *testing.T, r *resource.Resource) string {
	t.Helper()
	v, _ := r.Attribute("resolver")
	return v
}

func TestResolversSortedByPriority(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend(nil)

	low := &fakeResolver{name: "low", scheme: "memory", priority: 1, backend: backend}
	high := &fakeResolver{name: "high", scheme: "memory", priority: 10, backend: backend}
	tie := &fakeResolver{name: "tie", scheme: "memory", priority: 10, backend: backend}

	p := New([]Resolver{low, high, tie}, nil)

	names := make([]string, 0, 3)
	for _, r := range p.Resolvers() {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"high", "tie", "low"}, names)

	r, err := p.Resolve(ctx, "memory:/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "high", resolverAttr(t, r))
	assert.Equal(t, 0, low.calls)
}

func TestDecliningResolverFallsThrough(t *testing.T) {
	first := &fakeResolver{name: "first", scheme: "memory", priority: 5, decline: true}
	second := &fakeResolver{name: "second", scheme: "memory", priority: 1, backend: memory.NewBackend(nil)}

	p := New([]Resolver{first, second}, nil)
	r, err := p.Resolve(context.Background(), "memory:/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", resolverAttr(t, r))
	assert.Equal(t, 1, first.calls)
}

func TestNullFallback(t *testing.T) {
	ctx := context.Background()
	p := New(nil, nil)

	r, err := p.Resolve(ctx, "dummy:/x")
	require.NoError(t, err)
	assert.True(t, resource.IsNull(r))

	exists, err := r.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	length, err := r.Length(ctx)
	require.NoError(t, err)
	assert.Zero(t, length)

	data, err := r.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, r.WriteBytes(ctx, []byte("discarded")))
	data, err = r.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestMustExist(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend(nil)
	p := New([]Resolver{memory.NewResolver(backend, 0)}, nil)

	_, err := p.MustExist(ctx, "memory:/missing.txt")
	assert.ErrorIs(t, err, resource.ErrNotFound)

	require.NoError(t, backend.Resource("/here.txt", resource.TypeFile).WriteBytes(ctx, []byte("x")))
	r, err := p.MustExist(ctx, "memory:/here.txt")
	require.NoError(t, err)
	assert.Equal(t, "/here.txt", r.Path())
}

func TestReentrantResolverIsSkipped(t *testing.T) {
	ctx := context.Background()
	wrapper := &fakeResolver{name: "wrapper", scheme: "memory", priority: 10, reenter: true}
	plain := &fakeResolver{name: "plain", scheme: "memory", priority: 1, backend: memory.NewBackend(nil)}

	p := New([]Resolver{wrapper, plain}, nil)
	r, err := p.Resolve(ctx, "memory:/a.txt")
	require.NoError(t, err)

	wrappedBy, _ := r.Attribute("wrapped-by")
	assert.Equal(t, "wrapper", wrappedBy)
	assert.Equal(t, "plain", resolverAttr(t, r))
	assert.Equal(t, 1, wrapper.calls)
	assert.Equal(t, 1, plain.calls)
}

func TestReentrantResolverAloneFallsBackToNull(t *testing.T) {
	wrapper := &fakeResolver{name: "wrapper", scheme: "memory", reenter: true}

	p := New([]Resolver{wrapper}, nil)
	r, err := p.Resolve(context.Background(), "memory:/a.txt")
	require.NoError(t, err)
	assert.True(t, resource.IsNull(r))
	assert.Equal(t, 1, wrapper.calls)
}

func TestGuardIsScopedToOneCall(t *testing.T) {
	ctx := context.Background()
	wrapper := &fakeResolver{name: "wrapper", scheme: "memory", priority: 10, reenter: true}
	plain := &fakeResolver{name: "plain", scheme: "memory", backend: memory.NewBackend(nil)}

	p := New([]Resolver{wrapper, plain}, nil)
	for i := 0; i < 3; i++ {
		_, err := p.Resolve(ctx, "memory:/a.txt")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, wrapper.calls)
}

func TestResolverErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("config errors propagate unchanged", func(t *testing.T) {
		bad := &fakeResolver{name: "bad", scheme: "memory", err: resource.Configf("broken")}
		_, err := New([]Resolver{bad}, nil).Resolve(ctx, "memory:/a")
		var cfgErr *resource.ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("other errors become io errors", func(t *testing.T) {
		bad := &fakeResolver{name: "bad", scheme: "memory", err: errors.New("boom")}
		_, err := New([]Resolver{bad}, nil).Resolve(ctx, "memory:/a")
		assert.ErrorIs(t, err, resource.ErrBackend)
	})
}

func TestProcessorsAppliedInPriorityOrder(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend(nil)
	require.NoError(t, backend.Resource("/a.txt", resource.TypeFile).WriteBytes(ctx, []byte("hello")))

	var order []string
	first := &upperProcessor{name: "first", priority: 10, order: &order}
	second := &upperProcessor{name: "second", priority: 1, order: &order}

	p := New([]Resolver{memory.NewResolver(backend, 0)}, []Processor{second, first})
	r, err := p.Resolve(ctx, "memory:/a.txt")
	require.NoError(t, err)

	data, err := r.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(data))
	assert.Equal(t, []string{"first", "second"}, order)

	order = nil
	raw, err := r.ReadAllRaw(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(raw))
	assert.Empty(t, order)
}

// credentialBackend accepts password credentials only.
type credentialBackend struct{ *memory.Backend }

func (credentialBackend) AcceptsCredential(c resource.Credential) bool {
	_, ok := c.(resource.UserPassword)
	return ok
}

func TestCredentialAttachment(t *testing.T) {
	ctx := context.Background()
	aware := &fakeResolver{name: "aware", scheme: "aware", backend: credentialBackend{memory.NewBackend(nil)}}
	plain := &fakeResolver{name: "plain", scheme: "plain", backend: memory.NewBackend(nil)}
	p := New([]Resolver{aware, plain}, nil)

	password := resource.UserPassword{User: "alice", Password: "secret"}

	r, err := p.Resolve(ctx, "aware:/a", WithCredential(password))
	require.NoError(t, err)
	assert.Equal(t, password, r.Credential())

	r, err = p.Resolve(ctx, "aware:/a", WithCredential(resource.AccessKey{AccessKeyID: "id", SecretAccessKey: "s"}))
	require.NoError(t, err)
	assert.Nil(t, r.Credential())

	r, err = p.Resolve(ctx, "plain:/a", WithCredential(password))
	require.NoError(t, err)
	assert.Nil(t, r.Credential())
}

func TestAsType(t *testing.T) {
	p := New([]Resolver{memory.NewResolver(memory.NewBackend(nil), 0)}, nil)
	r, err := p.Resolve(context.Background(), "memory:/dir", AsType(resource.TypeDirectory))
	require.NoError(t, err)
	assert.Equal(t, resource.TypeDirectory, r.DeclaredType())
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestCloseJoinsErrorsOnce(t *testing.T) {
	calls := 0
	failing := closerFunc(func() error { calls++; return errors.New("boom") })
	ok := closerFunc(func() error { calls++; return nil })

	p := New(nil, nil, WithCloser(failing), WithCloser(ok))
	assert.Error(t, p.Close())
	assert.Error(t, p.Close())
	assert.Equal(t, 2, calls)
}
