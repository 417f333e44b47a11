package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/marmos91/dittores/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNative = errors.New("native: no such file")

type fakeSession struct {
	id    int
	valid bool
}

type fakeChannel struct {
	session *fakeSession
}

type fakeProvider struct {
	mu             sync.Mutex
	opened         int
	closedSessions int
	openChannels   int
	failValidation bool
}

func (p *fakeProvider) Open(context.Context) (*fakeSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened++
	return &fakeSession{id: p.opened, valid: true}, nil
}

func (p *fakeProvider) Validate(_ context.Context, s *fakeSession) error {
	if p.failValidation || !s.valid {
		return errors.New("stale")
	}
	return nil
}

func (p *fakeProvider) CloseSession(*fakeSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closedSessions++
	return nil
}

func (p *fakeProvider) OpenChannel(_ context.Context, s *fakeSession) (*fakeChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openChannels++
	return &fakeChannel{session: s}, nil
}

func (p *fakeProvider) CloseChannel(*fakeChannel) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openChannels--
	return nil
}

func (p *fakeProvider) Translate(op string, err error) error {
	if errors.Is(err, errNative) {
		return resource.NewIOError(op, "fake:/", resource.ReasonNotFound, err)
	}
	return resource.Wrap(op, "fake:/", err)
}

func TestHolder_ReusesSession(t *testing.T) {
	p := &fakeProvider{}
	h := NewHolder[*fakeSession, *fakeChannel](p)
	assert.Equal(t, StateNoSession, h.State())

	for i := 0; i < 3; i++ {
		err := h.Do(context.Background(), "probe", func(c *fakeChannel) error {
			assert.Equal(t, 1, c.session.id)
			return nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, p.opened)
	assert.Equal(t, 0, p.openChannels)
	assert.Equal(t, StateActive, h.State())
}

func TestHolder_RecreatesInvalidSession(t *testing.T) {
	p := &fakeProvider{}
	h := NewHolder[*fakeSession, *fakeChannel](p)
	ctx := context.Background()

	require.NoError(t, h.Do(ctx, "probe", func(*fakeChannel) error { return nil }))

	p.failValidation = true
	require.NoError(t, h.Do(ctx, "probe", func(c *fakeChannel) error {
		assert.Equal(t, 2, c.session.id)
		return nil
	}))

	assert.Equal(t, 2, p.opened)
	assert.Equal(t, 1, p.closedSessions)
}

func TestHolder_ReleasesChannelOnFailureAndTranslates(t *testing.T) {
	p := &fakeProvider{}
	h := NewHolder[*fakeSession, *fakeChannel](p)

	err := h.Do(context.Background(), "read", func(*fakeChannel) error { return errNative })
	require.Error(t, err)
	assert.ErrorIs(t, err, resource.ErrNotFound)
	assert.Equal(t, 0, p.openChannels)
}

func TestCall_ReturnsValue(t *testing.T) {
	h := NewHolder[*fakeSession, *fakeChannel](&fakeProvider{})
	n, err := Call(context.Background(), h, "length", func(*fakeChannel) (int64, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestHolder_StreamKeepsChannelUntilClose(t *testing.T) {
	p := &fakeProvider{}
	h := NewHolder[*fakeSession, *fakeChannel](p)

	rc, err := h.OpenReader(context.Background(), "read", func(*fakeChannel) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte("data"))), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.openChannels)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	require.NoError(t, rc.Close())
	require.NoError(t, rc.Close())
	assert.Equal(t, 0, p.openChannels)
}

func TestHolder_Close(t *testing.T) {
	p := &fakeProvider{}
	h := NewHolder[*fakeSession, *fakeChannel](p)
	ctx := context.Background()

	require.NoError(t, h.Do(ctx, "probe", func(*fakeChannel) error { return nil }))
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	assert.Equal(t, StateClosed, h.State())
	assert.Equal(t, 1, p.closedSessions)
	assert.ErrorIs(t, h.Do(ctx, "probe", func(*fakeChannel) error { return nil }), ErrClosed)
}

func TestHolder_ConcurrentAcquireBuildsOneSession(t *testing.T) {
	p := &fakeProvider{}
	h := NewHolder[*fakeSession, *fakeChannel](p)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Do(context.Background(), "probe", func(*fakeChannel) error { return nil })
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, p.opened)
}
