// Package session implements the lifecycle shared by every backend whose
// operations need an expensive, reusable connection (a session) and a
// short-lived per-call handle derived from it (a channel).
//
// State machine per Holder:
//
//	NO_SESSION --acquire--> ACTIVE --Close--> CLOSED
//	    ^                     |
//	    +--validation failed--+
//
// Every operation acquires the session (creating or revalidating it under a
// mutex), opens a channel, runs the callback, and releases the channel on
// both success and failure. Native errors are translated by the provider
// before they leave the package. Streams returned to callers carry their
// channel and release it only when the stream is closed.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/marmos91/dittores/internal/logger"
)

// ErrClosed is returned by operations on a closed Holder.
var ErrClosed = errors.New("session holder closed")

// State is the lifecycle state of a Holder.
type State int

const (
	StateNoSession State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "NO_SESSION"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Provider supplies the backend-specific parts of the pattern.
//
// S is the session type (e.g. *ssh.Client), C the channel type (e.g.
// *sftp.Client). Implementations must be safe to call from the goroutine
// owning the Holder; the Holder never calls Open concurrently.
type Provider[S any, C any] interface {
	// Open creates a new session.
	Open(ctx context.Context) (S, error)

	// Validate checks that an existing session is still usable. Any error
	// means "invalid"; the Holder logs it and recreates the session.
	Validate(ctx context.Context, s S) error

	// CloseSession releases the underlying connection.
	CloseSession(s S) error

	// OpenChannel derives a per-operation handle from the session.
	OpenChannel(ctx context.Context, s S) (C, error)

	// CloseChannel releases a handle obtained from OpenChannel.
	CloseChannel(c C) error

	// Translate maps a native error into the resource error taxonomy.
	Translate(op string, err error) error
}

// Holder owns at most one live session for one resource instance.
type Holder[S any, C any] struct {
	provider Provider[S, C]

	mu      sync.Mutex
	state   State
	session S
}

// NewHolder creates a Holder in the NO_SESSION state.
func NewHolder[S any, C any](provider Provider[S, C]) *Holder[S, C] {
	return &Holder[S, C]{provider: provider}
}

// Provider returns the provider backing this holder.
func (h *Holder[S, C]) Provider() Provider[S, C] { return h.provider }

// State reports the current lifecycle state.
func (h *Holder[S, C]) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// acquire returns a validated session, creating one if needed. Only one
// goroutine builds a session at a time.
func (h *Holder[S, C]) acquire(ctx context.Context) (S, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero S
	switch h.state {
	case StateClosed:
		return zero, ErrClosed
	case StateActive:
		err := h.provider.Validate(ctx, h.session)
		if err == nil {
			return h.session, nil
		}
		logger.Warn("session validation failed, recreating: %v", err)
		if err := h.provider.CloseSession(h.session); err != nil {
			logger.Debug("closing invalid session: %v", err)
		}
		h.session = zero
		h.state = StateNoSession
	}

	s, err := h.provider.Open(ctx)
	if err != nil {
		return zero, h.provider.Translate("connect", err)
	}
	h.session = s
	h.state = StateActive
	return s, nil
}

// channel acquires the session and opens a channel on it.
func (h *Holder[S, C]) channel(ctx context.Context, op string) (C, error) {
	var zero C
	s, err := h.acquire(ctx)
	if err != nil {
		return zero, err
	}
	c, err := h.provider.OpenChannel(ctx, s)
	if err != nil {
		return zero, h.provider.Translate(op, err)
	}
	return c, nil
}

func (h *Holder[S, C]) release(c C) {
	if err := h.provider.CloseChannel(c); err != nil {
		logger.Debug("releasing channel: %v", err)
	}
}

// Do runs fn on a fresh channel and releases the channel afterwards.
func (h *Holder[S, C]) Do(ctx context.Context, op string, fn func(C) error) error {
	c, err := h.channel(ctx, op)
	if err != nil {
		return err
	}
	defer h.release(c)

	if err := fn(c); err != nil {
		return h.provider.Translate(op, err)
	}
	return nil
}

// Call is Do for callbacks returning a value.
func Call[S any, C any, T any](ctx context.Context, h *Holder[S, C], op string, fn func(C) (T, error)) (T, error) {
	var out T
	err := h.Do(ctx, op, func(c C) error {
		var err error
		out, err = fn(c)
		return err
	})
	return out, err
}

// OpenReader opens a stream with fn. The channel stays open until the
// returned reader is closed.
func (h *Holder[S, C]) OpenReader(ctx context.Context, op string, fn func(C) (io.ReadCloser, error)) (io.ReadCloser, error) {
	c, err := h.channel(ctx, op)
	if err != nil {
		return nil, err
	}
	rc, err := fn(c)
	if err != nil {
		h.release(c)
		return nil, h.provider.Translate(op, err)
	}
	return &channelReader[S, C]{ReadCloser: rc, holder: h, channel: c, op: op}, nil
}

// OpenWriter is OpenReader for write streams.
func (h *Holder[S, C]) OpenWriter(ctx context.Context, op string, fn func(C) (io.WriteCloser, error)) (io.WriteCloser, error) {
	c, err := h.channel(ctx, op)
	if err != nil {
		return nil, err
	}
	wc, err := fn(c)
	if err != nil {
		h.release(c)
		return nil, h.provider.Translate(op, err)
	}
	return &channelWriter[S, C]{WriteCloser: wc, holder: h, channel: c, op: op}, nil
}

// Close moves the holder to CLOSED, releasing the session if one is live.
// Close is idempotent.
func (h *Holder[S, C]) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero S
	prev := h.state
	h.state = StateClosed
	if prev != StateActive {
		return nil
	}
	s := h.session
	h.session = zero
	if err := h.provider.CloseSession(s); err != nil {
		return h.provider.Translate("close", err)
	}
	return nil
}

type channelReader[S any, C any] struct {
	io.ReadCloser
	holder  *Holder[S, C]
	channel C
	op      string
	once    sync.Once
}

func (r *channelReader[S, C]) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = r.holder.provider.Translate(r.op, err)
	}
	return n, err
}

func (r *channelReader[S, C]) Close() error {
	var err error
	r.once.Do(func() {
		err = r.ReadCloser.Close()
		r.holder.release(r.channel)
	})
	if err != nil {
		return r.holder.provider.Translate(r.op, err)
	}
	return nil
}

type channelWriter[S any, C any] struct {
	io.WriteCloser
	holder  *Holder[S, C]
	channel C
	op      string
	once    sync.Once
}

func (w *channelWriter[S, C]) Write(p []byte) (int, error) {
	n, err := w.WriteCloser.Write(p)
	if err != nil {
		err = w.holder.provider.Translate(w.op, err)
	}
	return n, err
}

func (w *channelWriter[S, C]) Close() error {
	var err error
	w.once.Do(func() {
		err = w.WriteCloser.Close()
		w.holder.release(w.channel)
	})
	if err != nil {
		return w.holder.provider.Translate(w.op, err)
	}
	return nil
}
