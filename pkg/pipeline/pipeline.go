// Package pipeline routes URIs to resources.
//
// A Pipeline holds an ordered list of resolvers and an ordered chain of
// processors, both sorted by descending priority with ties kept in
// registration order. Resolve hands a URI to the first resolver that
// supports it; URIs nobody supports resolve to the null resource rather
// than failing, so "does not exist" and "cannot resolve" look the same to
// callers.
//
// Example usage:
//
//	p := pipeline.New(
//	    []pipeline.Resolver{local.NewResolver(local.New(""), 0), memory.NewResolver(memory.NewBackend(nil), 0)},
//	    []pipeline.Processor{processor.NewDecompress(0)},
//	)
//	r, err := p.Resolve(ctx, "memory:/notes/today.txt")
package pipeline

import (
	"context"
	"errors"
	"io"
	"net/url"
	"sort"
	"sync"

	"github.com/marmos91/dittores/internal/logger"
	"github.com/marmos91/dittores/pkg/resource"
)

// Resolver turns URIs it supports into resources.
//
// Resolve returns (nil, nil) to decline a URI it cannot serve after all;
// the pipeline then tries the next resolver. A *resource.ConfigError aborts
// resolution.
type Resolver interface {
	Name() string
	Priority() int
	Supports(u *url.URL) bool
	Resolve(ctx context.Context, u *url.URL, typ resource.Type) (*resource.Resource, error)
}

// Processor is a stream filter installed on every resolved resource.
type Processor interface {
	resource.Processor
	Name() string
	Priority() int
}

// Pipeline dispatches URIs to resolvers.
//
// Thread Safety: Safe for concurrent use. The resolver and processor lists
// are fixed at construction; the link table is guarded by its own lock.
type Pipeline struct {
	resolvers  []Resolver
	processors []Processor
	runtime    *resource.Runtime
	closers    []io.Closer

	links *linkTable

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics installs the metrics sink used by every resolved resource.
func WithMetrics(m resource.Metrics) Option {
	return func(p *Pipeline) { p.runtime.Metrics = m }
}

// WithCloser registers c to be closed by Pipeline.Close.
func WithCloser(c io.Closer) Option {
	return func(p *Pipeline) { p.closers = append(p.closers, c) }
}

// New creates a pipeline. Resolvers and processors are sorted by
// descending priority; equal priorities keep the given order.
func New(resolvers []Resolver, processors []Processor, opts ...Option) *Pipeline {
	rs := append([]Resolver(nil), resolvers...)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Priority() > rs[j].Priority() })

	ps := append([]Processor(nil), processors...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Priority() > ps[j].Priority() })

	chain := make([]resource.Processor, len(ps))
	for i, proc := range ps {
		chain[i] = proc
	}

	p := &Pipeline{
		resolvers:  rs,
		processors: ps,
		runtime:    &resource.Runtime{Processors: chain},
		links:      newLinkTable(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolvers returns the resolvers in dispatch order.
func (p *Pipeline) Resolvers() []Resolver {
	return append([]Resolver(nil), p.resolvers...)
}

// Processors returns the processors in application order.
func (p *Pipeline) Processors() []Processor {
	return append([]Processor(nil), p.processors...)
}

// Runtime returns the runtime installed on resolved resources.
func (p *Pipeline) Runtime() *resource.Runtime { return p.runtime }

// ============================================================================
// Resolution
// ============================================================================

type resolveOptions struct {
	typ        resource.Type
	credential resource.Credential
}

// ResolveOption tunes a single Resolve call.
type ResolveOption func(*resolveOptions)

// AsType declares the expected type (FILE by default). Backends that can
// probe reconcile it on first use.
func AsType(t resource.Type) ResolveOption {
	return func(o *resolveOptions) { o.typ = t }
}

// WithCredential attaches c to the result when its backend accepts it.
func WithCredential(c resource.Credential) ResolveOption {
	return func(o *resolveOptions) { o.credential = c }
}

// Resolve parses raw and resolves it. See ResolveURL.
func (p *Pipeline) Resolve(ctx context.Context, raw string, opts ...ResolveOption) (*resource.Resource, error) {
	u, err := resource.ParseURI(raw)
	if err != nil {
		return nil, err
	}
	return p.ResolveURL(ctx, u, opts...)
}

// ResolveURL returns the resource for u.
//
// The first resolver (in priority order) that supports u and is not
// already resolving u further up the call stack produces the resource.
// When no resolver applies the null resource is returned. Errors are
// returned only for contract violations and resolver failures.
func (p *Pipeline) ResolveURL(ctx context.Context, u *url.URL, opts ...ResolveOption) (*resource.Resource, error) {
	o := resolveOptions{typ: resource.TypeFile}
	for _, opt := range opts {
		opt(&o)
	}

	ctx = withPipeline(ctx, p)
	key := u.String()

	var r *resource.Resource
	for _, resolver := range p.resolvers {
		if !resolver.Supports(u) {
			continue
		}
		if isActive(ctx, resolver.Name(), key) {
			logger.Debug("resolver %s already resolving %s, skipping", resolver.Name(), key)
			continue
		}

		out, err := resolver.Resolve(withActive(ctx, resolver.Name(), key), u, o.typ)
		if err != nil {
			var cfgErr *resource.ConfigError
			if errors.As(err, &cfgErr) {
				return nil, err
			}
			return nil, resource.Wrap("resolve", key, err)
		}
		if out != nil {
			r = out
			break
		}
	}

	if r == nil {
		logger.Debug("no resolver for %s, using null resource", key)
		r = resource.Null(u)
	}
	if r.Runtime() == nil {
		r = r.WithRuntime(p.runtime)
	}
	return p.attachCredential(r, o.credential), nil
}

func (p *Pipeline) attachCredential(r *resource.Resource, c resource.Credential) *resource.Resource {
	if c == nil {
		return r
	}
	aware, ok := r.Backend().(resource.CredentialAware)
	if !ok || !aware.AcceptsCredential(c) {
		logger.Debug("backend of %s ignores %s credential", r, c.Kind())
		return r
	}
	return r.WithCredential(c)
}

// MustExist resolves raw and fails with ErrNotFound when the result does
// not exist.
func (p *Pipeline) MustExist(ctx context.Context, raw string, opts ...ResolveOption) (*resource.Resource, error) {
	r, err := p.Resolve(ctx, raw, opts...)
	if err != nil {
		return nil, err
	}
	exists, err := r.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, resource.NewIOError("resolve", raw, resource.ReasonNotFound, nil)
	}
	return r, nil
}

// Close closes every registered closer (resolvers holding engines, for
// instance). Close is idempotent.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		for _, c := range p.closers {
			if err := c.Close(); err != nil {
				logger.Warn("pipeline close: %v", err)
				errs = append(errs, err)
			}
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}
