package pipeline

import "context"

type pipelineKey struct{}

type activeKey struct{}

// activation is one resolver working on one URI. Activations form a linked
// list following the nesting of Resolve calls.
type activation struct {
	resolver string
	uri      string
	parent   *activation
}

func withPipeline(ctx context.Context, p *Pipeline) context.Context {
	if current, _ := ctx.Value(pipelineKey{}).(*Pipeline); current == p {
		return ctx
	}
	return context.WithValue(ctx, pipelineKey{}, p)
}

// FromContext returns the pipeline currently resolving, if any. Filter
// resolvers use it to locate the resource they wrap.
func FromContext(ctx context.Context) (*Pipeline, bool) {
	p, ok := ctx.Value(pipelineKey{}).(*Pipeline)
	return p, ok
}

func withActive(ctx context.Context, resolver, uri string) context.Context {
	parent, _ := ctx.Value(activeKey{}).(*activation)
	return context.WithValue(ctx, activeKey{}, &activation{resolver: resolver, uri: uri, parent: parent})
}

// isActive reports whether resolver is already resolving uri further up
// the call stack carried by ctx.
func isActive(ctx context.Context, resolver, uri string) bool {
	for a, _ := ctx.Value(activeKey{}).(*activation); a != nil; a = a.parent {
		if a.resolver == resolver && a.uri == uri {
			return true
		}
	}
	return false
}
