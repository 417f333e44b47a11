package classpath

import (
	"context"
	"net/url"

	"github.com/marmos91/dittores/pkg/resource"
)

// Resolver maps classpath: URIs onto a Classpath.
type Resolver struct {
	classpath *Classpath
	priority  int
}

// NewResolver creates a resolver over c.
func NewResolver(c *Classpath, priority int) *Resolver {
	return &Resolver{classpath: c, priority: priority}
}

func (r *Resolver) Name() string  { return Scheme }
func (r *Resolver) Priority() int { return r.priority }

func (r *Resolver) Supports(u *url.URL) bool { return u.Scheme == Scheme }

func (r *Resolver) Resolve(_ context.Context, u *url.URL, typ resource.Type) (*resource.Resource, error) {
	return build(r.classpath.roots, u, typ), nil
}
