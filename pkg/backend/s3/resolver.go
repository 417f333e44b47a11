package s3

import (
	"context"
	"net/url"

	"github.com/marmos91/dittores/pkg/resource"
)

// Resolver maps s3:// and s3s:// URIs onto bucket backends. The URI host
// is the bucket name.
type Resolver struct {
	config   Config
	priority int
}

func NewResolver(config Config, priority int) *Resolver {
	return &Resolver{config: config, priority: priority}
}

func (r *Resolver) Name() string  { return Scheme }
func (r *Resolver) Priority() int { return r.priority }

func (r *Resolver) Supports(u *url.URL) bool {
	return u.Scheme == Scheme || u.Scheme == SecureScheme
}

func (r *Resolver) Resolve(_ context.Context, u *url.URL, typ resource.Type) (*resource.Resource, error) {
	if u.Host == "" {
		return nil, resource.Configf("s3: %s names no bucket", u)
	}
	return resource.New(NewBackend(r.config, u.Host, u.Scheme == SecureScheme, nil), u, typ), nil
}
