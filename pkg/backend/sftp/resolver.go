package sftp

import (
	"context"
	"net/url"

	"github.com/marmos91/dittores/pkg/resource"
)

// Resolver maps sftp:// URIs onto per-resource connections. The URI user,
// when present, overrides the configured login.
type Resolver struct {
	config   Config
	priority int
}

func NewResolver(config Config, priority int) *Resolver {
	return &Resolver{config: config, priority: priority}
}

func (r *Resolver) Name() string  { return Scheme }
func (r *Resolver) Priority() int { return r.priority }

func (r *Resolver) Supports(u *url.URL) bool { return u.Scheme == Scheme }

func (r *Resolver) Resolve(_ context.Context, u *url.URL, typ resource.Type) (*resource.Resource, error) {
	if u.Host == "" {
		return nil, resource.Configf("sftp: %s names no host", u)
	}
	user := ""
	if u.User != nil {
		user = u.User.Username()
	}
	return resource.New(NewBackend(r.config, u.Host, user, nil), u, typ), nil
}
