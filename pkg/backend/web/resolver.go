package web

import (
	"context"
	"net/url"

	"github.com/marmos91/dittores/pkg/resource"
)

// Resolver maps http and https URLs onto a Backend.
type Resolver struct {
	backend  *Backend
	priority int
}

// NewResolver creates a resolver over backend.
func NewResolver(backend *Backend, priority int) *Resolver {
	return &Resolver{backend: backend, priority: priority}
}

func (r *Resolver) Name() string  { return "web" }
func (r *Resolver) Priority() int { return r.priority }

func (r *Resolver) Supports(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (r *Resolver) Resolve(_ context.Context, u *url.URL, typ resource.Type) (*resource.Resource, error) {
	return resource.New(r.backend, u, typ), nil
}
