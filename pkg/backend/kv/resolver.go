package kv

import (
	"context"
	"net/url"

	"github.com/marmos91/dittores/pkg/resource"
)

// Resolver maps kv: URIs onto engines of a Manager.
//
// The engine root comes from the "root" query parameter when present and
// from the configured default otherwise:
//
//	kv:/docs/a.txt                    default root
//	kv:/docs/a.txt?root=/var/lib/kv   explicit root
type Resolver struct {
	manager     *Manager
	defaultRoot string
	priority    int
}

// NewResolver creates a resolver. defaultRoot may be empty, in which case
// every URI must name its root.
func NewResolver(manager *Manager, defaultRoot string, priority int) *Resolver {
	return &Resolver{manager: manager, defaultRoot: defaultRoot, priority: priority}
}

func (r *Resolver) Name() string  { return Scheme }
func (r *Resolver) Priority() int { return r.priority }

func (r *Resolver) Supports(u *url.URL) bool { return u.Scheme == Scheme }

func (r *Resolver) Resolve(_ context.Context, u *url.URL, typ resource.Type) (*resource.Resource, error) {
	root := u.Query().Get("root")
	if root == "" {
		root = r.defaultRoot
	}
	if root == "" {
		return nil, resource.Configf("kv: no root for %s and no default root configured", u)
	}
	return resource.New(NewBackend(r.manager, root), u, typ), nil
}

// Manager returns the engine table used by this resolver.
func (r *Resolver) Manager() *Manager { return r.manager }

// Close shuts the engine table down.
func (r *Resolver) Close() error { return r.manager.Close() }
