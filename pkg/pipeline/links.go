package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/dittores/pkg/resource"
)

// SharedScheme is the scheme of URIs routed through the link table.
const SharedScheme = "shared"

// linkTable maps normalized path prefixes to target resources.
type linkTable struct {
	mu      sync.RWMutex
	targets map[string]*resource.Resource
}

func newLinkTable() *linkTable {
	return &linkTable{targets: make(map[string]*resource.Resource)}
}

func normalizePrefix(prefix string) string {
	return path.Clean("/" + prefix)
}

// Link redirects every shared: path under prefix to target. The remainder
// of the path is resolved below target.
//
// Returns an error if prefix is the root or target is nil. Linking an
// existing prefix replaces its target.
func (p *Pipeline) Link(prefix string, target *resource.Resource) error {
	if target == nil {
		return fmt.Errorf("cannot link %q to nil target", prefix)
	}
	key := normalizePrefix(prefix)
	if key == "/" {
		return fmt.Errorf("cannot link the shared root")
	}

	p.links.mu.Lock()
	defer p.links.mu.Unlock()
	p.links.targets[key] = target
	return nil
}

// Unlink removes prefix and reports whether it was linked.
func (p *Pipeline) Unlink(prefix string) bool {
	key := normalizePrefix(prefix)

	p.links.mu.Lock()
	defer p.links.mu.Unlock()
	_, ok := p.links.targets[key]
	delete(p.links.targets, key)
	return ok
}

// Links returns the linked prefixes, sorted.
func (p *Pipeline) Links() []string {
	p.links.mu.RLock()
	defer p.links.mu.RUnlock()

	prefixes := make([]string, 0, len(p.links.targets))
	for prefix := range p.links.targets {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}

// lookup returns the target of the longest prefix covering p together with
// the remaining relative path.
func (t *linkTable) lookup(p string) (*resource.Resource, string, bool) {
	p = normalizePrefix(p)

	t.mu.RLock()
	defer t.mu.RUnlock()

	for candidate := p; ; candidate = path.Dir(candidate) {
		if target, ok := t.targets[candidate]; ok {
			rest := strings.TrimPrefix(strings.TrimPrefix(p, candidate), "/")
			return target, rest, true
		}
		if candidate == "/" {
			return nil, "", false
		}
	}
}

// ============================================================================
// Shared Resolver
// ============================================================================

// SharedResolver serves shared: URIs. A path covered by a link resolves
// below the link target; any other path resolves below the shared root.
//
// The resolver works on the link table of the pipeline resolving the URI,
// so one instance can be registered with any pipeline.
type SharedResolver struct {
	root     string
	priority int
}

// NewSharedResolver creates the shared: resolver. root is the URI of the
// fallback directory ("" for none).
func NewSharedResolver(root string, priority int) *SharedResolver {
	return &SharedResolver{root: root, priority: priority}
}

func (s *SharedResolver) Name() string  { return SharedScheme }
func (s *SharedResolver) Priority() int { return s.priority }

func (s *SharedResolver) Supports(u *url.URL) bool { return u.Scheme == SharedScheme }

// Resolve redirects u to its link target or to the shared root.
func (s *SharedResolver) Resolve(ctx context.Context, u *url.URL, typ resource.Type) (*resource.Resource, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return nil, resource.Configf("shared resolver used outside a pipeline")
	}

	target, rest, ok := p.links.lookup(u.Path)
	if !ok {
		if s.root == "" {
			return nil, resource.Configf("no shared root configured and no link covers %s", u.Path)
		}
		rootURI, err := resource.ParseURI(s.root)
		if err != nil {
			return nil, err
		}
		if rootURI.Scheme == SharedScheme {
			return nil, resource.Configf("shared root %s cannot be a shared: URI", s.root)
		}
		root, err := p.ResolveURL(ctx, rootURI, AsType(resource.TypeDirectory))
		if err != nil {
			return nil, err
		}
		target, rest = root, strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	}

	out, err := target.Descendant(ctx, rest, typ)
	if err != nil {
		return nil, err
	}
	if u.Fragment != "" {
		out = out.WithFragment(u.Fragment)
	}
	return out, nil
}
