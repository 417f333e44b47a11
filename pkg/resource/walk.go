package resource

import (
	"context"
	"math"
	"sort"

	"github.com/marmos91/dittores/internal/logger"
)

// Visitor is called for every resource reached by Walk. depth is 1 for the
// immediate children of the walk root. Returning false stops the walk.
type Visitor func(ctx context.Context, r *Resource, depth int) (bool, error)

// Walk traverses the tree below r depth-first. A child is visited before
// its own children; directories are descended while depth < maxDepth. A
// maxDepth below 1 means unlimited.
//
// Walk returns true when every reachable node was visited, and false when
// the visitor stopped the walk or a directory at maxDepth was left
// unexplored. Walking a file is a no-op returning true.
func (r *Resource) Walk(ctx context.Context, visit Visitor, maxDepth int) (bool, error) {
	if maxDepth < 1 {
		maxDepth = math.MaxInt
	}
	if r.Type(ctx) != TypeDirectory {
		return true, nil
	}
	return r.walk(ctx, visit, 1, maxDepth)
}

func (r *Resource) walk(ctx context.Context, visit Visitor, depth, maxDepth int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	children, err := r.children(ctx)
	if err != nil {
		return false, err
	}

	complete := true
	for _, child := range children {
		cont, err := visit(ctx, child, depth)
		if err != nil {
			return false, err
		}
		if !cont {
			return false, nil
		}

		if child.Type(ctx) != TypeDirectory {
			continue
		}
		if depth >= maxDepth {
			complete = false
			continue
		}

		done, err := child.walk(ctx, visit, depth+1, maxDepth)
		if err != nil {
			return false, err
		}
		if !done {
			complete = false
		}
	}
	return complete, nil
}

// children calls the backend list primitive and orders the result by name
// so walks are deterministic across backends.
func (r *Resource) children(ctx context.Context) ([]*Resource, error) {
	lister, ok := r.backend.(Lister)
	if !ok {
		return nil, Unsupported("list", r)
	}

	var children []*Resource
	err := r.observe("list", func() error {
		var err error
		children, err = lister.ListChildren(ctx, r)
		return Wrap("list", r.String(), err)
	})
	if err != nil {
		return nil, err
	}

	for i, c := range children {
		if c.runtime == nil {
			children[i] = c.WithRuntime(r.runtime)
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].FileName() < children[j].FileName()
	})
	return children, nil
}

// List returns the immediate children. It is Walk with depth 1, so List and
// Walk agree by construction.
func (r *Resource) List(ctx context.Context) ([]*Resource, error) {
	var out []*Resource
	_, err := r.Walk(ctx, func(_ context.Context, child *Resource, _ int) (bool, error) {
		out = append(out, child)
		return true, nil
	}, 1)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CopyFrom copies src into r and returns r with src's properties applied.
//
// A file source is streamed raw (unprocessed) into r after r's parents are
// created. A directory source is walked up to depth; its structure is
// mirrored below r using each child's path relative to src. On failure the
// partially written target file is removed on a best-effort basis.
func (r *Resource) CopyFrom(ctx context.Context, src *Resource, depth int) (*Resource, error) {
	err := r.observe("copy", func() error {
		if src.Type(ctx) != TypeDirectory {
			if err := r.CreateParents(ctx); err != nil {
				return err
			}
			return copyFile(ctx, r, src)
		}

		if err := r.Create(ctx); err != nil {
			return err
		}
		_, err := src.Walk(ctx, func(ctx context.Context, child *Resource, _ int) (bool, error) {
			rel := child.RelativePath(src)
			if rel == "" {
				return true, nil
			}

			childType := child.Type(ctx)
			target, err := r.Descendant(ctx, rel, childType)
			if err != nil {
				return false, err
			}
			defer release(r, target)
			if childType == TypeDirectory {
				return true, target.Create(ctx)
			}
			// the walk never descends into a file, so its session can go
			defer release(src, child)
			if err := target.CreateParents(ctx); err != nil {
				return false, err
			}
			return true, copyFile(ctx, target, child)
		}, depth)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.CopyPropertiesFrom(src), nil
}

func copyFile(ctx context.Context, dst, src *Resource) error {
	in, err := src.Reader(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := dst.Writer(ctx)
	if err != nil {
		return err
	}

	if err := writeAndClose(out, in, dst); err != nil {
		if delErr := dst.Delete(ctx); delErr != nil {
			logger.Debug("cleanup of partial copy %s failed: %v", dst, delErr)
		}
		return err
	}
	return nil
}

// CopyPropertiesFrom returns a copy of r carrying src's MIME type override,
// name, description and the union of both attribute sets.
func (r *Resource) CopyPropertiesFrom(src *Resource) *Resource {
	return r.derive(func(c *Resource) {
		if src.mimeOverride != "" {
			c.mimeOverride = src.mimeOverride
			c.mime = &lazyString{}
		}
		if src.name != "" {
			c.name = src.name
		}
		if src.description != "" {
			c.description = src.description
		}
		c.attrs = r.attrs.union(src.attrs)
	})
}
