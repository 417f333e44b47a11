package resource

import (
	"context"
	"io"
	"time"

	"github.com/marmos91/dittores/internal/logger"
)

// Exists reports whether the resource exists.
func (r *Resource) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := r.observe("exists", func() error {
		prober, ok := r.backend.(ExistsProber)
		if !ok {
			return Unsupported("exists", r)
		}
		var err error
		exists, err = prober.Exists(ctx, r)
		return Wrap("exists", r.String(), err)
	})
	return exists, err
}

// Length returns the content length. A missing resource has length 0.
func (r *Resource) Length(ctx context.Context) (int64, error) {
	var n int64
	err := r.observe("length", func() error {
		prober, ok := r.backend.(LengthProber)
		if !ok {
			return Unsupported("length", r)
		}
		var err error
		n, err = prober.Length(ctx, r)
		if IsNotFound(err) {
			n = 0
			return nil
		}
		return Wrap("length", r.String(), err)
	})
	return n, err
}

// LastModified returns the modification time. A missing resource reports
// the zero time.
func (r *Resource) LastModified(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := r.observe("last_modified", func() error {
		prober, ok := r.backend.(ModTimeProber)
		if !ok {
			return Unsupported("last_modified", r)
		}
		var err error
		t, err = prober.LastModified(ctx, r)
		if IsNotFound(err) {
			t = time.Time{}
			return nil
		}
		return Wrap("last_modified", r.String(), err)
	})
	return t, err
}

// Create makes an empty file or directory according to the resource type.
// It is a no-op when the resource already exists. When the backend reports
// a missing parent, the parent chain is created and the call retried once.
func (r *Resource) Create(ctx context.Context) error {
	return r.observe("create", func() error {
		creator, ok := r.backend.(Creator)
		if !ok {
			return Unsupported("create", r)
		}

		exists, err := r.Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		err = r.createWith(ctx, creator)
		if !IsNotFound(err) {
			return err
		}

		if err := r.CreateParents(ctx); err != nil {
			return err
		}
		return r.createWith(ctx, creator)
	})
}

func (r *Resource) createWith(ctx context.Context, creator Creator) error {
	var err error
	if r.Type(ctx) == TypeDirectory {
		err = creator.CreateDirectory(ctx, r)
	} else {
		err = creator.CreateFile(ctx, r)
	}
	return Wrap("create", r.String(), err)
}

// CreateParents ensures every ancestor directory exists.
func (r *Resource) CreateParents(ctx context.Context) error {
	parent := r.Parent()
	if parent == nil {
		return nil
	}
	defer release(r, parent)

	exists, err := parent.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := parent.CreateParents(ctx); err != nil {
		return err
	}
	return parent.Create(ctx)
}

// Delete removes the resource. A directory is emptied depth-first before the
// container is removed. Deleting a missing resource succeeds.
func (r *Resource) Delete(ctx context.Context) error {
	return r.observe("delete", func() error {
		deleter, ok := r.backend.(Deleter)
		if !ok {
			return Unsupported("delete", r)
		}

		if r.Type(ctx) == TypeDirectory {
			if err := r.Empty(ctx); err != nil && !IsNotFound(err) {
				return err
			}
		}

		err := deleter.Remove(ctx, r)
		if IsNotFound(err) {
			return nil
		}
		return Wrap("delete", r.String(), err)
	})
}

// Empty deletes every child of a directory, in visitation order. It is a
// no-op for files.
func (r *Resource) Empty(ctx context.Context) error {
	if r.Type(ctx) != TypeDirectory {
		return nil
	}

	children, err := r.List(ctx)
	if err != nil {
		return err
	}
	defer release(r, children...)
	for _, child := range children {
		if err := child.Delete(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases backend state held by this instance (a live session, for
// instance). Backends without such state ignore it.
func (r *Resource) Close() error {
	if closer, ok := r.backend.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Debug("close %s: %v", r, err)
			return err
		}
	}
	return nil
}

// release closes resources that owner created internally (children,
// parents, copy targets) and that hold their own backend instance.
// Resources sharing owner's backend are left alone.
func release(owner *Resource, rs ...*Resource) {
	for _, r := range rs {
		if r == nil {
			continue
		}
		if _, ok := r.backend.(io.Closer); !ok || r.backend == owner.backend {
			continue
		}
		_ = r.Close()
	}
}
