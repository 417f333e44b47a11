package sftp

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/marmos91/dittores/pkg/resource"
	"github.com/marmos91/dittores/pkg/session"
	"github.com/pkg/sftp"
)

// ============================================================================
// Probes
// ============================================================================

func (b *Backend) ResolveType(ctx context.Context, r *resource.Resource, declared resource.Type) (resource.Type, error) {
	info, err := b.stat(ctx, r, "stat")
	if err != nil {
		if resource.IsNotFound(err) {
			return declared, nil
		}
		return declared, err
	}
	if info.IsDir() {
		return resource.TypeDirectory, nil
	}
	return resource.TypeFile, nil
}

func (b *Backend) Exists(ctx context.Context, r *resource.Resource) (bool, error) {
	_, err := b.stat(ctx, r, "exists")
	if err != nil {
		if resource.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *Backend) Length(ctx context.Context, r *resource.Resource) (int64, error) {
	info, err := b.stat(ctx, r, "length")
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, nil
	}
	return info.Size(), nil
}

func (b *Backend) LastModified(ctx context.Context, r *resource.Resource) (time.Time, error) {
	info, err := b.stat(ctx, r, "last_modified")
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (b *Backend) stat(ctx context.Context, r *resource.Resource, op string) (fs.FileInfo, error) {
	return session.Call(ctx, b.holder, op, func(c *sftp.Client) (fs.FileInfo, error) {
		return c.Stat(r.Path())
	})
}

// ============================================================================
// Streams
// ============================================================================

// OpenReader streams the remote file. The SFTP channel stays open until the
// reader is closed.
func (b *Backend) OpenReader(ctx context.Context, r *resource.Resource) (io.ReadCloser, error) {
	return b.holder.OpenReader(ctx, "read", func(c *sftp.Client) (io.ReadCloser, error) {
		f, err := c.Open(r.Path())
		if err != nil {
			return nil, err
		}
		return f, nil
	})
}

// OpenWriter truncates the remote file and streams into it.
func (b *Backend) OpenWriter(ctx context.Context, r *resource.Resource) (io.WriteCloser, error) {
	return b.holder.OpenWriter(ctx, "write", func(c *sftp.Client) (io.WriteCloser, error) {
		f, err := c.OpenFile(r.Path(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
		if err != nil {
			return nil, err
		}
		return f, nil
	})
}

// ============================================================================
// Structure
// ============================================================================

func (b *Backend) ListChildren(ctx context.Context, r *resource.Resource) ([]*resource.Resource, error) {
	infos, err := session.Call(ctx, b.holder, "list", func(c *sftp.Client) ([]fs.FileInfo, error) {
		return c.ReadDir(r.Path())
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	children := make([]*resource.Resource, 0, len(infos))
	for _, info := range infos {
		typ := resource.TypeFile
		if info.IsDir() {
			typ = resource.TypeDirectory
		}
		u := r.URI()
		u.Fragment = ""
		u.Path = strings.TrimSuffix(r.Path(), "/") + "/" + info.Name()
		children = append(children, resource.New(NewBackend(b.config, b.host, b.user, r.Credential()), u, typ, resource.WithCredentialOption(r.Credential())))
	}
	return children, nil
}

// CreateFile creates an empty file without truncating an existing one.
func (b *Backend) CreateFile(ctx context.Context, r *resource.Resource) error {
	return b.holder.Do(ctx, "create", func(c *sftp.Client) error {
		f, err := c.OpenFile(r.Path(), os.O_WRONLY|os.O_CREATE)
		if err != nil {
			return err
		}
		return f.Close()
	})
}

func (b *Backend) CreateDirectory(ctx context.Context, r *resource.Resource) error {
	return b.holder.Do(ctx, "mkdir", func(c *sftp.Client) error {
		err := c.Mkdir(r.Path())
		if err == nil {
			return nil
		}
		// Mkdir fails with a generic status on an existing directory.
		if info, statErr := c.Stat(r.Path()); statErr == nil && info.IsDir() {
			return nil
		}
		return err
	})
}

// Remove deletes a file or an empty directory.
func (b *Backend) Remove(ctx context.Context, r *resource.Resource) error {
	return b.holder.Do(ctx, "delete", func(c *sftp.Client) error {
		info, err := c.Stat(r.Path())
		if err != nil {
			return err
		}
		if info.IsDir() {
			return c.RemoveDirectory(r.Path())
		}
		err = c.Remove(r.Path())
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
}
