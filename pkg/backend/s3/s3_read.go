package s3

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittores/pkg/resource"
	"github.com/marmos91/dittores/pkg/session"
)

// ResolveType reports an object as FILE and a key prefix with objects below
// it as DIRECTORY. The bucket root is always a directory.
func (b *Backend) ResolveType(ctx context.Context, r *resource.Resource, declared resource.Type) (resource.Type, error) {
	if b.key(r.Path()) == b.config.KeyPrefix {
		return resource.TypeDirectory, nil
	}
	return session.Call(ctx, b.holder, "stat", func(api API) (resource.Type, error) {
		found, err := b.headObject(ctx, api, b.key(r.Path()))
		if err != nil {
			return declared, err
		}
		if found != nil {
			return resource.TypeFile, nil
		}
		dir, err := b.hasPrefix(ctx, api, b.dirPrefix(r.Path()))
		if err != nil {
			return declared, err
		}
		if dir {
			return resource.TypeDirectory, nil
		}
		return declared, nil
	})
}

// Exists checks the bucket for the root, the object for files and the key
// prefix for directories.
func (b *Backend) Exists(ctx context.Context, r *resource.Resource) (bool, error) {
	return session.Call(ctx, b.holder, "exists", func(api API) (bool, error) {
		if b.key(r.Path()) == b.config.KeyPrefix {
			_, err := api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
			if err != nil {
				return false, b.absent(err)
			}
			return true, nil
		}

		found, err := b.headObject(ctx, api, b.key(r.Path()))
		if err != nil || found != nil {
			return found != nil, err
		}
		return b.hasPrefix(ctx, api, b.dirPrefix(r.Path()))
	})
}

func (b *Backend) Length(ctx context.Context, r *resource.Resource) (int64, error) {
	head, err := b.head(ctx, r, "length")
	if err != nil {
		return 0, err
	}
	return aws.ToInt64(head.ContentLength), nil
}

func (b *Backend) LastModified(ctx context.Context, r *resource.Resource) (time.Time, error) {
	head, err := b.head(ctx, r, "last_modified")
	if err != nil {
		return time.Time{}, err
	}
	return aws.ToTime(head.LastModified), nil
}

func (b *Backend) head(ctx context.Context, r *resource.Resource, op string) (*s3.HeadObjectOutput, error) {
	return session.Call(ctx, b.holder, op, func(api API) (*s3.HeadObjectOutput, error) {
		return api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key(r.Path())),
		})
	})
}

// headObject returns nil, nil for a missing object.
func (b *Backend) headObject(ctx context.Context, api API, key string) (*s3.HeadObjectOutput, error) {
	out, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, b.absent(err)
	}
	return out, nil
}

// hasPrefix reports whether any object (a marker included) lives under
// prefix.
func (b *Backend) hasPrefix(ctx context.Context, api API, prefix string) (bool, error) {
	out, err := api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, b.absent(err)
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

// absent swallows not-found errors so probes can report (false, nil).
func (b *Backend) absent(err error) error {
	if errors.Is(translate("probe", "", err), resource.ErrNotFound) {
		return nil
	}
	return err
}

// OpenReader streams the object body. The session channel stays held until
// the body is closed.
func (b *Backend) OpenReader(ctx context.Context, r *resource.Resource) (io.ReadCloser, error) {
	return b.holder.OpenReader(ctx, "read", func(api API) (io.ReadCloser, error) {
		out, err := api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key(r.Path())),
		})
		if err != nil {
			return nil, err
		}
		return out.Body, nil
	})
}

// ListChildren lists one level below r using "/" as delimiter. Common
// prefixes become directories, objects become files, and the directory's
// own marker is skipped.
func (b *Backend) ListChildren(ctx context.Context, r *resource.Resource) ([]*resource.Resource, error) {
	prefix := b.dirPrefix(r.Path())
	kinds, err := session.Call(ctx, b.holder, "list", func(api API) (map[string]resource.Type, error) {
		paginator := s3.NewListObjectsV2Paginator(api, &s3.ListObjectsV2Input{
			Bucket:    aws.String(b.bucket),
			Prefix:    aws.String(prefix),
			Delimiter: aws.String("/"),
		})

		kinds := make(map[string]resource.Type)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			for _, cp := range page.CommonPrefixes {
				name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
				if name != "" {
					kinds[name] = resource.TypeDirectory
				}
			}
			for _, obj := range page.Contents {
				name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
				if name == "" || strings.Contains(name, "/") {
					continue
				}
				if _, seen := kinds[name]; !seen {
					kinds[name] = resource.TypeFile
				}
			}
		}
		return kinds, nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	children := make([]*resource.Resource, 0, len(names))
	for _, name := range names {
		u := r.URI()
		u.Fragment = ""
		u.Path = strings.TrimSuffix(r.Path(), "/") + "/" + name
		children = append(children, resource.New(NewBackend(b.config, b.bucket, b.secure, b.cred), u, kinds[name], resource.WithCredentialOption(r.Credential())))
	}
	return children, nil
}
