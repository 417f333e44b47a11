package s3

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittores/pkg/resource"
)

// OpenWriter buffers the content and uploads it with a single PutObject on
// Close.
func (b *Backend) OpenWriter(ctx context.Context, r *resource.Resource) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &objectWriter{ctx: ctx, backend: b, key: b.key(r.Path())}, nil
}

type objectWriter struct {
	bytes.Buffer
	ctx     context.Context
	backend *Backend
	key     string
	closed  bool
}

func (w *objectWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.backend.put(w.ctx, "write", w.key, w.Bytes())
}

func (b *Backend) put(ctx context.Context, op, key string, data []byte) error {
	return b.holder.Do(ctx, op, func(api API) error {
		_, err := api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(b.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		return err
	})
}

// CreateFile uploads an empty object unless one exists.
func (b *Backend) CreateFile(ctx context.Context, r *resource.Resource) error {
	key := b.key(r.Path())
	return b.holder.Do(ctx, "create", func(api API) error {
		found, err := b.headObject(ctx, api, key)
		if err != nil || found != nil {
			return err
		}
		_, err = api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(b.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(nil),
			ContentLength: aws.Int64(0),
		})
		return err
	})
}

// CreateDirectory stores the "key/" marker object. Parents need no marker:
// S3 has no hierarchy to violate.
func (b *Backend) CreateDirectory(ctx context.Context, r *resource.Resource) error {
	if b.key(r.Path()) == b.config.KeyPrefix {
		return nil
	}
	return b.put(ctx, "mkdir", b.dirPrefix(r.Path()), nil)
}

// Remove deletes the object of a file or the marker of a directory.
// Deleting a missing key succeeds.
func (b *Backend) Remove(ctx context.Context, r *resource.Resource) error {
	if b.key(r.Path()) == b.config.KeyPrefix {
		return nil
	}
	key := b.key(r.Path())
	if r.Type(ctx) == resource.TypeDirectory {
		key = b.dirPrefix(r.Path())
	}
	return b.holder.Do(ctx, "delete", func(api API) error {
		_, err := api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		return err
	})
}
