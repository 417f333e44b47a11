// Package s3 implements the s3: and s3s: backends over Amazon S3 or any
// S3-compatible object store.
//
// URI layout: s3://bucket/path/to/object. The path maps to an object key
// (with an optional key prefix). Directories are key prefixes; creating a
// directory stores an empty "path/" marker object so empty directories
// survive.
//
// The S3 client is the session of a session.Holder. Every resource
// instance owns its holder; the client is built on first use from the
// configuration and the credential attached to the resource, if any.
package s3

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/dittores/pkg/resource"
	"github.com/marmos91/dittores/pkg/session"
)

const (
	// Scheme addresses buckets over plain HTTP when a custom endpoint is
	// configured, and AWS otherwise.
	Scheme = "s3"

	// SecureScheme always uses HTTPS.
	SecureScheme = "s3s"
)

// API is the subset of *s3.Client used by the backend.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ClientFactory builds the client for one session. cred is nil when the
// resource carries no access key.
type ClientFactory func(ctx context.Context, cfg Config, secure bool, cred *resource.AccessKey) (API, error)

// Config contains configuration for the S3 backend.
type Config struct {
	// Region is the AWS region (required for AWS, any value for most
	// S3-compatible stores)
	Region string `mapstructure:"region" validate:"required"`

	// Endpoint is a custom host[:port] for S3-compatible storage (MinIO,
	// Localstack, Cubbit DS3...). Empty uses AWS.
	Endpoint string `mapstructure:"endpoint"`

	// KeyPrefix is prepended to every object key
	KeyPrefix string `mapstructure:"key_prefix"`

	// AccessKeyID and SecretAccessKey are static credentials used when the
	// resource carries none. Empty uses the default AWS credential chain.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// MaxRetries is the SDK retry budget per request (default: 10)
	MaxRetries int `mapstructure:"max_retries"`

	// Factory overrides client construction
	Factory ClientFactory `mapstructure:"-"`
}

// Backend serves the objects of one bucket for one resource instance.
type Backend struct {
	config Config
	bucket string
	secure bool
	cred   *resource.AccessKey
	holder *session.Holder[API, API]
}

// NewBackend creates a backend for bucket. secure selects https for custom
// endpoints.
func NewBackend(config Config, bucket string, secure bool, cred *resource.AccessKey) *Backend {
	if config.Factory == nil {
		config.Factory = NewClient
	}
	b := &Backend{config: config, bucket: bucket, secure: secure, cred: cred}
	b.holder = session.NewHolder[API, API](&provider{backend: b})
	return b
}

// Resource returns the resource for key path p.
func (b *Backend) Resource(p string, typ resource.Type) *resource.Resource {
	return resource.New(b, &url.URL{Scheme: b.Scheme(), Host: b.bucket, Path: path.Clean("/" + p)}, typ)
}

func (b *Backend) Scheme() string {
	if b.secure {
		return SecureScheme
	}
	return Scheme
}

// Bucket returns the bucket name.
func (b *Backend) Bucket() string { return b.bucket }

// AcceptsCredential accepts AWS access keys.
func (b *Backend) AcceptsCredential(c resource.Credential) bool {
	_, ok := c.(resource.AccessKey)
	return ok
}

// Derive gives every derived resource its own session, built with the
// credential of the new resource.
func (b *Backend) Derive(from *resource.Resource, u *url.URL, typ resource.Type) (*resource.Resource, error) {
	var cred *resource.AccessKey
	if ak, ok := from.Credential().(resource.AccessKey); ok {
		cred = &ak
	}
	return resource.New(NewBackend(b.config, b.bucket, b.secure, cred), u, typ), nil
}

// Close releases the client of this instance.
func (b *Backend) Close() error {
	return b.holder.Close()
}

// key maps a resource path to its object key.
func (b *Backend) key(p string) string {
	return b.config.KeyPrefix + strings.TrimPrefix(path.Clean("/"+p), "/")
}

// dirPrefix is the key prefix of the children of p.
func (b *Backend) dirPrefix(p string) string {
	k := b.key(p)
	if k == "" || strings.HasSuffix(k, "/") {
		return k
	}
	return k + "/"
}

// ============================================================================
// Session Provider
// ============================================================================

type provider struct {
	backend *Backend
}

func (p *provider) Open(ctx context.Context) (API, error) {
	return p.backend.config.Factory(ctx, p.backend.config, p.backend.secure, p.backend.cred)
}

// Validate accepts any client: SDK clients hold no connection of their own
// and refresh credentials internally.
func (p *provider) Validate(context.Context, API) error { return nil }

func (p *provider) CloseSession(API) error { return nil }

func (p *provider) OpenChannel(_ context.Context, api API) (API, error) { return api, nil }

func (p *provider) CloseChannel(API) error { return nil }

func (p *provider) Translate(op string, err error) error {
	return translate(op, p.backend.Scheme()+"://"+p.backend.bucket, err)
}

// translate maps SDK errors onto the resource error taxonomy.
func translate(op, uri string, err error) error {
	var ioErr *resource.IOError
	if errors.As(err, &ioErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return resource.NewIOError(op, uri, resource.ReasonNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return resource.NewIOError(op, uri, resource.ReasonNotFound, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return resource.NewIOError(op, uri, resource.ReasonPermission, err)
		}
	}

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		switch status.HTTPStatusCode() {
		case 404:
			return resource.NewIOError(op, uri, resource.ReasonNotFound, err)
		case 401, 403:
			return resource.NewIOError(op, uri, resource.ReasonPermission, err)
		}
	}

	return resource.NewIOError(op, uri, resource.ReasonFailure, err)
}
