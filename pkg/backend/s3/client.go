package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittores/internal/logger"
	"github.com/marmos91/dittores/pkg/resource"
)

// defaultMaxRetries is used when Config.MaxRetries is zero. It is higher
// than the SDK default of 3 to ride out transient 502/503s.
const defaultMaxRetries = 10

// NewClient builds an SDK client from cfg.
//
// Credentials come from cred when set, then from the static keys in cfg,
// then from the default AWS credential chain. A custom endpoint switches
// the client to path-style addressing.
func NewClient(ctx context.Context, cfg Config, secure bool, cred *resource.AccessKey) (API, error) {
	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(cfg.Region))

	switch {
	case cred != nil:
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cred.AccessKeyID, cred.SecretAccessKey, cred.SessionToken),
		))
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := endpointURL(cfg.Endpoint, secure)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			// Path-style addressing for MinIO/Localstack compatibility
			o.UsePathStyle = true
		}
	})

	logger.Debug("S3 client initialized: region=%s, endpoint=%s, prefix=%s", cfg.Region, endpoint, cfg.KeyPrefix)
	return client, nil
}

// endpointURL adds the scheme implied by the URI scheme to a bare host.
func endpointURL(endpoint string, secure bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if secure {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
