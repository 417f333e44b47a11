//go:build integration

package s3_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	dittos3 "github.com/marmos91/dittores/pkg/backend/s3"
	"github.com/marmos91/dittores/pkg/pipeline"
	"github.com/marmos91/dittores/pkg/resource"
	restesting "github.com/marmos91/dittores/pkg/resource/testing"
)

// localstackEndpoint returns the S3-compatible endpoint under test.
func localstackEndpoint() string {
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "http://localhost:4566"
}

// setupTestBucket creates a test bucket that is emptied and removed when
// the test ends.
//
// It connects to Localstack (or other S3-compatible endpoint) with a raw
// SDK client, independent of the backend under test.
func setupTestBucket(t *testing.T, bucketName string) {
	t.Helper()
	ctx := context.Background()

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			"test", // AccessKeyID
			"test", // SecretAccessKey
			"",     // SessionToken
		)),
	)
	if err != nil {
		t.Fatalf("Failed to load AWS config: %v", err)
	}

	// Path-style URLs are required for Localstack
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(localstackEndpoint())
		o.UsePathStyle = true
	})

	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	}); err != nil {
		t.Fatalf("Failed to create test bucket: %v", err)
	}

	t.Cleanup(func() {
		paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucketName),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				break
			}
			for _, obj := range page.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(bucketName),
					Key:    obj.Key,
				})
			}
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(bucketName),
		})
	})
}

func backendConfig(prefix string) dittos3.Config {
	return dittos3.Config{
		Region:          "us-east-1",
		Endpoint:        localstackEndpoint(),
		KeyPrefix:       prefix,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		MaxRetries:      2,
	}
}

// TestS3Backend_Integration runs the backend conformance suite against a
// real S3-compatible service (Localstack).
//
// Prerequisites:
//   - Localstack running on localhost:4566
//   - Run with: go test -tags=integration ./test/integration/s3/...
//
// To start Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
func TestS3Backend_Integration(t *testing.T) {
	bucketName := "dittores-test-bucket"
	setupTestBucket(t, bucketName)

	// Each test gets a unique key prefix for isolation
	testCounter := 0
	suite := &restesting.BackendTestSuite{
		NewRoot: func(t *testing.T) *resource.Resource {
			testCounter++
			b := dittos3.NewBackend(backendConfig(fmt.Sprintf("test-%d/", testCounter)), bucketName, false, nil)
			t.Cleanup(func() { _ = b.Close() })
			return b.Resource("/", resource.TypeDirectory)
		},
	}
	suite.Run(t)
}

// TestS3Backend_PipelineCredential resolves s3 URIs through a pipeline
// whose resolver carries no keys, authenticating with an attached
// credential instead.
func TestS3Backend_PipelineCredential(t *testing.T) {
	ctx := context.Background()
	bucketName := "dittores-credential-test"
	setupTestBucket(t, bucketName)

	cfg := backendConfig("")
	cfg.AccessKeyID, cfg.SecretAccessKey = "", ""
	p := pipeline.New([]pipeline.Resolver{dittos3.NewResolver(cfg, 0)}, nil)
	defer func() { _ = p.Close() }()

	cred := pipeline.WithCredential(resource.AccessKey{AccessKeyID: "test", SecretAccessKey: "test"})

	r, err := p.Resolve(ctx, "s3://"+bucketName+"/docs/readme.txt", cred)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := r.WriteBytes(ctx, []byte("over s3")); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}

	dir, err := p.Resolve(ctx, "s3://"+bucketName+"/docs", cred, pipeline.AsType(resource.TypeDirectory))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	children, err := dir.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(children) != 1 || children[0].FileName() != "readme.txt" {
		t.Fatalf("Expected [readme.txt], got %v", children)
	}

	content, err := children[0].ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll of listed child failed: %v", err)
	}
	if string(content) != "over s3" {
		t.Errorf("Expected 'over s3', got %q", content)
	}
}
