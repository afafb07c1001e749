package objectstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds object storage connection settings
type Config struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool

	// BucketPrefix namespaces every provisioned bucket so multiple
	// deployments can share one MinIO instance.
	BucketPrefix string
}

// Client provisions and tears down the physical buckets backing the bucket
// domain. Content operations (upload, download) live with their callers; this
// layer only manages bucket lifecycle.
type Client interface {
	EnsureBucket(ctx context.Context, name string) error
	DeleteBucket(ctx context.Context, name string) error
}

// S3Client implements Client over S3 or any S3-compatible store (MinIO)
type S3Client struct {
	client *s3.Client
	prefix string
}

// NewS3Client creates an object storage client
func NewS3Client(ctx context.Context, cfg Config) (*S3Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		// Static credentials, for MinIO or explicit AWS keys.
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)),
		)
	} else {
		// Default credential chain: IAM roles, env vars.
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		client: client,
		prefix: cfg.BucketPrefix,
	}, nil
}

func (c *S3Client) physicalName(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + "-" + name
}

// EnsureBucket creates the bucket if it does not already exist
func (c *S3Client) EnsureBucket(ctx context.Context, name string) error {
	bucket := c.physicalName(name)

	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil && !isBucketAlreadyExistsError(err) {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}

	return nil
}

// DeleteBucket removes the bucket. A missing bucket is not an error; the
// caller may be retrying a half-finished teardown.
func (c *S3Client) DeleteBucket(ctx context.Context, name string) error {
	bucket := c.physicalName(name)

	_, err := c.client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete bucket %s: %w", bucket, err)
	}

	return nil
}

func isBucketAlreadyExistsError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "BucketAlreadyExists") ||
		strings.Contains(err.Error(), "BucketAlreadyOwnedByYou"))
}

func isNotFoundError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "NotFound") ||
		strings.Contains(err.Error(), "NoSuchBucket"))
}

// NopClient is a Client that does nothing, for deployments without object
// storage and for tests.
type NopClient struct{}

func (NopClient) EnsureBucket(ctx context.Context, name string) error { return nil }

func (NopClient) DeleteBucket(ctx context.Context, name string) error { return nil }
