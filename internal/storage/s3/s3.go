package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"voicepaste/internal/storage"
)

// API is the subset of *s3.Client used by Backend.
type API interface {
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *awss3.CreateBucketInput, optFns ...func(*awss3.Options)) (*awss3.CreateBucketOutput, error)
	PutBucketLifecycleConfiguration(ctx context.Context, params *awss3.PutBucketLifecycleConfigurationInput, optFns ...func(*awss3.Options)) (*awss3.PutBucketLifecycleConfigurationOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

// Backend implements storage.Backend on one S3 bucket.
type Backend struct {
	client API
	bucket string
	region string
}

// NewClient builds an S3 client from an AWS config. A custom endpoint
// (MinIO, LocalStack) switches to path-style addressing.
func NewClient(awsCfg aws.Config, cfg Config) *awss3.Client {
	var s3Opts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}
	return awss3.NewFromConfig(awsCfg, s3Opts...)
}

// New creates a backend for cfg.Bucket.
func New(client API, cfg Config) *Backend {
	cfg.ApplyDefaults()
	return &Backend{client: client, bucket: cfg.Bucket, region: cfg.Region}
}

// LocationExists implements storage.Backend.
func (b *Backend) LocationExists(ctx context.Context) (bool, error) {
	_, err := b.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	var nsb *types.NoSuchBucket
	if errors.As(err, &nf) || errors.As(err, &nsb) {
		return false, nil
	}
	return false, fmt.Errorf("storage: s3 head bucket: %w", err)
}

// CreateLocation implements storage.Backend. us-east-1 must not carry a
// location constraint; every other region must.
func (b *Backend) CreateLocation(ctx context.Context) error {
	in := &awss3.CreateBucketInput{Bucket: aws.String(b.bucket)}
	if b.region != "" && b.region != DefaultRegion {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}
	_, err := b.client.CreateBucket(ctx, in)
	if err == nil {
		return nil
	}
	if isAlreadyOurs(err) {
		return storage.ErrLocationExists
	}
	return fmt.Errorf("storage: s3 create bucket: %w", err)
}

// isAlreadyOurs matches the outcomes of losing a creation race: the bucket
// is ours already, or a concurrent create is still settling.
func isAlreadyOurs(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "BucketAlreadyOwnedByYou", "OperationAborted":
			return true
		}
	}
	return false
}

// SetExpiry implements storage.Backend.
func (b *Backend) SetExpiry(ctx context.Context, days int) error {
	_, err := b.client.PutBucketLifecycleConfiguration(ctx, &awss3.PutBucketLifecycleConfigurationInput{
		Bucket: aws.String(b.bucket),
		LifecycleConfiguration: &types.BucketLifecycleConfiguration{
			Rules: []types.LifecycleRule{{
				ID:         aws.String(fmt.Sprintf("DeleteAfter%dDay", days)),
				Status:     types.ExpirationStatusEnabled,
				Filter:     &types.LifecycleRuleFilter{Prefix: aws.String("")},
				Expiration: &types.LifecycleExpiration{Days: aws.Int32(int32(days))},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("storage: s3 put lifecycle: %w", err)
	}
	return nil
}

// Put implements storage.Backend.
func (b *Backend) Put(ctx context.Context, key string, body []byte, contentType string) error {
	in := &awss3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := b.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("storage: s3 upload: %w", err)
	}
	return nil
}

// Delete implements storage.Backend.
func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage: s3 delete: %w", err)
	}
	return nil
}

// URI implements storage.Backend.
func (b *Backend) URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", b.bucket, key)
}

// compile-time check
var _ storage.Backend = (*Backend)(nil)
