// Package awsutil loads the shared AWS configuration used by the storage and
// transcription clients.
package awsutil

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// DefaultRegion is used when neither config nor environment name a region.
const DefaultRegion = "us-east-1"

// BucketPrefix names derived buckets: <prefix><account-id>.
const BucketPrefix = "voice-to-text-temp-"

// Options selects credentials and region. Empty fields fall back to the SDK
// default chain (env, shared config, instance role).
type Options struct {
	Region    string
	Profile   string
	AccessKey string
	SecretKey string
}

// Load resolves an aws.Config.
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	var lo []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		lo = append(lo, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		lo = append(lo, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		lo = append(lo, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, lo...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return cfg, nil
}

// CallerIdentity is the subset of sts.Client used to name the bucket.
type CallerIdentity interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// BucketName returns configured when set, otherwise a per-account name.
func BucketName(ctx context.Context, configured string, ident CallerIdentity) (string, error) {
	if configured != "" {
		return configured, nil
	}
	out, err := ident.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("resolve account id: %w", err)
	}
	account := aws.ToString(out.Account)
	if account == "" {
		return "", fmt.Errorf("resolve account id: empty account")
	}
	return BucketPrefix + account, nil
}
