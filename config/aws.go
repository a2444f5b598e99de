package config

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// LoadOptions translates the settings into SDK load options. Validate
// rejects settings that carry both a profile and static keys.
func (a *AWS) LoadOptions() []func(*awsconfig.LoadOptions) error {
	var opts []func(*awsconfig.LoadOptions) error
	if a.Region != "" {
		opts = append(opts, awsconfig.WithRegion(a.Region))
	}
	if a.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(a.Profile))
	} else if a.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.AccessKeyID, a.SecretAccessKey, a.SessionToken,
		)))
	}
	return opts
}

// Load builds an aws.Config from the settings.
func (a *AWS) Load(ctx context.Context) (sdkaws.Config, error) {
	if err := a.Validate(); err != nil {
		return sdkaws.Config{}, err
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, a.LoadOptions()...)
	if err != nil {
		return sdkaws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if a.Endpoint != "" {
		endpoint := a.Endpoint
		cfg.BaseEndpoint = &endpoint
	}
	return cfg, nil
}
