// Package s3blob stores archived trade logs in an S3-compatible bucket
// (AWS, MinIO, R2, iDrive e2) through AWS SDK v2.
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig is the [s3] section of the engine config in SDK terms.
type ClientConfig struct {
	Endpoint       string // empty for AWS itself
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool // scheme for an Endpoint given without one
	ForcePathStyle bool
}

func (c ClientConfig) validate() error {
	switch {
	case c.Bucket == "":
		return errors.New("s3blob: bucket is required")
	case c.Region == "":
		return errors.New("s3blob: region is required")
	case (c.AccessKey == "") != (c.SecretKey == ""):
		return errors.New("s3blob: access_key and secret_key must be set together")
	}
	return nil
}

// Client is a bucket-scoped S3 handle shared by Reader and Writer.
type Client struct {
	api    *s3.Client
	bucket string
}

// New builds a Client. Static keys win over the default credential chain
// when both are configured.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &Client{api: api, bucket: cfg.Bucket}, nil
}

// Health reports whether the archive bucket is reachable with the
// configured credentials.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3blob: bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close exists so Wire can treat every client the same way.
func (c *Client) Close() error { return nil }

func (c *Client) key(path string) (*string, *string) {
	return aws.String(c.bucket), aws.String(path)
}

func withScheme(endpoint string, useSSL bool) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
