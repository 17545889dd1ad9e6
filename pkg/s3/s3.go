// Package s3 wraps the AWS SDK v2 S3 client with the three operations the
// asset deployer needs: existence checks, public-read uploads, and public
// URL construction.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const requestTimeout = 30 * time.Second

// Config carries the static credential pair and region the client is
// constructed from.
type Config struct {
	AccessKey string
	SecretKey string
	Region    string
}

// Client is a thin wrapper around the AWS SDK v2 S3 client.
type Client struct {
	api    *s3.Client
	region string
}

// New constructs a Client from static credentials and a region.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3: access key and secret key are required")
	}
	if cfg.Region == "" {
		return nil, errors.New("s3: region is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: requestTimeout}),
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		api:    s3.NewFromConfig(awsCfg),
		region: cfg.Region,
	}, nil
}

// Exists reports whether bucket/key currently holds an object. A modeled
// not-found response is not an error.
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if c == nil {
		return false, errors.New("nil client")
	}

	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PutPublic uploads body under bucket/key with a public-read canned ACL and
// returns the object's public URL. contentType is attached only when
// non-empty.
func (c *Client) PutPublic(ctx context.Context, bucket, key string, body []byte, contentType string) (string, error) {
	if c == nil {
		return "", errors.New("nil client")
	}

	input := &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(body),
		ACL:    s3types.ObjectCannedACLPublicRead,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := c.api.PutObject(ctx, input); err != nil {
		return "", err
	}
	return c.URL(bucket, key), nil
}

// URL returns the virtual-hosted-style public URL for bucket/key in the
// client's region.
func (c *Client) URL(bucket, key string) string {
	region := ""
	if c != nil {
		region = c.region
	}
	return PublicURL(bucket, region, key)
}

// PublicURL builds the virtual-hosted-style HTTPS URL for an object. The
// us-east-1 endpoint (and an unset region) uses the global hostname.
func PublicURL(bucket, region, key string) string {
	if region == "" || region == "us-east-1" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}
