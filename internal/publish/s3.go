package publish

import (
	"bytes"
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/tapas/internal/config"
	"github.com/vango-dev/tapas/internal/errors"
)

// DefaultRegion is used when neither the config nor AWS_REGION names one.
const DefaultRegion = "us-east-1"

// S3Store stores objects in one S3 bucket.
type S3Store struct {
	client       *s3.Client
	bucket       string
	cacheControl string
}

// NewS3Store creates a store for bucket. Credentials are read from the
// environment when the first request is signed.
func NewS3Store(ctx context.Context, bucket string, cfg config.PublishConfig, optFns ...func(*s3.Options)) (*S3Store, error) {
	if bucket == "" {
		return nil, errors.New("E145").WithDetail("bucket name is empty")
	}
	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = DefaultRegion
	}

	opts := s3.Options{
		Region:                     region,
		Credentials:                aws.NewCredentialsCache(aws.CredentialsProviderFunc(envCredentials)),
		UsePathStyle:               cfg.PathStyle,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return &S3Store{
		client:       s3.New(opts, optFns...),
		bucket:       bucket,
		cacheControl: cfg.CacheControl,
	}, nil
}

// Bucket returns the bucket name.
func (s *S3Store) Bucket() string {
	return s.bucket
}

// Put uploads body to key.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body []byte) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	}
	if s.cacheControl != "" {
		in.CacheControl = aws.String(s.cacheControl)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return errors.New("E145").WithDetailf("s3://%s/%s", s.bucket, key).Wrap(err)
	}
	return nil
}

func envCredentials(ctx context.Context) (aws.Credentials, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, errors.New("E145").
			WithDetail("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are not set").
			WithSuggestion("Export credentials for the target bucket")
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "Environment",
	}, nil
}
