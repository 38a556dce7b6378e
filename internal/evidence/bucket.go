package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kuitang/pillbridge-verify/internal/errs"
)

// Bucket is a thin wrapper over an S3-compatible bucket.
type Bucket struct {
	s3Client   *s3.Client
	bucketName string
}

// BucketConfig holds the settings for NewBucket.
type BucketConfig struct {
	// Endpoint is the S3 endpoint URL. Leave empty for AWS S3.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// UsePathStyle is required by some S3-compatible services, gofakes3 included.
	UsePathStyle bool
}

// NewBucket creates a bucket client. Credentials fall back to the default AWS
// chain when AccessKeyID is empty.
func NewBucket(ctx context.Context, cfg BucketConfig) (*Bucket, error) {
	if cfg.BucketName == "" {
		return nil, errs.New(errs.InvalidArgument, "bucket name is required")
	}
	var opts []func(*config.LoadOptions) error

	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "load AWS config", err)
	}

	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewBucketFromS3Client(client, cfg.BucketName), nil
}

// NewBucketFromS3Client wraps an existing client.
func NewBucketFromS3Client(client *s3.Client, bucketName string) *Bucket {
	return &Bucket{s3Client: client, bucketName: bucketName}
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.bucketName
}

// PutObject stores content under key.
func (b *Bucket) PutObject(ctx context.Context, key string, content []byte, contentType string) error {
	_, err := b.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return errs.Wrap(errs.Unavailable, fmt.Sprintf("put object %q", key), err)
	}
	return nil
}

// GetObject returns the content stored under key, or an errs.NotFound error.
func (b *Bucket) GetObject(ctx context.Context, key string) ([]byte, error) {
	result, err := b.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &notFound) {
			return nil, errs.Wrap(errs.NotFound, fmt.Sprintf("object %q", key), err)
		}
		return nil, errs.Wrap(errs.Unavailable, fmt.Sprintf("get object %q", key), err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, fmt.Sprintf("read object %q", key), err)
	}
	return data, nil
}

// ObjectKey joins prefix, runID and name into an object key.
func ObjectKey(prefix, runID, name string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{prefix, runID, name} {
		p = strings.Trim(p, "/")
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}
