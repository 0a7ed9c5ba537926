package blobstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gocloud.dev/blob/s3blob"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/gcsblob"
)

// S3Options configures an S3-compatible backend. Endpoint is optional for
// real AWS; required for MinIO/R2/other compatible stores.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// NewS3 creates a store backed by an S3-compatible object store.
//
// When AccessKey/SecretKey are empty the AWS SDK default credential chain
// applies. Refer: https://pkg.go.dev/gocloud.dev/blob/s3blob
func NewS3(ctx context.Context, opts S3Options, prefix, publicBase string) (*Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	bkt, err := s3blob.OpenBucketV2(ctx, client, opts.Bucket, nil)
	if err != nil {
		return nil, fmt.Errorf("open s3 bucket %q: %w", opts.Bucket, err)
	}

	store := New(bkt, prefix, publicBase)
	store.owns = true
	return store, nil
}

// NewGCS creates a store backed by Google Cloud Storage.
//
// Authentication is handled by application default credentials.
// Refer: https://pkg.go.dev/gocloud.dev/blob/gcsblob
func NewGCS(ctx context.Context, bucket, prefix, publicBase string) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return Open(ctx, "gs://"+bucket, prefix, publicBase)
}

// NewAzure creates a store backed by Azure Blob Storage.
//
// Authentication uses AZURE_STORAGE_ACCOUNT/AZURE_STORAGE_KEY or other
// Azure SDK credentials.
func NewAzure(ctx context.Context, container, prefix, publicBase string) (*Store, error) {
	if container == "" {
		return nil, fmt.Errorf("container is required")
	}
	return Open(ctx, "azblob://"+container, prefix, publicBase)
}
