package vault

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"filesdb-go/internal/crawler"
)

// S3Vault stores artifacts content-addressed in an S3 bucket, one object per
// checksum under an optional key prefix.
type S3Vault struct {
	name     string
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// S3Options configures an S3 vault. Bucket is required; everything else
// falls back to the environment's default AWS configuration.
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // custom endpoint for S3-compatible stores
	AccessKey string
	SecretKey string
}

// NewS3Vault creates a vault backed by the given bucket.
func NewS3Vault(ctx context.Context, name string, opts S3Options) (*S3Vault, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires a bucket")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Vault{
		name:     name,
		bucket:   opts.Bucket,
		prefix:   opts.Prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (v *S3Vault) key(checksum string) string {
	if v.prefix == "" {
		return checksum
	}
	return v.prefix + "/" + checksum
}

// PutArtifact stores an artifact identified by its checksum.
// The operation is idempotent: an object that already exists is left alone.
func (v *S3Vault) PutArtifact(checksum string, r io.Reader, size int64) error {
	ctx := context.Background()
	key := v.key(checksum)

	_, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("checking for existing artifact: %w", err)
	}

	_, err = v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading artifact %s: %w", checksum, err)
	}
	return nil
}

// GetArtifact retrieves an artifact by checksum and writes it to w.
func (v *S3Vault) GetArtifact(checksum string, w io.Writer) error {
	ctx := context.Background()

	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(checksum)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("artifact not found: %s", checksum)
		}
		return fmt.Errorf("fetching artifact %s: %w", checksum, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the bucket is reachable.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(v.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

// Compile-time check that S3Vault implements crawler.ArtifactVault
var _ crawler.ArtifactVault = (*S3Vault)(nil)
