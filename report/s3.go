package report

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config locates the bucket reports are copied to. Endpoint is only set
// for S3-compatible stores (MinIO, R2).
type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

type uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Uploader copies written report files into a bucket.
type S3Uploader struct {
	up     uploader
	bucket string
	prefix string
}

func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3: region is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3Uploader{
		up:     manager.NewUploader(client),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Key returns the object key a local file is uploaded under.
func (u *S3Uploader) Key(file string) string {
	dir := filepath.Base(filepath.Dir(file))
	return path.Join(u.prefix, dir, filepath.Base(file))
}

// Upload sends each file and returns the object keys in order.
func (u *S3Uploader) Upload(ctx context.Context, files ...string) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		fh, err := os.Open(f)
		if err != nil {
			return keys, fmt.Errorf("s3: open %s: %w", f, err)
		}

		key := u.Key(f)
		_, err = u.up.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(key),
			Body:        fh,
			ContentType: aws.String("application/json"),
		})
		fh.Close()
		if err != nil {
			return keys, fmt.Errorf("s3: upload %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func normaliseEndpoint(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		return endpoint
	}
	return "https://" + endpoint
}
