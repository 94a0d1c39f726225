// Package backup uploads gzip-compressed snapshot bytes to an S3-compatible
// object store after a successful SAVE, enriching spec.md's local-file-only
// SAVE with the off-box durability the rest of the corpus already wires up
// for its own archive data.
package backup

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
)

// Target abstracts the destination a snapshot is uploaded to.
type Target interface {
	Upload(ctx context.Context, name string, data []byte) error
}

// S3TargetConfig holds the configuration for an S3 snapshot target.
type S3TargetConfig struct {
	Endpoint     string
	Bucket       string
	AccessKey    string
	SecretKey    string
	Region       string
	UsePathStyle bool
}

// S3Target uploads gzip-compressed snapshots to an S3-compatible bucket.
type S3Target struct {
	client *s3.Client
	bucket string
}

func NewS3Target(ctx context.Context, cfg S3TargetConfig) (*S3Target, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("backup: empty bucket name")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("backup: load AWS config: %w", err)
	}

	opts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}

	return &S3Target{client: s3.NewFromConfig(awsCfg, opts), bucket: cfg.Bucket}, nil
}

// Upload gzip-compresses data and puts it at name in the configured bucket.
func (st *S3Target) Upload(ctx context.Context, name string, data []byte) error {
	compressed, err := gzipCompress(data)
	if err != nil {
		return fmt.Errorf("backup: compress %q: %w", name, err)
	}

	_, err = st.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(st.bucket),
		Key:             aws.String(name + ".gz"),
		Body:            bytes.NewReader(compressed),
		ContentType:     aws.String("application/octet-stream"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("backup: put object %q: %w", name, err)
	}
	return nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
