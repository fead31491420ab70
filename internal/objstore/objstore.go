// Package objstore stores document payloads under residency-scoped paths.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore persists one document payload.
type ObjectStore interface {
	Put(ctx context.Context, bucket, path string, data []byte, contentType string) error
}

// FSStore writes objects to the local filesystem. The default for
// development and tests.
type FSStore struct {
	root string
}

// NewFSStore roots a filesystem store at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{root: dir}
}

func (f *FSStore) Put(_ context.Context, bucket, path string, data []byte, _ string) error {
	full := filepath.Join(f.root, bucket, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("writing object: %w", err)
	}
	return nil
}

// S3Store writes objects to S3-compatible storage.
type S3Store struct {
	client *s3.Client
}

// NewS3Store builds an S3 store from ambient AWS configuration. endpoint
// overrides the API endpoint for S3-compatible providers; pass "" for AWS.
func NewS3Store(ctx context.Context, region, endpoint string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client}, nil
}

func (s *S3Store) Put(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("putting s3 object %s/%s: %w", bucket, path, err)
	}
	return nil
}
