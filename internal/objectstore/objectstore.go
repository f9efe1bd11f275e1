// Package objectstore wraps the S3-compatible object store (Cloudflare R2)
// that holds image originals and thumbnails, per spec.md §6 "Object store
// layout".
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config is the subset of internal/config.Config the object store needs.
type Config struct {
	AccountID string
	AccessKey string
	SecretKey string
	Bucket    string
	PublicURL string
}

// Store is the object-store client. It is a thin wrapper over *s3.Client so
// call sites depend on the narrower interface below rather than the AWS SDK
// directly.
type Store struct {
	client *s3.Client
	bucket string
	public string
}

// ObjectStore is the interface the image service and consistency checker
// depend on, so tests can substitute an in-memory fake.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
	MoveObject(ctx context.Context, srcKey, dstKey string) error
	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)
	PublicURL(key string) string
	// Ping performs a lightweight reachability probe against the bucket
	// itself (not a specific key), for the /health endpoint.
	Ping(ctx context.Context) error
}

// ObjectInfo is the result of a HeadObject integrity probe.
type ObjectInfo struct {
	Exists bool
	Size   int64
}

// New builds a Store configured for an R2 account, per the teacher's
// account-id-scoped endpoint pattern.
func New(ctx context.Context, cfg Config) (*Store, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	awsCfg := aws.Config{
		Region:      "auto",
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &Store{client: client, bucket: cfg.Bucket, public: cfg.PublicURL}, nil
}

// PutObject uploads data under key with the given content type and custom
// metadata headers (spec.md §4.E step 4: Original-Name, Upload-Time, MD5,
// SHA256).
func (s *Store) PutObject(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	return nil
}

// GetObject downloads the object at key.
func (s *Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// DeleteObject removes the object at key.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("objectstore: delete %s: %w", key, err)
	}
	return nil
}

// MoveObject copies src to dst then deletes src.
func (s *Store) MoveObject(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(s.bucket + "/" + srcKey),
	})
	if err != nil {
		return fmt.Errorf("objectstore: copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return s.DeleteObject(ctx, srcKey)
}

// HeadObject probes existence/size without downloading the body, per
// spec.md §4.E validateImageIntegrity.
func (s *Store) HeadObject(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return &ObjectInfo{Exists: false}, nil
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return &ObjectInfo{Exists: true, Size: size}, nil
}

// PublicURL builds the public URL for an object key.
func (s *Store) PublicURL(key string) string {
	return s.public + "/" + key
}

// Ping probes the configured bucket itself, used by the /health endpoint to
// distinguish a reachable-but-empty store from a misconfigured or
// unreachable one (HeadObject on a missing key deliberately reports
// not-found rather than an error, so it can't be reused for this).
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("objectstore: ping bucket %s: %w", s.bucket, err)
	}
	return nil
}
