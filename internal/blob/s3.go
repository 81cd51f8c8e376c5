package blob

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/order-image-pipeline/internal/order"
)

// S3Config describes the bucket and how its objects are exposed publicly.
type S3Config struct {
	Bucket    string
	PublicURL string // public URL prefix, e.g. an r2.dev domain or CDN
	// Tagging is the URL-encoded object tagging string for cost allocation,
	// e.g. "Project=order-image-pipeline". Leave empty for stores that do
	// not support tagging (R2).
	Tagging string
}

// s3API is the subset of *s3.Client used by S3Store.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store implements Store on S3 or any S3-compatible service.
type S3Store struct {
	client    s3API
	bucket    string
	publicURL string
	tagging   string
}

var _ Store = (*S3Store)(nil)

// NewS3Store creates an S3Store. The client should be built from the shared
// AWS config, or with a custom endpoint for R2 (see NewS3Client).
func NewS3Store(client *s3.Client, cfg S3Config) *S3Store {
	return newS3Store(client, cfg)
}

func newS3Store(client s3API, cfg S3Config) *S3Store {
	return &S3Store{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		tagging:   cfg.Tagging,
	}
}

// NewS3Client returns an S3 client. A non-empty endpoint selects an
// S3-compatible service addressed with path-style URLs.
func NewS3Client(cfg aws.Config, endpoint string) *s3.Client {
	if endpoint == "" {
		return s3.NewFromConfig(cfg)
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(strings.TrimSuffix(endpoint, "/"))
		o.UsePathStyle = true
	})
}

// Put uploads data with the given content type.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	start := time.Now()
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	}
	if s.tagging != "" {
		input.Tagging = aws.String(s.tagging)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Object upload failed")
		return &order.StorageError{Key: key, Err: err}
	}

	log.Debug().
		Str("key", key).
		Str("contentType", contentType).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Object uploaded")
	return nil
}

// URL returns the public URL for key.
func (s *S3Store) URL(key string) string {
	return publicURL(s.publicURL, key)
}
