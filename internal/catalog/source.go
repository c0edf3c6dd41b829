package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const maxCatalogSize = 8 << 20

// Source fetches the raw catalog file.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// NewSource picks a source from location: "s3://bucket/key" reads from S3,
// anything else is a local path.
func NewSource(ctx context.Context, location, region string, logger *slog.Logger) (Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("catalog location is required")
	}
	if !strings.HasPrefix(location, "s3://") {
		return fileSource{path: location}, nil
	}

	bucket, key, ok := strings.Cut(strings.TrimPrefix(location, "s3://"), "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("invalid S3 catalog location %q, want s3://bucket/key", location)
	}
	return NewS3Source(ctx, bucket, key, region, logger)
}

type fileSource struct {
	path string
}

func (s fileSource) Fetch(ctx context.Context) ([]byte, error) {
	_ = ctx
	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", s.path, err)
	}
	return content, nil
}

func (s fileSource) String() string {
	return s.path
}

// objectGetter is the subset of the S3 client used to read the catalog.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Source struct {
	client objectGetter
	bucket string
	key    string
	logger *slog.Logger
}

func NewS3Source(ctx context.Context, bucket, key, region string, logger *slog.Logger) (*S3Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "s3_catalog_source")

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	logger.Info("S3 catalog source initialised", "bucket", bucket, "key", key, "region", region)
	return &S3Source{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		key:    key,
		logger: logger,
	}, nil
}

func (s *S3Source) Fetch(ctx context.Context) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to get catalog from S3", "bucket", s.bucket, "key", s.key, "error", err)
		return nil, fmt.Errorf("failed to get object from S3 (bucket=%s, key=%s): %w", s.bucket, s.key, err)
	}
	defer func() {
		_ = result.Body.Close() //nolint:errcheck
	}()

	content, err := io.ReadAll(io.LimitReader(result.Body, maxCatalogSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog from S3 %s: %w", s.key, err)
	}
	if len(content) > maxCatalogSize {
		return nil, fmt.Errorf("catalog %s exceeds %d bytes", s.key, maxCatalogSize)
	}
	return content, nil
}

func (s *S3Source) String() string {
	return "s3://" + s.bucket + "/" + s.key
}
