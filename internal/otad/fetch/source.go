package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/otad/pkg/log"
	"github.com/autopeer-io/otad/pkg/options"
)

// ObjectSource opens firmware images by key.
type ObjectSource interface {
	// Open returns a reader over the object and its size in bytes.
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// Check verifies that the source is reachable.
	Check(ctx context.Context) error
}

type minioSource struct {
	client     *minio.Client
	bucketName string
}

var _ ObjectSource = (*minioSource)(nil)

// NewMinIOSource returns an ObjectSource reading from the configured bucket.
func NewMinIOSource(opts *options.S3Options) (ObjectSource, error) {
	transport, err := minio.DefaultTransport(opts.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 transport: %w", err)
	}
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &minioSource{
		client:     client,
		bucketName: opts.BucketName,
	}, nil
}

func (s *minioSource) Check(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucketName)
	}
	return nil
}

func (s *minioSource) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get object %s: %w", key, err)
	}

	// GetObject is lazy; Stat performs the request and surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	log.Debug("Opened firmware object", "bucket", s.bucketName, "key", key, "size", info.Size, "etag", info.ETag)
	return obj, info.Size, nil
}
