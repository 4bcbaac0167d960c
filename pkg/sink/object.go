package sink

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// ObjectStoreConfig configures the S3-compatible archival bucket.
type ObjectStoreConfig struct {
	Endpoint  string // e.g. "s3.us.archive.org" or "localhost:9000"
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string

	// Prefix is prepended to every object name Persist writes.
	Prefix string
	// Ext is appended to every object name Persist writes.
	Ext string

	// Collection is attached to every object as user metadata.
	Collection string
}

// ObjectStore puts archived content into one bucket.
type ObjectStore struct {
	client *minio.Client
	config ObjectStoreConfig
	logger zerolog.Logger
}

// NewObjectStore creates a client for the configured bucket. It does not
// contact the endpoint; call EnsureBucket for that.
func NewObjectStore(config ObjectStoreConfig, logger zerolog.Logger) (*ObjectStore, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	return &ObjectStore{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Bucket returns the target bucket name.
func (s *ObjectStore) Bucket() string {
	return s.config.Bucket
}

// EnsureBucket creates the bucket if it does not exist.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.config.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.config.Bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.config.Bucket, minio.MakeBucketOptions{Region: s.config.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.config.Bucket, err)
	}

	s.logger.Info().Str("bucket", s.config.Bucket).Msg("Bucket created")
	return nil
}

// ObjectName returns the object name Persist uses for an item name.
func (s *ObjectStore) ObjectName(name string) string {
	return s.config.Prefix + name + s.config.Ext
}

// Persist puts data as <prefix><name><ext>, replacing an existing object.
func (s *ObjectStore) Persist(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	object := s.ObjectName(name)
	_, err := s.client.PutObject(ctx, s.config.Bucket, object, bytes.NewReader(data), int64(len(data)), s.putOptions(object))
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.config.Bucket, object, err)
	}
	return nil
}

// UploadFile puts the local file at path as objectName.
func (s *ObjectStore) UploadFile(ctx context.Context, objectName, path string) (int64, error) {
	info, err := s.client.FPutObject(ctx, s.config.Bucket, objectName, path, s.putOptions(objectName))
	if err != nil {
		return 0, fmt.Errorf("upload %s to %s/%s: %w", path, s.config.Bucket, objectName, err)
	}
	return info.Size, nil
}

func (s *ObjectStore) putOptions(object string) minio.PutObjectOptions {
	opts := minio.PutObjectOptions{
		ContentType: contentType(object),
	}
	if s.config.Collection != "" {
		opts.UserMetadata = map[string]string{"collection": s.config.Collection}
	}
	return opts
}

func contentType(object string) string {
	ext := strings.ToLower(filepath.Ext(object))
	if ext == ".md" {
		return "text/markdown; charset=utf-8"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
