package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/R3E-Network/launch_layer/internal/errors"
)

// ObjectStoreConfig configures the S3-compatible backend.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Gateway is the public base URL objects are served from.
	Gateway string
}

// Validate checks the required settings.
func (c ObjectStoreConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("bucket is required")
	}
	if strings.TrimSpace(c.Gateway) == "" {
		return fmt.Errorf("gateway is required")
	}
	return nil
}

// objectClient is the subset of *minio.Client the backend uses.
type objectClient interface {
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectStore keeps content in an S3 bucket keyed by its raw CIDv1, so
// identical uploads share one object.
type ObjectStore struct {
	client  objectClient
	bucket  string
	gateway string
}

// NewObjectStore connects to an S3-compatible endpoint.
func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	return newObjectStore(client, cfg.Bucket, cfg.Gateway), nil
}

func newObjectStore(client objectClient, bucket, gateway string) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket, gateway: strings.TrimSuffix(gateway, "/")}
}

// UploadImage stores an image under its content id.
func (s *ObjectStore) UploadImage(ctx context.Context, data []byte, filename string) (Pinned, error) {
	contentType, err := DetectImage(data)
	if err != nil {
		return Pinned{}, err
	}
	return s.put(ctx, data, contentType, filename)
}

// UploadJSON stores a JSON document under its content id.
func (s *ObjectStore) UploadJSON(ctx context.Context, name string, v interface{}) (Pinned, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Pinned{}, errors.Internal("encode metadata", err)
	}
	return s.put(ctx, data, "application/json", name)
}

func (s *ObjectStore) put(ctx context.Context, data []byte, contentType, name string) (Pinned, error) {
	id, err := RawCID(data)
	if err != nil {
		return Pinned{}, errors.Internal("content id", err)
	}
	key := id.String()
	pinned := Pinned{CID: key, URI: s.gateway + "/" + key, ContentType: contentType}

	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err == nil {
		return pinned, nil
	} else if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return Pinned{}, fmt.Errorf("stat %s: %w", key, err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"name": name},
	})
	if err != nil {
		return Pinned{}, fmt.Errorf("put %s: %w", key, err)
	}
	return pinned, nil
}
