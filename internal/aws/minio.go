package aws

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig points at an S3-compatible endpoint.
type MinioConfig struct {
	Endpoint  string // host[:port], no scheme
	AccessKey string // empty reads AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY
	SecretKey string
	Region    string
	UseSSL    bool
}

// MinioStorage implements ObjectStore against any S3-compatible endpoint.
type MinioStorage struct {
	client *minio.Client
}

// NewMinioStorage creates a store for cfg.Endpoint.
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if strings.Contains(cfg.Endpoint, "://") {
		return nil, fmt.Errorf("endpoint must not include scheme: %q", cfg.Endpoint)
	}

	creds := credentials.NewEnvAWS()
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating client for %s: %w", cfg.Endpoint, err)
	}
	return &MinioStorage{client: client}, nil
}

// BucketExists reports whether bucket exists on the endpoint.
func (s *MinioStorage) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	return ok, nil
}

// Stat returns the metadata of bucket/key or ErrObjectNotFound.
func (s *MinioStorage) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// Put stores body at bucket/key.
func (s *MinioStorage) Put(ctx context.Context, bucket, key string, body []byte, opts PutOptions) error {
	meta := make(map[string]string, len(opts.Metadata)+1)
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	if opts.ACL != "" {
		// amz headers in user metadata are sent verbatim
		meta["x-amz-acl"] = opts.ACL
	}

	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:        opts.ContentType,
		ContentEncoding:    opts.ContentEncoding,
		CacheControl:       opts.CacheControl,
		ContentDisposition: opts.ContentDisposition,
		ContentLanguage:    opts.ContentLanguage,
		UserMetadata:       meta,
		SendContentMd5:     len(opts.MD5) > 0,
	})
	if err != nil {
		return fmt.Errorf("uploading to %s/%s: %w", bucket, key, err)
	}
	return nil
}
