// Package storage stores uploaded post assets (images, attachments) in
// S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"changespage/api/internal/util"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service provides asset upload and retrieval.
type Service struct {
	client *minio.Client
	bucket string
}

// NewService connects to object storage and ensures the bucket exists.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: cfg.Bucket}, nil
}

// Asset describes a stored object.
type Asset struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// Upload stores an asset under a page-scoped key and returns its metadata.
func (s *Service) Upload(ctx context.Context, pageID, filename, contentType string, size int64, r io.Reader) (Asset, error) {
	key := objectKey(pageID, filename)
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Asset{}, fmt.Errorf("upload asset: %w", err)
	}
	return Asset{Key: key, Size: info.Size, ContentType: contentType}, nil
}

// PresignedURL returns a time-limited download URL for an asset.
func (s *Service) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign asset url: %w", err)
	}
	return u.String(), nil
}

// Delete removes an asset.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}

// ListPageAssets lists assets stored for one page.
func (s *Service) ListPageAssets(ctx context.Context, pageID string) ([]Asset, error) {
	prefix := pageID + "/"
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var assets []Asset
	for object := range objects {
		if object.Err != nil {
			return nil, fmt.Errorf("list assets: %w", object.Err)
		}
		assets = append(assets, Asset{
			Key:         object.Key,
			Size:        object.Size,
			ContentType: object.ContentType,
		})
	}
	return assets, nil
}

// objectKey builds a collision-free key, keeping the original extension
// so content sniffing stays sane.
func objectKey(pageID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return pageID + "/" + util.NewID("asset") + ext
}
