// Package blob 将上传文件写入 S3 兼容存储并返回可公开访问的 URL。
package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config 为对象存储配置。PublicBaseURL 为空时按 endpoint/bucket 拼接。
type Config struct {
	Endpoint      string `yaml:"endpoint" json:"endpoint"`
	Bucket        string `yaml:"bucket" json:"bucket"`
	AccessKey     string `yaml:"access_key" json:"access_key"`
	SecretKey     string `yaml:"secret_key" json:"secret_key"`
	Secure        bool   `yaml:"secure" json:"secure"`
	PublicBaseURL string `yaml:"public_base_url" json:"public_base_url"`
}

// Store 为 MinIO / S3 上传器。
type Store struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewStore 创建客户端，不检查 bucket 是否存在。
func NewStore(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("blob endpoint and bucket required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket, baseURL: baseURL(cfg)}, nil
}

// Upload 写入对象并返回其公开 URL。
func (s *Store) Upload(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object %s: %w", key, err)
	}
	return PublicURL(s.baseURL, key), nil
}

func baseURL(cfg Config) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	scheme := "http"
	if cfg.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, strings.TrimRight(cfg.Endpoint, "/"), cfg.Bucket)
}

// PublicURL 拼接对象 URL，逐段转义 key。
func PublicURL(base, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}
