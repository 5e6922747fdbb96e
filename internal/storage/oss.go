package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"schoolfest-backend/internal/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

type ossStorage struct {
	bucket     *oss.Bucket
	bucketName string
	endpoint   string
	publicBase string
}

func newOSSStorage(cfg *config.Storage) (*ossStorage, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}

	bucket, err := client.Bucket(cfg.OSSBucket)
	if err != nil {
		return nil, fmt.Errorf("client.Bucket: %w", err)
	}

	return &ossStorage{
		bucket:     bucket,
		bucketName: cfg.OSSBucket,
		endpoint:   cfg.OSSEndpoint,
		publicBase: strings.TrimRight(cfg.OSSPublicBase, "/"),
	}, nil
}

func (s *ossStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentDisposition("inline"),
	}
	if err := s.bucket.PutObject(key, body, opts...); err != nil {
		return "", fmt.Errorf("oss put %s: %w", key, err)
	}

	return s.publicURL(key), nil
}

func (s *ossStorage) publicURL(key string) string {
	if s.publicBase != "" {
		return s.publicBase + "/" + key
	}
	end := strings.TrimPrefix(strings.TrimPrefix(s.endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", s.bucketName, end, key)
}
