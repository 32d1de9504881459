package storage

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/hugh/chimeo/internal/apperr"
)

type GCS struct {
	client *storage.Client
	bucket string
	base   string
}

func NewGCS(ctx context.Context, bucket, base string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	if base == "" {
		base = "https://storage.googleapis.com/" + bucket
	}
	return &GCS{client: client, bucket: bucket, base: base}, nil
}

func (g *GCS) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=3600"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", apperr.External("gcs upload", err)
	}
	if err := w.Close(); err != nil {
		return "", apperr.External("gcs upload", err)
	}
	return publicURL(g.base, key), nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return apperr.External("gcs delete", err)
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
