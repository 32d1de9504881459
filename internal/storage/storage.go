// Package storage uploads organization logos and alert images to object storage.
package storage

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/apperr"
	"github.com/hugh/chimeo/pkg/config"
)

const MaxImageBytes = 5 << 20

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store persists objects and returns their public URL.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "gcs":
		return NewGCS(ctx, cfg.Bucket, cfg.PublicURL)
	case "s3":
		return NewS3(ctx, S3Options{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			PublicURL:       cfg.PublicURL,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
	case "memory", "":
		return NewMemory(cfg.PublicURL), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// CheckImage sniffs data and returns its content type and file extension.
func CheckImage(data []byte) (contentType, ext string, err error) {
	if len(data) == 0 {
		return "", "", apperr.Validation("image is empty")
	}
	if len(data) > MaxImageBytes {
		return "", "", apperr.Validation("image exceeds %d bytes", MaxImageBytes)
	}
	contentType = http.DetectContentType(data)
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return "", "", apperr.Validation("unsupported image type %s", contentType)
	}
	return contentType, ext, nil
}

func LogoKey(orgID, ext string) string {
	return path.Join("organizations", orgID, "logo"+ext)
}

func AlertImageKey(orgID, ext string) string {
	return path.Join("organizations", orgID, "alerts", uuid.NewString()+ext)
}

// KeyFromURL recovers the object key from a URL produced by publicURL.
func KeyFromURL(base, url string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
