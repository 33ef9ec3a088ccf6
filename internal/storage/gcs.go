package storage

import (
	"context"
	"fmt"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/utils"
)

type gcsStorage struct {
	log       *logger.Logger
	client    *gcs.Client
	bucket    string
	cdnDomain string
}

// NewGCSStorage builds the production blob store client once at process
// start; credentials come from the ambient GOOGLE_APPLICATION_CREDENTIALS.
func NewGCSStorage(ctx context.Context, log *logger.Logger) (Storage, error) {
	bucket := utils.GetEnv("GCS_BUCKET_NAME", "", log)
	if bucket == "" {
		return nil, fmt.Errorf("missing env var GCS_BUCKET_NAME")
	}
	cdnDomain := utils.GetEnv("GCS_CDN_DOMAIN", "", log)

	client, err := gcs.NewClient(ctx, option.WithScopes(gcs.ScopeReadWrite))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &gcsStorage{
		log:       log.With("service", "GCSStorage"),
		client:    client,
		bucket:    bucket,
		cdnDomain: cdnDomain,
	}, nil
}

func (s *gcsStorage) PutBytes(ctx context.Context, data []byte, objectName, contentType string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", "", apperr.Storagef(err, "failed to write object %q", objectName)
	}
	if err := w.Close(); err != nil {
		return "", "", apperr.Storagef(err, "failed to close writer for %q", objectName)
	}

	storagePath := fmt.Sprintf("gs://%s/%s", s.bucket, objectName)
	publicURL := fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, objectName)
	if s.cdnDomain != "" {
		publicURL = fmt.Sprintf("https://%s/%s", s.cdnDomain, objectName)
	}
	return storagePath, publicURL, nil
}
