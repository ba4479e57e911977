//go:build gcp

package storage

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/config"
)

// GCSArchiver archives snapshots to Google Cloud Storage using
// application default credentials
type GCSArchiver struct {
	client *storage.Client
	bucket string
	prefix string
}

func newGCSArchiver(ctx context.Context, cfg *config.StorageConfig) (ledger.SnapshotArchiver, error) {
	a, err := NewGCSArchiver(ctx, cfg.Bucket, cfg.Prefix)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// NewGCSArchiver creates a GCS-backed archiver
func NewGCSArchiver(ctx context.Context, bucket, prefix string) (*GCSArchiver, error) {
	if bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: bucket, prefix: prefix}, nil
}

// Archive uploads the snapshot document unless the key already exists
func (a *GCSArchiver) Archive(ctx context.Context, snap *ledger.Snapshot) (string, error) {
	key := ObjectKey(a.prefix, snap)
	location := fmt.Sprintf("gs://%s/%s", a.bucket, key)

	obj := a.client.Bucket(a.bucket).Object(key)
	if _, err := obj.Attrs(ctx); err == nil {
		return location, nil
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("gcs attrs error: %w", err)
	}

	data, err := Encode(snap)
	if err != nil {
		return "", err
	}

	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentTypeJSON
	w.Metadata = map[string]string{"checksum": snap.Checksum, "run-id": snap.RunID}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return location, nil
}

// Close closes the GCS client
func (a *GCSArchiver) Close() error {
	return a.client.Close()
}
