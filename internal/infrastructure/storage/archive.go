// Package storage archives published ledger snapshots to object storage.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Archive backends
const (
	BackendNone  = "none"
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
)

const contentTypeJSON = "application/json"

// ObjectKey returns the archive key of a snapshot under prefix. Keys sort
// by version and carry the checksum, so identical content is recognizable.
func ObjectKey(prefix string, snap *ledger.Snapshot) string {
	checksum := snap.Checksum
	if len(checksum) > 12 {
		checksum = checksum[:12]
	}
	return path.Join(prefix, "snapshots", fmt.Sprintf("v%08d-%s.json", snap.Version, checksum))
}

// Encode returns the archived document of a snapshot
func Encode(snap *ledger.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %d: %w", snap.Version, err)
	}
	return data, nil
}

// NewArchiver builds the archiver for the configured backend. It returns
// nil for the none backend.
func NewArchiver(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger) (ledger.SnapshotArchiver, error) {
	switch cfg.Backend {
	case BackendNone, "":
		return nil, nil
	case BackendLocal:
		local, err := NewLocalArchiver(cfg.LocalDir, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		return local, nil
	case BackendS3:
		s3Archiver, err := NewS3Archiver(ctx, cfg, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if err := s3Archiver.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s3Archiver, nil
	case BackendGCS:
		return newGCSArchiver(ctx, cfg)
	}
	return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
}
