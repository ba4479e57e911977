//go:build !gcp

package storage

import (
	"context"
	"errors"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/config"
)

func newGCSArchiver(context.Context, *config.StorageConfig) (ledger.SnapshotArchiver, error) {
	return nil, errors.New("gcs storage backend requires a build with -tags gcp")
}
