package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/erp/ledger/internal/domain/ledger"
)

// LocalArchiver writes snapshot documents below a directory
type LocalArchiver struct {
	dir    string
	prefix string
}

// NewLocalArchiver creates the directory if needed
func NewLocalArchiver(dir, prefix string) (*LocalArchiver, error) {
	if dir == "" {
		return nil, errors.New("storage local directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &LocalArchiver{dir: dir, prefix: prefix}, nil
}

// Archive writes the snapshot through a temporary file and a rename, so a
// partially written document is never visible under its final name
func (a *LocalArchiver) Archive(ctx context.Context, snap *ledger.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := Encode(snap)
	if err != nil {
		return "", err
	}

	target := filepath.Join(a.dir, filepath.FromSlash(ObjectKey(a.prefix, snap)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".snapshot-*")
	if err != nil {
		return "", fmt.Errorf("create temporary archive file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write archive file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close archive file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("move archive file into place: %w", err)
	}
	return "file://" + filepath.ToSlash(target), nil
}

var _ ledger.SnapshotArchiver = (*LocalArchiver)(nil)
