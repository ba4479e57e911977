package ledger

import (
	"context"
	"time"
)

// BatchInfo describes one appended raw batch
type BatchInfo struct {
	ID          string     `json:"id"`
	Kind        RecordKind `json:"kind"`
	Seq         int64      `json:"seq"`
	IngestedAt  time.Time  `json:"ingested_at"`
	Source      string     `json:"source"`
	Fingerprint string     `json:"fingerprint"`
	RowCount    int        `json:"row_count"`
	ValidRows   int        `json:"valid_rows"`
	Coerced     int        `json:"coerced_fields"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RawBatch is a batch ready to append. Exactly one record slice matching
// Info.Kind is populated.
type RawBatch struct {
	Info       BatchInfo
	Orders     []OrderRecord
	Invoices   []InvoiceRecord
	Payments   []PaymentRecord
	Corporates []CorporateRecord
}

// Len returns the number of records in the batch
func (b *RawBatch) Len() int {
	return len(b.Orders) + len(b.Invoices) + len(b.Payments) + len(b.Corporates)
}

// BatchFilter filters raw batch listings
type BatchFilter struct {
	Kind   RecordKind
	Limit  int
	Offset int
	// SortBy and SortOrder are validated by the store; unknown values fall
	// back to arrival order, newest first
	SortBy    string
	SortOrder string
}

// RawStore is the append-only raw record store partitioned by kind and batch
type RawStore interface {
	// Append writes a batch and assigns its arrival sequence. Prior batches
	// are never rewritten. A fingerprint already stored yields ErrDuplicateBatch.
	Append(ctx context.Context, batch *RawBatch) (*BatchInfo, error)
	// FindByFingerprint returns the batch with the given content fingerprint
	// or shared.ErrNotFound
	FindByFingerprint(ctx context.Context, fingerprint string) (*BatchInfo, error)
	// LoadAll reads the union of all batches of every kind
	LoadAll(ctx context.Context) (*RawSet, error)
	// ListBatches lists batch metadata, newest first
	ListBatches(ctx context.Context, filter BatchFilter) ([]BatchInfo, int64, error)
}

// SnapshotStore persists versioned snapshots and the current pointer
type SnapshotStore interface {
	// Publish writes snap as a new version and swaps the current pointer to
	// it in one transaction. It returns the assigned version.
	Publish(ctx context.Context, snap *Snapshot) (int64, error)
	// Current returns the header of the current snapshot or ErrNoSnapshot
	Current(ctx context.Context) (*SnapshotHeader, error)
	// Header returns the header of a specific version
	Header(ctx context.Context, version int64) (*SnapshotHeader, error)
	// Rows returns rows of version in export order
	Rows(ctx context.Context, version int64, q RowQuery) ([]LedgerRow, error)
	// Row returns one row of version by sequence number
	Row(ctx context.Context, version int64, sequenceNo string) (*LedgerRow, error)
	// Exceptions returns exceptions of version in export order
	Exceptions(ctx context.Context, version int64, q ExceptionQuery) ([]ExceptionRecord, error)
	// Versions lists snapshot headers, newest first
	Versions(ctx context.Context, limit int) ([]SnapshotHeader, error)
}

// RunStatus is the outcome of a reconciliation run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
)

// RunRecord is the history entry of one run
type RunRecord struct {
	ID              string     `json:"id"`
	Trigger         string     `json:"trigger"`
	Status          RunStatus  `json:"status"`
	AsOf            time.Time  `json:"as_of"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	SnapshotVersion *int64     `json:"snapshot_version,omitempty"`
	Checksum        string     `json:"checksum,omitempty"`
	Warnings        Warnings   `json:"warnings"`
	Error           string     `json:"error,omitempty"`
}

// RunRepository records run history
type RunRepository interface {
	Save(ctx context.Context, run *RunRecord) error
	// LastSuccessful returns the latest succeeded run or shared.ErrNotFound
	LastSuccessful(ctx context.Context) (*RunRecord, error)
	List(ctx context.Context, limit int) ([]RunRecord, error)
}

// RunLock serializes reconciliation runs
type RunLock interface {
	// TryAcquire returns ErrRunInProgress when another run holds the lock
	TryAcquire(ctx context.Context) (release func(context.Context) error, err error)
}

// SnapshotArchiver copies a published snapshot to external storage
type SnapshotArchiver interface {
	Archive(ctx context.Context, snap *Snapshot) (location string, err error)
}
