package ledgerapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Mock stores
// =============================================================================

type MockRawStore struct {
	mock.Mock
}

func (m *MockRawStore) Append(ctx context.Context, batch *ledger.RawBatch) (*ledger.BatchInfo, error) {
	args := m.Called(ctx, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.BatchInfo), args.Error(1)
}

func (m *MockRawStore) FindByFingerprint(ctx context.Context, fingerprint string) (*ledger.BatchInfo, error) {
	args := m.Called(ctx, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.BatchInfo), args.Error(1)
}

func (m *MockRawStore) LoadAll(ctx context.Context) (*ledger.RawSet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.RawSet), args.Error(1)
}

func (m *MockRawStore) ListBatches(ctx context.Context, filter ledger.BatchFilter) ([]ledger.BatchInfo, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]ledger.BatchInfo), args.Get(1).(int64), args.Error(2)
}

// memRawStore keeps batches in memory and, like the database, refuses a
// second batch with a stored fingerprint
type memRawStore struct {
	mu      sync.Mutex
	batches []*ledger.RawBatch
}

func (s *memRawStore) Append(_ context.Context, batch *ledger.RawBatch) (*ledger.BatchInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.batches {
		if b.Info.Fingerprint == batch.Info.Fingerprint {
			return nil, ledger.ErrDuplicateBatch
		}
	}
	batch.Info.Seq = int64(len(s.batches) + 1)
	batch.Info.ID = fmt.Sprintf("batch-%d", batch.Info.Seq)
	batch.Info.RowCount = batch.Len()
	s.batches = append(s.batches, batch)
	info := batch.Info
	return &info, nil
}

func (s *memRawStore) FindByFingerprint(_ context.Context, fingerprint string) (*ledger.BatchInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.batches {
		if b.Info.Fingerprint == fingerprint {
			info := b.Info
			return &info, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *memRawStore) LoadAll(context.Context) (*ledger.RawSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := &ledger.RawSet{}
	for _, b := range s.batches {
		set.Orders = append(set.Orders, b.Orders...)
		set.Invoices = append(set.Invoices, b.Invoices...)
		set.Payments = append(set.Payments, b.Payments...)
		set.Corporates = append(set.Corporates, b.Corporates...)
	}
	return set, nil
}

func (s *memRawStore) ListBatches(context.Context, ledger.BatchFilter) ([]ledger.BatchInfo, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.BatchInfo, len(s.batches))
	for i, b := range s.batches {
		out[i] = b.Info
	}
	return out, int64(len(out)), nil
}

type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) Publish(ctx context.Context, snap *ledger.Snapshot) (int64, error) {
	args := m.Called(ctx, snap)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSnapshotStore) Current(ctx context.Context) (*ledger.SnapshotHeader, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.SnapshotHeader), args.Error(1)
}

func (m *MockSnapshotStore) Header(ctx context.Context, version int64) (*ledger.SnapshotHeader, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.SnapshotHeader), args.Error(1)
}

func (m *MockSnapshotStore) Rows(ctx context.Context, version int64, q ledger.RowQuery) ([]ledger.LedgerRow, error) {
	args := m.Called(ctx, version, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.LedgerRow), args.Error(1)
}

func (m *MockSnapshotStore) Row(ctx context.Context, version int64, sequenceNo string) (*ledger.LedgerRow, error) {
	args := m.Called(ctx, version, sequenceNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.LedgerRow), args.Error(1)
}

func (m *MockSnapshotStore) Exceptions(ctx context.Context, version int64, q ledger.ExceptionQuery) ([]ledger.ExceptionRecord, error) {
	args := m.Called(ctx, version, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.ExceptionRecord), args.Error(1)
}

func (m *MockSnapshotStore) Versions(ctx context.Context, limit int) ([]ledger.SnapshotHeader, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.SnapshotHeader), args.Error(1)
}

type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) Archive(ctx context.Context, snap *ledger.Snapshot) (string, error) {
	args := m.Called(ctx, snap)
	return args.String(0), args.Error(1)
}

// =============================================================================
// Fakes with state
// =============================================================================

// fakeRunRepository keeps saved runs by id, recording every status it saw
type fakeRunRepository struct {
	mu       sync.Mutex
	runs     map[string]ledger.RunRecord
	order    []string
	statuses []ledger.RunStatus
	saveErr  error
}

func newFakeRunRepository() *fakeRunRepository {
	return &fakeRunRepository{runs: make(map[string]ledger.RunRecord)}
}

func (r *fakeRunRepository) Save(_ context.Context, run *ledger.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if _, ok := r.runs[run.ID]; !ok {
		r.order = append(r.order, run.ID)
	}
	r.runs[run.ID] = *run
	r.statuses = append(r.statuses, run.Status)
	return nil
}

func (r *fakeRunRepository) LastSuccessful(context.Context) (*ledger.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		run := r.runs[r.order[i]]
		if run.Status == ledger.RunStatusSucceeded {
			return &run, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeRunRepository) List(_ context.Context, limit int) ([]ledger.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.RunRecord
	for i := len(r.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, r.runs[r.order[i]])
	}
	return out, nil
}

// fakeRunLock is a non-blocking mutex that counts releases
type fakeRunLock struct {
	mu       sync.Mutex
	held     bool
	releases int
}

func (l *fakeRunLock) TryAcquire(context.Context) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, ledger.ErrRunInProgress
	}
	l.held = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.releases++
		return nil
	}, nil
}

// fakeIdempotencyStore is a map of keys; TTLs are recorded, not enforced
type fakeIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{keys: make(map[string]time.Duration)}
}

func (s *fakeIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = ttl
	return true, nil
}

func (s *fakeIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *fakeIdempotencyStore) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *fakeIdempotencyStore) Close() error { return nil }

// fakeMetrics counts calls of the metrics sinks
type fakeMetrics struct {
	mu         sync.Mutex
	ingested   []ledger.BatchInfo
	duplicates []ledger.RecordKind
	runs       []ledger.RunStatus
	published  []int64
}

func (m *fakeMetrics) RecordIngest(_ context.Context, info *ledger.BatchInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingested = append(m.ingested, *info)
}

func (m *fakeMetrics) RecordDuplicateIngest(_ context.Context, kind ledger.RecordKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duplicates = append(m.duplicates, kind)
}

func (m *fakeMetrics) RecordRun(_ context.Context, _ string, status ledger.RunStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, status)
}

func (m *fakeMetrics) RecordPublished(_ context.Context, snap *ledger.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, snap.Version)
}
