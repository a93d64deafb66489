package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
	"github.com/ternarybob/streamtrack/internal/models"
)

var errUnavailable = errors.New("connection refused")

// flakyStore fails the first failures calls of every operation
type flakyStore struct {
	mu       sync.Mutex
	failures int
	calls    int
	missing  bool
	records  map[string]*models.JobRecord
}

func newFlakyStore(failures int) *flakyStore {
	return &flakyStore{failures: failures, records: make(map[string]*models.JobRecord)}
}

func (s *flakyStore) attempt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errUnavailable
	}
	return nil
}

func (s *flakyStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *flakyStore) SaveJob(ctx context.Context, record *models.JobRecord) error {
	if err := s.attempt(); err != nil {
		return err
	}
	s.mu.Lock()
	s.records[record.JobID] = record
	s.mu.Unlock()
	return nil
}

func (s *flakyStore) LoadJob(ctx context.Context, jobID string) (*models.JobRecord, error) {
	if err := s.attempt(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[jobID]
	if !ok {
		return nil, models.ErrSnapshotNotFound
	}
	return record, nil
}

func (s *flakyStore) ListActiveJobs(ctx context.Context) ([]*models.JobRecord, error) {
	if err := s.attempt(); err != nil {
		return nil, err
	}
	return []*models.JobRecord{}, nil
}

func (s *flakyStore) DeleteJob(ctx context.Context, jobID string) error {
	return s.attempt()
}

func (s *flakyStore) PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int, error) {
	if err := s.attempt(); err != nil {
		return 0, err
	}
	return 3, nil
}

func (s *flakyStore) Close() error { return nil }

func newTestResilient(inner *flakyStore, attempts int, maxFailures uint32) *ResilientStore {
	s := NewResilientStore(inner, "test", RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, maxFailures, time.Minute, arbor.NewNoOpLogger())
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return s
}

func TestResilientStore_RetriesTransientFailures(t *testing.T) {
	inner := newFlakyStore(2)
	s := newTestResilient(inner, 3, 10)

	require.NoError(t, s.SaveJob(context.Background(), &models.JobRecord{JobID: "job-1"}))
	assert.Equal(t, 3, inner.callCount())
	assert.Equal(t, gobreaker.StateClosed, s.State())
}

func TestResilientStore_GivesUpAfterMaxAttempts(t *testing.T) {
	inner := newFlakyStore(100)
	s := newTestResilient(inner, 3, 10)

	err := s.SaveJob(context.Background(), &models.JobRecord{JobID: "job-1"})
	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, 3, inner.callCount())
}

func TestResilientStore_NotFoundIsNotRetried(t *testing.T) {
	inner := newFlakyStore(0)
	s := newTestResilient(inner, 3, 1)

	for i := 0; i < 5; i++ {
		_, err := s.LoadJob(context.Background(), "missing")
		assert.ErrorIs(t, err, models.ErrSnapshotNotFound)
	}
	assert.Equal(t, 5, inner.callCount())
	assert.Equal(t, gobreaker.StateClosed, s.State(), "missing records do not trip the breaker")
}

func TestResilientStore_BreakerOpensAndFailsFast(t *testing.T) {
	inner := newFlakyStore(100)
	s := newTestResilient(inner, 1, 2)
	ctx := context.Background()

	assert.Error(t, s.DeleteJob(ctx, "a"))
	assert.Error(t, s.DeleteJob(ctx, "b"))
	assert.Equal(t, gobreaker.StateOpen, s.State())

	err := s.DeleteJob(ctx, "c")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.callCount(), "an open breaker does not reach the store")
}

func TestResilientStore_PassesResultsThrough(t *testing.T) {
	inner := newFlakyStore(0)
	s := newTestResilient(inner, 2, 5)
	ctx := context.Background()

	require.NoError(t, s.SaveJob(ctx, &models.JobRecord{JobID: "job-1"}))
	loaded, err := s.LoadJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", loaded.JobID)

	active, err := s.ListActiveJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	purged, err := s.PurgeTerminalJobs(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, purged)
}

func TestResilientStore_StopsOnCancelledContext(t *testing.T) {
	inner := newFlakyStore(100)
	s := newTestResilient(inner, 5, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.SaveJob(ctx, &models.JobRecord{JobID: "job-1"}))
	assert.Equal(t, 1, inner.callCount())
}

func TestRetryPolicyFromConfig(t *testing.T) {
	policy := RetryPolicyFromConfig(common.RetryConfig{MaxAttempts: 4, InitialBackoff: "20ms", MaxBackoff: "bogus"})
	assert.Equal(t, 4, policy.MaxAttempts)
	assert.Equal(t, 20*time.Millisecond, policy.InitialBackoff)
	assert.Equal(t, time.Second, policy.MaxBackoff)
}

func TestNewJobStore_UnsupportedType(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Storage.Type = "sqlite"
	_, err := NewJobStore(arbor.NewNoOpLogger(), config)
	assert.Error(t, err)
}

func TestNewJobStore_Badger(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Storage.Badger.Path = t.TempDir()
	store, err := NewJobStore(arbor.NewNoOpLogger(), config)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.LoadJob(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrSnapshotNotFound)
}
