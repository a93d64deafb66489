package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/models"
)

// recordSource hands the persister a record per job with a controllable status
type recordSource struct {
	mu      sync.Mutex
	status  map[string]models.JobStatus
	seq     map[string]uint64
	savedAt map[string]uint64
}

func newRecordSource() *recordSource {
	return &recordSource{
		status:  make(map[string]models.JobStatus),
		seq:     make(map[string]uint64),
		savedAt: make(map[string]uint64),
	}
}

func (s *recordSource) set(jobID string, status models.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[jobID] = status
	s.seq[jobID]++
}

func (s *recordSource) load(jobID string) (*models.JobRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.status[jobID]
	if !ok {
		return nil, false
	}
	return &models.JobRecord{
		JobID:    jobID,
		Snapshot: models.JobProgress{JobID: jobID, Status: status, Sequence: s.seq[jobID]},
	}, true
}

func (s *recordSource) saved(jobID string, sequence uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedAt[jobID] = sequence
}

func newTestPersister(store *memStore, clock *fakeClock, source *recordSource) *persister {
	return newPersister(store, time.Second, clock.Now, arbor.NewNoOpLogger(), source.load, source.saved)
}

func TestPersister_ThrottlesNonTerminalWrites(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock()
	source := newRecordSource()
	p := newTestPersister(store, clock, source)

	source.set("job-1", models.JobStatusEncoding)
	for i := 0; i < 5; i++ {
		p.MarkDirty("job-1", false)
	}
	assert.Equal(t, 0, p.drain(false))
	assert.Equal(t, 1, store.saveCount(), "repeated marks collapse into one write")

	source.set("job-1", models.JobStatusEncoding)
	p.MarkDirty("job-1", false)
	p.drain(false)
	assert.Equal(t, 1, store.saveCount(), "second write inside the interval is deferred")
	assert.Equal(t, 1, p.Pending())

	clock.Advance(time.Second)
	p.drain(false)
	assert.Equal(t, 2, store.saveCount())
	assert.Equal(t, 0, p.Pending())

	record, ok := store.stored("job-1")
	require.True(t, ok)
	assert.Equal(t, uint64(2), record.Snapshot.Sequence, "the latest record is written")
}

func TestPersister_TerminalWritesBypassThrottle(t *testing.T) {
	store := newMemStore()
	source := newRecordSource()
	p := newTestPersister(store, newFakeClock(), source)

	source.set("job-1", models.JobStatusEncoding)
	p.MarkDirty("job-1", false)
	p.drain(false)

	source.set("job-1", models.JobStatusCompleted)
	p.MarkDirty("job-1", true)
	p.drain(false)

	assert.Equal(t, 2, store.saveCount())
	record, _ := store.stored("job-1")
	assert.Equal(t, models.JobStatusCompleted, record.Snapshot.Status)
	assert.Equal(t, uint64(2), source.savedAt["job-1"])
}

func TestPersister_FailedWritesAreRetried(t *testing.T) {
	store := newMemStore()
	store.setFail(true)
	source := newRecordSource()
	p := newTestPersister(store, newFakeClock(), source)

	source.set("job-1", models.JobStatusFailed)
	p.MarkDirty("job-1", true)
	assert.Equal(t, 1, p.drain(false))
	assert.Equal(t, 1, p.Pending(), "a failed terminal write stays queued")
	assert.Error(t, p.Flush(context.Background()))

	store.setFail(false)
	require.NoError(t, p.Flush(context.Background()))
	assert.Equal(t, 0, p.Pending())
	assert.Equal(t, 1, store.saveCount())
}

func TestPersister_SkipsUnknownJobs(t *testing.T) {
	store := newMemStore()
	p := newTestPersister(store, newFakeClock(), newRecordSource())

	p.MarkDirty("gone", true)
	assert.Equal(t, 0, p.drain(false))
	assert.Equal(t, 0, p.Pending())
	assert.Equal(t, 0, store.saveCount())
}

func TestPersister_CloseFlushesPendingWrites(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock()
	source := newRecordSource()
	p := newTestPersister(store, clock, source)
	p.start()

	source.set("job-1", models.JobStatusEncoding)
	p.MarkDirty("job-1", false)
	require.Eventually(t, func() bool { return store.saveCount() == 1 }, time.Second, 5*time.Millisecond)

	// Throttled by the frozen clock until Close forces it out
	source.set("job-1", models.JobStatusEncoding)
	p.MarkDirty("job-1", false)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
	assert.Equal(t, 2, store.saveCount())

	// A second close reports the stopped writer
	assert.Error(t, p.Close(ctx))
}
