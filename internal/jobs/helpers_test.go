package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/streamtrack/internal/models"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory JobStore
type memStore struct {
	mu      sync.Mutex
	records map[string]*models.JobRecord
	saves   int
	fail    bool
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*models.JobRecord)}
}

func (s *memStore) SaveJob(ctx context.Context, record *models.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	s.saves++
	s.records[record.JobID] = record
	return nil
}

func (s *memStore) LoadJob(ctx context.Context, jobID string) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[jobID]
	if !ok {
		return nil, models.ErrSnapshotNotFound
	}
	c := *record
	c.Snapshot = *record.Snapshot.Clone()
	return &c, nil
}

func (s *memStore) ListActiveJobs(ctx context.Context) ([]*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.JobRecord
	for _, record := range s.records {
		if !record.Terminal() {
			c := *record
			c.Snapshot = *record.Snapshot.Clone()
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, jobID)
	return nil
}

func (s *memStore) PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, record := range s.records {
		if record.Terminal() && record.SavedAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) setFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *memStore) stored(jobID string) (*models.JobRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[jobID]
	return record, ok
}
