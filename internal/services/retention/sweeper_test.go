package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	result  int
	err     error
	block   chan struct{}
}

func (p *fakePurger) PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.result, p.err
}

func (p *fakePurger) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestSweeper_RunNowUsesMaxAge(t *testing.T) {
	purger := &fakePurger{result: 4}
	s := NewSweeper(purger, 24*time.Hour, arbor.NewNoOpLogger())
	now := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	purged, err := s.RunNow()
	require.NoError(t, err)
	assert.Equal(t, 4, purged)
	require.Len(t, purger.cutoffs, 1)
	assert.Equal(t, now.Add(-24*time.Hour), purger.cutoffs[0])
}

func TestSweeper_RunNowReportsErrors(t *testing.T) {
	purger := &fakePurger{err: errors.New("store down")}
	s := NewSweeper(purger, time.Hour, arbor.NewNoOpLogger())

	_, err := s.RunNow()
	assert.ErrorContains(t, err, "store down")
}

func TestSweeper_SkipsOverlappingRuns(t *testing.T) {
	purger := &fakePurger{block: make(chan struct{})}
	s := NewSweeper(purger, time.Hour, arbor.NewNoOpLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunNow()
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.running
	}, time.Second, time.Millisecond)

	purged, err := s.RunNow()
	require.NoError(t, err)
	assert.Zero(t, purged)

	close(purger.block)
	<-done
	assert.Equal(t, 1, purger.calls())
}

func TestSweeper_StartRunsOnSchedule(t *testing.T) {
	purger := &fakePurger{}
	s := NewSweeper(purger, time.Hour, arbor.NewNoOpLogger())

	require.NoError(t, s.Start("* * * * * *"))
	defer s.Stop()

	require.Eventually(t, func() bool { return purger.calls() > 0 }, 3*time.Second, 20*time.Millisecond)
}

func TestSweeper_StartRejectsBadInput(t *testing.T) {
	s := NewSweeper(&fakePurger{}, time.Hour, arbor.NewNoOpLogger())
	assert.Error(t, s.Start("not a schedule"))

	s = NewSweeper(&fakePurger{}, 0, arbor.NewNoOpLogger())
	assert.Error(t, s.Start(""))
}
