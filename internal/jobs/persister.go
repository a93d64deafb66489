// -----------------------------------------------------------------------
// Persister - Throttled background write-through of job records
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
	"github.com/ternarybob/streamtrack/internal/interfaces"
	"github.com/ternarybob/streamtrack/internal/models"
	"golang.org/x/time/rate"
)

const (
	persistTimeout     = 10 * time.Second
	minPersistInterval = 10 * time.Millisecond
)

// persister owns the only goroutine that writes to the job store. Ingest marks a
// job dirty and returns; the writer pulls the latest record at write time, so
// intermediate snapshots of a busy job collapse into one write.
type persister struct {
	store    interfaces.JobStore
	load     func(jobID string) (*models.JobRecord, bool)
	saved    func(jobID string, sequence uint64)
	interval time.Duration
	now      func() time.Time
	logger   arbor.ILogger

	mu       sync.Mutex
	dirty    map[string]bool // job id -> urgent (terminal, bypasses the limiter)
	limiters map[string]*rate.Limiter

	wake    chan struct{}
	flushCh chan chan struct{}
	stop    chan struct{}
	done    chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
}

func newPersister(store interfaces.JobStore, interval time.Duration, now func() time.Time, logger arbor.ILogger,
	load func(jobID string) (*models.JobRecord, bool), saved func(jobID string, sequence uint64)) *persister {
	if interval < minPersistInterval {
		interval = minPersistInterval
	}
	return &persister{
		store:    store,
		load:     load,
		saved:    saved,
		interval: interval,
		now:      now,
		logger:   logger,
		dirty:    make(map[string]bool),
		limiters: make(map[string]*rate.Limiter),
		wake:     make(chan struct{}, 1),
		flushCh:  make(chan chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// start launches the writer goroutine
func (p *persister) start() {
	p.startOnce.Do(func() {
		p.mu.Lock()
		p.started = true
		p.mu.Unlock()
		common.SafeGo(p.logger, "job-persister", p.run)
	})
}

func (p *persister) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
			p.drain(false)
		case <-ticker.C:
			p.drain(false)
		case reply := <-p.flushCh:
			p.drain(true)
			close(reply)
		}
	}
}

// MarkDirty schedules a write for jobID. Never blocks.
func (p *persister) MarkDirty(jobID string, urgent bool) {
	p.mu.Lock()
	p.dirty[jobID] = p.dirty[jobID] || urgent
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Forget drops throttling state for a retired job
func (p *persister) Forget(jobID string) {
	p.mu.Lock()
	delete(p.limiters, jobID)
	p.mu.Unlock()
}

// Pending returns the number of jobs waiting to be written
func (p *persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dirty)
}

func (p *persister) limiter(jobID string) *rate.Limiter {
	l, ok := p.limiters[jobID]
	if !ok {
		l = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[jobID] = l
	}
	return l
}

// drain writes every dirty job that is due. force ignores the limiter.
func (p *persister) drain(force bool) (failed int) {
	now := p.now()

	p.mu.Lock()
	due := make([]string, 0, len(p.dirty))
	for jobID, urgent := range p.dirty {
		if !force && !urgent && !p.limiter(jobID).AllowN(now, 1) {
			continue
		}
		delete(p.dirty, jobID)
		due = append(due, jobID)
	}
	p.mu.Unlock()

	for _, jobID := range due {
		if !p.write(jobID) {
			failed++
		}
	}
	return failed
}

func (p *persister) write(jobID string) bool {
	record, ok := p.load(jobID)
	if !ok {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := p.store.SaveJob(ctx, record); err != nil {
		p.logger.Error().
			Err(err).
			Str("job_id", jobID).
			Str("status", string(record.Snapshot.Status)).
			Msg("Failed to persist job record, will retry")

		// Re-queue without waking; the ticker retries. Terminal writes are never dropped.
		p.mu.Lock()
		p.dirty[jobID] = p.dirty[jobID] || record.Terminal()
		p.mu.Unlock()
		return false
	}

	if record.Terminal() {
		p.Forget(jobID)
	}
	p.saved(jobID, record.Snapshot.Sequence)
	return true
}

// Flush writes every dirty job regardless of throttling
func (p *persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if !started {
		if failed := p.drain(true); failed > 0 {
			return fmt.Errorf("failed to persist %d job records", failed)
		}
		return nil
	}

	reply := make(chan struct{})
	select {
	case p.flushCh <- reply:
	case <-p.done:
		return fmt.Errorf("persister stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
	case <-ctx.Done():
		return ctx.Err()
	}

	if pending := p.Pending(); pending > 0 {
		return fmt.Errorf("failed to persist %d job records", pending)
	}
	return nil
}

// Close flushes pending writes and stops the writer
func (p *persister) Close(ctx context.Context) error {
	err := p.Flush(ctx)

	p.stopOnce.Do(func() {
		close(p.stop)
	})

	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		select {
		case <-p.done:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}
	}
	return err
}
