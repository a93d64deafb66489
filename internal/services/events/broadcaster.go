package events

import (
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
	"github.com/ternarybob/streamtrack/internal/interfaces"
	"github.com/ternarybob/streamtrack/internal/models"
)

const defaultObserverBuffer = 16

// subscription is one observer with a bounded buffer
type subscription struct {
	id    string
	jobID string
	ch    chan interfaces.ProgressUpdate

	mu        sync.Mutex
	closed    bool
	overflows int
}

func (s *subscription) ID() string                                { return s.id }
func (s *subscription) JobID() string                             { return s.jobID }
func (s *subscription) Updates() <-chan interfaces.ProgressUpdate { return s.ch }

// deliver never blocks. When the buffer is full the queued updates are
// discarded and replaced by a single resync update carrying the full snapshot.
func (s *subscription) deliver(snapshot *models.JobProgress) (overflowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- interfaces.ProgressUpdate{Snapshot: snapshot}:
		return false
	default:
	}

drain:
	for {
		select {
		case <-s.ch:
		default:
			break drain
		}
	}

	// Only this goroutine sends under s.mu, so the drained buffer has room
	s.ch <- interfaces.ProgressUpdate{Snapshot: snapshot, Resync: true}
	s.overflows++
	return true
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Overflows returns how many resync markers were issued to this observer
func (s *subscription) Overflows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflows
}

// Broadcaster fans job snapshots out to live observers
type Broadcaster struct {
	mu         sync.RWMutex
	subs       map[string]map[string]*subscription
	bufferSize int
	closed     bool
	logger     arbor.ILogger
}

// NewBroadcaster creates a broadcaster whose observers buffer bufferSize updates
func NewBroadcaster(bufferSize int, logger arbor.ILogger) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = defaultObserverBuffer
	}
	return &Broadcaster{
		subs:       make(map[string]map[string]*subscription),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe registers an observer and pushes initial immediately.
// Subscribing to a terminal snapshot delivers it and closes the handle.
func (b *Broadcaster) Subscribe(jobID string, initial *models.JobProgress) interfaces.Subscription {
	sub := &subscription{
		id:    common.NewSubscriptionID(),
		jobID: jobID,
		ch:    make(chan interfaces.ProgressUpdate, b.bufferSize),
	}

	if initial != nil {
		sub.deliver(initial)
	}

	b.mu.Lock()
	if b.closed || (initial != nil && initial.Status.IsTerminal()) {
		b.mu.Unlock()
		sub.close()
		return sub
	}
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[string]*subscription)
	}
	b.subs[jobID][sub.id] = sub
	count := len(b.subs[jobID])
	b.mu.Unlock()

	b.logger.Debug().
		Str("job_id", jobID).
		Str("subscription_id", sub.id).
		Int("observers", count).
		Msg("Observer subscribed")

	return sub
}

// Unsubscribe removes the observer and closes its channel. Safe to call twice.
func (b *Broadcaster) Unsubscribe(handle interfaces.Subscription) {
	sub, ok := handle.(*subscription)
	if !ok || sub == nil {
		return
	}

	b.mu.Lock()
	if observers, exists := b.subs[sub.jobID]; exists {
		delete(observers, sub.id)
		if len(observers) == 0 {
			delete(b.subs, sub.jobID)
		}
	}
	b.mu.Unlock()

	sub.close()

	b.logger.Debug().
		Str("job_id", sub.jobID).
		Str("subscription_id", sub.id).
		Msg("Observer unsubscribed")
}

// Publish pushes snapshot to every observer of its job
func (b *Broadcaster) Publish(snapshot *models.JobProgress) {
	if snapshot == nil {
		return
	}
	terminal := snapshot.Status.IsTerminal()

	b.mu.Lock()
	observers := make([]*subscription, 0, len(b.subs[snapshot.JobID]))
	for _, sub := range b.subs[snapshot.JobID] {
		observers = append(observers, sub)
	}
	if terminal {
		delete(b.subs, snapshot.JobID)
	}
	b.mu.Unlock()

	for _, sub := range observers {
		if sub.deliver(snapshot) {
			b.logger.Warn().
				Err(models.ErrObserverOverflow).
				Str("job_id", snapshot.JobID).
				Str("subscription_id", sub.id).
				Msg("Observer fell behind, sent resync snapshot")
		}
		if terminal {
			sub.close()
		}
	}

	if terminal && len(observers) > 0 {
		b.logger.Debug().
			Str("job_id", snapshot.JobID).
			Str("status", string(snapshot.Status)).
			Int("observers", len(observers)).
			Msg("Terminal snapshot delivered, subscriptions closed")
	}
}

// HasObservers reports whether any observer is attached to the job
func (b *Broadcaster) HasObservers(jobID string) bool {
	return b.ObserverCount(jobID) > 0
}

// ObserverCount returns the number of observers attached to the job
func (b *Broadcaster) ObserverCount(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID])
}

// Close closes every subscription. Later subscriptions are closed on creation.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	all := b.subs
	b.subs = make(map[string]map[string]*subscription)
	b.mu.Unlock()

	count := 0
	for _, observers := range all {
		for _, sub := range observers {
			sub.close()
			count++
		}
	}

	b.logger.Info().Int("observers", count).Msg("Broadcaster closed")
}
