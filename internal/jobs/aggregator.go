// -----------------------------------------------------------------------
// Progress Aggregator - Serializes worker events into job snapshots
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/interfaces"
	"github.com/ternarybob/streamtrack/internal/jobs/state"
	"github.com/ternarybob/streamtrack/internal/models"
	"github.com/ternarybob/streamtrack/internal/services/events"
)

// ErrClosed is returned by mutating calls after Close
var ErrClosed = errors.New("aggregator closed")

const progressLogBucket = 5.0

// Option configures an Aggregator
type Option func(*Aggregator)

// WithClock injects the time source used for timestamps, timing and throttling
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithPhaseWeights sets the transfer/encoding/cloud-upload weights
func WithPhaseWeights(weights state.PhaseWeights) Option {
	return func(a *Aggregator) { a.weights = weights }
}

// WithPersistInterval sets the minimum interval between non-terminal writes per job
func WithPersistInterval(d time.Duration) Option {
	return func(a *Aggregator) { a.interval = d }
}

// WithStore enables persistence, restart resume and retirement
func WithStore(store interfaces.JobStore) Option {
	return func(a *Aggregator) { a.store = store }
}

// WithEventService publishes lifecycle notifications
func WithEventService(svc interfaces.EventService) Option {
	return func(a *Aggregator) { a.events = svc }
}

// WithBroadcaster replaces the default in-process broadcaster
func WithBroadcaster(b interfaces.SnapshotBroadcaster) Option {
	return func(a *Aggregator) { a.broadcaster = b }
}

func WithLogger(logger arbor.ILogger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// entry is the mutable state of one tracked job. Every field except current
// is guarded by mu; current is swapped atomically so reads never wait on mu.
type entry struct {
	mu sync.Mutex

	metadata models.JobMetadata
	machine  *state.Machine
	counters *state.Counters

	// base holds identity, timestamps, transfer and error fields;
	// derived fields are recomputed into each snapshot
	base models.JobProgress

	current atomic.Pointer[models.JobProgress]

	saved     bool
	persisted uint64
	logBucket int
}

// Aggregator owns the per-job table. The table lock covers insert, lookup and
// retire only; all content mutation happens under the job's own lock.
type Aggregator struct {
	mu   sync.RWMutex
	jobs map[string]*entry

	weights     state.PhaseWeights
	estimator   *state.Estimator
	interval    time.Duration
	store       interfaces.JobStore
	broadcaster interfaces.SnapshotBroadcaster
	events      interfaces.EventService
	persister   *persister
	validate    *validator.Validate
	now         func() time.Time
	logger      arbor.ILogger
	closed      atomic.Bool
}

// NewAggregator creates an aggregator and starts its persister when a store is configured
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		jobs:     make(map[string]*entry),
		weights:  state.DefaultPhaseWeights(),
		interval: time.Second,
		validate: validator.New(),
		now:      time.Now,
		logger:   arbor.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.weights.Validate(); err != nil {
		a.logger.Warn().Err(err).Msg("Invalid phase weights, using defaults")
	}
	a.estimator = state.NewEstimator(a.weights)

	if a.broadcaster == nil {
		a.broadcaster = events.NewBroadcaster(0, a.logger)
	}
	if a.store != nil {
		a.persister = newPersister(a.store, a.interval, a.now, a.logger, a.record, a.markPersisted)
		a.persister.start()
	}
	return a
}

// CreateJob starts tracking jobID at PENDING. An id is refused while it is
// tracked or its record is still in the store; once retention purges a
// terminal record the id may be created again.
func (a *Aggregator) CreateJob(ctx context.Context, jobID string, metadata models.JobMetadata) (*models.JobProgress, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id is required", models.ErrInvalidEvent)
	}
	if err := a.validate.Struct(metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", models.ErrInvalidEvent, err)
	}

	a.mu.RLock()
	_, tracked := a.jobs[jobID]
	a.mu.RUnlock()
	if tracked {
		return nil, fmt.Errorf("%w: %s", models.ErrAlreadyExists, jobID)
	}

	// Ids are never reused, including ids of retired jobs
	if a.store != nil {
		_, err := a.store.LoadJob(ctx, jobID)
		if err == nil {
			return nil, fmt.Errorf("%w: %s (persisted)", models.ErrAlreadyExists, jobID)
		}
		if !errors.Is(err, models.ErrSnapshotNotFound) {
			return nil, fmt.Errorf("failed to check job %s: %w", jobID, err)
		}
	}

	now := a.now()
	e := &entry{
		metadata: metadata,
		machine:  state.NewMachine(models.JobStatusPending),
		counters: state.NewCounters(),
		base: models.JobProgress{
			JobID:      jobID,
			Title:      metadata.Title,
			Status:     models.JobStatusPending,
			BytesTotal: metadata.SourceSizeBytes,
			CreatedAt:  now,
			LastUpdate: now,
		},
	}
	if metadata.TotalVariants > 0 {
		e.counters.SetTotalVariants(metadata.TotalVariants)
	}
	snap := a.buildSnapshot(e, now)
	e.current.Store(snap)

	a.mu.Lock()
	if _, exists := a.jobs[jobID]; exists {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", models.ErrAlreadyExists, jobID)
	}
	a.jobs[jobID] = e
	a.mu.Unlock()

	if a.persister != nil {
		a.persister.MarkDirty(jobID, false)
	}
	a.publishLifecycle(ctx, interfaces.EventJobCreated, snap, "", "")

	a.logger.Info().
		Str("job_id", jobID).
		Str("title", metadata.Title).
		Int("total_variants", metadata.TotalVariants).
		Msg("Job created")

	return snap.Clone(), nil
}

// Ingest applies one worker event and returns the resulting snapshot.
// Late or duplicate events return the current snapshot unchanged.
func (a *Aggregator) Ingest(ctx context.Context, jobID string, event models.ProgressEvent) (*models.JobProgress, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}
	if err := a.checkEvent(event); err != nil {
		a.logger.Warn().Err(err).Str("job_id", jobID).Str("event", string(event.Type)).Msg("Rejected invalid event")
		return nil, err
	}

	e, stored, err := a.resolve(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		a.logger.Debug().
			Str("job_id", jobID).
			Str("event", string(event.Type)).
			Str("status", string(stored.Status)).
			Msg("Event for retired terminal job ignored")
		return stored, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.machine.Status()
	if from.IsTerminal() {
		a.logger.Debug().
			Str("job_id", jobID).
			Str("event", string(event.Type)).
			Str("status", string(from)).
			Msg("Event for terminal job ignored")
		return e.current.Load().Clone(), nil
	}

	tr, err := e.machine.Evaluate(event.Type)
	if err != nil {
		var stErr *models.StateTransitionError
		if errors.As(err, &stErr) {
			stErr.JobID = jobID
		}
		a.logger.Warn().Err(err).Str("job_id", jobID).Msg("Rejected illegal transition")
		return nil, err
	}

	changed, err := a.applyEvent(e, event)
	if err != nil {
		a.logger.Warn().
			Err(err).
			Str("job_id", jobID).
			Str("event", string(event.Type)).
			Msg("Rejected event")
		return nil, err
	}
	if !changed && !tr.Changed() {
		a.logger.Debug().
			Str("job_id", jobID).
			Str("event", string(event.Type)).
			Msg("Duplicate event ignored")
		return e.current.Load().Clone(), nil
	}

	e.machine.Commit(tr)
	now := a.now()
	a.stamp(e, tr, event, now)

	snap := a.buildSnapshot(e, now)
	e.current.Store(snap)

	// Publish under the job lock so observers see snapshots in acceptance order
	a.broadcaster.Publish(snap)
	if a.persister != nil {
		a.persister.MarkDirty(jobID, snap.Status.IsTerminal())
	}

	if tr.Changed() {
		a.publishLifecycle(ctx, lifecycleEventFor(tr.To), snap, string(tr.From), event.Reason)
		a.logger.Info().
			Str("job_id", jobID).
			Str("previous_status", string(tr.From)).
			Str("status", string(tr.To)).
			Str("progress", fmt.Sprintf("%.1f%%", snap.ProgressPercentage)).
			Msg("Job status changed")
	} else if bucket := int(snap.ProgressPercentage / progressLogBucket); bucket > e.logBucket {
		a.logger.Debug().
			Str("job_id", jobID).
			Str("status", string(snap.Status)).
			Str("progress", fmt.Sprintf("%.1f%%", snap.ProgressPercentage)).
			Int("current_variant", snap.CurrentVariant).
			Msg("Job progress")
	}
	e.logBucket = int(snap.ProgressPercentage / progressLogBucket)

	return snap.Clone(), nil
}

// Cancel forces CANCELLED. Already terminal jobs return their snapshot unchanged.
func (a *Aggregator) Cancel(ctx context.Context, jobID, reason string) (*models.JobProgress, error) {
	return a.Ingest(ctx, jobID, models.CancelRequested(reason))
}

// Snapshot returns the latest snapshot of a tracked job without waiting on ingest
func (a *Aggregator) Snapshot(jobID string) (*models.JobProgress, bool) {
	a.mu.RLock()
	e, ok := a.jobs[jobID]
	a.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.current.Load().Clone(), true
}

// Get returns the tracked snapshot, falling back to the store for retired jobs
func (a *Aggregator) Get(ctx context.Context, jobID string) (*models.JobProgress, error) {
	if snap, ok := a.Snapshot(jobID); ok {
		return snap, nil
	}
	if a.store == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownJob, jobID)
	}
	record, err := a.store.LoadJob(ctx, jobID)
	if errors.Is(err, models.ErrSnapshotNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownJob, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	snap := record.Snapshot
	return &snap, nil
}

// ListActive returns snapshots of every tracked non-terminal job, oldest first
func (a *Aggregator) ListActive() []*models.JobProgress {
	a.mu.RLock()
	out := make([]*models.JobProgress, 0, len(a.jobs))
	for _, e := range a.jobs {
		snap := e.current.Load()
		if !snap.Status.IsTerminal() {
			out = append(out, snap.Clone())
		}
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Subscribe attaches an observer. The current snapshot is pushed first,
// followed by one push per accepted event.
func (a *Aggregator) Subscribe(ctx context.Context, jobID string) (interfaces.Subscription, error) {
	e, stored, err := a.resolve(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return a.broadcaster.Subscribe(jobID, stored), nil
	}

	// Hold the job lock so no publish slips between the initial push and registration
	e.mu.Lock()
	sub := a.broadcaster.Subscribe(jobID, e.current.Load())
	e.mu.Unlock()
	return sub, nil
}

// Unsubscribe detaches an observer; a terminal job may retire afterwards
func (a *Aggregator) Unsubscribe(sub interfaces.Subscription) {
	if sub == nil {
		return
	}
	a.broadcaster.Unsubscribe(sub)
	a.maybeRetire(sub.JobID())
}

// Restore loads every non-terminal record from the store into memory
func (a *Aggregator) Restore(ctx context.Context) (int, error) {
	if a.store == nil {
		return 0, nil
	}
	records, err := a.store.ListActiveJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active jobs: %w", err)
	}
	for _, record := range records {
		a.adopt(record)
	}
	a.logger.Info().Int("jobs", len(records)).Msg("Restored active jobs from store")
	return len(records), nil
}

// Flush writes every pending record now, ignoring throttling
func (a *Aggregator) Flush(ctx context.Context) error {
	if a.persister == nil {
		return nil
	}
	return a.persister.Flush(ctx)
}

// Close rejects further mutation, flushes pending writes and closes every subscription.
// The store itself is closed by its owner.
func (a *Aggregator) Close(ctx context.Context) error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if a.persister != nil {
		err = a.persister.Close(ctx)
	}
	a.broadcaster.Close()
	a.logger.Info().Int("tracked_jobs", a.TrackedCount()).Msg("Aggregator closed")
	return err
}

// TrackedCount reports how many jobs are held in memory, terminal ones included
func (a *Aggregator) TrackedCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.jobs)
}

func (a *Aggregator) checkEvent(event models.ProgressEvent) error {
	if err := a.validate.Struct(event); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidEvent, err)
	}
	return event.CheckFields()
}

// resolve finds the entry for jobID. A job missing from memory is resumed when
// the store holds it active; a stored terminal job is returned as a snapshot.
func (a *Aggregator) resolve(ctx context.Context, jobID string) (*entry, *models.JobProgress, error) {
	a.mu.RLock()
	e, ok := a.jobs[jobID]
	a.mu.RUnlock()
	if ok {
		return e, nil, nil
	}
	if a.store == nil {
		return nil, nil, fmt.Errorf("%w: %s", models.ErrUnknownJob, jobID)
	}

	record, err := a.store.LoadJob(ctx, jobID)
	if errors.Is(err, models.ErrSnapshotNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", models.ErrUnknownJob, jobID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if record.Terminal() {
		snap := record.Snapshot
		return nil, &snap, nil
	}

	a.logger.Info().Str("job_id", jobID).Str("status", string(record.Snapshot.Status)).Msg("Resumed job from store")
	return a.adopt(record), nil, nil
}

// adopt inserts an entry rebuilt from a persisted record, or returns the one already tracked
func (a *Aggregator) adopt(record *models.JobRecord) *entry {
	snap := record.Snapshot.Clone()
	e := &entry{
		metadata:  record.Metadata,
		machine:   state.NewMachine(snap.Status),
		counters:  state.RestoreCounters(snap, record.Segments, record.GroupSegments),
		base:      *snap.Clone(),
		saved:     true,
		persisted: snap.Sequence,
		logBucket: int(snap.ProgressPercentage / progressLogBucket),
	}
	e.current.Store(snap)

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.jobs[record.JobID]; ok {
		return existing
	}
	a.jobs[record.JobID] = e
	return e
}

// applyEvent mutates counters and transfer fields. On error nothing changed.
func (a *Aggregator) applyEvent(e *entry, event models.ProgressEvent) (bool, error) {
	switch event.Type {
	case models.EventTransferProgress:
		changed := false
		if event.Percent > e.base.TransferPercentage {
			e.base.TransferPercentage = event.Percent
			changed = true
		}
		if event.BytesTransferred > e.base.BytesTransferred {
			e.base.BytesTransferred = event.BytesTransferred
			changed = true
		}
		if event.BytesTotal > 0 && event.BytesTotal != e.base.BytesTotal {
			e.base.BytesTotal = event.BytesTotal
			changed = true
		}
		return changed, nil

	case models.EventEncodingStarted:
		limit := e.counters.TotalVariants()
		if limit == 0 {
			limit = event.TotalVariants
		}
		if limit > 0 && event.VariantIndex > limit {
			return false, fmt.Errorf("%w: variant %d outside total variants %d", models.ErrInvalidEvent, event.VariantIndex, limit)
		}
		outcome, err := e.counters.SetTotalVariants(event.TotalVariants)
		if err != nil {
			return false, err
		}
		before := e.counters.Count()
		v := e.counters.StartEncoding(event.VariantIndex, event.VariantName)
		changed := outcome == state.Applied || e.counters.Count() != before
		return a.setCurrent(e, v) || changed, nil

	case models.EventEncodingProgress, models.EventEncodingVariantComplete:
		if limit := e.counters.TotalVariants(); limit > 0 && event.VariantIndex > limit {
			return false, fmt.Errorf("%w: variant %d outside total variants %d", models.ErrInvalidEvent, event.VariantIndex, limit)
		}
		delta := state.Delta{Kind: state.VariantEncodeProgress, Percent: event.Percent}
		if event.Type == models.EventEncodingVariantComplete {
			delta = state.Delta{Kind: state.VariantEncodeComplete}
		}
		before := e.counters.Count()
		v := e.counters.ByIndex(event.VariantIndex, "")
		outcome, err := e.counters.Apply(v, delta)
		if err != nil {
			return false, err
		}
		changed := outcome == state.Applied || e.counters.Count() != before
		return a.setCurrent(e, v) || changed, nil

	case models.EventSegmentTotalSet:
		before := e.counters.Count()
		v := e.counters.ByLabel(event.VariantLabel)
		outcome, err := e.counters.Apply(v, state.Delta{Kind: state.VariantTotalSet, Total: event.Count})
		if err != nil {
			return false, err
		}
		changed := outcome == state.Applied || e.counters.Count() != before
		return a.setCurrent(e, v) || changed, nil

	case models.EventSegmentStateChanged:
		delta, err := state.SegmentDelta(event.SegmentState, event.SegmentIndex)
		if err != nil {
			return false, err
		}
		before := e.counters.Count()
		v := e.counters.ByLabel(event.VariantLabel)
		outcome, err := e.counters.Apply(v, delta)
		if err != nil {
			return false, err
		}
		if outcome == state.Duplicate && e.counters.Count() == before {
			return false, nil
		}
		a.setCurrent(e, v)
		return true, nil
	}

	// Pure lifecycle events change nothing but status
	return false, nil
}

// setCurrent points the snapshot at v. Upload groups are never current.
func (a *Aggregator) setCurrent(e *entry, v *state.Variant) bool {
	if v.Index() == 0 {
		return false
	}
	if e.base.CurrentVariant == v.Index() && e.base.CurrentVariantName == v.Name() {
		return false
	}
	e.base.CurrentVariant = v.Index()
	e.base.CurrentVariantName = v.Name()
	return true
}

// stamp records timestamps and error fields. Each timestamp is set once.
func (a *Aggregator) stamp(e *entry, tr state.Transition, event models.ProgressEvent, now time.Time) {
	b := &e.base
	b.Status = tr.To
	b.LastUpdate = now
	b.Sequence++

	if !tr.Changed() {
		return
	}

	to := tr.To
	if b.StartedAt == nil && to != models.JobStatusPending && !to.IsTerminal() {
		b.StartedAt = timePtr(now)
	}
	if tr.From.Phase() != to.Phase() && !to.IsTerminal() {
		b.PhaseStartedAt = timePtr(now)
	}

	switch to {
	case models.JobStatusCompleted:
		if b.CompletedAt == nil {
			b.CompletedAt = timePtr(now)
		}
	case models.JobStatusFailed:
		if b.FailedAt == nil {
			b.FailedAt = timePtr(now)
		}
		b.ErrorMessage = event.Reason
		b.ErrorDetails = event.Details
	case models.JobStatusCancelled:
		if b.CancelledAt == nil {
			b.CancelledAt = timePtr(now)
		}
		b.CancelReason = event.Reason
	}
}

// buildSnapshot derives an immutable snapshot from the entry
func (a *Aggregator) buildSnapshot(e *entry, now time.Time) *models.JobProgress {
	snap := e.base.Clone()
	snap.Status = e.machine.Status()
	snap.TotalVariants = e.counters.TotalVariants()
	snap.Variants = e.counters.Variants()
	snap.UploadGroups = e.counters.Groups()

	totals := e.counters.Totals()
	snap.TotalSegmentsAllVariants = totals.Total
	snap.CompletedSegmentsAllVariants = totals.Completed
	snap.FailedSegmentsAllVariants = totals.Failed
	snap.UploadingSegmentsAllVariants = totals.Uploading
	snap.PendingSegmentsAllVariants = totals.Pending

	var previous float64
	if prev := e.current.Load(); prev != nil {
		previous = prev.ProgressPercentage
	}

	est := a.estimator.Estimate(state.EstimateInput{
		Now:            now,
		Status:         snap.Status,
		StartedAt:      snap.StartedAt,
		PhaseStartedAt: snap.PhaseStartedAt,
		Work:           a.phaseWork(e, snap.Status, totals),
		Previous:       previous,
	})
	snap.ElapsedSeconds = est.ElapsedSeconds
	snap.RemainingSeconds = est.RemainingSeconds
	snap.EstimatedTotalSeconds = est.EstimatedTotalSeconds
	snap.ProgressPercentage = est.ProgressPercentage
	return snap
}

// phaseWork reports completed and total work for the current phase only
func (a *Aggregator) phaseWork(e *entry, status models.JobStatus, totals models.SegmentTally) state.PhaseWork {
	switch status.Phase() {
	case models.PhaseTransfer:
		return state.PhaseWork{Completed: e.base.TransferPercentage, Total: 100}
	case models.PhaseEncoding:
		if ratio, ok := e.counters.EncodeRatio(); ok {
			return state.PhaseWork{Completed: ratio, Total: 1}
		}
	case models.PhaseCloudUpload:
		// All-variants tallies are authoritative once any variant total is fixed
		if e.counters.AnyTotalFixed() {
			return state.PhaseWork{Completed: float64(totals.Finished()), Total: float64(totals.Total)}
		}
	}
	return state.PhaseWork{}
}

// record builds the persisted form of a tracked job
func (a *Aggregator) record(jobID string) (*models.JobRecord, bool) {
	a.mu.RLock()
	e, ok := a.jobs[jobID]
	a.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return &models.JobRecord{
		JobID:         jobID,
		Snapshot:      *e.current.Load().Clone(),
		Metadata:      e.metadata,
		Segments:      e.counters.Ledger(),
		GroupSegments: e.counters.GroupLedger(),
		SavedAt:       a.now(),
	}, true
}

func (a *Aggregator) markPersisted(jobID string, sequence uint64) {
	a.mu.RLock()
	e, ok := a.jobs[jobID]
	a.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.saved = true
	if sequence > e.persisted {
		e.persisted = sequence
	}
	e.mu.Unlock()

	a.maybeRetire(jobID)
}

// maybeRetire evicts a job that is terminal, durably persisted and unobserved
func (a *Aggregator) maybeRetire(jobID string) {
	if a.store == nil || a.broadcaster.HasObservers(jobID) {
		return
	}

	a.mu.Lock()
	e, ok := a.jobs[jobID]
	if !ok {
		a.mu.Unlock()
		return
	}
	e.mu.Lock()
	snap := e.current.Load()
	retire := snap.Status.IsTerminal() && e.saved && e.persisted >= snap.Sequence
	e.mu.Unlock()
	if retire {
		delete(a.jobs, jobID)
	}
	a.mu.Unlock()

	if !retire {
		return
	}
	a.persister.Forget(jobID)
	a.publishLifecycle(context.Background(), interfaces.EventJobRetired, snap, "", "")
	a.logger.Debug().Str("job_id", jobID).Str("status", string(snap.Status)).Msg("Job retired")
}

func (a *Aggregator) publishLifecycle(ctx context.Context, eventType interfaces.EventType, snap *models.JobProgress, previous, reason string) {
	if a.events == nil {
		return
	}
	payload := map[string]interface{}{
		"job_id":   snap.JobID,
		"status":   string(snap.Status),
		"sequence": snap.Sequence,
	}
	if previous != "" {
		payload["previous_status"] = previous
	}
	if reason != "" {
		payload["reason"] = reason
	}
	// Handlers outlive the request that triggered them
	if err := a.events.Publish(context.WithoutCancel(ctx), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		a.logger.Warn().Err(err).Str("job_id", snap.JobID).Str("event_type", string(eventType)).Msg("Failed to publish lifecycle event")
	}
}

func lifecycleEventFor(status models.JobStatus) interfaces.EventType {
	switch status {
	case models.JobStatusCompleted:
		return interfaces.EventJobCompleted
	case models.JobStatusFailed:
		return interfaces.EventJobFailed
	case models.JobStatusCancelled:
		return interfaces.EventJobCancelled
	}
	return interfaces.EventJobStatusChanged
}

func timePtr(t time.Time) *time.Time {
	return &t
}
