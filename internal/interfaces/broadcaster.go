package interfaces

import "github.com/ternarybob/streamtrack/internal/models"

// ProgressUpdate is one push to an observer. Resync marks a gap: intermediate
// updates were discarded and Snapshot is the full current state.
type ProgressUpdate struct {
	Snapshot *models.JobProgress
	Resync   bool
}

// Subscription is a live observer handle for one job
type Subscription interface {
	ID() string
	JobID() string
	// Updates is closed after the terminal snapshot or on unsubscribe
	Updates() <-chan ProgressUpdate
}

// SnapshotBroadcaster fans snapshots out to observers. Every method must return
// without waiting on observers.
type SnapshotBroadcaster interface {
	// Subscribe registers an observer and pushes initial to it immediately
	Subscribe(jobID string, initial *models.JobProgress) Subscription
	Unsubscribe(sub Subscription)
	// Publish pushes a snapshot to every observer of the job; a terminal
	// snapshot closes all of them after delivery
	Publish(snapshot *models.JobProgress)
	HasObservers(jobID string) bool
	ObserverCount(jobID string) int
	Close()
}
