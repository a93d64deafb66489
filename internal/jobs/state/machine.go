// -----------------------------------------------------------------------
// Job State Machine - Legal lifecycle transitions
// -----------------------------------------------------------------------

package state

import (
	"github.com/ternarybob/streamtrack/internal/models"
)

// Transition is the result of evaluating one event against the current status
type Transition struct {
	From models.JobStatus
	To   models.JobStatus
}

// Changed reports whether the status moved
func (t Transition) Changed() bool {
	return t.From != t.To
}

// transitions maps status -> event -> next status. Events absent from a
// status' row are illegal there. Failure and cancellation are handled
// separately since they are legal from every non-terminal status.
var transitions = map[models.JobStatus]map[models.EventType]models.JobStatus{
	models.JobStatusPending: {
		models.EventUploadStarted:   models.JobStatusUploading,
		models.EventDownloadStarted: models.JobStatusDownloading,
		models.EventEncodingStarted: models.JobStatusEncoding,
	},
	models.JobStatusUploading: {
		models.EventUploadStarted:    models.JobStatusUploading,
		models.EventTransferProgress: models.JobStatusUploading,
		models.EventEncodingStarted:  models.JobStatusEncoding,
	},
	models.JobStatusDownloading: {
		models.EventDownloadStarted:  models.JobStatusDownloading,
		models.EventTransferProgress: models.JobStatusDownloading,
		models.EventEncodingStarted:  models.JobStatusEncoding,
	},
	models.JobStatusEncoding: {
		models.EventEncodingStarted:         models.JobStatusEncoding,
		models.EventEncodingProgress:        models.JobStatusEncoding,
		models.EventEncodingVariantComplete: models.JobStatusEncoding,
		models.EventSegmentTotalSet:         models.JobStatusEncoding,
		models.EventSegmentStateChanged:     models.JobStatusEncoding,
		models.EventCloudUploadStarted:      models.JobStatusUploadingToCloudStorage,
	},
	// Encoding reports for later variants may still arrive while earlier
	// variants upload; they are applied without moving the status back.
	models.JobStatusUploadingToCloudStorage: {
		models.EventEncodingStarted:         models.JobStatusUploadingToCloudStorage,
		models.EventEncodingProgress:        models.JobStatusUploadingToCloudStorage,
		models.EventEncodingVariantComplete: models.JobStatusUploadingToCloudStorage,
		models.EventCloudUploadStarted:      models.JobStatusUploadingToCloudStorage,
		models.EventSegmentTotalSet:         models.JobStatusUploadingToCloudStorage,
		models.EventSegmentStateChanged:     models.JobStatusUploadingToCloudStorage,
		models.EventAllVariantsComplete:     models.JobStatusCompleted,
	},
}

// Machine tracks the lifecycle status of one job
type Machine struct {
	status models.JobStatus
}

// NewMachine starts a machine at the given status
func NewMachine(status models.JobStatus) *Machine {
	if !status.Valid() {
		status = models.JobStatusPending
	}
	return &Machine{status: status}
}

// Status returns the current status
func (m *Machine) Status() models.JobStatus {
	return m.status
}

// Evaluate decides the transition for an event without committing it.
// Terminal statuses accept every event as a no-op; the caller detects that
// case via Status().IsTerminal() before evaluating.
func (m *Machine) Evaluate(event models.EventType) (Transition, error) {
	from := m.status
	if from.IsTerminal() {
		return Transition{From: from, To: from}, nil
	}

	switch event {
	case models.EventEncodingFailed, models.EventUploadFailed, models.EventWorkerFailed:
		return Transition{From: from, To: models.JobStatusFailed}, nil
	case models.EventCancelRequested:
		return Transition{From: from, To: models.JobStatusCancelled}, nil
	}

	if to, ok := transitions[from][event]; ok {
		return Transition{From: from, To: to}, nil
	}
	return Transition{}, &models.StateTransitionError{From: from, Event: event}
}

// Commit moves the machine to the transition target
func (m *Machine) Commit(t Transition) {
	m.status = t.To
}

// Legal reports whether event has an edge from status
func Legal(status models.JobStatus, event models.EventType) bool {
	_, err := NewMachine(status).Evaluate(event)
	return err == nil
}
