package models

import (
	"errors"
	"fmt"
)

// Error taxonomy. All are recoverable at the call site.
var (
	ErrUnknownJob            = errors.New("unknown job")
	ErrAlreadyExists         = errors.New("job already exists")
	ErrConfigurationConflict = errors.New("configuration conflict")
	ErrStateTransition       = errors.New("illegal state transition")
	ErrObserverOverflow      = errors.New("observer buffer overflow")
	ErrInvalidEvent          = errors.New("invalid event")
	ErrSnapshotNotFound      = errors.New("snapshot not found")
)

// StateTransitionError is returned when an event has no legal edge from the current status
type StateTransitionError struct {
	JobID string
	From  JobStatus
	Event EventType
}

func (e *StateTransitionError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("illegal state transition: %s while %s", e.Event, e.From)
	}
	return fmt.Sprintf("job %s: illegal state transition: %s while %s", e.JobID, e.Event, e.From)
}

// Is matches ErrStateTransition
func (e *StateTransitionError) Is(target error) bool {
	return target == ErrStateTransition
}

// ConfigurationConflictError is returned when a fixed total would be changed
type ConfigurationConflictError struct {
	Field     string
	Variant   string
	Current   int
	Requested int
}

func (e *ConfigurationConflictError) Error() string {
	return fmt.Sprintf("configuration conflict: %s for variant %q already fixed at %d, got %d",
		e.Field, e.Variant, e.Current, e.Requested)
}

// Is matches ErrConfigurationConflict
func (e *ConfigurationConflictError) Is(target error) bool {
	return target == ErrConfigurationConflict
}
