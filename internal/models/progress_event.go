// -----------------------------------------------------------------------
// Progress Event - Worker-reported events consumed by the aggregator
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"
)

// EventType identifies a worker or lifecycle event
type EventType string

const (
	// Transfer collaborator (source upload/download)
	EventUploadStarted    EventType = "upload_started"
	EventDownloadStarted  EventType = "download_started"
	EventTransferProgress EventType = "transfer_progress"

	// Transcoder collaborator
	EventEncodingStarted         EventType = "encoding_started"
	EventEncodingProgress        EventType = "encoding_progress"
	EventEncodingVariantComplete EventType = "encoding_variant_complete"
	EventEncodingFailed          EventType = "encoding_failed"

	// Uploader collaborator
	EventCloudUploadStarted  EventType = "cloud_upload_started"
	EventSegmentTotalSet     EventType = "segment_total_set"
	EventSegmentStateChanged EventType = "segment_state_changed"
	EventUploadFailed        EventType = "upload_failed"

	// Lifecycle
	EventAllVariantsComplete EventType = "all_variants_complete"
	EventWorkerFailed        EventType = "worker_failed"
	EventCancelRequested     EventType = "cancel_requested"
)

// ProgressEvent is one event submitted by a worker for a job.
// Only the fields relevant to Type are read.
type ProgressEvent struct {
	Type EventType `json:"type" validate:"required"`

	VariantIndex  int    `json:"variant_index,omitempty" validate:"gte=0"`
	VariantName   string `json:"variant_name,omitempty" validate:"max=128"`
	VariantLabel  string `json:"variant_label,omitempty" validate:"max=128"`
	TotalVariants int    `json:"total_variants,omitempty" validate:"gte=0"`

	Percent float64 `json:"percent,omitempty" validate:"gte=0,lte=100"`

	Count        int          `json:"count,omitempty" validate:"gte=0"`
	SegmentIndex int          `json:"segment_index,omitempty" validate:"gte=0"`
	SegmentState SegmentState `json:"segment_state,omitempty"`

	BytesTransferred int64 `json:"bytes_transferred,omitempty" validate:"gte=0"`
	BytesTotal       int64 `json:"bytes_total,omitempty" validate:"gte=0"`

	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`

	WorkerID string `json:"worker_id,omitempty"`
}

// CheckFields verifies the per-type required fields that struct tags cannot express
func (e ProgressEvent) CheckFields() error {
	switch e.Type {
	case EventUploadStarted, EventDownloadStarted, EventCloudUploadStarted,
		EventAllVariantsComplete, EventCancelRequested, EventTransferProgress:
		return nil
	case EventEncodingStarted:
		if e.VariantIndex < 1 {
			return fmt.Errorf("%w: %s requires variant_index >= 1", ErrInvalidEvent, e.Type)
		}
		if e.TotalVariants > 0 && e.VariantIndex > e.TotalVariants {
			return fmt.Errorf("%w: variant_index %d exceeds total_variants %d", ErrInvalidEvent, e.VariantIndex, e.TotalVariants)
		}
	case EventEncodingProgress, EventEncodingVariantComplete:
		if e.VariantIndex < 1 {
			return fmt.Errorf("%w: %s requires variant_index >= 1", ErrInvalidEvent, e.Type)
		}
	case EventSegmentTotalSet:
		if strings.TrimSpace(e.VariantLabel) == "" {
			return fmt.Errorf("%w: %s requires variant_label", ErrInvalidEvent, e.Type)
		}
	case EventSegmentStateChanged:
		if strings.TrimSpace(e.VariantLabel) == "" {
			return fmt.Errorf("%w: %s requires variant_label", ErrInvalidEvent, e.Type)
		}
		if !e.SegmentState.Valid() {
			return fmt.Errorf("%w: unknown segment_state %q", ErrInvalidEvent, e.SegmentState)
		}
	case EventEncodingFailed, EventUploadFailed, EventWorkerFailed:
		if strings.TrimSpace(e.Reason) == "" {
			return fmt.Errorf("%w: %s requires reason", ErrInvalidEvent, e.Type)
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

// IsFailure reports whether the event reports a terminal worker failure
func (e ProgressEvent) IsFailure() bool {
	switch e.Type {
	case EventEncodingFailed, EventUploadFailed, EventWorkerFailed:
		return true
	}
	return false
}

func UploadStarted() ProgressEvent {
	return ProgressEvent{Type: EventUploadStarted}
}

func DownloadStarted() ProgressEvent {
	return ProgressEvent{Type: EventDownloadStarted}
}

// TransferProgress reports source transfer progress; bytes may be zero when unknown
func TransferProgress(percent float64, transferred, total int64) ProgressEvent {
	return ProgressEvent{Type: EventTransferProgress, Percent: percent, BytesTransferred: transferred, BytesTotal: total}
}

func EncodingStarted(variantIndex int, variantName string, totalVariants int) ProgressEvent {
	return ProgressEvent{Type: EventEncodingStarted, VariantIndex: variantIndex, VariantName: variantName, TotalVariants: totalVariants}
}

func EncodingProgress(variantIndex int, percent float64) ProgressEvent {
	return ProgressEvent{Type: EventEncodingProgress, VariantIndex: variantIndex, Percent: percent}
}

func EncodingVariantComplete(variantIndex int) ProgressEvent {
	return ProgressEvent{Type: EventEncodingVariantComplete, VariantIndex: variantIndex}
}

func EncodingFailed(reason string) ProgressEvent {
	return ProgressEvent{Type: EventEncodingFailed, Reason: reason}
}

func CloudUploadStarted() ProgressEvent {
	return ProgressEvent{Type: EventCloudUploadStarted}
}

func SegmentTotalSet(variantLabel string, count int) ProgressEvent {
	return ProgressEvent{Type: EventSegmentTotalSet, VariantLabel: variantLabel, Count: count}
}

func SegmentStateChanged(variantLabel string, segmentIndex int, state SegmentState) ProgressEvent {
	return ProgressEvent{Type: EventSegmentStateChanged, VariantLabel: variantLabel, SegmentIndex: segmentIndex, SegmentState: state}
}

func UploadFailed(reason, details string) ProgressEvent {
	return ProgressEvent{Type: EventUploadFailed, Reason: reason, Details: details}
}

func AllVariantsComplete() ProgressEvent {
	return ProgressEvent{Type: EventAllVariantsComplete}
}

func WorkerFailed(reason, details string) ProgressEvent {
	return ProgressEvent{Type: EventWorkerFailed, Reason: reason, Details: details}
}

func CancelRequested(reason string) ProgressEvent {
	return ProgressEvent{Type: EventCancelRequested, Reason: reason}
}
