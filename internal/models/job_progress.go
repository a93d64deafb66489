// -----------------------------------------------------------------------
// Job Progress - Immutable progress snapshot for a transcoding job
// -----------------------------------------------------------------------

package models

import "time"

// JobStatus is the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending                 JobStatus = "PENDING"
	JobStatusUploading               JobStatus = "UPLOADING"
	JobStatusDownloading             JobStatus = "DOWNLOADING"
	JobStatusEncoding                JobStatus = "ENCODING"
	JobStatusUploadingToCloudStorage JobStatus = "UPLOADING_TO_CLOUD_STORAGE"
	JobStatusCompleted               JobStatus = "COMPLETED"
	JobStatusFailed                  JobStatus = "FAILED"
	JobStatusCancelled               JobStatus = "CANCELLED"
)

// ActiveStatuses lists every non-terminal status
var ActiveStatuses = []JobStatus{
	JobStatusPending,
	JobStatusUploading,
	JobStatusDownloading,
	JobStatusEncoding,
	JobStatusUploadingToCloudStorage,
}

// IsTerminal reports whether no further mutation can occur in this status
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusUploading, JobStatusDownloading, JobStatusEncoding,
		JobStatusUploadingToCloudStorage, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Phase groups statuses that share one throughput estimate and one progress weight
type Phase int

const (
	PhaseNone Phase = iota
	PhaseTransfer
	PhaseEncoding
	PhaseCloudUpload
	PhaseDone
)

// Phase returns the progress phase a status belongs to
func (s JobStatus) Phase() Phase {
	switch s {
	case JobStatusUploading, JobStatusDownloading:
		return PhaseTransfer
	case JobStatusEncoding:
		return PhaseEncoding
	case JobStatusUploadingToCloudStorage:
		return PhaseCloudUpload
	case JobStatusCompleted:
		return PhaseDone
	}
	return PhaseNone
}

// SegmentState is the upload state of one output segment
type SegmentState string

const (
	SegmentPending   SegmentState = "pending"
	SegmentUploading SegmentState = "uploading"
	SegmentCompleted SegmentState = "completed"
	SegmentFailed    SegmentState = "failed"
)

// IsTerminal reports whether the segment has reached completed or failed
func (s SegmentState) IsTerminal() bool {
	return s == SegmentCompleted || s == SegmentFailed
}

// Valid reports whether s is a known segment state
func (s SegmentState) Valid() bool {
	switch s {
	case SegmentPending, SegmentUploading, SegmentCompleted, SegmentFailed:
		return true
	}
	return false
}

// SegmentTally counts segments by state.
// Once Total is fixed: Completed+Failed+Uploading+Pending == Total.
type SegmentTally struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Uploading int `json:"uploading"`
	Pending   int `json:"pending"`
}

// Add returns the element-wise sum of two tallies
func (t SegmentTally) Add(o SegmentTally) SegmentTally {
	return SegmentTally{
		Total:     t.Total + o.Total,
		Completed: t.Completed + o.Completed,
		Failed:    t.Failed + o.Failed,
		Uploading: t.Uploading + o.Uploading,
		Pending:   t.Pending + o.Pending,
	}
}

// Finished is the number of segments that reached a terminal state
func (t SegmentTally) Finished() int {
	return t.Completed + t.Failed
}

// VariantProgress is the progress of one encoded rendition
type VariantProgress struct {
	Index            int          `json:"index"` // 1-based
	TotalVariants    int          `json:"total_variants"`
	Name             string       `json:"name"`
	Description      string       `json:"description,omitempty"`
	EncodePercentage float64      `json:"encode_percentage"`
	EncodeComplete   bool         `json:"encode_complete"`
	TotalFixed       bool         `json:"total_fixed"`
	Segments         SegmentTally `json:"segments"`
}

// JobProgress is an immutable, fully-consistent view of one job.
// Snapshots are produced only after an event has been completely applied.
type JobProgress struct {
	JobID  string    `json:"job_id"`
	Title  string    `json:"title,omitempty"`
	Status JobStatus `json:"status"`

	Variants      []VariantProgress `json:"variants"`
	TotalVariants int               `json:"total_variants"`

	// UploadGroups tally segments reported under labels that name no variant
	UploadGroups []VariantProgress `json:"upload_groups,omitempty"`

	// Sums across Variants and UploadGroups, recomputed on every snapshot
	TotalSegmentsAllVariants     int `json:"total_segments_all_variants"`
	CompletedSegmentsAllVariants int `json:"completed_segments_all_variants"`
	FailedSegmentsAllVariants    int `json:"failed_segments_all_variants"`
	UploadingSegmentsAllVariants int `json:"uploading_segments_all_variants"`
	PendingSegmentsAllVariants   int `json:"pending_segments_all_variants"`

	CurrentVariant     int    `json:"current_variant"`
	CurrentVariantName string `json:"current_variant_name,omitempty"`

	TransferPercentage float64 `json:"transfer_percentage"`
	BytesTransferred   int64   `json:"bytes_transferred"`
	BytesTotal         int64   `json:"bytes_total"`

	ProgressPercentage    float64  `json:"progress_percentage"`
	ElapsedSeconds        float64  `json:"elapsed_seconds"`
	RemainingSeconds      *float64 `json:"remaining_seconds,omitempty"`       // absent when unknown
	EstimatedTotalSeconds *float64 `json:"estimated_total_seconds,omitempty"` // absent when unknown

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	PhaseStartedAt *time.Time `json:"phase_started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	LastUpdate     time.Time  `json:"last_update"`

	// Sequence increases by one per accepted event
	Sequence uint64 `json:"sequence"`
}

// AllVariantsTally returns the all-variants sums as a tally
func (p *JobProgress) AllVariantsTally() SegmentTally {
	return SegmentTally{
		Total:     p.TotalSegmentsAllVariants,
		Completed: p.CompletedSegmentsAllVariants,
		Failed:    p.FailedSegmentsAllVariants,
		Uploading: p.UploadingSegmentsAllVariants,
		Pending:   p.PendingSegmentsAllVariants,
	}
}

// Clone returns a deep copy so the caller may mutate it freely
func (p *JobProgress) Clone() *JobProgress {
	if p == nil {
		return nil
	}
	c := *p
	c.Variants = append([]VariantProgress(nil), p.Variants...)
	if p.UploadGroups != nil {
		c.UploadGroups = append([]VariantProgress(nil), p.UploadGroups...)
	}
	c.RemainingSeconds = cloneFloat(p.RemainingSeconds)
	c.EstimatedTotalSeconds = cloneFloat(p.EstimatedTotalSeconds)
	c.StartedAt = cloneTime(p.StartedAt)
	c.PhaseStartedAt = cloneTime(p.PhaseStartedAt)
	c.CompletedAt = cloneTime(p.CompletedAt)
	c.FailedAt = cloneTime(p.FailedAt)
	c.CancelledAt = cloneTime(p.CancelledAt)
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
