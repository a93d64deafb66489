package models

import "time"

// JobMetadata is supplied when a job is created and never changes afterwards
type JobMetadata struct {
	Title           string            `json:"title,omitempty" validate:"max=256"`
	SourceURL       string            `json:"source_url,omitempty" validate:"omitempty,url"`
	SourceSizeBytes int64             `json:"source_size_bytes,omitempty" validate:"gte=0"`
	TotalVariants   int               `json:"total_variants,omitempty" validate:"gte=0,lte=64"`
	Owner           string            `json:"owner,omitempty" validate:"max=128"`
	Labels          map[string]string `json:"labels,omitempty"`
}

// JobRecord is the persisted form of a job: the last snapshot plus the segment
// ledger needed to keep segment events idempotent across a restart.
type JobRecord struct {
	JobID    string      `json:"job_id"`
	Snapshot JobProgress `json:"snapshot"`
	Metadata JobMetadata `json:"metadata"`

	// Segments maps variant index to segment index to state
	Segments map[int]map[int]SegmentState `json:"segments,omitempty"`

	// GroupSegments maps upload group label to segment index to state
	GroupSegments map[string]map[int]SegmentState `json:"group_segments,omitempty"`

	SavedAt time.Time `json:"saved_at"`
}

// Terminal reports whether the stored snapshot is in a terminal status
func (r *JobRecord) Terminal() bool {
	return r.Snapshot.Status.IsTerminal()
}
