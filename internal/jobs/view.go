// -----------------------------------------------------------------------
// Job View - Client-facing presentation of a progress snapshot
// -----------------------------------------------------------------------

package jobs

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ternarybob/streamtrack/internal/models"
)

// StatusLabel is the client-facing status vocabulary
type StatusLabel string

const (
	LabelWaiting     StatusLabel = "waiting"
	LabelUploading   StatusLabel = "uploading"
	LabelDownloading StatusLabel = "downloading"
	LabelProcessing  StatusLabel = "processing"
	LabelCompleted   StatusLabel = "completed"
	LabelFailed      StatusLabel = "failed"
	LabelCancelled   StatusLabel = "cancelled"
)

// VariantView is the presentation of one variant
type VariantView struct {
	Index            int                 `json:"index"`
	Name             string              `json:"name"`
	Description      string              `json:"description,omitempty"`
	EncodePercentage float64             `json:"encode_percentage"`
	UploadPercentage *float64            `json:"upload_percentage,omitempty"`
	Segments         models.SegmentTally `json:"segments"`
}

// JobView is the externally visible shape of a job
type JobView struct {
	JobID          string           `json:"job_id"`
	Title          string           `json:"title,omitempty"`
	Status         StatusLabel      `json:"status"`
	InternalStatus models.JobStatus `json:"internal_status"`
	Message        string           `json:"message"`

	Progress     float64 `json:"progress"`
	ProgressText string  `json:"progress_text"`

	CurrentVariant     int           `json:"current_variant"`
	CurrentVariantName string        `json:"current_variant_name,omitempty"`
	TotalVariants      int           `json:"total_variants"`
	Variants           []VariantView `json:"variants"`

	Segments models.SegmentTally `json:"segments"`

	Transferred string `json:"transferred,omitempty"`
	SourceSize  string `json:"source_size,omitempty"`

	ElapsedSeconds   float64  `json:"elapsed_seconds"`
	RemainingSeconds *float64 `json:"remaining_seconds,omitempty"`
	Elapsed          string   `json:"elapsed"`
	Remaining        string   `json:"remaining"`
	EstimatedTotal   string   `json:"estimated_total"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Sequence    uint64     `json:"sequence"`
}

// Label maps an internal status to the client vocabulary
func Label(status models.JobStatus) StatusLabel {
	switch status {
	case models.JobStatusUploading:
		return LabelUploading
	case models.JobStatusDownloading:
		return LabelDownloading
	case models.JobStatusEncoding, models.JobStatusUploadingToCloudStorage:
		return LabelProcessing
	case models.JobStatusCompleted:
		return LabelCompleted
	case models.JobStatusFailed:
		return LabelFailed
	case models.JobStatusCancelled:
		return LabelCancelled
	}
	return LabelWaiting
}

func buildVariantView(variant models.VariantProgress) VariantView {
	vv := VariantView{
		Index:            variant.Index,
		Name:             variant.Name,
		Description:      variant.Description,
		EncodePercentage: variant.EncodePercentage,
		Segments:         variant.Segments,
	}
	if variant.TotalFixed && variant.Segments.Total > 0 {
		pct := roundTenth(float64(variant.Segments.Finished()) * 100 / float64(variant.Segments.Total))
		vv.UploadPercentage = &pct
	}
	return vv
}

// BuildView maps a snapshot to its presentation. Pure: now only refreshes the
// elapsed time of active jobs.
func BuildView(p *models.JobProgress, now time.Time) JobView {
	v := JobView{
		JobID:              p.JobID,
		Title:              p.Title,
		Status:             Label(p.Status),
		InternalStatus:     p.Status,
		Progress:           roundTenth(p.ProgressPercentage),
		ProgressText:       fmt.Sprintf("%.1f%%", p.ProgressPercentage),
		CurrentVariant:     p.CurrentVariant,
		CurrentVariantName: p.CurrentVariantName,
		TotalVariants:      p.TotalVariants,
		Variants:           make([]VariantView, 0, len(p.Variants)+len(p.UploadGroups)),
		Segments:           p.AllVariantsTally(),
		ElapsedSeconds:     p.ElapsedSeconds,
		RemainingSeconds:   p.RemainingSeconds,
		ErrorMessage:       p.ErrorMessage,
		ErrorDetails:       p.ErrorDetails,
		CreatedAt:          p.CreatedAt,
		StartedAt:          p.StartedAt,
		CompletedAt:        p.CompletedAt,
		FailedAt:           p.FailedAt,
		CancelledAt:        p.CancelledAt,
		UpdatedAt:          p.LastUpdate,
		Sequence:           p.Sequence,
	}

	if !p.Status.IsTerminal() && p.StartedAt != nil && now.After(*p.StartedAt) {
		v.ElapsedSeconds = now.Sub(*p.StartedAt).Seconds()
	}

	for _, variant := range p.Variants {
		v.Variants = append(v.Variants, buildVariantView(variant))
	}
	for _, group := range p.UploadGroups {
		v.Variants = append(v.Variants, buildVariantView(group))
	}

	if p.BytesTransferred > 0 {
		v.Transferred = humanize.Bytes(uint64(p.BytesTransferred))
	}
	if p.BytesTotal > 0 {
		v.SourceSize = humanize.Bytes(uint64(p.BytesTotal))
	}

	v.Elapsed = formatDuration(v.ElapsedSeconds)
	v.Remaining = formatOptional(p.RemainingSeconds)
	v.EstimatedTotal = formatOptional(p.EstimatedTotalSeconds)
	v.Message = statusMessage(p, v)
	return v
}

func statusMessage(p *models.JobProgress, v JobView) string {
	switch p.Status {
	case models.JobStatusPending:
		return "Waiting to start"
	case models.JobStatusUploading, models.JobStatusDownloading:
		verb := "Uploading"
		if p.Status == models.JobStatusDownloading {
			verb = "Downloading"
		}
		if v.Transferred != "" && v.SourceSize != "" {
			return fmt.Sprintf("%s source: %s of %s", verb, v.Transferred, v.SourceSize)
		}
		return fmt.Sprintf("%s source: %.0f%%", verb, p.TransferPercentage)
	case models.JobStatusEncoding:
		name := ""
		if p.CurrentVariantName != "" {
			name = " (" + p.CurrentVariantName + ")"
		}
		if p.TotalVariants > 0 {
			return fmt.Sprintf("Encoding variant %d of %d%s", p.CurrentVariant, p.TotalVariants, name)
		}
		return fmt.Sprintf("Encoding variant %d%s", p.CurrentVariant, name)
	case models.JobStatusUploadingToCloudStorage:
		if p.TotalSegmentsAllVariants > 0 {
			return fmt.Sprintf("Uploading segments: %d of %d", p.CompletedSegmentsAllVariants+p.FailedSegmentsAllVariants, p.TotalSegmentsAllVariants)
		}
		return "Uploading segments"
	case models.JobStatusCompleted:
		return "Completed in " + v.Elapsed
	case models.JobStatusFailed:
		if p.ErrorMessage != "" {
			return "Failed: " + p.ErrorMessage
		}
		return "Failed"
	case models.JobStatusCancelled:
		if p.CancelReason != "" {
			return "Cancelled: " + p.CancelReason
		}
		return "Cancelled"
	}
	return string(p.Status)
}

func formatOptional(seconds *float64) string {
	if seconds == nil {
		return "unknown"
	}
	return formatDuration(*seconds)
}

// formatDuration renders seconds as e.g. "1h2m3s"; zero renders as "0s"
func formatDuration(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "0s"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	secs := d / time.Second

	parts := make([]string, 0, 3)
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if secs > 0 || (hours == 0 && minutes == 0) {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, "")
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
