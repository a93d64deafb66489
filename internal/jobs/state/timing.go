// -----------------------------------------------------------------------
// Timing Estimator - Elapsed, remaining and blended progress percentage
// -----------------------------------------------------------------------

package state

import (
	"fmt"
	"math"
	"time"

	"github.com/ternarybob/streamtrack/internal/models"
)

// PhaseWeights assigns each phase its share of the overall percentage
type PhaseWeights struct {
	Transfer    float64
	Encoding    float64
	CloudUpload float64
}

// DefaultPhaseWeights returns the 10/70/20 split
func DefaultPhaseWeights() PhaseWeights {
	return PhaseWeights{Transfer: 10, Encoding: 70, CloudUpload: 20}
}

// Validate requires non-negative weights that sum to 100
func (w PhaseWeights) Validate() error {
	if w.Transfer < 0 || w.Encoding < 0 || w.CloudUpload < 0 {
		return fmt.Errorf("phase weights must be non-negative")
	}
	if sum := w.Transfer + w.Encoding + w.CloudUpload; math.Abs(sum-100) > 0.001 {
		return fmt.Errorf("phase weights must sum to 100, got %.3f", sum)
	}
	return nil
}

// PhaseWork is the amount of work done in the current phase, in the phase's own units
// (percent points for transfer, variant-percent for encoding, segments for cloud upload)
type PhaseWork struct {
	Completed float64
	Total     float64
}

// Ratio returns Completed/Total clamped to [0,1]; false when Total is unknown
func (w PhaseWork) Ratio() (float64, bool) {
	if w.Total <= 0 {
		return 0, false
	}
	r := w.Completed / w.Total
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	return r, true
}

// EstimateInput carries everything the estimator reads
type EstimateInput struct {
	Now            time.Time
	Status         models.JobStatus
	StartedAt      *time.Time
	PhaseStartedAt *time.Time
	Work           PhaseWork
	// Previous is the last reported percentage; overall progress never moves below it
	Previous float64
}

// Estimate is the derived timing and percentage for a snapshot
type Estimate struct {
	ElapsedSeconds        float64
	RemainingSeconds      *float64
	EstimatedTotalSeconds *float64
	ProgressPercentage    float64
}

// Estimator derives timing from counters and timestamps
type Estimator struct {
	weights PhaseWeights
}

// NewEstimator creates an estimator; invalid weights fall back to the defaults
func NewEstimator(weights PhaseWeights) *Estimator {
	if weights.Validate() != nil {
		weights = DefaultPhaseWeights()
	}
	return &Estimator{weights: weights}
}

// Weights returns the weights in use
func (e *Estimator) Weights() PhaseWeights {
	return e.weights
}

// Percentage blends the phase weights: phases before the current one count as
// complete and the current phase contributes weight * ratio.
func (e *Estimator) Percentage(phase models.Phase, ratio float64) float64 {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	w := e.weights
	switch phase {
	case models.PhaseTransfer:
		return w.Transfer * ratio
	case models.PhaseEncoding:
		return w.Transfer + w.Encoding*ratio
	case models.PhaseCloudUpload:
		return w.Transfer + w.Encoding + w.CloudUpload*ratio
	case models.PhaseDone:
		return 100
	}
	return 0
}

// Estimate computes elapsed, remaining, estimated total and percentage
func (e *Estimator) Estimate(in EstimateInput) Estimate {
	var out Estimate

	if in.StartedAt != nil {
		out.ElapsedSeconds = nonNegative(in.Now.Sub(*in.StartedAt).Seconds())
	}

	switch in.Status {
	case models.JobStatusCompleted:
		out.ProgressPercentage = 100
		zero := 0.0
		out.RemainingSeconds = &zero
	case models.JobStatusFailed, models.JobStatusCancelled:
		out.ProgressPercentage = in.Previous
	default:
		ratio, _ := in.Work.Ratio()
		out.ProgressPercentage = math.Max(in.Previous, e.Percentage(in.Status.Phase(), ratio))
		out.RemainingSeconds = remaining(in)
	}

	if in.StartedAt != nil && out.RemainingSeconds != nil {
		total := out.ElapsedSeconds + *out.RemainingSeconds
		out.EstimatedTotalSeconds = &total
	}
	return out
}

// remaining extrapolates the current phase's linear rate:
// remaining = phaseElapsed * (total - completed) / completed.
// Unknown before any work is done, so it is never reported as a fabricated zero.
func remaining(in EstimateInput) *float64 {
	if in.PhaseStartedAt == nil || in.Work.Total <= 0 || in.Work.Completed <= 0 {
		return nil
	}
	elapsed := nonNegative(in.Now.Sub(*in.PhaseStartedAt).Seconds())
	left := in.Work.Total - in.Work.Completed
	if left < 0 {
		left = 0
	}
	r := elapsed * left / in.Work.Completed
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return nil
	}
	return &r
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
