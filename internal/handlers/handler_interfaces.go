package handlers

import (
	"context"

	"github.com/ternarybob/streamtrack/internal/interfaces"
	"github.com/ternarybob/streamtrack/internal/models"
)

// JobTracker is the aggregator surface used by the job endpoints
type JobTracker interface {
	CreateJob(ctx context.Context, jobID string, metadata models.JobMetadata) (*models.JobProgress, error)
	Ingest(ctx context.Context, jobID string, event models.ProgressEvent) (*models.JobProgress, error)
	Cancel(ctx context.Context, jobID, reason string) (*models.JobProgress, error)
	Get(ctx context.Context, jobID string) (*models.JobProgress, error)
	ListActive() []*models.JobProgress
}

// ProgressSource is the aggregator surface used by the live stream
type ProgressSource interface {
	Subscribe(ctx context.Context, jobID string) (interfaces.Subscription, error)
	Unsubscribe(sub interfaces.Subscription)
}
