package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/streamtrack/internal/models"
)

// JobStore persists job records. Implementations are the durable boundary of
// the aggregator: Save is called from a background writer, never from ingest.
type JobStore interface {
	// SaveJob upserts the record for record.JobID
	SaveJob(ctx context.Context, record *models.JobRecord) error

	// LoadJob returns the stored record or models.ErrSnapshotNotFound
	LoadJob(ctx context.Context, jobID string) (*models.JobRecord, error)

	// ListActiveJobs returns every record whose snapshot is not terminal
	ListActiveJobs(ctx context.Context) ([]*models.JobRecord, error)

	// DeleteJob removes a record; deleting a missing record is not an error
	DeleteJob(ctx context.Context, jobID string) error

	// PurgeTerminalJobs deletes terminal records saved before cutoff and returns the count
	PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases the underlying connection
	Close() error
}
