package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
	"github.com/ternarybob/streamtrack/internal/interfaces"
	"github.com/ternarybob/streamtrack/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// jobRow is the badgerhold representation of a JobRecord. The record itself is
// kept as JSON so the model can evolve without gob registration.
type jobRow struct {
	JobID     string
	Status    string `badgerhold:"index"`
	Terminal  bool
	SavedUnix int64
	Data      []byte
}

// JobStore implements interfaces.JobStore for BadgerDB
type JobStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ interfaces.JobStore = (*JobStore)(nil)

// NewJobStore creates a job store on an open database
func NewJobStore(db *BadgerDB, logger arbor.ILogger) *JobStore {
	return &JobStore{
		db:     db,
		logger: logger,
	}
}

// Open opens the database described by config and returns a store that owns it
func Open(logger arbor.ILogger, config *common.BadgerConfig) (*JobStore, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}
	return NewJobStore(db, logger), nil
}

func (s *JobStore) SaveJob(ctx context.Context, record *models.JobRecord) error {
	if record == nil || record.JobID == "" {
		return fmt.Errorf("job record requires an id")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode job record: %w", err)
	}

	row := &jobRow{
		JobID:     record.JobID,
		Status:    string(record.Snapshot.Status),
		Terminal:  record.Terminal(),
		SavedUnix: record.SavedAt.UnixNano(),
		Data:      data,
	}
	if err := s.db.Store().Upsert(record.JobID, row); err != nil {
		return fmt.Errorf("failed to save job %s: %w", record.JobID, err)
	}
	return nil
}

func (s *JobStore) LoadJob(ctx context.Context, jobID string) (*models.JobRecord, error) {
	var row jobRow
	if err := s.db.Store().Get(jobID, &row); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	return decodeRow(&row)
}

func (s *JobStore) ListActiveJobs(ctx context.Context) ([]*models.JobRecord, error) {
	var rows []jobRow
	if err := s.db.Store().Find(&rows, badgerhold.Where("Terminal").Eq(false)); err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}

	records := make([]*models.JobRecord, 0, len(rows))
	for i := range rows {
		record, err := decodeRow(&rows[i])
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", rows[i].JobID).Msg("Skipping unreadable job record")
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &jobRow{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	return nil
}

func (s *JobStore) PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int, error) {
	query := badgerhold.Where("Terminal").Eq(true).And("SavedUnix").Lt(cutoff.UnixNano())

	count, err := s.db.Store().Count(&jobRow{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired jobs: %w", err)
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.db.Store().DeleteMatching(&jobRow{}, query); err != nil {
		return 0, fmt.Errorf("failed to purge expired jobs: %w", err)
	}

	s.logger.Debug().Int("count", int(count)).Msg("Purged expired job records")
	return int(count), nil
}

func (s *JobStore) Close() error {
	return s.db.Close()
}

func decodeRow(row *jobRow) (*models.JobRecord, error) {
	var record models.JobRecord
	if err := json.Unmarshal(row.Data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", row.JobID, err)
	}
	return &record, nil
}
