package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
	"github.com/ternarybob/streamtrack/internal/models"
)

func openTestStore(t *testing.T) *JobStore {
	t.Helper()
	store, err := Open(arbor.NewNoOpLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(id string, status models.JobStatus, savedAt time.Time) *models.JobRecord {
	return &models.JobRecord{
		JobID: id,
		Snapshot: models.JobProgress{
			JobID:              id,
			Status:             status,
			ProgressPercentage: 42.5,
			Sequence:           7,
			CreatedAt:          savedAt.Add(-time.Minute),
			LastUpdate:         savedAt,
		},
		Metadata: models.JobMetadata{Title: "clip " + id, TotalVariants: 2},
		Segments: map[int]map[int]models.SegmentState{
			1: {0: models.SegmentCompleted, 1: models.SegmentPending},
		},
		SavedAt: savedAt,
	}
}

func TestJobStore_SaveAndLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveJob(ctx, testRecord("job-1", models.JobStatusEncoding, now)))

	loaded, err := store.LoadJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", loaded.JobID)
	assert.Equal(t, models.JobStatusEncoding, loaded.Snapshot.Status)
	assert.Equal(t, uint64(7), loaded.Snapshot.Sequence)
	assert.Equal(t, 42.5, loaded.Snapshot.ProgressPercentage)
	assert.Equal(t, "clip job-1", loaded.Metadata.Title)
	assert.Equal(t, models.SegmentCompleted, loaded.Segments[1][0])
	assert.True(t, now.Equal(loaded.SavedAt))

	// Upsert replaces the previous record
	updated := testRecord("job-1", models.JobStatusCompleted, now.Add(time.Second))
	require.NoError(t, store.SaveJob(ctx, updated))
	loaded, err = store.LoadJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, loaded.Snapshot.Status)
}

func TestJobStore_LoadMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.LoadJob(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrSnapshotNotFound)
}

func TestJobStore_SaveRejectsEmptyID(t *testing.T) {
	store := openTestStore(t)
	assert.Error(t, store.SaveJob(context.Background(), &models.JobRecord{}))
}

func TestJobStore_ListActiveJobs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SaveJob(ctx, testRecord("active-1", models.JobStatusEncoding, now)))
	require.NoError(t, store.SaveJob(ctx, testRecord("active-2", models.JobStatusPending, now)))
	require.NoError(t, store.SaveJob(ctx, testRecord("done", models.JobStatusCompleted, now)))

	active, err := store.ListActiveJobs(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(active))
	for _, record := range active {
		ids = append(ids, record.JobID)
	}
	assert.ElementsMatch(t, []string{"active-1", "active-2"}, ids)
}

func TestJobStore_DeleteJob(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveJob(ctx, testRecord("job-1", models.JobStatusFailed, time.Now())))
	require.NoError(t, store.DeleteJob(ctx, "job-1"))
	require.NoError(t, store.DeleteJob(ctx, "job-1"), "deleting a missing record is not an error")

	_, err := store.LoadJob(ctx, "job-1")
	assert.ErrorIs(t, err, models.ErrSnapshotNotFound)
}

func TestJobStore_PurgeTerminalJobs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveJob(ctx, testRecord("old-done", models.JobStatusCompleted, now.Add(-8*24*time.Hour))))
	require.NoError(t, store.SaveJob(ctx, testRecord("old-failed", models.JobStatusFailed, now.Add(-9*24*time.Hour))))
	require.NoError(t, store.SaveJob(ctx, testRecord("old-active", models.JobStatusEncoding, now.Add(-9*24*time.Hour))))
	require.NoError(t, store.SaveJob(ctx, testRecord("recent-done", models.JobStatusCancelled, now.Add(-time.Hour))))

	purged, err := store.PurgeTerminalJobs(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	for _, id := range []string{"old-done", "old-failed"} {
		_, err := store.LoadJob(ctx, id)
		assert.ErrorIs(t, err, models.ErrSnapshotNotFound, id)
	}
	for _, id := range []string{"old-active", "recent-done"} {
		_, err := store.LoadJob(ctx, id)
		assert.NoError(t, err, id)
	}

	purged, err = store.PurgeTerminalJobs(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestNewBadgerDB_ResetOnStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	logger := arbor.NewNoOpLogger()
	ctx := context.Background()

	store, err := Open(logger, &common.BadgerConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, store.SaveJob(ctx, testRecord("job-1", models.JobStatusEncoding, time.Now())))
	require.NoError(t, store.Close())

	store, err = Open(logger, &common.BadgerConfig{Path: path})
	require.NoError(t, err)
	_, err = store.LoadJob(ctx, "job-1")
	require.NoError(t, err, "records survive a reopen")
	require.NoError(t, store.Close())

	store, err = Open(logger, &common.BadgerConfig{Path: path, ResetOnStartup: true})
	require.NoError(t, err)
	defer store.Close()
	_, err = store.LoadJob(ctx, "job-1")
	assert.ErrorIs(t, err, models.ErrSnapshotNotFound)
}
