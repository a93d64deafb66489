package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/streamtrack/internal/models"
)

func TestMachine_HappyPath(t *testing.T) {
	m := NewMachine(models.JobStatusPending)

	steps := []struct {
		event models.EventType
		want  models.JobStatus
	}{
		{models.EventDownloadStarted, models.JobStatusDownloading},
		{models.EventTransferProgress, models.JobStatusDownloading},
		{models.EventEncodingStarted, models.JobStatusEncoding},
		{models.EventEncodingStarted, models.JobStatusEncoding},
		{models.EventCloudUploadStarted, models.JobStatusUploadingToCloudStorage},
		{models.EventEncodingProgress, models.JobStatusUploadingToCloudStorage},
		{models.EventAllVariantsComplete, models.JobStatusCompleted},
	}

	for _, step := range steps {
		tr, err := m.Evaluate(step.event)
		require.NoError(t, err, "event %s", step.event)
		m.Commit(tr)
		assert.Equal(t, step.want, m.Status(), "after %s", step.event)
	}
}

func TestMachine_IllegalTransition(t *testing.T) {
	m := NewMachine(models.JobStatusPending)

	_, err := m.Evaluate(models.EventCloudUploadStarted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrStateTransition))

	var te *models.StateTransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.JobStatusPending, te.From)
	assert.Equal(t, models.JobStatusPending, m.Status())
}

func TestMachine_ExplicitCompletionOnly(t *testing.T) {
	assert.False(t, Legal(models.JobStatusEncoding, models.EventAllVariantsComplete))
	assert.False(t, Legal(models.JobStatusPending, models.EventSegmentStateChanged))
	assert.True(t, Legal(models.JobStatusUploadingToCloudStorage, models.EventAllVariantsComplete))
}

func TestMachine_FailAndCancelFromAnyActiveState(t *testing.T) {
	for _, status := range models.ActiveStatuses {
		for _, ev := range []models.EventType{models.EventEncodingFailed, models.EventUploadFailed, models.EventWorkerFailed} {
			tr, err := NewMachine(status).Evaluate(ev)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusFailed, tr.To)
		}
		tr, err := NewMachine(status).Evaluate(models.EventCancelRequested)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCancelled, tr.To)
	}
}

func TestMachine_TerminalIsNoOp(t *testing.T) {
	for _, status := range []models.JobStatus{models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled} {
		m := NewMachine(status)
		tr, err := m.Evaluate(models.EventEncodingStarted)
		require.NoError(t, err)
		assert.False(t, tr.Changed())
		assert.Equal(t, status, tr.To)
	}
}
