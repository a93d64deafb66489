package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
	"github.com/ternarybob/streamtrack/internal/interfaces"
	"github.com/ternarybob/streamtrack/internal/models"
)

// RetryPolicy bounds the attempts made for one store call
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// RetryPolicyFromConfig converts the string durations of the config
func RetryPolicyFromConfig(config common.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    config.MaxAttempts,
		InitialBackoff: common.Duration(config.InitialBackoff, 50*time.Millisecond),
		MaxBackoff:     common.Duration(config.MaxBackoff, time.Second),
	}
}

// ResilientStore wraps a JobStore with bounded retries and a circuit breaker.
// A missing record is an answer, not a failure: it is neither retried nor
// counted against the breaker.
type ResilientStore struct {
	inner   interfaces.JobStore
	breaker *gobreaker.CircuitBreaker
	policy  RetryPolicy
	logger  arbor.ILogger
	sleep   func(ctx context.Context, d time.Duration) error
}

var _ interfaces.JobStore = (*ResilientStore)(nil)

// NewResilientStore wraps inner. maxFailures consecutive failures open the
// breaker for openTimeout.
func NewResilientStore(inner interfaces.JobStore, name string, policy RetryPolicy, maxFailures uint32, openTimeout time.Duration, logger arbor.ILogger) *ResilientStore {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if maxFailures == 0 {
		maxFailures = 1
	}

	s := &ResilientStore{
		inner:  inner,
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, models.ErrSnapshotNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("store", name).Str("from", from.String()).Str("to", to.String()).Msg("Job store circuit breaker changed state")
		},
	})
	return s
}

// State reports the breaker state
func (s *ResilientStore) State() gobreaker.State {
	return s.breaker.State()
}

func (s *ResilientStore) SaveJob(ctx context.Context, record *models.JobRecord) error {
	_, err := s.do(ctx, "save", func() (interface{}, error) {
		return nil, s.inner.SaveJob(ctx, record)
	})
	return err
}

func (s *ResilientStore) LoadJob(ctx context.Context, jobID string) (*models.JobRecord, error) {
	result, err := s.do(ctx, "load", func() (interface{}, error) {
		return s.inner.LoadJob(ctx, jobID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.JobRecord), nil
}

func (s *ResilientStore) ListActiveJobs(ctx context.Context) ([]*models.JobRecord, error) {
	result, err := s.do(ctx, "list_active", func() (interface{}, error) {
		return s.inner.ListActiveJobs(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*models.JobRecord), nil
}

func (s *ResilientStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.do(ctx, "delete", func() (interface{}, error) {
		return nil, s.inner.DeleteJob(ctx, jobID)
	})
	return err
}

func (s *ResilientStore) PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.do(ctx, "purge", func() (interface{}, error) {
		return s.inner.PurgeTerminalJobs(ctx, cutoff)
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

func (s *ResilientStore) Close() error {
	return s.inner.Close()
}

func (s *ResilientStore) do(ctx context.Context, op string, fn func() (interface{}, error)) (interface{}, error) {
	backoff := s.policy.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		result, err := s.breaker.Execute(fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) || attempt == s.policy.MaxAttempts {
			break
		}

		s.logger.Debug().Err(err).Str("op", op).Int("attempt", attempt).Msg("Job store call failed, retrying")
		if err := s.sleep(ctx, backoff); err != nil {
			return nil, lastErr
		}
		backoff *= 2
		if s.policy.MaxBackoff > 0 && backoff > s.policy.MaxBackoff {
			backoff = s.policy.MaxBackoff
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, models.ErrSnapshotNotFound),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
