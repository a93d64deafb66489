package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
)

const (
	defaultSchedule = "0 0 * * * *"
	sweepTimeout    = 5 * time.Minute
)

// Purger deletes terminal job records saved before cutoff
type Purger interface {
	PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper periodically purges terminal job records older than maxAge.
// A purged id is forgotten and can be created again.
type Sweeper struct {
	purger Purger
	maxAge time.Duration
	cron   *cron.Cron
	now    func() time.Time
	logger arbor.ILogger

	mu      sync.Mutex
	running bool
}

// NewSweeper creates a retention sweeper
func NewSweeper(purger Purger, maxAge time.Duration, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		purger: purger,
		maxAge: maxAge,
		cron:   cron.New(cron.WithSeconds()),
		now:    time.Now,
		logger: logger,
	}
}

// Start schedules the sweep
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = defaultSchedule
	}
	if s.maxAge <= 0 {
		return fmt.Errorf("retention max age must be positive, got %s", s.maxAge)
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.RunNow(); err != nil {
			s.logger.Error().Err(err).Msg("Retention sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Str("max_age", s.maxAge.String()).
		Msg("Retention sweeper started")
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Retention sweeper stopped")
}

// RunNow performs one sweep and returns the number of purged records.
// Overlapping sweeps are skipped.
func (s *Sweeper) RunNow() (int, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug().Msg("Retention sweep already running, skipping")
		return 0, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	return s.sweep()
}

func (s *Sweeper) sweep() (purged int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retention sweep panicked: %v", r)
			s.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Str("stack", common.GetStackTrace()).Msg("Recovered from panic in retention sweep")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	start := s.now()
	cutoff := start.Add(-s.maxAge)

	purged, err = s.purger.PurgeTerminalJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge terminal jobs: %w", err)
	}

	s.logger.Info().
		Int("purged", purged).
		Str("cutoff", cutoff.Format(time.RFC3339)).
		Dur("duration", s.now().Sub(start)).
		Msg("Retention sweep completed")
	return purged, nil
}
