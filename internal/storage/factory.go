package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
	"github.com/ternarybob/streamtrack/internal/interfaces"
	"github.com/ternarybob/streamtrack/internal/storage/badger"
	"github.com/ternarybob/streamtrack/internal/storage/redis"
)

// NewJobStore opens the store selected by config.Storage.Type and wraps it
// with retries and a circuit breaker
func NewJobStore(logger arbor.ILogger, config *common.Config) (interfaces.JobStore, error) {
	var (
		store interfaces.JobStore
		err   error
	)

	storageType := strings.ToLower(config.Storage.Type)
	switch storageType {
	case "badger", "":
		storageType = "badger"
		store, err = badger.Open(logger, &config.Storage.Badger)
	case "redis":
		store, err = redis.Open(logger, &config.Storage.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (supported: badger, redis)", config.Storage.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s job store: %w", storageType, err)
	}

	logger.Info().Str("type", storageType).Msg("Job store opened")

	return NewResilientStore(
		store,
		storageType,
		RetryPolicyFromConfig(config.Storage.Retry),
		config.Storage.Breaker.MaxFailures,
		common.Duration(config.Storage.Breaker.OpenTimeout, 10*time.Second),
		logger,
	), nil
}
