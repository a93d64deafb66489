package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
	"github.com/ternarybob/streamtrack/internal/interfaces"
	"github.com/ternarybob/streamtrack/internal/models"
)

const dialTimeout = 5 * time.Second

// JobStore implements interfaces.JobStore on Redis.
//
// Layout under the key prefix:
//
//	{prefix}:job:{id}        JSON encoded JobRecord
//	{prefix}:jobs:active     set of non-terminal job ids
//	{prefix}:jobs:terminal   sorted set of terminal job ids scored by save time (unix ms)
type JobStore struct {
	client *redis.Client
	prefix string
	logger arbor.ILogger
}

var _ interfaces.JobStore = (*JobStore)(nil)

// Open connects to the configured server and verifies it with a ping
func Open(logger arbor.ILogger, config *common.RedisConfig) (*JobStore, error) {
	if config == nil || config.Addr == "" {
		return nil, errors.New("redis configuration is nil or empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: dialTimeout,
		PoolSize:    10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connect error: %w", err)
	}

	logger.Debug().Str("addr", config.Addr).Int("db", config.DB).Msg("Redis job store connected")
	return NewJobStore(client, config.KeyPrefix, logger), nil
}

// NewJobStore wraps an existing client
func NewJobStore(client *redis.Client, prefix string, logger arbor.ILogger) *JobStore {
	if prefix == "" {
		prefix = "streamtrack"
	}
	return &JobStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (s *JobStore) jobKey(jobID string) string {
	return fmt.Sprintf("%s:job:%s", s.prefix, jobID)
}

func (s *JobStore) activeKey() string   { return s.prefix + ":jobs:active" }
func (s *JobStore) terminalKey() string { return s.prefix + ":jobs:terminal" }

func (s *JobStore) SaveJob(ctx context.Context, record *models.JobRecord) error {
	if record == nil || record.JobID == "" {
		return fmt.Errorf("job record requires an id")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode job record: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.jobKey(record.JobID), data, 0)
		if record.Terminal() {
			pipe.SRem(ctx, s.activeKey(), record.JobID)
			pipe.ZAdd(ctx, s.terminalKey(), redis.Z{
				Score:  float64(record.SavedAt.UnixMilli()),
				Member: record.JobID,
			})
		} else {
			pipe.ZRem(ctx, s.terminalKey(), record.JobID)
			pipe.SAdd(ctx, s.activeKey(), record.JobID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", record.JobID, err)
	}
	return nil
}

func (s *JobStore) LoadJob(ctx context.Context, jobID string) (*models.JobRecord, error) {
	data, err := s.client.Get(ctx, s.jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	return decode(jobID, data)
}

func (s *JobStore) ListActiveJobs(ctx context.Context) ([]*models.JobRecord, error) {
	ids, err := s.client.SMembers(ctx, s.activeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read active jobs: %w", err)
	}

	records := make([]*models.JobRecord, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Index entry without a record
			s.client.SRem(ctx, s.activeKey(), ids[i])
			continue
		}
		record, err := decode(ids[i], []byte(raw))
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", ids[i]).Msg("Skipping unreadable job record")
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.jobKey(jobID))
		pipe.SRem(ctx, s.activeKey(), jobID)
		pipe.ZRem(ctx, s.terminalKey(), jobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	return nil
}

func (s *JobStore) PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.terminalKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to find expired jobs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, s.jobKey(id))
			pipe.ZRem(ctx, s.terminalKey(), id)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired jobs: %w", err)
	}

	s.logger.Debug().Int("count", len(ids)).Msg("Purged expired job records")
	return len(ids), nil
}

func (s *JobStore) Close() error {
	return s.client.Close()
}

func decode(jobID string, data []byte) (*models.JobRecord, error) {
	var record models.JobRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	return &record, nil
}
