package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const progressPrefix = "docparse:progress:"

// DefaultProgressTTL bounds how long a progress record outlives its last
// update, so a crashed worker cannot leave it behind forever.
const DefaultProgressTTL = time.Hour

// Progress is the last progress a worker reported for a job.
type Progress struct {
	Current int
	Total   int
	Status  string
}

// ProgressStore keeps worker progress in a Redis hash per job.
type ProgressStore struct {
	rdb goredis.UniversalClient
	ttl time.Duration
}

func NewProgressStore(rdb goredis.UniversalClient, ttl time.Duration) *ProgressStore {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}

	return &ProgressStore{rdb: rdb, ttl: ttl}
}

func progressKey(jobID string) string {
	return progressPrefix + jobID
}

func (s *ProgressStore) Report(ctx context.Context, jobID string, current, total int, status string) error {
	key := progressKey(jobID)

	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, "current", current, "total", total, "status", status)
		pipe.Expire(ctx, key, s.ttl)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to report progress for %s: %w", jobID, err)
	}

	return nil
}

// Load returns the stored progress. ok is false when nothing was reported.
func (s *ProgressStore) Load(ctx context.Context, jobID string) (p Progress, ok bool, err error) {
	fields, err := s.rdb.HGetAll(ctx, progressKey(jobID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return Progress{}, false, nil
		}

		return Progress{}, false, fmt.Errorf("failed to load progress for %s: %w", jobID, err)
	}

	if len(fields) == 0 {
		return Progress{}, false, nil
	}

	p.Current, _ = strconv.Atoi(fields["current"])
	p.Total, _ = strconv.Atoi(fields["total"])
	p.Status = fields["status"]

	return p, true, nil
}

func (s *ProgressStore) Clear(ctx context.Context, jobID string) error {
	if err := s.rdb.Del(ctx, progressKey(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to clear progress for %s: %w", jobID, err)
	}

	return nil
}
