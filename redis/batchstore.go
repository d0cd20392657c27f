package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Vector/vector-docparse/parsing"
)

const batchPrefix = "docparse:batch:"

// BatchStore keeps batch membership as JSON. Batches expire together with
// the task results they point at.
type BatchStore struct {
	rdb goredis.UniversalClient
	ttl time.Duration
}

func NewBatchStore(rdb goredis.UniversalClient, ttl time.Duration) *BatchStore {
	return &BatchStore{rdb: rdb, ttl: ttl}
}

func (s *BatchStore) SaveBatch(ctx context.Context, b parsing.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	if err := s.rdb.Set(ctx, batchPrefix+b.BatchID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save batch %s: %w", b.BatchID, err)
	}

	return nil
}

func (s *BatchStore) LoadBatch(ctx context.Context, batchID string) (parsing.Batch, error) {
	data, err := s.rdb.Get(ctx, batchPrefix+batchID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return parsing.Batch{}, parsing.ErrNotFound
		}

		return parsing.Batch{}, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}

	var b parsing.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return parsing.Batch{}, fmt.Errorf("failed to unmarshal batch %s: %w", batchID, err)
	}

	return b, nil
}
