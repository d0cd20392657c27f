package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/Vector/vector-docparse/parsing"
)

type BatchStore struct {
	mu    sync.RWMutex
	items map[string]parsing.Batch
}

func NewBatchStore() *BatchStore {
	return &BatchStore{items: make(map[string]parsing.Batch)}
}

func (s *BatchStore) SaveBatch(_ context.Context, b parsing.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.Members = slices.Clone(b.Members)
	s.items[b.BatchID] = b

	return nil
}

func (s *BatchStore) LoadBatch(_ context.Context, batchID string) (parsing.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.items[batchID]
	if !ok {
		return parsing.Batch{}, parsing.ErrNotFound
	}

	b.Members = slices.Clone(b.Members)

	return b, nil
}
