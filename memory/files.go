// Package memory holds in-process implementations of the storage and queue
// interfaces for tests and single-node development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Vector/vector-docparse/models"
)

type FileRepository struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]models.File
}

func NewFileRepository() *FileRepository {
	return &FileRepository{items: make(map[int64]models.File)}
}

func (r *FileRepository) Create(_ context.Context, file *models.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if file.ID != 0 {
		if _, ok := r.items[file.ID]; ok {
			return models.ErrAlreadyExists
		}
	} else {
		r.nextID++
		file.ID = r.nextID
	}

	if file.ID > r.nextID {
		r.nextID = file.ID
	}

	r.items[file.ID] = *file

	return nil
}

func (r *FileRepository) Get(_ context.Context, id int64) (models.File, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	file, ok := r.items[id]
	if !ok {
		return models.File{}, models.ErrNotFound
	}

	return file, nil
}

func (r *FileRepository) List(_ context.Context, ownerID string, page, size int) ([]models.File, int, error) {
	offset, err := models.Page(page, size)
	if err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	owned := make([]models.File, 0, len(r.items))

	for _, f := range r.items {
		if f.OwnerID == ownerID {
			owned = append(owned, f)
		}
	}

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].ID > owned[j].ID
	})

	total := len(owned)
	if offset >= total {
		return []models.File{}, total, nil
	}

	end := min(offset+size, total)

	return owned[offset:end], total, nil
}

func (r *FileRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return models.ErrNotFound
	}

	delete(r.items, id)

	return nil
}
