package models

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// MaxPageSize bounds FileRepository.List.
const MaxPageSize = 100

// File is the metadata record of an uploaded document. The bytes live in
// blob storage under StorageKey.
type File struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StorageKey  string    `json:"-"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ext returns the lower-cased filename extension including the dot.
func (f *File) Ext() string {
	return strings.ToLower(path.Ext(f.Filename))
}

// FileRepository stores file metadata. Create assigns ID.
type FileRepository interface {
	Create(ctx context.Context, file *File) error
	Get(ctx context.Context, id int64) (File, error)
	List(ctx context.Context, ownerID string, page, size int) ([]File, int, error)
	Delete(ctx context.Context, id int64) error
}

// Page validates pagination input and returns the row offset.
func Page(page, size int) (int, error) {
	if page < 1 {
		return 0, errors.New("page must be at least 1")
	}

	if size < 1 || size > MaxPageSize {
		return 0, errors.New("size must be between 1 and 100")
	}

	return (page - 1) * size, nil
}
