// Package blobstore stores uploaded documents and derived artifacts by key.
package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
)

var ErrNotFound = errors.New("blob not found")

// Object is an open blob. The caller owns Body and must close it.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	// Size is -1 when unknown.
	Size int64
}

type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}

	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}

	return true
}

var errInvalidKey = errors.New("invalid blob key")
