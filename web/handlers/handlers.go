// Package handlers implements the JSON API on top of the parsing,
// delivery and file storage services.
package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/blobstore"
	"github.com/Vector/vector-docparse/delivery"
	"github.com/Vector/vector-docparse/models"
	"github.com/Vector/vector-docparse/parsers"
	"github.com/Vector/vector-docparse/parsing"
)

// DefaultMaxUploadSize bounds a multipart upload.
const DefaultMaxUploadSize = 50 << 20

// Dependencies aggregates shared services used by handlers.
type Dependencies struct {
	Logger        *zap.Logger
	Files         models.FileRepository
	Blobs         blobstore.Store
	Parsing       *parsing.Orchestrator
	Delivery      *delivery.Service
	Parsers       *parsers.Registry
	MaxUploadSize int64
	// Health reports whether backing services are reachable. Optional.
	Health func(ctx context.Context) error
}

// HandlerGroup groups all handler categories for routing setup.
type HandlerGroup struct {
	Files  *FileHandlers
	Parse  *ParseHandlers
	Health *HealthHandlers
}

// NewHandlerGroup constructs a HandlerGroup with initialized handlers.
func NewHandlerGroup(deps Dependencies) *HandlerGroup {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = DefaultMaxUploadSize
	}

	if deps.Parsers == nil {
		deps.Parsers = parsers.Default()
	}

	return &HandlerGroup{
		Files:  &FileHandlers{Deps: deps},
		Parse:  &ParseHandlers{Deps: deps},
		Health: &HealthHandlers{Deps: deps},
	}
}

// FileHandlers contains upload, listing and delivery routes.
type FileHandlers struct{ Deps Dependencies }

// ParseHandlers contains single and batch parse routes.
type ParseHandlers struct{ Deps Dependencies }

type HealthHandlers struct{ Deps Dependencies }
