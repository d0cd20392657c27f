// Package tasks holds the asynq task definitions and the worker-side handler
// that parses documents.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/blobstore"
	"github.com/Vector/vector-docparse/bus"
	"github.com/Vector/vector-docparse/parsers"
	"github.com/Vector/vector-docparse/tlmt"
	"github.com/Vector/vector-docparse/tlmt/gonoop"
)

// TaskHandler handles processing of Redis tasks
type TaskHandler interface {
	ProcessTask(ctx context.Context, task *asynq.Task) error
}

// ProgressReporter records worker progress where status polls can read it.
type ProgressReporter interface {
	Report(ctx context.Context, jobID string, current, total int, status string) error
	Clear(ctx context.Context, jobID string) error
}

// EventPublisher announces job lifecycle changes.
type EventPublisher interface {
	Publish(ctx context.Context, evt bus.Event) error
}

// Handler implements TaskHandler interface
type Handler struct {
	blobs       blobstore.Store
	registry    *parsers.Registry
	progress    ProgressReporter
	events      EventPublisher
	telemetry   tlmt.Telemetry
	log         *zap.Logger
	taskTimeout time.Duration
	now         func() time.Time
}

// HandlerOption is a function that configures a Handler
type HandlerOption func(*Handler)

// WithTaskTimeout bounds a single parse.
func WithTaskTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.taskTimeout = timeout
	}
}

func WithRegistry(r *parsers.Registry) HandlerOption {
	return func(h *Handler) {
		h.registry = r
	}
}

func WithProgress(p ProgressReporter) HandlerOption {
	return func(h *Handler) {
		h.progress = p
	}
}

func WithEvents(p EventPublisher) HandlerOption {
	return func(h *Handler) {
		h.events = p
	}
}

func WithTelemetry(t tlmt.Telemetry) HandlerOption {
	return func(h *Handler) {
		h.telemetry = t
	}
}

func WithLogger(log *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.log = log
	}
}

// NewHandler creates a task handler reading documents from blobs.
func NewHandler(blobs blobstore.Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		blobs:       blobs,
		registry:    parsers.Default(),
		progress:    nopProgress{},
		events:      nopEvents{},
		telemetry:   gonoop.New(),
		log:         zap.NewNop(),
		taskTimeout: 10 * time.Minute,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// ProcessTask processes a task based on its type
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, h.taskTimeout)
	defer cancel()

	switch task.Type() {
	case TypeParseDocument:
		return h.processParseTask(ctx, task)
	case TypeHealthCheck:
		return nil
	default:
		return fmt.Errorf("unknown task type: %s: %w", task.Type(), asynq.SkipRetry)
	}
}

type nopProgress struct{}

func (nopProgress) Report(context.Context, string, int, int, string) error { return nil }

func (nopProgress) Clear(context.Context, string) error { return nil }

type nopEvents struct{}

func (nopEvents) Publish(context.Context, bus.Event) error { return nil }
