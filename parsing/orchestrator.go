package parsing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/jobstate"
	"github.com/Vector/vector-docparse/models"
	"github.com/Vector/vector-docparse/parsers"
)

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	queue   JobQueue
	batches BatchStore
	files   FileLookup
	log     *zap.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func New(queue JobQueue, batches BatchStore, files FileLookup, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		queue:   queue,
		batches: batches,
		files:   files,
		log:     zap.NewNop(),
		now:     time.Now,
		newID:   uuid.NewString,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// SubmitParse enqueues exactly one parse job for the file and returns the
// queue-assigned job id. Queue failures are returned as *UpstreamError and
// never retried.
func (o *Orchestrator) SubmitParse(ctx context.Context, req ParseRequest) (string, error) {
	if req.RequesterID == "" {
		return "", &ValidationError{Field: "requester_id", Message: "requester is required"}
	}

	file, err := o.lookup(ctx, req.FileID, req.RequesterID)
	if err != nil {
		return "", err
	}

	jobID, err := o.queue.Enqueue(ctx, JobRequest{
		FileID:      file.ID,
		RequesterID: req.RequesterID,
		StorageKey:  file.StorageKey,
		Filename:    file.Filename,
	})
	if err != nil {
		o.log.Error("failed to enqueue parse job", zap.Int64("file_id", file.ID), zap.Error(err))
		return "", &UpstreamError{Op: "enqueue", Err: err}
	}

	o.log.Info("parse job submitted",
		zap.String("job_id", jobID),
		zap.Int64("file_id", file.ID),
		zap.String("requester_id", req.RequesterID),
	)

	return jobID, nil
}

func (o *Orchestrator) lookup(ctx context.Context, fileID int64, requesterID string) (models.File, error) {
	if fileID <= 0 {
		return models.File{}, &ValidationError{Field: "file_id", Message: "file id must be positive"}
	}

	file, err := o.files.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.File{}, fmt.Errorf("file %d: %w", fileID, ErrNotFound)
		}

		return models.File{}, &UpstreamError{Op: "load file", Err: err}
	}

	if file.OwnerID != requesterID {
		return models.File{}, fmt.Errorf("file %d: %w", fileID, ErrAccessDenied)
	}

	if !parsers.IsSupported(file.Filename) {
		return models.File{}, &ValidationError{
			Field:   "file_id",
			Message: fmt.Sprintf("unsupported file type %q", file.Ext()),
		}
	}

	return file, nil
}

// GetStatus polls the queue once and returns the normalized snapshot. A job
// the queue does not know is reported as pending. If the queue cannot be
// reached the snapshot is UNKNOWN rather than an error so that pollers keep
// polling.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string, fileID int64, requesterID string) (Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return Job{}, &ValidationError{Field: "task_id", Message: "job id is required"}
	}

	job, owner, err := o.poll(ctx, jobID, fileID)
	if err != nil {
		return Job{}, err
	}

	if owner != "" && owner != requesterID {
		return Job{}, fmt.Errorf("job %s: %w", jobID, ErrAccessDenied)
	}

	return job, nil
}

// poll returns the snapshot of jobID and the requester recorded by the
// queue, which is empty when the queue had nothing to report.
func (o *Orchestrator) poll(ctx context.Context, jobID string, fileID int64) (Job, string, error) {
	q, err := o.queue.Poll(ctx, jobID)

	switch {
	case errors.Is(err, ErrJobNotFound):
		return Job{
			JobID:  jobID,
			FileID: fileID,
			Status: jobstate.Normalize(jobstate.RawStatus{State: jobstate.RawPending}),
		}, "", nil
	case err != nil:
		o.log.Warn("failed to poll job", zap.String("job_id", jobID), zap.Error(err))

		return Job{
			JobID:  jobID,
			FileID: fileID,
			Status: jobstate.Status{
				State:   jobstate.StateUnknown,
				Total:   100,
				Message: "status unavailable: " + err.Error(),
			},
		}, "", nil
	}

	if q.FileID != fileID {
		return Job{}, "", fmt.Errorf("job %s for file %d: %w", jobID, fileID, ErrNotFound)
	}

	return Job{JobID: jobID, FileID: fileID, Status: jobstate.Normalize(q.Raw)}, q.RequesterID, nil
}

// Cancel asks the queue to stop the job. A worker that already started may
// still finish and report success.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string, fileID int64, requesterID string) error {
	q, err := o.queue.Poll(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}

		return &UpstreamError{Op: "poll", Err: err}
	}

	if q.FileID != fileID {
		return fmt.Errorf("job %s for file %d: %w", jobID, fileID, ErrNotFound)
	}

	if q.RequesterID != requesterID {
		return fmt.Errorf("job %s: %w", jobID, ErrAccessDenied)
	}

	if err := o.queue.Cancel(ctx, jobID); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}

		return &UpstreamError{Op: "cancel", Err: err}
	}

	o.log.Info("parse job cancel requested", zap.String("job_id", jobID), zap.Int64("file_id", fileID))

	return nil
}
