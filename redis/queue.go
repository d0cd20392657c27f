package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/jobstate"
	"github.com/Vector/vector-docparse/parsing"
	"github.com/Vector/vector-docparse/redis/tasks"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	CancelProcessing(id string) error
	DeleteTask(queue, id string) error
}

type progressLoader interface {
	Load(ctx context.Context, jobID string) (Progress, bool, error)
}

// Queue implements parsing.JobQueue on asynq. Job ids are the asynq task
// ids, and running jobs report the progress their worker last stored.
type Queue struct {
	client    enqueuer
	inspector inspector
	progress  progressLoader
	log       *zap.Logger

	queue     string
	maxRetry  int
	timeout   time.Duration
	retention time.Duration
	newID     func() string
}

type QueueOption func(*Queue)

func WithQueueLogger(log *zap.Logger) QueueOption {
	return func(q *Queue) {
		q.log = log
	}
}

// NewQueue builds a Queue on c, using c's configuration for queue name,
// retries, timeout and result retention.
func NewQueue(c *Client, progress *ProgressStore, opts ...QueueOption) *Queue {
	cfg := c.Config()

	q := &Queue{
		client:    c.client,
		inspector: c.inspector,
		progress:  progress,
		log:       zap.NewNop(),
		queue:     cfg.QueueName,
		maxRetry:  cfg.MaxRetries,
		timeout:   cfg.TaskTimeout,
		retention: cfg.RetentionPeriod,
		newID:     uuid.NewString,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

func (q *Queue) Enqueue(ctx context.Context, req parsing.JobRequest) (string, error) {
	id := q.newID()

	task, err := tasks.CreateParseTask(&tasks.ParsePayload{
		JobID:       id,
		FileID:      req.FileID,
		RequesterID: req.RequesterID,
		StorageKey:  req.StorageKey,
		Filename:    req.Filename,
	})
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.TaskID(id),
		asynq.Queue(q.queue),
		asynq.MaxRetry(q.maxRetry),
	}

	if q.timeout > 0 {
		opts = append(opts, asynq.Timeout(q.timeout))
	}

	if q.retention > 0 {
		opts = append(opts, asynq.Retention(q.retention))
	}

	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue parse task: %w", err)
	}

	q.log.Debug("parse task enqueued", zap.String("job_id", info.ID), zap.String("queue", info.Queue))

	return info.ID, nil
}

func (q *Queue) lookup(jobID string) (*asynq.TaskInfo, error) {
	info, err := q.inspector.GetTaskInfo(q.queue, jobID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, parsing.ErrJobNotFound
		}

		return nil, fmt.Errorf("failed to inspect task %s: %w", jobID, err)
	}

	return info, nil
}

func (q *Queue) Poll(ctx context.Context, jobID string) (parsing.QueuedJob, error) {
	info, err := q.lookup(jobID)
	if err != nil {
		return parsing.QueuedJob{}, err
	}

	job := parsing.QueuedJob{JobID: jobID}

	if payload, err := tasks.DecodeParsePayload(info.Payload); err == nil {
		job.FileID = payload.FileID
		job.RequesterID = payload.RequesterID
	} else {
		q.log.Warn("unreadable task payload", zap.String("job_id", jobID), zap.Error(err))
	}

	job.Raw = q.rawStatus(ctx, info)

	return job, nil
}

func (q *Queue) rawStatus(ctx context.Context, info *asynq.TaskInfo) jobstate.RawStatus {
	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
		return jobstate.RawStatus{State: jobstate.RawPending}
	case asynq.TaskStateActive:
		raw := jobstate.RawStatus{State: jobstate.RawProgress}

		p, ok, err := q.progress.Load(ctx, info.ID)
		if err != nil {
			q.log.Debug("progress unavailable", zap.String("job_id", info.ID), zap.Error(err))
		}

		if ok {
			raw.Info = map[string]any{"current": p.Current, "total": p.Total, "status": p.Status}
		}

		return raw
	case asynq.TaskStateCompleted:
		raw := jobstate.RawStatus{State: jobstate.RawSuccess}

		if len(info.Result) > 0 {
			var result map[string]any
			if err := json.Unmarshal(info.Result, &result); err == nil {
				raw.Result = result
			} else {
				raw.Result = string(info.Result)
			}
		}

		return raw
	case asynq.TaskStateArchived:
		return jobstate.RawStatus{
			State: jobstate.RawFailure,
			Info:  map[string]any{"error": info.LastErr},
		}
	case asynq.TaskStateRetry:
		return jobstate.RawStatus{State: jobstate.RawRetry}
	default:
		return jobstate.RawStatus{State: info.State.String()}
	}
}

// Cancel stops an active task or removes one that has not started. Finished
// tasks are left alone.
func (q *Queue) Cancel(_ context.Context, jobID string) error {
	info, err := q.lookup(jobID)
	if err != nil {
		return err
	}

	switch info.State {
	case asynq.TaskStateActive:
		err = q.inspector.CancelProcessing(jobID)
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry, asynq.TaskStateAggregating:
		err = q.inspector.DeleteTask(q.queue, jobID)
	default:
		return nil
	}

	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) {
			return parsing.ErrJobNotFound
		}

		return fmt.Errorf("failed to cancel task %s: %w", jobID, err)
	}

	return nil
}
