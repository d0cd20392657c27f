package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Vector/vector-docparse/jobstate"
	"github.com/Vector/vector-docparse/parsing"
)

// Queue is a scriptable parsing.JobQueue. Jobs start PENDING and only move
// when the test calls SetStatus.
type Queue struct {
	mu        sync.Mutex
	seq       int
	jobs      map[string]parsing.QueuedJob
	requests  []parsing.JobRequest
	failFiles map[int64]error
	pollErr   error
}

func NewQueue() *Queue {
	return &Queue{
		jobs:      make(map[string]parsing.QueuedJob),
		failFiles: make(map[int64]error),
	}
}

// FailEnqueue makes every Enqueue for fileID return err.
func (q *Queue) FailEnqueue(fileID int64, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.failFiles[fileID] = err
}

// FailPoll makes Poll return err until it is called again with nil.
func (q *Queue) FailPoll(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pollErr = err
}

func (q *Queue) Enqueue(ctx context.Context, req parsing.JobRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.failFiles[req.FileID]; err != nil {
		return "", err
	}

	q.seq++
	id := fmt.Sprintf("j%d", q.seq)

	q.jobs[id] = parsing.QueuedJob{
		JobID:       id,
		FileID:      req.FileID,
		RequesterID: req.RequesterID,
		Raw:         jobstate.RawStatus{State: jobstate.RawPending},
	}
	q.requests = append(q.requests, req)

	return id, nil
}

func (q *Queue) Poll(_ context.Context, jobID string) (parsing.QueuedJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pollErr != nil {
		return parsing.QueuedJob{}, q.pollErr
	}

	job, ok := q.jobs[jobID]
	if !ok {
		return parsing.QueuedJob{}, parsing.ErrJobNotFound
	}

	return job, nil
}

func (q *Queue) Cancel(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return parsing.ErrJobNotFound
	}

	if job.Raw.State == jobstate.RawPending {
		delete(q.jobs, jobID)
		return nil
	}

	job.Raw = jobstate.RawStatus{State: jobstate.RawFailure, Info: map[string]any{"error": "cancelled"}}
	q.jobs[jobID] = job

	return nil
}

// SetStatus replaces the raw status the queue reports for jobID.
func (q *Queue) SetStatus(jobID string, raw jobstate.RawStatus) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := q.jobs[jobID]
	job.JobID = jobID
	job.Raw = raw
	q.jobs[jobID] = job
}

// Requests returns every accepted enqueue in order.
func (q *Queue) Requests() []parsing.JobRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]parsing.JobRequest(nil), q.requests...)
}
