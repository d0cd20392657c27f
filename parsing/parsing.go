// Package parsing accepts single and batch parse requests, hands them to a
// job queue and reports their progress in canonical form.
//
// The orchestrator keeps no job state of its own. Every status read polls
// the queue and normalizes what it reports, and batch progress is derived
// from the members on every read.
package parsing

import (
	"context"
	"time"

	"github.com/Vector/vector-docparse/jobstate"
	"github.com/Vector/vector-docparse/models"
)

// JobRequest is the unit of work handed to a JobQueue.
type JobRequest struct {
	FileID      int64
	RequesterID string
	StorageKey  string
	Filename    string
}

// QueuedJob is what a JobQueue knows about a job.
type QueuedJob struct {
	JobID       string
	FileID      int64
	RequesterID string
	Raw         jobstate.RawStatus
}

// JobQueue is a distributed task engine. Enqueue returns the id the queue
// assigned to the job. Poll returns ErrJobNotFound for ids it does not know.
// Cancel is best effort: a job already running may still complete.
type JobQueue interface {
	Enqueue(ctx context.Context, req JobRequest) (string, error)
	Poll(ctx context.Context, jobID string) (QueuedJob, error)
	Cancel(ctx context.Context, jobID string) error
}

// FileLookup resolves file metadata. Get returns models.ErrNotFound for
// unknown ids.
type FileLookup interface {
	Get(ctx context.Context, id int64) (models.File, error)
}

// Job is a point-in-time snapshot of a parse job.
type Job struct {
	JobID  string `json:"job_id"`
	FileID int64  `json:"file_id"`
	jobstate.Status
}

type ParseRequest struct {
	FileID      int64
	RequesterID string
}

type BatchRequest struct {
	FileIDs     []int64
	RequesterID string
}

// BatchMember records the submission outcome of one batch member. JobID is
// empty when the member was never enqueued.
type BatchMember struct {
	FileID      int64  `json:"file_id"`
	JobID       string `json:"job_id,omitempty"`
	SubmitError string `json:"submit_error,omitempty"`
}

// Batch is the stored membership of a batch. It never holds progress.
type Batch struct {
	BatchID     string        `json:"batch_id"`
	RequesterID string        `json:"requester_id"`
	CreatedAt   time.Time     `json:"created_at"`
	Members     []BatchMember `json:"members"`
}

// BatchStore persists batch membership. LoadBatch returns ErrNotFound for
// unknown or expired batches.
type BatchStore interface {
	SaveBatch(ctx context.Context, b Batch) error
	LoadBatch(ctx context.Context, batchID string) (Batch, error)
}

// BatchStatus is the derived view of a batch.
type BatchStatus struct {
	BatchID   string    `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
	jobstate.Aggregate
	Members []Job `json:"members"`
}
