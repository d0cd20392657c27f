package parsing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")

	// ErrJobNotFound is returned by JobQueue.Poll when the queue has no
	// record of the job.
	ErrJobNotFound = errors.New("job not found")

	ErrEmptyBatch = &ValidationError{Field: "file_ids", Message: "file id list must not be empty"}
)

// ValidationError rejects a request before anything is enqueued.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}

	return e.Field + ": " + e.Message
}

// UpstreamError wraps a failure of the job queue or batch store.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type MemberError struct {
	FileID int64
	Err    error
}

// PartialBatchError lists the members of a batch that were never enqueued.
type PartialBatchError struct {
	BatchID string
	Failed  []MemberError
}

func (e *PartialBatchError) Error() string {
	ids := make([]string, len(e.Failed))
	for i := range e.Failed {
		ids[i] = fmt.Sprint(e.Failed[i].FileID)
	}

	return fmt.Sprintf("batch %s: %d member(s) not submitted: %s", e.BatchID, len(e.Failed), strings.Join(ids, ", "))
}

// FileIDs returns the ids of the failed members in submission order.
func (e *PartialBatchError) FileIDs() []int64 {
	ids := make([]int64, len(e.Failed))
	for i := range e.Failed {
		ids[i] = e.Failed[i].FileID
	}

	return ids
}
