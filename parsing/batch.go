package parsing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/jobstate"
)

// BatchSubmission is the outcome of SubmitBatch.
type BatchSubmission struct {
	Batch
	failed []MemberError
}

// Partial returns the members that were never enqueued, or nil when every
// member was submitted.
func (s *BatchSubmission) Partial() *PartialBatchError {
	if len(s.failed) == 0 {
		return nil
	}

	return &PartialBatchError{BatchID: s.BatchID, Failed: s.failed}
}

// SubmitBatch enqueues one job per distinct file id, in order. A failed
// member does not undo members already enqueued; failures are recorded on
// the submission and reported through Partial. The batch is stored even when
// every member failed so its status stays queryable.
func (o *Orchestrator) SubmitBatch(ctx context.Context, req BatchRequest) (*BatchSubmission, error) {
	if len(req.FileIDs) == 0 {
		return nil, ErrEmptyBatch
	}

	if req.RequesterID == "" {
		return nil, &ValidationError{Field: "requester_id", Message: "requester is required"}
	}

	sub := &BatchSubmission{
		Batch: Batch{
			BatchID:     o.newID(),
			RequesterID: req.RequesterID,
			CreatedAt:   o.now().UTC(),
		},
	}

	seen := make(map[int64]struct{}, len(req.FileIDs))

	for _, fileID := range req.FileIDs {
		if _, ok := seen[fileID]; ok {
			continue
		}

		seen[fileID] = struct{}{}

		member := BatchMember{FileID: fileID}

		jobID, err := o.SubmitParse(ctx, ParseRequest{FileID: fileID, RequesterID: req.RequesterID})
		if err != nil {
			member.SubmitError = err.Error()
			sub.failed = append(sub.failed, MemberError{FileID: fileID, Err: err})
		} else {
			member.JobID = jobID
		}

		sub.Members = append(sub.Members, member)
	}

	if err := o.batches.SaveBatch(ctx, sub.Batch); err != nil {
		o.log.Error("failed to save batch",
			zap.String("batch_id", sub.BatchID),
			zap.Int("members", len(sub.Members)),
			zap.Error(err),
		)

		return sub, &UpstreamError{Op: "save batch", Err: err}
	}

	fields := []zap.Field{
		zap.String("batch_id", sub.BatchID),
		zap.Int("members", len(sub.Members)),
		zap.Int("failed", len(sub.failed)),
	}

	if len(sub.failed) > 0 {
		o.log.Warn("batch partially submitted", fields...)
	} else {
		o.log.Info("batch submitted", fields...)
	}

	return sub, nil
}

// GetBatchStatus polls every submitted member and derives the aggregate.
// Members that were never enqueued report FAILED with 0/0 progress.
func (o *Orchestrator) GetBatchStatus(ctx context.Context, batchID, requesterID string) (BatchStatus, error) {
	b, err := o.batches.LoadBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return BatchStatus{}, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
		}

		return BatchStatus{}, &UpstreamError{Op: "load batch", Err: err}
	}

	if b.RequesterID != requesterID {
		return BatchStatus{}, fmt.Errorf("batch %s: %w", batchID, ErrAccessDenied)
	}

	members := make([]Job, len(b.Members))
	statuses := make([]jobstate.Status, len(b.Members))

	for i, m := range b.Members {
		if m.JobID == "" {
			members[i] = Job{
				FileID: m.FileID,
				Status: jobstate.Status{
					State:   jobstate.StateFailed,
					Message: "not submitted",
					Error:   m.SubmitError,
				},
			}
		} else {
			job, _, err := o.poll(ctx, m.JobID, m.FileID)
			if err != nil {
				job = Job{
					JobID:  m.JobID,
					FileID: m.FileID,
					Status: jobstate.Status{State: jobstate.StateUnknown, Total: 100, Message: err.Error()},
				}
			}

			members[i] = job
		}

		statuses[i] = members[i].Status
	}

	return BatchStatus{
		BatchID:   b.BatchID,
		CreatedAt: b.CreatedAt,
		Aggregate: jobstate.Combine(statuses),
		Members:   members,
	}, nil
}
