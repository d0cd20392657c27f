package tasks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task types
const (
	TypeParseDocument = "parse:document"
	TypeHealthCheck   = "health:check"
)

// ParsePayload is the payload of a TypeParseDocument task. JobID repeats the
// asynq task id so the handler does not depend on the task context.
type ParsePayload struct {
	JobID       string `json:"job_id"`
	FileID      int64  `json:"file_id"`
	RequesterID string `json:"requester_id"`
	StorageKey  string `json:"storage_key"`
	Filename    string `json:"filename"`
}

func (p *ParsePayload) Validate() error {
	switch {
	case p.JobID == "":
		return errors.New("job id is required")
	case p.FileID <= 0:
		return errors.New("file id must be positive")
	case p.StorageKey == "":
		return errors.New("storage key is required")
	case p.Filename == "":
		return errors.New("filename is required")
	}

	return nil
}

// ParseResult is written to the task result on success.
type ParseResult struct {
	ContentLength int    `json:"content_length"`
	Sections      int    `json:"sections"`
	TextKey       string `json:"text_key"`
}

// CreateParseTask creates a new parse task with the given payload
func CreateParseTask(payload *ParsePayload, opts ...asynq.Option) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parse payload: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parse payload: %w", err)
	}

	return asynq.NewTask(TypeParseDocument, data, opts...), nil
}

// DecodeParsePayload reads the payload of a parse task.
func DecodeParsePayload(data []byte) (ParsePayload, error) {
	var p ParsePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return ParsePayload{}, fmt.Errorf("failed to unmarshal parse payload: %w", err)
	}

	return p, nil
}

// TextKey is the blob key the extracted text of a job is stored under.
func TextKey(fileID int64, jobID string) string {
	return fmt.Sprintf("parsed/%d/%s.txt", fileID, jobID)
}
