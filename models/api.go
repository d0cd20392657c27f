package models

import (
	"time"

	"github.com/Vector/vector-docparse/jobstate"
)

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// response for a download token request
type DownloadTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// response for a parse submission
type ParseResponse struct {
	JobID  string `json:"job_id"`
	FileID int64  `json:"file_id"`
}

type JobStatusResponse struct {
	JobID  string `json:"job_id"`
	FileID int64  `json:"file_id"`
	jobstate.Status
}

// request body for batch parsing when sent as an object
type BatchParseRequest struct {
	FileIDs []int64 `json:"file_ids"`
}

type BatchMemberResponse struct {
	FileID int64  `json:"file_id"`
	JobID  string `json:"job_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

type BatchParseResponse struct {
	BatchID string                `json:"batch_id"`
	Members []BatchMemberResponse `json:"members"`
	Failed  []int64               `json:"failed"`
}

type BatchMemberStatus struct {
	FileID int64  `json:"file_id"`
	JobID  string `json:"job_id,omitempty"`
	jobstate.Status
}

type BatchStatusResponse struct {
	BatchID   string              `json:"batch_id"`
	State     jobstate.State      `json:"state"`
	Current   int                 `json:"current"`
	Total     int                 `json:"total"`
	CreatedAt time.Time           `json:"created_at"`
	Members   []BatchMemberStatus `json:"members"`
}

type FileListResponse struct {
	Items []File `json:"items"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
}
