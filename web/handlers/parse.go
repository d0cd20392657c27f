package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Vector/vector-docparse/models"
	"github.com/Vector/vector-docparse/parsing"
)

const maxBatchBody = 1 << 20

// Submit enqueues a parse job for one file.
func (h *ParseHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	id, ok := fileID(w, r)
	if !ok {
		return
	}

	jobID, err := h.Deps.Parsing.SubmitParse(r.Context(), parsing.ParseRequest{FileID: id, RequesterID: userID})
	if err != nil {
		renderError(w, h.Deps.Logger, err)
		return
	}

	renderJSON(w, http.StatusAccepted, models.ParseResponse{JobID: jobID, FileID: id})
}

// Status reports the job named by the task_id query parameter.
func (h *ParseHandlers) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	id, ok := fileID(w, r)
	if !ok {
		return
	}

	jobID := r.URL.Query().Get("task_id")
	if jobID == "" {
		renderMessage(w, http.StatusBadRequest, "missing task_id")
		return
	}

	job, err := h.Deps.Parsing.GetStatus(r.Context(), jobID, id, userID)
	if err != nil {
		renderError(w, h.Deps.Logger, err)
		return
	}

	renderJSON(w, http.StatusOK, models.JobStatusResponse{JobID: job.JobID, FileID: job.FileID, Status: job.Status})
}

func (h *ParseHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	id, ok := fileID(w, r)
	if !ok {
		return
	}

	jobID := mux.Vars(r)["task_id"]

	if err := h.Deps.Parsing.Cancel(r.Context(), jobID, id, userID); err != nil {
		renderError(w, h.Deps.Logger, err)
		return
	}

	renderJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID, "file_id": id, "cancel_requested": true})
}

// decodeFileIDs accepts either a bare JSON array of ids or an object with a
// file_ids field.
func decodeFileIDs(body io.Reader) ([]int64, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxBatchBody))
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '[' {
		var ids []int64
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil, err
		}

		return ids, nil
	}

	var req models.BatchParseRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}

	return req.FileIDs, nil
}

// BatchSubmit enqueues one job per file. A partially submitted batch is
// still accepted and lists the file ids that could not be enqueued.
func (h *ParseHandlers) BatchSubmit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	ids, err := decodeFileIDs(r.Body)
	if err != nil {
		renderMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sub, err := h.Deps.Parsing.SubmitBatch(r.Context(), parsing.BatchRequest{FileIDs: ids, RequesterID: userID})
	if err != nil {
		renderError(w, h.Deps.Logger, err)
		return
	}

	resp := models.BatchParseResponse{
		BatchID: sub.BatchID,
		Members: make([]models.BatchMemberResponse, len(sub.Members)),
		Failed:  []int64{},
	}

	for i, m := range sub.Members {
		resp.Members[i] = models.BatchMemberResponse{FileID: m.FileID, JobID: m.JobID, Error: m.SubmitError}
	}

	if partial := sub.Partial(); partial != nil {
		resp.Failed = partial.FileIDs()
	}

	renderJSON(w, http.StatusAccepted, resp)
}

func (h *ParseHandlers) BatchStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	st, err := h.Deps.Parsing.GetBatchStatus(r.Context(), mux.Vars(r)["batch_id"], userID)
	if err != nil {
		renderError(w, h.Deps.Logger, err)
		return
	}

	resp := models.BatchStatusResponse{
		BatchID:   st.BatchID,
		State:     st.State,
		Current:   st.Current,
		Total:     st.Total,
		CreatedAt: st.CreatedAt,
		Members:   make([]models.BatchMemberStatus, len(st.Members)),
	}

	for i, m := range st.Members {
		resp.Members[i] = models.BatchMemberStatus{FileID: m.FileID, JobID: m.JobID, Status: m.Status}
	}

	renderJSON(w, http.StatusOK, resp)
}
