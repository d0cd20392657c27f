package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/blobstore"
	"github.com/Vector/vector-docparse/delivery"
	"github.com/Vector/vector-docparse/models"
	"github.com/Vector/vector-docparse/parsing"
	"github.com/Vector/vector-docparse/token"
	"github.com/Vector/vector-docparse/web/auth"
)

func renderJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	_ = json.NewEncoder(w).Encode(data)
}

func renderMessage(w http.ResponseWriter, code int, message string) {
	renderJSON(w, code, models.APIError{Code: code, Message: message})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		validation *parsing.ValidationError
		upstream   *parsing.UpstreamError
		tokErr     *token.TokenError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &tokErr):
		if tokErr.Reason == token.Malformed {
			return http.StatusBadRequest
		}

		return http.StatusUnauthorized
	case errors.Is(err, parsing.ErrNotFound),
		errors.Is(err, delivery.ErrNotFound),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, blobstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, parsing.ErrAccessDenied), errors.Is(err, delivery.ErrAccessDenied):
		return http.StatusForbidden
	case errors.As(err, &upstream):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func renderError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := statusFor(err)

	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		msg = http.StatusText(code)
	}

	renderMessage(w, code, msg)
}

// requester returns the authenticated user or writes a 401.
func requester(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderMessage(w, http.StatusUnauthorized, "User not authenticated")
		return "", false
	}

	return userID, true
}

// fileID reads the {id} route variable or writes a 400.
func fileID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		renderMessage(w, http.StatusBadRequest, "Invalid file ID")
		return 0, false
	}

	return id, true
}
