package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/blobstore"
	"github.com/Vector/vector-docparse/delivery"
	"github.com/Vector/vector-docparse/models"
)

const maxMultipartMemory = 8 << 20

func storageKey(ownerID, filename string) string {
	return fmt.Sprintf("uploads/%s/%s%s", url.PathEscape(ownerID), uuid.NewString(), strings.ToLower(path.Ext(filename)))
}

// Upload stores a multipart "file" field as a new file owned by the caller.
func (h *FileHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Deps.MaxUploadSize)

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			renderMessage(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}

		renderMessage(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())

		return
	}

	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	part, header, err := r.FormFile("file")
	if err != nil {
		renderMessage(w, http.StatusBadRequest, "missing file field")
		return
	}

	defer part.Close()

	filename := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if filename == "" || filename == "." || filename == "/" {
		renderMessage(w, http.StatusBadRequest, "missing filename")
		return
	}

	if !h.Deps.Parsers.IsSupported(filename) {
		renderMessage(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q", path.Ext(filename)))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(filename)); byExt != "" {
			contentType = byExt
		}
	}

	file := &models.File{
		Filename:    filename,
		ContentType: contentType,
		Size:        header.Size,
		StorageKey:  storageKey(userID, filename),
		OwnerID:     userID,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.Deps.Blobs.Put(r.Context(), file.StorageKey, part, header.Size, contentType); err != nil {
		h.Deps.Logger.Error("failed to store upload", zap.String("key", file.StorageKey), zap.Error(err))
		renderMessage(w, http.StatusServiceUnavailable, "failed to store file")

		return
	}

	if err := h.Deps.Files.Create(r.Context(), file); err != nil {
		if derr := h.Deps.Blobs.Delete(r.Context(), file.StorageKey); derr != nil {
			h.Deps.Logger.Warn("failed to remove orphaned upload", zap.String("key", file.StorageKey), zap.Error(derr))
		}

		renderError(w, h.Deps.Logger, err)

		return
	}

	h.Deps.Logger.Info("file uploaded",
		zap.Int64("file_id", file.ID),
		zap.String("owner_id", userID),
		zap.Int64("size", file.Size),
	)

	renderJSON(w, http.StatusCreated, file)
}

// List returns the caller's files, newest first.
func (h *FileHandlers) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil {
		renderMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	size, err := queryInt(r, "size", 20)
	if err != nil {
		renderMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := models.Page(page, size); err != nil {
		renderMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.Deps.Files.List(r.Context(), userID, page, size)
	if err != nil {
		renderError(w, h.Deps.Logger, err)
		return
	}

	renderJSON(w, http.StatusOK, models.FileListResponse{Items: items, Total: total, Page: page, Size: size})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}

	return n, nil
}

// owned loads a file and checks the caller owns it, writing the error
// response when it does not.
func (h *FileHandlers) owned(w http.ResponseWriter, r *http.Request) (models.File, bool) {
	userID, ok := requester(w, r)
	if !ok {
		return models.File{}, false
	}

	id, ok := fileID(w, r)
	if !ok {
		return models.File{}, false
	}

	file, err := h.Deps.Files.Get(r.Context(), id)
	if err != nil {
		renderError(w, h.Deps.Logger, err)
		return models.File{}, false
	}

	if file.OwnerID != userID {
		renderMessage(w, http.StatusForbidden, "Access denied")
		return models.File{}, false
	}

	return file, true
}

func (h *FileHandlers) Get(w http.ResponseWriter, r *http.Request) {
	file, ok := h.owned(w, r)
	if !ok {
		return
	}

	renderJSON(w, http.StatusOK, file)
}

// Delete removes the metadata first, then the blob.
func (h *FileHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	file, ok := h.owned(w, r)
	if !ok {
		return
	}

	if err := h.Deps.Files.Delete(r.Context(), file.ID); err != nil {
		renderError(w, h.Deps.Logger, err)
		return
	}

	if err := h.Deps.Blobs.Delete(r.Context(), file.StorageKey); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		h.Deps.Logger.Warn("failed to delete blob", zap.Int64("file_id", file.ID), zap.Error(err))
	}

	h.Deps.Logger.Info("file deleted", zap.Int64("file_id", file.ID))

	renderJSON(w, http.StatusOK, map[string]any{"id": file.ID, "deleted": true})
}

// DownloadToken issues a short-lived token for the caller's file.
func (h *FileHandlers) DownloadToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	id, ok := fileID(w, r)
	if !ok {
		return
	}

	tok, ttl, err := h.Deps.Delivery.IssueToken(r.Context(), id, userID)
	if err != nil {
		renderError(w, h.Deps.Logger, err)
		return
	}

	renderJSON(w, http.StatusOK, models.DownloadTokenResponse{Token: tok, ExpiresIn: int64(ttl / time.Second)})
}

// Download streams the file granted by the token query parameter. It needs
// no other authentication.
func (h *FileHandlers) Download(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		renderMessage(w, http.StatusBadRequest, "missing token")
		return
	}

	sink := &httpSink{w: w}

	err := h.Deps.Delivery.Stream(r.Context(), tok, sink)
	if err == nil {
		return
	}

	if sink.started {
		h.Deps.Logger.Info("download aborted", zap.Error(err))
		return
	}

	renderError(w, h.Deps.Logger, err)
}

// httpSink writes a delivery stream as an attachment response, flushing
// after every chunk.
type httpSink struct {
	w       http.ResponseWriter
	started bool
}

func (s *httpSink) Begin(meta delivery.Metadata) error {
	hdr := s.w.Header()
	hdr.Set("Content-Type", meta.ContentType)
	hdr.Set("Content-Disposition", delivery.ContentDisposition(meta.Filename))
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set("Cache-Control", "no-store")

	if meta.Size >= 0 {
		hdr.Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}

	s.w.WriteHeader(http.StatusOK)
	s.started = true

	return nil
}

func (s *httpSink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		return n, err
	}

	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}

	return n, nil
}
