package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vector/vector-docparse/blobstore"
	"github.com/Vector/vector-docparse/delivery"
	"github.com/Vector/vector-docparse/jobstate"
	"github.com/Vector/vector-docparse/memory"
	"github.com/Vector/vector-docparse/models"
	"github.com/Vector/vector-docparse/parsing"
	"github.com/Vector/vector-docparse/token"
	"github.com/Vector/vector-docparse/web/auth"
	"github.com/Vector/vector-docparse/web/handlers"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type env struct {
	handler http.Handler
	files   *memory.FileRepository
	blobs   *blobstore.MemoryStore
	queue   *memory.Queue
	clock   *clock
	health  error
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		files: memory.NewFileRepository(),
		blobs: blobstore.NewMemoryStore(),
		queue: memory.NewQueue(),
		clock: &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}

	codec, err := token.New([]byte(strings.Repeat("s", 32)), token.WithClock(e.clock.Now))
	require.NoError(t, err)

	keys, err := auth.ParseKeys("alice-key=alice:*,bob-key=bob:*,reader-key=alice:GET_FILES")
	require.NoError(t, err)

	group := handlers.NewHandlerGroup(handlers.Dependencies{
		Files:    e.files,
		Blobs:    e.blobs,
		Parsing:  parsing.New(e.queue, memory.NewBatchStore(), e.files),
		Delivery: delivery.New(codec, e.files, e.blobs, delivery.WithTokenTTL(60*time.Second), delivery.WithChunkSize(4)),
		Health:   func(context.Context) error { return e.health },
	})

	e.handler = Handler(group, Config{Keys: keys})

	return e
}

func (e *env) do(t *testing.T, method, path, key string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	return rr
}

func (e *env) upload(t *testing.T, key, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return e.do(t, http.MethodPost, "/api/v1/files/upload", key, &buf, mw.FormDataContentType())
}

func (e *env) seed(t *testing.T, owner, filename, content string) models.File {
	t.Helper()

	f := models.File{
		Filename:   filename,
		Size:       int64(len(content)),
		StorageKey: "uploads/" + owner + "/" + filename,
		OwnerID:    owner,
	}

	require.NoError(t, e.blobs.Put(context.Background(), f.StorageKey, strings.NewReader(content), f.Size, "text/plain"))
	require.NoError(t, e.files.Create(context.Background(), &f))

	return f
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())

	return v
}

func TestHealth(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	e.health = errors.New("redis down")
	rr = e.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestAuthentication(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodGet, "/api/v1/files", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/v1/files", "nope", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/v1/files", "reader-key", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodPost, "/api/v1/files/1/parse", "reader-key", nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "missing permission")
}

func TestUploadListGetDelete(t *testing.T) {
	e := newEnv(t)

	rr := e.upload(t, "alice-key", "data.json", `{"a":1}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	created := decode[models.File](t, rr)
	assert.Positive(t, created.ID)
	assert.Equal(t, "data.json", created.Filename)
	assert.Equal(t, "alice", created.OwnerID)
	assert.Equal(t, int64(7), created.Size)
	assert.Equal(t, "application/json", created.ContentType)
	require.Len(t, e.blobs.Keys(), 1)
	assert.True(t, strings.HasPrefix(e.blobs.Keys()[0], "uploads/alice/"))
	assert.True(t, strings.HasSuffix(e.blobs.Keys()[0], ".json"))

	rr = e.upload(t, "alice-key", "virus.exe", "MZ")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Len(t, e.blobs.Keys(), 1)

	e.upload(t, "alice-key", "second.txt", "two")
	e.upload(t, "bob-key", "bob.txt", "bob")

	rr = e.do(t, http.MethodGet, "/api/v1/files?page=1&size=1", "alice-key", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[models.FileListResponse](t, rr)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "second.txt", list.Items[0].Filename)

	rr = e.do(t, http.MethodGet, "/api/v1/files?size=500", "alice-key", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	path := fmt.Sprintf("/api/v1/files/%d", created.ID)

	rr = e.do(t, http.MethodGet, path, "alice-key", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "uploads/", "storage key stays internal")

	rr = e.do(t, http.MethodGet, path, "bob-key", nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/v1/files/9999", "alice-key", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodPost, path+"/delete", "alice-key", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, e.blobs.Keys(), 2)

	rr = e.do(t, http.MethodGet, path, "alice-key", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDownloadWithToken(t *testing.T) {
	e := newEnv(t)
	f := e.seed(t, "alice", "Отчёт 2024.txt", "hello, streamed world")

	rr := e.do(t, http.MethodGet, fmt.Sprintf("/api/v1/files/%d/download", f.ID), "bob-key", nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodGet, fmt.Sprintf("/api/v1/files/%d/download", f.ID), "alice-key", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[models.DownloadTokenResponse](t, rr)
	assert.Equal(t, int64(60), resp.ExpiresIn)
	require.NotEmpty(t, resp.Token)

	e.clock.t = e.clock.t.Add(30 * time.Second)

	rr = e.do(t, http.MethodGet, "/api/v1/files/download?token="+resp.Token, "", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello, streamed world", rr.Body.String())
	assert.Equal(t, "attachment; filename*=UTF-8''%D0%9E%D1%82%D1%87%D1%91%D1%82%202024.txt", rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "21", rr.Header().Get("Content-Length"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.True(t, rr.Flushed)

	rr = e.do(t, http.MethodGet, "/api/v1/files/download?token=garbage", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	tampered := resp.Token[:len(resp.Token)-1] + flip(resp.Token[len(resp.Token)-1])
	rr = e.do(t, http.MethodGet, "/api/v1/files/download?token="+tampered, "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/v1/files/download", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	e.clock.t = e.clock.t.Add(31 * time.Second)

	rr = e.do(t, http.MethodGet, "/api/v1/files/download?token="+resp.Token, "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "expired")
}

func flip(c byte) string {
	if c == 'A' {
		return "B"
	}

	return "A"
}

func TestDownloadMissingBlob(t *testing.T) {
	e := newEnv(t)
	f := e.seed(t, "alice", "notes.txt", "x")
	require.NoError(t, e.blobs.Delete(context.Background(), f.StorageKey))

	rr := e.do(t, http.MethodGet, fmt.Sprintf("/api/v1/files/%d/download", f.ID), "alice-key", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[models.DownloadTokenResponse](t, rr)

	rr = e.do(t, http.MethodGet, "/api/v1/files/download?token="+resp.Token, "", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestParseFlow(t *testing.T) {
	e := newEnv(t)

	var f models.File
	for i := 0; i < 42; i++ {
		f = e.seed(t, "alice", fmt.Sprintf("doc%d.txt", i), "text")
	}
	require.Equal(t, int64(42), f.ID)

	rr := e.do(t, http.MethodPost, "/api/v1/files/42/parse", "alice-key", nil, "")
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"job_id":"j1","file_id":42}`, rr.Body.String())

	e.queue.SetStatus("j1", jobstate.RawStatus{State: jobstate.RawProgress, Info: map[string]any{"current": 30, "total": 100}})

	rr = e.do(t, http.MethodGet, "/api/v1/files/42/parse/status?task_id=j1", "alice-key", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	st := decode[models.JobStatusResponse](t, rr)
	assert.Equal(t, jobstate.StateRunning, st.State)
	assert.Equal(t, 30, st.Current)
	assert.Equal(t, 100, st.Total)

	rr = e.do(t, http.MethodGet, "/api/v1/files/42/parse/status", "alice-key", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/v1/files/42/parse/status?task_id=j1", "bob-key", nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/v1/files/41/parse/status?task_id=j1", "alice-key", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodPost, "/api/v1/files/42/parse/j1/cancel", "alice-key", nil, "")
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = e.do(t, http.MethodPost, "/api/v1/files/999/parse", "alice-key", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	e.queue.FailEnqueue(41, errors.New("broker unreachable"))
	rr = e.do(t, http.MethodPost, "/api/v1/files/41/parse", "alice-key", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestParseUnsupportedType(t *testing.T) {
	e := newEnv(t)
	f := e.seed(t, "alice", "image.png", "png")

	rr := e.do(t, http.MethodPost, fmt.Sprintf("/api/v1/files/%d/parse", f.ID), "alice-key", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, e.queue.Requests())
}

func TestBatchParse(t *testing.T) {
	e := newEnv(t)
	a := e.seed(t, "alice", "a.txt", "a")
	b := e.seed(t, "alice", "b.txt", "b")
	c := e.seed(t, "alice", "c.txt", "c")

	e.queue.FailEnqueue(b.ID, errors.New("broker unreachable"))

	body := fmt.Sprintf("[%d, %d, %d]", a.ID, b.ID, c.ID)
	rr := e.do(t, http.MethodPost, "/api/v1/files/batch-parse", "alice-key", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	sub := decode[models.BatchParseResponse](t, rr)
	assert.NotEmpty(t, sub.BatchID)
	assert.Equal(t, []int64{b.ID}, sub.Failed)
	require.Len(t, sub.Members, 3)
	assert.NotEmpty(t, sub.Members[0].JobID)
	assert.Empty(t, sub.Members[1].JobID)
	assert.NotEmpty(t, sub.Members[1].Error)

	rr = e.do(t, http.MethodGet, "/api/v1/files/batch-parse/"+sub.BatchID+"/status", "alice-key", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	st := decode[models.BatchStatusResponse](t, rr)
	assert.Equal(t, jobstate.StateFailed, st.State)
	require.Len(t, st.Members, 3)
	assert.Equal(t, jobstate.StatePending, st.Members[0].State)
	assert.Equal(t, jobstate.StateFailed, st.Members[1].State)
	assert.Equal(t, jobstate.StatePending, st.Members[2].State)
	assert.Equal(t, 200, st.Total)

	rr = e.do(t, http.MethodGet, "/api/v1/files/batch-parse/"+sub.BatchID+"/status", "bob-key", nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/v1/files/batch-parse/nope/status", "alice-key", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	obj := fmt.Sprintf(`{"file_ids":[%d]}`, a.ID)
	rr = e.do(t, http.MethodPost, "/api/v1/files/batch-parse", "alice-key", strings.NewReader(obj), "application/json")
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Empty(t, decode[models.BatchParseResponse](t, rr).Failed)

	before := len(e.queue.Requests())
	rr = e.do(t, http.MethodPost, "/api/v1/files/batch-parse", "alice-key", strings.NewReader("[]"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Len(t, e.queue.Requests(), before)

	rr = e.do(t, http.MethodPost, "/api/v1/files/batch-parse", "alice-key", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodGet, "/api/v1/nothing", "alice-key", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodPost, "/health", "", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
