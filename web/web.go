// Package web wires the HTTP API: routing, middleware and the server
// lifecycle.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/web/auth"
	"github.com/Vector/vector-docparse/web/handlers"
	"github.com/Vector/vector-docparse/web/middleware"
)

type Config struct {
	Addr        string
	Keys        *auth.Keys
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter builds the API routes.
func NewRouter(group *handlers.HandlerGroup, keys *auth.Keys, log *zap.Logger) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", group.Health.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	// token-gated, no API key
	api.HandleFunc("/files/download", group.Files.Download).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(auth.BearerTokenMiddleware(keys, log))

	route := func(method, path string, perm auth.Permission, h http.HandlerFunc) {
		protected.Handle(path, auth.RequirePermission(perm)(h)).Methods(method)
	}

	route(http.MethodPost, "/files/upload", auth.UploadFile, group.Files.Upload)
	route(http.MethodGet, "/files", auth.GetFiles, group.Files.List)
	route(http.MethodPost, "/files/batch-parse", auth.BatchParseFiles, group.Parse.BatchSubmit)
	route(http.MethodGet, "/files/batch-parse/{batch_id}/status", auth.GetBatchParseStatus, group.Parse.BatchStatus)
	route(http.MethodGet, "/files/{id:[0-9]+}", auth.GetFile, group.Files.Get)
	route(http.MethodPost, "/files/{id:[0-9]+}/delete", auth.DeleteFile, group.Files.Delete)
	route(http.MethodGet, "/files/{id:[0-9]+}/download", auth.DownloadFile, group.Files.DownloadToken)
	route(http.MethodPost, "/files/{id:[0-9]+}/parse", auth.ParseFile, group.Parse.Submit)
	route(http.MethodGet, "/files/{id:[0-9]+}/parse/status", auth.GetParseStatus, group.Parse.Status)
	route(http.MethodPost, "/files/{id:[0-9]+}/parse/{task_id}/cancel", auth.CancelTask, group.Parse.Cancel)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		auth.SendError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		auth.SendError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}

// Handler wraps the router with the global middleware.
func Handler(group *handlers.HandlerGroup, cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	mws := []func(http.Handler) http.Handler{
		middleware.Recover(log),
		middleware.RequestLogger(log),
		middleware.SecurityHeaders,
	}

	if len(cfg.CORSOrigins) > 0 {
		mws = append(mws, middleware.CORS(cfg.CORSOrigins))
	}

	return middleware.Chain(NewRouter(group, cfg.Keys, log), mws...)
}

type Server struct {
	srv *http.Server
	log *zap.Logger
}

func New(handler http.Handler, addr string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		log: log,
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("http shutdown", zap.Error(err))
		}
	}()

	s.log.Info("http server listening", zap.String("addr", s.srv.Addr))

	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
