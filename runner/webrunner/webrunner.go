// Package webrunner serves the HTTP API.
package webrunner

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/delivery"
	"github.com/Vector/vector-docparse/parsers"
	"github.com/Vector/vector-docparse/parsing"
	"github.com/Vector/vector-docparse/redis"
	"github.com/Vector/vector-docparse/runner"
	"github.com/Vector/vector-docparse/token"
	"github.com/Vector/vector-docparse/web"
	"github.com/Vector/vector-docparse/web/auth"
	"github.com/Vector/vector-docparse/web/handlers"
)

type webrunner struct {
	srv    *web.Server
	client *redis.Client
	db     io.Closer
	log    *zap.Logger
}

func New(ctx context.Context, cfg *runner.Config, log *zap.Logger) (runner.Runner, error) {
	key, err := token.LoadKey(cfg.TokenSecret)
	if err != nil {
		return nil, err
	}

	codec, err := token.New(key)
	if err != nil {
		return nil, err
	}

	keys, err := auth.ParseKeys(cfg.APIKeys)
	if err != nil {
		return nil, fmt.Errorf("invalid API_KEYS: %w", err)
	}

	files, db, err := runner.OpenFiles(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	blobs, err := runner.OpenBlobs(ctx, cfg, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	client, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	queue := redis.NewQueue(client,
		redis.NewProgressStore(client.Redis(), redis.DefaultProgressTTL),
		redis.WithQueueLogger(log.Named("queue")),
	)

	orchestrator := parsing.New(queue,
		redis.NewBatchStore(client.Redis(), cfg.Redis.RetentionPeriod),
		files,
		parsing.WithLogger(log.Named("parsing")),
	)

	svc := delivery.New(codec, files, blobs,
		delivery.WithTokenTTL(cfg.TokenTTL),
		delivery.WithChunkSize(cfg.ChunkSize),
		delivery.WithLogger(log.Named("delivery")),
	)

	group := handlers.NewHandlerGroup(handlers.Dependencies{
		Logger:        log.Named("api"),
		Files:         files,
		Blobs:         blobs,
		Parsing:       orchestrator,
		Delivery:      svc,
		Parsers:       parsers.Default(),
		MaxUploadSize: cfg.MaxUploadSize,
		Health: func(ctx context.Context) error {
			if !client.IsHealthy(ctx) {
				return errors.New("redis is unreachable")
			}

			return nil
		},
	})

	handler := web.Handler(group, web.Config{
		Keys:        keys,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log.Named("http"),
	})

	log.Info("api keys loaded", zap.Strings("users", keys.Users()))

	return &webrunner{
		srv:    web.New(handler, cfg.Addr, log.Named("http")),
		client: client,
		db:     db,
		log:    log,
	}, nil
}

func (w *webrunner) Run(ctx context.Context) error {
	return w.srv.Start(ctx)
}

func (w *webrunner) Close(context.Context) error {
	w.log.Info("shutting down web runner")

	return multierr.Combine(w.client.Close(), w.db.Close())
}
