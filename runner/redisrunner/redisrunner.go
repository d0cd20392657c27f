// Package redisrunner runs the asynq worker that parses documents.
package redisrunner

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/bus"
	"github.com/Vector/vector-docparse/redis"
	"github.com/Vector/vector-docparse/redis/config"
	"github.com/Vector/vector-docparse/redis/tasks"
	"github.com/Vector/vector-docparse/runner"
	"github.com/Vector/vector-docparse/tlmt"
)

// RedisRunner implements the runner.Runner interface for Redis-backed task processing.
type RedisRunner struct {
	cfg       *config.RedisConfig
	server    *redis.Server
	client    *redis.Client
	events    *bus.Client
	mux       *asynq.ServeMux
	telemetry tlmt.Telemetry
	log       *zap.Logger
}

// New creates a new RedisRunner from the provided configuration.
func New(ctx context.Context, cfg *runner.Config, log *zap.Logger) (*RedisRunner, error) {
	blobs, err := runner.OpenBlobs(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	client, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	server, err := redis.NewServer(cfg.Redis, client, log.Named("asynq"))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create redis server: %w", err)
	}

	opts := []tasks.HandlerOption{
		tasks.WithTaskTimeout(cfg.Redis.TaskTimeout),
		tasks.WithProgress(redis.NewProgressStore(client.Redis(), redis.DefaultProgressTTL)),
		tasks.WithTelemetry(runner.Telemetry()),
		tasks.WithLogger(log.Named("tasks")),
	}

	var events *bus.Client

	if cfg.NATSURL != "" {
		events, err = bus.Connect(cfg.NATSURL, cfg.NATSPrefix)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}

		opts = append(opts, tasks.WithEvents(events))
	}

	handler := tasks.NewHandler(blobs, opts...)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeParseDocument, handler)
	mux.Handle(tasks.TypeHealthCheck, handler)

	return &RedisRunner{
		cfg:       cfg.Redis,
		server:    server,
		client:    client,
		events:    events,
		mux:       mux,
		telemetry: runner.Telemetry(),
		log:       log,
	}, nil
}

// Run starts the Redis runner and begins processing tasks.
func (r *RedisRunner) Run(ctx context.Context) error {
	r.log.Info("starting worker",
		zap.Int("workers", r.cfg.Workers),
		zap.String("queue", r.cfg.QueueName),
	)

	if err := r.server.Start(ctx, r.mux); err != nil {
		return err
	}

	if err := r.enqueueHealthCheck(ctx); err != nil {
		r.log.Warn("failed to enqueue health check", zap.Error(err))
	}

	_ = r.telemetry.Send(ctx, tlmt.NewEvent(tlmt.EventWorkerStarted, map[string]any{
		"workers": r.cfg.Workers,
	}))

	<-ctx.Done()

	return nil
}

// Close gracefully shuts down the Redis runner.
func (r *RedisRunner) Close(ctx context.Context) error {
	r.log.Info("shutting down worker")

	err := r.server.Shutdown(ctx)

	if r.events != nil {
		r.events.Close()
	}

	err = multierr.Append(err, r.client.Close())

	r.log.Info("worker shutdown complete")

	return err
}

// enqueueHealthCheck puts a no-op task on the default queue so the first
// processed task confirms the worker is consuming.
func (r *RedisRunner) enqueueHealthCheck(ctx context.Context) error {
	_, err := r.client.EnqueueTask(ctx, asynq.NewTask(tasks.TypeHealthCheck, nil), asynq.Queue("default"))
	return err
}
