package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/redis/config"
)

// Server wraps the asynq worker server.
type Server struct {
	server *asynq.Server
	client *Client
	cfg    *config.RedisConfig
	log    *zap.Logger
	mu     sync.RWMutex
}

// NewServer creates a worker server. client is used for health checks.
func NewServer(cfg *config.RedisConfig, client *Client, log *zap.Logger) (*Server, error) {
	opt, err := connOpt(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid redis tls configuration: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	queues := cfg.QueuePriorities
	if len(queues) == 0 {
		queues = config.Priorities(cfg.QueueName)
	}

	srv := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency:    cfg.Workers,
			RetryDelayFunc: retryDelay(cfg, log),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				id, _ := asynq.GetTaskID(ctx)
				log.Warn("task failed", zap.String("type", task.Type()), zap.String("task_id", id), zap.Error(err))
			}),
			Logger:          log.Sugar(),
			Queues:          queues,
			StrictPriority:  true,
			ShutdownTimeout: 30 * time.Second,
		},
	)

	return &Server{
		server: srv,
		client: client,
		cfg:    cfg,
		log:    log,
	}, nil
}

func retryDelay(cfg *config.RedisConfig, log *zap.Logger) asynq.RetryDelayFunc {
	return func(n int, err error, task *asynq.Task) time.Duration {
		delay := time.Duration(1<<uint(min(n, 16))) * time.Second
		if cfg.RetryInterval > 0 && delay > cfg.RetryInterval {
			delay = cfg.RetryInterval
		}

		log.Info("task retry scheduled",
			zap.String("type", task.Type()),
			zap.Int("attempt", n),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		return delay
	}
}

// Start starts the server with the provided handler
func (s *Server) Start(ctx context.Context, handler asynq.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.server.Start(handler); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	go s.monitorHealth(ctx)

	return nil
}

// Shutdown waits for active tasks up to the shutdown timeout and stops.
func (s *Server) Shutdown(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.server.Shutdown()

	return nil
}

func (s *Server) IsHealthy(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil {
		return true
	}

	return s.client.IsHealthy(ctx)
}

func (s *Server) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.IsHealthy(ctx) {
				s.log.Warn("redis is not healthy")
			}
		}
	}
}
