// Package redis connects the parse pipeline to Redis: the asynq job queue,
// the worker server, and the keyspaces for progress and batch membership.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/redis/config"
)

// Client holds the asynq client and inspector together with a plain Redis
// client for the progress and batch keyspaces. All three share one
// configuration.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	rdb       *goredis.Client
	cfg       *config.RedisConfig
	mu        sync.RWMutex
}

func connOpt(cfg *config.RedisConfig) (asynq.RedisClientOpt, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		TLSConfig:    tlsCfg,
	}, nil
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	opt, err := connOpt(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid redis tls configuration: %w", err)
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opt.Addr,
		Password:     opt.Password,
		DB:           opt.DB,
		DialTimeout:  opt.DialTimeout,
		ReadTimeout:  opt.ReadTimeout,
		WriteTimeout: opt.WriteTimeout,
		PoolSize:     opt.PoolSize,
		TLSConfig:    opt.TLSConfig,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		rdb:       rdb,
		cfg:       cfg,
	}, nil
}

// EnqueueTask enqueues task. Available options include:
//   - asynq.TaskID(id): Set the task id
//   - asynq.Queue(name): Specify queue name
//   - asynq.MaxRetry(n): Set maximum number of retries
//   - asynq.Timeout(d): Set task timeout duration
//   - asynq.Retention(d): Keep the completed task for d
func (c *Client) EnqueueTask(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return info, nil
}

// Inspector exposes the asynq inspector for task lookups.
func (c *Client) Inspector() *asynq.Inspector {
	return c.inspector
}

// Redis returns the plain Redis client.
func (c *Client) Redis() *goredis.Client {
	return c.rdb
}

func (c *Client) Config() *config.RedisConfig {
	return c.cfg
}

// Close closes every underlying connection and reports all failures.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := multierr.Combine(
		c.client.Close(),
		c.inspector.Close(),
		c.rdb.Close(),
	)
	if err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	return nil
}

// IsHealthy checks if the Redis connection is healthy
func (c *Client) IsHealthy(ctx context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.rdb.Ping(ctx).Err() == nil
}

// RetryWithBackoff implements exponential backoff for connection retries
func RetryWithBackoff(ctx context.Context, log *zap.Logger, operation func() error, maxRetries int, initialInterval time.Duration) error {
	var err error

	interval := initialInterval

	for i := 0; i < maxRetries; i++ {
		if err = operation(); err == nil {
			return nil
		}

		if i == maxRetries-1 {
			break
		}

		log.Warn("retry attempt failed",
			zap.Int("attempt", i+1),
			zap.Duration("next_in", interval),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		interval *= 2
	}

	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, err)
}
