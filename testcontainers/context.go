// Package testcontainers starts the Docker-backed services used by the
// integration tests: Redis for the task queue, PostgreSQL for file metadata
// and MinIO as an S3 endpoint for blob storage.
//
// Services are started on demand so a test only pays for what it uses:
//
//	func TestQueue(t *testing.T) {
//	    testcontainers.WithTestContext(t, func(tc *testcontainers.TestContext) {
//	        cfg := tc.UseRedis()
//	        // tc.Redis is ready
//	    })
//	}
//
// Prerequisites:
//   - Docker must be installed and running
//   - Network access to pull Docker images
//
// Environment Variables:
//   - TESTCONTAINERS_RYUK_DISABLED: Set to "true" to disable Ryuk (container cleanup)
//   - DOCKER_HOST: Custom Docker host (optional)
package testcontainers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/redis/go-redis/v9"
)

const (
	// defaultTimeout bounds container startup including image pulls
	defaultTimeout = 3 * time.Minute
)

// TestContext owns the containers and clients started for one test and
// releases them in reverse order on Cleanup.
type TestContext struct {
	t *testing.T

	ctx        context.Context
	cancelFunc context.CancelFunc
	cleanup    []func()

	Redis *redis.Client // set by UseRedis
	DB    *sql.DB       // set by UsePostgres

	RedisConfig    *RedisConfig
	PostgresConfig *PostgresConfig
	S3Config       *S3Config
}

// NewTestContext creates an empty test context. No container is started
// until one of the Use methods is called.
func NewTestContext(t *testing.T) *TestContext {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)

	return &TestContext{
		t:          t,
		ctx:        ctx,
		cancelFunc: cancel,
		cleanup:    make([]func(), 0),
	}
}

// WithTestContext runs fn with a fresh test context and always cleans up,
// even if fn panics.
func WithTestContext(t *testing.T, fn func(*TestContext)) {
	t.Helper()
	ctx := NewTestContext(t)
	defer ctx.Cleanup()
	fn(ctx)
}

// Context is cancelled when the test context is cleaned up or times out.
func (tc *TestContext) Context() context.Context {
	return tc.ctx
}

// Cleanup performs cleanup of all resources in reverse order of creation.
func (tc *TestContext) Cleanup() {
	for i := len(tc.cleanup) - 1; i >= 0; i-- {
		tc.cleanup[i]()
	}
	tc.cancelFunc()
}

func (tc *TestContext) addCleanup(fn func()) {
	tc.cleanup = append(tc.cleanup, fn)
}

type terminator interface {
	Terminate(ctx context.Context) error
}

func (tc *TestContext) terminateOnCleanup(name string, c terminator) {
	tc.addCleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			tc.t.Errorf("Failed to terminate %s container: %v", name, err)
		}
	})
}

// UseRedis starts Redis once and returns its connection settings.
func (tc *TestContext) UseRedis() *RedisConfig {
	tc.t.Helper()

	if tc.RedisConfig != nil {
		return tc.RedisConfig
	}

	container, err := NewRedisContainer(tc.ctx)
	if err != nil {
		tc.t.Fatalf("Failed to initialize Redis: %v", err)
	}

	tc.terminateOnCleanup("Redis", container)

	tc.Redis = redis.NewClient(&redis.Options{Addr: container.GetAddress()})
	tc.addCleanup(func() {
		if err := tc.Redis.Close(); err != nil {
			tc.t.Errorf("Failed to close Redis client: %v", err)
		}
	})

	tc.RedisConfig = &RedisConfig{Host: container.at.Host, Port: container.at.Port}

	return tc.RedisConfig
}

// UsePostgres starts PostgreSQL once and opens tc.DB through the pgx driver.
func (tc *TestContext) UsePostgres() *PostgresConfig {
	tc.t.Helper()

	if tc.PostgresConfig != nil {
		return tc.PostgresConfig
	}

	container, err := NewPostgresContainer(tc.ctx)
	if err != nil {
		tc.t.Fatalf("Failed to initialize Postgres: %v", err)
	}

	tc.terminateOnCleanup("Postgres", container)

	cfg := container.Config()

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		tc.t.Fatalf("Failed to open database: %v", err)
	}

	tc.DB = db
	tc.addCleanup(func() {
		_ = db.Close()
	})

	tc.PostgresConfig = cfg

	return cfg
}

// UseS3 starts MinIO once and returns its endpoint and credentials.
func (tc *TestContext) UseS3() *S3Config {
	tc.t.Helper()

	if tc.S3Config != nil {
		return tc.S3Config
	}

	container, err := NewMinioContainer(tc.ctx)
	if err != nil {
		tc.t.Fatalf("Failed to initialize MinIO: %v", err)
	}

	tc.terminateOnCleanup("MinIO", container)

	tc.S3Config = container.Config()

	return tc.S3Config
}
