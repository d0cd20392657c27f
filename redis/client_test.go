package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/parsing"
	"github.com/Vector/vector-docparse/redis/config"
	"github.com/Vector/vector-docparse/testcontainers"
)

func testConfig(rc *testcontainers.RedisConfig) *config.RedisConfig {
	return &config.RedisConfig{
		Host:            rc.Host,
		Port:            rc.Port,
		Password:        rc.Password,
		Workers:         2,
		RetryInterval:   time.Second,
		MaxRetries:      0,
		RetentionPeriod: time.Hour,
		TaskTimeout:     time.Minute,
		QueueName:       "parse",
		QueuePriorities: config.Priorities("parse"),
	}
}

func TestClient(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testcontainers.WithTestContext(t, func(tc *testcontainers.TestContext) {
		cfg := testConfig(tc.UseRedis())

		t.Run("connects and reports health", func(t *testing.T) {
			client, err := NewClient(tc.Context(), cfg)
			require.NoError(t, err)
			defer client.Close()

			assert.True(t, client.IsHealthy(tc.Context()))
		})

		t.Run("handles connection failures", func(t *testing.T) {
			bad := *cfg
			bad.Host = "nonexistent"

			ctx, cancel := context.WithTimeout(tc.Context(), 10*time.Second)
			defer cancel()

			client, err := NewClient(ctx, &bad)
			assert.Error(t, err)
			assert.Nil(t, client)
		})

		t.Run("progress store", func(t *testing.T) {
			client, err := NewClient(tc.Context(), cfg)
			require.NoError(t, err)
			defer client.Close()

			store := NewProgressStore(client.Redis(), time.Minute)

			_, ok, err := store.Load(tc.Context(), "j1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Report(tc.Context(), "j1", 30, 100, "parsing"))

			p, ok, err := store.Load(tc.Context(), "j1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, Progress{Current: 30, Total: 100, Status: "parsing"}, p)

			ttl, err := client.Redis().TTL(tc.Context(), progressKey("j1")).Result()
			require.NoError(t, err)
			assert.Positive(t, ttl)

			require.NoError(t, store.Clear(tc.Context(), "j1"))
			_, ok, err = store.Load(tc.Context(), "j1")
			require.NoError(t, err)
			assert.False(t, ok)
		})

		t.Run("batch store", func(t *testing.T) {
			client, err := NewClient(tc.Context(), cfg)
			require.NoError(t, err)
			defer client.Close()

			store := NewBatchStore(client.Redis(), time.Hour)

			_, err = store.LoadBatch(tc.Context(), "missing")
			assert.ErrorIs(t, err, parsing.ErrNotFound)

			b := parsing.Batch{
				BatchID:     "b1",
				RequesterID: "alice",
				CreatedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
				Members: []parsing.BatchMember{
					{FileID: 1, JobID: "j1"},
					{FileID: 2, SubmitError: "not found"},
				},
			}
			require.NoError(t, store.SaveBatch(tc.Context(), b))

			got, err := store.LoadBatch(tc.Context(), "b1")
			require.NoError(t, err)
			assert.Equal(t, b, got)
		})

		t.Run("queue round trip", func(t *testing.T) {
			client, err := NewClient(tc.Context(), cfg)
			require.NoError(t, err)
			defer client.Close()

			q := NewQueue(client, NewProgressStore(client.Redis(), time.Minute), WithQueueLogger(zap.NewNop()))

			id, err := q.Enqueue(tc.Context(), parsing.JobRequest{
				FileID:      7,
				RequesterID: "alice",
				StorageKey:  "uploads/7/notes.txt",
				Filename:    "notes.txt",
			})
			require.NoError(t, err)
			assert.NotEmpty(t, id)

			job, err := q.Poll(tc.Context(), id)
			require.NoError(t, err)
			assert.Equal(t, int64(7), job.FileID)
			assert.Equal(t, "alice", job.RequesterID)
			assert.Equal(t, "PENDING", job.Raw.State)

			require.NoError(t, q.Cancel(tc.Context(), id))

			_, err = q.Poll(tc.Context(), id)
			assert.ErrorIs(t, err, parsing.ErrJobNotFound)

			_, err = q.Poll(tc.Context(), "never-enqueued")
			assert.ErrorIs(t, err, parsing.ErrJobNotFound)
		})
	})
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), zap.NewNop(), func() error {
			calls++
			if calls < 3 {
				return errors.New("not yet")
			}
			return nil
		}, 5, time.Millisecond)

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), zap.NewNop(), func() error {
			calls++
			return errors.New("down")
		}, 3, time.Millisecond)

		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Contains(t, err.Error(), "after 3 retries")
	})

	t.Run("stops on context cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := RetryWithBackoff(ctx, zap.NewNop(), func() error {
			return errors.New("down")
		}, 3, time.Hour)

		assert.ErrorIs(t, err, context.Canceled)
	})
}
