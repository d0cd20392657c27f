package runner

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()

	for _, k := range []string{
		"RUN_MODE", "ADDR", "DEBUG", "DATABASE_URL", "DATA_FOLDER", "S3_BUCKET", "S3_ENDPOINT",
		"DOWNLOAD_TOKEN_TTL", "NATS_URL", "NATS_SUBJECT_PREFIX", "CORS_ORIGINS",
		"REDIS_URL", "REDIS_HOST", "REDIS_PORT", "REDIS_USE_TLS", "TASK_TIMEOUT",
	} {
		t.Setenv(k, "")
	}

	t.Setenv("GO_TEST", "1")
	t.Setenv("DOWNLOAD_TOKEN_SECRET", strings.Repeat("s", 32))
	t.Setenv("API_KEYS", "k=alice:*")
}

func TestParseConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := ParseConfig(nil)
		require.NoError(t, err)

		assert.Equal(t, RunModeAll, cfg.RunMode)
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, "webdata", cfg.DataFolder)
		assert.Equal(t, 5*time.Minute, cfg.TokenTTL)
		assert.Equal(t, int64(50<<20), cfg.MaxUploadSize)
		assert.Equal(t, 32<<10, cfg.ChunkSize)
		assert.Empty(t, cfg.CORSOrigins)
		require.NotNil(t, cfg.Redis)
		assert.Equal(t, "localhost", cfg.Redis.Host)
	})

	t.Run("flags override environment", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("ADDR", ":9000")
		t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

		cfg, err := ParseConfig([]string{"-mode", "web", "-addr", ":7000", "-token-ttl", "90s", "-debug"})
		require.NoError(t, err)

		assert.Equal(t, RunModeWeb, cfg.RunMode)
		assert.Equal(t, ":7000", cfg.Addr)
		assert.Equal(t, 90*time.Second, cfg.TokenTTL)
		assert.True(t, cfg.Debug)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	})

	t.Run("invalid mode", func(t *testing.T) {
		setRequiredEnv(t)

		_, err := ParseConfig([]string{"-mode", "lambda"})
		assert.ErrorIs(t, err, ErrInvalidRunMode)
	})

	t.Run("token ttl below one second", func(t *testing.T) {
		setRequiredEnv(t)

		_, err := ParseConfig([]string{"-token-ttl", "500ms"})
		assert.Error(t, err)
	})

	t.Run("web requires secrets", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("DOWNLOAD_TOKEN_SECRET", "")

		_, err := ParseConfig([]string{"-mode", "web"})
		assert.ErrorContains(t, err, "DOWNLOAD_TOKEN_SECRET")
	})

	t.Run("worker does not need secrets", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("DOWNLOAD_TOKEN_SECRET", "")
		t.Setenv("API_KEYS", "")

		cfg, err := ParseConfig([]string{"-mode", "worker"})
		require.NoError(t, err)
		assert.Equal(t, RunModeWorker, cfg.RunMode)
	})

	t.Run("invalid redis settings", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("REDIS_PORT", "99999")

		_, err := ParseConfig(nil)
		assert.ErrorContains(t, err, "redis config")
	})
}

type fakeRunner struct {
	runErr   error
	closeErr error
	ran      atomic.Bool
	closed   atomic.Bool
	block    bool
}

func (f *fakeRunner) Run(ctx context.Context) error {
	f.ran.Store(true)

	if f.block {
		<-ctx.Done()
		return nil
	}

	return f.runErr
}

func (f *fakeRunner) Close(context.Context) error {
	f.closed.Store(true)
	return f.closeErr
}

func TestCombine(t *testing.T) {
	t.Run("first failure cancels the rest", func(t *testing.T) {
		boom := errors.New("boom")
		blocking := &fakeRunner{block: true}
		failing := &fakeRunner{runErr: boom}

		err := Combine(blocking, failing).Run(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.True(t, blocking.ran.Load())
	})

	t.Run("close reaches every runner", func(t *testing.T) {
		a := &fakeRunner{closeErr: errors.New("a")}
		b := &fakeRunner{closeErr: errors.New("b")}

		err := Combine(a, b).Close(context.Background())
		assert.ErrorContains(t, err, "a")
		assert.ErrorContains(t, err, "b")
		assert.True(t, a.closed.Load())
		assert.True(t, b.closed.Load())
	})
}

func TestBanner(t *testing.T) {
	out := banner([]string{"📄 docparse", strings.Repeat("x", 50)}, 30)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 5)

	for _, line := range lines {
		assert.Equal(t, 30, runewidth.StringWidth(line), line)
	}
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"abc", "def", "g"}, wrapText("abcdefg", 3))
	assert.Nil(t, wrapText("", 3))
}

func TestNewLogger(t *testing.T) {
	for _, debug := range []bool{false, true} {
		log, err := NewLogger(debug)
		require.NoError(t, err)
		assert.Equal(t, debug, log.Core().Enabled(zap.DebugLevel))
	}
}

func TestTelemetryDisabled(t *testing.T) {
	t.Setenv("DISABLE_TELEMETRY", "1")

	tel := Telemetry()
	require.NotNil(t, tel)
	assert.Same(t, tel, Telemetry())
}
