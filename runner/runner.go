// Package runner holds the process configuration and the pieces shared by the
// web and worker runners.
package runner

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Vector/vector-docparse/delivery"
	"github.com/Vector/vector-docparse/redis/config"
	"github.com/Vector/vector-docparse/tlmt"
	"github.com/Vector/vector-docparse/tlmt/gonoop"
	"github.com/Vector/vector-docparse/tlmt/goposthog"
	"github.com/Vector/vector-docparse/web/handlers"
)

const (
	RunModeWeb = iota + 1
	RunModeWorker
	RunModeAll
)

var (
	ErrInvalidRunMode = errors.New("invalid run mode")
)

type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

type Config struct {
	RunMode          int
	Addr             string
	Debug            bool
	Dsn              string
	DataFolder       string
	S3Bucket         string
	S3Endpoint       string
	AwsRegion        string
	AwsAccessKey     string
	AwsSecretKey     string
	TokenTTL         time.Duration
	TokenSecret      string
	APIKeys          string
	CORSOrigins      []string
	MaxUploadSize    int64
	ChunkSize        int
	NATSURL          string
	NATSPrefix       string
	PosthogKey       string
	DisableTelemetry bool
	Redis            *config.RedisConfig
}

func parseRunMode(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "web":
		return RunModeWeb, nil
	case "worker":
		return RunModeWorker, nil
	case "all", "":
		return RunModeAll, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidRunMode, s)
	}
}

// ParseConfig reads flags from args, falling back to the environment for
// secrets and connection settings.
func ParseConfig(args []string) (*Config, error) {
	cfg := Config{}

	fs := flag.NewFlagSet("docparse", flag.ContinueOnError)

	var (
		mode    string
		origins string
	)

	fs.StringVar(&mode, "mode", envOr("RUN_MODE", "all"), "run mode: web, worker or all")
	fs.StringVar(&cfg.Addr, "addr", envOr("ADDR", ":8080"), "address to listen on for the web server")
	fs.BoolVar(&cfg.Debug, "debug", envBool("DEBUG"), "enable debug logging")
	fs.StringVar(&cfg.Dsn, "dsn", os.Getenv("DATABASE_URL"), "postgres connection string; sqlite in data-folder when empty")
	fs.StringVar(&cfg.DataFolder, "data-folder", envOr("DATA_FOLDER", "webdata"), "folder for the sqlite database and local blobs")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", os.Getenv("S3_BUCKET"), "S3 bucket for uploaded files; local storage when empty")
	fs.StringVar(&cfg.S3Endpoint, "s3-endpoint", os.Getenv("S3_ENDPOINT"), "S3 compatible endpoint, e.g. a MinIO url")
	fs.StringVar(&cfg.AwsRegion, "aws-region", os.Getenv("MY_AWS_REGION"), "AWS region")
	fs.StringVar(&cfg.AwsAccessKey, "aws-access-key", os.Getenv("MY_AWS_ACCESS_KEY"), "AWS access key")
	fs.StringVar(&cfg.AwsSecretKey, "aws-secret-key", os.Getenv("MY_AWS_SECRET_KEY"), "AWS secret key")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", envDuration("DOWNLOAD_TOKEN_TTL", delivery.DefaultTokenTTL), "download token lifetime")
	fs.Int64Var(&cfg.MaxUploadSize, "max-upload-size", handlers.DefaultMaxUploadSize, "maximum upload size in bytes")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", delivery.DefaultChunkSize, "download chunk size in bytes")
	fs.StringVar(&cfg.NATSURL, "nats-url", os.Getenv("NATS_URL"), "NATS server for job events; disabled when empty")
	fs.StringVar(&cfg.NATSPrefix, "nats-prefix", os.Getenv("NATS_SUBJECT_PREFIX"), "subject prefix for job events")
	fs.StringVar(&origins, "cors-origins", os.Getenv("CORS_ORIGINS"), "comma separated list of allowed CORS origins")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	runMode, err := parseRunMode(mode)
	if err != nil {
		return nil, err
	}

	cfg.RunMode = runMode
	cfg.TokenSecret = os.Getenv("DOWNLOAD_TOKEN_SECRET")
	cfg.APIKeys = os.Getenv("API_KEYS")
	cfg.PosthogKey = os.Getenv("POSTHOG_API_KEY")
	cfg.DisableTelemetry = os.Getenv("DISABLE_TELEMETRY") == "1"

	if origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if cfg.TokenTTL < time.Second {
		return nil, errors.New("token ttl must be at least one second")
	}

	if cfg.MaxUploadSize <= 0 {
		return nil, errors.New("max upload size must be positive")
	}

	if cfg.ChunkSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}

	if cfg.RunMode != RunModeWorker {
		if cfg.TokenSecret == "" {
			return nil, errors.New("DOWNLOAD_TOKEN_SECRET must be set")
		}

		if cfg.APIKeys == "" {
			return nil, errors.New("API_KEYS must be set")
		}
	}

	cfg.Redis, err = config.NewRedisConfig()
	if err != nil {
		return nil, fmt.Errorf("redis config: %w", err)
	}

	return &cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}

	return d
}

// NewLogger returns a JSON production logger, or a console development
// logger when debug is set.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// Combine runs every runner until the first one fails or ctx is done.
func Combine(runners ...Runner) Runner {
	return group(runners)
}

type group []Runner

func (g group) Run(ctx context.Context) error {
	egroup, ctx := errgroup.WithContext(ctx)

	for _, r := range g {
		r := r
		egroup.Go(func() error {
			return r.Run(ctx)
		})
	}

	return egroup.Wait()
}

func (g group) Close(ctx context.Context) error {
	var err error

	for i := len(g) - 1; i >= 0; i-- {
		err = multierr.Append(err, g[i].Close(ctx))
	}

	return err
}

var (
	telemetryOnce sync.Once
	telemetry     tlmt.Telemetry
)

func Telemetry() tlmt.Telemetry {
	telemetryOnce.Do(func() {
		key := os.Getenv("POSTHOG_API_KEY")

		if os.Getenv("DISABLE_TELEMETRY") == "1" || key == "" {
			telemetry = gonoop.New()

			return
		}

		val, err := goposthog.New(key, goposthog.DefaultEndpoint)
		if err != nil || val == nil {
			telemetry = gonoop.New()

			return
		}

		telemetry = val
	})

	return telemetry
}

func wrapText(text string, width int) []string {
	var lines []string

	var line strings.Builder

	lineWidth := 0

	for _, r := range text {
		w := runewidth.RuneWidth(r)
		if lineWidth+w > width {
			lines = append(lines, line.String())
			line.Reset()

			lineWidth = 0
		}

		line.WriteRune(r)
		lineWidth += w
	}

	if line.Len() > 0 {
		lines = append(lines, line.String())
	}

	return lines
}

func banner(messages []string, width int) string {
	if width <= 0 {
		var err error

		width, _, err = term.GetSize(int(os.Stderr.Fd()))
		if err != nil {
			width = 80
		}
	}

	width = max(width, 20)
	contentWidth := width - 4

	var wrapped []string
	for _, message := range messages {
		wrapped = append(wrapped, wrapText(message, contentWidth)...)
	}

	var b strings.Builder

	b.WriteString("╔" + strings.Repeat("═", width-2) + "╗\n")

	for _, line := range wrapped {
		pad := max(contentWidth-runewidth.StringWidth(line), 0)
		fmt.Fprintf(&b, "║ %s%s ║\n", line, strings.Repeat(" ", pad))
	}

	b.WriteString("╚" + strings.Repeat("═", width-2) + "╝\n")

	return b.String()
}

func modeName(mode int) string {
	switch mode {
	case RunModeWeb:
		return "web"
	case RunModeWorker:
		return "worker"
	case RunModeAll:
		return "web + worker"
	default:
		return "unknown"
	}
}

func Banner(cfg *Config) {
	lines := []string{
		"📄 docparse",
		"mode: " + modeName(cfg.RunMode),
	}

	if cfg.RunMode != RunModeWorker {
		lines = append(lines, "listening on "+cfg.Addr)
	}

	if cfg.Debug {
		lines = append(lines, "debug logging enabled")
	}

	fmt.Fprintln(os.Stderr, banner(lines, 0))
}
