package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/runner"
	"github.com/Vector/vector-docparse/runner/redisrunner"
	"github.com/Vector/vector-docparse/runner/webrunner"
)

func main() {
	_ = godotenv.Load()

	cfg, err := runner.ParseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	runner.Banner(cfg)

	log, err := runner.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := run(ctx, cfg, log)

	stop()

	_ = log.Sync()

	os.Exit(code)
}

func run(ctx context.Context, cfg *runner.Config, log *zap.Logger) int {
	defer func() {
		_ = runner.Telemetry().Close()
	}()

	runnerInstance, err := runnerFactory(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", zap.Error(err))
		return 1
	}

	code := 0

	if err := runnerInstance.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("runner stopped", zap.Error(err))

		code = 1
	}

	log.Info("shutting down")

	closeCtx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	if err := runnerInstance.Close(closeCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}

	return code
}

func runnerFactory(ctx context.Context, cfg *runner.Config, log *zap.Logger) (runner.Runner, error) {
	switch cfg.RunMode {
	case runner.RunModeWeb:
		return webrunner.New(ctx, cfg, log.Named("web"))
	case runner.RunModeWorker:
		return redisrunner.New(ctx, cfg, log.Named("worker"))
	case runner.RunModeAll:
		web, err := webrunner.New(ctx, cfg, log.Named("web"))
		if err != nil {
			return nil, err
		}

		worker, err := redisrunner.New(ctx, cfg, log.Named("worker"))
		if err != nil {
			_ = web.Close(ctx)
			return nil, err
		}

		return runner.Combine(web, worker), nil
	default:
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}
}
