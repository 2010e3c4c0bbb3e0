// Command tokensweep deletes revoked and expired refresh token records once
// and exits. It is safe to run alongside live traffic, e.g. from cron.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirpyerre/tenant-portal/internal/app"
	"github.com/sirpyerre/tenant-portal/internal/infrastructure/config"
	"github.com/sirpyerre/tenant-portal/internal/infrastructure/queue"
	"github.com/sirpyerre/tenant-portal/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		l := logger.Get()
		l.Fatal().Err(err).Msg("token sweep failed")
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Init(logger.Options{})
		return err
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Service: "tokensweep", Env: cfg.Env})

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}

	_, sweepErr := queue.NewTokenSweeper(a.Sessions, 0, log).SweepOnce(ctx)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return errors.Join(sweepErr, a.Close(closeCtx))
}
