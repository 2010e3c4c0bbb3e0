// Command portal serves the tenant portal: the auth API, the server-rendered
// pages, health probes and metrics.
//
//	@title			Tenant Portal API
//	@version		1.0
//	@description	Multi-tenant authentication and session API.
//	@BasePath		/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/sirpyerre/tenant-portal/docs"
	"github.com/sirpyerre/tenant-portal/internal/api"
	"github.com/sirpyerre/tenant-portal/internal/api/handler"
	"github.com/sirpyerre/tenant-portal/internal/app"
	"github.com/sirpyerre/tenant-portal/internal/infrastructure/config"
	httpserver "github.com/sirpyerre/tenant-portal/internal/infrastructure/http"
	"github.com/sirpyerre/tenant-portal/internal/infrastructure/queue"
	"github.com/sirpyerre/tenant-portal/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		l := logger.Get()
		l.Fatal().Err(err).Msg("portal stopped")
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Init(logger.Options{})
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "portal",
		Env:     cfg.Env,
	})

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("shutdown incomplete")
		}
	}()

	e := httpserver.NewServer(log, httpserver.ServerOptions{
		TrustProxy: cfg.TrustProxy,
		Mongo:      a.MongoDB,
		Redis:      a.Redis,
	})
	api.RegisterRoutes(e, api.Deps{
		Sessions: a.Sessions,
		Cookies: handler.CookieConfig{
			AccessName:  cfg.Cookie.AccessName,
			RefreshName: cfg.Cookie.RefreshName,
			RefreshPath: cfg.Cookie.RefreshPath,
			Domain:      cfg.Cookie.Domain,
			SameSite:    handler.SameSiteFrom(cfg.Cookie.SameSite),
			Secure:      cfg.SecureCookies(),
			AccessTTL:   cfg.Auth.AccessTTL,
			RefreshTTL:  cfg.Auth.RefreshTTL,
		},
		TokensInBody: cfg.Auth.TokensInBody,
		Swagger:      cfg.IsDevelopment(),
		Log:          log,
	})

	go queue.NewTokenSweeper(a.Sessions, cfg.Auth.SweepInterval, logger.For("sweeper")).Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
