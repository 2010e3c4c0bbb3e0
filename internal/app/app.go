// Package app assembles the session subsystem from configuration. Both the
// HTTP server and the maintenance command build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sirpyerre/tenant-portal/internal/core/ports"
	"github.com/sirpyerre/tenant-portal/internal/core/service"
	"github.com/sirpyerre/tenant-portal/internal/infrastructure/config"
	mongodb "github.com/sirpyerre/tenant-portal/internal/infrastructure/db/mongo"
	redisdb "github.com/sirpyerre/tenant-portal/internal/infrastructure/db/redis"
	"github.com/sirpyerre/tenant-portal/internal/infrastructure/queue"
	"github.com/sirpyerre/tenant-portal/internal/infrastructure/security"
)

const appName = "tenant-portal"

// App holds the live clients and the session service built on them.
type App struct {
	Sessions ports.SessionService
	Audit    *queue.AuditDispatcher
	MongoDB  *mongo.Database
	// Redis is nil unless REDIS_ADDR is set.
	Redis goredis.UniversalClient

	mongoClient *mongo.Client
	log         zerolog.Logger
}

// Build connects to the stores, ensures indexes and starts the audit dispatcher.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		AppName:  appName,
	})
	if err != nil {
		return nil, err
	}
	a := &App{MongoDB: db, mongoClient: mongoClient, log: log}

	if cfg.Redis.Addr != "" {
		rdb, err := redisdb.Connect(ctx, redisdb.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			_ = a.closeClients(ctx)
			return nil, err
		}
		a.Redis = rdb
	}

	creds := mongodb.NewCredentialRepository(db)
	auditRepo := mongodb.NewAuditRepository(db)
	indexed := []mongodb.Indexed{creds, auditRepo}

	var tokens ports.RefreshTokenRepository
	switch cfg.RefreshStore {
	case config.StoreRedis:
		tokens = redisdb.NewRefreshTokenStore(a.Redis, redisdb.DefaultRetention)
	default:
		repo := mongodb.NewRefreshTokenRepository(db)
		indexed = append(indexed, repo)
		tokens = repo
	}

	if err := mongodb.EnsureIndexes(ctx, indexed...); err != nil {
		_ = a.closeClients(ctx)
		return nil, err
	}

	a.Audit = queue.NewAuditDispatcher(cfg.Audit.Workers, cfg.Audit.Buffer, auditRepo, log.With().Str("component", "audit").Logger())
	a.Audit.Start(ctx)

	hasher := security.NewArgon2idHasher(security.Argon2Params{
		MemoryKiB:   cfg.Password.MemoryKiB,
		Iterations:  cfg.Password.Iterations,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  16,
		KeyLength:   32,
	})
	codec := security.NewJWTCodec(security.JWTConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})

	a.Sessions = service.NewSessionService(service.SessionDeps{
		Credentials: creds,
		Tokens:      tokens,
		Hasher:      hasher,
		Codec:       codec,
		Audit:       a.Audit,
	}, service.SessionConfig{
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	}, log.With().Str("component", "session").Logger())

	log.Info().
		Str("refresh_store", cfg.RefreshStore).
		Bool("redis", a.Redis != nil).
		Msg("session subsystem ready")
	return a, nil
}

// Close drains the audit queue and then disconnects the stores.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Audit != nil {
		if err := a.Audit.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.closeClients(ctx))
	return errors.Join(errs...)
}

func (a *App) closeClients(ctx context.Context) error {
	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	disconnectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.mongoClient.Disconnect(disconnectCtx); err != nil {
		errs = append(errs, fmt.Errorf("mongo disconnect: %w", err))
	}
	return errors.Join(errs...)
}
