package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	StoreMongo = "mongo"
	StoreRedis = "redis"

	minSecretLength = 32
	minArgon2Memory = 64 * 1024
	minArgon2Passes = 3
	envDevelopment  = "development"
)

// placeholderSecrets are literals that have shipped as defaults in example configs.
var placeholderSecrets = map[string]struct{}{
	"your-secret-key-min-32-chars-long":    {},
	"your-secret-key-change-in-production": {},
	"changeme-changeme-changeme-changeme":  {},
	"secretsecretsecretsecretsecretsecret": {},
}

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// TrustProxy takes client addresses from X-Forwarded-For. Enable only behind a proxy that sets it.
	TrustProxy bool `env:"TRUST_PROXY, default=false"`

	// RefreshStore selects the refresh token backend: mongo or redis.
	RefreshStore string `env:"REFRESH_STORE, default=mongo"`

	Auth     AuthConfig
	Cookie   CookieConfig
	Password PasswordConfig
	Audit    AuditConfig
	Mongo    MongoConfig
	Redis    RedisConfig
}

type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET, required"`
	Issuer     string        `env:"JWT_ISSUER,        default=tenant-portal"`
	Audience   string        `env:"JWT_AUDIENCE,      default=tenant-portal-users"`
	AccessTTL  time.Duration `env:"ACCESS_TOKEN_TTL,  default=15m"`
	RefreshTTL time.Duration `env:"REFRESH_TOKEN_TTL, default=168h"`

	// SweepInterval is how often revoked and expired refresh records are purged. 0 disables.
	SweepInterval time.Duration `env:"TOKEN_SWEEP_INTERVAL, default=1h"`

	// TokensInBody also returns the raw tokens in JSON responses for non-browser clients.
	TokensInBody bool `env:"AUTH_TOKENS_IN_BODY, default=false"`
}

type CookieConfig struct {
	AccessName  string `env:"COOKIE_ACCESS_NAME,  default=access_token"`
	RefreshName string `env:"COOKIE_REFRESH_NAME, default=refresh_token"`
	RefreshPath string `env:"COOKIE_REFRESH_PATH, default=/api/auth"`
	Domain      string `env:"COOKIE_DOMAIN"`
	SameSite    string `env:"COOKIE_SAMESITE, default=lax"`

	// Secure is unset by default so it can follow Env.
	Secure *bool `env:"COOKIE_SECURE"`
}

type PasswordConfig struct {
	MemoryKiB   uint32 `env:"ARGON2_MEMORY_KIB,  default=65536"`
	Iterations  uint32 `env:"ARGON2_ITERATIONS,  default=3"`
	Parallelism uint8  `env:"ARGON2_PARALLELISM, default=4"`
}

type AuditConfig struct {
	Workers int `env:"AUDIT_WORKERS, default=4"`
	Buffer  int `env:"AUDIT_BUFFER,  default=256"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=tenant_portal"`
}

type RedisConfig struct {
	// Addr empty disables Redis unless RefreshStore is redis.
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

// Load reads configuration from environment variables using go-envconfig and validates it.
// In development, values from .env.local fill in anything the environment leaves unset.
func Load(ctx context.Context) (*Config, error) {
	if env := os.Getenv("ENV"); env == "" || strings.EqualFold(env, envDevelopment) {
		_ = godotenv.Load(".env.local")
	}
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom is Load with an explicit lookuper, for tests.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations that would weaken the session subsystem.
func (c *Config) Validate() error {
	var errs []error

	secret := strings.TrimSpace(c.Auth.JWTSecret)
	if len(secret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength))
	}
	if _, ok := placeholderSecrets[secret]; ok {
		errs = append(errs, errors.New("JWT_SECRET is a well-known placeholder"))
	}
	if c.Auth.Issuer == "" || c.Auth.Audience == "" {
		errs = append(errs, errors.New("JWT_ISSUER and JWT_AUDIENCE must be set"))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	} else if c.Auth.AccessTTL >= c.Auth.RefreshTTL {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL"))
	}

	if c.Auth.SweepInterval < 0 {
		errs = append(errs, errors.New("TOKEN_SWEEP_INTERVAL must not be negative"))
	}

	if c.Password.MemoryKiB < minArgon2Memory {
		errs = append(errs, fmt.Errorf("ARGON2_MEMORY_KIB must be at least %d", minArgon2Memory))
	}
	if c.Password.Iterations < minArgon2Passes {
		errs = append(errs, fmt.Errorf("ARGON2_ITERATIONS must be at least %d", minArgon2Passes))
	}
	if c.Password.Parallelism == 0 || c.Password.Parallelism > 64 {
		errs = append(errs, errors.New("ARGON2_PARALLELISM must be in [1..64]"))
	}

	switch strings.ToLower(c.Cookie.SameSite) {
	case "lax", "strict":
	default:
		errs = append(errs, errors.New("COOKIE_SAMESITE must be lax or strict"))
	}

	switch c.RefreshStore {
	case StoreMongo:
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when REFRESH_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown REFRESH_STORE %q", c.RefreshStore))
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, envDevelopment)
}

// SecureCookies resolves COOKIE_SECURE, defaulting to true outside development.
func (c *Config) SecureCookies() bool {
	if c.Cookie.Secure != nil {
		return *c.Cookie.Secure
	}
	return !c.IsDevelopment()
}
