package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const goodSecret = "k3N9v2QmX7pL4sT8wZ1yB6cF0hJ5dR2a"

func load(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return LoadFrom(context.Background(), envconfig.MapLookuper(env))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, map[string]string{"JWT_SECRET": goodSecret})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.RefreshStore != StoreMongo {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Auth.AccessTTL != 15*time.Minute || cfg.Auth.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected ttls: %s / %s", cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	}
	if cfg.Auth.SweepInterval != time.Hour {
		t.Fatalf("unexpected sweep interval: %s", cfg.Auth.SweepInterval)
	}
	if cfg.Cookie.AccessName != "access_token" || cfg.Cookie.RefreshName != "refresh_token" || cfg.Cookie.RefreshPath != "/api/auth" {
		t.Fatalf("unexpected cookie defaults: %+v", cfg.Cookie)
	}
	if cfg.Password.MemoryKiB != 65536 || cfg.Password.Iterations != 3 || cfg.Password.Parallelism != 4 {
		t.Fatalf("unexpected argon2 defaults: %+v", cfg.Password)
	}
	if !cfg.IsDevelopment() || cfg.SecureCookies() {
		t.Fatalf("development should default to insecure cookies")
	}
}

func TestLoad_SecureCookiesOutsideDevelopment(t *testing.T) {
	cfg, err := load(t, map[string]string{"JWT_SECRET": goodSecret, "ENV": "production"})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.SecureCookies() {
		t.Fatalf("production must default to secure cookies")
	}

	cfg, err = load(t, map[string]string{"JWT_SECRET": goodSecret, "ENV": "production", "COOKIE_SECURE": "false"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SecureCookies() {
		t.Fatalf("explicit COOKIE_SECURE=false must win")
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	if _, err := load(t, map[string]string{}); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		want string
	}{
		"short secret":       {map[string]string{"JWT_SECRET": "short"}, "at least 32 bytes"},
		"placeholder secret": {map[string]string{"JWT_SECRET": "your-secret-key-change-in-production"}, "placeholder"},
		"ttl order":          {map[string]string{"JWT_SECRET": goodSecret, "ACCESS_TOKEN_TTL": "2h", "REFRESH_TOKEN_TTL": "1h"}, "shorter than"},
		"negative sweep":     {map[string]string{"JWT_SECRET": goodSecret, "TOKEN_SWEEP_INTERVAL": "-1m"}, "TOKEN_SWEEP_INTERVAL"},
		"weak argon2":        {map[string]string{"JWT_SECRET": goodSecret, "ARGON2_MEMORY_KIB": "1024"}, "ARGON2_MEMORY_KIB"},
		"samesite none":      {map[string]string{"JWT_SECRET": goodSecret, "COOKIE_SAMESITE": "none"}, "COOKIE_SAMESITE"},
		"redis without addr": {map[string]string{"JWT_SECRET": goodSecret, "REFRESH_STORE": "redis"}, "REDIS_ADDR"},
		"unknown store":      {map[string]string{"JWT_SECRET": goodSecret, "REFRESH_STORE": "memory"}, "unknown REFRESH_STORE"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := load(t, tc.env)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidate_RedisStore(t *testing.T) {
	cfg, err := load(t, map[string]string{"JWT_SECRET": goodSecret, "REFRESH_STORE": "redis", "REDIS_ADDR": "localhost:6379"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RefreshStore != StoreRedis || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
}
