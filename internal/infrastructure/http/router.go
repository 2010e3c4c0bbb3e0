package http

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sirpyerre/tenant-portal/internal/infrastructure/http/handlers"
)

// ServerOptions configures the base Echo instance.
type ServerOptions struct {
	// TrustProxy takes the client address from X-Forwarded-For: the right-most
	// hop that is not a loopback, link-local or private proxy address.
	TrustProxy bool
	Mongo      *mongo.Database
	// Redis is optional; nil leaves it out of the readiness report.
	Redis redis.UniversalClient
}

// NewServer builds the Echo instance with global middleware, health probes and /metrics.
// Application routes are registered on top of it.
func NewServer(log zerolog.Logger, opts ServerOptions) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.IPExtractor = ipExtractor(opts.TrustProxy)

	// --- Global middleware ---
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(log))
	e.Use(echoprometheus.NewMiddleware("portal"))

	// --- Health probes (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(opts.Mongo, opts.Redis)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())

	return e
}

// ipExtractor honours X-Forwarded-For only when the direct peer is an internal
// proxy. Hops are walked from the right so a client cannot pick its own address.
func ipExtractor(trustProxy bool) echo.IPExtractor {
	if !trustProxy {
		return echo.ExtractIPDirect()
	}
	return echo.ExtractIPFromXFFHeader(
		echo.TrustLoopback(true),
		echo.TrustLinkLocal(true),
		echo.TrustPrivateNet(true),
	)
}

// requestLogger writes one structured line per request. Cookies and the
// Authorization header are never logged.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		Skipper: func(c echo.Context) bool {
			switch c.Path() {
			case "/health", "/health/ready", "/metrics":
				return true
			}
			return false
		},
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
