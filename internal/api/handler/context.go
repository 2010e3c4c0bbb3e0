package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

// clientMeta captures the device details recorded with each refresh token.
// RealIP honours X-Forwarded-For only when Echo's IPExtractor is configured to trust it.
func clientMeta(c echo.Context) ports.ClientMetadata {
	return ports.ClientMetadata{
		UserAgent: c.Request().UserAgent(),
		IPAddress: c.RealIP(),
	}
}
