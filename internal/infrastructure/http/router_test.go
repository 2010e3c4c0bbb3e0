package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestIPExtractor(t *testing.T) {
	cases := []struct {
		name   string
		trust  bool
		remote string
		xff    string
		want   string
	}{
		{"direct ignores header", false, "10.0.0.1:4000", "203.0.113.7", "10.0.0.1"},
		{"behind internal proxy", true, "10.0.0.1:4000", "203.0.113.7", "203.0.113.7"},
		{"skips internal hops from the right", true, "10.0.0.1:4000", "203.0.113.7, 10.0.0.2", "203.0.113.7"},
		{"spoofed left-most hop is ignored", true, "10.0.0.1:4000", "198.51.100.9, 203.0.113.7", "203.0.113.7"},
		{"public peer is not a proxy", true, "198.51.100.1:4000", "203.0.113.7", "198.51.100.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
			req.RemoteAddr = tc.remote
			req.Header.Set(echo.HeaderXForwardedFor, tc.xff)

			if got := ipExtractor(tc.trust)(req); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
