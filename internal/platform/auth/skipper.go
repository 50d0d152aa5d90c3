package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists routes reachable without a bearer token: health checks,
// login, and the payment gateway callbacks which authenticate by signature.
var publicPaths = map[string]bool{
	"/health":                       true,
	"/health/db":                    true,
	"/api/v1/auth/login":            true,
	"/api/v1/payments/momo/ipn":     true,
	"/api/v1/payments/vnpay/ipn":    true,
	"/api/v1/payments/vnpay/return": true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	if publicPaths[c.Path()] {
		return true
	}
	return publicPaths[c.Request().URL.Path]
}

// IsPublicPath reports whether the given path bypasses authentication.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
