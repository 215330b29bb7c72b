package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// TokenMiddleware authenticates operator requests using the X-Ops-Token
// header against the single configured token. Comparison is constant
// time. An empty configured token rejects everything; the ops surface
// never runs open.
func TokenMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "ops token not configured"})
			}
			got := strings.TrimSpace(c.Request().Header.Get("X-Ops-Token"))
			if got == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing ops token"})
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid ops token"})
			}
			return next(c)
		}
	}
}
