package ratelimit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	pkghttp "EntryGate/pkg/http"
)

// Writes limits state-changing requests per client IP. Reads pass through.
func Writes(l *Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}
			if !l.Allow(c.RealIP()) {
				return pkghttp.ErrorResponse(c, pkghttp.TooManyRequests("too many configuration writes"))
			}
			return next(c)
		}
	}
}
