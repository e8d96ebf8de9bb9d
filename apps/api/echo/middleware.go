package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/services/ratelimit"
)

// requireRole lets through principals holding at least role.
func requireRole(gate *policy.Gate, role policy.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if err := gate.Authorize(getPrincipal(ctx), role).Err(); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// rateLimit throttles a route per client IP. A failing limiter lets the request through.
func rateLimit(limiter ratelimit.Limiter, name string, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ok, err := limiter.Allow(ctx.Request().Context(), name+":"+ctx.RealIP())
			if err != nil {
				logger.Warn("rate limiter unavailable: "+err.Error(), err)
				return next(ctx)
			}
			if !ok {
				return errTooManyAttempts
			}
			return next(ctx)
		}
	}
}
