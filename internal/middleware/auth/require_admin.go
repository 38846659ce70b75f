package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sqlbots/license-admin/internal/tokens"
)

const ContextKey = "admin"

// ExtractToken pulls the bearer token out of the Authorization header.
func ExtractToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// RequireAdmin verifies the access token and stores the admin identity in the
// request context. Every verification failure answers the same 401 so callers
// cannot tell expiry from forgery from revocation.
func RequireAdmin(svc *tokens.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := ExtractToken(c)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}

			admin, err := svc.VerifyAccessToken(c.Request().Context(), raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(ContextKey, admin)
			return next(c)
		}
	}
}

// AdminFromContext returns the identity set by RequireAdmin, or nil.
func AdminFromContext(c echo.Context) *tokens.AdminPayload {
	if v, ok := c.Get(ContextKey).(*tokens.AdminPayload); ok {
		return v
	}
	return nil
}
