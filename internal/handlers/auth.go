package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/sqlbots/license-admin/internal/audit"
	"github.com/sqlbots/license-admin/internal/hash"
	authmw "github.com/sqlbots/license-admin/internal/middleware/auth"
	"github.com/sqlbots/license-admin/internal/middleware/csrf"
	"github.com/sqlbots/license-admin/internal/models"
	"github.com/sqlbots/license-admin/internal/ratelimit"
	"github.com/sqlbots/license-admin/internal/revocation"
	"github.com/sqlbots/license-admin/internal/tokens"
)

const refreshCookieName = "refreshToken"

type AuthHandler struct {
	DB          *gorm.DB
	Tokens      *tokens.Service
	Revocations *revocation.Store
	Limiter     *ratelimit.Limiter
	CSRF        *csrf.Manager
	Audit       *audit.Logger
}

func refreshCookie(value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func rateLimited(c echo.Context, result ratelimit.Result) error {
	retryAfter := int(math.Ceil(time.Until(result.Reset).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
	h.Set("Retry-After", strconv.Itoa(retryAfter))
	return c.JSON(http.StatusTooManyRequests, echo.Map{
		"error":      "Too many requests. Please try again later.",
		"retryAfter": retryAfter,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Email and password are required"})
	}

	// Two independent windows, either one can block the attempt.
	if result := h.Limiter.Check(ratelimit.Options{
		Limit:      ratelimit.LoginIPLimit,
		Window:     ratelimit.LoginWindow,
		Identifier: "login:ip:" + c.RealIP(),
	}); !result.Success {
		return rateLimited(c, result)
	}
	if result := h.Limiter.Check(ratelimit.Options{
		Limit:      ratelimit.LoginEmailLimit,
		Window:     ratelimit.LoginWindow,
		Identifier: "login:email:" + email,
	}); !result.Success {
		return rateLimited(c, result)
	}

	var admin models.Admin
	if err := h.DB.WithContext(c.Request().Context()).
		Where("email = ?", email).First(&admin).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
		}
		h.Audit.Record(audit.LoginAttempt(nil, false, c.RealIP(), c.Request().UserAgent(), email))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid email or password"})
	}

	payload := tokens.AdminPayload{
		ID:    admin.ID,
		Email: admin.Email,
		Role:  admin.Role,
		Level: admin.Level,
	}

	if !hash.CheckPassword(admin.PasswordHash, req.Password) {
		h.Audit.Record(audit.LoginAttempt(&payload, false, c.RealIP(), c.Request().UserAgent(), email))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid email or password"})
	}

	accessToken, refreshToken, err := h.Tokens.GenerateTokens(payload)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	c.SetCookie(refreshCookie(refreshToken, time.Now().Add(tokens.RefreshTTL)))

	h.Audit.Record(audit.LoginAttempt(&payload, true, c.RealIP(), c.Request().UserAgent(), email))

	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"admin":        admin,
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := authmw.ExtractToken(c)
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Refresh token is required"})
	}

	admin, err := h.Tokens.VerifyRefreshToken(c.Request().Context(), raw)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid or expired refresh token"})
	}

	accessToken, refreshToken, err := h.Tokens.GenerateTokens(*admin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	c.SetCookie(refreshCookie(refreshToken, time.Now().Add(tokens.RefreshTTL)))

	h.Audit.Record(audit.TokenRefresh(admin, c.RealIP(), c.Request().UserAgent()))

	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	admin := authmw.AdminFromContext(c)
	ctx := c.Request().Context()

	if raw := authmw.ExtractToken(c); raw != "" {
		h.Revocations.Revoke(ctx, raw)
	}

	// Body is optional and may carry the refresh token for revocation too.
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.Bind(&req); err == nil && req.RefreshToken != "" {
		h.Revocations.Revoke(ctx, req.RefreshToken)
	}

	c.SetCookie(refreshCookie("", time.Now().Add(-time.Hour)))

	if admin != nil {
		h.Audit.Record(audit.Logout(admin, c.RealIP(), c.Request().UserAgent()))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (h *AuthHandler) CSRFToken(c echo.Context) error {
	token, err := h.CSRF.GenerateToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create CSRF token"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"csrfToken": token,
	})
}
