package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/sqlbots/license-admin/internal/handlers"
	authmw "github.com/sqlbots/license-admin/internal/middleware/auth"
	"github.com/sqlbots/license-admin/internal/middleware/csrf"
	"github.com/sqlbots/license-admin/internal/tokens"
)

type Deps struct {
	AuthHandler    *handlers.AuthHandler
	LicenseHandler *handlers.LicenseHandler
	UserHandler    *handlers.UserHandler
	PlanHandler    *handlers.PlanHandler
	AuditHandler   *handlers.AuditHandler
	Tokens         *tokens.Service
	CSRF           *csrf.Manager
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	e.Use(csrf.Middleware(d.CSRF, []string{
		"/login",
		"/auth/refresh",
		"/auth/logout",
		"/health/live",
		"/health/ready",
	}))

	e.POST("/login", d.AuthHandler.Login)
	e.POST("/auth/refresh", d.AuthHandler.Refresh)

	requireAdmin := authmw.RequireAdmin(d.Tokens)

	e.POST("/auth/logout", d.AuthHandler.Logout, requireAdmin)
	e.GET("/csrf", d.AuthHandler.CSRFToken, requireAdmin)

	licenses := e.Group("/licenses", requireAdmin)
	licenses.GET("", d.LicenseHandler.List)
	licenses.POST("", d.LicenseHandler.Create)
	licenses.DELETE("", d.LicenseHandler.BatchDelete)
	licenses.DELETE("/:id", d.LicenseHandler.DeleteOne)

	users := e.Group("/users", requireAdmin)
	users.GET("", d.UserHandler.List)
	users.DELETE("/:id", d.UserHandler.Delete)

	e.GET("/plans/available", d.PlanHandler.Available, requireAdmin)

	if d.AuditHandler != nil && d.AuditHandler.ES != nil {
		e.GET("/audit", d.AuditHandler.Search, requireAdmin)
	}
}
