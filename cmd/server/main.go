package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sqlbots/license-admin/internal/audit"
	"github.com/sqlbots/license-admin/internal/config"
	"github.com/sqlbots/license-admin/internal/es"
	"github.com/sqlbots/license-admin/internal/handlers"
	"github.com/sqlbots/license-admin/internal/logging"
	"github.com/sqlbots/license-admin/internal/middleware/csrf"
	loggingmw "github.com/sqlbots/license-admin/internal/middleware/logging"
	"github.com/sqlbots/license-admin/internal/mykafka"
	"github.com/sqlbots/license-admin/internal/ratelimit"
	"github.com/sqlbots/license-admin/internal/revocation"
	"github.com/sqlbots/license-admin/internal/tokens"
	httpserver "github.com/sqlbots/license-admin/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("failed to init database: %v", err)
	}

	revocations := revocation.NewStore(db)
	tokenService := tokens.NewService([]byte(configuration.JWT_SECRET), revocations)
	limiter := ratelimit.NewLimiter()
	defer limiter.Stop()
	csrfManager := csrf.NewManager(configuration.CSRF_SECRET)

	auditOpts := []audit.Option{}
	if configuration.KAFKA_ADDRESS != "" {
		producer := mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
		defer producer.Close()
		auditOpts = append(auditOpts, audit.WithProducer(producer))
	}

	auditHandler := &handlers.AuditHandler{}
	if configuration.ES_URL != "" {
		esClient, err := es.NewClient(configuration)
		if err != nil {
			log.Fatalf("failed to init elasticsearch: %v", err)
		}
		auditOpts = append(auditOpts, audit.WithElasticsearch(esClient, "audit_logs"))
		auditHandler = &handlers.AuditHandler{ES: esClient, Index: "audit_logs"}
	}

	auditLogger := audit.NewLogger(db, logger, auditOpts...)
	defer auditLogger.Close()

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	revocations.StartSweeper(sweepCtx, revocation.SweepInterval)

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		AuthHandler: &handlers.AuthHandler{
			DB:          db,
			Tokens:      tokenService,
			Revocations: revocations,
			Limiter:     limiter,
			CSRF:        csrfManager,
			Audit:       auditLogger,
		},
		LicenseHandler: &handlers.LicenseHandler{DB: db, Audit: auditLogger},
		UserHandler:    &handlers.UserHandler{DB: db, Audit: auditLogger},
		PlanHandler:    &handlers.PlanHandler{DB: db},
		AuditHandler:   auditHandler,
		Tokens:         tokenService,
		CSRF:           csrfManager,
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":" + configuration.HTTP_PORT,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
