package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tenant-service/internal/authz"
	"tenant-service/internal/handler"
	"tenant-service/internal/membership"
	"tenant-service/internal/middleware"
	"tenant-service/internal/model"
	"tenant-service/internal/session"
	"tenant-service/internal/tenant"
	"tenant-service/pkg/cache"
	"tenant-service/pkg/config"
	"tenant-service/pkg/database"
	"tenant-service/pkg/jwtutil"
	"tenant-service/pkg/logger"
	"tenant-service/pkg/metrics"
	pkgmiddleware "tenant-service/pkg/middleware"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func setup() (*config.Config, *zap.Logger, error) {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load(serviceName)
	if err != nil {
		return nil, nil, err
	}

	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		return nil, nil, err
	}
	return cfg, logger.GetLogger(), nil
}

func serve(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log.Info("Starting tenant service...", cfg.LogConfig()...)

	// Initialize database
	db, err := database.InitDB(&cfg.DB, log)
	if err != nil {
		log.Error("Failed to initialize database", zap.Error(err))
		return err
	}
	if err := database.MigrateModels(db, model.All()...); err != nil {
		log.Error("Failed to migrate models", zap.Error(err))
		return err
	}

	// Tenant context cache: Redis when configured and reachable, in-process otherwise
	var store cache.Store = cache.NewMemoryStore()
	if client := cache.NewRedisClient(&cfg.Redis, log); client != nil {
		defer client.Close()
		store = cache.NewRedisStore(client)
	} else {
		log.Warn("Using in-process tenant cache; do not run more than one replica")
	}
	resolver := tenant.NewResolver(db, store, cfg.Cache.Namespace, log)

	// Session cascade, announcing revocations when a broker is configured
	sessions := session.NewStore(db)
	var notifier session.Notifier
	if cfg.AMQP.URL != "" {
		amqpNotifier := session.NewAMQPNotifier(&cfg.AMQP, log)
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	}
	cascade := session.NewCascade(sessions, notifier, cfg.AMQP.PublishTimeout, log)

	engine := membership.NewEngine(db, resolver, cascade, log)
	authorizer := authz.NewAuthorizer(db, resolver, log)
	expenseTypes, err := tenant.NewRepository[model.ExpenseType](db, resolver, log)
	if err != nil {
		return err
	}
	expenses, err := tenant.NewRepository[model.Expense](db, resolver, log)
	if err != nil {
		return err
	}
	jwtUtil := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      cfg.JWT.SigningKey,
		ExpirationHours: cfg.JWT.ExpirationHours,
	})

	httpMetrics := metrics.NewHTTPMetrics(cfg.Metrics.Prefix, nil)

	e := echo.New()
	e.HideBanner = true

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(pkgmiddleware.RequestIDMiddleware(log))
	e.Use(logger.Middleware())
	e.Use(httpMetrics.Middleware())

	// Public routes - no authentication required
	e.GET("/health", handler.NewHealthHandler(db, store).HealthCheck)
	e.GET("/metrics", echo.WrapHandler(metrics.GetPrometheusHandler()))

	handler.RegisterRoutes(e, handler.Handlers{
		Tenant:     handler.NewTenantHandler(resolver, authorizer, engine),
		Membership: handler.NewMembershipHandler(engine, resolver, authorizer),
		Expense:    handler.NewExpenseHandler(expenseTypes, expenses),
	}, middleware.AuthMiddleware(jwtUtil, sessions), authorizer)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		errCh <- e.Start(":" + cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server stopped", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down server", zap.Error(err))
	}
	cascade.Wait()
	return nil
}
