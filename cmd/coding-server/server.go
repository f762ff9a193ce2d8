package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/ehr/medcoding/internal/config"
	"github.com/ehr/medcoding/internal/domain/catalog"
	"github.com/ehr/medcoding/internal/domain/encounter"
	"github.com/ehr/medcoding/internal/domain/patient"
	"github.com/ehr/medcoding/internal/domain/prediction"
	"github.com/ehr/medcoding/internal/domain/review"
	"github.com/ehr/medcoding/internal/domain/submission"
	"github.com/ehr/medcoding/internal/platform/auth"
	"github.com/ehr/medcoding/internal/platform/db"
	"github.com/ehr/medcoding/internal/platform/middleware"
	"github.com/ehr/medcoding/internal/platform/telemetry"
)

const serviceName = "coding-server"

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	tp, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: serviceName,
		SampleRate:  cfg.OTelSampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewCollector(cfg.MetricsNamespace, reg)

	// Catalog is a read-only snapshot for the life of the process.
	catalogRepo := catalog.NewRepoPG(pool)
	cat, err := catalog.Load(ctx, catalogRepo)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load catalog")
	}
	if err := requireCatalog(cat); err != nil {
		logger.Fatal().Err(err).Msg("refusing to start")
	}
	logger.Info().Int("entries", cat.Len()).Msg("catalog loaded")

	var (
		remote       prediction.Predictor
		remoteClient *prediction.RemoteClient
	)
	if cfg.InferenceURL != "" {
		remoteClient = prediction.NewRemoteClient(cfg.InferenceURL,
			prediction.WithHTTPClient(&http.Client{Timeout: cfg.InferenceTimeout}),
			prediction.WithBreaker(prediction.BreakerSettings{
				ConsecutiveFailures: cfg.InferenceBreakerFailures,
				Cooldown:            cfg.InferenceBreakerCooldown,
				OnStateChange:       metrics.BreakerStateChanged,
			}),
		)
		remote = remoteClient
	} else {
		logger.Warn().Msg("INFERENCE_URL not set; predictions come from the keyword fallback only")
	}
	predictor := prediction.NewResolver(remote, prediction.NewFallbackEngine(), cfg.InferenceTimeout, logger)

	encounterSvc := encounter.NewService(encounter.NewRepo(pool))
	reviewSvc := review.NewService(review.NewRepo(pool), logger,
		review.WithCodeRecorder(encounterSvc),
		review.WithObserver(metrics),
	)
	submissionSvc := submission.NewService(submission.Deps{
		Patients:   patient.NewResolverPG(pool),
		Encounters: encounterSvc,
		Predictor:  predictor,
		Catalog:    cat,
		Tasks:      reviewSvc,
		Assigner:   review.NewAssigner(cfg.CoderPool),
		Metrics:    metrics,
		Logger:     logger,
	}, submission.Config{
		FallbackCode: cfg.FallbackCode,
		TopK:         cfg.InferenceTopK,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(telemetry.TracingMiddleware(serviceName))
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.DevUserHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/health/inference", inferenceHealthHandler(remoteClient))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}
	apiV1.Use(middleware.RateLimit(rateLimitConfig(cfg)))
	apiV1.Use(middleware.Audit(logger, nil))

	submission.NewHandler(submissionSvc).RegisterRoutes(apiV1)
	encounter.NewHandler(encounterSvc).RegisterRoutes(apiV1)
	review.NewHandler(reviewSvc).RegisterRoutes(apiV1)
	catalog.NewHandler(catalogRepo).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func poolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBConnLifetime,
		MaxConnIdleTime: cfg.DBConnIdleTime,
		ApplicationName: serviceName,
	}
}

type inferenceHealthChecker interface {
	Health(ctx context.Context) (*prediction.HealthStatus, error)
}

// inferenceHealthHandler reports 200 when the inference service answers and
// 503 otherwise. Without a configured service it reports fallback-only mode.
func inferenceHealthHandler(p inferenceHealthChecker) echo.HandlerFunc {
	return func(c echo.Context) error {
		if p == nil || isNilClient(p) {
			return c.JSON(http.StatusOK, map[string]string{"status": "disabled", "mode": "fallback"})
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		hs, err := p.Health(ctx)
		if err != nil {
			body := map[string]string{"status": "unavailable", "error": err.Error()}
			if hs != nil {
				body["breaker"] = hs.Breaker
			}
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, hs)
	}
}

func isNilClient(p inferenceHealthChecker) bool {
	rc, ok := p.(*prediction.RemoteClient)
	return ok && rc == nil
}

// requireCatalog fails on an empty catalog: without entries no submission can
// produce a review task, not even the default one.
func requireCatalog(cat *catalog.Catalog) error {
	if cat.Len() == 0 {
		return errors.New("catalog is empty; run `coding-server catalog seed` first")
	}
	return nil
}
