package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/docbook/docbook/internal/config"
	"github.com/docbook/docbook/internal/domain/appointment"
	"github.com/docbook/docbook/internal/domain/doctor"
	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/db"
	"github.com/docbook/docbook/internal/platform/events"
	"github.com/docbook/docbook/internal/platform/middleware"
	"github.com/docbook/docbook/internal/platform/reminder"
)

// services are the domain handlers mounted on the API.
type services struct {
	doctors      *doctor.Service
	appointments *appointment.Service
}

// serverDeps are the optional backends picked by configuration.
type serverDeps struct {
	redis  *redis.Client
	checks []db.Check
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	var verify echo.MiddlewareFunc
	if cfg.AuthSigningKey != "" || cfg.AuthIssuer != "" || cfg.AuthJWKSURL != "" {
		verify = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	}
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(verify)
	}
	return verify
}

// newEcho builds the HTTP surface. It is separate from runServer so tests can
// mount it over in-memory services.
func newEcho(cfg *config.Config, logger zerolog.Logger, svc services, deps serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/health"))

	if mw := authMiddleware(cfg); mw != nil {
		e.Use(mw)
	}

	e.GET("/health", db.HealthHandler(deps.checks...))

	api := e.Group("")
	if deps.redis != nil {
		limit := int(cfg.RateLimitRPS * 60)
		if limit <= 0 {
			limit = int(middleware.DefaultRateLimitConfig().RequestsPerSecond * 60)
		}
		limiter := middleware.NewRedisRateLimiter(deps.redis, limit, time.Minute, "")
		api.Use(limiter.Middleware(logger, true))
	} else {
		rl := middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		}
		if rl.RequestsPerSecond <= 0 {
			rl = middleware.DefaultRateLimitConfig()
		}
		api.Use(middleware.RateLimit(rl))
	}

	doctor.NewHandler(svc.doctors).RegisterRoutes(api)
	appointment.NewHandler(svc.appointments).RegisterRoutes(api)
	return e
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, io.Closer, *db.Check, error) {
	brokers := events.SplitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		logger.Info().Msg("KAFKA_BROKERS not set, logging appointment events")
		return events.NewLogPublisher(logger), nil, nil, nil
	}
	kp, err := events.NewKafkaPublisher(brokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTopic).Msg("publishing appointment events to kafka")
	return kp, kp, &db.Check{Name: "kafka", Ping: events.ReadyCheck(brokers)}, nil
}

func newRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// loadServerConfig loads and validates the server configuration and resolves
// the operating timezone.
func loadServerConfig() (*config.Config, *time.Location, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loc, nil
}

func runServer() error {
	// Logger
	logger := serverLogger(os.Getenv("ENV"))

	// Config
	cfg, loc, err := loadServerConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	deps := serverDeps{checks: []db.Check{db.PoolCheck(pool)}}

	if cfg.RedisURL != "" {
		rdb, err := newRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		deps.redis = rdb
		deps.checks = append(deps.checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info().Msg("rate limiting through redis")
	}

	pub, closer, kafkaCheck, err := newPublisher(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up event publisher")
	}
	if closer != nil {
		defer closer.Close()
	}
	if kafkaCheck != nil {
		deps.checks = append(deps.checks, *kafkaCheck)
	}

	doctorSvc := doctor.NewService(doctor.NewRepoPG(pool), loc)
	apptSvc := appointment.NewService(appointment.NewRepoPG(pool), doctorSvc, loc, pub, logger)

	// Reminders
	job := reminder.NewJob(apptSvc, pub, logger, cfg.ReminderWindow)
	sched, err := job.Start(ctx, cfg.ReminderSchedule)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule reminders")
	}
	defer sched.Stop()

	e := newEcho(cfg, logger, services{doctors: doctorSvc, appointments: apptSvc}, deps)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
