// Package main is the entry point for the learning engine API server.
//
// The API server owns the ingestion path: every client activity enters
// through POST /v1/activities and fans out to the quota ledger, step and
// roadmap progress, the daily stat rollup and the streak calculation.
// The read side serves quota status, the study dashboard and the streak
// leaderboard.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nextstep-hub/learning-engine/config"
	"github.com/nextstep-hub/learning-engine/internal/application/command"
	"github.com/nextstep-hub/learning-engine/internal/application/eventhandler"
	"github.com/nextstep-hub/learning-engine/internal/application/query"
	"github.com/nextstep-hub/learning-engine/internal/domain/notification"
	"github.com/nextstep-hub/learning-engine/internal/domain/quota"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/internal/infrastructure/messaging"
	"github.com/nextstep-hub/learning-engine/internal/infrastructure/persistence/postgres"
	"github.com/nextstep-hub/learning-engine/internal/infrastructure/persistence/redis"
	"github.com/nextstep-hub/learning-engine/internal/infrastructure/service"
	httpapi "github.com/nextstep-hub/learning-engine/internal/interface/http"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})
	log.Info("starting learning engine API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database")
	conn, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if cfg.Database.AutoMigrate {
		log.Info("running database migrations")
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	quotaRepo := postgres.NewQuotaRepository(conn)
	stepRepo := postgres.NewStepRepository(conn)
	roadmapRepo := postgres.NewRoadmapRepository(conn)
	statsRepo := postgres.NewStatsRepository(conn)
	auditRepo := postgres.NewAuditLogRepository(conn)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		cache             *redis.Cache
		quotaCache        *redis.QuotaCache
		streakLeaderboard *redis.StreakLeaderboard
	)
	if !cfg.Redis.Disabled {
		log.Info("connecting to redis")
		cache, err = redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			// The ledger and repositories stay authoritative without it.
			log.Warn("redis unavailable, caches disabled", logger.Err(err))
		} else {
			defer func() { _ = cache.Close() }()
			if cfg.Features.IsEnabled(config.FeatureQuotaCache, nil) {
				quotaCache = redis.NewQuotaCache(cache, log)
			}
			if cfg.Features.IsEnabled(config.FeatureStreakLeaderboard, nil) {
				streakLeaderboard = redis.NewStreakLeaderboard(cache)
			}
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Event bus and subscribers
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultConfig()
	busCfg.Logger = log
	bus := messaging.NewEventBus(busCfg)
	defer func() { _ = bus.Close() }()

	roles, err := buildRoleProvider(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build role provider: %w", err)
	}

	sender := buildSender(cfg, bus, log)

	if cfg.Features.IsEnabled(config.FeatureNotifyRoadmapCompleted, nil) {
		if err := bus.Subscribe(shared.EventRoadmapCompleted, eventhandler.NewOnRoadmapCompleted(sender, log)); err != nil {
			return err
		}
	}
	if streakLeaderboard != nil {
		if err := bus.Subscribe(shared.EventStreakUpdated, eventhandler.NewOnStreakUpdated(streakLeaderboard, log)); err != nil {
			return err
		}
	}
	if cfg.Features.IsEnabled(config.FeatureStreakMilestones, nil) {
		if err := bus.Subscribe(shared.EventStreakMilestone, eventhandler.NewOnStreakMilestone(sender, log)); err != nil {
			return err
		}
	}
	if quotaCache != nil {
		if err := bus.Subscribe(shared.EventQuotaConsumed, eventhandler.NewOnQuotaConsumed(quotaCache, log)); err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Application handlers
	// ─────────────────────────────────────────────────────────────────────────
	ledger := quota.NewLedger(quotaRepo)

	recordActivity := command.NewRecordActivityHandler(
		roles, ledger, stepRepo, roadmapRepo, statsRepo, auditRepo, bus, log,
	)

	quotaStatus := query.NewGetQuotaStatusHandler(ledger, roles)
	if quotaCache != nil {
		quotaStatus = quotaStatus.WithCache(quotaCache)
	}

	dashboard := query.NewGetDashboardHandler(statsRepo, roadmapRepo, ledger, roles)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	health := httpapi.NewHealthChecker(cfg.App.Version)
	health.AddCheck("database", conn.Ping)
	if cache != nil {
		health.AddCheck("cache", cache.Ping)
	}

	deps := httpapi.Dependencies{
		RecordActivity: recordActivity,
		QuotaStatus:    quotaStatus,
		Dashboard:      dashboard,
		Health:         health,
		Logger:         log,
	}
	if streakLeaderboard != nil {
		deps.StreakBoard = streakLeaderboard
	}

	server := httpapi.NewServer(httpapi.Config{
		Host:               cfg.HTTP.Host,
		Port:               cfg.HTTP.Port,
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		IdleTimeout:        cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       cfg.HTTP.MaxBodyBytes,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
		ServiceKeyHash:     cfg.HTTP.ServiceKeyHash,
	}, deps)

	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Err(err))
	}

	log.Info("shutdown completed")
	return nil
}

// buildRoleProvider wires the identity service client, or a static
// provider when no identity service is configured.
func buildRoleProvider(cfg *config.Config, log *logger.Logger) (quota.RoleProvider, error) {
	fallback, err := quota.ParseRole(cfg.Identity.FallbackRole)
	if err != nil {
		return nil, err
	}

	if cfg.Identity.BaseURL != "" {
		return service.NewHTTPRoleProvider(service.HTTPRoleProviderConfig{
			BaseURL:      cfg.Identity.BaseURL,
			ServiceKey:   cfg.Identity.ServiceKey,
			Timeout:      cfg.Identity.RequestTimeout,
			CacheTTL:     cfg.Identity.RoleCacheTTL,
			FallbackRole: fallback,
			Logger:       log,
		})
	}

	return service.NewStaticRoleProvider(cfg.Identity.StaticRoles, fallback)
}

// buildSender wires webhook delivery, falling back to log-only output.
func buildSender(cfg *config.Config, bus shared.EventPublisher, log *logger.Logger) notification.Sender {
	var inner notification.Sender
	if cfg.Notifications.WebhookURL != "" {
		webhook, err := service.NewWebhookSender(service.WebhookSenderConfig{
			URL:        cfg.Notifications.WebhookURL,
			ServiceKey: cfg.Notifications.ServiceKey,
			Timeout:    cfg.Notifications.RequestTimeout,
		})
		if err != nil {
			log.Warn("invalid webhook config, using log sender", logger.Err(err))
		} else {
			inner = webhook
		}
	}
	if inner == nil {
		inner = service.NewLogSender(log)
	}

	return service.NewDispatcher(inner, bus, log)
}

func redisConfig(rc config.RedisConfig) redis.Config {
	c := redis.DefaultConfig()
	c.Host = rc.Host
	c.Port = rc.Port
	c.Password = rc.Password
	c.DB = rc.DB
	c.PoolSize = rc.PoolSize
	c.MinIdleConns = rc.MinIdleConns
	c.DialTimeout = rc.DialTimeout
	c.ReadTimeout = rc.ReadTimeout
	c.WriteTimeout = rc.WriteTimeout
	return c
}
