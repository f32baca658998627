// Package main is the entry point for the learning engine worker.
//
// The worker runs the engine's periodic jobs: the evening sweep that
// warns users whose streak is about to break, and the nightly rebuild
// of the Redis streak leaderboard from the authoritative daily stats.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nextstep-hub/learning-engine/config"
	"github.com/nextstep-hub/learning-engine/internal/domain/notification"
	"github.com/nextstep-hub/learning-engine/internal/infrastructure/messaging"
	"github.com/nextstep-hub/learning-engine/internal/infrastructure/persistence/postgres"
	"github.com/nextstep-hub/learning-engine/internal/infrastructure/persistence/redis"
	"github.com/nextstep-hub/learning-engine/internal/infrastructure/scheduler"
	"github.com/nextstep-hub/learning-engine/internal/infrastructure/scheduler/jobs"
	"github.com/nextstep-hub/learning-engine/internal/infrastructure/service"
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
	if !cfg.Scheduler.Enabled {
		return errors.New("scheduler is disabled, nothing to run")
	}

	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})
	log.Info("starting learning engine worker",
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

	statsRepo := postgres.NewStatsRepository(conn)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Redis
	// ─────────────────────────────────────────────────────────────────────────
	var (
		cache             *redis.Cache
		streakLeaderboard *redis.StreakLeaderboard
		locker            jobs.JobLocker
	)
	if !cfg.Redis.Disabled {
		log.Info("connecting to redis")
		cache, err = redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			// Jobs run unlocked and the leaderboard rebuild is skipped.
			log.Warn("redis unavailable", logger.Err(err))
		} else {
			defer func() { _ = cache.Close() }()
			streakLeaderboard = redis.NewStreakLeaderboard(cache)
			locker = cache
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Notification delivery
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultConfig()
	busCfg.Logger = log
	bus := messaging.NewEventBus(busCfg)
	defer func() { _ = bus.Close() }()

	sender := buildSender(cfg, bus, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Scheduler and jobs
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{Logger: log})

	if cfg.Features.IsEnabled(config.FeatureStreakReminders, nil) {
		reminderSchedule, err := scheduler.ParseCronExpression(cfg.Scheduler.ReminderCron)
		if err != nil {
			return fmt.Errorf("invalid reminder cron %q: %w", cfg.Scheduler.ReminderCron, err)
		}
		reminderJob := jobs.NewDetectIdleStreaksJob(statsRepo, sender, locker, log)
		if err := sched.Register(reminderJob, reminderSchedule); err != nil {
			return err
		}
	}

	if streakLeaderboard != nil && cfg.Features.IsEnabled(config.FeatureStreakLeaderboard, nil) {
		rebuildSchedule, err := scheduler.ParseCronExpression(cfg.Scheduler.LeaderboardRebuildCron)
		if err != nil {
			return fmt.Errorf("invalid leaderboard cron %q: %w", cfg.Scheduler.LeaderboardRebuildCron, err)
		}
		rebuildJob := jobs.NewRebuildStreakLeaderboardJob(statsRepo, streakLeaderboard, locker, log)
		if err := sched.Register(rebuildJob, rebuildSchedule); err != nil {
			return err
		}
	}

	if len(sched.ListJobs()) == 0 {
		return errors.New("no jobs enabled")
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Info("worker is running", logger.Int("jobs", len(sched.ListJobs())))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info("received shutdown signal", logger.String("signal", sig.String()))

	if err := sched.Stop(); err != nil {
		log.Error("scheduler stop failed", logger.Err(err))
	}

	log.Info("shutdown completed")
	return nil
}

// buildSender wires webhook delivery, falling back to log-only output.
func buildSender(cfg *config.Config, bus *messaging.EventBus, log *logger.Logger) notification.Sender {
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
