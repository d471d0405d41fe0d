// Command cron-worker runs the auction sweeps: activation of scheduled
// auctions, finalization of expired ones, and outbox retention. One Redis lock
// keeps concurrent workers from sweeping the same cycle.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/auctionhouse-backend/api/controllers"
	"github.com/angelmondragon/auctionhouse-backend/api/routes"
	"github.com/angelmondragon/auctionhouse-backend/internal/auctions"
	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/internal/cron"
	"github.com/angelmondragon/auctionhouse-backend/internal/orders"
	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
	"github.com/angelmondragon/auctionhouse-backend/pkg/migrate"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
	"github.com/angelmondragon/auctionhouse-backend/pkg/redis"
)

const (
	serviceKind = "cron-worker"
	lockName    = "auction-sweeps"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service, err := buildService(cfg, logg, reg, dbClient, redisClient)
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting cron worker")
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := service.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("cron service: %w", err)
		}
		return nil
	})
	if cfg.Scheduler.OpsPort != "" {
		ops := &http.Server{
			Addr: ":" + cfg.Scheduler.OpsPort,
			Handler: routes.NewOpsRouter(routes.OpsParams{
				Config:   cfg,
				Logger:   logg,
				Gatherer: reg,
				Dependencies: map[string]controllers.Pinger{
					"database": dbClient,
					"redis":    redisClient,
				},
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		group.Go(func() error { return routes.Serve(groupCtx, ops, routes.DefaultShutdownGrace) })
	}

	if err := group.Wait(); err != nil {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func buildService(cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
	engine, auctionRepo, err := buildEngine(cfg, dbClient, logg, reg)
	if err != nil {
		return nil, fmt.Errorf("auction engine: %w", err)
	}

	cronMetrics := metrics.NewCronJobMetrics(reg)
	lock, err := cron.NewRedisLock(redisClient, redis.LockKey(lockName), cfg.Scheduler.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}

	activation, err := cron.NewAuctionActivationJob(cron.AuctionActivationJobParams{
		Logger:     logg,
		Engine:     engine,
		Repository: auctionRepo,
		Metrics:    cronMetrics,
		BatchSize:  cfg.Scheduler.BatchSize,
		PoolSize:   cfg.Scheduler.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("activation job: %w", err)
	}
	finalization, err := cron.NewAuctionFinalizationJob(cron.AuctionFinalizationJobParams{
		Logger:     logg,
		Engine:     engine,
		Repository: auctionRepo,
		Metrics:    cronMetrics,
		BatchSize:  cfg.Scheduler.BatchSize,
		PoolSize:   cfg.Scheduler.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("finalization job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       outbox.NewRepository(dbClient.DB()),
		DLQ:              outbox.NewDLQRepository(dbClient.DB()),
		Metrics:          cronMetrics,
		RetentionDays:    cfg.Outbox.RetentionDays,
		DLQRetentionDays: cfg.Outbox.DLQRetentionDays,
		MinAttempts:      cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	// activation runs before finalization so an auction that opened and
	// closed between ticks is still settled in the same cycle
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(activation, finalization, retention),
		Lock:       lock,
		Metrics:    cronMetrics,
		Interval:   cfg.Scheduler.Interval,
		Schedule:   cfg.Scheduler.Schedule,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("cron service: %w", err)
	}
	return service, nil
}

func buildEngine(cfg *config.Config, dbClient *db.Client, logg *logger.Logger, reg prometheus.Registerer) (auctions.Service, auctions.Repository, error) {
	conn := dbClient.DB()
	auctionRepo := auctions.NewRepository(conn)
	bidsRepo := bids.NewRepository(conn)
	ledger, err := bids.NewService(bidsRepo)
	if err != nil {
		return nil, nil, err
	}
	engine, err := auctions.NewService(auctions.ServiceParams{
		DB:      dbClient,
		Repo:    auctionRepo,
		Bids:    bidsRepo,
		Ledger:  ledger,
		Orders:  orders.NewRepository(conn),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:  logg,
		Metrics: metrics.NewAuctionMetrics(reg),
		Config:  cfg.Auction,
	})
	if err != nil {
		return nil, nil, err
	}
	return engine, auctionRepo, nil
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
