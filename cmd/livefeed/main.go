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
	"github.com/angelmondragon/auctionhouse-backend/internal/livefeed"
	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/instance"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/registry"
	"github.com/angelmondragon/auctionhouse-backend/pkg/pubsub"
	"github.com/angelmondragon/auctionhouse-backend/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "livefeed"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "livefeed"

	logg = logger.New(logger.Options{
		ServiceName: "livefeed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.LiveFeedSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "livefeed subscription", errors.New("subscription not configured"))
	}

	guard, err := idempotency.NewGuard(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency guard", err)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	requireResource(ctx, logg, "event registry", err)
	decoders := registry.NewDecoderRegistry(eventRegistry.DescriptorsForTopic(cfg.PubSub.AuctionTopic)...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	feedMetrics := metrics.NewLiveFeedMetrics(reg)

	hub, err := livefeed.NewHub(logg, feedMetrics)
	requireResource(ctx, logg, "livefeed hub", err)

	subscribe, err := livefeed.NewHandler(hub, cfg.LiveFeed, logg)
	requireResource(ctx, logg, "livefeed handler", err)

	consumer, err := livefeed.NewConsumer(livefeed.ConsumerParams{
		Subscription: subscription,
		Hub:          hub,
		Decoders:     decoders,
		Idempotency:  guard,
		Metrics:      feedMetrics,
		Logger:       logg,
		ConsumerName: "livefeed:" + instance.GetID(),
	})
	requireResource(ctx, logg, "livefeed consumer", err)

	server := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.LiveFeed.Port),
		Handler: routes.NewLiveFeedRouter(routes.LiveFeedParams{
			Config:    cfg,
			Logger:    logg,
			Subscribe: subscribe,
			Limiter:   redisClient,
			Gatherer:  reg,
			Dependencies: map[string]controllers.Pinger{
				"redis":  redisClient,
				"pubsub": pubsubClient,
			},
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"addr":        server.Addr,
	})
	logg.Info(runCtx, "livefeed ready")

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		if err := consumer.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("livefeed consumer: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		// websocket connections are hijacked, so Shutdown does not wait on
		// them; closing the hub ends their pumps
		defer hub.Close()
		return routes.Serve(groupCtx, server, shutdownTimeout)
	})

	if err := group.Wait(); err != nil {
		logg.Error(runCtx, "livefeed stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "livefeed shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
