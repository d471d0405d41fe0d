// Package eventrelay drains the transactional outbox into Pub/Sub. Rows are
// fetched under SKIP LOCKED, published with the aggregate id as ordering key,
// and marked published, failed, or dead-lettered in the same transaction.
package eventrelay

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	defaultMaxBackoff     = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type brokerClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type Params struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         dbClient
	Broker     brokerClient
	Repository outboxRepository
	DLQ        dlqRepository
	Registry   eventResolver
	Metrics    *metrics.OutboxMetrics
	// Topics overrides publisher lookup; tests inject fakes here.
	Topics TopicPublisherFunc
	Now    func() time.Time
}

// Relay is the outbox publisher loop.
type Relay struct {
	logg     *logger.Logger
	db       dbClient
	broker   brokerClient
	repo     outboxRepository
	dlq      dlqRepository
	registry eventResolver
	metrics  *metrics.OutboxMetrics
	topics   TopicPublisherFunc
	now      func() time.Time

	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
	maxBackoff     time.Duration
}

func New(params Params) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	r := &Relay{
		logg:           params.Logger,
		db:             params.DB,
		broker:         params.Broker,
		repo:           params.Repository,
		dlq:            params.DLQ,
		registry:       params.Registry,
		metrics:        params.Metrics,
		topics:         params.Topics,
		now:            params.Now,
		batchSize:      params.Config.BatchSize,
		maxAttempts:    params.Config.MaxAttempts,
		pollInterval:   time.Duration(params.Config.PollIntervalMS) * time.Millisecond,
		publishTimeout: params.Config.PublishTimeout,
		maxBackoff:     params.Config.MaxBackoff,
	}
	if r.topics == nil {
		r.topics = brokerTopics(params.Broker)
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	if r.publishTimeout <= 0 {
		r.publishTimeout = defaultPublishTimeout
	}
	if r.maxBackoff < r.pollInterval {
		r.maxBackoff = defaultMaxBackoff
	}
	return r, nil
}

// Ping checks both ends of the relay.
func (r *Relay) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.broker.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	return nil
}

// Run polls until ctx is canceled. A full batch is followed immediately by the
// next one; an empty batch waits one poll interval; a failed batch backs off
// exponentially up to the configured cap.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.Ping(ctx); err != nil {
		r.logg.Error(ctx, "outbox relay dependencies not ready", err)
		return err
	}

	idle := retry.WithJitter(jitterWindow, retry.NewConstant(r.pollInterval))
	failing := r.newFailureBackoff()

	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay context canceled")
			return err
		}

		processed, err := r.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch error", err)
			r.metrics.ObserveBatch("error", r.now())
			wait, _ = failing.Next()
		case processed:
			r.metrics.ObserveBatch("processed", r.now())
			failing = r.newFailureBackoff()
			continue
		default:
			r.metrics.ObserveBatch("idle", r.now())
			failing = r.newFailureBackoff()
			wait, _ = idle.Next()
		}

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *Relay) newFailureBackoff() retry.Backoff {
	return retry.WithCappedDuration(r.maxBackoff, retry.WithJitter(jitterWindow, retry.NewExponential(r.pollInterval)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
