package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
)

const auctionActivationJobName = "auction-activation"

type AuctionActivationJobParams struct {
	Logger     *logger.Logger
	Engine     auctionActivator
	Repository dueActivationLister
	Metrics    *metrics.CronJobMetrics
	BatchSize  int
	PoolSize   int
}

type auctionActivator interface {
	Activate(ctx context.Context, productID uuid.UUID) (bool, error)
}

type dueActivationLister interface {
	ListDueForActivation(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// NewAuctionActivationJob opens scheduled auctions whose start time has come.
// Bids open a due auction on their own; the sweep covers quiet listings.
func NewAuctionActivationJob(params AuctionActivationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("auction engine required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("auction repository required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &auctionActivationJob{
		logg:     params.Logger,
		engine:   params.Engine,
		repo:     params.Repository,
		metrics:  params.Metrics,
		batch:    batch,
		poolSize: params.PoolSize,
		now:      time.Now,
	}, nil
}

type auctionActivationJob struct {
	logg     *logger.Logger
	engine   auctionActivator
	repo     dueActivationLister
	metrics  *metrics.CronJobMetrics
	batch    int
	poolSize int
	now      func() time.Time
}

func (j *auctionActivationJob) Name() string { return auctionActivationJobName }

func (j *auctionActivationJob) Run(ctx context.Context) error {
	ids, err := j.repo.ListDueForActivation(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("list scheduled auctions: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	res := sweep(ctx, j.poolSize, ids, func(ctx context.Context, productID uuid.UUID) error {
		itemCtx := j.logg.WithProductID(ctx, productID.String())
		opened, err := j.engine.Activate(itemCtx, productID)
		if err != nil {
			j.logg.Error(itemCtx, "auction activation failed", err)
			return err
		}
		if opened {
			j.logg.Info(itemCtx, "auction activated")
		}
		return nil
	})
	j.metrics.AddSweepItems(auctionActivationJobName, res.succeeded, res.failed)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"due":       len(ids),
		"activated": res.succeeded,
		"failed":    res.failed,
	}), "auction activation sweep complete")
	return res.err
}
