package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/internal/auctions"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
)

const auctionFinalizationJobName = "auction-finalization"

// AuctionFinalizationJobParams configures the finalization sweep.
type AuctionFinalizationJobParams struct {
	Logger     *logger.Logger
	Engine     auctionFinalizer
	Repository dueFinalizationLister
	Metrics    *metrics.CronJobMetrics
	BatchSize  int
	PoolSize   int
}

type auctionFinalizer interface {
	Finalize(ctx context.Context, productID uuid.UUID) (*auctions.FinalizeResult, error)
}

type dueFinalizationLister interface {
	ListDueForFinalization(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// NewAuctionFinalizationJob constructs the sweep that closes auctions whose
// end time has passed.
func NewAuctionFinalizationJob(params AuctionFinalizationJobParams) (Job, error) {
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
	return &auctionFinalizationJob{
		logg:     params.Logger,
		engine:   params.Engine,
		repo:     params.Repository,
		metrics:  params.Metrics,
		batch:    batch,
		poolSize: params.PoolSize,
		now:      time.Now,
	}, nil
}

type auctionFinalizationJob struct {
	logg     *logger.Logger
	engine   auctionFinalizer
	repo     dueFinalizationLister
	metrics  *metrics.CronJobMetrics
	batch    int
	poolSize int
	now      func() time.Time
}

func (j *auctionFinalizationJob) Name() string { return auctionFinalizationJobName }

// Run finalizes one batch of due auctions. Item failures are logged and
// returned together once the whole batch has been attempted.
func (j *auctionFinalizationJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	ids, err := j.repo.ListDueForFinalization(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("list due auctions: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	res := sweep(ctx, j.poolSize, ids, j.finalize)
	j.metrics.AddSweepItems(auctionFinalizationJobName, res.succeeded, res.failed)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":       len(ids),
		"finalized": res.succeeded,
		"failed":    res.failed,
		"batch_cap": len(ids) == j.batch,
	})
	j.logg.Info(logCtx, "auction finalization sweep complete")
	return res.err
}

func (j *auctionFinalizationJob) finalize(ctx context.Context, productID uuid.UUID) error {
	itemCtx := j.logg.WithProductID(ctx, productID.String())
	res, err := j.engine.Finalize(itemCtx, productID)
	if err != nil {
		j.logg.Error(itemCtx, "auction finalization failed", err)
		return err
	}
	fields := map[string]any{
		"outcome": string(res.Outcome),
		"no_op":   res.NoOp,
	}
	if res.OrderID != nil {
		fields["order_id"] = res.OrderID.String()
	}
	j.logg.Info(j.logg.WithFields(itemCtx, fields), "auction finalized")
	return nil
}
