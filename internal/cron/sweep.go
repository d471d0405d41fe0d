package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	defaultBatchSize = 100
	defaultPoolSize  = 8
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// sweepResult aggregates per-item outcomes of a sweep.
type sweepResult struct {
	succeeded int
	failed    int
	err       error
}

// sweep applies fn to every id on a bounded worker pool. A failing item is
// recorded and never stops the others.
func sweep(ctx context.Context, poolSize int, ids []uuid.UUID, fn func(ctx context.Context, id uuid.UUID) error) sweepResult {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		res sweepResult
	)
	record := func(id uuid.UUID, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.failed++
			res.err = multierr.Append(res.err, fmt.Errorf("product %s: %w", id, err))
			return
		}
		res.succeeded++
	}
	if len(ids) == 0 {
		return res
	}
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return sweepResult{failed: len(ids), err: fmt.Errorf("worker pool: %w", err)}
	}
	defer pool.Release()

	for _, id := range ids {
		if ctxErr := ctx.Err(); ctxErr != nil {
			record(id, ctxErr)
			continue
		}
		id := id
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					record(id, fmt.Errorf("panic: %v", r))
				}
			}()
			record(id, fn(ctx, id))
		})
		if submitErr != nil {
			wg.Done()
			record(id, fmt.Errorf("submit: %w", submitErr))
		}
	}
	wg.Wait()
	return res
}
