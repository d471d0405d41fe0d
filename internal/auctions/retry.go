package auctions

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/auctionhouse-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 25 * time.Millisecond
	defaultTxTimeout    = 5 * time.Second
)

// shouldRetry limits retries to contention: a lost version race or a
// serialization/deadlock/lock-timeout rejection from the database.
func shouldRetry(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification) || dbpkg.IsRetryable(err)
}

// inTx runs fn in a fresh transaction per attempt. Each attempt reads the
// clock once; fn must use that instant for every time decision.
func (s *service) inTx(ctx context.Context, op string, fn func(tx *gorm.DB, now time.Time) error) error {
	attempts := s.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	base := s.cfg.RetryBaseBackoff
	if base <= 0 {
		base = defaultRetryBackoff
	}
	timeout := s.cfg.TxTimeout
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}

	jitter := base / 2
	if jitter <= 0 {
		jitter = time.Millisecond
	}

	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.WithJitter(jitter, retry.NewExponential(base)))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		txCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := s.db.WithTx(txCtx, func(tx *gorm.DB) error {
			return fn(tx, s.now().UTC())
		})
		if err == nil {
			return nil
		}
		if shouldRetry(err) && attempt < attempts {
			s.metrics.IncRetry(op)
			logCtx := s.logg.WithFields(ctx, map[string]any{"operation": op, "attempt": attempt})
			s.logg.Warn(logCtx, "retrying auction transaction after contention")
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) == nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op+" failed")
	}
	return err
}
