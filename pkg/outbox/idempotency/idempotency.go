// Package idempotency dedupes Pub/Sub redeliveries per consumer. A marker key
// is set with SETNX the first time a consumer relays an event and expires
// after the configured TTL.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/pkg/redis"
)

// DefaultTTL outlives the subscription's message retention.
const DefaultTTL = 7 * 24 * time.Hour

type markerStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
}

type Guard struct {
	store markerStore
	ttl   time.Duration
}

// NewGuard falls back to DefaultTTL when ttl is not positive.
func NewGuard(store markerStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("marker store is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// MarkRelayed reports whether this is the consumer's first delivery of
// eventID. Later calls inside the TTL return false.
func (g *Guard) MarkRelayed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := markerKey(consumer, eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, time.Now().UTC().Unix(), g.ttl)
}

func markerKey(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return redis.RelayedKey(consumer, eventID.String()), nil
}
