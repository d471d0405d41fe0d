package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/dbtest"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

func deadLetter(productID uuid.UUID, failedAt time.Time, message string) models.OutboxDLQ {
	return models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EventType:     enums.EventPriceUpdated,
		AggregateType: enums.AggregateProduct,
		AggregateID:   productID,
		Payload:       json.RawMessage(`{"version":1}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &message,
		AttemptCount:  10,
		FailedAt:      failedAt,
	}
}

func TestDLQInsertTruncatesAndListsPerAggregate(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	productID := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if err := repo.InsertTx(tx, deadLetter(productID, base, strings.Repeat("x", 4096))); err != nil {
			return err
		}
		if err := repo.InsertTx(tx, deadLetter(productID, base.Add(time.Minute), "pubsub unavailable")); err != nil {
			return err
		}
		return repo.InsertTx(tx, deadLetter(uuid.New(), base, "other auction"))
	}))

	rows, err := repo.listByAggregate(context.Background(), enums.AggregateProduct, productID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "pubsub unavailable", *rows[0].ErrorMessage)
	assert.Len(t, *rows[1].ErrorMessage, maxDLQErrorLen)
}

func TestDLQInsertRequiresTransaction(t *testing.T) {
	repo := NewDLQRepository(dbtest.Open(t))
	require.Error(t, repo.InsertTx(nil, deadLetter(uuid.New(), time.Now(), "x")))
}

func TestDLQDeleteFailedBefore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	productID := uuid.New()
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if err := repo.InsertTx(tx, deadLetter(productID, cutoff.Add(-time.Hour), "old")); err != nil {
			return err
		}
		return repo.InsertTx(tx, deadLetter(productID, cutoff.Add(time.Hour), "fresh"))
	}))

	var deleted int64
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeleteFailedBefore(context.Background(), tx, cutoff)
		return err
	}))
	assert.Equal(t, int64(1), deleted)

	rows, err := repo.listByAggregate(context.Background(), enums.AggregateProduct, productID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "fresh", *rows[0].ErrorMessage)
}
