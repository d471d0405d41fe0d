package auctions

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/internal/orders"
	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/dbtest"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/payloads"
)

type engineFixture struct {
	conn    *gorm.DB
	svc     Service
	metrics *metrics.AuctionMetrics
	now     time.Time
	seller  models.User
	alice   models.User
	bob     models.User
	carol   models.User
}

func newEngineFixture(t *testing.T, wrap func(Repository) Repository) *engineFixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()

	f := &engineFixture{
		conn:    conn,
		now:     time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC),
		seller:  models.User{ID: uuid.New(), DisplayName: "Sally Seller"},
		alice:   models.User{ID: uuid.New(), DisplayName: "Alice"},
		bob:     models.User{ID: uuid.New(), DisplayName: "Bob"},
		carol:   models.User{ID: uuid.New(), DisplayName: "Carol"},
		metrics: metrics.NewAuctionMetrics(prometheus.NewRegistry()),
	}
	for _, u := range []*models.User{&f.seller, &f.alice, &f.bob, &f.carol} {
		require.NoError(t, conn.Create(u).Error)
	}

	logg := logger.New(logger.Options{ServiceName: "auctions-test", Output: io.Discard})
	bidsRepo := bids.NewRepository(conn)
	ledger, err := bids.NewService(bidsRepo)
	require.NoError(t, err)

	var repo Repository = NewRepository(conn)
	if wrap != nil {
		repo = wrap(repo)
	}
	svc, err := NewService(ServiceParams{
		DB:      client,
		Repo:    repo,
		Bids:    bidsRepo,
		Ledger:  ledger,
		Orders:  orders.NewRepository(conn),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:  logg,
		Metrics: f.metrics,
		Config: config.AuctionConfig{
			MaxAttempts:      3,
			RetryBaseBackoff: time.Millisecond,
			TxTimeout:        5 * time.Second,
			HistoryTailSize:  10,
		},
		Now: func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

// listing creates an active auction: start 50, step 10, ending in an hour.
func (f *engineFixture) listing(t *testing.T, mutate func(p *models.Product)) models.Product {
	t.Helper()
	p := models.Product{
		ID:           uuid.New(),
		SellerID:     f.seller.ID,
		Title:        "Mechanical watch",
		StartPrice:   decimal.RequireFromString("50"),
		BidIncrement: decimal.RequireFromString("10"),
		StartTime:    f.now.Add(-time.Hour),
		EndTime:      f.now.Add(time.Hour),
		AutoExtend:   true,
		Status:       enums.AuctionStatusActive,
	}
	if mutate != nil {
		mutate(&p)
	}
	require.NoError(t, f.conn.Create(&p).Error)
	return p
}

func (f *engineFixture) rule(t *testing.T, thresholdMinutes, extensionMinutes int) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.AuctionRule{
		ID:                   uuid.New(),
		TimeThresholdMinutes: thresholdMinutes,
		ExtensionMinutes:     extensionMinutes,
		Active:               true,
		CreatedAt:            f.now,
	}).Error)
}

func (f *engineFixture) reload(t *testing.T, productID uuid.UUID) models.Product {
	t.Helper()
	var p models.Product
	require.NoError(t, f.conn.First(&p, "id = ?", productID).Error)
	return p
}

func (f *engineFixture) outboxRows(t *testing.T, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.conn.
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, aggregateID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error)
	return rows
}

func (f *engineFixture) eventTypes(t *testing.T, productID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	rows := f.outboxRows(t, enums.AggregateProduct, productID)
	types := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		types = append(types, row.EventType)
	}
	return types
}

func (f *engineFixture) orderCount(t *testing.T, productID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Where("product_id = ?", productID).Count(&count).Error)
	return count
}

func (f *engineFixture) eventData(t *testing.T, productID uuid.UUID, eventType enums.OutboxEventType, dest any) {
	t.Helper()
	rows := f.outboxRows(t, enums.AggregateProduct, productID)
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].EventType != eventType {
			continue
		}
		var envelope outbox.PayloadEnvelope
		require.NoError(t, json.Unmarshal(rows[i].Payload, &envelope))
		require.NoError(t, json.Unmarshal(envelope.Data, dest))
		return
	}
	t.Fatalf("no %s event for product %s", eventType, productID)
}

func (f *engineFixture) bid(t *testing.T, productID uuid.UUID, bidder models.User, amount string) (*BidResult, error) {
	t.Helper()
	return f.svc.AcceptManualBid(context.Background(), ManualBidInput{
		ProductID: productID,
		BidderID:  bidder.ID,
		Amount:    decimal.RequireFromString(amount),
	})
}

func (f *engineFixture) proxy(t *testing.T, productID uuid.UUID, bidder models.User, max string) *AutoBidResult {
	t.Helper()
	res, err := f.svc.RegisterAutoBid(context.Background(), AutoBidInput{
		ProductID: productID,
		BidderID:  bidder.ID,
		MaxPrice:  decimal.RequireFromString(max),
	})
	require.NoError(t, err)
	return res
}

func amountEq(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestAcceptManualBidMovesPriceAndQueuesEvents(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)

	res, err := f.bid(t, p.ID, f.alice, "60")
	require.NoError(t, err)
	amountEq(t, "60", res.CurrentPrice)
	assert.Equal(t, f.alice.ID, res.LeadingBidderID)
	assert.Equal(t, int64(1), res.Bid.Sequence)
	assert.False(t, res.PreviousPrice.Valid)
	assert.Nil(t, res.AutoBid)

	stored := f.reload(t, p.ID)
	require.True(t, stored.CurrentPrice.Valid)
	amountEq(t, "60", stored.CurrentPrice.Decimal)
	assert.Equal(t, int64(1), stored.BidCount)
	assert.Equal(t, int64(1), stored.Version)

	assert.Equal(t, []enums.OutboxEventType{enums.EventBidHistoryUpdated, enums.EventPriceUpdated}, f.eventTypes(t, p.ID))

	var price payloads.PriceUpdatedEvent
	f.eventData(t, p.ID, enums.EventPriceUpdated, &price)
	assert.False(t, price.PreviousPrice.Valid)
	amountEq(t, "60", price.NewPrice)
	assert.Equal(t, "A***e", price.LeadingBidder)

	var history payloads.BidHistoryUpdatedEvent
	f.eventData(t, p.ID, enums.EventBidHistoryUpdated, &history)
	require.Len(t, history.Appended, 1)
	assert.Equal(t, "A***e", history.Appended[0].Bidder)
	require.Len(t, history.History, 1)
}

func TestAcceptManualBidRejections(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)
	ended := f.listing(t, func(p *models.Product) {
		p.StartTime = f.now.Add(-2 * time.Hour)
		p.EndTime = f.now.Add(-time.Minute)
	})
	require.NoError(t, f.conn.Create(&models.BidderExclusion{ProductID: p.ID, BidderID: f.carol.ID, CreatedAt: f.now}).Error)

	_, err := f.bid(t, p.ID, f.alice, "60")
	require.NoError(t, err)

	cases := []struct {
		name      string
		productID uuid.UUID
		bidderID  uuid.UUID
		amount    string
		code      pkgerrors.Code
	}{
		{"equal to current", p.ID, f.bob.ID, "60", pkgerrors.CodeInvalidBidAmount},
		{"below current", p.ID, f.bob.ID, "55", pkgerrors.CodeInvalidBidAmount},
		{"off the step grid", p.ID, f.bob.ID, "75", pkgerrors.CodeInvalidBidIncrement},
		{"ended auction", ended.ID, f.bob.ID, "60", pkgerrors.CodeAuctionNotActive},
		{"excluded bidder", p.ID, f.carol.ID, "70", pkgerrors.CodeForbidden},
		{"seller", p.ID, f.seller.ID, "70", pkgerrors.CodeForbidden},
		{"unknown bidder", p.ID, uuid.New(), "70", pkgerrors.CodePreconditionViolation},
		{"unknown product", uuid.New(), f.bob.ID, "70", pkgerrors.CodePreconditionViolation},
		{"zero amount", p.ID, f.bob.ID, "0", pkgerrors.CodeValidation},
		{"sub-cent amount", p.ID, f.bob.ID, "70.001", pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AcceptManualBid(context.Background(), ManualBidInput{
				ProductID: tc.productID,
				BidderID:  tc.bidderID,
				Amount:    decimal.RequireFromString(tc.amount),
			})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}

	stored := f.reload(t, p.ID)
	amountEq(t, "60", stored.CurrentPrice.Decimal)
	assert.Equal(t, int64(1), stored.BidCount)
	assert.Len(t, f.eventTypes(t, p.ID), 2)
	assert.Empty(t, f.eventTypes(t, ended.ID))
}

func TestAcceptManualBidRequiresIdentifiers(t *testing.T) {
	f := newEngineFixture(t, nil)
	_, err := f.svc.AcceptManualBid(context.Background(), ManualBidInput{Amount: decimal.NewFromInt(10)})
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["productId"])
	assert.Equal(t, "is required", details["bidderId"])
}

func TestSingleProxyPaysStartPrice(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)

	res := f.proxy(t, p.ID, f.alice, "500")
	require.True(t, res.Recalculate.PriceChanged)
	require.NotNil(t, res.Recalculate.GeneratedBid)
	assert.True(t, res.Recalculate.GeneratedBid.IsAutoBid)
	amountEq(t, "50", res.Recalculate.CurrentPrice.Decimal)

	stored := f.reload(t, p.ID)
	require.NotNil(t, stored.LeadingBidderID)
	assert.Equal(t, f.alice.ID, *stored.LeadingBidderID)
}

func TestProxiesResolveToSecondPrice(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)

	f.proxy(t, p.ID, f.alice, "300")
	f.now = f.now.Add(time.Second)
	res := f.proxy(t, p.ID, f.bob, "200")

	require.True(t, res.Recalculate.PriceChanged)
	amountEq(t, "210", res.Recalculate.CurrentPrice.Decimal)
	assert.Equal(t, f.alice.ID, res.Recalculate.GeneratedBid.BidderID)

	stored := f.reload(t, p.ID)
	assert.Equal(t, f.alice.ID, *stored.LeadingBidderID)
	assert.Equal(t, int64(2), stored.BidCount)
}

func TestProxyTieGoesToEarlierRegistration(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)

	f.proxy(t, p.ID, f.alice, "100")
	f.now = f.now.Add(time.Second)
	res := f.proxy(t, p.ID, f.bob, "100")

	amountEq(t, "100", res.Recalculate.CurrentPrice.Decimal)
	assert.Equal(t, f.alice.ID, res.Recalculate.GeneratedBid.BidderID)
}

func TestPriceNeverDecreases(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)

	f.proxy(t, p.ID, f.alice, "500")
	f.now = f.now.Add(time.Second)
	res, err := f.bid(t, p.ID, f.carol, "120")
	require.NoError(t, err)
	require.NotNil(t, res.AutoBid)
	assert.Equal(t, f.alice.ID, res.AutoBid.BidderID)
	amountEq(t, "130", res.CurrentPrice)
	amountEq(t, "50", res.PreviousPrice.Decimal)

	f.now = f.now.Add(time.Second)
	f.proxy(t, p.ID, f.bob, "200")

	history, err := f.svc.GetHistory(context.Background(), p.ID, nil)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].Amount.GreaterThan(history[i-1].Amount),
			"bid %d (%s) does not exceed bid %d (%s)", i, history[i].Amount, i-1, history[i-1].Amount)
	}
	amountEq(t, "210", history[len(history)-1].Amount)
}

func TestRecalculateWithoutChangeQueuesNothing(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)
	f.proxy(t, p.ID, f.alice, "300")
	f.proxy(t, p.ID, f.bob, "200")
	before := f.eventTypes(t, p.ID)
	version := f.reload(t, p.ID).Version

	res, err := f.svc.Recalculate(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, res.PriceChanged)
	assert.Nil(t, res.GeneratedBid)

	assert.Equal(t, before, f.eventTypes(t, p.ID))
	assert.Equal(t, version, f.reload(t, p.ID).Version)
}

func TestRecalculateInactiveAuction(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, func(p *models.Product) {
		p.Status = enums.AuctionStatusScheduled
		p.StartTime = f.now.Add(time.Hour)
		p.EndTime = f.now.Add(2 * time.Hour)
	})
	_, err := f.svc.Recalculate(context.Background(), p.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAuctionNotActive))
}

func TestExcludedBiddersProxiesDoNotCompete(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)
	require.NoError(t, f.conn.Create(&models.BidderExclusion{ProductID: p.ID, BidderID: f.bob.ID, CreatedAt: f.now}).Error)
	require.NoError(t, f.conn.Create(&models.AutoBidConfig{
		ID:        uuid.New(),
		ProductID: p.ID,
		BidderID:  f.bob.ID,
		MaxPrice:  decimal.RequireFromString("300"),
		CreatedAt: f.now,
	}).Error)

	res, err := f.svc.Recalculate(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, res.PriceChanged)

	f.now = f.now.Add(time.Second)
	registered := f.proxy(t, p.ID, f.alice, "100")
	require.True(t, registered.Recalculate.PriceChanged)
	assert.Equal(t, f.alice.ID, registered.Recalculate.GeneratedBid.BidderID)
	amountEq(t, "50", registered.Recalculate.CurrentPrice.Decimal)
}

func TestAntiSnipeExtendsOncePerOperation(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.rule(t, 5, 10)
	end := f.now.Add(30 * time.Minute)
	p := f.listing(t, func(p *models.Product) { p.EndTime = end })

	f.proxy(t, p.ID, f.bob, "100")
	assert.True(t, f.reload(t, p.ID).EndTime.Equal(end))

	f.now = end.Add(-5 * time.Minute)
	res, err := f.bid(t, p.ID, f.alice, "60")
	require.NoError(t, err)
	require.NotNil(t, res.AutoBid)
	amountEq(t, "70", res.CurrentPrice)
	assert.True(t, res.Extended)
	assert.True(t, res.EndTime.Equal(end.Add(10*time.Minute)), "end time %s", res.EndTime)
	assert.True(t, f.reload(t, p.ID).EndTime.Equal(end.Add(10*time.Minute)))

	var price payloads.PriceUpdatedEvent
	f.eventData(t, p.ID, enums.EventPriceUpdated, &price)
	assert.True(t, price.Extended)
	assert.True(t, price.EndTime.Equal(end.Add(10*time.Minute)))
}

func TestAntiSnipeOutsideThreshold(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.rule(t, 5, 10)
	end := f.now.Add(5*time.Minute + time.Second)
	p := f.listing(t, func(p *models.Product) { p.EndTime = end })

	res, err := f.bid(t, p.ID, f.alice, "60")
	require.NoError(t, err)
	assert.False(t, res.Extended)
	assert.True(t, f.reload(t, p.ID).EndTime.Equal(end))
}

func TestAntiSnipeDisabledWithoutActiveRule(t *testing.T) {
	f := newEngineFixture(t, nil)
	end := f.now.Add(time.Minute)
	p := f.listing(t, func(p *models.Product) { p.EndTime = end })

	res, err := f.bid(t, p.ID, f.alice, "60")
	require.NoError(t, err)
	assert.False(t, res.Extended)
	assert.True(t, res.EndTime.Equal(end))
}

func TestBuyNowEndsAuctionInsideBidTransaction(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.rule(t, 5, 10)
	p := f.listing(t, func(p *models.Product) {
		p.BuyNowPrice = decimal.NewNullDecimal(decimal.RequireFromString("155"))
		p.EndTime = f.now.Add(2 * time.Minute)
	})

	res, err := f.bid(t, p.ID, f.alice, "155")
	require.NoError(t, err)
	assert.True(t, res.BuyNowTriggered)
	assert.False(t, res.Extended)
	require.NotNil(t, res.OrderID)
	assert.True(t, res.EndTime.Equal(f.now))

	stored := f.reload(t, p.ID)
	assert.Equal(t, enums.AuctionStatusOrderCreated, stored.Status)
	assert.True(t, stored.EndTime.Equal(f.now))
	assert.Equal(t, int64(1), f.orderCount(t, p.ID))

	assert.Equal(t, []enums.OutboxEventType{
		enums.EventBidHistoryUpdated,
		enums.EventPriceUpdated,
		enums.EventAuctionEnded,
	}, f.eventTypes(t, p.ID))
	orderEvents := f.outboxRows(t, enums.AggregateOrder, *res.OrderID)
	require.Len(t, orderEvents, 1)
	assert.Equal(t, enums.EventOrderCreated, orderEvents[0].EventType)

	var ended payloads.AuctionEndedEvent
	f.eventData(t, p.ID, enums.EventAuctionEnded, &ended)
	assert.True(t, ended.BuyNow)
	assert.Equal(t, enums.AuctionStatusEndedWithWinner, ended.Outcome)
	assert.Equal(t, "A***e", ended.Winner)

	_, err = f.bid(t, p.ID, f.bob, "165")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAuctionNotActive))
}

func TestBuyNowAboveThresholdRejected(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, func(p *models.Product) {
		p.BuyNowPrice = decimal.NewNullDecimal(decimal.RequireFromString("150"))
	})
	_, err := f.bid(t, p.ID, f.alice, "160")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidBidAmount))
	assert.Equal(t, enums.AuctionStatusActive, f.reload(t, p.ID).Status)
}

func TestProxiesCappedAtBuyNowEndAuction(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, func(p *models.Product) {
		p.BuyNowPrice = decimal.NewNullDecimal(decimal.RequireFromString("400"))
	})

	f.proxy(t, p.ID, f.alice, "900")
	f.now = f.now.Add(time.Second)
	res := f.proxy(t, p.ID, f.bob, "600")

	assert.True(t, res.Recalculate.BuyNowTriggered)
	amountEq(t, "400", res.Recalculate.CurrentPrice.Decimal)
	require.NotNil(t, res.Recalculate.OrderID)

	var order models.Order
	require.NoError(t, f.conn.First(&order, "product_id = ?", p.ID).Error)
	assert.Equal(t, f.alice.ID, order.BuyerID)
	amountEq(t, "400", order.FinalPrice)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)
	_, err := f.bid(t, p.ID, f.alice, "60")
	require.NoError(t, err)
	_, err = f.bid(t, p.ID, f.bob, "90")
	require.NoError(t, err)

	_, err = f.svc.Finalize(context.Background(), p.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	f.now = f.now.Add(2 * time.Hour)
	first, err := f.svc.Finalize(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, first.NoOp)
	assert.Equal(t, enums.AuctionStatusEndedWithWinner, first.Outcome)
	require.NotNil(t, first.OrderID)
	amountEq(t, "90", first.FinalPrice.Decimal)

	second, err := f.svc.Finalize(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, second.NoOp)
	assert.Equal(t, *first.OrderID, *second.OrderID)

	stored := f.reload(t, p.ID)
	assert.Equal(t, enums.AuctionStatusOrderCreated, stored.Status)
	assert.True(t, stored.EndTime.Equal(p.EndTime))
	assert.Equal(t, int64(1), f.orderCount(t, p.ID))

	ended := 0
	for _, eventType := range f.eventTypes(t, p.ID) {
		if eventType == enums.EventAuctionEnded {
			ended++
		}
	}
	assert.Equal(t, 1, ended)
}

func TestFinalizeConcurrentCallersCreateOneOrder(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)
	_, err := f.bid(t, p.ID, f.alice, "60")
	require.NoError(t, err)
	f.now = f.now.Add(2 * time.Hour)

	const callers = 5
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Finalize(context.Background(), p.ID)
			if err != nil {
				t.Errorf("finalize: %v", err)
				return
			}
			if !res.NoOp {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, int64(1), f.orderCount(t, p.ID))
}

func TestFinalizeWithoutBids(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)
	f.now = f.now.Add(2 * time.Hour)

	res, err := f.svc.Finalize(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.AuctionStatusEndedNoBids, res.Outcome)
	assert.Nil(t, res.OrderID)
	assert.Equal(t, int64(0), f.orderCount(t, p.ID))
	assert.Equal(t, []enums.OutboxEventType{enums.EventAuctionEnded}, f.eventTypes(t, p.ID))

	var ended payloads.AuctionEndedEvent
	f.eventData(t, p.ID, enums.EventAuctionEnded, &ended)
	assert.Empty(t, ended.Winner)
	assert.False(t, ended.FinalPrice.Valid)

	again, err := f.svc.Finalize(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, again.NoOp)
	assert.Len(t, f.eventTypes(t, p.ID), 1)
}

func TestFinalizeSkipsExcludedLeader(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)
	_, err := f.bid(t, p.ID, f.alice, "60")
	require.NoError(t, err)
	_, err = f.bid(t, p.ID, f.bob, "90")
	require.NoError(t, err)
	require.NoError(t, f.conn.Create(&models.BidderExclusion{ProductID: p.ID, BidderID: f.bob.ID, CreatedAt: f.now}).Error)
	f.now = f.now.Add(2 * time.Hour)

	res, err := f.svc.Finalize(context.Background(), p.ID)
	require.NoError(t, err)
	amountEq(t, "60", res.FinalPrice.Decimal)

	var order models.Order
	require.NoError(t, f.conn.First(&order, "product_id = ?", p.ID).Error)
	assert.Equal(t, f.alice.ID, order.BuyerID)
}

func TestFinalizeScheduledPastEnd(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, func(p *models.Product) {
		p.Status = enums.AuctionStatusScheduled
		p.StartTime = f.now.Add(-2 * time.Hour)
		p.EndTime = f.now.Add(-time.Hour)
	})
	res, err := f.svc.Finalize(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.AuctionStatusEndedNoBids, res.Outcome)
	assert.Equal(t, enums.AuctionStatusEndedNoBids, f.reload(t, p.ID).Status)
}

func TestFinalizeIgnoresTerminalSideExits(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, func(p *models.Product) {
		p.Status = enums.AuctionStatusSuspended
		p.EndTime = f.now.Add(-time.Minute)
	})
	res, err := f.svc.Finalize(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, enums.AuctionStatusSuspended, res.Outcome)
	assert.Empty(t, f.eventTypes(t, p.ID))
}

func TestBidOpensScheduledAuctionLazily(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, func(p *models.Product) {
		p.Status = enums.AuctionStatusScheduled
		p.StartTime = f.now.Add(-time.Second)
	})

	_, err := f.bid(t, p.ID, f.alice, "60")
	require.NoError(t, err)
	assert.Equal(t, enums.AuctionStatusActive, f.reload(t, p.ID).Status)
}

func TestActivate(t *testing.T) {
	f := newEngineFixture(t, nil)
	early := f.listing(t, func(p *models.Product) {
		p.Status = enums.AuctionStatusScheduled
		p.StartTime = f.now.Add(time.Minute)
	})
	open := f.listing(t, func(p *models.Product) {
		p.Status = enums.AuctionStatusScheduled
	})

	changed, err := f.svc.Activate(context.Background(), early.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.svc.Activate(context.Background(), open.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, enums.AuctionStatusActive, f.reload(t, open.ID).Status)

	changed, err = f.svc.Activate(context.Background(), open.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRegisterAutoBidCeilingMustExceedCurrent(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)
	_, err := f.bid(t, p.ID, f.alice, "100")
	require.NoError(t, err)

	_, err = f.svc.RegisterAutoBid(context.Background(), AutoBidInput{
		ProductID: p.ID,
		BidderID:  f.bob.ID,
		MaxPrice:  decimal.RequireFromString("100"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidBidAmount))

	var configs int64
	require.NoError(t, f.conn.Model(&models.AutoBidConfig{}).Count(&configs).Error)
	assert.Zero(t, configs)
}

func TestRegisterAutoBidRejectsSubCentCeiling(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)

	_, err := f.svc.RegisterAutoBid(context.Background(), AutoBidInput{
		ProductID: p.ID,
		BidderID:  f.bob.ID,
		MaxPrice:  decimal.RequireFromString("300.005"),
	})
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must have at most 2 decimal places", details["maxPrice"])

	var configs int64
	require.NoError(t, f.conn.Model(&models.AutoBidConfig{}).Count(&configs).Error)
	assert.Zero(t, configs)

	// trailing zeros do not add precision
	res, err := f.svc.RegisterAutoBid(context.Background(), AutoBidInput{
		ProductID: p.ID,
		BidderID:  f.bob.ID,
		MaxPrice:  decimal.RequireFromString("300.500"),
	})
	require.NoError(t, err)
	amountEq(t, "300.5", res.Config.MaxPrice)
}

func TestGetHistoryMasksForOtherViewers(t *testing.T) {
	f := newEngineFixture(t, nil)
	p := f.listing(t, nil)
	_, err := f.bid(t, p.ID, f.alice, "60")
	require.NoError(t, err)
	_, err = f.bid(t, p.ID, f.bob, "70")
	require.NoError(t, err)

	public, err := f.svc.GetHistory(context.Background(), p.ID, &f.carol.ID)
	require.NoError(t, err)
	require.Len(t, public, 2)
	assert.Equal(t, "A***e", public[0].Bidder)
	assert.Equal(t, "B***b", public[1].Bidder)

	own, err := f.svc.GetHistory(context.Background(), p.ID, &f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "A***e", own[0].Bidder)
	assert.Equal(t, "Bob", own[1].Bidder)
}

// conflictingRepo loses every optimistic version race.
type conflictingRepo struct {
	Repository
	saves *int
}

func (r conflictingRepo) WithTx(tx *gorm.DB) Repository {
	return conflictingRepo{Repository: r.Repository.WithTx(tx), saves: r.saves}
}

func (r conflictingRepo) SaveProduct(ctx context.Context, product *models.Product) error {
	*r.saves++
	return pkgerrors.New(pkgerrors.CodeConcurrentModification, "version mismatch")
}

func TestConcurrentModificationRetriesThenSurfaces(t *testing.T) {
	saves := 0
	f := newEngineFixture(t, func(inner Repository) Repository {
		return conflictingRepo{Repository: inner, saves: &saves}
	})
	p := f.listing(t, nil)

	_, err := f.bid(t, p.ID, f.alice, "60")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification))
	assert.Equal(t, 3, saves)

	stored := f.reload(t, p.ID)
	assert.False(t, stored.CurrentPrice.Valid)
	assert.Zero(t, stored.BidCount)
	assert.Empty(t, f.eventTypes(t, p.ID))

	var count int64
	require.NoError(t, f.conn.Model(&models.Bid{}).Count(&count).Error)
	assert.Zero(t, count)
}
