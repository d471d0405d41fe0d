// Package auctions is the bidding engine: it accepts manual bids, resolves
// proxy bidding, applies anti-sniping and buy-now, and finalizes auctions.
// Every state change runs in one transaction holding the product row lock and
// queues its events in the transactional outbox.
package auctions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/internal/auctions/pricing"
	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/internal/orders"
	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
	"github.com/angelmondragon/auctionhouse-backend/pkg/pagination"
)

const (
	bidKindManual = "manual"
	bidKindAuto   = "auto"
	resultOK      = "accepted"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the engine entry points.
type Service interface {
	AcceptManualBid(ctx context.Context, input ManualBidInput) (*BidResult, error)
	RegisterAutoBid(ctx context.Context, input AutoBidInput) (*AutoBidResult, error)
	Recalculate(ctx context.Context, productID uuid.UUID) (*RecalculateResult, error)
	Finalize(ctx context.Context, productID uuid.UUID) (*FinalizeResult, error)
	Activate(ctx context.Context, productID uuid.UUID) (bool, error)
	GetHistory(ctx context.Context, productID uuid.UUID, viewerID *uuid.UUID) ([]bids.HistoryEntry, error)
	GetHistoryPage(ctx context.Context, productID uuid.UUID, viewerID *uuid.UUID, params pagination.Params) (*bids.HistoryPage, error)
}

// ServiceParams wires the engine.
type ServiceParams struct {
	DB      txRunner
	Repo    Repository
	Bids    bids.Repository
	Ledger  bids.Service
	Orders  orders.Repository
	Outbox  outboxEmitter
	Logger  *logger.Logger
	Metrics *metrics.AuctionMetrics
	Config  config.AuctionConfig
	Now     func() time.Time
}

type service struct {
	db        txRunner
	repo      Repository
	bids      bids.Repository
	ledger    bids.Service
	finalizer *finalizer
	events    *eventPublisher
	logg      *logger.Logger
	metrics   *metrics.AuctionMetrics
	cfg       config.AuctionConfig
	now       func() time.Time
}

// NewService builds the bidding engine.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("auctions repository required")
	}
	if params.Bids == nil {
		return nil, fmt.Errorf("bids repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("bid ledger service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:        params.DB,
		repo:      params.Repo,
		bids:      params.Bids,
		ledger:    params.Ledger,
		finalizer: &finalizer{ledger: params.Ledger, orders: params.Orders},
		events: &eventPublisher{
			outbox:   params.Outbox,
			ledger:   params.Ledger,
			bidsRepo: params.Bids,
			tailSize: params.Config.HistoryTailSize,
		},
		logg:    params.Logger,
		metrics: params.Metrics,
		cfg:     params.Config,
		now:     now,
	}, nil
}

// change accumulates what one operation did to a locked product.
type change struct {
	product       *models.Product
	rule          *models.AuctionRule
	now           time.Time
	previousPrice decimal.NullDecimal
	appended      []models.Bid
	activated     bool
	extended      bool
	settlement    *settlement
}

func (c *change) dirty() bool {
	return c.activated || len(c.appended) > 0 || c.settlement != nil
}

func (c *change) autoBid() *models.Bid {
	for i := len(c.appended) - 1; i >= 0; i-- {
		if c.appended[i].IsAutoBid {
			bid := c.appended[i]
			return &bid
		}
	}
	return nil
}

func (c *change) orderID() *uuid.UUID {
	if c.settlement == nil || c.settlement.order == nil {
		return nil
	}
	id := c.settlement.order.ID
	return &id
}

func (s *service) AcceptManualBid(ctx context.Context, input ManualBidInput) (*BidResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("accept_manual_bid", time.Since(start)) }()

	if err := validateInput(input); err != nil {
		s.metrics.ObserveBid(bidKindManual, resultLabel(err))
		return nil, err
	}
	ctx = s.logg.WithProductID(ctx, input.ProductID.String())
	ctx = s.logg.WithBidderID(ctx, input.BidderID.String())

	var result *BidResult
	err := s.inTx(ctx, "accept_manual_bid", func(tx *gorm.DB, now time.Time) error {
		c, err := s.load(ctx, tx, input.ProductID, now)
		if err != nil {
			return err
		}
		if err := s.checkBidder(ctx, tx, c, input.BidderID); err != nil {
			return err
		}
		if err := pricing.ValidateBid(pricing.BidCheck{
			Amount:  input.Amount,
			Current: c.product.PriceOrStart(),
			Step:    c.product.BidIncrement,
			BuyNow:  c.product.BuyNowPrice,
		}); err != nil {
			return err
		}

		manual, err := s.appendBid(ctx, tx, c, input.BidderID, input.Amount, false)
		if err != nil {
			return err
		}
		if err := s.resolveProxies(ctx, tx, c); err != nil {
			return err
		}
		if err := s.settleOrExtend(ctx, tx, c); err != nil {
			return err
		}
		if err := s.commit(ctx, tx, c, &outbox.ActorRef{UserID: input.BidderID, Role: "bidder"}); err != nil {
			return err
		}

		result = &BidResult{
			Bid:             manual,
			AutoBid:         c.autoBid(),
			PreviousPrice:   c.previousPrice,
			CurrentPrice:    c.product.CurrentPrice.Decimal,
			LeadingBidderID: *c.product.LeadingBidderID,
			EndTime:         c.product.EndTime,
			Extended:        c.extended,
			BuyNowTriggered: c.settlement != nil && c.settlement.buyNow,
			OrderID:         c.orderID(),
		}
		return nil
	})
	s.metrics.ObserveBid(bidKindManual, resultLabel(err))
	if err != nil {
		s.logFailure(ctx, "manual bid rejected", err)
		return nil, err
	}
	if result.AutoBid != nil {
		s.metrics.ObserveBid(bidKindAuto, resultOK)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"amount":        input.Amount.String(),
		"current_price": result.CurrentPrice.String(),
		"extended":      result.Extended,
		"buy_now":       result.BuyNowTriggered,
	})
	s.logg.Info(logCtx, "manual bid accepted")
	return result, nil
}

func (s *service) RegisterAutoBid(ctx context.Context, input AutoBidInput) (*AutoBidResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("register_auto_bid", time.Since(start)) }()

	if err := validateInput(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithProductID(ctx, input.ProductID.String())
	ctx = s.logg.WithBidderID(ctx, input.BidderID.String())

	var result *AutoBidResult
	err := s.inTx(ctx, "register_auto_bid", func(tx *gorm.DB, now time.Time) error {
		c, err := s.load(ctx, tx, input.ProductID, now)
		if err != nil {
			return err
		}
		if err := s.checkBidder(ctx, tx, c, input.BidderID); err != nil {
			return err
		}
		if err := checkCeiling(c.product, input.MaxPrice); err != nil {
			return err
		}

		cfg := models.AutoBidConfig{
			ProductID: input.ProductID,
			BidderID:  input.BidderID,
			MaxPrice:  input.MaxPrice,
			CreatedAt: now,
		}
		if err := s.repo.WithTx(tx).CreateAutoBidConfig(ctx, &cfg); err != nil {
			return err
		}
		if err := s.resolveProxies(ctx, tx, c); err != nil {
			return err
		}
		if err := s.settleOrExtend(ctx, tx, c); err != nil {
			return err
		}
		if err := s.commit(ctx, tx, c, &outbox.ActorRef{UserID: input.BidderID, Role: "bidder"}); err != nil {
			return err
		}
		result = &AutoBidResult{Config: cfg, Recalculate: recalculateResult(c)}
		return nil
	})
	if err != nil {
		s.logFailure(ctx, "auto-bid registration rejected", err)
		return nil, err
	}
	if result.Recalculate.GeneratedBid != nil {
		s.metrics.ObserveBid(bidKindAuto, resultOK)
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"max_price":     input.MaxPrice.String(),
		"price_changed": result.Recalculate.PriceChanged,
	})
	s.logg.Info(logCtx, "auto-bid registered")
	return result, nil
}

func (s *service) Recalculate(ctx context.Context, productID uuid.UUID) (*RecalculateResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("recalculate", time.Since(start)) }()

	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	ctx = s.logg.WithProductID(ctx, productID.String())

	var result RecalculateResult
	err := s.inTx(ctx, "recalculate", func(tx *gorm.DB, now time.Time) error {
		c, err := s.load(ctx, tx, productID, now)
		if err != nil {
			return err
		}
		if !pricing.IsActive(c.product, now) {
			return notActive(c.product)
		}
		if err := s.resolveProxies(ctx, tx, c); err != nil {
			return err
		}
		if err := s.settleOrExtend(ctx, tx, c); err != nil {
			return err
		}
		if err := s.commit(ctx, tx, c, nil); err != nil {
			return err
		}
		result = recalculateResult(c)
		return nil
	})
	if err != nil {
		s.logFailure(ctx, "recalculation failed", err)
		return nil, err
	}
	if result.GeneratedBid != nil {
		s.metrics.ObserveBid(bidKindAuto, resultOK)
		s.logg.Info(s.logg.WithField(ctx, "current_price", result.CurrentPrice.Decimal.String()), "proxy bidding moved the price")
	}
	return &result, nil
}

func (s *service) Finalize(ctx context.Context, productID uuid.UUID) (*FinalizeResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("finalize", time.Since(start)) }()

	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	ctx = s.logg.WithProductID(ctx, productID.String())

	var result FinalizeResult
	err := s.inTx(ctx, "finalize", func(tx *gorm.DB, now time.Time) error {
		result = FinalizeResult{}
		product, err := s.lockProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		existing, err := s.finalizer.orders.WithTx(tx).FindByProductID(ctx, productID)
		if err != nil {
			return err
		}
		if existing != nil {
			id := existing.ID
			result = FinalizeResult{
				Outcome:    product.Status,
				OrderID:    &id,
				FinalPrice: decimal.NewNullDecimal(existing.FinalPrice),
				NoOp:       true,
			}
			return nil
		}

		var st *settlement
		switch product.Status {
		case enums.AuctionStatusScheduled, enums.AuctionStatusActive:
			if !pricing.HasExpired(product, now) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "auction has not reached its end time").
					WithDetails(map[string]any{"productId": productID.String(), "endTime": product.EndTime})
			}
			if product.Status == enums.AuctionStatusScheduled {
				if err := transition(product, enums.AuctionStatusActive); err != nil {
					return err
				}
			}
			st, err = s.finalizer.end(ctx, tx, product, now, false)
		case enums.AuctionStatusEndedWithWinner:
			st, err = s.finalizer.completeOrder(ctx, tx, product)
		default:
			result = FinalizeResult{Outcome: product.Status, FinalPrice: product.CurrentPrice, NoOp: true}
			return nil
		}
		if err != nil {
			return err
		}

		if err := s.repo.WithTx(tx).SaveProduct(ctx, product); err != nil {
			return err
		}
		if err := s.events.auctionEnded(ctx, tx, product, st, now); err != nil {
			return err
		}
		result = FinalizeResult{Outcome: st.outcome, OrderID: orderIDOf(st)}
		if st.winningBid != nil {
			result.FinalPrice = decimal.NewNullDecimal(st.winningBid.Amount)
		}
		return nil
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeFinalizationConflict) {
		s.metrics.IncFinalization("conflict")
		s.logg.Warn(ctx, "finalization lost the race to a concurrent caller")
		return &FinalizeResult{NoOp: true}, nil
	}
	if err != nil {
		s.metrics.IncFinalization("error")
		s.logFailure(ctx, "finalization failed", err)
		return nil, err
	}

	if result.NoOp {
		s.metrics.IncFinalization("noop")
		s.logg.Debug(ctx, "finalization skipped")
		return &result, nil
	}
	s.metrics.IncFinalization(string(result.Outcome))
	s.logg.Info(s.logg.WithField(ctx, "outcome", result.Outcome), "auction finalized")
	return &result, nil
}

// Activate opens a scheduled auction whose start time has passed. It reports
// whether the product changed.
func (s *service) Activate(ctx context.Context, productID uuid.UUID) (bool, error) {
	ctx = s.logg.WithProductID(ctx, productID.String())
	activated := false
	err := s.inTx(ctx, "activate", func(tx *gorm.DB, now time.Time) error {
		activated = false
		product, err := s.lockProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if product.Status != enums.AuctionStatusScheduled || !pricing.InWindow(product, now) {
			return nil
		}
		if err := transition(product, enums.AuctionStatusActive); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).SaveProduct(ctx, product); err != nil {
			return err
		}
		activated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if activated {
		s.logg.Info(ctx, "auction activated")
	}
	return activated, nil
}

func (s *service) GetHistory(ctx context.Context, productID uuid.UUID, viewerID *uuid.UUID) ([]bids.HistoryEntry, error) {
	return s.ledger.History(ctx, productID, viewerID)
}

func (s *service) GetHistoryPage(ctx context.Context, productID uuid.UUID, viewerID *uuid.UUID, params pagination.Params) (*bids.HistoryPage, error) {
	return s.ledger.HistoryPage(ctx, productID, viewerID, params)
}

func (s *service) lockProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.WithTx(tx).LockProduct(ctx, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodePreconditionViolation, "product not found").
			WithDetails(map[string]any{"productId": productID.String()})
	}
	if err != nil {
		return nil, err
	}
	return product, nil
}

// load locks the product, opens it when its window has started, and fetches
// the anti-sniping rule once for the whole operation.
func (s *service) load(ctx context.Context, tx *gorm.DB, productID uuid.UUID, now time.Time) (*change, error) {
	product, err := s.lockProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	c := &change{product: product, now: now, previousPrice: product.CurrentPrice}
	if product.Status == enums.AuctionStatusScheduled && pricing.InWindow(product, now) {
		if err := transition(product, enums.AuctionStatusActive); err != nil {
			return nil, err
		}
		c.activated = true
	}
	rule, err := s.repo.WithTx(tx).ActiveRule(ctx)
	if err != nil {
		return nil, err
	}
	c.rule = rule
	return c, nil
}

// checkBidder gates bids and proxy registrations on the auction being open and
// the bidder being a known, non-excluded user other than the seller.
func (s *service) checkBidder(ctx context.Context, tx *gorm.DB, c *change, bidderID uuid.UUID) error {
	if !pricing.IsActive(c.product, c.now) {
		return notActive(c.product)
	}
	if c.product.SellerID == bidderID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "sellers cannot bid on their own auction")
	}
	excluded, err := s.bids.WithTx(tx).IsExcluded(ctx, c.product.ID, bidderID)
	if err != nil {
		return err
	}
	if excluded {
		return pkgerrors.New(pkgerrors.CodeForbidden, "bidder is excluded from this auction")
	}
	exists, err := s.repo.WithTx(tx).UserExists(ctx, bidderID)
	if err != nil {
		return err
	}
	if !exists {
		return pkgerrors.New(pkgerrors.CodePreconditionViolation, "bidder not found").
			WithDetails(map[string]any{"bidderId": bidderID.String()})
	}
	return nil
}

// appendBid writes the next ledger entry and moves the price to its amount.
func (s *service) appendBid(ctx context.Context, tx *gorm.DB, c *change, bidderID uuid.UUID, amount decimal.Decimal, auto bool) (models.Bid, error) {
	bid := models.Bid{
		ProductID: c.product.ID,
		BidderID:  bidderID,
		Amount:    amount,
		IsAutoBid: auto,
		Sequence:  c.product.BidCount + 1,
		CreatedAt: c.now,
	}
	if err := s.bids.WithTx(tx).Append(ctx, &bid); err != nil {
		return models.Bid{}, err
	}
	leader := bidderID
	c.product.BidCount = bid.Sequence
	c.product.CurrentPrice = decimal.NewNullDecimal(amount)
	c.product.LeadingBidderID = &leader
	c.appended = append(c.appended, bid)
	return bid, nil
}

// resolveProxies runs proxy resolution over the non-excluded configs and
// appends the resulting system bid, if any.
func (s *service) resolveProxies(ctx context.Context, tx *gorm.DB, c *change) error {
	configs, err := s.repo.WithTx(tx).ListAutoBidConfigs(ctx, c.product.ID)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return nil
	}
	excluded, err := s.bids.WithTx(tx).ExcludedBidders(ctx, c.product.ID)
	if err != nil {
		return err
	}
	configs = withoutBidders(configs, excluded)

	res, err := pricing.Resolve(pricing.ResolveInput{
		Configs:    configs,
		StartPrice: c.product.StartPrice,
		Increment:  c.product.BidIncrement,
		Current:    c.product.CurrentPrice,
		LeaderID:   c.product.LeadingBidderID,
		BuyNow:     c.product.BuyNowPrice,
	})
	if err != nil {
		return err
	}
	if !res.Changed {
		return nil
	}
	_, err = s.appendBid(ctx, tx, c, res.Winner, res.Price, true)
	return err
}

// settleOrExtend ends the auction when the price reached buy-now; otherwise a
// bid inside the threshold extends the end time once.
func (s *service) settleOrExtend(ctx context.Context, tx *gorm.DB, c *change) error {
	if len(c.appended) == 0 {
		return nil
	}
	p := c.product
	if p.BuyNowPrice.Valid && p.CurrentPrice.Valid && p.CurrentPrice.Decimal.GreaterThanOrEqual(p.BuyNowPrice.Decimal) {
		st, err := s.finalizer.end(ctx, tx, p, c.now, true)
		if err != nil {
			return err
		}
		c.settlement = st
		return nil
	}
	if pricing.NeedsExtension(p, c.rule, c.now) {
		p.EndTime = pricing.Extend(p, c.rule)
		c.extended = true
	}
	return nil
}

// commit persists the product under the version check and queues the events.
func (s *service) commit(ctx context.Context, tx *gorm.DB, c *change, actor *outbox.ActorRef) error {
	if !c.dirty() {
		return nil
	}
	if err := s.repo.WithTx(tx).SaveProduct(ctx, c.product); err != nil {
		return err
	}
	if err := s.events.bidsAppended(ctx, tx, c, actor); err != nil {
		return err
	}
	return s.events.auctionEnded(ctx, tx, c.product, c.settlement, c.now)
}

func (s *service) logFailure(ctx context.Context, msg string, err error) {
	typed := pkgerrors.As(err)
	if typed != nil && !pkgerrors.MetadataFor(typed.Code()).Retryable && typed.Code() != pkgerrors.CodePreconditionViolation {
		s.logg.Info(s.logg.WithField(ctx, "code", typed.Code()), msg)
		return
	}
	s.logg.Error(ctx, msg, err)
}

func recalculateResult(c *change) RecalculateResult {
	auto := c.autoBid()
	return RecalculateResult{
		PriceChanged:    auto != nil,
		GeneratedBid:    auto,
		CurrentPrice:    c.product.CurrentPrice,
		Extended:        c.extended,
		BuyNowTriggered: c.settlement != nil && c.settlement.buyNow,
		OrderID:         c.orderID(),
	}
}

// checkCeiling requires a proxy ceiling that can still win: above the current
// price, or at least the start price before the first bid.
func checkCeiling(product *models.Product, max decimal.Decimal) error {
	if product.CurrentPrice.Valid {
		if !max.GreaterThan(product.CurrentPrice.Decimal) {
			return pkgerrors.New(pkgerrors.CodeInvalidBidAmount, "maximum price must exceed the current price").
				WithDetails(map[string]string{"maxPrice": max.String(), "current": product.CurrentPrice.Decimal.String()})
		}
		return nil
	}
	if max.LessThan(product.StartPrice) {
		return pkgerrors.New(pkgerrors.CodeInvalidBidAmount, "maximum price must reach the start price").
			WithDetails(map[string]string{"maxPrice": max.String(), "startPrice": product.StartPrice.String()})
	}
	return nil
}

func notActive(product *models.Product) error {
	return pkgerrors.New(pkgerrors.CodeAuctionNotActive, "auction is not accepting bids").
		WithDetails(map[string]any{
			"productId": product.ID.String(),
			"status":    product.Status,
			"startTime": product.StartTime,
			"endTime":   product.EndTime,
		})
}

func withoutBidders(configs []models.AutoBidConfig, excluded []uuid.UUID) []models.AutoBidConfig {
	if len(excluded) == 0 {
		return configs
	}
	skip := make(map[uuid.UUID]struct{}, len(excluded))
	for _, id := range excluded {
		skip[id] = struct{}{}
	}
	out := make([]models.AutoBidConfig, 0, len(configs))
	for _, cfg := range configs {
		if _, ok := skip[cfg.BidderID]; ok {
			continue
		}
		out = append(out, cfg)
	}
	return out
}

func orderIDOf(st *settlement) *uuid.UUID {
	if st == nil || st.order == nil {
		return nil
	}
	id := st.order.ID
	return &id
}

func resultLabel(err error) string {
	if err == nil {
		return resultOK
	}
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}
