package auctions

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/internal/orders"
	dbpkg "github.com/angelmondragon/auctionhouse-backend/pkg/db"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

// settlement records what a terminal transition did to a product.
type settlement struct {
	ended      bool
	outcome    enums.AuctionStatus
	buyNow     bool
	winningBid *models.Bid
	order      *models.Order
}

// finalizer drives the end of the auction lifecycle. It mutates the locked
// product in memory; the caller persists it and queues the events in the
// same transaction.
type finalizer struct {
	ledger bids.Service
	orders orders.Repository
}

// transition moves the product to status when the lifecycle allows it.
func transition(product *models.Product, to enums.AuctionStatus) error {
	if !product.Status.CanTransitionTo(to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("auction cannot move from %s to %s", product.Status, to)).
			WithDetails(map[string]any{
				"productId": product.ID.String(),
				"from":      product.Status,
				"to":        to,
			})
	}
	product.Status = to
	return nil
}

// end closes an active auction. A buy-now end moves EndTime to now; natural
// expiry keeps the scheduled EndTime. The winner is the highest valid bid.
func (f *finalizer) end(ctx context.Context, tx *gorm.DB, product *models.Product, now time.Time, buyNow bool) (*settlement, error) {
	if buyNow {
		product.EndTime = now
	}
	winning, err := f.ledger.WithTx(tx).HighestValidBid(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	if winning == nil {
		if err := transition(product, enums.AuctionStatusEndedNoBids); err != nil {
			return nil, err
		}
		return &settlement{ended: true, outcome: enums.AuctionStatusEndedNoBids, buyNow: buyNow}, nil
	}

	if err := transition(product, enums.AuctionStatusEndedWithWinner); err != nil {
		return nil, err
	}
	s := &settlement{
		ended:      true,
		outcome:    enums.AuctionStatusEndedWithWinner,
		buyNow:     buyNow,
		winningBid: winning,
	}
	order, err := f.createOrder(ctx, tx, product, winning)
	if err != nil {
		return nil, err
	}
	s.order = order
	return s, nil
}

// completeOrder creates the missing order of an auction that already ended
// with a winner.
func (f *finalizer) completeOrder(ctx context.Context, tx *gorm.DB, product *models.Product) (*settlement, error) {
	winning, err := f.ledger.WithTx(tx).HighestValidBid(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	if winning == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "auction ended with a winner but has no valid bid").
			WithDetails(map[string]any{"productId": product.ID.String()})
	}
	order, err := f.createOrder(ctx, tx, product, winning)
	if err != nil {
		return nil, err
	}
	return &settlement{outcome: enums.AuctionStatusEndedWithWinner, winningBid: winning, order: order}, nil
}

func (f *finalizer) createOrder(ctx context.Context, tx *gorm.DB, product *models.Product, winning *models.Bid) (*models.Order, error) {
	order, err := f.orders.WithTx(tx).Create(ctx, &models.Order{
		ProductID:    product.ID,
		BuyerID:      winning.BidderID,
		SellerID:     product.SellerID,
		FinalPrice:   winning.Amount,
		WinningBidID: winning.ID,
		Status:       enums.OrderStatusPendingPayment,
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeFinalizationConflict, err, "order already exists for product").
				WithDetails(map[string]any{"productId": product.ID.String()})
		}
		return nil, err
	}
	if err := transition(product, enums.AuctionStatusOrderCreated); err != nil {
		return nil, err
	}
	return order, nil
}
