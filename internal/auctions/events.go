package auctions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/payloads"
)

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

// eventPublisher queues auction events in the caller's transaction. Nothing
// is queued for a no-op, and a rolled back transaction drops everything.
type eventPublisher struct {
	outbox   outboxEmitter
	ledger   bids.Service
	bidsRepo bids.Repository
	tailSize int
}

// bidsAppended queues bid_history_updated followed by price_updated.
func (p *eventPublisher) bidsAppended(ctx context.Context, tx *gorm.DB, c *change, actor *outbox.ActorRef) error {
	if len(c.appended) == 0 {
		return nil
	}
	product := c.product
	names, err := p.bidsRepo.WithTx(tx).DisplayNames(ctx, appendedBidders(c.appended, product.LeadingBidderID))
	if err != nil {
		return err
	}
	tail, err := p.ledger.WithTx(tx).PublicTail(ctx, product.ID, p.tailSize)
	if err != nil {
		return err
	}

	appended := make([]payloads.BidEntry, 0, len(c.appended))
	for _, entry := range bids.Present(c.appended, names, uuid.Nil, nil) {
		appended = append(appended, toBidEntry(entry))
	}
	history := make([]payloads.BidEntry, 0, len(tail))
	for _, entry := range tail {
		history = append(history, toBidEntry(entry))
	}

	leader := ""
	if product.LeadingBidderID != nil {
		leader = bids.MaskName(names[*product.LeadingBidderID])
	}
	return p.outbox.Emit(ctx, tx,
		outbox.DomainEvent{
			EventType:   enums.EventBidHistoryUpdated,
			AggregateID: product.ID,
			Actor:       actor,
			OccurredAt:  c.now,
			Data: payloads.BidHistoryUpdatedEvent{
				ProductID: product.ID,
				Appended:  appended,
				History:   history,
			},
		},
		outbox.DomainEvent{
			EventType:   enums.EventPriceUpdated,
			AggregateID: product.ID,
			Actor:       actor,
			OccurredAt:  c.now,
			Data: payloads.PriceUpdatedEvent{
				ProductID:     product.ID,
				PreviousPrice: c.previousPrice,
				NewPrice:      product.CurrentPrice.Decimal,
				LeadingBidder: leader,
				BidCount:      product.BidCount,
				EndTime:       product.EndTime,
				Extended:      c.extended,
			},
		},
	)
}

// auctionEnded queues auction_ended and, when an order was created, order_created.
func (p *eventPublisher) auctionEnded(ctx context.Context, tx *gorm.DB, product *models.Product, s *settlement, now time.Time) error {
	if s == nil {
		return nil
	}
	var events []outbox.DomainEvent
	if s.ended {
		data := payloads.AuctionEndedEvent{
			ProductID: product.ID,
			Outcome:   s.outcome,
			BuyNow:    s.buyNow,
			EndedAt:   product.EndTime,
		}
		if s.winningBid != nil {
			names, err := p.bidsRepo.WithTx(tx).DisplayNames(ctx, []uuid.UUID{s.winningBid.BidderID})
			if err != nil {
				return err
			}
			data.Winner = bids.MaskName(names[s.winningBid.BidderID])
			data.FinalPrice = decimal.NewNullDecimal(s.winningBid.Amount)
		}
		events = append(events, outbox.DomainEvent{
			EventType:   enums.EventAuctionEnded,
			AggregateID: product.ID,
			OccurredAt:  now,
			Data:        data,
		})
	}
	if s.order != nil {
		events = append(events, outbox.DomainEvent{
			EventType:   enums.EventOrderCreated,
			AggregateID: s.order.ID,
			OccurredAt:  now,
			Data: payloads.OrderCreatedEvent{
				OrderID:      s.order.ID,
				ProductID:    s.order.ProductID,
				BuyerID:      s.order.BuyerID,
				SellerID:     s.order.SellerID,
				WinningBidID: s.order.WinningBidID,
				FinalPrice:   s.order.FinalPrice,
			},
		})
	}
	return p.outbox.Emit(ctx, tx, events...)
}

func toBidEntry(entry bids.HistoryEntry) payloads.BidEntry {
	return payloads.BidEntry{
		BidID:     entry.BidID,
		Bidder:    entry.Bidder,
		Amount:    entry.Amount,
		IsAutoBid: entry.IsAutoBid,
		Sequence:  entry.Sequence,
		PlacedAt:  entry.PlacedAt,
	}
}

func appendedBidders(rows []models.Bid, leader *uuid.UUID) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(rows)+1)
	for _, bid := range rows {
		ids = append(ids, bid.BidderID)
	}
	if leader != nil {
		ids = append(ids, *leader)
	}
	return ids
}
