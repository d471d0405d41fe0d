package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// BidEntry is the public view of a ledger row. Bidder is already masked.
type BidEntry struct {
	BidID     uuid.UUID       `json:"bidId"`
	Bidder    string          `json:"bidder"`
	Amount    decimal.Decimal `json:"amount"`
	IsAutoBid bool            `json:"isAutoBid"`
	Sequence  int64           `json:"sequence"`
	PlacedAt  time.Time       `json:"placedAt"`
}

// BidHistoryUpdatedEvent carries the bids appended by one operation plus the
// most recent slice of the public history.
type BidHistoryUpdatedEvent struct {
	ProductID uuid.UUID  `json:"productId"`
	Appended  []BidEntry `json:"appended"`
	History   []BidEntry `json:"history"`
}

// PriceUpdatedEvent is emitted when the current price changes. EndTime reflects
// any anti-sniping extension applied in the same operation.
type PriceUpdatedEvent struct {
	ProductID     uuid.UUID           `json:"productId"`
	PreviousPrice decimal.NullDecimal `json:"previousPrice"`
	NewPrice      decimal.Decimal     `json:"newPrice"`
	LeadingBidder string              `json:"leadingBidder"`
	BidCount      int64               `json:"bidCount"`
	EndTime       time.Time           `json:"endTime"`
	Extended      bool                `json:"extended"`
}

// AuctionEndedEvent reports the final outcome of an auction.
type AuctionEndedEvent struct {
	ProductID  uuid.UUID           `json:"productId"`
	Outcome    enums.AuctionStatus `json:"outcome"`
	Winner     string              `json:"winner,omitempty"`
	FinalPrice decimal.NullDecimal `json:"finalPrice"`
	BuyNow     bool                `json:"buyNow"`
	EndedAt    time.Time           `json:"endedAt"`
}

// OrderCreatedEvent hands the settlement order to the payment flow.
type OrderCreatedEvent struct {
	OrderID      uuid.UUID       `json:"orderId"`
	ProductID    uuid.UUID       `json:"productId"`
	BuyerID      uuid.UUID       `json:"buyerId"`
	SellerID     uuid.UUID       `json:"sellerId"`
	WinningBidID uuid.UUID       `json:"winningBidId"`
	FinalPrice   decimal.Decimal `json:"finalPrice"`
}
