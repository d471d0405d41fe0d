package auctions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// ManualBidInput is a bid placed by a person.
type ManualBidInput struct {
	ProductID uuid.UUID       `json:"productId" validate:"required"`
	BidderID  uuid.UUID       `json:"bidderId" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"required,positive_amount,money_scale"`
}

// AutoBidInput registers or raises a bidder's proxy ceiling.
type AutoBidInput struct {
	ProductID uuid.UUID       `json:"productId" validate:"required"`
	BidderID  uuid.UUID       `json:"bidderId" validate:"required"`
	MaxPrice  decimal.Decimal `json:"maxPrice" validate:"required,positive_amount,money_scale"`
}

// BidResult describes an accepted manual bid and everything it set off.
type BidResult struct {
	Bid             models.Bid          `json:"bid"`
	AutoBid         *models.Bid         `json:"autoBid,omitempty"`
	PreviousPrice   decimal.NullDecimal `json:"previousPrice"`
	CurrentPrice    decimal.Decimal     `json:"currentPrice"`
	LeadingBidderID uuid.UUID           `json:"leadingBidderId"`
	EndTime         time.Time           `json:"endTime"`
	Extended        bool                `json:"extended"`
	BuyNowTriggered bool                `json:"buyNowTriggered"`
	OrderID         *uuid.UUID          `json:"orderId,omitempty"`
}

// RecalculateResult reports whether proxy resolution moved the price.
type RecalculateResult struct {
	PriceChanged    bool                `json:"priceChanged"`
	GeneratedBid    *models.Bid         `json:"generatedBid,omitempty"`
	CurrentPrice    decimal.NullDecimal `json:"currentPrice"`
	Extended        bool                `json:"extended"`
	BuyNowTriggered bool                `json:"buyNowTriggered"`
	OrderID         *uuid.UUID          `json:"orderId,omitempty"`
}

// AutoBidResult pairs the stored config with the recalculation it triggered.
type AutoBidResult struct {
	Config      models.AutoBidConfig `json:"config"`
	Recalculate RecalculateResult    `json:"recalculate"`
}

// FinalizeResult is the outcome of a Finalize call. NoOp is true when the
// product was already past finalization or another caller won the race.
type FinalizeResult struct {
	Outcome    enums.AuctionStatus `json:"outcome"`
	OrderID    *uuid.UUID          `json:"orderId,omitempty"`
	FinalPrice decimal.NullDecimal `json:"finalPrice"`
	NoOp       bool                `json:"noOp"`
}
