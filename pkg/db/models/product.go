package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// Product is an item listed for auction. CurrentPrice is null until the first
// accepted bid; LeadingBidderID is the bidder holding CurrentPrice.
type Product struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID        uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	Title           string              `gorm:"column:title;not null"`
	StartPrice      decimal.Decimal     `gorm:"column:start_price;type:numeric(14,2);not null"`
	CurrentPrice    decimal.NullDecimal `gorm:"column:current_price;type:numeric(14,2)"`
	BuyNowPrice     decimal.NullDecimal `gorm:"column:buy_now_price;type:numeric(14,2)"`
	BidIncrement    decimal.Decimal     `gorm:"column:bid_increment;type:numeric(14,2);not null"`
	StartTime       time.Time           `gorm:"column:start_time;not null"`
	EndTime         time.Time           `gorm:"column:end_time;not null"`
	AutoExtend      bool                `gorm:"column:auto_extend;not null"`
	Status          enums.AuctionStatus `gorm:"column:status;type:auction_status;not null;default:'scheduled'"`
	LeadingBidderID *uuid.UUID          `gorm:"column:leading_bidder_id;type:uuid"`
	BidCount        int64               `gorm:"column:bid_count;not null;default:0"`
	Version         int64               `gorm:"column:version;not null;default:0"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// PriceOrStart returns the current price, or the start price when no bid has been accepted.
func (p *Product) PriceOrStart() decimal.Decimal {
	if p.CurrentPrice.Valid {
		return p.CurrentPrice.Decimal
	}
	return p.StartPrice
}
