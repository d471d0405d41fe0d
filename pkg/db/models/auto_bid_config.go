package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AutoBidConfig is a bidder's proxy ceiling for a product. CreatedAt breaks ties
// between equal ceilings.
type AutoBidConfig struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	BidderID  uuid.UUID       `gorm:"column:bidder_id;type:uuid;not null"`
	MaxPrice  decimal.Decimal `gorm:"column:max_price;type:numeric(14,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
