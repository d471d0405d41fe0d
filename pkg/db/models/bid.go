package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid is an append-only entry in a product's bid ledger.
type Bid struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	BidderID  uuid.UUID       `gorm:"column:bidder_id;type:uuid;not null"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	IsAutoBid bool            `gorm:"column:is_auto_bid;not null;default:false"`
	Sequence  int64           `gorm:"column:sequence;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
