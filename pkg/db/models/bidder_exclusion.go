package models

import (
	"time"

	"github.com/google/uuid"
)

// BidderExclusion marks a bidder whose bids no longer count toward a product's outcome.
type BidderExclusion struct {
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	BidderID  uuid.UUID `gorm:"column:bidder_id;type:uuid;primaryKey"`
	Reason    *string   `gorm:"column:reason"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
