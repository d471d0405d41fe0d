package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// Order is the settlement record created when an auction ends with a winner.
// product_id is unique so at most one order exists per product.
type Order struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID    uuid.UUID         `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_orders_product_id"`
	BuyerID      uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID     uuid.UUID         `gorm:"column:seller_id;type:uuid;not null"`
	FinalPrice   decimal.Decimal   `gorm:"column:final_price;type:numeric(14,2);not null"`
	WinningBidID uuid.UUID         `gorm:"column:winning_bid_id;type:uuid;not null"`
	Status       enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending_payment'"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
