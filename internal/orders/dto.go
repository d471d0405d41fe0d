package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// BuyerOrderSummary is the buyer-facing view of a won auction.
type BuyerOrderSummary struct {
	OrderID    uuid.UUID         `json:"orderId"`
	ProductID  uuid.UUID         `json:"productId"`
	SellerID   uuid.UUID         `json:"sellerId"`
	FinalPrice decimal.Decimal   `json:"finalPrice"`
	Status     enums.OrderStatus `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// BuyerOrderList wraps a page of buyer orders and the cursor for the next page.
type BuyerOrderList struct {
	Orders     []BuyerOrderSummary `json:"orders"`
	NextCursor string              `json:"nextCursor,omitempty"`
}

func toSummary(order models.Order) BuyerOrderSummary {
	return BuyerOrderSummary{
		OrderID:    order.ID,
		ProductID:  order.ProductID,
		SellerID:   order.SellerID,
		FinalPrice: order.FinalPrice,
		Status:     order.Status,
		CreatedAt:  order.CreatedAt,
	}
}
