package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/pagination"
)

// Repository defines persistence operations for settlement orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByProductID(ctx context.Context, productID uuid.UUID) (*models.Order, error)
	ExistsForProduct(ctx context.Context, productID uuid.UUID) (bool, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*BuyerOrderList, error)
}
