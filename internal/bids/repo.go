package bids

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
)

// Repository is the append-only bid ledger plus the lookups history needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, bid *models.Bid) error
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Bid, error)
	ListTail(ctx context.Context, productID uuid.UUID, limit int) ([]models.Bid, error)
	ListAfter(ctx context.Context, productID uuid.UUID, afterSequence int64, limit int) ([]models.Bid, error)
	HighestBid(ctx context.Context, productID uuid.UUID) (*models.Bid, error)
	FindValidBids(ctx context.Context, productID uuid.UUID) ([]models.Bid, error)
	HighestValidBid(ctx context.Context, productID uuid.UUID) (*models.Bid, error)
	IsExcluded(ctx context.Context, productID, bidderID uuid.UUID) (bool, error)
	ExcludedBidders(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error)
	DisplayNames(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]string, error)
	SellerOf(ctx context.Context, productID uuid.UUID) (uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bid ledger bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, bid *models.Bid) error {
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(bid).Error
}

// ListByProduct returns every bid in display order.
func (r *repository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Bid, error) {
	var rows []models.Bid
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC, sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListTail returns the newest limit bids, still in display order.
func (r *repository) ListTail(ctx context.Context, productID uuid.UUID, limit int) ([]models.Bid, error) {
	if limit <= 0 {
		return []models.Bid{}, nil
	}
	var rows []models.Bid
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC, sequence DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// ListAfter pages the ledger by sequence, oldest first.
func (r *repository) ListAfter(ctx context.Context, productID uuid.UUID, afterSequence int64, limit int) ([]models.Bid, error) {
	var rows []models.Bid
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND sequence > ?", productID, afterSequence).
		Order("sequence ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// HighestBid returns nil when the product has no bids.
func (r *repository) HighestBid(ctx context.Context, productID uuid.UUID) (*models.Bid, error) {
	return r.highest(r.db.WithContext(ctx).Where("product_id = ?", productID))
}

func (r *repository) FindValidBids(ctx context.Context, productID uuid.UUID) ([]models.Bid, error) {
	var rows []models.Bid
	err := r.validBids(ctx, productID).
		Order("created_at ASC, sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// HighestValidBid ignores bids from excluded bidders. Returns nil when none remain.
func (r *repository) HighestValidBid(ctx context.Context, productID uuid.UUID) (*models.Bid, error) {
	return r.highest(r.validBids(ctx, productID))
}

func (r *repository) IsExcluded(ctx context.Context, productID, bidderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BidderExclusion{}).
		Where("product_id = ? AND bidder_id = ?", productID, bidderID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ExcludedBidders(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.BidderExclusion{}).
		Where("product_id = ?", productID).
		Order("bidder_id ASC").
		Pluck("bidder_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) DisplayNames(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.ID] = u.DisplayName
	}
	return names, nil
}

func (r *repository) SellerOf(ctx context.Context, productID uuid.UUID) (uuid.UUID, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Select("id", "seller_id").
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		return uuid.Nil, err
	}
	return product.SellerID, nil
}

func (r *repository) validBids(ctx context.Context, productID uuid.UUID) *gorm.DB {
	excluded := r.db.WithContext(ctx).
		Model(&models.BidderExclusion{}).
		Select("bidder_id").
		Where("product_id = ?", productID)
	return r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Where("bidder_id NOT IN (?)", excluded)
}

// highest applies the ledger's winner ordering: amount desc, then earliest.
func (r *repository) highest(query *gorm.DB) (*models.Bid, error) {
	var bid models.Bid
	err := query.
		Order("amount DESC, created_at ASC, sequence ASC").
		First(&bid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bid, nil
}
