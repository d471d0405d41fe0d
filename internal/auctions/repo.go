package auctions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

// Repository covers the product-side persistence the engine needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	SaveProduct(ctx context.Context, product *models.Product) error
	ListAutoBidConfigs(ctx context.Context, productID uuid.UUID) ([]models.AutoBidConfig, error)
	CreateAutoBidConfig(ctx context.Context, cfg *models.AutoBidConfig) error
	ActiveRule(ctx context.Context) (*models.AuctionRule, error)
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
	ListDueForFinalization(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListDueForActivation(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an auctions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockProduct loads the product under SELECT ... FOR UPDATE. Returns
// gorm.ErrRecordNotFound when the product does not exist.
func (r *repository) LockProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// SaveProduct writes the mutable auction columns guarded by the version the
// product was loaded with, then bumps product.Version.
func (r *repository) SaveProduct(ctx context.Context, product *models.Product) error {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND version = ?", product.ID, product.Version).
		Updates(map[string]any{
			"current_price":     product.CurrentPrice,
			"leading_bidder_id": product.LeadingBidderID,
			"bid_count":         product.BidCount,
			"end_time":          product.EndTime,
			"status":            product.Status,
			"version":           product.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrentModification, "product was modified concurrently").
			WithDetails(map[string]any{"productId": product.ID.String(), "version": product.Version})
	}
	product.Version++
	return nil
}

// ListAutoBidConfigs returns every config row of the product, superseded ones included.
func (r *repository) ListAutoBidConfigs(ctx context.Context, productID uuid.UUID) ([]models.AutoBidConfig, error) {
	var rows []models.AutoBidConfig
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateAutoBidConfig(ctx context.Context, cfg *models.AutoBidConfig) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(cfg).Error
}

// ActiveRule returns the newest active rule, or nil when extension is disabled.
func (r *repository) ActiveRule(ctx context.Context) (*models.AuctionRule, error) {
	var rule models.AuctionRule
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at DESC").
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *repository) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListDueForFinalization returns products past their end time that still
// need a terminal decision, oldest deadline first.
func (r *repository) ListDueForFinalization(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	statuses := []enums.AuctionStatus{
		enums.AuctionStatusScheduled,
		enums.AuctionStatusActive,
		enums.AuctionStatusEndedWithWinner,
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("status IN ?", statuses).
		Where("end_time <= ?", now).
		Where("NOT EXISTS (SELECT 1 FROM orders o WHERE o.product_id = products.id)").
		Order("end_time ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListDueForActivation returns scheduled products whose window is open.
func (r *repository) ListDueForActivation(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("status = ?", enums.AuctionStatusScheduled).
		Where("start_time <= ? AND end_time > ?", now, now).
		Order("start_time ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
