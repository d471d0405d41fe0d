package bids

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/pagination"
)

// Service is the read side of the bid ledger.
type Service interface {
	WithTx(tx *gorm.DB) Service
	History(ctx context.Context, productID uuid.UUID, viewer *uuid.UUID) ([]HistoryEntry, error)
	HistoryPage(ctx context.Context, productID uuid.UUID, viewer *uuid.UUID, params pagination.Params) (*HistoryPage, error)
	PublicTail(ctx context.Context, productID uuid.UUID, limit int) ([]HistoryEntry, error)
	HighestBid(ctx context.Context, productID uuid.UUID) (*models.Bid, error)
	FindValidBids(ctx context.Context, productID uuid.UUID) ([]models.Bid, error)
	HighestValidBid(ctx context.Context, productID uuid.UUID) (*models.Bid, error)
}

type service struct {
	repo Repository
}

// NewService wires the ledger read side.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bids repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

// History returns every bid of the product, oldest first, masked for viewer.
func (s *service) History(ctx context.Context, productID uuid.UUID, viewer *uuid.UUID) ([]HistoryEntry, error) {
	sellerID, err := s.sellerOf(ctx, productID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bids")
	}
	names, err := s.repo.DisplayNames(ctx, bidderIDs(rows))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bidder names")
	}
	return Present(rows, names, sellerID, viewer), nil
}

// HistoryPage is History split into sequence-keyed pages.
func (s *service) HistoryPage(ctx context.Context, productID uuid.UUID, viewer *uuid.UUID, params pagination.Params) (*HistoryPage, error) {
	cursor, err := pagination.ParseSequenceCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	sellerID, err := s.sellerOf(ctx, productID)
	if err != nil {
		return nil, err
	}
	var after int64
	if cursor != nil {
		after = cursor.After
	}
	rows, err := s.repo.ListAfter(ctx, productID, after, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bids")
	}
	rows, more := pagination.Trim(rows, params.Limit)
	names, err := s.repo.DisplayNames(ctx, bidderIDs(rows))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bidder names")
	}
	page := &HistoryPage{Entries: Present(rows, names, sellerID, viewer)}
	if more {
		page.NextCursor = pagination.EncodeSequenceCursor(pagination.SequenceCursor{After: rows[len(rows)-1].Sequence})
	}
	return page, nil
}

func (s *service) sellerOf(ctx context.Context, productID uuid.UUID) (uuid.UUID, error) {
	if productID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	sellerID, err := s.repo.SellerOf(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product seller")
	}
	return sellerID, nil
}

// PublicTail returns the newest limit bids masked for an anonymous viewer.
func (s *service) PublicTail(ctx context.Context, productID uuid.UUID, limit int) ([]HistoryEntry, error) {
	rows, err := s.repo.ListTail(ctx, productID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bid tail")
	}
	names, err := s.repo.DisplayNames(ctx, bidderIDs(rows))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bidder names")
	}
	return Present(rows, names, uuid.Nil, nil), nil
}

// HighestBid is the leading bid: highest amount, earliest on a tie. Nil on an
// empty ledger.
func (s *service) HighestBid(ctx context.Context, productID uuid.UUID) (*models.Bid, error) {
	bid, err := s.repo.HighestBid(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load highest bid")
	}
	return bid, nil
}

// FindValidBids lists the product's bids, oldest first, without those of
// excluded bidders.
func (s *service) FindValidBids(ctx context.Context, productID uuid.UUID) ([]models.Bid, error) {
	rows, err := s.repo.FindValidBids(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list valid bids")
	}
	return rows, nil
}

// HighestValidBid is HighestBid over FindValidBids.
func (s *service) HighestValidBid(ctx context.Context, productID uuid.UUID) (*models.Bid, error) {
	bid, err := s.repo.HighestValidBid(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load highest valid bid")
	}
	return bid, nil
}
