package pricing

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

// ResolveInput is the state the proxy resolver works from. Configs may contain
// superseded rows; only the newest config per bidder takes part.
type ResolveInput struct {
	Configs    []models.AutoBidConfig
	StartPrice decimal.Decimal
	Increment  decimal.Decimal
	Current    decimal.NullDecimal
	LeaderID   *uuid.UUID
	BuyNow     decimal.NullDecimal
}

// Resolution is the resolver's verdict. Changed is false for a no-op, in which
// case no bid may be written and no event published.
type Resolution struct {
	Changed    bool
	Winner     uuid.UUID
	WinnerMax  decimal.Decimal
	Price      decimal.Decimal
	Contenders int
}

// Resolve computes the proxy-auction price:
//   - one contender pays the start price
//   - otherwise the winner pays min(runnerUpMax + increment, winnerMax)
//
// Contenders are ordered by max price descending, then registration time
// ascending. The price never drops below the current price: when the formula
// lands at or under it, the winner either already leads (no-op) or outbids the
// standing leader by one increment if its ceiling allows. Prices above the
// buy-now price are capped to it.
func Resolve(in ResolveInput) (Resolution, error) {
	if !in.Increment.IsPositive() {
		return Resolution{}, pkgerrors.New(pkgerrors.CodePreconditionViolation, "bid increment must be positive")
	}
	for _, cfg := range in.Configs {
		if cfg.ProductID == uuid.Nil || cfg.BidderID == uuid.Nil {
			return Resolution{}, pkgerrors.New(pkgerrors.CodePreconditionViolation, "auto-bid config is missing its product or bidder")
		}
	}

	contenders := SortConfigs(LatestPerBidder(in.Configs))
	if len(contenders) == 0 {
		return Resolution{}, nil
	}
	winner := contenders[0]

	price := in.StartPrice
	if len(contenders) > 1 {
		price = decimal.Min(contenders[1].MaxPrice.Add(in.Increment), winner.MaxPrice)
	}
	if price.LessThan(in.StartPrice) {
		price = in.StartPrice
	}
	price = capAtBuyNow(price, in.BuyNow)
	if price.GreaterThan(winner.MaxPrice) {
		return Resolution{}, nil
	}

	if in.Current.Valid && !price.GreaterThan(in.Current.Decimal) {
		if in.LeaderID != nil && *in.LeaderID == winner.BidderID {
			return Resolution{}, nil
		}
		next := capAtBuyNow(in.Current.Decimal.Add(in.Increment), in.BuyNow)
		if next.GreaterThan(winner.MaxPrice) || !next.GreaterThan(in.Current.Decimal) {
			return Resolution{}, nil
		}
		price = next
	}

	return Resolution{
		Changed:    true,
		Winner:     winner.BidderID,
		WinnerMax:  winner.MaxPrice,
		Price:      price,
		Contenders: len(contenders),
	}, nil
}

func capAtBuyNow(price decimal.Decimal, buyNow decimal.NullDecimal) decimal.Decimal {
	if buyNow.Valid && price.GreaterThan(buyNow.Decimal) {
		return buyNow.Decimal
	}
	return price
}

// LatestPerBidder keeps the newest config of each bidder.
func LatestPerBidder(configs []models.AutoBidConfig) []models.AutoBidConfig {
	latest := make(map[uuid.UUID]models.AutoBidConfig, len(configs))
	order := make([]uuid.UUID, 0, len(configs))
	for _, cfg := range configs {
		current, ok := latest[cfg.BidderID]
		if !ok {
			order = append(order, cfg.BidderID)
			latest[cfg.BidderID] = cfg
			continue
		}
		if cfg.CreatedAt.After(current.CreatedAt) ||
			(cfg.CreatedAt.Equal(current.CreatedAt) && cfg.ID.String() > current.ID.String()) {
			latest[cfg.BidderID] = cfg
		}
	}
	out := make([]models.AutoBidConfig, 0, len(order))
	for _, bidder := range order {
		out = append(out, latest[bidder])
	}
	return out
}

// SortConfigs orders configs by max price descending, registration time
// ascending, then id. The input slice is not modified.
func SortConfigs(configs []models.AutoBidConfig) []models.AutoBidConfig {
	sorted := make([]models.AutoBidConfig, len(configs))
	copy(sorted, configs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if cmp := a.MaxPrice.Cmp(b.MaxPrice); cmp != 0 {
			return cmp > 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return sorted
}
