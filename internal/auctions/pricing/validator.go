package pricing

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

// BidCheck carries the values a manual bid is validated against.
type BidCheck struct {
	Amount decimal.Decimal
	// Current is the current price, or the start price when no bid exists yet.
	Current decimal.Decimal
	Step    decimal.Decimal
	BuyNow  decimal.NullDecimal
}

// ValidateBid rejects amounts that do not strictly exceed the current price or
// that fall off the increment grid. Step compliance is exact decimal arithmetic.
//
// Buy-now is an exception to the grid: when check.BuyNow is set, an amount
// equal to it is accepted even if it is not a whole number of steps above the
// current price, and any amount above it fails with CodeInvalidBidAmount.
// Below-price and off-grid rejections carry the smallest acceptable amount
// under "minimum".
func ValidateBid(check BidCheck) error {
	if !check.Step.IsPositive() {
		return pkgerrors.New(pkgerrors.CodePreconditionViolation, "bid increment must be positive")
	}
	if !check.Amount.GreaterThan(check.Current) {
		return pkgerrors.New(pkgerrors.CodeInvalidBidAmount, "bid amount must exceed the current price").
			WithDetails(map[string]string{
				"amount":  check.Amount.String(),
				"current": check.Current.String(),
				"minimum": MinimumNextBid(check.Current, check.Step).String(),
			})
	}
	if check.BuyNow.Valid {
		if check.Amount.GreaterThan(check.BuyNow.Decimal) {
			return pkgerrors.New(pkgerrors.CodeInvalidBidAmount, "bid amount exceeds the buy-now price").
				WithDetails(map[string]string{
					"amount": check.Amount.String(),
					"buyNow": check.BuyNow.Decimal.String(),
				})
		}
		if check.Amount.Equal(check.BuyNow.Decimal) {
			return nil
		}
	}
	if !check.Amount.Sub(check.Current).Mod(check.Step).IsZero() {
		return pkgerrors.New(pkgerrors.CodeInvalidBidIncrement, "bid amount must follow the bid increment").
			WithDetails(map[string]string{
				"amount":    check.Amount.String(),
				"current":   check.Current.String(),
				"increment": check.Step.String(),
				"minimum":   MinimumNextBid(check.Current, check.Step).String(),
			})
	}
	return nil
}

// MinimumNextBid is the smallest amount ValidateBid accepts for current and step.
func MinimumNextBid(current, step decimal.Decimal) decimal.Decimal {
	return current.Add(step)
}
