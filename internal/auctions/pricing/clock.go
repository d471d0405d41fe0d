// Package pricing holds the pure decisions of the bidding engine: the auction
// clock, bid validation and proxy-bid resolution. Nothing here touches storage.
package pricing

import (
	"time"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

// IsActive reports whether the product accepts bids at now.
func IsActive(p *models.Product, now time.Time) bool {
	if p == nil || p.Status != enums.AuctionStatusActive {
		return false
	}
	return InWindow(p, now)
}

// InWindow reports whether now falls inside [StartTime, EndTime).
func InWindow(p *models.Product, now time.Time) bool {
	if p == nil {
		return false
	}
	return !now.Before(p.StartTime) && now.Before(p.EndTime)
}

// HasExpired reports whether the product's end time has passed.
func HasExpired(p *models.Product, now time.Time) bool {
	return p != nil && !now.Before(p.EndTime)
}

// NeedsExtension reports whether a bid landing at now falls inside the rule's
// anti-sniping threshold. A nil or inactive rule disables extension.
func NeedsExtension(p *models.Product, rule *models.AuctionRule, now time.Time) bool {
	if p == nil || rule == nil || !rule.Active || !p.AutoExtend {
		return false
	}
	if rule.ExtensionMinutes <= 0 {
		return false
	}
	remaining := p.EndTime.Sub(now)
	return remaining <= rule.Threshold()
}

// Extend returns the end time pushed back by the rule's extension. The caller
// applies it at most once per operation.
func Extend(p *models.Product, rule *models.AuctionRule) time.Time {
	if rule == nil {
		return p.EndTime
	}
	return p.EndTime.Add(rule.Extension())
}
