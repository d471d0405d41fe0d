package bids

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
)

const maskFill = "***"

// HistoryEntry is one bid as shown to a viewer.
type HistoryEntry struct {
	BidID     uuid.UUID       `json:"bidId"`
	Bidder    string          `json:"bidder"`
	Masked    bool            `json:"masked"`
	Amount    decimal.Decimal `json:"amount"`
	IsAutoBid bool            `json:"isAutoBid"`
	Sequence  int64           `json:"sequence"`
	PlacedAt  time.Time       `json:"placedAt"`
}

// HistoryPage is one page of masked history.
type HistoryPage struct {
	Entries    []HistoryEntry `json:"entries"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// MaskName keeps the first and last rune of a display name.
// Names of one or two runes keep only the first.
func MaskName(name string) string {
	runes := []rune(strings.TrimSpace(name))
	switch len(runes) {
	case 0:
		return maskFill
	case 1, 2:
		return string(runes[0]) + maskFill
	default:
		return string(runes[0]) + maskFill + string(runes[len(runes)-1])
	}
}

// Present converts ledger rows into history entries for viewer. The seller and
// the bidder themselves see the full name; everyone else, including a nil
// viewer, sees the masked form.
func Present(rows []models.Bid, names map[uuid.UUID]string, sellerID uuid.UUID, viewer *uuid.UUID) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(rows))
	for _, bid := range rows {
		name := names[bid.BidderID]
		reveal := viewer != nil && (*viewer == sellerID || *viewer == bid.BidderID)
		entry := HistoryEntry{
			BidID:     bid.ID,
			Bidder:    name,
			Amount:    bid.Amount,
			IsAutoBid: bid.IsAutoBid,
			Sequence:  bid.Sequence,
			PlacedAt:  bid.CreatedAt,
		}
		if !reveal {
			entry.Bidder = MaskName(name)
			entry.Masked = true
		}
		out = append(out, entry)
	}
	return out
}

func bidderIDs(rows []models.Bid) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(rows))
	ids := make([]uuid.UUID, 0, len(rows))
	for _, bid := range rows {
		if _, ok := seen[bid.BidderID]; ok {
			continue
		}
		seen[bid.BidderID] = struct{}{}
		ids = append(ids, bid.BidderID)
	}
	return ids
}
