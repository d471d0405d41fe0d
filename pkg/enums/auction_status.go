package enums

import "slices"

// AuctionStatus tracks the lifecycle of a product listed for auction.
type AuctionStatus string

const (
	AuctionStatusScheduled       AuctionStatus = "scheduled"
	AuctionStatusActive          AuctionStatus = "active"
	AuctionStatusEndedNoBids     AuctionStatus = "ended_no_bids"
	AuctionStatusEndedWithWinner AuctionStatus = "ended_with_winner"
	AuctionStatusOrderCreated    AuctionStatus = "order_created"
	AuctionStatusRemoved         AuctionStatus = "removed"
	AuctionStatusSuspended       AuctionStatus = "suspended"
)

var validAuctionStatuses = []AuctionStatus{
	AuctionStatusScheduled,
	AuctionStatusActive,
	AuctionStatusEndedNoBids,
	AuctionStatusEndedWithWinner,
	AuctionStatusOrderCreated,
	AuctionStatusRemoved,
	AuctionStatusSuspended,
}

var auctionTransitions = map[AuctionStatus][]AuctionStatus{
	AuctionStatusScheduled: {AuctionStatusActive, AuctionStatusRemoved, AuctionStatusSuspended},
	AuctionStatusActive: {
		AuctionStatusEndedNoBids,
		AuctionStatusEndedWithWinner,
		AuctionStatusRemoved,
		AuctionStatusSuspended,
	},
	AuctionStatusEndedWithWinner: {AuctionStatusOrderCreated},
}

// String implements fmt.Stringer.
func (s AuctionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AuctionStatus.
func (s AuctionStatus) IsValid() bool {
	return slices.Contains(validAuctionStatuses, s)
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	return slices.Contains(auctionTransitions[s], next)
}

// IsEnded reports whether the auction no longer accepts bids because it concluded.
func (s AuctionStatus) IsEnded() bool {
	switch s {
	case AuctionStatusEndedNoBids, AuctionStatusEndedWithWinner, AuctionStatusOrderCreated:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s AuctionStatus) IsTerminal() bool {
	return len(auctionTransitions[s]) == 0
}

// ParseAuctionStatus converts raw input into an AuctionStatus.
func ParseAuctionStatus(value string) (AuctionStatus, error) {
	return parse("auction status", value, validAuctionStatuses)
}
