package auction

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Auction defines the core auction model. It's an immutable snapshot of the on-chain
// auction state; a newer snapshot replaces it wholesale.
type Auction struct {
	ID        *big.Int
	Amount    *big.Int
	Bidder    common.Address
	StartTime time.Time
	EndTime   time.Time
	Settled   bool
}

// HasBidder returns whether the auction has received at least one bid.
func (a Auction) HasBidder() bool {
	return a.Bidder != (common.Address{})
}

// Ended returns whether the auction end time has passed at now.
func (a Auction) Ended(now time.Time) bool {
	return !a.EndTime.IsZero() && !now.Before(a.EndTime)
}

// Equal returns whether both snapshots describe the same auction state.
func (a Auction) Equal(b Auction) bool {
	return bigEqual(a.ID, b.ID) &&
		bigEqual(a.Amount, b.Amount) &&
		a.Bidder == b.Bidder &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime) &&
		a.Settled == b.Settled
}

// Clone returns a deep copy of the snapshot.
func (a Auction) Clone() Auction {
	c := a
	if a.ID != nil {
		c.ID = new(big.Int).Set(a.ID)
	}
	if a.Amount != nil {
		c.Amount = new(big.Int).Set(a.Amount)
	}
	return c
}

// Kind is the kind of transaction an attempt submits.
type Kind int

const (
	// KindBid is a createBid transaction.
	KindBid Kind = iota
	// KindSettle is a settle-and-create-new-auction transaction.
	KindSettle
)

// String returns a string-encoded kind.
func (k Kind) String() string {
	switch k {
	case KindBid:
		return "bid"
	case KindSettle:
		return "settle"
	default:
		return "invalid"
	}
}

// BidAttempt identifies exactly one in-flight transaction.
type BidAttempt struct {
	ID        string
	AuctionID *big.Int
	Amount    *big.Int
	Account   common.Address
	Kind      Kind
}

// Matches returns whether the snapshot shows this attempt as the current highest bid.
// The amount must be exactly equal, so a stale snapshot confirming an earlier bid by the
// same account never confirms a different pending amount.
func (ba BidAttempt) Matches(a Auction) bool {
	if ba.Amount == nil || a.Amount == nil {
		return false
	}
	return a.Bidder == ba.Account && a.Amount.Cmp(ba.Amount) == 0
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}
