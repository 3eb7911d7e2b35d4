package statecache

import (
	"context"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/textileio/bidder-core/amount"
	"github.com/textileio/bidder-core/auction"
	logging "github.com/textileio/go-log/v2"
)

var log = logging.Logger("bidderd/statecache")

// StateCache holds and controls access to the latest auction snapshot.
type StateCache struct {
	lock    sync.Mutex
	auction *auction.Auction
	minInc  *decimal.Decimal
	ready   chan struct{}
}

// NewStateCache creates a new StateCache.
func NewStateCache() *StateCache {
	return &StateCache{ready: make(chan struct{})}
}

// HandleMinBidIncrement receives the minimum bid increment percentage.
func (sc *StateCache) HandleMinBidIncrement(p decimal.Decimal) {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	sc.minInc = &p
}

// HandleAuctionUpdate receives a new snapshot, replacing the previous one.
func (sc *StateCache) HandleAuctionUpdate(a auction.Auction) {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	first := sc.auction == nil
	sc.auction = &a
	if first {
		close(sc.ready)
	}
}

// HandleError receives feed errors.
func (sc *StateCache) HandleError(err error) {
	log.Errorf("auction feed: %v", err)
}

// Auction returns the latest snapshot.
func (sc *StateCache) Auction() (auction.Auction, bool) {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	if sc.auction == nil {
		return auction.Auction{}, false
	}
	return sc.auction.Clone(), true
}

// MinBidIncrement returns the minimum bid increment percentage, or nil if not loaded yet.
func (sc *StateCache) MinBidIncrement() *decimal.Decimal {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	if sc.minInc == nil {
		return nil
	}
	p := *sc.minInc
	return &p
}

// MinimumBid returns the minimum acceptable next bid for the latest snapshot.
// While no snapshot or percentage is loaded it returns zero and false; the zero
// is only good for display.
func (sc *StateCache) MinimumBid() (*big.Int, bool) {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	if sc.auction == nil || sc.minInc == nil {
		return new(big.Int), false
	}
	return amount.MinimumNextBid(sc.auction.Amount, sc.minInc), true
}

// WaitAuction blocks until the first snapshot arrives.
func (sc *StateCache) WaitAuction(ctx context.Context) (auction.Auction, error) {
	select {
	case <-sc.ready:
		a, _ := sc.Auction()
		return a, nil
	case <-ctx.Done():
		return auction.Auction{}, ctx.Err()
	}
}
