package reconciler

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/textileio/bidder-core/auction"
	"github.com/textileio/bidder-core/cmd/bidderd/tracker"
	"github.com/textileio/bidder-core/cmd/bidderd/updater"
	"github.com/textileio/bidder-core/txstate"
)

var (
	self  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	other = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

var _ updater.UpdateDelegate = (*Reconciler)(nil)

func attempt(id string, amount int64) auction.BidAttempt {
	return auction.BidAttempt{
		ID:        id,
		AuctionID: big.NewInt(9),
		Amount:    big.NewInt(amount),
		Account:   self,
		Kind:      auction.KindBid,
	}
}

func snapshot(bidder common.Address, amount int64) auction.Auction {
	return auction.Auction{ID: big.NewInt(9), Amount: big.NewInt(amount), Bidder: bidder}
}

func mining(t *testing.T, tr *tracker.Tracker, a auction.BidAttempt) {
	require.NoError(t, tr.Arm(a))
	require.NoError(t, tr.Mining(a))
}

func TestForcesSuccessOnExactMatch(t *testing.T) {
	tr := tracker.New()
	r := New(tr)
	a := attempt("a", 105)
	mining(t, tr, a)

	r.HandleAuctionUpdate(snapshot(self, 105))
	require.Equal(t, txstate.Success{}, tr.State(auction.KindBid))
}

func TestNoActionWithoutMatch(t *testing.T) {
	tr := tracker.New()
	r := New(tr)
	a := attempt("a", 105)
	mining(t, tr, a)

	r.HandleAuctionUpdate(snapshot(other, 105))
	r.HandleAuctionUpdate(snapshot(self, 110))
	r.HandleAuctionUpdate(snapshot(self, 104))
	require.Equal(t, txstate.StatusMining, tr.State(auction.KindBid).Status())
}

func TestNoActionUnlessMining(t *testing.T) {
	tr := tracker.New()
	r := New(tr)

	// Nothing tracked.
	r.HandleAuctionUpdate(snapshot(self, 105))

	// Armed but not yet broadcast.
	a := attempt("a", 105)
	require.NoError(t, tr.Arm(a))
	r.HandleAuctionUpdate(snapshot(self, 105))
	require.Equal(t, txstate.None{}, tr.State(auction.KindBid))

	// Already failed.
	require.NoError(t, tr.Mining(a))
	require.True(t, tr.Resolve(a, txstate.Fail{Message: "reverted"}))
	r.HandleAuctionUpdate(snapshot(self, 105))
	require.Equal(t, txstate.Fail{Message: "reverted"}, tr.State(auction.KindBid))
}

func TestSnapshotConfirmsSupersededAttempt(t *testing.T) {
	tr := tracker.New()
	r := New(tr)
	var confirmed []string
	tr.Subscribe(func(a auction.BidAttempt, st txstate.State) {
		if st.Status() == txstate.StatusSuccess {
			confirmed = append(confirmed, a.ID)
		}
	})

	first := attempt("first", 100)
	mining(t, tr, first)
	second := attempt("second", 110)
	mining(t, tr, second)

	// The lower bid landed first; the rebid is still pending.
	r.HandleAuctionUpdate(snapshot(self, 100))
	require.Equal(t, []string{"first"}, confirmed)
	cur, st, _ := tr.Current(auction.KindBid)
	require.Equal(t, "second", cur.ID)
	require.Equal(t, txstate.StatusMining, st.Status())

	r.HandleAuctionUpdate(snapshot(self, 110))
	require.Equal(t, []string{"first", "second"}, confirmed)
	require.Equal(t, txstate.Success{}, tr.State(auction.KindBid))
	require.False(t, tr.Busy())
}

func TestAbandonedRebidKeepsEarlierAttemptReconcilable(t *testing.T) {
	tr := tracker.New()
	r := New(tr)

	first := attempt("first", 110)
	mining(t, tr, first)
	rebid := attempt("rebid", 120)
	require.NoError(t, tr.Arm(rebid))
	require.NoError(t, tr.Abandon(rebid))
	require.True(t, tr.Busy())

	r.HandleAuctionUpdate(snapshot(self, 110))
	cur, st, _ := tr.Current(auction.KindBid)
	require.Equal(t, "first", cur.ID)
	require.Equal(t, txstate.Success{}, st)
}

func TestRaceWithHandleOutcome(t *testing.T) {
	tr := tracker.New()
	r := New(tr)
	var successes int
	tr.Subscribe(func(_ auction.BidAttempt, st txstate.State) {
		if st.Status() == txstate.StatusSuccess {
			successes++
		}
	})

	// Snapshot first, then the handle.
	a := attempt("a", 105)
	mining(t, tr, a)
	r.HandleAuctionUpdate(snapshot(self, 105))
	require.False(t, tr.Resolve(a, txstate.Success{}))
	require.Equal(t, 1, successes)

	// Handle first, then the snapshot.
	b := attempt("b", 120)
	mining(t, tr, b)
	require.True(t, tr.Resolve(b, txstate.Success{}))
	r.HandleAuctionUpdate(snapshot(self, 120))
	require.Equal(t, 2, successes)

	// A late handle failure after reconciliation doesn't regress the state.
	c := attempt("c", 130)
	mining(t, tr, c)
	r.HandleAuctionUpdate(snapshot(self, 130))
	require.False(t, tr.Resolve(c, txstate.Exception{Message: "timeout"}))
	require.Equal(t, txstate.Success{}, tr.State(auction.KindBid))
}

func TestIgnoresSettleAttempts(t *testing.T) {
	tr := tracker.New()
	r := New(tr)
	s := attempt("s", 0)
	s.Kind = auction.KindSettle
	s.Amount = big.NewInt(0)
	mining(t, tr, s)

	r.HandleAuctionUpdate(snapshot(self, 0))
	require.Equal(t, txstate.StatusMining, tr.State(auction.KindSettle).Status())
}
