package main

import (
	"math/big"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/textileio/bidder-core/auction"
	"github.com/textileio/bidder-core/cmd/bidderd/tracker"
	"github.com/textileio/bidder-core/txstate"
)

func TestDescribe(t *testing.T) {
	amt, _ := new(big.Int).SetString("69420000000000000000", 10)
	a := auction.Auction{
		ID:      big.NewInt(117),
		Amount:  amt,
		Bidder:  ethcommon.HexToAddress("0x00000000000000000000000000000000000000a1"),
		EndTime: time.Now().Add(time.Hour * 3),
	}
	s := describe(a)
	require.Contains(t, s, "Ξ 69.42")
	require.Contains(t, s, "69,420,000,000,000,000,000 wei")
	require.Contains(t, s, "from now")

	a.Settled = true
	require.Contains(t, describe(a), "settled")

	require.Equal(t, "no bids", describe(auction.Auction{ID: big.NewInt(1), Amount: big.NewInt(0)}))
}

func TestOutcomes(t *testing.T) {
	d := &daemon{tracker: tracker.New()}
	ch := d.outcomes(auction.KindSettle)

	bid := auction.BidAttempt{ID: "b", Kind: auction.KindBid, Amount: big.NewInt(1)}
	require.NoError(t, d.tracker.Arm(bid))
	require.NoError(t, d.tracker.Mining(bid))
	require.True(t, d.tracker.Resolve(bid, txstate.Success{}))

	settle := auction.BidAttempt{ID: "s", Kind: auction.KindSettle, Amount: big.NewInt(0)}
	require.NoError(t, d.tracker.Arm(settle))
	require.NoError(t, d.tracker.Mining(settle))
	require.True(t, d.tracker.Resolve(settle, txstate.Fail{Message: "reverted"}))

	select {
	case st := <-ch:
		require.Equal(t, txstate.Fail{Message: "reverted"}, st)
	default:
		t.Fatal("no outcome")
	}
}
