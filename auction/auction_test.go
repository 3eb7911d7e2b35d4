package auction

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func TestMatches(t *testing.T) {
	a := Auction{ID: big.NewInt(7), Amount: big.NewInt(105), Bidder: alice}

	require.True(t, BidAttempt{Amount: big.NewInt(105), Account: alice}.Matches(a))
	require.False(t, BidAttempt{Amount: big.NewInt(110), Account: alice}.Matches(a))
	require.False(t, BidAttempt{Amount: big.NewInt(100), Account: alice}.Matches(a))
	require.False(t, BidAttempt{Amount: big.NewInt(105), Account: bob}.Matches(a))
	require.False(t, BidAttempt{Account: alice}.Matches(a))
	require.False(t, BidAttempt{Amount: big.NewInt(105), Account: alice}.Matches(Auction{Bidder: alice}))
}

func TestEnded(t *testing.T) {
	now := time.Unix(1000, 0)
	require.False(t, Auction{}.Ended(now))
	require.False(t, Auction{EndTime: now.Add(time.Second)}.Ended(now))
	require.True(t, Auction{EndTime: now}.Ended(now))
	require.True(t, Auction{EndTime: now.Add(-time.Second)}.Ended(now))
}

func TestCloneAndEqual(t *testing.T) {
	a := Auction{
		ID:        big.NewInt(1),
		Amount:    big.NewInt(10),
		Bidder:    alice,
		StartTime: time.Unix(10, 0),
		EndTime:   time.Unix(20, 0),
	}
	c := a.Clone()
	require.True(t, a.Equal(c))

	c.Amount.SetInt64(11)
	require.Equal(t, int64(10), a.Amount.Int64())
	require.False(t, a.Equal(c))

	require.True(t, Auction{}.Equal(Auction{}))
	require.False(t, Auction{}.Equal(Auction{Settled: true}))
	require.True(t, a.HasBidder())
	require.False(t, Auction{}.HasBidder())
}

func TestKindString(t *testing.T) {
	require.Equal(t, "bid", KindBid.String())
	require.Equal(t, "settle", KindSettle.String())
	require.Equal(t, "invalid", Kind(9).String())
}
