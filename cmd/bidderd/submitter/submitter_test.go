package submitter

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/textileio/bidder-core/auction"
	"github.com/textileio/bidder-core/cmd/bidderd/auctionhouse"
	"github.com/textileio/bidder-core/cmd/bidderd/tracker"
	"github.com/textileio/bidder-core/notify"
	"github.com/textileio/bidder-core/signer"
	"github.com/textileio/bidder-core/txstate"
)

var self = common.HexToAddress("0x00000000000000000000000000000000000000a1")

type fakeSigner struct {
	lock        sync.Mutex
	estimate    uint64
	estimateErr error
	sendErr     error
	estimated   []signer.Call
	sent        []signer.Call
	gasLimits   []uint64
	handles     []*signer.AsyncHandle
}

func (f *fakeSigner) Account() common.Address {
	return self
}

func (f *fakeSigner) EstimateGas(ctx context.Context, call signer.Call) (uint64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.estimated = append(f.estimated, call)
	return f.estimate, f.estimateErr
}

func (f *fakeSigner) Send(ctx context.Context, call signer.Call, gasLimit uint64) (signer.Handle, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, call)
	f.gasLimits = append(f.gasLimits, gasLimit)
	h := signer.NewHandle(common.BigToHash(big.NewInt(int64(len(f.sent)))))
	f.handles = append(f.handles, h)
	return h, nil
}

type sinkRecorder struct {
	lock sync.Mutex
	ns   []notify.Notification
}

func (r *sinkRecorder) Notify(n notify.Notification) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.ns = append(r.ns, n)
}

func (r *sinkRecorder) all() []notify.Notification {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]notify.Notification(nil), r.ns...)
}

func bid(id string, amount int64) auction.BidAttempt {
	return auction.BidAttempt{
		ID:        id,
		AuctionID: big.NewInt(7),
		Amount:    big.NewInt(amount),
		Account:   self,
		Kind:      auction.KindBid,
	}
}

func setup(fs *fakeSigner) (*Submitter, *tracker.Tracker, *sinkRecorder) {
	tr := tracker.New()
	sink := &sinkRecorder{}
	tr.Subscribe(tracker.Notifier(sink))
	return New(fs, tr, sink, DefaultGasMargin), tr, sink
}

func TestSubmitBidAddsGasMargin(t *testing.T) {
	fs := &fakeSigner{estimate: 100_000}
	s, tr, sink := setup(fs)

	h, err := s.SubmitBid(context.Background(), bid("a", 105))
	require.NoError(t, err)
	require.NotNil(t, h)

	require.Len(t, fs.sent, 1)
	require.Equal(t, uint64(110_000), fs.gasLimits[0])
	require.Equal(t, auctionhouse.MethodCreateBid, fs.sent[0].Method)
	require.Equal(t, []interface{}{big.NewInt(7)}, fs.sent[0].Args)
	require.Equal(t, int64(105), fs.sent[0].Value.Int64())
	require.Equal(t, txstate.Mining{}, tr.State(auction.KindBid))

	fs.handles[0].Resolve(txstate.Success{})
	require.Eventually(t, func() bool {
		return tr.State(auction.KindBid).Status() == txstate.StatusSuccess
	}, time.Second, time.Millisecond*5)

	ns := sink.all()
	require.Len(t, ns, 1)
	require.Equal(t, "Success", ns[0].Title)
	require.Equal(t, "Bid was placed successfully!", ns[0].Message)
}

func TestEstimationErrorBroadcastsNothing(t *testing.T) {
	fs := &fakeSigner{estimateErr: errors.New("execution reverted")}
	s, tr, sink := setup(fs)

	_, err := s.SubmitBid(context.Background(), bid("a", 105))
	var estErr *EstimationError
	require.True(t, errors.As(err, &estErr))
	require.Empty(t, fs.sent)
	require.Equal(t, txstate.None{}, tr.State(auction.KindBid))

	ns := sink.all()
	require.Len(t, ns, 1)
	require.Equal(t, notify.GenericRetryMessage, ns[0].Message)
	require.True(t, ns[0].Show)
}

func TestSubmissionError(t *testing.T) {
	fs := &fakeSigner{estimate: 50_000, sendErr: errors.New("user rejected transaction")}
	s, tr, sink := setup(fs)

	_, err := s.SubmitBid(context.Background(), bid("a", 105))
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	require.Equal(t, txstate.None{}, tr.State(auction.KindBid))
	require.False(t, tr.Busy())

	ns := sink.all()
	require.Len(t, ns, 1)
	require.Equal(t, "Error", ns[0].Title)
	require.Equal(t, "user rejected transaction", ns[0].Message)
}

func TestSubmitSettle(t *testing.T) {
	fs := &fakeSigner{estimate: 200_000}
	s, tr, sink := setup(fs)

	a := auction.BidAttempt{ID: "s", AuctionID: big.NewInt(7), Account: self, Kind: auction.KindSettle}
	_, err := s.SubmitSettle(context.Background(), a)
	require.NoError(t, err)

	require.Len(t, fs.sent, 1)
	require.Equal(t, auctionhouse.MethodSettle, fs.sent[0].Method)
	require.Nil(t, fs.sent[0].Value)
	require.Empty(t, fs.sent[0].Args)
	require.Equal(t, uint64(210_000), fs.gasLimits[0])

	fs.handles[0].Resolve(txstate.Fail{Message: "Auction hasn't completed"})
	require.Eventually(t, func() bool {
		return tr.State(auction.KindSettle).Status() == txstate.StatusFail
	}, time.Second, time.Millisecond*5)

	ns := sink.all()
	require.Len(t, ns, 1)
	require.Equal(t, "Transaction Failed", ns[0].Title)
	require.Equal(t, "Auction hasn't completed", ns[0].Message)
}

func TestWrongKind(t *testing.T) {
	fs := &fakeSigner{estimate: 1}
	s, _, _ := setup(fs)

	_, err := s.SubmitSettle(context.Background(), bid("a", 1))
	require.Error(t, err)
	a := bid("b", 1)
	a.Kind = auction.KindSettle
	_, err = s.SubmitBid(context.Background(), a)
	require.Error(t, err)
	require.Empty(t, fs.estimated)
}

func TestSupersededFailureIsReported(t *testing.T) {
	fs := &fakeSigner{estimate: 1}
	s, tr, sink := setup(fs)

	_, err := s.SubmitBid(context.Background(), bid("first", 100))
	require.NoError(t, err)
	_, err = s.SubmitBid(context.Background(), bid("second", 110))
	require.NoError(t, err)

	fs.handles[0].Resolve(txstate.Fail{Message: "reverted: outbid"})
	require.Eventually(t, func() bool {
		return len(sink.all()) == 1
	}, time.Second, time.Millisecond*5)

	ns := sink.all()
	require.Equal(t, "Transaction Failed", ns[0].Title)
	require.Equal(t, "reverted: outbid", ns[0].Message)

	// The second attempt is untouched.
	cur, st, _ := tr.Current(auction.KindBid)
	require.Equal(t, "second", cur.ID)
	require.Equal(t, txstate.Mining{}, st)
	require.True(t, tr.Busy())
}

func TestEstimationFailureKeepsMiningAttempt(t *testing.T) {
	fs := &fakeSigner{estimate: 1}
	s, tr, sink := setup(fs)

	_, err := s.SubmitBid(context.Background(), bid("first", 110))
	require.NoError(t, err)

	fs.lock.Lock()
	fs.estimateErr = errors.New("execution reverted")
	fs.lock.Unlock()
	_, err = s.SubmitBid(context.Background(), bid("second", 120))
	var estErr *EstimationError
	require.True(t, errors.As(err, &estErr))
	require.Len(t, fs.sent, 1)

	cur, st, _ := tr.Current(auction.KindBid)
	require.Equal(t, "first", cur.ID)
	require.Equal(t, txstate.Mining{}, st)
	require.True(t, tr.Busy())

	fs.handles[0].Resolve(txstate.Fail{Message: "reverted"})
	require.Eventually(t, func() bool {
		return tr.State(auction.KindBid).Status() == txstate.StatusFail
	}, time.Second, time.Millisecond*5)
	ns := sink.all()
	require.Len(t, ns, 2)
	require.Equal(t, notify.GenericRetryMessage, ns[0].Message)
	require.Equal(t, "reverted", ns[1].Message)
}

type closedHandle struct {
	done chan txstate.State
}

func (h closedHandle) TxHash() common.Hash {
	return common.Hash{}
}

func (h closedHandle) Done() <-chan txstate.State {
	return h.done
}

type closingSigner struct {
	fakeSigner
}

func (c *closingSigner) Send(context.Context, signer.Call, uint64) (signer.Handle, error) {
	h := closedHandle{done: make(chan txstate.State)}
	close(h.done)
	return h, nil
}

func TestHandleClosedWithoutOutcome(t *testing.T) {
	cs := &closingSigner{fakeSigner{estimate: 1}}
	tr := tracker.New()
	sink := &sinkRecorder{}
	tr.Subscribe(tracker.Notifier(sink))
	s := New(cs, tr, sink, DefaultGasMargin)

	_, err := s.SubmitBid(context.Background(), bid("a", 100))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return tr.State(auction.KindBid).Status() == txstate.StatusException
	}, time.Second, time.Millisecond*5)

	ns := sink.all()
	require.Len(t, ns, 1)
	require.Equal(t, "Error", ns[0].Title)
	require.Equal(t, notify.GenericRetryMessage, ns[0].Message)
}
