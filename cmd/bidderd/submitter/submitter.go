package submitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/textileio/bidder-core/auction"
	"github.com/textileio/bidder-core/cmd/bidderd/auctionhouse"
	"github.com/textileio/bidder-core/cmd/bidderd/metrics"
	"github.com/textileio/bidder-core/cmd/bidderd/tracker"
	mtr "github.com/textileio/bidder-core/metrics"
	"github.com/textileio/bidder-core/notify"
	"github.com/textileio/bidder-core/signer"
	"github.com/textileio/bidder-core/txstate"
	logging "github.com/textileio/go-log/v2"
	"go.opentelemetry.io/otel/metric"
)

var log = logging.Logger("bidderd/submitter")

// DefaultGasMargin is the gas added on top of the estimate.
const DefaultGasMargin uint64 = 10_000

// EstimationError is returned when gas estimation fails. Nothing was broadcast.
type EstimationError struct {
	Err error
}

func (e *EstimationError) Error() string {
	return fmt.Sprintf("estimating gas: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *EstimationError) Unwrap() error {
	return e.Err
}

// SubmissionError is returned when the signer rejects or fails to broadcast a transaction.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submitting transaction: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Submitter estimates, pads, and dispatches bid and settle transactions, and
// feeds their outcomes into the tracker.
type Submitter struct {
	signer    signer.Signer
	tracker   *tracker.Tracker
	sink      notify.Sink
	gasMargin uint64

	metricSubmitted metric.Int64Counter
}

// New returns a new Submitter.
func New(s signer.Signer, t *tracker.Tracker, sink notify.Sink, gasMargin uint64) *Submitter {
	return &Submitter{
		signer:          s,
		tracker:         t,
		sink:            sink,
		gasMargin:       gasMargin,
		metricSubmitted: metrics.Meter.NewInt64Counter(metrics.Prefix + ".submitted_txs_total"),
	}
}

// SubmitBid submits a createBid transaction for a, attaching a.Amount.
func (s *Submitter) SubmitBid(ctx context.Context, a auction.BidAttempt) (signer.Handle, error) {
	if a.Kind != auction.KindBid {
		return nil, fmt.Errorf("attempt %s is not a bid", a.ID)
	}
	if a.AuctionID == nil || a.Amount == nil {
		return nil, errors.New("bid attempt is missing auction id or amount")
	}
	return s.submit(ctx, a, signer.Call{
		Method: auctionhouse.MethodCreateBid,
		Args:   []interface{}{a.AuctionID},
		Value:  a.Amount,
	})
}

// SubmitSettle submits a settle-and-create-new-auction transaction. It carries no value.
func (s *Submitter) SubmitSettle(ctx context.Context, a auction.BidAttempt) (signer.Handle, error) {
	if a.Kind != auction.KindSettle {
		return nil, fmt.Errorf("attempt %s is not a settle", a.ID)
	}
	return s.submit(ctx, a, signer.Call{Method: auctionhouse.MethodSettle})
}

func (s *Submitter) submit(ctx context.Context, a auction.BidAttempt, call signer.Call) (signer.Handle, error) {
	if err := s.tracker.Arm(a); err != nil {
		return nil, fmt.Errorf("arming tracker: %v", err)
	}

	estimate, err := s.signer.EstimateGas(ctx, call)
	if err != nil {
		log.Errorf("%s attempt %s: estimating gas: %v", a.Kind, a.ID, err)
		s.abandon(a)
		s.metricSubmitted.Add(ctx, 1, mtr.AttrKind(a.Kind), mtr.AttrError)
		s.sink.Notify(notify.Notification{
			Title:   "Error",
			Message: notify.GenericRetryMessage,
			Show:    true,
		})
		return nil, &EstimationError{Err: err}
	}

	gasLimit := estimate + s.gasMargin
	h, err := s.signer.Send(ctx, call, gasLimit)
	if err != nil {
		log.Errorf("%s attempt %s: sending: %v", a.Kind, a.ID, err)
		s.abandon(a)
		s.metricSubmitted.Add(ctx, 1, mtr.AttrKind(a.Kind), mtr.AttrError)
		s.sink.Notify(notify.Notification{
			Title:   "Error",
			Message: notify.MessageOr(err.Error()),
			Show:    true,
		})
		return nil, &SubmissionError{Err: err}
	}
	s.metricSubmitted.Add(ctx, 1, mtr.AttrKind(a.Kind), mtr.AttrOK)

	if err := s.tracker.Mining(a); err != nil {
		log.Warnf("%s attempt %s: marking mining: %v", a.Kind, a.ID, err)
	}
	log.Infof("%s attempt %s mining as %s (gas limit %d)", a.Kind, a.ID, h.TxHash(), gasLimit)

	go func() {
		st, ok := <-h.Done()
		if !ok {
			log.Warnf("%s attempt %s: handle closed without outcome", a.Kind, a.ID)
			st = txstate.Exception{}
		}
		s.tracker.Resolve(a, st)
	}()
	return h, nil
}

// abandon drops attempt a, which was never broadcast, so earlier attempts of its kind
// stay tracked.
func (s *Submitter) abandon(a auction.BidAttempt) {
	if err := s.tracker.Abandon(a); err != nil {
		log.Warnf("%s attempt %s: abandoning: %v", a.Kind, a.ID, err)
	}
}
