package reconciler

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/textileio/bidder-core/auction"
	"github.com/textileio/bidder-core/cmd/bidderd/metrics"
	"github.com/textileio/bidder-core/cmd/bidderd/tracker"
	"github.com/textileio/bidder-core/txstate"
	logging "github.com/textileio/go-log/v2"
	"go.opentelemetry.io/otel/metric"
)

var log = logging.Logger("bidderd/reconciler")

// Reconciler marks a bid attempt as successful when an auction snapshot shows it
// landed, even if the transaction confirmation is late or lost.
type Reconciler struct {
	tracker *tracker.Tracker

	metricReconciled metric.Int64Counter
}

// New returns a new Reconciler.
func New(t *tracker.Tracker) *Reconciler {
	return &Reconciler{
		tracker:          t,
		metricReconciled: metrics.Meter.NewInt64Counter(metrics.Prefix + ".reconciled_bids_total"),
	}
}

// HandleAuctionUpdate checks a new snapshot against every bid attempt being mined,
// superseded ones included. Only an exact bidder and amount match confirms an attempt.
func (r *Reconciler) HandleAuctionUpdate(a auction.Auction) {
	for _, attempt := range r.tracker.Pending(auction.KindBid) {
		if !attempt.Matches(a) {
			continue
		}
		if r.tracker.Resolve(attempt, txstate.Success{}) {
			log.Infof("bid attempt %s confirmed by auction %s snapshot", attempt.ID, a.ID)
			r.metricReconciled.Add(context.Background(), 1)
		}
	}
}

// HandleMinBidIncrement implements updater.UpdateDelegate.
func (r *Reconciler) HandleMinBidIncrement(decimal.Decimal) {}

// HandleError implements updater.UpdateDelegate.
func (r *Reconciler) HandleError(error) {}
