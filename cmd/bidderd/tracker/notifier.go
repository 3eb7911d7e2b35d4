package tracker

import (
	"github.com/textileio/bidder-core/auction"
	"github.com/textileio/bidder-core/notify"
	"github.com/textileio/bidder-core/txstate"
)

// Notifier returns a Listener reporting terminal states to sink.
func Notifier(sink notify.Sink) Listener {
	return func(a auction.BidAttempt, st txstate.State) {
		if n, ok := NotificationFor(a.Kind, st); ok {
			sink.Notify(n)
		}
	}
}

// NotificationFor returns the notification for entering st, if any.
func NotificationFor(kind auction.Kind, st txstate.State) (notify.Notification, bool) {
	switch v := st.(type) {
	case txstate.Success:
		msg := "Bid was placed successfully!"
		if kind == auction.KindSettle {
			msg = "Settled auction successfully!"
		}
		return notify.Notification{Title: "Success", Message: msg, Show: true}, true
	case txstate.Fail:
		return notify.Notification{
			Title:   "Transaction Failed",
			Message: notify.MessageOr(v.Message),
			Show:    true,
		}, true
	case txstate.Exception:
		return notify.Notification{
			Title:   "Error",
			Message: notify.MessageOr(v.Message),
			Show:    true,
		}, true
	}
	return notify.Notification{}, false
}
