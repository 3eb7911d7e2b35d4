package bidder

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/textileio/bidder-core/auction"
	"github.com/textileio/bidder-core/cmd/bidderd/tracker"
	"github.com/textileio/bidder-core/notify"
	"github.com/textileio/bidder-core/signer"
	"github.com/textileio/bidder-core/txstate"
	"github.com/textileio/bidder-core/validator"
	logging "github.com/textileio/go-log/v2"
)

var (
	log = logging.Logger("bidderd/bidder")

	// ErrNotConnected is returned when no account is connected. The wallet connector was invoked.
	ErrNotConnected = errors.New("no connected account")
	// ErrNoAuction is returned when no auction snapshot has been received yet.
	ErrNoAuction = errors.New("no auction snapshot available")
	// ErrAuctionEnded is returned when bidding on an auction past its end time.
	ErrAuctionEnded = errors.New("auction has ended")
	// ErrMinimumUnknown is returned when the minimum bid increment hasn't loaded yet.
	ErrMinimumUnknown = errors.New("minimum bid not yet known")
)

// AuctionView provides the latest auction snapshot.
type AuctionView interface {
	Auction() (auction.Auction, bool)
	// MinimumBid returns the minimum next bid and whether it's known. An unknown
	// minimum is zero.
	MinimumBid() (*big.Int, bool)
}

// Submitter submits bid and settle attempts.
type Submitter interface {
	SubmitBid(ctx context.Context, a auction.BidAttempt) (signer.Handle, error)
	SubmitSettle(ctx context.Context, a auction.BidAttempt) (signer.Handle, error)
}

// AccountProvider returns the connected account, if any.
type AccountProvider interface {
	Account() (common.Address, bool)
}

// StaticAccount is an AccountProvider that's always connected.
type StaticAccount common.Address

// Account implements AccountProvider.
func (a StaticAccount) Account() (common.Address, bool) {
	return common.Address(a), true
}

// WalletConnector prompts for an account connection.
type WalletConnector func()

// Config configures a Bidder.
type Config struct {
	Validator     *validator.Validator
	Submitter     Submitter
	Tracker       *tracker.Tracker
	View          AuctionView
	Accounts      AccountProvider
	ConnectWallet WalletConnector
	Sink          notify.Sink
	// Now defaults to time.Now.
	Now func() time.Time
}

// Bidder holds the bid input and turns user actions into bid and settle attempts.
type Bidder struct {
	validator *validator.Validator
	submitter Submitter
	tracker   *tracker.Tracker
	view      AuctionView
	accounts  AccountProvider
	connect   WalletConnector
	sink      notify.Sink
	now       func() time.Time

	lock  sync.Mutex
	input string
}

// New returns a new Bidder.
func New(conf Config) (*Bidder, error) {
	if conf.Validator == nil || conf.Submitter == nil || conf.Tracker == nil || conf.View == nil {
		return nil, errors.New("validator, submitter, tracker and view are required")
	}
	if conf.Accounts == nil {
		return nil, errors.New("account provider is required")
	}
	if conf.Sink == nil {
		conf.Sink = notify.SinkFunc(func(notify.Notification) {})
	}
	if conf.ConnectWallet == nil {
		conf.ConnectWallet = func() { log.Warn("no wallet connector configured") }
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}
	b := &Bidder{
		validator: conf.Validator,
		submitter: conf.Submitter,
		tracker:   conf.Tracker,
		view:      conf.View,
		accounts:  conf.Accounts,
		connect:   conf.ConnectWallet,
		sink:      conf.Sink,
		now:       conf.Now,
	}
	b.tracker.Subscribe(b.onTransition)
	return b, nil
}

// Input returns the current bid input.
func (b *Bidder) Input() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.input
}

// SetInput applies raw as the bid input, keeping the previous value if raw has
// too many decimals. It returns the resulting input.
func (b *Bidder) SetInput(raw string) string {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.input = b.validator.Keystroke(b.input, raw)
	return b.input
}

// Placeholder returns the input placeholder naming the minimum bid.
func (b *Bidder) Placeholder() string {
	minBid, _ := b.view.MinimumBid()
	return fmt.Sprintf("Ξ %s or more", b.validator.FormatMinimum(minBid))
}

// AuctionEnded returns whether the current auction has passed its end time.
func (b *Bidder) AuctionEnded() bool {
	a, ok := b.view.Auction()
	return ok && a.Ended(b.now())
}

// Action returns the action available for the current auction.
func (b *Bidder) Action() auction.Kind {
	if b.AuctionEnded() {
		return auction.KindSettle
	}
	return auction.KindBid
}

// Disabled returns whether actions are unavailable: an attempt is mining or no
// account is connected.
func (b *Bidder) Disabled() bool {
	if _, ok := b.accounts.Account(); !ok {
		return true
	}
	return b.tracker.Busy()
}

// ButtonLabel returns the label of the action button. It's empty while mining.
func (b *Bidder) ButtonLabel() string {
	kind := b.Action()
	st := b.tracker.State(kind)
	switch st.(type) {
	case txstate.Mining:
		return ""
	case txstate.Fail, txstate.Exception:
		if kind == auction.KindBid {
			return "Bid"
		}
	}
	if kind == auction.KindSettle {
		return "Settle Auction"
	}
	return "Place bid"
}

// PlaceBid validates the input against the minimum next bid and submits a bid.
// A bid below the minimum is reported to the sink and the input is reset to the
// displayed minimum.
func (b *Bidder) PlaceBid(ctx context.Context) (signer.Handle, error) {
	account, ok := b.accounts.Account()
	if !ok {
		b.connect()
		return nil, ErrNotConnected
	}
	a, ok := b.view.Auction()
	if !ok {
		return nil, ErrNoAuction
	}
	if a.Ended(b.now()) {
		return nil, ErrAuctionEnded
	}

	minBid, known := b.view.MinimumBid()
	if !known {
		return nil, ErrMinimumUnknown
	}

	raw := b.Input()
	bid, err := b.validator.Validate(raw, minBid)
	if err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) && verr.Reason == validator.ReasonBelowMinimum {
			b.sink.Notify(validator.BelowMinimumNotification(verr.MinimumDisplay))
			b.lock.Lock()
			b.input = verr.MinimumDisplay
			b.lock.Unlock()
		}
		return nil, err
	}

	attempt := auction.BidAttempt{
		ID:        uuid.New().String(),
		AuctionID: a.ID,
		Amount:    bid,
		Account:   account,
		Kind:      auction.KindBid,
	}
	log.Infof("placing bid %s of %s wei on auction %s", attempt.ID, bid, a.ID)
	return b.submitter.SubmitBid(ctx, attempt)
}

// Settle submits a settle-and-create-new-auction transaction.
func (b *Bidder) Settle(ctx context.Context) (signer.Handle, error) {
	account, ok := b.accounts.Account()
	if !ok {
		b.connect()
		return nil, ErrNotConnected
	}
	a, ok := b.view.Auction()
	if !ok {
		return nil, ErrNoAuction
	}

	attempt := auction.BidAttempt{
		ID:        uuid.New().String(),
		AuctionID: a.ID,
		Amount:    new(big.Int),
		Account:   account,
		Kind:      auction.KindSettle,
	}
	log.Infof("settling auction %s with attempt %s", a.ID, attempt.ID)
	return b.submitter.SubmitSettle(ctx, attempt)
}

// onTransition clears the input once the current bid attempt succeeds. A superseded
// attempt landing leaves the input of the pending rebid alone.
func (b *Bidder) onTransition(a auction.BidAttempt, st txstate.State) {
	if a.Kind != auction.KindBid || st.Status() != txstate.StatusSuccess {
		return
	}
	if cur, _, ok := b.tracker.Current(auction.KindBid); !ok || cur.ID != a.ID {
		return
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	b.input = ""
}
