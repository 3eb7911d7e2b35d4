package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/textileio/bidder-core/auction"
	logging "github.com/textileio/go-log/v2"
)

var log = logging.Logger("bidderd/updater")

// AuctionSource provides the authoritative auction state.
type AuctionSource interface {
	Auction(ctx context.Context) (auction.Auction, error)
	MinBidIncrementPercentage(ctx context.Context) (decimal.Decimal, error)
}

// UpdateDelegate describes an object that can be called back with a state update.
type UpdateDelegate interface {
	HandleMinBidIncrement(decimal.Decimal)
	HandleAuctionUpdate(auction.Auction)
	HandleError(error)
}

// Config holds the configuration for creating a new Updater.
type Config struct {
	Source          AuctionSource
	UpdateFrequency time.Duration
	// MaxBackoff caps the update frequency growth after consecutive errors.
	MaxBackoff     time.Duration
	RequestTimeout time.Duration
	// Delegates are called synchronously, in order, from the update loop.
	Delegates []UpdateDelegate
}

// Updater polls the auction source and pushes changed snapshots to the delegates.
type Updater struct {
	config  Config
	mainCtx context.Context
	cancel  context.CancelFunc
	closed  chan struct{}

	minInc *decimal.Decimal
	last   *auction.Auction
}

// NewUpdater creates a new Updater and starts polling.
func NewUpdater(config Config) (*Updater, error) {
	if config.Source == nil {
		return nil, errors.New("source is nil")
	}
	if config.UpdateFrequency <= 0 {
		return nil, errors.New("update frequency must be positive")
	}
	if config.RequestTimeout <= 0 {
		return nil, errors.New("request timeout must be positive")
	}
	if config.MaxBackoff < config.UpdateFrequency {
		config.MaxBackoff = config.UpdateFrequency * 32
	}
	ctx, cancel := context.WithCancel(context.Background())
	u := &Updater{
		config:  config,
		mainCtx: ctx,
		cancel:  cancel,
		closed:  make(chan struct{}),
	}
	go u.run()
	return u, nil
}

// Close closes the updater, canceling all current work.
func (u *Updater) Close() error {
	u.cancel()
	<-u.closed
	return nil
}

func (u *Updater) run() {
	defer close(u.closed)

	// First poll happens right away.
	var wait time.Duration
	for {
		select {
		case <-time.After(wait):
			if err := u.update(); err != nil {
				if u.mainCtx.Err() != nil {
					return
				}
				for _, d := range u.config.Delegates {
					d.HandleError(err)
				}
				wait *= 2
				if wait < u.config.UpdateFrequency {
					wait = u.config.UpdateFrequency
				}
				if wait > u.config.MaxBackoff {
					wait = u.config.MaxBackoff
				}
				log.Debugf("update failed, next attempt in %s: %v", wait, err)
				continue
			}
			wait = u.config.UpdateFrequency
		case <-u.mainCtx.Done():
			return
		}
	}
}

func (u *Updater) update() error {
	if u.minInc == nil {
		ctx, cancel := context.WithTimeout(u.mainCtx, u.config.RequestTimeout)
		p, err := u.config.Source.MinBidIncrementPercentage(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("getting min bid increment percentage: %v", err)
		}
		u.minInc = &p
		for _, d := range u.config.Delegates {
			d.HandleMinBidIncrement(p)
		}
	}

	ctx, cancel := context.WithTimeout(u.mainCtx, u.config.RequestTimeout)
	a, err := u.config.Source.Auction(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("getting auction: %v", err)
	}
	if u.last != nil && u.last.Equal(a) {
		return nil
	}
	snapshot := a.Clone()
	u.last = &snapshot
	for _, d := range u.config.Delegates {
		d.HandleAuctionUpdate(snapshot.Clone())
	}
	return nil
}
