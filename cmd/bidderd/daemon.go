package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/dustin/go-humanize"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/textileio/bidder-core/amount"
	"github.com/textileio/bidder-core/auction"
	"github.com/textileio/bidder-core/cmd/bidderd/auctionhouse"
	"github.com/textileio/bidder-core/cmd/bidderd/bidder"
	"github.com/textileio/bidder-core/cmd/bidderd/ethsigner"
	"github.com/textileio/bidder-core/cmd/bidderd/reconciler"
	"github.com/textileio/bidder-core/cmd/bidderd/statecache"
	"github.com/textileio/bidder-core/cmd/bidderd/submitter"
	"github.com/textileio/bidder-core/cmd/bidderd/tracker"
	"github.com/textileio/bidder-core/cmd/bidderd/updater"
	"github.com/textileio/bidder-core/msgbroker"
	"github.com/textileio/bidder-core/msgbroker/gpubsub"
	"github.com/textileio/bidder-core/notify"
	"github.com/textileio/bidder-core/signer"
	"github.com/textileio/bidder-core/txstate"
	"github.com/textileio/bidder-core/validator"
	"github.com/textileio/go-libp2p-pubsub-rpc/finalizer"
)

type daemon struct {
	cache   *statecache.StateCache
	tracker *tracker.Tracker
	bidder  *bidder.Bidder
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

// noAccount is used when no private key is configured.
type noAccount struct{}

func (noAccount) Account() (ethcommon.Address, bool) {
	return ethcommon.Address{}, false
}

// noSigner rejects every transaction.
type noSigner struct{}

func (noSigner) Account() ethcommon.Address {
	return ethcommon.Address{}
}

func (noSigner) EstimateGas(context.Context, signer.Call) (uint64, error) {
	return 0, errors.New("no private key configured")
}

func (noSigner) Send(context.Context, signer.Call, uint64) (signer.Handle, error) {
	return nil, errors.New("no private key configured")
}

func newDaemon(v *viper.Viper, fin *finalizer.Finalizer, watch bool) (*daemon, error) {
	if v.GetString("contract-addr") == "" {
		return nil, errors.New("contract-addr is required")
	}
	contractAddr := ethcommon.HexToAddress(v.GetString("contract-addr"))

	ctx, cancel := context.WithTimeout(context.Background(), v.GetDuration("endpoint-timeout"))
	defer cancel()
	client, err := ethclient.DialContext(ctx, v.GetString("eth-endpoint"))
	if err != nil {
		return nil, fmt.Errorf("dialing endpoint: %v", err)
	}
	fin.Add(closerFunc(client.Close))

	sinks := []notify.Sink{notify.NewLogSink(log)}
	var broker msgbroker.MsgBroker
	if projectID := v.GetString("gpubsub-project-id"); projectID != "" {
		ps, err := gpubsub.New(projectID, v.GetString("gpubsub-api-key"), v.GetString("gpubsub-topic-prefix"))
		if err != nil {
			return nil, fmt.Errorf("creating pubsub broker: %v", err)
		}
		fin.Add(ps)
		broker = ps
		sinks = append(sinks, msgbroker.NewNotificationSink(ps, v.GetDuration("request-timeout")))
	}
	sink := notify.Multi(sinks...)

	var (
		s        signer.Signer = noSigner{}
		accounts bidder.AccountProvider = noAccount{}
	)
	if pk := v.GetString("private-key"); pk != "" {
		key, err := crypto.HexToECDSA(pk)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %v", err)
		}
		chainID := big.NewInt(v.GetInt64("chain-id"))
		if chainID.Sign() == 0 {
			if chainID, err = client.ChainID(ctx); err != nil {
				return nil, fmt.Errorf("getting chain id: %v", err)
			}
		}
		es, err := ethsigner.New(client, contractAddr, key, chainID, v.GetDuration("confirm-timeout"))
		if err != nil {
			return nil, fmt.Errorf("creating signer: %v", err)
		}
		log.Infof("bidding as %s on chain %s", es.Account(), chainID)
		s = es
		accounts = bidder.StaticAccount(es.Account())
	}

	ahc, err := auctionhouse.NewClient(contractAddr, client)
	if err != nil {
		return nil, fmt.Errorf("creating auction house client: %v", err)
	}

	t := tracker.New()
	t.Subscribe(tracker.Notifier(sink))
	cache := statecache.NewStateCache()

	delegates := []updater.UpdateDelegate{cache, reconciler.New(t)}
	if watch {
		delegates = append(delegates, watchLogger{})
		if broker != nil {
			delegates = append(delegates, msgbroker.NewSnapshotPublisher(broker, v.GetDuration("request-timeout")))
		}
	}
	u, err := updater.NewUpdater(updater.Config{
		Source:          ahc,
		UpdateFrequency: v.GetDuration("update-freq"),
		RequestTimeout:  v.GetDuration("request-timeout"),
		Delegates:       delegates,
	})
	if err != nil {
		return nil, fmt.Errorf("creating updater: %v", err)
	}
	fin.Add(u)

	b, err := bidder.New(bidder.Config{
		Validator: validator.New(v.GetString("display-floor")),
		Submitter: submitter.New(s, t, sink, v.GetUint64("gas-margin")),
		Tracker:   t,
		View:      cache,
		Accounts:  accounts,
		ConnectWallet: func() {
			log.Error("no account connected: set --private-key or BIDDER_PRIVATE_KEY")
		},
		Sink: sink,
	})
	if err != nil {
		return nil, fmt.Errorf("creating bidder: %v", err)
	}

	return &daemon{cache: cache, tracker: t, bidder: b}, nil
}

// outcomes returns a channel receiving the first terminal state of kind.
func (d *daemon) outcomes(kind auction.Kind) <-chan txstate.State {
	ch := make(chan txstate.State, 1)
	d.tracker.Subscribe(func(a auction.BidAttempt, st txstate.State) {
		if a.Kind != kind || !st.Status().IsTerminal() {
			return
		}
		select {
		case ch <- st:
		default:
		}
	})
	return ch
}

type watchLogger struct{}

func (watchLogger) HandleMinBidIncrement(p decimal.Decimal) {
	log.Infof("minimum bid increment: %s%%", p)
}

func (watchLogger) HandleAuctionUpdate(a auction.Auction) {
	log.Infof("auction %s: %s", a.ID, describe(a))
}

func (watchLogger) HandleError(err error) {
	log.Warnf("auction feed: %v", err)
}

func describe(a auction.Auction) string {
	bid := "no bids"
	if a.HasBidder() {
		eth := decimal.NewFromBigInt(a.Amount, -amount.Decimals)
		bid = fmt.Sprintf("Ξ %s (%s wei) by %s", eth.String(), humanize.BigComma(a.Amount), a.Bidder)
	}
	if a.Settled {
		return bid + ", settled"
	}
	if a.EndTime.IsZero() {
		return bid
	}
	return fmt.Sprintf("%s, ends %s", bid, humanize.Time(a.EndTime))
}
