package main

import (
	"context"
	"errors"
	"fmt"
	_ "net/http/pprof"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/textileio/bidder-core/amount"
	"github.com/textileio/bidder-core/auction"
	"github.com/textileio/bidder-core/cmd/bidderd/submitter"
	"github.com/textileio/bidder-core/cmd/common"
	"github.com/textileio/bidder-core/notify"
	"github.com/textileio/bidder-core/txstate"
	"github.com/textileio/go-libp2p-pubsub-rpc/finalizer"
	logging "github.com/textileio/go-log/v2"
)

var (
	daemonName = "bidderd"
	log        = logging.Logger(daemonName)
	v          = viper.New()
)

func init() {
	flags := []common.Flag{
		{Name: "eth-endpoint", DefValue: "http://127.0.0.1:8545", Description: "Ethereum JSON-RPC endpoint"},
		{Name: "endpoint-timeout", DefValue: time.Second * 10, Description: "Timeout for dialing the endpoint"},
		{Name: "chain-id", DefValue: int64(0), Description: "Chain id used for signing; 0 queries the endpoint"},
		{Name: "contract-addr", DefValue: "", Description: "Auction house contract address"},
		{Name: "private-key", DefValue: "", Description: "Hex-encoded private key of the bidding account"},
		{Name: "display-floor", DefValue: amount.DefaultDisplayFloor, Description: "Minimum bid shown when the auction has no bids"},
		{Name: "gas-margin", DefValue: submitter.DefaultGasMargin, Description: "Gas added to every estimate"},
		{Name: "update-freq", DefValue: time.Second * 12, Description: "Auction polling frequency"},
		{Name: "request-timeout", DefValue: time.Second * 10, Description: "Timeout for auction reads"},
		{Name: "confirm-timeout", DefValue: time.Minute * 10, Description: "Timeout waiting for a transaction receipt"},
		{Name: "gpubsub-project-id", DefValue: "", Description: "Google PubSub project id; empty disables publishing"},
		{Name: "gpubsub-api-key", DefValue: "", Description: "Google PubSub API key"},
		{Name: "gpubsub-topic-prefix", DefValue: "bidderd-", Description: "Google PubSub topic prefix"},
		{Name: "metrics-addr", DefValue: ":9090", Description: "Prometheus listen address"},
		{Name: "log-debug", DefValue: false, Description: "Enable debug level logging"},
		{Name: "log-json", DefValue: false, Description: "Enable structured logging"},
	}

	common.ConfigureCLI(v, "BIDDER", flags, rootCmd.PersistentFlags())

	rootCmd.AddCommand(watchCmd, bidCmd, settleCmd)
}

var rootCmd = &cobra.Command{
	Use:   daemonName,
	Short: "bidderd places and settles bids on an on-chain auction house",
	Long:  "bidderd places and settles bids on an on-chain auction house",
	PersistentPreRun: func(c *cobra.Command, args []string) {
		common.ExpandEnvVars(v, v.AllSettings())
		err := common.ConfigureLogging(v, []string{
			daemonName,
			"bidderd/bidder",
			"bidderd/ethsigner",
			"bidderd/reconciler",
			"bidderd/statecache",
			"bidderd/submitter",
			"bidderd/tracker",
			"bidderd/updater",
			"msgbroker",
			"gpubsub",
		})
		common.CheckErrf("setting log levels: %v", err)

		settings, err := common.MarshalConfig(v, !v.GetBool("log-json"), "private-key", "gpubsub-api-key")
		common.CheckErrf("marshaling config: %v", err)
		log.Debugf("loaded config: %s", string(settings))
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the current auction",
	Long:  "Follow the current auction, logging and publishing every new snapshot.",
	Args:  cobra.NoArgs,
	Run: func(c *cobra.Command, args []string) {
		fin := finalizer.NewFinalizer()

		err := common.SetupInstrumentation(v.GetString("metrics-addr"))
		common.CheckErrf("booting instrumentation: %v", err)

		if _, err := newDaemon(v, fin, true); err != nil {
			common.CheckErr(fin.Cleanupf("starting daemon: %v", err))
		}

		common.HandleInterrupt(func() {
			common.CheckErr(fin.Cleanupf("closing daemon: %v", nil))
		})
	},
}

var bidCmd = &cobra.Command{
	Use:   "bid <amount>",
	Short: "Place a bid on the current auction",
	Long:  "Place a bid of <amount> ETH on the current auction and wait for the outcome.",
	Args:  cobra.ExactArgs(1),
	Run: func(c *cobra.Command, args []string) {
		fin := finalizer.NewFinalizer()

		d, err := newDaemon(v, fin, false)
		if err != nil {
			common.CheckErr(fin.Cleanupf("starting daemon: %v", err))
		}

		err = runAction(d, auction.KindBid, func(ctx context.Context) error {
			if in := d.bidder.SetInput(args[0]); in != args[0] {
				return fmt.Errorf("bid amount %s has more than two decimals", args[0])
			}
			_, err := d.bidder.PlaceBid(ctx)
			return err
		})
		common.CheckErr(fin.Cleanupf("placing bid: %v", err))
	},
}

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Settle the current auction and start a new one",
	Long:  "Settle the current auction and start a new one, waiting for the outcome.",
	Args:  cobra.NoArgs,
	Run: func(c *cobra.Command, args []string) {
		fin := finalizer.NewFinalizer()

		d, err := newDaemon(v, fin, false)
		if err != nil {
			common.CheckErr(fin.Cleanupf("starting daemon: %v", err))
		}

		err = runAction(d, auction.KindSettle, func(ctx context.Context) error {
			if !d.bidder.AuctionEnded() {
				log.Warn("auction hasn't ended yet, the settlement will likely revert")
			}
			_, err := d.bidder.Settle(ctx)
			return err
		})
		common.CheckErr(fin.Cleanupf("settling auction: %v", err))
	},
}

// runAction waits for the first snapshot, runs submit, and waits for the
// attempt to reach a terminal state.
func runAction(d *daemon, kind auction.Kind, submit func(context.Context) error) error {
	timeout := v.GetDuration("request-timeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	a, err := d.cache.WaitAuction(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("waiting for auction state: %v", err)
	}
	log.Infof("current auction %s: %s", a.ID, describe(a))

	outcome := d.outcomes(kind)
	ctx, cancel = context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := submit(ctx); err != nil {
		return err
	}

	st := <-outcome
	if st.Status() != txstate.StatusSuccess {
		return errors.New(notify.MessageOr(txstate.ErrorMessage(st)))
	}
	return nil
}

func main() {
	common.CheckErr(rootCmd.Execute())
}
