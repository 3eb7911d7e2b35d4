package auctionhouse

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/textileio/bidder-core/auction"
)

// AuctionHouseABI is the subset of the auction house contract ABI used by the bidder.
const AuctionHouseABI = "[{\"inputs\":[],\"name\":\"auction\",\"outputs\":[{\"internalType\":\"uint256\",\"name\":\"nounId\",\"type\":\"uint256\"},{\"internalType\":\"uint256\",\"name\":\"amount\",\"type\":\"uint256\"},{\"internalType\":\"uint256\",\"name\":\"startTime\",\"type\":\"uint256\"},{\"internalType\":\"uint256\",\"name\":\"endTime\",\"type\":\"uint256\"},{\"internalType\":\"address payable\",\"name\":\"bidder\",\"type\":\"address\"},{\"internalType\":\"bool\",\"name\":\"settled\",\"type\":\"bool\"}],\"stateMutability\":\"view\",\"type\":\"function\"},{\"inputs\":[],\"name\":\"minBidIncrementPercentage\",\"outputs\":[{\"internalType\":\"uint8\",\"name\":\"\",\"type\":\"uint8\"}],\"stateMutability\":\"view\",\"type\":\"function\"},{\"inputs\":[{\"internalType\":\"uint256\",\"name\":\"nounId\",\"type\":\"uint256\"}],\"name\":\"createBid\",\"outputs\":[],\"stateMutability\":\"payable\",\"type\":\"function\"},{\"inputs\":[],\"name\":\"settleCurrentAndCreateNewAuction\",\"outputs\":[],\"stateMutability\":\"nonpayable\",\"type\":\"function\"},{\"anonymous\":false,\"inputs\":[{\"indexed\":true,\"internalType\":\"uint256\",\"name\":\"nounId\",\"type\":\"uint256\"},{\"indexed\":false,\"internalType\":\"address\",\"name\":\"sender\",\"type\":\"address\"},{\"indexed\":false,\"internalType\":\"uint256\",\"name\":\"value\",\"type\":\"uint256\"},{\"indexed\":false,\"internalType\":\"bool\",\"name\":\"extended\",\"type\":\"bool\"}],\"name\":\"AuctionBid\",\"type\":\"event\"}]"

const (
	// MethodCreateBid places a bid on the auction with the given id. It's payable.
	MethodCreateBid = "createBid"
	// MethodSettle settles the current auction and starts a new one.
	MethodSettle = "settleCurrentAndCreateNewAuction"

	methodAuction                   = "auction"
	methodMinBidIncrementPercentage = "minBidIncrementPercentage"
)

// ParsedABI returns the parsed auction house ABI.
func ParsedABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(AuctionHouseABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parsing auction house abi: %v", err)
	}
	return parsed, nil
}

// Bind returns a BoundContract for the auction house at address.
func Bind(
	address common.Address,
	caller bind.ContractCaller,
	transactor bind.ContractTransactor,
	filterer bind.ContractFilterer,
) (*bind.BoundContract, error) {
	parsed, err := ParsedABI()
	if err != nil {
		return nil, err
	}
	return bind.NewBoundContract(address, parsed, caller, transactor, filterer), nil
}

// Client reads the auction house state.
type Client struct {
	contract *bind.BoundContract
}

// NewClient creates a new Client for the auction house at address.
func NewClient(address common.Address, caller bind.ContractCaller) (*Client, error) {
	contract, err := Bind(address, caller, nil, nil)
	if err != nil {
		return nil, err
	}
	return &Client{contract: contract}, nil
}

// Auction returns a snapshot of the current auction.
func (c *Client) Auction(ctx context.Context) (auction.Auction, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodAuction); err != nil {
		return auction.Auction{}, fmt.Errorf("calling auction: %v", err)
	}
	return auctionFromOutputs(out)
}

// MinBidIncrementPercentage returns the minimum bid increment as a percentage.
func (c *Client) MinBidIncrementPercentage(ctx context.Context) (decimal.Decimal, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodMinBidIncrementPercentage); err != nil {
		return decimal.Decimal{}, fmt.Errorf("calling min bid increment percentage: %v", err)
	}
	if len(out) != 1 {
		return decimal.Decimal{}, fmt.Errorf("unexpected output count %d", len(out))
	}
	p := *abi.ConvertType(out[0], new(uint8)).(*uint8)
	return decimal.NewFromInt(int64(p)), nil
}

func auctionFromOutputs(out []interface{}) (auction.Auction, error) {
	if len(out) != 6 {
		return auction.Auction{}, fmt.Errorf("unexpected output count %d", len(out))
	}
	id := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	amount := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	startTime := *abi.ConvertType(out[2], new(*big.Int)).(**big.Int)
	endTime := *abi.ConvertType(out[3], new(*big.Int)).(**big.Int)
	bidder := *abi.ConvertType(out[4], new(common.Address)).(*common.Address)
	settled := *abi.ConvertType(out[5], new(bool)).(*bool)

	if id == nil || amount == nil || startTime == nil || endTime == nil {
		return auction.Auction{}, fmt.Errorf("missing auction fields")
	}
	return auction.Auction{
		ID:        id,
		Amount:    amount,
		Bidder:    bidder,
		StartTime: unixTime(startTime),
		EndTime:   unixTime(endTime),
		Settled:   settled,
	}, nil
}

func unixTime(secs *big.Int) time.Time {
	if secs.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(secs.Int64(), 0).UTC()
}
