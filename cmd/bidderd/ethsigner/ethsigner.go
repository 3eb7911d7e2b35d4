package ethsigner

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/textileio/bidder-core/cmd/bidderd/auctionhouse"
	"github.com/textileio/bidder-core/signer"
	"github.com/textileio/bidder-core/txstate"
	logging "github.com/textileio/go-log/v2"
)

var log = logging.Logger("bidderd/ethsigner")

// Backend is the ledger connection needed to send and confirm transactions.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Signer signs auction house transactions with a local private key.
type Signer struct {
	backend        Backend
	contractAddr   common.Address
	abi            abi.ABI
	contract       *bind.BoundContract
	key            *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	confirmTimeout time.Duration
}

var _ signer.Signer = (*Signer)(nil)

// New returns a new Signer sending to the auction house at contractAddr.
func New(
	backend Backend,
	contractAddr common.Address,
	key *ecdsa.PrivateKey,
	chainID *big.Int,
	confirmTimeout time.Duration,
) (*Signer, error) {
	if key == nil {
		return nil, errors.New("private key is required")
	}
	if chainID == nil {
		return nil, errors.New("chain id is required")
	}
	if confirmTimeout <= 0 {
		return nil, errors.New("confirm timeout must be positive")
	}
	parsed, err := auctionhouse.ParsedABI()
	if err != nil {
		return nil, err
	}
	return &Signer{
		backend:        backend,
		contractAddr:   contractAddr,
		abi:            parsed,
		contract:       bind.NewBoundContract(contractAddr, parsed, backend, backend, backend),
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		chainID:        chainID,
		confirmTimeout: confirmTimeout,
	}, nil
}

// Account implements signer.Signer.
func (s *Signer) Account() common.Address {
	return s.from
}

// EstimateGas implements signer.Signer.
func (s *Signer) EstimateGas(ctx context.Context, call signer.Call) (uint64, error) {
	input, err := s.abi.Pack(call.Method, call.Args...)
	if err != nil {
		return 0, fmt.Errorf("packing %s: %v", call.Method, err)
	}
	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.from,
		To:    &s.contractAddr,
		Value: call.Value,
		Data:  input,
	})
	if err != nil {
		return 0, fmt.Errorf("estimating gas for %s: %v", call.Method, err)
	}
	return gas, nil
}

// Send implements signer.Signer. The returned handle resolves once the transaction
// receipt is available or the confirm timeout expires.
func (s *Signer) Send(ctx context.Context, call signer.Call, gasLimit uint64) (signer.Handle, error) {
	tx, err := s.contract.Transact(&bind.TransactOpts{
		Context:  ctx,
		From:     s.from,
		Signer:   s.sign,
		Value:    call.Value,
		GasLimit: gasLimit,
	}, call.Method, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("sending %s: %v", call.Method, err)
	}
	log.Infof("sent %s transaction %s with gas limit %d", call.Method, tx.Hash(), gasLimit)

	h := signer.NewHandle(tx.Hash())
	go s.confirm(tx, h)
	return h, nil
}

func (s *Signer) sign(a common.Address, t *types.Transaction) (*types.Transaction, error) {
	if a != s.from {
		return nil, bind.ErrNotAuthorized
	}
	return types.SignTx(t, types.LatestSignerForChainID(s.chainID), s.key)
}

func (s *Signer) confirm(tx *types.Transaction, h *signer.AsyncHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), s.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, s.backend, tx)
	if err != nil {
		log.Errorf("waiting for transaction %s: %v", tx.Hash(), err)
		h.Resolve(txstate.Exception{Message: fmt.Sprintf("waiting for transaction: %v", err)})
		return
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Warnf("transaction %s failed in block %s", tx.Hash(), receipt.BlockNumber)
		h.Resolve(txstate.Fail{Message: "Transaction reverted."})
		return
	}
	log.Infof("transaction %s mined in block %s", tx.Hash(), receipt.BlockNumber)
	h.Resolve(txstate.Success{})
}
