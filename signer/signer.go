package signer

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/textileio/bidder-core/txstate"
)

// Call describes a contract method call.
type Call struct {
	Method string
	Args   []interface{}
	// Value is the amount of wei attached to the call. It may be nil.
	Value *big.Int
}

// Signer estimates and dispatches transactions to the ledger.
type Signer interface {
	// Account returns the address transactions are sent from.
	Account() common.Address
	// EstimateGas estimates the gas needed by call. It fails if the call would revert.
	EstimateGas(ctx context.Context, call Call) (uint64, error)
	// Send signs and broadcasts call with the provided gas limit.
	Send(ctx context.Context, call Call, gasLimit uint64) (Handle, error)
}

// Handle tracks a broadcast transaction.
type Handle interface {
	// TxHash returns the transaction hash.
	TxHash() common.Hash
	// Done delivers exactly one terminal state: Success, Fail or Exception.
	Done() <-chan txstate.State
}

// AsyncHandle is a Handle resolved by its creator.
type AsyncHandle struct {
	hash common.Hash
	done chan txstate.State
	once sync.Once
}

var _ Handle = (*AsyncHandle)(nil)

// NewHandle returns a new unresolved AsyncHandle.
func NewHandle(hash common.Hash) *AsyncHandle {
	return &AsyncHandle{hash: hash, done: make(chan txstate.State, 1)}
}

// TxHash implements Handle.
func (h *AsyncHandle) TxHash() common.Hash {
	return h.hash
}

// Done implements Handle.
func (h *AsyncHandle) Done() <-chan txstate.State {
	return h.done
}

// Resolve delivers the terminal state. Only the first call has effect, and non-terminal
// states are ignored.
func (h *AsyncHandle) Resolve(s txstate.State) bool {
	if s == nil || !s.Status().IsTerminal() {
		return false
	}
	resolved := false
	h.once.Do(func() {
		h.done <- s
		close(h.done)
		resolved = true
	})
	return resolved
}
