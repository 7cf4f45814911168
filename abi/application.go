// Package abi defines the narrow boundary between the consensus core and
// the application it replicates. The node depends on Dapp; it never
// depends on application internals, and the application never depends on
// consensus internals beyond the types this package and the types package
// expose.
package abi

import (
	"context"

	"github.com/forgebound/ledgercore/types"
)

// Dapp is the state machine the consensus core drives. All methods are
// invoked by the executor; the application only responds.
//
// InitChain runs once, at genesis. ExecuteTransaction runs once per
// transaction, in block order, for every committed block. EndBlock runs
// once per block, after its last transaction. AppStateHash is read right
// after EndBlock to become the committed block's app state hash.
// ValidateTransaction is called by the pool on admission and by the
// executor while validating a block; SelectTransactions is called by the
// executor while building a proposal. Both run outside of block execution
// and may run concurrently with execution and with each other.
type Dapp interface {
	// InitChain initializes application state from the genesis validator
	// set and opaque genesis app state. Called exactly once, before the
	// first ExecuteTransaction.
	InitChain(ctx context.Context, validators []*types.Validator, appState []byte) error

	// ExecuteTransaction applies a transaction to application state during
	// block execution. A non-nil error here is a fatal fault (see
	// types.ErrExecutorFault): rejection of the transaction itself is
	// signaled through the returned TxResult, not through error.
	ExecuteTransaction(ctx context.Context, tx *types.Transaction) (*TxResult, error)

	// ValidateTransaction reports whether a transaction is currently
	// acceptable. The pool calls this on admission, and the executor calls
	// it for each transaction of a block it validates. Transactions still
	// pending after a commit are not re-checked against post-commit state.
	ValidateTransaction(ctx context.Context, tx *types.Transaction) bool

	// SelectTransactions orders and trims a set of pool candidates into the
	// list a proposer should include. The result determines the block's
	// transaction list. Only the proposer calls it; validators checking a
	// proposal run ValidateTransaction on its transactions instead.
	SelectTransactions(ctx context.Context, candidates []*types.Transaction) []*types.Transaction

	// EndBlock runs once after the last ExecuteTransaction call for a
	// block. Returned validator updates are applied at the next height's
	// boundary, never mid-round; a nil or empty result leaves the
	// validator set unchanged.
	EndBlock(ctx context.Context, height types.Height) ([]*types.Validator, error)

	// AppStateHash returns the current application state root. Read once
	// per block, immediately after EndBlock, to populate the committed
	// block header.
	AppStateHash(ctx context.Context) types.Hash

	// Query answers a read-only request against application state at a
	// given height. Height 0 means the latest committed height. Query may
	// be called concurrently with execution and with other queries.
	Query(ctx context.Context, path string, data []byte, height types.Height) (*QueryResult, error)
}

// Core is the capability surface the node exposes back to the dapp: enough
// to submit transactions and read chain state, without handing over
// anything that would let the dapp reach into consensus internals.
type Core interface {
	// SendTransaction submits a transaction to the local pool, as if it had
	// arrived from a peer.
	SendTransaction(ctx context.Context, tx *types.Transaction) error

	// Blockchain returns read access to the committed chain.
	Blockchain() BlockchainReader

	// CurrentValidatorSet returns the validator set in force for the next
	// height to be proposed.
	CurrentValidatorSet() *types.ValidatorSet
}

// BlockchainReader is the read-only view of the committed chain exposed to
// the dapp through Core.
type BlockchainReader interface {
	// Height returns the highest committed height.
	Height() types.Height

	// BlockAt returns the committed block at height, or types.ErrNotFound.
	BlockAt(height types.Height) (*types.Block, error)
}
