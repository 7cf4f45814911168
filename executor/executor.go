// Package executor implements consensus.BlockExecutor: it turns pool
// candidates into proposal blocks, checks received blocks against the
// application and the chain, and drives the application through a
// committed block's transactions.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forgebound/ledgercore/abi"
	"github.com/forgebound/ledgercore/blockstore"
	"github.com/forgebound/ledgercore/codec"
	"github.com/forgebound/ledgercore/types"
	"github.com/forgebound/ledgercore/wire"
)

// DefaultMaxProposalBytes bounds how much of the pool a single proposal
// reaps when the caller doesn't override it via NewExecutor.
const DefaultMaxProposalBytes = 4 << 20

// Pool is the executor's narrow view of the transaction pool: enough to
// fill a proposal and to drop what a block committed. Satisfied by
// mempool.Mempool.
type Pool interface {
	ReapTxs(maxBytes int64) [][]byte
	RemoveTxs(hashes [][]byte)
}

// Executor drives a blockstore.BlockStore and an abi.Dapp on behalf of the
// consensus engine. It is not safe to call Initialize concurrently with
// the other methods; the engine only starts driving CreateProposalBlock,
// ValidateBlock and Commit after Initialize has returned.
type Executor struct {
	store blockstore.BlockStore
	dapp  abi.Dapp
	pool  Pool

	maxProposalBytes int64

	mu sync.Mutex
	// currentValidators is the committee active for the height about to be
	// proposed: the same set that must sign that height's own commit. It
	// only advances inside Commit, once EndBlock's updates are known.
	currentValidators *types.ValidatorSet
	// lastCommit is the commit that finalized the highest committed
	// block, carried forward into the next proposal's
	// Body.LastBlockConsensus.
	lastCommit *types.Commit
}

// NewExecutor builds an Executor over store and dapp, reaping at most
// maxProposalBytes worth of pool transactions per proposal. A
// maxProposalBytes of 0 uses DefaultMaxProposalBytes.
func NewExecutor(store blockstore.BlockStore, dapp abi.Dapp, pool Pool, maxProposalBytes int64) *Executor {
	if maxProposalBytes <= 0 {
		maxProposalBytes = DefaultMaxProposalBytes
	}
	return &Executor{
		store:            store,
		dapp:             dapp,
		pool:             pool,
		maxProposalBytes: maxProposalBytes,
	}
}

// Initialize brings the executor to a runnable state and returns the
// validator set the first proposal after it should be built against.
//
// If store already carries a genesis block, this is a resume: genesis's
// own NextValidatorSet is recovered directly, since it is durable. If the
// store's tip is above 0, the committee in force at the tip is not
// recoverable from durable state alone (it only ever existed in memory
// after the block at the tip was committed); callers restarting past
// genesis must follow Initialize with SeedRecoveredState once a WAL or
// equivalent replay layer has reconstructed it.
//
// If store is empty, Initialize writes cfg's genesis block, runs
// InitChain, and marks height 0 executed.
func (e *Executor) Initialize(ctx context.Context, cfg types.GenesisConfig) (*types.ValidatorSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.store.GenesisHash(); ok {
		genesis, err := e.store.BlockOf(0)
		if err != nil {
			return nil, fmt.Errorf("executor: reading genesis on resume: %w", err)
		}
		e.currentValidators = genesis.Body.NextValidatorSet
		e.lastCommit = genesis.Body.LastBlockConsensus
		return e.currentValidators, nil
	}

	block, vs, err := types.GenesisBlock(cfg)
	if err != nil {
		return nil, fmt.Errorf("executor: building genesis: %w", err)
	}
	if err := e.store.Put(block); err != nil {
		return nil, fmt.Errorf("executor: writing genesis: %w", err)
	}
	if err := e.dapp.InitChain(ctx, cfg.Validators, cfg.AppState); err != nil {
		return nil, fmt.Errorf("executor: InitChain: %w", err)
	}
	if err := e.store.SetExecutedHeight(0); err != nil {
		return nil, fmt.Errorf("executor: recording executed height: %w", err)
	}
	if err := e.store.SetAppStateHash(block.Header.AppStateHash); err != nil {
		return nil, fmt.Errorf("executor: recording app state hash: %w", err)
	}

	e.currentValidators = vs
	e.lastCommit = block.Body.LastBlockConsensus
	return vs, nil
}

// SeedRecoveredState installs the committee and last commit a WAL replay
// (or other out-of-band recovery) reconstructed for a restart past
// genesis. Must be called after Initialize and before the engine issues
// its first CreateProposalBlock, ValidateBlock or Commit call.
func (e *Executor) SeedRecoveredState(commit *types.Commit, validators *types.ValidatorSet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastCommit = commit
	e.currentValidators = validators
}

// CurrentValidatorSet returns the committee in force for the next height
// to be proposed.
func (e *Executor) CurrentValidatorSet() *types.ValidatorSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentValidators
}

// CreateProposalBlock reaps pool candidates, asks the application to
// select among them, and assembles them into a block at height. The
// block's AppStateHash is the state as of the parent height: the
// application's response to this height's own transactions isn't known
// until Commit runs.
func (e *Executor) CreateProposalBlock(height types.Height) (*types.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currentValidators == nil || e.lastCommit == nil {
		return nil, fmt.Errorf("executor: CreateProposalBlock called before Initialize")
	}
	parent, err := e.store.BlockOf(height - 1)
	if err != nil {
		return nil, fmt.Errorf("executor: reading parent at height %d: %w", height-1, err)
	}

	raw := e.pool.ReapTxs(e.maxProposalBytes)
	candidates := make([]*types.Transaction, 0, len(raw))
	for _, txBytes := range raw {
		tx, err := codec.UnmarshalTransaction(wire.NewReader(txBytes))
		if err != nil {
			continue
		}
		candidates = append(candidates, tx)
	}

	selected := e.dapp.SelectTransactions(context.Background(), candidates)

	body := types.BlockBody{
		Transactions:       types.TransactionList(selected),
		LastBlockConsensus: e.lastCommit,
		NextValidatorSet:   e.currentValidators,
	}
	header := types.BlockHeader{
		Height:                 height,
		Timestamp:              time.Now().UTC(),
		LastBlockHash:          parent.Hash(),
		TransactionRoot:        body.Transactions.Root(),
		LastBlockConsensusRoot: body.LastBlockConsensus.Hash(),
		NextValidatorSetRoot:   body.NextValidatorSet.Hash(),
		AppStateHash:           e.store.AppStateHash(),
	}
	return &types.Block{Header: header, Body: body}, nil
}

// ValidateBlock checks block's own invariants, its linkage to the parent
// already on the store, that its AppStateHash matches the state the
// executor has actually produced, and that the application still accepts
// every transaction it carries. It never mutates the store.
func (e *Executor) ValidateBlock(block *types.Block) error {
	if block == nil {
		return fmt.Errorf("%w: nil block", types.ErrInvalidBlock)
	}
	if err := block.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	parent, err := e.store.BlockOf(block.Header.Height - 1)
	if err != nil {
		return fmt.Errorf("executor: reading parent at height %d: %w", block.Header.Height-1, err)
	}
	if err := block.ValidateAgainstParent(parent, parent.Body.NextValidatorSet); err != nil {
		return err
	}
	if want := e.store.AppStateHash(); !block.Header.AppStateHash.Equal(want) {
		return fmt.Errorf("%w: appStateHash does not match executed state", types.ErrInvalidBlock)
	}

	ctx := context.Background()
	for _, tx := range block.Body.Transactions {
		if !e.dapp.ValidateTransaction(ctx, tx) {
			return fmt.Errorf("%w: transaction rejected by application", types.ErrInvalidTx)
		}
	}
	return nil
}

// Commit writes block to the store under commit's proof, applies its
// transactions to the application in order, and advances the committee
// for the next height with EndBlock's validator updates. The returned set
// is what the engine hands back into the next height's round.
func (e *Executor) Commit(block *types.Block, commit *types.Commit) (*types.ValidatorSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Put(block); err != nil {
		return nil, fmt.Errorf("executor: writing block: %w", err)
	}

	ctx := context.Background()
	committed := make([][]byte, 0, len(block.Body.Transactions))
	for _, tx := range block.Body.Transactions {
		if _, err := e.dapp.ExecuteTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrExecutorFault, err)
		}
		committed = append(committed, poolHash(tx))
	}

	updates, err := e.dapp.EndBlock(ctx, block.Header.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: EndBlock: %v", types.ErrExecutorFault, err)
	}
	appHash := e.dapp.AppStateHash(ctx)

	if err := e.store.SetExecutedHeight(block.Header.Height); err != nil {
		return nil, fmt.Errorf("executor: recording executed height: %w", err)
	}
	if err := e.store.SetAppStateHash(appHash); err != nil {
		return nil, fmt.Errorf("executor: recording app state hash: %w", err)
	}

	nextValidators, err := e.currentValidators.NextHeight(updates)
	if err != nil {
		return nil, fmt.Errorf("executor: applying validator updates: %w", err)
	}

	e.pool.RemoveTxs(committed)

	e.currentValidators = nextValidators
	e.lastCommit = commit
	return nextValidators, nil
}

// poolHash recomputes the pool's identity hash for a decoded transaction
// by re-encoding it to the same wire bytes the pool hashed on admission.
func poolHash(tx *types.Transaction) []byte {
	w := wire.GetWriter()
	defer wire.PutWriter(w)
	codec.MarshalTransaction(w, tx)
	return types.HashTx(w.Bytes())
}
