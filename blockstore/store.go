// Package blockstore provides the append-only, height-keyed block log
// every committed block is written to, plus the small set of chain-level
// metadata (tip, genesis hash, execution frontier, app state hash) that
// rides alongside it.
package blockstore

import (
	"fmt"

	"github.com/forgebound/ledgercore/types"
)

// BlockStore is the append-only block log. Implementations must be safe
// for concurrent use. Headers and bodies written at height h are
// immutable once Put succeeds.
type BlockStore interface {
	// Height returns the highest committed height, or 0 if only genesis
	// (or nothing) has been written.
	Height() types.Height

	// Base returns the lowest height still retained. No implementation in
	// this package prunes, so nothing is removed below the first block
	// written.
	Base() types.Height

	// BlockOf returns the full block at height. Returns types.ErrNotFound
	// for a height beyond the tip or below the base.
	BlockOf(height types.Height) (*types.Block, error)

	// HeaderOf returns just the header at height, for callers (the
	// synchronizer, the responder) that don't need the body.
	HeaderOf(height types.Height) (*types.BlockHeader, error)

	// BodyOf returns just the body at height.
	BodyOf(height types.Height) (*types.BlockBody, error)

	// Put appends block. It must satisfy block.Height() == Height()+1
	// (or be the genesis block when the store is empty) and pass
	// block.Validate(); otherwise Put fails with types.ErrInvalidBlock.
	// The first block ever written fixes the chain's genesis hash for
	// this store; a later Put of a different height-0 block fails with
	// types.ErrGenesisMismatch.
	Put(block *types.Block) error

	// GenesisHash returns the hash of the height-0 block this store was
	// initialized with, and whether one has been written yet.
	GenesisHash() (types.Hash, bool)

	// ExecutedHeight returns the highest height the executor has fully
	// applied to application state.
	ExecutedHeight() types.Height

	// SetExecutedHeight advances the execution frontier. The executor
	// calls this after a height's transactions have all been applied.
	SetExecutedHeight(height types.Height) error

	// AppStateHash returns the application state hash as of
	// ExecutedHeight.
	AppStateHash() types.Hash

	// SetAppStateHash records the application state hash produced by
	// executing ExecutedHeight.
	SetAppStateHash(hash types.Hash) error

	// Close releases the store's resources.
	Close() error
}

// validateForPut checks the invariants every BlockStore.Put implementation
// enforces before writing: height succession (or a first-ever genesis
// write) and the §3 block invariants, checked against parent where one
// applies. Implementations fetch their own parent (genesis has none) and
// hand it here so the check is written once.
func validateForPut(block *types.Block, tip types.Height, hasGenesis bool, parent *types.Block) error {
	if block.Header.Height == 0 {
		if hasGenesis {
			return fmt.Errorf("%w: genesis already written", types.ErrGenesisMismatch)
		}
		return block.Validate()
	}
	if block.Header.Height != tip+1 {
		return fmt.Errorf("%w: height %d is not current height %d + 1", types.ErrInvalidBlock, block.Header.Height, tip)
	}
	if err := block.Validate(); err != nil {
		return err
	}
	return block.ValidateAgainstParent(parent, parent.Body.NextValidatorSet)
}
