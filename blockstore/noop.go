package blockstore

import (
	"github.com/forgebound/ledgercore/types"
)

// NoOpBlockStore rejects every write and reports no blocks. Use this for
// node roles that don't need block storage, e.g. seed nodes.
type NoOpBlockStore struct{}

// NewNoOpBlockStore creates a new no-op block store.
func NewNoOpBlockStore() *NoOpBlockStore {
	return &NoOpBlockStore{}
}

// Height always returns 0.
func (s *NoOpBlockStore) Height() types.Height { return 0 }

// Base always returns 0.
func (s *NoOpBlockStore) Base() types.Height { return 0 }

// GenesisHash always reports no genesis written.
func (s *NoOpBlockStore) GenesisHash() (types.Hash, bool) { return nil, false }

// ExecutedHeight always returns 0.
func (s *NoOpBlockStore) ExecutedHeight() types.Height { return 0 }

// SetExecutedHeight always fails.
func (s *NoOpBlockStore) SetExecutedHeight(types.Height) error { return types.ErrStoreClosed }

// AppStateHash always returns nil.
func (s *NoOpBlockStore) AppStateHash() types.Hash { return nil }

// SetAppStateHash always fails.
func (s *NoOpBlockStore) SetAppStateHash(types.Hash) error { return types.ErrStoreClosed }

// BlockOf always returns types.ErrNotFound.
func (s *NoOpBlockStore) BlockOf(types.Height) (*types.Block, error) {
	return nil, types.ErrNotFound
}

// HeaderOf always returns types.ErrNotFound.
func (s *NoOpBlockStore) HeaderOf(types.Height) (*types.BlockHeader, error) {
	return nil, types.ErrNotFound
}

// BodyOf always returns types.ErrNotFound.
func (s *NoOpBlockStore) BodyOf(types.Height) (*types.BlockBody, error) {
	return nil, types.ErrNotFound
}

// Put always fails: a no-op store never accepts blocks.
func (s *NoOpBlockStore) Put(*types.Block) error {
	return types.ErrStoreClosed
}

// Close does nothing.
func (s *NoOpBlockStore) Close() error { return nil }

var _ BlockStore = (*NoOpBlockStore)(nil)
