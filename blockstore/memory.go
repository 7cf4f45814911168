package blockstore

import (
	"sync"

	"github.com/forgebound/ledgercore/types"
)

// MemoryBlockStore implements BlockStore with in-memory storage. Used by
// package tests across the module that need a real BlockStore without a
// backing database.
type MemoryBlockStore struct {
	mu sync.RWMutex

	headers map[types.Height]*types.BlockHeader
	bodies  map[types.Height]*types.BlockBody

	tip            types.Height
	base           types.Height
	genesisHash    types.Hash
	executedHeight types.Height
	appStateHash   types.Hash
}

// NewMemoryBlockStore creates a new in-memory block store.
func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{
		headers: make(map[types.Height]*types.BlockHeader),
		bodies:  make(map[types.Height]*types.BlockBody),
		base:    1,
	}
}

// Height returns the highest committed height.
func (m *MemoryBlockStore) Height() types.Height {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tip
}

// Base returns the lowest height still retained.
func (m *MemoryBlockStore) Base() types.Height {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.base
}

// GenesisHash returns the genesis hash this store was initialized with.
func (m *MemoryBlockStore) GenesisHash() (types.Hash, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.genesisHash == nil {
		return nil, false
	}
	return m.genesisHash, true
}

// ExecutedHeight returns the execution frontier.
func (m *MemoryBlockStore) ExecutedHeight() types.Height {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.executedHeight
}

// SetExecutedHeight advances the execution frontier.
func (m *MemoryBlockStore) SetExecutedHeight(height types.Height) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executedHeight = height
	return nil
}

// AppStateHash returns the application state hash as of ExecutedHeight.
func (m *MemoryBlockStore) AppStateHash() types.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appStateHash
}

// SetAppStateHash records the application state hash for ExecutedHeight.
func (m *MemoryBlockStore) SetAppStateHash(hash types.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appStateHash = hash
	return nil
}

// BlockOf returns the full block at height.
func (m *MemoryBlockStore) BlockOf(height types.Height) (*types.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blockOfLocked(height)
}

func (m *MemoryBlockStore) blockOfLocked(height types.Height) (*types.Block, error) {
	header, ok := m.headers[height]
	if !ok {
		return nil, types.ErrNotFound
	}
	body := m.bodies[height]
	return &types.Block{Header: *header, Body: *body}, nil
}

// HeaderOf returns the header at height.
func (m *MemoryBlockStore) HeaderOf(height types.Height) (*types.BlockHeader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	header, ok := m.headers[height]
	if !ok {
		return nil, types.ErrNotFound
	}
	return header, nil
}

// BodyOf returns the body at height.
func (m *MemoryBlockStore) BodyOf(height types.Height) (*types.BlockBody, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.bodies[height]
	if !ok {
		return nil, types.ErrNotFound
	}
	return body, nil
}

// Put appends block after the same validation LevelDBBlockStore and
// BadgerDBBlockStore perform.
func (m *MemoryBlockStore) Put(block *types.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var parent *types.Block
	if block.Header.Height != 0 {
		p, err := m.blockOfLocked(m.tip)
		if err != nil {
			return err
		}
		parent = p
	}
	if err := validateForPut(block, m.tip, m.genesisHash != nil, parent); err != nil {
		return err
	}

	header := block.Header
	body := block.Body
	m.headers[block.Header.Height] = &header
	m.bodies[block.Header.Height] = &body
	m.tip = block.Header.Height
	if block.Header.Height == 0 {
		m.genesisHash = block.Hash()
		m.base = 0
	}
	return nil
}

// Close clears the in-memory state.
func (m *MemoryBlockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers = make(map[types.Height]*types.BlockHeader)
	m.bodies = make(map[types.Height]*types.BlockBody)
	m.tip = 0
	m.base = 1
	return nil
}

var _ BlockStore = (*MemoryBlockStore)(nil)
