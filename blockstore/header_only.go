package blockstore

import (
	"fmt"
	"sync"

	"github.com/forgebound/ledgercore/types"
)

// ErrBodyNotStored is returned by HeaderOnlyBlockStore.BodyOf and BlockOf:
// this store keeps headers only.
var ErrBodyNotStored = fmt.Errorf("%w: header-only store keeps no bodies", types.ErrNotFound)

// HeaderOnlyBlockStore keeps headers but discards bodies, for light
// clients that verify the header chain without holding full blocks.
// BlockOf and BodyOf always fail with ErrBodyNotStored.
type HeaderOnlyBlockStore struct {
	mu sync.RWMutex

	headers map[types.Height]*types.BlockHeader

	tip            types.Height
	base           types.Height
	genesisHash    types.Hash
	executedHeight types.Height
	appStateHash   types.Hash
}

// NewHeaderOnlyBlockStore creates a new header-only block store.
func NewHeaderOnlyBlockStore() *HeaderOnlyBlockStore {
	return &HeaderOnlyBlockStore{
		headers: make(map[types.Height]*types.BlockHeader),
		base:    1,
	}
}

// Height returns the highest committed height.
func (s *HeaderOnlyBlockStore) Height() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tip
}

// Base returns the lowest height still retained.
func (s *HeaderOnlyBlockStore) Base() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// GenesisHash returns the genesis hash this store was initialized with.
func (s *HeaderOnlyBlockStore) GenesisHash() (types.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.genesisHash == nil {
		return nil, false
	}
	return s.genesisHash, true
}

// ExecutedHeight returns the execution frontier. A header-only store never
// executes anything; callers that need this should look elsewhere.
func (s *HeaderOnlyBlockStore) ExecutedHeight() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.executedHeight
}

// SetExecutedHeight advances the execution frontier.
func (s *HeaderOnlyBlockStore) SetExecutedHeight(height types.Height) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executedHeight = height
	return nil
}

// AppStateHash returns the application state hash as of ExecutedHeight.
func (s *HeaderOnlyBlockStore) AppStateHash() types.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appStateHash
}

// SetAppStateHash records the application state hash for ExecutedHeight.
func (s *HeaderOnlyBlockStore) SetAppStateHash(hash types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appStateHash = hash
	return nil
}

// BlockOf always fails: this store keeps no bodies.
func (s *HeaderOnlyBlockStore) BlockOf(height types.Height) (*types.Block, error) {
	return nil, ErrBodyNotStored
}

// HeaderOf returns the header at height.
func (s *HeaderOnlyBlockStore) HeaderOf(height types.Height) (*types.BlockHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.headers[height]
	if !ok {
		return nil, types.ErrNotFound
	}
	return h, nil
}

// BodyOf always fails: this store keeps no bodies.
func (s *HeaderOnlyBlockStore) BodyOf(height types.Height) (*types.BlockBody, error) {
	return nil, ErrBodyNotStored
}

// Put records block's header, discarding its body. It checks height
// succession and that LastBlockHash matches the stored parent header.
// Validation that requires the parent body (ValidateAgainstParent's
// quorum check) is skipped past genesis since the parent body isn't
// retained.
func (s *HeaderOnlyBlockStore) Put(block *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if block.Header.Height == 0 {
		if s.genesisHash != nil {
			return fmt.Errorf("%w: genesis already written", types.ErrGenesisMismatch)
		}
	} else if block.Header.Height != s.tip+1 {
		return fmt.Errorf("%w: height %d is not current height %d + 1", types.ErrInvalidBlock, block.Header.Height, s.tip)
	}
	if block.Header.Height != 0 {
		parentHeader, ok := s.headers[s.tip]
		if !ok {
			return types.ErrNotFound
		}
		if !block.Header.LastBlockHash.Equal(parentHeader.Hash()) {
			return fmt.Errorf("%w: lastBlockHash does not match parent hash", types.ErrInvalidBlock)
		}
	}

	header := block.Header
	s.headers[block.Header.Height] = &header
	s.tip = block.Header.Height
	if block.Header.Height == 0 {
		s.genesisHash = block.Hash()
		s.base = 0
	}
	return nil
}

// Close clears the in-memory state.
func (s *HeaderOnlyBlockStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = make(map[types.Height]*types.BlockHeader)
	s.tip = 0
	s.base = 1
	return nil
}

var _ BlockStore = (*HeaderOnlyBlockStore)(nil)
