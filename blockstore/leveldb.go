package blockstore

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/forgebound/ledgercore/codec"
	"github.com/forgebound/ledgercore/types"
	"github.com/forgebound/ledgercore/wire"
)

// Key families, matching the persistent layout: headers and bodies keyed
// by fixed-width big-endian height for correct lexicographic iteration,
// and a small meta family for chain-level bookkeeping.
var (
	prefixHeader          = []byte("h:")
	prefixBody            = []byte("b:")
	keyMetaTip            = []byte("m:tip")
	keyMetaGenesisHash    = []byte("m:genesisHash")
	keyMetaExecutedHeight = []byte("m:executedHeight")
	keyMetaAppStateHash   = []byte("m:appStateHash")
)

// LevelDBBlockStore implements BlockStore on top of goleveldb.
type LevelDBBlockStore struct {
	db *leveldb.DB

	mu             sync.RWMutex
	tip            types.Height
	base           types.Height
	genesisHash    types.Hash
	executedHeight types.Height
	appStateHash   types.Hash
}

// NewLevelDBBlockStore opens (creating if necessary) a LevelDB-backed
// block store at path.
func NewLevelDBBlockStore(path string) (*LevelDBBlockStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{NoSync: false})
	if err != nil {
		return nil, fmt.Errorf("opening leveldb: %w", err)
	}

	s := &LevelDBBlockStore{db: db, base: 1}
	if err := s.loadMetadata(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading metadata: %w", err)
	}
	return s, nil
}

func (s *LevelDBBlockStore) loadMetadata() error {
	if data, err := s.db.Get(keyMetaTip, nil); err == nil {
		s.tip = types.Height(decodeUint64(data))
	} else if err != leveldb.ErrNotFound {
		return err
	}

	if data, err := s.db.Get(keyMetaGenesisHash, nil); err == nil {
		s.genesisHash = types.Hash(append([]byte(nil), data...))
	} else if err != leveldb.ErrNotFound {
		return err
	}

	if data, err := s.db.Get(keyMetaExecutedHeight, nil); err == nil {
		s.executedHeight = types.Height(decodeUint64(data))
	} else if err != leveldb.ErrNotFound {
		return err
	}

	if data, err := s.db.Get(keyMetaAppStateHash, nil); err == nil {
		s.appStateHash = types.Hash(append([]byte(nil), data...))
	} else if err != leveldb.ErrNotFound {
		return err
	}

	return nil
}

// Height returns the highest committed height.
func (s *LevelDBBlockStore) Height() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tip
}

// Base returns the lowest height still retained.
func (s *LevelDBBlockStore) Base() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// GenesisHash returns the genesis hash this store was initialized with.
func (s *LevelDBBlockStore) GenesisHash() (types.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.genesisHash == nil {
		return nil, false
	}
	return s.genesisHash, true
}

// ExecutedHeight returns the execution frontier.
func (s *LevelDBBlockStore) ExecutedHeight() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.executedHeight
}

// SetExecutedHeight advances the execution frontier.
func (s *LevelDBBlockStore) SetExecutedHeight(height types.Height) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put(keyMetaExecutedHeight, encodeUint64(uint64(height)), &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("setting executed height: %w", err)
	}
	s.executedHeight = height
	return nil
}

// AppStateHash returns the application state hash as of ExecutedHeight.
func (s *LevelDBBlockStore) AppStateHash() types.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appStateHash
}

// SetAppStateHash records the application state hash for ExecutedHeight.
func (s *LevelDBBlockStore) SetAppStateHash(hash types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put(keyMetaAppStateHash, hash.Bytes(), &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("setting app state hash: %w", err)
	}
	s.appStateHash = hash
	return nil
}

// BlockOf returns the full block at height.
func (s *LevelDBBlockStore) BlockOf(height types.Height) (*types.Block, error) {
	header, err := s.HeaderOf(height)
	if err != nil {
		return nil, err
	}
	body, err := s.BodyOf(height)
	if err != nil {
		return nil, err
	}
	return &types.Block{Header: *header, Body: *body}, nil
}

// HeaderOf returns the header at height.
func (s *LevelDBBlockStore) HeaderOf(height types.Height) (*types.BlockHeader, error) {
	data, err := s.db.Get(makeHeightKey(prefixHeader, height), nil)
	if err == leveldb.ErrNotFound {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting header at height %d: %w", height, err)
	}
	return codec.UnmarshalBlockHeader(wire.NewReader(data))
}

// BodyOf returns the body at height.
func (s *LevelDBBlockStore) BodyOf(height types.Height) (*types.BlockBody, error) {
	data, err := s.db.Get(makeHeightKey(prefixBody, height), nil)
	if err == leveldb.ErrNotFound {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting body at height %d: %w", height, err)
	}
	return codec.UnmarshalBlockBody(wire.NewReader(data))
}

// Put appends block atomically: header, body, and the tip/genesis-hash
// meta entries it updates all land in one LevelDB batch.
func (s *LevelDBBlockStore) Put(block *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var parent *types.Block
	if block.Header.Height != 0 {
		p, err := s.blockOfLocked(s.tip)
		if err != nil {
			return fmt.Errorf("loading parent at height %d: %w", s.tip, err)
		}
		parent = p
	}
	if err := validateForPut(block, s.tip, s.genesisHash != nil, parent); err != nil {
		return err
	}

	headerWriter := wire.GetWriter()
	defer wire.PutWriter(headerWriter)
	codec.MarshalBlockHeader(headerWriter, &block.Header)

	bodyWriter := wire.GetWriter()
	defer wire.PutWriter(bodyWriter)
	codec.MarshalBlockBody(bodyWriter, &block.Body)

	batch := new(leveldb.Batch)
	batch.Put(makeHeightKey(prefixHeader, block.Header.Height), headerWriter.Bytes())
	batch.Put(makeHeightKey(prefixBody, block.Header.Height), bodyWriter.Bytes())
	batch.Put(keyMetaTip, encodeUint64(uint64(block.Header.Height)))
	if block.Header.Height == 0 {
		batch.Put(keyMetaGenesisHash, block.Hash().Bytes())
	}

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("writing block: %w", err)
	}

	s.tip = block.Header.Height
	if block.Header.Height == 0 {
		s.genesisHash = block.Hash()
		s.base = 0
	}
	return nil
}

func (s *LevelDBBlockStore) blockOfLocked(height types.Height) (*types.Block, error) {
	headerData, err := s.db.Get(makeHeightKey(prefixHeader, height), nil)
	if err == leveldb.ErrNotFound {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	header, err := codec.UnmarshalBlockHeader(wire.NewReader(headerData))
	if err != nil {
		return nil, err
	}
	bodyData, err := s.db.Get(makeHeightKey(prefixBody, height), nil)
	if err == leveldb.ErrNotFound {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	body, err := codec.UnmarshalBlockBody(wire.NewReader(bodyData))
	if err != nil {
		return nil, err
	}
	return &types.Block{Header: *header, Body: *body}, nil
}

// Close closes the underlying database.
func (s *LevelDBBlockStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

var _ BlockStore = (*LevelDBBlockStore)(nil)

func makeHeightKey(prefix []byte, height types.Height) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(height))
	return key
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(data []byte) uint64 {
	if len(data) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}
