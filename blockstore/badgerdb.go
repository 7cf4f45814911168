package blockstore

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/forgebound/ledgercore/codec"
	"github.com/forgebound/ledgercore/types"
	"github.com/forgebound/ledgercore/wire"
)

// BadgerDBBlockStore implements BlockStore using BadgerDB, an LSM-tree
// store tuned for write-heavy, SSD-backed workloads. It implements the
// same BlockStore interface as LevelDBBlockStore so an operator can pick
// either engine without touching call sites.
type BadgerDBBlockStore struct {
	db *badger.DB

	mu             sync.RWMutex
	tip            types.Height
	base           types.Height
	genesisHash    types.Hash
	executedHeight types.Height
	appStateHash   types.Hash
}

// BadgerDBOptions configures the underlying BadgerDB instance.
type BadgerDBOptions struct {
	// SyncWrites ensures durability by syncing writes to disk. Default: true.
	SyncWrites bool

	// Compression enables Snappy compression for values. Default: true.
	Compression bool

	// ValueLogFileSize is the maximum size of a single value log file.
	// Default: 1GB.
	ValueLogFileSize int64

	// MemTableSize is the size of the memtable. Default: 64MB.
	MemTableSize int64

	// Logger is an optional logger for BadgerDB. If nil, logging is
	// disabled.
	Logger badger.Logger
}

// DefaultBadgerDBOptions returns sensible defaults.
func DefaultBadgerDBOptions() *BadgerDBOptions {
	return &BadgerDBOptions{
		SyncWrites:       true,
		Compression:      true,
		ValueLogFileSize: 1 << 30,
		MemTableSize:     64 << 20,
	}
}

// NewBadgerDBBlockStore opens a BadgerDB-backed block store at path with
// default options.
func NewBadgerDBBlockStore(path string) (*BadgerDBBlockStore, error) {
	return NewBadgerDBBlockStoreWithOptions(path, DefaultBadgerDBOptions())
}

// NewBadgerDBBlockStoreWithOptions opens a BadgerDB-backed block store at
// path with custom options.
func NewBadgerDBBlockStoreWithOptions(path string, opts *BadgerDBOptions) (*BadgerDBBlockStore, error) {
	if opts == nil {
		opts = DefaultBadgerDBOptions()
	}

	badgerOpts := badger.DefaultOptions(path).
		WithSyncWrites(opts.SyncWrites).
		WithValueLogFileSize(opts.ValueLogFileSize).
		WithMemTableSize(opts.MemTableSize)

	if opts.Compression {
		badgerOpts = badgerOpts.WithCompression(options.Snappy)
	} else {
		badgerOpts = badgerOpts.WithCompression(options.None)
	}
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badgerdb: %w", err)
	}

	s := &BadgerDBBlockStore{db: db, base: 1}
	if err := s.loadMetadata(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading metadata: %w", err)
	}
	return s, nil
}

func (s *BadgerDBBlockStore) loadMetadata() error {
	return s.db.View(func(txn *badger.Txn) error {
		if item, err := txn.Get(keyMetaTip); err == nil {
			if err := item.Value(func(v []byte) error { s.tip = types.Height(decodeUint64(v)); return nil }); err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if item, err := txn.Get(keyMetaGenesisHash); err == nil {
			if err := item.Value(func(v []byte) error { s.genesisHash = types.Hash(append([]byte(nil), v...)); return nil }); err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if item, err := txn.Get(keyMetaExecutedHeight); err == nil {
			if err := item.Value(func(v []byte) error { s.executedHeight = types.Height(decodeUint64(v)); return nil }); err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if item, err := txn.Get(keyMetaAppStateHash); err == nil {
			if err := item.Value(func(v []byte) error { s.appStateHash = types.Hash(append([]byte(nil), v...)); return nil }); err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		return nil
	})
}

// Height returns the highest committed height.
func (s *BadgerDBBlockStore) Height() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tip
}

// Base returns the lowest height still retained.
func (s *BadgerDBBlockStore) Base() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// GenesisHash returns the genesis hash this store was initialized with.
func (s *BadgerDBBlockStore) GenesisHash() (types.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.genesisHash == nil {
		return nil, false
	}
	return s.genesisHash, true
}

// ExecutedHeight returns the execution frontier.
func (s *BadgerDBBlockStore) ExecutedHeight() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.executedHeight
}

// SetExecutedHeight advances the execution frontier.
func (s *BadgerDBBlockStore) SetExecutedHeight(height types.Height) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyMetaExecutedHeight, encodeUint64(uint64(height)))
	}); err != nil {
		return fmt.Errorf("setting executed height: %w", err)
	}
	s.executedHeight = height
	return nil
}

// AppStateHash returns the application state hash as of ExecutedHeight.
func (s *BadgerDBBlockStore) AppStateHash() types.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appStateHash
}

// SetAppStateHash records the application state hash for ExecutedHeight.
func (s *BadgerDBBlockStore) SetAppStateHash(hash types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyMetaAppStateHash, hash.Bytes())
	}); err != nil {
		return fmt.Errorf("setting app state hash: %w", err)
	}
	s.appStateHash = hash
	return nil
}

// BlockOf returns the full block at height.
func (s *BadgerDBBlockStore) BlockOf(height types.Height) (*types.Block, error) {
	var block *types.Block
	err := s.db.View(func(txn *badger.Txn) error {
		b, err := s.blockOf(txn, height)
		block = b
		return err
	})
	return block, err
}

func (s *BadgerDBBlockStore) blockOf(txn *badger.Txn, height types.Height) (*types.Block, error) {
	header, err := getHeader(txn, height)
	if err != nil {
		return nil, err
	}
	body, err := getBody(txn, height)
	if err != nil {
		return nil, err
	}
	return &types.Block{Header: *header, Body: *body}, nil
}

// HeaderOf returns the header at height.
func (s *BadgerDBBlockStore) HeaderOf(height types.Height) (*types.BlockHeader, error) {
	var header *types.BlockHeader
	err := s.db.View(func(txn *badger.Txn) error {
		h, err := getHeader(txn, height)
		header = h
		return err
	})
	return header, err
}

// BodyOf returns the body at height.
func (s *BadgerDBBlockStore) BodyOf(height types.Height) (*types.BlockBody, error) {
	var body *types.BlockBody
	err := s.db.View(func(txn *badger.Txn) error {
		b, err := getBody(txn, height)
		body = b
		return err
	})
	return body, err
}

func getHeader(txn *badger.Txn, height types.Height) (*types.BlockHeader, error) {
	item, err := txn.Get(makeHeightKey(prefixHeader, height))
	if err == badger.ErrKeyNotFound {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var header *types.BlockHeader
	err = item.Value(func(v []byte) error {
		h, err := codec.UnmarshalBlockHeader(wire.NewReader(v))
		header = h
		return err
	})
	return header, err
}

func getBody(txn *badger.Txn, height types.Height) (*types.BlockBody, error) {
	item, err := txn.Get(makeHeightKey(prefixBody, height))
	if err == badger.ErrKeyNotFound {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var body *types.BlockBody
	err = item.Value(func(v []byte) error {
		b, err := codec.UnmarshalBlockBody(wire.NewReader(v))
		body = b
		return err
	})
	return body, err
}

// Put appends block, validating it the same way LevelDBBlockStore does,
// and writes header, body, and tip/genesis-hash meta in one transaction.
func (s *BadgerDBBlockStore) Put(block *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var parent *types.Block
	if block.Header.Height != 0 {
		if err := s.db.View(func(txn *badger.Txn) error {
			p, err := s.blockOf(txn, s.tip)
			parent = p
			return err
		}); err != nil {
			return fmt.Errorf("loading parent at height %d: %w", s.tip, err)
		}
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

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(makeHeightKey(prefixHeader, block.Header.Height), headerWriter.Bytes()); err != nil {
			return err
		}
		if err := txn.Set(makeHeightKey(prefixBody, block.Header.Height), bodyWriter.Bytes()); err != nil {
			return err
		}
		if err := txn.Set(keyMetaTip, encodeUint64(uint64(block.Header.Height))); err != nil {
			return err
		}
		if block.Header.Height == 0 {
			if err := txn.Set(keyMetaGenesisHash, block.Hash().Bytes()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing block: %w", err)
	}

	s.tip = block.Header.Height
	if block.Header.Height == 0 {
		s.genesisHash = block.Hash()
		s.base = 0
	}
	return nil
}

// Close closes the underlying database.
func (s *BadgerDBBlockStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

var _ BlockStore = (*BadgerDBBlockStore)(nil)
