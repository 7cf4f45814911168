package types

import (
	"errors"
	"fmt"
	"time"
)

// Block errors.
var (
	ErrInvalidBlock     = errors.New("invalid block")
	ErrGenesisMismatch  = errors.New("genesis mismatch")
)

// BlockHeader carries the fields that identify a block and feed its hash.
// Field order here is the canonical order used for hashing and signing:
// height, timestamp, lastBlockHash, transactionRoot, lastBlockConsensusRoot,
// nextValidatorSetRoot, appStateHash.
type BlockHeader struct {
	Height                 Height
	Timestamp              time.Time
	LastBlockHash          Hash
	TransactionRoot        Hash
	LastBlockConsensusRoot Hash
	NextValidatorSetRoot   Hash
	AppStateHash           Hash
}

// CanonicalBytes encodes the header in the fixed field order the spec
// mandates for hashing: big-endian integers, fixed-width hashes, no
// trailing padding.
func (h *BlockHeader) CanonicalBytes() []byte {
	buf := make([]byte, 0, 8+8+HashSize*5)
	tmp8 := make([]byte, 8)
	putUint64(tmp8, uint64(h.Height))
	buf = append(buf, tmp8...)
	putUint64(tmp8, uint64(h.Timestamp.UnixNano()))
	buf = append(buf, tmp8...)
	buf = append(buf, padHash(h.LastBlockHash)...)
	buf = append(buf, padHash(h.TransactionRoot)...)
	buf = append(buf, padHash(h.LastBlockConsensusRoot)...)
	buf = append(buf, padHash(h.NextValidatorSetRoot)...)
	buf = append(buf, padHash(h.AppStateHash)...)
	return buf
}

// Hash returns the header's identity hash over its canonical bytes.
func (h *BlockHeader) Hash() Hash {
	return HashBytes(h.CanonicalBytes())
}

func padHash(h Hash) Hash {
	if len(h) == HashSize {
		return h
	}
	out := make(Hash, HashSize)
	copy(out, h)
	return out
}

// BlockBody carries the transactions and consensus proof that back a
// header's roots.
type BlockBody struct {
	Transactions        TransactionList
	LastBlockConsensus  *Commit
	NextValidatorSet     *ValidatorSet
}

// Block pairs a header with the body whose roots it commits to.
type Block struct {
	Header BlockHeader
	Body   BlockBody
}

// Hash returns the block's identity hash: its header hash.
func (b *Block) Hash() Hash {
	return b.Header.Hash()
}

// Validate checks the §3 block invariants that do not require the parent:
// that the header's roots actually match the body's content.
func (b *Block) Validate() error {
	if got, want := b.Header.TransactionRoot, b.Body.Transactions.Root(); !got.Equal(want) {
		return fmt.Errorf("%w: transactionRoot mismatch", ErrInvalidBlock)
	}
	if got, want := b.Header.LastBlockConsensusRoot, b.Body.LastBlockConsensus.Hash(); !got.Equal(want) {
		return fmt.Errorf("%w: lastBlockConsensusRoot mismatch", ErrInvalidBlock)
	}
	var nvsHash Hash
	if b.Body.NextValidatorSet != nil {
		nvsHash = b.Body.NextValidatorSet.Hash()
	} else {
		nvsHash = EmptyHash()
	}
	if got := b.Header.NextValidatorSetRoot; !got.Equal(nvsHash) {
		return fmt.Errorf("%w: nextValidatorSetRoot mismatch", ErrInvalidBlock)
	}
	return nil
}

// ValidateAgainstParent checks the §3 invariants that relate a block to its
// predecessor: height succession, timestamp monotonicity, hash linkage, and
// that the carried commit proves quorum for the parent under the parent's
// own nextValidatorSet.
func (b *Block) ValidateAgainstParent(parent *Block, parentNextValidatorSet *ValidatorSet) error {
	if b.Header.Height != parent.Header.Height+1 {
		return fmt.Errorf("%w: height %d is not parent height %d + 1", ErrInvalidBlock, b.Header.Height, parent.Header.Height)
	}
	if b.Header.Timestamp.Before(parent.Header.Timestamp) {
		return fmt.Errorf("%w: timestamp before parent", ErrInvalidBlock)
	}
	if !b.Header.LastBlockHash.Equal(parent.Hash()) {
		return fmt.Errorf("%w: lastBlockHash does not match parent hash", ErrInvalidBlock)
	}
	// Genesis never goes through a consensus round, so block 1 cannot carry
	// a quorum-signed commit for it. Its LastBlockConsensus is the vacuous
	// commit GenesisBlock installs, not a proof to verify.
	if parentNextValidatorSet != nil && parent.Header.Height != 0 {
		if err := parentNextValidatorSet.VerifyCommit(parent.Header.Height, parent.Hash(), b.Body.LastBlockConsensus); err != nil {
			return fmt.Errorf("%w: parent commit does not carry quorum: %v", ErrInvalidBlock, err)
		}
	}
	return nil
}

// GenesisConfig parameterizes deterministic construction of the genesis
// block.
type GenesisConfig struct {
	Timestamp      time.Time
	Validators     []*Validator
	InitialAppHash Hash

	// AppState is the opaque genesis payload handed to the application's
	// InitChain. It plays no part in the genesis block's own hash or
	// header fields; only InitialAppHash does.
	AppState []byte
}

// GenesisBlock deterministically builds the height-0 block from a
// GenesisConfig: an empty transaction list, an empty (vacuous) commit, and
// a next validator set equal to the configured initial validators.
func GenesisBlock(cfg GenesisConfig) (*Block, *ValidatorSet, error) {
	vs, err := NewValidatorSet(cfg.Validators)
	if err != nil {
		return nil, nil, fmt.Errorf("genesis validator set: %w", err)
	}

	body := BlockBody{
		Transactions:       nil,
		LastBlockConsensus: &Commit{Height: 0, Round: 0, BlockHash: EmptyHash()},
		NextValidatorSet:   vs,
	}
	appHash := cfg.InitialAppHash
	if appHash == nil {
		appHash = EmptyHash()
	}
	header := BlockHeader{
		Height:                 0,
		Timestamp:              cfg.Timestamp,
		LastBlockHash:          EmptyHash(),
		TransactionRoot:        body.Transactions.Root(),
		LastBlockConsensusRoot: body.LastBlockConsensus.Hash(),
		NextValidatorSetRoot:   vs.Hash(),
		AppStateHash:           appHash,
	}
	return &Block{Header: header, Body: body}, vs, nil
}
