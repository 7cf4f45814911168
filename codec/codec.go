// Package codec wires the domain types in package types into the wire
// binary format, so every package that needs to put a Vote, Proposal,
// Block, Commit, or ValidatorSet on disk or on the network shares one
// encoding instead of each inventing its own.
package codec

import (
	"crypto/ed25519"
	"time"

	"github.com/forgebound/ledgercore/types"
	"github.com/forgebound/ledgercore/wire"
)

// MarshalVote writes v's wire encoding to w.
func MarshalVote(w *wire.Writer, v *types.Vote) {
	w.WriteUint8(uint8(v.Type))
	w.WriteUint64(uint64(v.Height))
	w.WriteUint32(uint32(v.Round))
	w.WriteUint16(v.ValidatorIndex)
	w.WriteBytes(v.BlockHash)
	w.WriteBytes(v.Signature)
}

// UnmarshalVote reads a Vote written by MarshalVote.
func UnmarshalVote(r *wire.Reader) (*types.Vote, error) {
	voteType, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	height, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	round, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	valIdx, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	blockHash, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	sig, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &types.Vote{
		Type:           types.VoteType(voteType),
		Height:         types.Height(height),
		Round:          int32(round),
		ValidatorIndex: valIdx,
		BlockHash:      blockHash,
		Signature:      sig,
	}, nil
}

// MarshalProposal writes p's wire encoding to w, including its carried
// block (if any).
func MarshalProposal(w *wire.Writer, p *types.Proposal) {
	w.WriteUint64(uint64(p.Height))
	w.WriteUint32(uint32(p.Round))
	w.WriteUint32(uint32(p.LockedRound))
	w.WriteBytes(p.Signature)
	hasBlock := p.Block != nil
	if hasBlock {
		w.WriteUint8(1)
		MarshalBlock(w, p.Block)
	} else {
		w.WriteUint8(0)
	}
}

// UnmarshalProposal reads a Proposal written by MarshalProposal.
func UnmarshalProposal(r *wire.Reader) (*types.Proposal, error) {
	height, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	round, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	lockedRound, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	sig, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	hasBlock, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	p := &types.Proposal{
		Height:      types.Height(height),
		Round:       int32(round),
		LockedRound: int32(lockedRound),
		Signature:   sig,
	}
	if hasBlock == 1 {
		block, err := UnmarshalBlock(r)
		if err != nil {
			return nil, err
		}
		p.Block = block
	}
	return p, nil
}

// MarshalBlock writes b's wire encoding to w: header, transactions, the
// commit it carries for its parent, and its next validator set.
func MarshalBlock(w *wire.Writer, b *types.Block) {
	MarshalBlockHeader(w, &b.Header)
	MarshalBlockBody(w, &b.Body)
}

// UnmarshalBlock reads a Block written by MarshalBlock.
func UnmarshalBlock(r *wire.Reader) (*types.Block, error) {
	header, err := UnmarshalBlockHeader(r)
	if err != nil {
		return nil, err
	}
	body, err := UnmarshalBlockBody(r)
	if err != nil {
		return nil, err
	}
	return &types.Block{Header: *header, Body: *body}, nil
}

// MarshalBlockBody writes b's wire encoding to w: its transactions, the
// commit it carries for its parent, and its next validator set. Used to
// store a block's header and body under separate keys.
func MarshalBlockBody(w *wire.Writer, b *types.BlockBody) {
	MarshalTransactionList(w, b.Transactions)
	MarshalCommit(w, b.LastBlockConsensus)
	hasNVS := b.NextValidatorSet != nil
	if hasNVS {
		w.WriteUint8(1)
		MarshalValidatorSet(w, b.NextValidatorSet)
	} else {
		w.WriteUint8(0)
	}
}

// UnmarshalBlockBody reads a BlockBody written by MarshalBlockBody.
func UnmarshalBlockBody(r *wire.Reader) (*types.BlockBody, error) {
	txs, err := UnmarshalTransactionList(r)
	if err != nil {
		return nil, err
	}
	commit, err := UnmarshalCommit(r)
	if err != nil {
		return nil, err
	}
	hasNVS, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	var nvs *types.ValidatorSet
	if hasNVS == 1 {
		nvs, err = UnmarshalValidatorSet(r)
		if err != nil {
			return nil, err
		}
	}
	return &types.BlockBody{
		Transactions:       txs,
		LastBlockConsensus: commit,
		NextValidatorSet:   nvs,
	}, nil
}

// MarshalBlockHeader writes h's wire encoding to w, in the same field
// order as its canonical hashing bytes.
func MarshalBlockHeader(w *wire.Writer, h *types.BlockHeader) {
	w.WriteUint64(uint64(h.Height))
	w.WriteUint64(uint64(h.Timestamp.UnixNano()))
	w.WriteBytes(h.LastBlockHash)
	w.WriteBytes(h.TransactionRoot)
	w.WriteBytes(h.LastBlockConsensusRoot)
	w.WriteBytes(h.NextValidatorSetRoot)
	w.WriteBytes(h.AppStateHash)
}

// UnmarshalBlockHeader reads a BlockHeader written by MarshalBlockHeader.
func UnmarshalBlockHeader(r *wire.Reader) (*types.BlockHeader, error) {
	height, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	nanos, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	lastBlockHash, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	txRoot, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	lbcRoot, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	nvsRoot, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	appHash, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &types.BlockHeader{
		Height:                 types.Height(height),
		Timestamp:              time.Unix(0, int64(nanos)).UTC(),
		LastBlockHash:          lastBlockHash,
		TransactionRoot:        txRoot,
		LastBlockConsensusRoot: lbcRoot,
		NextValidatorSetRoot:   nvsRoot,
		AppStateHash:           appHash,
	}, nil
}

// MarshalTransaction writes tx's wire encoding to w. Used by the mempool to
// turn a submitted transaction into the opaque bytes it pools, independent
// of the fixed-count encoding MarshalTransactionList uses inside a block.
func MarshalTransaction(w *wire.Writer, tx *types.Transaction) {
	w.WriteUint64(tx.Nonce)
	w.WriteBytes(tx.Payload)
	w.WriteBytes(tx.Signature)
}

// UnmarshalTransaction reads a Transaction written by MarshalTransaction.
func UnmarshalTransaction(r *wire.Reader) (*types.Transaction, error) {
	nonce, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	payload, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	sig, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	tx := types.NewTransaction(nonce, payload)
	tx.Signature = sig
	return tx, nil
}

// MarshalTransactionList writes txs' wire encoding to w.
func MarshalTransactionList(w *wire.Writer, txs types.TransactionList) {
	w.WriteUint32(uint32(len(txs)))
	for _, tx := range txs {
		w.WriteUint64(tx.Nonce)
		w.WriteBytes(tx.Payload)
		w.WriteBytes(tx.Signature)
	}
}

// UnmarshalTransactionList reads a TransactionList written by
// MarshalTransactionList.
func UnmarshalTransactionList(r *wire.Reader) (types.TransactionList, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make(types.TransactionList, n)
	for i := range out {
		nonce, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		payload, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		sig, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		tx := types.NewTransaction(nonce, payload)
		tx.Signature = sig
		out[i] = tx
	}
	return out, nil
}

// MarshalCommit writes c's wire encoding to w. A nil commit encodes as a
// single absence byte; the genesis block's vacuous commit is non-nil and
// encodes in full.
func MarshalCommit(w *wire.Writer, c *types.Commit) {
	if c == nil {
		w.WriteUint8(0)
		return
	}
	w.WriteUint8(1)
	w.WriteUint64(uint64(c.Height))
	w.WriteUint32(uint32(c.Round))
	w.WriteBytes(c.BlockHash)
	w.WriteUint32(uint32(len(c.Signatures)))
	for _, sig := range c.Signatures {
		w.WriteUint16(sig.ValidatorIndex)
		w.WriteBytes(sig.Signature)
	}
}

// UnmarshalCommit reads a Commit written by MarshalCommit.
func UnmarshalCommit(r *wire.Reader) (*types.Commit, error) {
	present, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	height, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	round, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	blockHash, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	sigs := make([]types.CommitSig, n)
	for i := range sigs {
		idx, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		sig, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		sigs[i] = types.CommitSig{ValidatorIndex: idx, Signature: sig}
	}
	return &types.Commit{
		Height:     types.Height(height),
		Round:      int32(round),
		BlockHash:  blockHash,
		Signatures: sigs,
	}, nil
}

// MarshalValidatorSet writes vs's wire encoding to w, in index order.
func MarshalValidatorSet(w *wire.Writer, vs *types.ValidatorSet) {
	validators := vs.Validators()
	w.WriteUint32(uint32(len(validators)))
	for _, v := range validators {
		w.WriteUint16(v.Index)
		w.WriteBytes(v.Address.Bytes())
		w.WriteBytes(v.PublicKey)
		w.WriteUint64(uint64(v.VotingPower))
		w.WriteUint64(uint64(v.ProposerPriority))
	}
}

// UnmarshalValidatorSet reads a ValidatorSet written by
// MarshalValidatorSet. The stored index is discarded; NewValidatorSet
// reassigns indices deterministically by address.
func UnmarshalValidatorSet(r *wire.Reader) (*types.ValidatorSet, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	validators := make([]*types.Validator, n)
	for i := range validators {
		if _, err := r.ReadUint16(); err != nil {
			return nil, err
		}
		addr, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		pub, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		power, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		priority, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		validators[i] = &types.Validator{
			Address:          types.Address(addr),
			PublicKey:        ed25519.PublicKey(pub),
			VotingPower:      int64(power),
			ProposerPriority: int64(priority),
		}
	}
	if len(validators) == 0 {
		return nil, nil
	}
	return types.NewValidatorSet(validators)
}
