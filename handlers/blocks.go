package handlers

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/forgebound/ledgercore/blockstore"
	"github.com/forgebound/ledgercore/codec"
	"github.com/forgebound/ledgercore/p2p"
	"github.com/forgebound/ledgercore/types"
	"github.com/forgebound/ledgercore/wire"
)

// BlockValidator vets a block carried on the gossip path before it's
// written to the store, beyond the structural checks Block.Validate
// already does.
type BlockValidator func(block *types.Block) error

// BlocksResponder relays newly produced blocks across the peer set:
// it stores an inbound block if the store doesn't have it yet, then
// relays it to peers who haven't seen it, skipping the sender.
type BlocksResponder struct {
	store     blockstore.BlockStore
	network   *p2p.Network
	validator BlockValidator

	onBlock func(block *types.Block)
}

// NewBlocksResponder builds a responder storing blocks in store and
// relaying through network.
func NewBlocksResponder(store blockstore.BlockStore, network *p2p.Network) *BlocksResponder {
	return &BlocksResponder{store: store, network: network}
}

// SetValidator installs an additional admission check run before a
// gossiped block is stored.
func (r *BlocksResponder) SetValidator(v BlockValidator) { r.validator = v }

// SetOnBlock installs a callback invoked after a new block has been
// stored and relayed.
func (r *BlocksResponder) SetOnBlock(fn func(block *types.Block)) { r.onBlock = fn }

// RegisterStream installs the block gossip handler on the network.
func (r *BlocksResponder) RegisterStream() error {
	return r.network.RegisterStream(p2p.StreamConfig{
		Name:           p2p.StreamBlocks,
		Encrypted:      true,
		Owner:          "blocks",
		RateLimit:      100,
		MaxMessageSize: 20 << 20,
	}, r.handle)
}

func (r *BlocksResponder) handle(peerID peer.ID, data []byte) ([]byte, error) {
	reader := wire.NewReader(data)
	block, err := codec.UnmarshalBlock(reader)
	if err != nil {
		return nil, nil
	}

	if existing, err := r.store.BlockOf(block.Header.Height); err == nil && existing != nil {
		return nil, nil
	}

	if err := block.Validate(); err != nil {
		_ = r.network.AddPenalty(peerID, p2p.PenaltyInvalidBlock, p2p.ReasonInvalidBlock, err.Error())
		return nil, nil
	}
	if r.validator != nil {
		if err := r.validator(block); err != nil {
			_ = r.network.AddPenalty(peerID, p2p.PenaltyInvalidBlock, p2p.ReasonInvalidBlock, err.Error())
			return nil, nil
		}
	}

	if err := r.store.Put(block); err != nil {
		return nil, nil
	}

	if r.onBlock != nil {
		r.onBlock(block)
	}

	go r.relay(peerID, block)
	return nil, nil
}

// relay forwards block to every peer that hasn't already seen this
// height, skipping the peer it arrived from.
func (r *BlocksResponder) relay(from peer.ID, block *types.Block) {
	data, err := r.encode(block)
	if err != nil {
		return
	}
	ctx := context.Background()
	for _, pid := range r.network.PeerManager().PeersToSendBlock(int64(block.Header.Height)) {
		if pid == from {
			continue
		}
		if err := r.network.Send(ctx, pid, p2p.StreamBlocks, data); err != nil {
			continue
		}
		_ = r.network.PeerManager().MarkBlockSent(pid, int64(block.Header.Height))
	}
}

// Announce stores and broadcasts a locally produced block.
func (r *BlocksResponder) Announce(ctx context.Context, block *types.Block) error {
	if err := r.store.Put(block); err != nil {
		return err
	}
	data, err := r.encode(block)
	if err != nil {
		return err
	}
	r.network.BroadcastBlock(ctx, int64(block.Header.Height), data)
	return nil
}

func (r *BlocksResponder) encode(block *types.Block) ([]byte, error) {
	w := wire.GetWriter()
	defer wire.PutWriter(w)
	codec.MarshalBlock(w, block)
	out := make([]byte, len(w.Bytes()))
	copy(out, w.Bytes())
	if len(out) == 0 {
		return nil, fmt.Errorf("handlers: encoded empty block")
	}
	return out, nil
}
