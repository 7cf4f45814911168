package handlers

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/forgebound/ledgercore/codec"
	"github.com/forgebound/ledgercore/consensus"
	"github.com/forgebound/ledgercore/p2p"
	"github.com/forgebound/ledgercore/types"
	"github.com/forgebound/ledgercore/wire"
)

const (
	proposalTypeID wire.TypeID = 10
	voteTypeID     wire.TypeID = 11
)

// ConsensusRelay implements consensus.Broadcaster over the p2p network
// and turns inbound consensus-stream frames back into engine calls. It
// sits between the round-based state machine and the gossip layer; the
// engine never touches a peer.ID or a stream name.
type ConsensusRelay struct {
	network *p2p.Network
	engine  *consensus.Engine
}

// NewConsensusRelay builds a relay that gossips through network. Call
// SetEngine once the engine it feeds has been constructed; the two are
// built in sequence because the engine's Broadcaster and the relay's
// engine reference are circular.
func NewConsensusRelay(network *p2p.Network) *ConsensusRelay {
	return &ConsensusRelay{network: network}
}

// SetEngine wires the relay to deliver decoded proposals and votes into
// engine.
func (r *ConsensusRelay) SetEngine(engine *consensus.Engine) { r.engine = engine }

// RegisterStream installs the consensus gossip handler on the network.
func (r *ConsensusRelay) RegisterStream() error {
	return r.network.RegisterStream(p2p.StreamConfig{
		Name:           p2p.StreamConsensus,
		Encrypted:      true,
		Owner:          "consensus",
		RateLimit:      2000,
		MaxMessageSize: 4 << 20,
	}, r.handle)
}

func (r *ConsensusRelay) handle(peerID peer.ID, data []byte) ([]byte, error) {
	reader := wire.NewReader(data)
	typeID, err := reader.ReadUint8()
	if err != nil {
		return nil, nil
	}

	switch wire.TypeID(typeID) {
	case proposalTypeID:
		p, err := codec.UnmarshalProposal(reader)
		if err != nil {
			_ = r.network.AddPenalty(peerID, p2p.PenaltyInvalidMessage, p2p.ReasonInvalidMessage, err.Error())
			return nil, nil
		}
		if r.engine != nil {
			r.engine.HandleProposal(p)
		}
	case voteTypeID:
		v, err := codec.UnmarshalVote(reader)
		if err != nil {
			_ = r.network.AddPenalty(peerID, p2p.PenaltyInvalidMessage, p2p.ReasonInvalidMessage, err.Error())
			return nil, nil
		}
		if r.engine != nil {
			r.engine.HandleVote(v)
		}
	default:
		return nil, fmt.Errorf("handlers: unknown consensus message type %d", typeID)
	}
	return nil, nil
}

// BroadcastProposal implements consensus.Broadcaster.
func (r *ConsensusRelay) BroadcastProposal(p *types.Proposal) {
	w := wire.GetWriter()
	defer wire.PutWriter(w)
	w.WriteUint8(uint8(proposalTypeID))
	codec.MarshalProposal(w, p)
	r.network.Broadcast(context.Background(), p2p.StreamConsensus, copyBytes(w.Bytes()))
}

// BroadcastVote implements consensus.Broadcaster.
func (r *ConsensusRelay) BroadcastVote(v *types.Vote) {
	w := wire.GetWriter()
	defer wire.PutWriter(w)
	w.WriteUint8(uint8(voteTypeID))
	codec.MarshalVote(w, v)
	r.network.Broadcast(context.Background(), p2p.StreamConsensus, copyBytes(w.Bytes()))
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
