package handlers

import (
	"testing"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/forgebound/ledgercore/codec"
	"github.com/forgebound/ledgercore/p2p"
	"github.com/forgebound/ledgercore/types"
	"github.com/forgebound/ledgercore/wire"
)

func newConsensusTestNetwork(t *testing.T) *p2p.Network {
	t.Helper()
	h, err := libp2p.New(libp2p.NoListenAddrs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	n := p2p.NewNetwork(h)
	require.NoError(t, n.RegisterBuiltinStreams())
	return n
}

func TestNewConsensusRelay(t *testing.T) {
	net := newConsensusTestNetwork(t)
	relay := NewConsensusRelay(net)
	require.NotNil(t, relay)
}

func TestConsensusRelay_RegisterStream(t *testing.T) {
	net := newConsensusTestNetwork(t)
	relay := NewConsensusRelay(net)

	require.NoError(t, relay.RegisterStream())
	require.True(t, net.HasStream(p2p.StreamConsensus))
}

func TestConsensusRelay_HandleEmptyMessage(t *testing.T) {
	net := newConsensusTestNetwork(t)
	relay := NewConsensusRelay(net)

	resp, err := relay.handle(peer.ID("peer1"), nil)
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestConsensusRelay_HandleVoteWithNoEngine(t *testing.T) {
	net := newConsensusTestNetwork(t)
	relay := NewConsensusRelay(net)

	vote := &types.Vote{
		Type:           types.VoteTypePrevote,
		Height:         5,
		Round:          0,
		ValidatorIndex: 1,
		BlockHash:      make(types.Hash, types.HashSize),
	}
	w := wire.GetWriter()
	w.WriteUint8(uint8(voteTypeID))
	codec.MarshalVote(w, vote)
	data := append([]byte{}, w.Bytes()...)
	wire.PutWriter(w)

	resp, err := relay.handle(peer.ID("peer1"), data)
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestConsensusRelay_HandleUnknownMessageType(t *testing.T) {
	net := newConsensusTestNetwork(t)
	relay := NewConsensusRelay(net)

	_, err := relay.handle(peer.ID("peer1"), []byte{255})
	require.Error(t, err)
}

func TestConsensusRelay_BroadcastVoteNoPeers(t *testing.T) {
	net := newConsensusTestNetwork(t)
	relay := NewConsensusRelay(net)

	vote := &types.Vote{
		Type:      types.VoteTypePrecommit,
		Height:    1,
		BlockHash: make(types.Hash, types.HashSize),
	}
	relay.BroadcastVote(vote)
}
