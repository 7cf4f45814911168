// Package handlers implements the Responder: the set of request/response
// and gossip handlers a node attaches to its p2p streams, translating
// between wire frames and the blockstore, mempool and consensus engine.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/forgebound/ledgercore/blockstore"
	"github.com/forgebound/ledgercore/p2p"
	"github.com/forgebound/ledgercore/types"
	"github.com/forgebound/ledgercore/wire"
)

// helloTypeID and helloAckTypeID tag the two messages exchanged on the
// handshake stream.
const (
	helloTypeID    wire.TypeID = 1
	helloAckTypeID wire.TypeID = 2
)

// hello carries the identity every peer must prove compatibility against
// before it is let into the registry: the same chain, the same genesis,
// and a protocol version this node can speak.
type hello struct {
	ChainID         string
	ProtocolVersion int32
	GenesisHash     types.Hash
	Height          types.Height
}

func (h *hello) TypeID() wire.TypeID { return helloTypeID }

func (h *hello) MarshalWire(w *wire.Writer) {
	w.WriteBytes([]byte(h.ChainID))
	w.WriteUint32(uint32(h.ProtocolVersion))
	w.WriteBytes(h.GenesisHash)
	w.WriteUint64(uint64(h.Height))
}

func (h *hello) UnmarshalWire(r *wire.Reader) error {
	chainID, err := r.ReadBytes()
	if err != nil {
		return err
	}
	version, err := r.ReadUint32()
	if err != nil {
		return err
	}
	genesisHash, err := r.ReadBytes()
	if err != nil {
		return err
	}
	height, err := r.ReadUint64()
	if err != nil {
		return err
	}
	h.ChainID = string(chainID)
	h.ProtocolVersion = int32(version)
	h.GenesisHash = genesisHash
	h.Height = types.Height(height)
	return nil
}

// helloAck is the responder's answer: its own identity, plus whether it
// accepted the peer.
type helloAck struct {
	hello
	Accepted bool
	Reason   string
}

func (a *helloAck) TypeID() wire.TypeID { return helloAckTypeID }

func (a *helloAck) MarshalWire(w *wire.Writer) {
	a.hello.MarshalWire(w)
	if a.Accepted {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
	w.WriteBytes([]byte(a.Reason))
}

func (a *helloAck) UnmarshalWire(r *wire.Reader) error {
	if err := a.hello.UnmarshalWire(r); err != nil {
		return err
	}
	accepted, err := r.ReadUint8()
	if err != nil {
		return err
	}
	reason, err := r.ReadBytes()
	if err != nil {
		return err
	}
	a.Accepted = accepted == 1
	a.Reason = string(reason)
	return nil
}

// RejectedError is returned by Handshaker.Greet when the remote peer's
// helloAck declined the connection.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("handshake rejected: %s", e.Reason)
}

// Handshaker runs the application-level handshake every newly connected
// peer must pass before the node treats it as a citizen of the network:
// libp2p's own transport security already authenticates the connection,
// this checks that the two ends agree on which chain they're running.
type Handshaker struct {
	network     *p2p.Network
	chainID     string
	protocol    int32
	store       blockstore.BlockStore
	banDuration time.Duration
}

// NewHandshaker builds a Handshaker that rejects peers on a foreign chain
// or with an unrecognized genesis, temp-banning them for banDuration.
func NewHandshaker(network *p2p.Network, chainID string, protocolVersion int32, store blockstore.BlockStore, banDuration time.Duration) *Handshaker {
	return &Handshaker{
		network:     network,
		chainID:     chainID,
		protocol:    protocolVersion,
		store:       store,
		banDuration: banDuration,
	}
}

// RegisterStream installs the handshake handler on the network.
func (h *Handshaker) RegisterStream() error {
	return h.network.RegisterStream(p2p.StreamConfig{
		Name:           p2p.StreamHandshake,
		Encrypted:      false,
		Owner:          "handshake",
		RateLimit:      10,
		MaxMessageSize: 1024,
	}, h.handle)
}

// Greet opens a handshake stream to peerID, offers this node's identity,
// and returns an error (possibly a *RejectedError) if the peer declines or
// the two chains don't match.
func (h *Handshaker) Greet(ctx context.Context, peerID peer.ID) error {
	mine := h.localHello()
	resp, err := h.network.Request(ctx, peerID, p2p.StreamHandshake, wire.Encode(&mine))
	if err != nil {
		return fmt.Errorf("handshake: requesting from %s: %w", peerID, err)
	}
	_, msg, err := wire.Decode(resp, map[wire.TypeID]func() wire.Unmarshaler{
		helloAckTypeID: func() wire.Unmarshaler { return &helloAck{} },
	})
	if err != nil {
		return fmt.Errorf("handshake: decoding response from %s: %w", peerID, err)
	}
	ack := msg.(*helloAck)
	if !ack.Accepted {
		_ = h.network.TempBanPeer(peerID, h.banDuration, ack.Reason)
		return &RejectedError{Reason: ack.Reason}
	}
	if err := h.verify(ack.hello); err != nil {
		_ = h.network.TempBanPeer(peerID, h.banDuration, err.Error())
		return err
	}
	return nil
}

func (h *Handshaker) handle(peerID peer.ID, data []byte) ([]byte, error) {
	_, msg, err := wire.Decode(data, map[wire.TypeID]func() wire.Unmarshaler{
		helloTypeID: func() wire.Unmarshaler { return &hello{} },
	})
	if err != nil {
		return nil, fmt.Errorf("handshake: decoding hello from %s: %w", peerID, err)
	}
	theirs := msg.(*hello)

	ack := &helloAck{hello: h.localHello()}
	if err := h.verify(*theirs); err != nil {
		ack.Accepted = false
		ack.Reason = err.Error()
		_ = h.network.TempBanPeer(peerID, h.banDuration, ack.Reason)
	} else {
		ack.Accepted = true
	}
	return wire.Encode(ack), nil
}

func (h *Handshaker) verify(theirs hello) error {
	if theirs.ChainID != h.chainID {
		return fmt.Errorf("handshake: chain id mismatch: got %q, want %q", theirs.ChainID, h.chainID)
	}
	if theirs.ProtocolVersion != h.protocol {
		return fmt.Errorf("handshake: protocol version mismatch: got %d, want %d", theirs.ProtocolVersion, h.protocol)
	}
	genesisHash, ok := h.store.GenesisHash()
	if ok && !theirs.GenesisHash.Equal(genesisHash) {
		return fmt.Errorf("handshake: genesis hash mismatch")
	}
	return nil
}

func (h *Handshaker) localHello() hello {
	genesisHash, _ := h.store.GenesisHash()
	return hello{
		ChainID:         h.chainID,
		ProtocolVersion: h.protocol,
		GenesisHash:     genesisHash,
		Height:          h.store.Height(),
	}
}
