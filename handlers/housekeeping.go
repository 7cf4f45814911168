package handlers

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/forgebound/ledgercore/p2p"
)

// HousekeepingResponder answers latency probes from peers: a ping
// carries the sender's timestamp, and is echoed straight back so the
// sender can compute round-trip time without needing peers' clocks to
// agree.
type HousekeepingResponder struct {
	network *p2p.Network
}

// NewHousekeepingResponder builds a responder over network.
func NewHousekeepingResponder(network *p2p.Network) *HousekeepingResponder {
	return &HousekeepingResponder{network: network}
}

// RegisterStream installs the housekeeping echo handler on the network.
func (r *HousekeepingResponder) RegisterStream() error {
	return r.network.RegisterStream(p2p.StreamConfig{
		Name:           p2p.StreamHousekeeping,
		Encrypted:      false,
		Owner:          "housekeeping",
		RateLimit:      5,
		MaxMessageSize: 64,
	}, r.handle)
}

func (r *HousekeepingResponder) handle(_ peer.ID, data []byte) ([]byte, error) {
	return data, nil
}

// Ping measures round-trip latency to peerID by sending the current
// time and waiting for it to be echoed back.
func (r *HousekeepingResponder) Ping(ctx context.Context, peerID peer.ID) (time.Duration, error) {
	sent := time.Now()
	req := make([]byte, 8)
	binary.BigEndian.PutUint64(req, uint64(sent.UnixNano()))

	if _, err := r.network.Request(ctx, peerID, p2p.StreamHousekeeping, req); err != nil {
		return 0, err
	}
	r.network.PeerManager().UpdateLastSeen(peerID)
	return time.Since(sent), nil
}
