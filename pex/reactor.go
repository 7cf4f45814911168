package pex

import (
	"context"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/forgebound/ledgercore/p2p"
	"github.com/forgebound/ledgercore/wire"
)

const (
	addressRequestTypeID  wire.TypeID = 50
	addressResponseTypeID wire.TypeID = 51
)

// addressInfo is one peer's advertised address, as carried over the wire.
type addressInfo struct {
	Multiaddr string
	NodeID    string
	LastSeen  int64
	Latency   int32
}

type addressRequestMsg struct {
	LastSeen int64
}

func (m *addressRequestMsg) TypeID() wire.TypeID { return addressRequestTypeID }

func (m *addressRequestMsg) MarshalWire(w *wire.Writer) { w.WriteUint64(uint64(m.LastSeen)) }

func (m *addressRequestMsg) UnmarshalWire(r *wire.Reader) error {
	v, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.LastSeen = int64(v)
	return nil
}

type addressResponseMsg struct {
	Peers []addressInfo
}

func (m *addressResponseMsg) TypeID() wire.TypeID { return addressResponseTypeID }

func (m *addressResponseMsg) MarshalWire(w *wire.Writer) {
	w.WriteUint32(uint32(len(m.Peers)))
	for _, p := range m.Peers {
		w.WriteBytes([]byte(p.Multiaddr))
		w.WriteBytes([]byte(p.NodeID))
		w.WriteUint64(uint64(p.LastSeen))
		w.WriteUint32(uint32(p.Latency))
	}
}

func (m *addressResponseMsg) UnmarshalWire(r *wire.Reader) error {
	count, err := r.ReadUint32()
	if err != nil {
		return err
	}
	peers := make([]addressInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		multiaddr, err := r.ReadBytes()
		if err != nil {
			return err
		}
		nodeID, err := r.ReadBytes()
		if err != nil {
			return err
		}
		lastSeen, err := r.ReadUint64()
		if err != nil {
			return err
		}
		latency, err := r.ReadUint32()
		if err != nil {
			return err
		}
		peers = append(peers, addressInfo{
			Multiaddr: string(multiaddr),
			NodeID:    string(nodeID),
			LastSeen:  int64(lastSeen),
			Latency:   int32(latency),
		})
	}
	m.Peers = peers
	return nil
}

var pexDecodeFactory = map[wire.TypeID]func() wire.Unmarshaler{
	addressRequestTypeID:  func() wire.Unmarshaler { return &addressRequestMsg{} },
	addressResponseTypeID: func() wire.Unmarshaler { return &addressResponseMsg{} },
}

// Reactor trades known peer addresses with connected peers and dials out
// to fill unused outbound slots, backed by a persisted AddressBook.
type Reactor struct {
	enabled         bool
	requestInterval time.Duration
	maxAddresses    int

	addressBook *AddressBook
	network     *p2p.Network

	maxOutbound int

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewReactor creates a new PEX reactor.
func NewReactor(enabled bool, requestInterval time.Duration, maxAddresses int, addressBook *AddressBook, network *p2p.Network, maxOutbound int) *Reactor {
	return &Reactor{
		enabled:         enabled,
		requestInterval: requestInterval,
		maxAddresses:    maxAddresses,
		addressBook:     addressBook,
		network:         network,
		maxOutbound:     maxOutbound,
	}
}

// RegisterStream installs the address-exchange request handler.
func (r *Reactor) RegisterStream() error {
	return r.network.RegisterStream(p2p.StreamConfig{
		Name:           p2p.StreamPEX,
		Encrypted:      true,
		Owner:          "pex",
		RateLimit:      10,
		MaxMessageSize: 1 << 20,
	}, r.handle)
}

func (r *Reactor) handle(peerID peer.ID, data []byte) ([]byte, error) {
	_, msg, err := wire.Decode(data, pexDecodeFactory)
	if err != nil {
		_ = r.network.AddPenalty(peerID, p2p.PenaltyInvalidMessage, p2p.ReasonInvalidMessage, err.Error())
		return nil, nil
	}
	req, ok := msg.(*addressRequestMsg)
	if !ok {
		return nil, nil
	}

	entries := r.addressBook.GetPeersForExchange(req.LastSeen, r.maxAddresses)
	resp := &addressResponseMsg{}
	for _, entry := range entries {
		if entry.NodeID == peerID.String() {
			continue
		}
		resp.Peers = append(resp.Peers, addressInfo{
			Multiaddr: entry.Multiaddr,
			NodeID:    entry.NodeID,
			LastSeen:  entry.LastSeen,
			Latency:   entry.Latency,
		})
	}
	return wire.Encode(resp), nil
}

// Start begins the periodic address-request and outbound-dialing loops.
func (r *Reactor) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || !r.enabled {
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})

	r.wg.Add(2)
	go r.requestLoop()
	go r.connectionLoop()
	return nil
}

// Stop halts both loops and persists the address book.
func (r *Reactor) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
	return r.addressBook.Save()
}

// IsRunning reports whether the reactor's loops are active.
func (r *Reactor) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Reactor) requestLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.requestInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.requestFromConnectedPeers()
		}
	}
}

func (r *Reactor) requestFromConnectedPeers() {
	ctx, cancel := context.WithTimeout(context.Background(), r.requestInterval)
	defer cancel()
	for _, peerID := range r.network.ConnectedPeers() {
		_ = r.RequestAddresses(ctx, peerID)
	}
}

func (r *Reactor) connectionLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.requestInterval * 2)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.ensureOutboundConnections()
		}
	}
}

func (r *Reactor) ensureOutboundConnections() {
	outbound := 0
	for _, p := range r.network.PeerManager().AllPeers() {
		if p.IsOutbound {
			outbound++
		}
	}
	needed := r.maxOutbound - outbound
	if needed <= 0 {
		return
	}

	connected := make(map[peer.ID]bool)
	for _, peerID := range r.network.ConnectedPeers() {
		connected[peerID] = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.requestInterval)
	defer cancel()

	candidates := r.addressBook.GetPeersToConnect(connected, needed)
	for _, entry := range candidates {
		peerID, err := peer.Decode(entry.NodeID)
		if err != nil {
			continue
		}
		r.addressBook.RecordAttempt(peerID)
		if err := r.network.ConnectMultiaddr(ctx, entry.Multiaddr); err != nil {
			continue
		}
		r.addressBook.ResetAttempts(peerID)
	}
}

// RequestAddresses asks peerID for its known peer addresses and folds the
// response into the address book.
func (r *Reactor) RequestAddresses(ctx context.Context, peerID peer.ID) error {
	lastSeen := time.Now().Add(-24 * time.Hour).Unix()
	resp, err := r.network.Request(ctx, peerID, p2p.StreamPEX, wire.Encode(&addressRequestMsg{LastSeen: lastSeen}))
	if err != nil {
		return err
	}
	_, msg, err := wire.Decode(resp, pexDecodeFactory)
	if err != nil {
		return err
	}
	addrs, ok := msg.(*addressResponseMsg)
	if !ok {
		return nil
	}
	for _, info := range addrs.Peers {
		if info.NodeID == "" || info.Multiaddr == "" {
			continue
		}
		newPeerID, err := peer.Decode(info.NodeID)
		if err != nil {
			continue
		}
		r.addressBook.AddPeer(newPeerID, info.Multiaddr, info.NodeID, info.Latency)
	}
	return nil
}

// OnPeerConnected records a freshly connected peer in the address book.
func (r *Reactor) OnPeerConnected(peerID peer.ID, multiaddr string) {
	r.addressBook.UpdateLastSeen(peerID)
	r.addressBook.ResetAttempts(peerID)
	if !r.addressBook.HasPeer(peerID) {
		r.addressBook.AddPeer(peerID, multiaddr, peerID.String(), 0)
	}
}

// OnPeerDisconnected records a peer's last-seen time on disconnect.
func (r *Reactor) OnPeerDisconnected(peerID peer.ID) {
	r.addressBook.UpdateLastSeen(peerID)
}

// GetAddressBook returns the address book backing this reactor.
func (r *Reactor) GetAddressBook() *AddressBook {
	return r.addressBook
}
