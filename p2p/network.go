// Package p2p wires the node's libp2p host into named application streams:
// one libp2p protocol per logical channel (pex, mempool gossip, block sync,
// consensus, housekeeping), with per-peer bookkeeping, scoring and rate
// limiting layered on top.
package p2p

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
)

// Stream names identify the logical channels multiplexed over the host.
// Each maps to a distinct libp2p protocol ID.
const (
	StreamHandshake    = "handshake"
	StreamPEX          = "pex"
	StreamTransactions = "transactions"
	StreamBlockSync    = "blocksync"
	StreamStateSync    = "statesync"
	StreamBlocks       = "blocks"
	StreamConsensus    = "consensus"
	StreamHousekeeping = "housekeeping"
)

// protocolPrefix namespaces every stream's protocol ID so this node never
// speaks the same wire protocol as an unrelated libp2p application sharing
// the same process or bootstrap peers.
const protocolPrefix = "/ledgercore/"

// protocolVersion is the current protocol version, bumped whenever a
// stream's frame contents change incompatibly.
const protocolVersion = "1.0.0"

// AllStreams returns every application-registered stream name, excluding
// the handshake stream, which runs before a peer has been accepted into
// the registry and is dialed directly rather than through it.
func AllStreams() []string {
	return []string{
		StreamPEX,
		StreamTransactions,
		StreamBlockSync,
		StreamStateSync,
		StreamBlocks,
		StreamConsensus,
		StreamHousekeeping,
	}
}

func streamProtocol(name string) protocol.ID {
	return protocol.ID(protocolPrefix + name + "/" + protocolVersion)
}

// IncomingMessage is one frame received on a stream, handed off the libp2p
// stream-handler goroutine onto the Messages channel for the owning
// component to process on its own goroutine.
type IncomingMessage struct {
	PeerID     peer.ID
	StreamName string
	Data       []byte
}

// ConnectionEvent reports a peer transitioning between connected and
// disconnected.
type ConnectionEvent struct {
	PeerID    peer.ID
	Connected bool
}

// TempBanEntry records a temporary ban's expiry and the reason it was
// issued, for diagnostics and for CleanupExpiredTempBans to know what's
// stale.
type TempBanEntry struct {
	ExpiresAt time.Time
	Reason    string
}

// Network wraps a libp2p host.Host with the application's stream registry,
// per-peer state, scoring and rate limiting.
type Network struct {
	host host.Host

	registry    StreamRegistry
	dispatcher  *StreamDispatcher
	peerManager *PeerManager
	scorer      *PeerScorer
	rateLimiter *RateLimiter

	messages chan IncomingMessage
	events   chan ConnectionEvent

	mu       sync.RWMutex
	tempBans map[peer.ID]*TempBanEntry
	running  bool
}

// NewNetwork wraps h with a fresh, empty stream registry.
func NewNetwork(h host.Host) *Network {
	return NewNetworkWithRegistry(h, NewStreamRegistry())
}

// NewNetworkWithRegistry wraps h using a caller-supplied stream registry,
// so tests can pre-populate or inspect it.
func NewNetworkWithRegistry(h host.Host, registry StreamRegistry) *Network {
	n := &Network{
		host:        h,
		registry:    registry,
		peerManager: NewPeerManager(),
		messages:    make(chan IncomingMessage, 256),
		events:      make(chan ConnectionEvent, 64),
		tempBans:    make(map[peer.ID]*TempBanEntry),
	}
	n.scorer = NewPeerScorer(n.peerManager)
	n.rateLimiter = NewRateLimiter(RateLimiterConfig{Limits: DefaultRateLimits()})
	n.dispatcher = NewStreamDispatcher(n.registry, n.rateLimiter, n.messages)
	return n
}

// Start registers a libp2p stream handler for every stream currently in the
// registry and starts listening for connection notifications.
func (n *Network) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return fmt.Errorf("p2p: network already running")
	}

	for _, name := range n.registry.Names() {
		n.attachHandler(name)
	}

	n.host.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, conn network.Conn) {
			pid := conn.RemotePeer()
			n.peerManager.AddPeer(pid, conn.Stat().Direction == network.DirOutbound)
			n.emitEvent(ConnectionEvent{PeerID: pid, Connected: true})
		},
		DisconnectedF: func(_ network.Network, conn network.Conn) {
			pid := conn.RemotePeer()
			n.peerManager.RemovePeer(pid)
			n.rateLimiter.RemovePeer(pid)
			n.emitEvent(ConnectionEvent{PeerID: pid, Connected: false})
		},
	})

	n.running = true
	return nil
}

// Stop closes the underlying host, tearing down all connections and stream
// handlers with it.
func (n *Network) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return nil
	}
	n.running = false
	return n.host.Close()
}

// Name returns a human-readable identifier for logging.
func (n *Network) Name() string {
	return "p2p"
}

// IsRunning reports whether Start has been called without a matching Stop.
func (n *Network) IsRunning() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.running
}

// PeerID returns this node's libp2p identity.
func (n *Network) PeerID() peer.ID {
	return n.host.ID()
}

// Host returns the underlying libp2p host, for callers (peer exchange,
// diagnostics) that need direct access to the peerstore or its addresses.
func (n *Network) Host() host.Host {
	return n.host
}

// PublicKey extracts the raw Ed25519 public key backing PeerID, if the host
// identity was derived from one.
func (n *Network) PublicKey() ed25519.PublicKey {
	pub := n.host.Peerstore().PubKey(n.host.ID())
	if pub == nil {
		return nil
	}
	raw, err := pub.Raw()
	if err != nil {
		return nil
	}
	return ed25519.PublicKey(raw)
}

// PeerManager exposes per-peer bookkeeping.
func (n *Network) PeerManager() *PeerManager { return n.peerManager }

// Scorer exposes peer misbehavior scoring.
func (n *Network) Scorer() *PeerScorer { return n.scorer }

// Messages returns the channel of decoded frames received on any
// registered stream.
func (n *Network) Messages() <-chan IncomingMessage { return n.messages }

// Events returns the channel of peer connect/disconnect notifications.
func (n *Network) Events() <-chan ConnectionEvent { return n.events }

func (n *Network) emitEvent(ev ConnectionEvent) {
	select {
	case n.events <- ev:
	default:
	}
}

// Connect dials peerID if the host already knows an address for it (via
// the peerstore or a prior ConnectMultiaddr call).
func (n *Network) Connect(ctx context.Context, peerID peer.ID) error {
	return n.host.Connect(ctx, peer.AddrInfo{ID: peerID})
}

// ConnectMultiaddr dials the peer described by a full multiaddr, e.g.
// "/ip4/1.2.3.4/tcp/26656/p2p/<peerID>".
func (n *Network) ConnectMultiaddr(ctx context.Context, addrStr string) error {
	addr, err := ma.NewMultiaddr(addrStr)
	if err != nil {
		return fmt.Errorf("p2p: parsing multiaddr %q: %w", addrStr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("p2p: extracting peer info from %q: %w", addrStr, err)
	}
	return n.host.Connect(ctx, *info)
}

// Disconnect closes every connection to peerID.
func (n *Network) Disconnect(peerID peer.ID) error {
	return n.host.Network().ClosePeer(peerID)
}

// Send opens a fresh stream to peerID on streamName, writes one framed
// message, and closes the stream without waiting for a reply. Use Request
// for protocols that expect a response on the same stream.
func (n *Network) Send(ctx context.Context, peerID peer.ID, streamName string, data []byte) error {
	s, err := n.openStream(ctx, peerID, streamName)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := writeFrame(s, data); err != nil {
		s.Reset()
		return fmt.Errorf("p2p: writing %s frame to %s: %w", streamName, peerID, err)
	}
	return nil
}

// Request opens a fresh stream to peerID on streamName, writes one framed
// request, reads back exactly one framed response, and closes the stream.
func (n *Network) Request(ctx context.Context, peerID peer.ID, streamName string, data []byte) ([]byte, error) {
	s, err := n.openStream(ctx, peerID, streamName)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	if err := writeFrame(s, data); err != nil {
		s.Reset()
		return nil, fmt.Errorf("p2p: writing %s request to %s: %w", streamName, peerID, err)
	}
	cfg := n.registry.Get(streamName)
	maxSize := 0
	if cfg != nil {
		maxSize = cfg.MaxMessageSize
	}
	resp, err := readFrame(s, maxSize)
	if err != nil {
		s.Reset()
		return nil, fmt.Errorf("p2p: reading %s response from %s: %w", streamName, peerID, err)
	}
	return resp, nil
}

func (n *Network) openStream(ctx context.Context, peerID peer.ID, streamName string) (network.Stream, error) {
	if n.IsTempBanned(peerID) {
		return nil, fmt.Errorf("p2p: peer %s is temporarily banned", peerID)
	}
	s, err := n.host.NewStream(ctx, peerID, streamProtocol(streamName))
	if err != nil {
		return nil, fmt.Errorf("p2p: opening %s stream to %s: %w", streamName, peerID, err)
	}
	return s, nil
}

// Broadcast sends data on streamName to every currently connected peer,
// returning one error per peer that failed.
func (n *Network) Broadcast(ctx context.Context, streamName string, data []byte) []error {
	var errs []error
	for _, pid := range n.ConnectedPeers() {
		if err := n.Send(ctx, pid, streamName, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// BroadcastTx gossips a transaction to peers that haven't already seen it,
// per PeerManager's dedup bookkeeping.
func (n *Network) BroadcastTx(ctx context.Context, txHash []byte, data []byte) []error {
	var errs []error
	for _, pid := range n.peerManager.PeersToSendTx(txHash) {
		if err := n.Send(ctx, pid, StreamTransactions, data); err != nil {
			errs = append(errs, err)
			continue
		}
		n.peerManager.MarkTxSent(pid, txHash)
	}
	return errs
}

// BroadcastBlock gossips a block at height to peers that haven't already
// seen it.
func (n *Network) BroadcastBlock(ctx context.Context, height int64, data []byte) []error {
	var errs []error
	for _, pid := range n.peerManager.PeersToSendBlock(height) {
		if err := n.Send(ctx, pid, StreamBlocks, data); err != nil {
			errs = append(errs, err)
			continue
		}
		n.peerManager.MarkBlockSent(pid, height)
	}
	return errs
}

// BlacklistPeer disconnects peerID and bans it indefinitely.
func (n *Network) BlacklistPeer(peerID peer.ID) error {
	if err := n.Disconnect(peerID); err != nil {
		return err
	}
	return n.TempBanPeer(peerID, 100*365*24*time.Hour, "blacklisted")
}

// TempBanPeer disconnects peerID and refuses new streams from it for
// duration.
func (n *Network) TempBanPeer(peerID peer.ID, duration time.Duration, reason string) error {
	n.mu.Lock()
	n.tempBans[peerID] = &TempBanEntry{ExpiresAt: time.Now().Add(duration), Reason: reason}
	n.mu.Unlock()
	return n.Disconnect(peerID)
}

// IsTempBanned reports whether peerID is currently under a temporary ban.
func (n *Network) IsTempBanned(peerID peer.ID) bool {
	n.mu.RLock()
	entry, ok := n.tempBans[peerID]
	n.mu.RUnlock()
	if !ok {
		return false
	}
	if time.Now().After(entry.ExpiresAt) {
		n.mu.Lock()
		delete(n.tempBans, peerID)
		n.mu.Unlock()
		return false
	}
	return true
}

// GetTempBanReason returns the reason peerID was banned, or "" if it isn't.
func (n *Network) GetTempBanReason(peerID peer.ID) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if entry, ok := n.tempBans[peerID]; ok {
		return entry.Reason
	}
	return ""
}

// CleanupExpiredTempBans removes bans whose expiry has passed and returns
// how many were removed.
func (n *Network) CleanupExpiredTempBans() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	var removed int
	for pid, entry := range n.tempBans {
		if now.After(entry.ExpiresAt) {
			delete(n.tempBans, pid)
			removed++
		}
	}
	return removed
}

// AddPenalty records a misbehavior penalty against peerID and disconnects
// it if the scorer decides it has crossed the ban threshold.
func (n *Network) AddPenalty(peerID peer.ID, points int64, reason PenaltyReason, message string) error {
	n.scorer.AddPenalty(peerID, points, reason, message)
	if n.scorer.ShouldBan(peerID) {
		duration := n.scorer.GetBanDuration(peerID)
		n.scorer.RecordBan(peerID)
		return n.TempBanPeer(peerID, duration, message)
	}
	return nil
}

// PeerCount returns the number of currently tracked peers.
func (n *Network) PeerCount() int {
	return n.peerManager.PeerCount()
}

// StreamRegistry exposes the underlying stream registry.
func (n *Network) StreamRegistry() StreamRegistry { return n.registry }

// StreamDispatcherOf exposes the underlying stream dispatcher.
func (n *Network) StreamDispatcherOf() *StreamDispatcher { return n.dispatcher }

// RegisterStream registers a new stream and attaches its libp2p handler if
// the network is already running. A stream that is already registered (for
// example by RegisterBuiltinStreams) keeps its existing configuration and
// only has its handler set.
func (n *Network) RegisterStream(cfg StreamConfig, handler StreamHandler) error {
	if !n.registry.Has(cfg.Name) {
		if err := n.registry.Register(cfg); err != nil {
			return err
		}
	}
	if handler != nil {
		if err := n.registry.RegisterHandler(cfg.Name, handler); err != nil {
			return err
		}
	}
	n.mu.RLock()
	running := n.running
	n.mu.RUnlock()
	if running {
		n.attachHandler(cfg.Name)
	}
	return nil
}

// UnregisterStream removes a previously registered stream from the
// registry. A libp2p handler already attached for it stays in place:
// frames that still arrive on it reach the dispatcher, which forwards them
// to Messages because the stream no longer has a registered handler.
func (n *Network) UnregisterStream(name string) error {
	return n.registry.Unregister(name)
}

// SetStreamHandler attaches or replaces the handler for an already
// registered stream.
func (n *Network) SetStreamHandler(name string, handler StreamHandler) error {
	return n.registry.RegisterHandler(name, handler)
}

// GetStreamHandler returns the handler currently registered for name.
func (n *Network) GetStreamHandler(name string) StreamHandler {
	return n.registry.GetHandler(name)
}

// HasStream reports whether name is registered.
func (n *Network) HasStream(name string) bool {
	return n.registry.Has(name)
}

// GetStreamConfig returns the configuration registered for name.
func (n *Network) GetStreamConfig(name string) *StreamConfig {
	return n.registry.Get(name)
}

// RegisteredStreams lists every currently registered stream name.
func (n *Network) RegisteredStreams() []string {
	return n.registry.Names()
}

// RegisterBuiltinStreams registers the streams every node speaks
// regardless of role.
func (n *Network) RegisterBuiltinStreams() error {
	return RegisterBuiltinStreams(n.registry)
}

// UnregisterStreamsByOwner removes every stream owned by owner that has no
// active handler.
func (n *Network) UnregisterStreamsByOwner(owner string) int {
	return n.registry.UnregisterByOwner(owner)
}

// ConnectedPeers lists every peer with at least one open connection.
func (n *Network) ConnectedPeers() []peer.ID {
	conns := n.host.Network().Peers()
	out := make([]peer.ID, len(conns))
	copy(out, conns)
	return out
}

// attachHandler installs the libp2p stream handler for name, reading
// exactly one frame per inbound stream and handing it to the dispatcher.
func (n *Network) attachHandler(name string) {
	streamName := name
	n.host.SetStreamHandler(streamProtocol(streamName), func(s network.Stream) {
		defer s.Close()
		peerID := s.Conn().RemotePeer()
		if n.IsTempBanned(peerID) {
			s.Reset()
			return
		}
		cfg := n.registry.Get(streamName)
		maxSize := 0
		if cfg != nil {
			maxSize = cfg.MaxMessageSize
		}
		data, err := readFrame(s, maxSize)
		if err != nil {
			return
		}
		resp, err := n.dispatcher.Dispatch(peerID, streamName, data)
		if err != nil || resp == nil {
			return
		}
		if err := writeFrame(s, resp); err != nil {
			s.Reset()
		}
	})
}

// frameLengthPrefix is the byte width of the length prefix on every stream
// frame, matching the wire package's own big-endian length convention.
const frameLengthPrefix = 4

const defaultMaxFrameSize = 10 << 20

// writeFrame writes a 4-byte big-endian length prefix followed by data.
func writeFrame(w io.Writer, data []byte) error {
	var hdr [frameLengthPrefix]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readFrame reads one length-prefixed frame from r. maxSize of 0 falls
// back to defaultMaxFrameSize; a frame declaring a length above the limit
// is rejected without reading its body, so a hostile peer can't force an
// unbounded allocation.
func readFrame(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = defaultMaxFrameSize
	}
	br := bufio.NewReader(r)
	var hdr [frameLengthPrefix]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if int(n) > maxSize {
		return nil, fmt.Errorf("p2p: frame of %d bytes exceeds limit of %d", n, maxSize)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(br, data); err != nil {
		return nil, err
	}
	return data, nil
}
