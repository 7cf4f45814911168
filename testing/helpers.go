// Package testing provides test utilities for ledgercore integration tests.
package testing

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/forgebound/ledgercore/config"
	"github.com/forgebound/ledgercore/node"
	"github.com/forgebound/ledgercore/types"
)

// TestNode wraps a ledgercore node with test utilities: ephemeral ports, a
// temp data directory, and helpers for waiting on connection establishment.
type TestNode struct {
	node    *node.Node
	dataDir string

	establishedNotify   map[peer.ID]chan struct{}
	establishedNotifyMu sync.Mutex
}

// TestNodeConfig holds configuration options for creating a test node.
type TestNodeConfig struct {
	// ChainID is the chain identifier (default: "test-chain")
	ChainID string

	// ProtocolVersion is the protocol version (default: 1)
	ProtocolVersion int32

	// Role is the node role (default: types.RoleFull)
	Role types.NodeRole

	// Seeds are seed node addresses to connect to
	Seeds []string
}

// DefaultTestNodeConfig returns a TestNodeConfig with default values.
func DefaultTestNodeConfig() *TestNodeConfig {
	return &TestNodeConfig{
		ChainID:         "test-chain",
		ProtocolVersion: 1,
		Role:            types.RoleFull,
		Seeds:           nil,
	}
}

// NewTestNode creates a new test node with random keys and ephemeral ports.
// The node is not started until Start() is called.
// Call Cleanup() when done to remove temporary files.
func NewTestNode(tc *TestNodeConfig) (*TestNode, error) {
	if tc == nil {
		tc = DefaultTestNodeConfig()
	}

	dataDir, err := os.MkdirTemp("", "ledgercore-test-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		os.RemoveAll(dataDir)
		return nil, fmt.Errorf("generating key: %w", err)
	}

	keyPath := filepath.Join(dataDir, "node.key")
	if writeErr := os.WriteFile(keyPath, priv, 0600); writeErr != nil {
		os.RemoveAll(dataDir)
		return nil, fmt.Errorf("writing key file: %w", writeErr)
	}

	cfg := config.DefaultConfig()
	cfg.Node.ChainID = tc.ChainID
	cfg.Node.ProtocolVersion = tc.ProtocolVersion
	cfg.Node.PrivateKeyPath = keyPath
	cfg.Node.GenesisPath = filepath.Join(dataDir, "genesis.json")
	cfg.Role = tc.Role
	cfg.Network.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	cfg.Network.AddressBookPath = filepath.Join(dataDir, "addrbook.json")
	cfg.Network.HandshakeTimeout = config.Duration(30 * time.Second)
	cfg.BlockStore.Path = filepath.Join(dataDir, "blocks")
	cfg.StateStore.Path = filepath.Join(dataDir, "state")
	cfg.PEX.Enabled = true
	cfg.PEX.RequestInterval = config.Duration(5 * time.Second)
	cfg.Housekeeping.LatencyProbeInterval = config.Duration(10 * time.Second)

	if len(tc.Seeds) > 0 {
		cfg.Network.Seeds.Addrs = tc.Seeds
	}

	tn := &TestNode{
		dataDir:           dataDir,
		establishedNotify: make(map[peer.ID]chan struct{}),
	}

	n, err := node.NewNode(cfg, node.WithCallbacks(&types.NodeCallbacks{
		OnPeerHandshaked: func(peerID peer.ID, _ *types.PeerInfo) {
			tn.notifyEstablished(peerID)
		},
	}))
	if err != nil {
		os.RemoveAll(dataDir)
		return nil, fmt.Errorf("creating node: %w", err)
	}
	tn.node = n

	return tn, nil
}

// Node returns the underlying node.
func (tn *TestNode) Node() *node.Node {
	return tn.node
}

// Start starts the test node and all its components.
func (tn *TestNode) Start() error {
	return tn.node.Start()
}

// Stop stops the test node and all its components.
func (tn *TestNode) Stop() error {
	return tn.node.Stop()
}

// Cleanup stops the node and removes temporary files.
func (tn *TestNode) Cleanup() error {
	if tn.node.IsRunning() {
		if err := tn.Stop(); err != nil {
			return err
		}
	}
	return os.RemoveAll(tn.dataDir)
}

// IsRunning returns whether the node is running.
func (tn *TestNode) IsRunning() bool {
	return tn.node.IsRunning()
}

// PeerID returns the node's peer ID.
func (tn *TestNode) PeerID() peer.ID {
	return tn.node.PeerID()
}

// NodeID returns the node's hex-encoded public key ID.
func (tn *TestNode) NodeID() string {
	return tn.node.NodeID()
}

// Multiaddr returns the node's listen multiaddr with peer ID.
func (tn *TestNode) Multiaddr() (string, error) {
	addrs := tn.node.Network().Host().Addrs()
	if len(addrs) == 0 {
		return "", fmt.Errorf("no listen addresses")
	}
	return fmt.Sprintf("%s/p2p/%s", addrs[0].String(), tn.PeerID().String()), nil
}

// ConnectTo connects this node to another test node.
func (tn *TestNode) ConnectTo(other *TestNode) error {
	addr, err := other.Multiaddr()
	if err != nil {
		return err
	}
	return tn.node.Network().ConnectMultiaddr(context.Background(), addr)
}

// RegisterForEstablished registers to be notified when the handshake with a
// peer completes. This should be called BEFORE initiating the connection to
// avoid missing the event. Returns a channel closed once the handshake with
// peerID has been accepted.
func (tn *TestNode) RegisterForEstablished(peerID peer.ID) <-chan struct{} {
	tn.establishedNotifyMu.Lock()
	defer tn.establishedNotifyMu.Unlock()

	ch := make(chan struct{})
	tn.establishedNotify[peerID] = ch
	return ch
}

// WaitForEstablished waits for a pre-registered channel to signal handshake
// completion. Use RegisterForEstablished to get the channel before connecting.
func (tn *TestNode) WaitForEstablished(ch <-chan struct{}, timeout time.Duration) error {
	select {
	case <-ch:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for connection")
	}
}

// UnregisterForEstablished removes the notification channel for a peer.
func (tn *TestNode) UnregisterForEstablished(peerID peer.ID) {
	tn.establishedNotifyMu.Lock()
	defer tn.establishedNotifyMu.Unlock()
	delete(tn.establishedNotify, peerID)
}

// ConnectAndWait connects to a peer and waits for the handshake to complete.
// This properly registers for the established notification before connecting
// to avoid races.
func (tn *TestNode) ConnectAndWait(other *TestNode, timeout time.Duration) error {
	ch := tn.RegisterForEstablished(other.PeerID())

	if err := tn.ConnectTo(other); err != nil {
		tn.UnregisterForEstablished(other.PeerID())
		return err
	}

	return tn.WaitForEstablished(ch, timeout)
}

// notifyEstablished notifies any waiters that a peer's handshake completed.
func (tn *TestNode) notifyEstablished(peerID peer.ID) {
	tn.establishedNotifyMu.Lock()
	defer tn.establishedNotifyMu.Unlock()

	if ch, ok := tn.establishedNotify[peerID]; ok {
		close(ch)
		delete(tn.establishedNotify, peerID)
	}
}

// WaitForPeerCount waits for the node to have at least the specified number of peers.
func (tn *TestNode) WaitForPeerCount(count int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if tn.node.PeerCount() >= count {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for %d peers (have %d)", count, tn.node.PeerCount())
}

// MockApplication is a test application that tracks received events.
type MockApplication struct {
	mu                sync.Mutex
	CheckedTxs        [][]byte
	DeliveredTxs      [][]byte
	BlocksBegun       []int64
	BlocksEnded       []int64
	Commits           int
	ConsensusMessages []struct {
		PeerID peer.ID
		Data   []byte
	}
}

// NewMockApplication creates a new mock application.
func NewMockApplication() *MockApplication {
	return &MockApplication{}
}

// CheckTx records a transaction check.
func (m *MockApplication) CheckTx(tx []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CheckedTxs = append(m.CheckedTxs, tx)
	return nil
}

// BeginBlock records a block beginning.
func (m *MockApplication) BeginBlock(height int64, hash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BlocksBegun = append(m.BlocksBegun, height)
	return nil
}

// DeliverTx records a transaction delivery.
func (m *MockApplication) DeliverTx(tx []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeliveredTxs = append(m.DeliveredTxs, tx)
	return nil
}

// EndBlock records a block end.
func (m *MockApplication) EndBlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BlocksEnded = append(m.BlocksEnded, int64(len(m.BlocksBegun)))
	return nil
}

// Commit records a commit.
func (m *MockApplication) Commit() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commits++
	return make([]byte, 32), nil
}

// Query returns nil.
func (m *MockApplication) Query(path string, data []byte) ([]byte, error) {
	return nil, nil
}

// HandleConsensusMessage records a consensus message.
func (m *MockApplication) HandleConsensusMessage(peerID peer.ID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConsensusMessages = append(m.ConsensusMessages, struct {
		PeerID peer.ID
		Data   []byte
	}{peerID, data})
	return nil
}

// TxCount returns the number of checked transactions.
func (m *MockApplication) TxCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CheckedTxs)
}

// ConsensusMessageCount returns the number of consensus messages received.
func (m *MockApplication) ConsensusMessageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ConsensusMessages)
}
