package node

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/forgebound/ledgercore/abi"
	"github.com/forgebound/ledgercore/blockstore"
	"github.com/forgebound/ledgercore/codec"
	"github.com/forgebound/ledgercore/config"
	"github.com/forgebound/ledgercore/consensus"
	"github.com/forgebound/ledgercore/executor"
	"github.com/forgebound/ledgercore/handlers"
	"github.com/forgebound/ledgercore/mempool"
	"github.com/forgebound/ledgercore/metrics"
	"github.com/forgebound/ledgercore/p2p"
	"github.com/forgebound/ledgercore/pex"
	bsync "github.com/forgebound/ledgercore/sync"
	"github.com/forgebound/ledgercore/types"
	"github.com/forgebound/ledgercore/wire"
)

// DefaultMetricsInterval is how often Node samples block height, mempool
// size, and sync progress into the configured Metrics collector.
const DefaultMetricsInterval = 5 * time.Second

// Component names, used by GetComponent and ComponentNames.
const (
	ComponentNetwork      = "network"
	ComponentHandshake    = "handshake-handler"
	ComponentPEX          = "pex-reactor"
	ComponentHousekeeping = "housekeeping-reactor"
	ComponentTransactions = "transactions-reactor"
	ComponentBlocks       = "block-reactor"
	ComponentConsensus    = "consensus-reactor"
	ComponentSync         = "sync-reactor"
)

// DefaultShutdownTimeout is the maximum time to wait for the event loop to
// drain during shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// Node is the main coordinator for a ledgercore node. It aggregates all
// components and manages their lifecycle.
type Node struct {
	cfg        *config.Config
	privateKey ed25519.PrivateKey
	nodeID     string
	role       types.NodeRole

	network *p2p.Network

	blockStore blockstore.BlockStore
	mempool    mempool.Mempool
	dapp       abi.Dapp

	handshaker            *handlers.Handshaker
	transactionsResponder *handlers.TransactionsResponder
	blocksResponder       *handlers.BlocksResponder
	consensusReactor      *handlers.ConsensusRelay
	housekeepingResponder *handlers.HousekeepingResponder
	pexReactor            *pex.Reactor
	syncReactor           *bsync.Synchronizer

	executor        *executor.Executor
	consensusEngine *consensus.Engine
	genesisCfg      types.GenesisConfig

	callbacks *types.NodeCallbacks
	metrics   metrics.Metrics

	started  bool
	stopping atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
}

// Option is a functional option for configuring a Node.
type Option func(*Node)

// WithMempool sets a custom mempool.
func WithMempool(mp mempool.Mempool) Option {
	return func(n *Node) {
		n.mempool = mp
	}
}

// WithBlockStore sets a custom block store.
func WithBlockStore(bs blockstore.BlockStore) Option {
	return func(n *Node) {
		n.blockStore = bs
	}
}

// WithBlockValidator sets the block validation function shared by the block
// responder and the synchronizer. Without one, both store blocks after
// their built-in checks only; RoleBasedBuilder refuses to build a role
// that stores full blocks unless a validator was given.
func WithBlockValidator(v bsync.BlockValidator) Option {
	return func(n *Node) {
		if n.blocksResponder != nil {
			n.blocksResponder.SetValidator(handlers.BlockValidator(v))
		}
		if n.syncReactor != nil {
			n.syncReactor.SetValidator(v)
		}
	}
}

// WithCallbacks sets the node callbacks for event notifications.
func WithCallbacks(cb *types.NodeCallbacks) Option {
	return func(n *Node) {
		n.callbacks = cb
	}
}

// WithMetrics sets the metrics collector. Defaults to a no-op collector
// if never set.
func WithMetrics(m metrics.Metrics) Option {
	return func(n *Node) {
		n.metrics = m
	}
}

// WithDapp sets the application the executor drives. Defaults to
// abi.AcceptAllDapp, which admits every transaction and produces no state
// root of its own - suitable for exercising consensus and block
// propagation without a real state machine behind it.
func WithDapp(d abi.Dapp) Option {
	return func(n *Node) {
		n.dapp = d
	}
}

// NewNode creates a new ledgercore node with the given configuration. The
// node is not started until Start is called.
func NewNode(cfg *config.Config, opts ...Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	privateKey, err := loadOrGenerateKey(cfg.Node.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unexpected public key type")
	}
	nodeID := hex.EncodeToString(publicKey)

	listenAddrs, err := parseMultiaddrs(cfg.Network.ListenAddrs)
	if err != nil {
		return nil, fmt.Errorf("parsing listen addresses: %w", err)
	}

	priv, err := crypto.UnmarshalEd25519PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("converting private key: %w", err)
	}

	host, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrs(listenAddrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("creating libp2p host: %w", err)
	}
	network := p2p.NewNetwork(host)

	blockStore, err := blockstore.NewLevelDBBlockStore(cfg.BlockStore.Path)
	if err != nil {
		return nil, fmt.Errorf("creating block store: %w", err)
	}

	mp := mempool.NewMempool(cfg.Mempool)

	n := &Node{
		cfg:        cfg,
		privateKey: privateKey,
		nodeID:     nodeID,
		role:       cfg.Role,
		network:    network,
		blockStore: blockStore,
		mempool:    mp,
		dapp:       &abi.AcceptAllDapp{},
		metrics:    metrics.NewNopMetrics(),
		stopCh:     make(chan struct{}),
	}

	// Apply options before creating components so overridden stores/pools
	// are the ones wired into the reactors below.
	for _, opt := range opts {
		opt(n)
	}

	addressBook := pex.NewAddressBookWithLimit(cfg.Network.AddressBookPath, cfg.PEX.MaxTotalAddresses)
	addressBook.AddSeeds(cfg.Network.Seeds.Addrs)

	n.handshaker = handlers.NewHandshaker(
		network,
		cfg.Node.ChainID,
		cfg.Node.ProtocolVersion,
		n.blockStore,
		cfg.Network.HandshakeTimeout.Duration(),
	)

	n.transactionsResponder = handlers.NewTransactionsResponder(n.mempool, network)

	n.blocksResponder = handlers.NewBlocksResponder(n.blockStore, network)

	n.consensusReactor = handlers.NewConsensusRelay(network)

	n.housekeepingResponder = handlers.NewHousekeepingResponder(network)

	n.pexReactor = pex.NewReactor(
		cfg.PEX.Enabled,
		cfg.PEX.RequestInterval.Duration(),
		cfg.PEX.MaxAddressesPerResponse,
		addressBook,
		network,
		cfg.Network.MaxOutboundPeers,
	)

	n.syncReactor = bsync.NewSynchronizer(
		n.blockStore,
		network,
		cfg.Handlers.Sync.SyncInterval.Duration(),
		cfg.Handlers.Sync.BatchSize,
	)

	// Re-apply options so a block validator, callback, or dapp set
	// alongside a store/mempool override lands on the reactors and
	// executor built from it.
	for _, opt := range opts {
		opt(n)
	}

	if err := n.buildConsensus(publicKey); err != nil {
		return nil, err
	}

	genesisCfg, err := loadOrGenerateGenesis(cfg.Node.GenesisPath, cfg.Node.ChainID, publicKey)
	if err != nil {
		return nil, fmt.Errorf("loading genesis: %w", err)
	}
	n.genesisCfg = genesisCfg

	return n, nil
}

// buildConsensus wires the executor and consensus engine for roles that
// maintain application state (validator, full, archive). Seed and light
// nodes never execute blocks, so they get neither. Only a role that can
// propose (validator) gets a signing PrivValidator; every other
// state-storing role still runs the engine, but passively - it validates
// and relays proposals and votes and commits once a quorum forms, but
// never proposes or votes itself.
func (n *Node) buildConsensus(publicKey ed25519.PublicKey) error {
	caps := n.cfg.Role.Capabilities()
	if !caps.StoresState {
		return nil
	}

	n.executor = executor.NewExecutor(n.blockStore, n.dapp, n.mempool, n.cfg.Handlers.Blocks.MaxBlockSize)
	n.mempool.SetTxValidator(func(tx []byte) error {
		decoded, err := codec.UnmarshalTransaction(wire.NewReader(tx))
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidTx, err)
		}
		if !n.dapp.ValidateTransaction(context.Background(), decoded) {
			return types.ErrInvalidTx
		}
		return nil
	})

	var privValidator consensus.PrivValidator
	if caps.CanPropose {
		privValidator = consensus.NewLocalPrivValidator(&types.KeyPair{
			PrivateKey: n.privateKey,
			PublicKey:  publicKey,
		})
	}

	n.consensusEngine = consensus.NewEngine(
		consensus.DefaultConfig(),
		consensus.RealClock{},
		nil, // wal: crash recovery past genesis is out of scope for this build
		privValidator,
		n.executor,
		n.consensusReactor,
		nil, // onEquivocation
	)
	n.consensusReactor.SetEngine(n.consensusEngine)

	return nil
}

// Start starts the node and all its components.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return types.ErrNodeAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())

	// The block store is already open by the time NewNode returns; from
	// here startup follows genesis -> executor -> transaction pool ->
	// synchronizer -> consensus engine -> P2P listener -> peers. The
	// mempool has no Start of its own, so it's already live once
	// constructed.
	if n.executor != nil {
		valSet, err := n.executor.Initialize(ctx, n.genesisCfg)
		if err != nil {
			cancel()
			return fmt.Errorf("initializing executor: %w", err)
		}

		n.syncReactor.Start(ctx)

		if n.consensusEngine != nil {
			n.consensusEngine.Start(n.blockStore.Height()+1, valSet)
		}
	} else {
		n.syncReactor.Start(ctx)
	}

	if err := n.network.Start(); err != nil {
		n.stopConsensus(cancel)
		return fmt.Errorf("starting network: %w", err)
	}

	if err := n.registerStreams(); err != nil {
		n.stopConsensus(cancel)
		_ = n.network.Stop()
		return err
	}

	if err := n.pexReactor.Start(); err != nil {
		n.stopConsensus(cancel)
		_ = n.network.Stop()
		return fmt.Errorf("starting PEX reactor: %w", err)
	}

	n.stopCh = make(chan struct{})
	n.wg.Add(1)
	go n.eventLoop(cancel)

	n.wg.Add(1)
	go n.reportMetrics()

	n.connectToSeeds(ctx)

	n.started = true
	return nil
}

// stopConsensus unwinds the engine and synchronizer started earlier in
// Start, for use on a later startup step's failure.
func (n *Node) stopConsensus(cancel context.CancelFunc) {
	if n.consensusEngine != nil {
		n.consensusEngine.Stop()
	}
	n.syncReactor.Stop()
	cancel()
}

// registerStreams installs every component's stream handler on the
// network. Each component owns and registers its own protocol, so the
// network never has to know about handlers or reactors ahead of time.
func (n *Node) registerStreams() error {
	if err := n.handshaker.RegisterStream(); err != nil {
		return fmt.Errorf("registering handshake stream: %w", err)
	}
	if err := n.blocksResponder.RegisterStream(); err != nil {
		return fmt.Errorf("registering blocks stream: %w", err)
	}
	if err := n.consensusReactor.RegisterStream(); err != nil {
		return fmt.Errorf("registering consensus stream: %w", err)
	}
	if err := n.housekeepingResponder.RegisterStream(); err != nil {
		return fmt.Errorf("registering housekeeping stream: %w", err)
	}
	if err := n.transactionsResponder.RegisterStream(); err != nil {
		return fmt.Errorf("registering transactions stream: %w", err)
	}
	if err := n.pexReactor.RegisterStream(); err != nil {
		return fmt.Errorf("registering pex stream: %w", err)
	}
	if err := n.syncReactor.RegisterStream(); err != nil {
		return fmt.Errorf("registering sync stream: %w", err)
	}
	return nil
}

// Stop stops the node and all its components. It follows a shutdown
// sequence meant to avoid races between in-flight event handling and
// component teardown:
//  1. mark shutdown in progress so the event loop stops dispatching
//  2. signal the event loop to stop and wait for it to drain, with a timeout
//  3. stop the reactors
//  4. stop the network and close the stores
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return types.ErrNodeNotStarted
	}

	n.stopping.Store(true)
	close(n.stopCh)

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-ctx.Done():
	}

	if n.consensusEngine != nil {
		n.consensusEngine.Stop()
	}

	n.syncReactor.Stop()
	_ = n.pexReactor.Stop()

	if err := n.network.Stop(); err != nil {
		return fmt.Errorf("stopping network: %w", err)
	}

	if err := n.blockStore.Close(); err != nil {
		return fmt.Errorf("closing block store: %w", err)
	}

	n.mempool.Stop()

	n.started = false
	return nil
}

// IsRunning returns whether the node is running.
func (n *Node) IsRunning() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.started
}

// PeerID returns the node's peer ID.
func (n *Node) PeerID() peer.ID {
	return n.network.PeerID()
}

// NodeID returns the node's hex-encoded public key ID.
func (n *Node) NodeID() string {
	return n.nodeID
}

// Role returns the node's role, defaulting to the standard full role if
// none was explicitly set.
func (n *Node) Role() types.NodeRole {
	if n.role == "" {
		return types.DefaultRole()
	}
	return n.role
}

// Network returns the network layer.
func (n *Node) Network() *p2p.Network {
	return n.network
}

// BlockStore returns the block store.
func (n *Node) BlockStore() blockstore.BlockStore {
	return n.blockStore
}

// Mempool returns the mempool.
func (n *Node) Mempool() mempool.Mempool {
	return n.mempool
}

// BlocksResponder returns the block responder/relay component.
func (n *Node) BlocksResponder() *handlers.BlocksResponder {
	return n.blocksResponder
}

// ConsensusRelay returns the consensus message relay component.
func (n *Node) ConsensusRelay() *handlers.ConsensusRelay {
	return n.consensusReactor
}

// Synchronizer returns the block synchronizer component.
func (n *Node) Synchronizer() *bsync.Synchronizer {
	return n.syncReactor
}

// Metrics returns the node's metrics collector.
func (n *Node) Metrics() metrics.Metrics {
	return n.metrics
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	return n.network.PeerCount()
}

// Callbacks returns the current node callbacks, or nil if none are set.
func (n *Node) Callbacks() *types.NodeCallbacks {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.callbacks
}

// SetCallbacks sets the node callbacks for event notifications. Can be
// called at any time, including after the node has started. Pass nil to
// remove callbacks.
func (n *Node) SetCallbacks(cb *types.NodeCallbacks) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.callbacks = cb
}

// eventLoop drives connection lifecycle from the network's connection
// events. Message routing itself happens inline inside the network's
// stream dispatcher via each component's own registered stream handler, so
// this loop only has connection bookkeeping left to do.
func (n *Node) eventLoop(cancelSync context.CancelFunc) {
	defer n.wg.Done()
	defer cancelSync()

	events := n.network.Events()

	for {
		select {
		case <-n.stopCh:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			n.handleConnectionEvent(event)
		}
	}
}

// handleConnectionEvent reacts to a peer's connection state changing.
func (n *Node) handleConnectionEvent(event p2p.ConnectionEvent) {
	if n.stopping.Load() {
		return
	}

	peerID := event.PeerID

	n.mu.RLock()
	cb := n.callbacks
	n.mu.RUnlock()

	if !event.Connected {
		n.metrics.IncPeerDisconnections(metrics.ReasonRemote)
		n.reportPeerCounts()
		cb.InvokePeerDisconnected(peerID)
		n.syncReactor.OnPeerDisconnected(peerID)
		n.pexReactor.OnPeerDisconnected(peerID)
		return
	}

	state := n.network.PeerManager().GetPeer(peerID)
	isOutbound := state != nil && state.IsOutbound

	n.metrics.IncPeerConnections(metrics.ResultSuccess)
	n.reportPeerCounts()

	cb.InvokePeerConnected(peerID, isOutbound)

	if !isOutbound {
		return
	}

	// Only the dialing side greets; the accepting side answers inline from
	// the handshake stream handler.
	go n.greetAndAnnounce(peerID, cb)
}

// greetAndAnnounce completes the handshake with an outbound peer and, once
// it succeeds, tells the PEX reactor the peer is worth remembering.
func (n *Node) greetAndAnnounce(peerID peer.ID, cb *types.NodeCallbacks) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Network.HandshakeTimeout.Duration())
	defer cancel()

	if err := n.handshaker.Greet(ctx, peerID); err != nil {
		return
	}

	addr := ""
	if addrs := n.network.Host().Peerstore().Addrs(peerID); len(addrs) > 0 {
		addr = fmt.Sprintf("%s/p2p/%s", addrs[0].String(), peerID.String())
	}
	n.pexReactor.OnPeerConnected(peerID, addr)

	cb.InvokePeerHandshaked(peerID, &types.PeerInfo{
		ChainID:         n.cfg.Node.ChainID,
		ProtocolVersion: n.cfg.Node.ProtocolVersion,
	})
}

// reportPeerCounts pushes the current inbound/outbound peer split to the
// metrics collector.
func (n *Node) reportPeerCounts() {
	inbound, outbound := 0, 0
	for _, p := range n.network.PeerManager().AllPeers() {
		if p.IsOutbound {
			outbound++
		} else {
			inbound++
		}
	}
	n.metrics.SetPeersTotal(metrics.DirectionInbound, inbound)
	n.metrics.SetPeersTotal(metrics.DirectionOutbound, outbound)
}

// reportMetrics periodically samples block height, mempool occupancy, and
// sync progress into the metrics collector until the node stops.
func (n *Node) reportMetrics() {
	defer n.wg.Done()

	ticker := time.NewTicker(DefaultMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.sampleMetrics()
		}
	}
}

func (n *Node) sampleMetrics() {
	n.metrics.SetBlockHeight(int64(n.blockStore.Height()))
	n.metrics.SetMempoolSize(n.mempool.Size())
	n.metrics.SetMempoolBytes(n.mempool.SizeBytes())

	if n.syncReactor.IsIdle() {
		n.metrics.SetSyncState(metrics.SyncStateSynced)
	} else {
		n.metrics.SetSyncState(metrics.SyncStateSyncing)
	}
	n.metrics.SetSyncPeerHeight(int64(n.syncReactor.TargetHeight()))
}

// connectToSeeds dials the configured seed nodes. Failures are non-fatal:
// the PEX reactor and synchronizer keep working with whatever peers do
// connect.
func (n *Node) connectToSeeds(ctx context.Context) {
	for _, addr := range n.cfg.Network.Seeds.Addrs {
		if err := n.network.ConnectMultiaddr(ctx, addr); err != nil {
			continue
		}
	}
}

// GetComponent returns a component by name for introspection. Returns
// ErrComponentNotFound if name is not one of the eight registered
// components.
func (n *Node) GetComponent(name string) (types.Component, error) {
	switch name {
	case ComponentNetwork, ComponentHandshake, ComponentPEX, ComponentHousekeeping,
		ComponentTransactions, ComponentBlocks, ComponentConsensus, ComponentSync:
		return component{name: name}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrComponentNotFound, name)
	}
}

// ComponentNames returns the names of all components in the node.
func (n *Node) ComponentNames() []string {
	return []string{
		ComponentNetwork,
		ComponentHandshake,
		ComponentPEX,
		ComponentHousekeeping,
		ComponentTransactions,
		ComponentBlocks,
		ComponentConsensus,
		ComponentSync,
	}
}

// loadOrGenerateKey loads a private key from path, or generates and
// persists a new one if the file does not exist. Files may hold either the
// raw 64-byte key or its hex encoding.
func loadOrGenerateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) == ed25519.PrivateKeySize {
			return ed25519.PrivateKey(data), nil
		}
		decoded, decodeErr := hex.DecodeString(string(data))
		if decodeErr == nil && len(decoded) == ed25519.PrivateKeySize {
			return ed25519.PrivateKey(decoded), nil
		}
		return nil, fmt.Errorf("invalid key file: expected %d bytes", ed25519.PrivateKeySize)
	}

	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	_, privateKey, genErr := ed25519.GenerateKey(nil)
	if genErr != nil {
		return nil, fmt.Errorf("generating key: %w", genErr)
	}

	if writeErr := os.WriteFile(path, []byte(privateKey), 0600); writeErr != nil {
		return nil, fmt.Errorf("saving key: %w", writeErr)
	}

	return privateKey, nil
}

// parseMultiaddrs parses a slice of multiaddr strings.
func parseMultiaddrs(addrs []string) ([]multiaddr.Multiaddr, error) {
	result := make([]multiaddr.Multiaddr, 0, len(addrs))
	for _, addr := range addrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, fmt.Errorf("parsing multiaddr %q: %w", addr, err)
		}
		result = append(result, ma)
	}
	return result, nil
}
