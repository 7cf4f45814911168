package node

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"

	"github.com/forgebound/ledgercore/abi"
	"github.com/forgebound/ledgercore/blockstore"
	"github.com/forgebound/ledgercore/config"
	"github.com/forgebound/ledgercore/handlers"
	"github.com/forgebound/ledgercore/mempool"
	"github.com/forgebound/ledgercore/metrics"
	"github.com/forgebound/ledgercore/p2p"
	"github.com/forgebound/ledgercore/pex"
	bsync "github.com/forgebound/ledgercore/sync"
	"github.com/forgebound/ledgercore/types"
)

// NodeBuilder provides a fluent interface for constructing a Node.
// It ensures single-pass initialization and proper validation.
type NodeBuilder struct {
	cfg *config.Config

	// Pluggable components (optional)
	privateKey     ed25519.PrivateKey
	mempool        mempool.Mempool
	blockStore     blockstore.BlockStore
	blockValidator bsync.BlockValidator
	callbacks      *types.NodeCallbacks
	metrics        metrics.Metrics
	dapp           abi.Dapp

	// Error tracking during build
	err error
}

// NewNodeBuilder creates a new NodeBuilder with the given configuration.
func NewNodeBuilder(cfg *config.Config) *NodeBuilder {
	return &NodeBuilder{cfg: cfg}
}

// WithPrivateKey sets a pre-loaded private key, skipping file-based key loading.
func (b *NodeBuilder) WithPrivateKey(key ed25519.PrivateKey) *NodeBuilder {
	if b.err != nil {
		return b
	}
	b.privateKey = key
	return b
}

// WithMempool sets a custom mempool implementation.
func (b *NodeBuilder) WithMempool(mp mempool.Mempool) *NodeBuilder {
	if b.err != nil {
		return b
	}
	b.mempool = mp
	return b
}

// WithBlockStore sets a custom block store implementation.
func (b *NodeBuilder) WithBlockStore(bs blockstore.BlockStore) *NodeBuilder {
	if b.err != nil {
		return b
	}
	b.blockStore = bs
	return b
}

// WithBlockValidator sets the block validation function shared by the block
// responder and the synchronizer.
func (b *NodeBuilder) WithBlockValidator(v bsync.BlockValidator) *NodeBuilder {
	if b.err != nil {
		return b
	}
	b.blockValidator = v
	return b
}

// WithCallbacks sets the node event callbacks.
func (b *NodeBuilder) WithCallbacks(cb *types.NodeCallbacks) *NodeBuilder {
	if b.err != nil {
		return b
	}
	b.callbacks = cb
	return b
}

// WithMetrics sets the metrics collector. Defaults to a no-op collector.
func (b *NodeBuilder) WithMetrics(m metrics.Metrics) *NodeBuilder {
	if b.err != nil {
		return b
	}
	b.metrics = m
	return b
}

// WithDapp sets the application the executor drives. Defaults to
// abi.AcceptAllDapp.
func (b *NodeBuilder) WithDapp(d abi.Dapp) *NodeBuilder {
	if b.err != nil {
		return b
	}
	b.dapp = d
	return b
}

// Build creates the Node with all configured components.
func (b *NodeBuilder) Build() (*Node, error) {
	if b.err != nil {
		return nil, b.err
	}

	cfg := b.cfg
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	privateKey := b.privateKey
	if privateKey == nil {
		var err error
		privateKey, err = loadOrGenerateKey(cfg.Node.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("loading private key: %w", err)
		}
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

	bs := b.blockStore
	if bs == nil {
		bs, err = blockstore.NewLevelDBBlockStore(cfg.BlockStore.Path)
		if err != nil {
			return nil, fmt.Errorf("creating block store: %w", err)
		}
	}

	mp := b.mempool
	if mp == nil {
		mp = mempool.NewMempool(cfg.Mempool)
	}

	addressBook := pex.NewAddressBookWithLimit(cfg.Network.AddressBookPath, cfg.PEX.MaxTotalAddresses)
	addressBook.AddSeeds(cfg.Network.Seeds.Addrs)

	handshaker := handlers.NewHandshaker(
		network,
		cfg.Node.ChainID,
		cfg.Node.ProtocolVersion,
		bs,
		cfg.Network.HandshakeTimeout.Duration(),
	)

	transactionsResponder := handlers.NewTransactionsResponder(mp, network)

	blocksResponder := handlers.NewBlocksResponder(bs, network)

	consensusReactor := handlers.NewConsensusRelay(network)

	housekeepingResponder := handlers.NewHousekeepingResponder(network)

	pexReactor := pex.NewReactor(
		cfg.PEX.Enabled,
		cfg.PEX.RequestInterval.Duration(),
		cfg.PEX.MaxAddressesPerResponse,
		addressBook,
		network,
		cfg.Network.MaxOutboundPeers,
	)

	syncReactor := bsync.NewSynchronizer(
		bs,
		network,
		cfg.Handlers.Sync.SyncInterval.Duration(),
		cfg.Handlers.Sync.BatchSize,
	)

	if b.blockValidator != nil {
		blocksResponder.SetValidator(handlers.BlockValidator(b.blockValidator))
		syncReactor.SetValidator(b.blockValidator)
	}

	m := b.metrics
	if m == nil {
		m = metrics.NewNopMetrics()
	}

	dapp := b.dapp
	if dapp == nil {
		dapp = &abi.AcceptAllDapp{}
	}

	n := &Node{
		cfg:                   cfg,
		privateKey:            privateKey,
		nodeID:                nodeID,
		role:                  cfg.Role,
		network:               network,
		blockStore:            bs,
		mempool:               mp,
		dapp:                  dapp,
		handshaker:            handshaker,
		transactionsResponder: transactionsResponder,
		blocksResponder:       blocksResponder,
		consensusReactor:      consensusReactor,
		housekeepingResponder: housekeepingResponder,
		pexReactor:            pexReactor,
		syncReactor:           syncReactor,
		callbacks:             b.callbacks,
		metrics:               m,
		stopCh:                make(chan struct{}),
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

// MustBuild is like Build but panics if an error occurs.
func (b *NodeBuilder) MustBuild() *Node {
	n, err := b.Build()
	if err != nil {
		panic(err)
	}
	return n
}

// NewNodeWithBuilder creates a new node using the builder pattern.
//
// Example:
//
//	node, err := NewNodeWithBuilder(cfg).
//		WithBlockValidator(myValidator).
//		WithCallbacks(myCallbacks).
//		Build()
func NewNodeWithBuilder(cfg *config.Config) *NodeBuilder {
	return NewNodeBuilder(cfg)
}
