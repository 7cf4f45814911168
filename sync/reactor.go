// Package sync drives catch-up: fetching and validating the header and
// body range between the local tip and the highest height any connected
// peer has reported, two passes at a time (validate every header in a
// batch before fetching any body), and serving the same GetHeaders/
// GetBodies requests on behalf of peers behind this node.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/forgebound/ledgercore/blockstore"
	"github.com/forgebound/ledgercore/p2p"
	"github.com/forgebound/ledgercore/types"
	"github.com/forgebound/ledgercore/wire"
)

// BlockValidator vets a fetched block against application rules, beyond
// the structural and chain-linkage checks the synchronizer already does.
type BlockValidator func(block *types.Block) error

// Synchronizer drives catch-up against the highest height any connected
// peer has reported, and answers the same requests on behalf of peers
// that are behind it.
type Synchronizer struct {
	store   blockstore.BlockStore
	network *p2p.Network

	syncInterval time.Duration
	batchSize    int32
	validator    BlockValidator

	onBlock func(block *types.Block)

	mu          sync.RWMutex
	peerHeights map[peer.ID]types.Height
	rrCursor    int

	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewSynchronizer builds a Synchronizer over store, fetching batchSize
// headers/bodies at a time and checking for a new target every
// syncInterval.
func NewSynchronizer(store blockstore.BlockStore, network *p2p.Network, syncInterval time.Duration, batchSize int32) *Synchronizer {
	return &Synchronizer{
		store:        store,
		network:      network,
		syncInterval: syncInterval,
		batchSize:    batchSize,
		peerHeights:  make(map[peer.ID]types.Height),
	}
}

// SetValidator installs an additional admission check run on each block
// before it's stored.
func (s *Synchronizer) SetValidator(v BlockValidator) { s.validator = v }

// SetOnBlock installs a callback invoked after a fetched block has been
// stored, in height order.
func (s *Synchronizer) SetOnBlock(fn func(block *types.Block)) { s.onBlock = fn }

// RegisterStream installs the block-sync request/response handler on
// the network.
func (s *Synchronizer) RegisterStream() error {
	return s.network.RegisterStream(p2p.StreamConfig{
		Name:           p2p.StreamBlockSync,
		Encrypted:      true,
		Owner:          "sync",
		RateLimit:      50,
		MaxMessageSize: 32 << 20,
	}, s.handle)
}

// Start begins the periodic catch-up loop.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts the catch-up loop and waits for it to exit.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Synchronizer) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

// UpdatePeerHeight records peerID's last reported tip, as pushed on the
// block-sync stream via newBlockHeightMsg.
func (s *Synchronizer) UpdatePeerHeight(peerID peer.ID, height types.Height) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerHeights[peerID] = height
}

// OnPeerDisconnected drops a peer's recorded height so it stops
// contributing to the sync target and is no longer selected.
func (s *Synchronizer) OnPeerDisconnected(peerID peer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peerHeights, peerID)
}

// TargetHeight returns the highest height any connected peer has
// reported.
func (s *Synchronizer) TargetHeight() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max types.Height
	for _, h := range s.peerHeights {
		if h > max {
			max = h
		}
	}
	return max
}

// IsIdle reports whether the local tip has caught up to every peer's
// reported height. The consensus engine is gated on this before
// proposing.
func (s *Synchronizer) IsIdle() bool {
	return s.store.Height() >= s.TargetHeight()
}

// syncOnce fetches and applies one batch if the node is behind.
func (s *Synchronizer) syncOnce(ctx context.Context) {
	if s.IsIdle() {
		return
	}

	from := s.store.Height() + 1
	peers := s.peersAtOrAbove(from)
	if len(peers) == 0 {
		return
	}

	pid := s.nextPeer(peers)
	if err := s.fetchBatch(ctx, pid, from); err != nil {
		_ = s.network.AddPenalty(pid, p2p.PenaltyTimeout, p2p.ReasonTimeout, err.Error())
	}
}

// peersAtOrAbove returns, among peers the synchronizer has heard from,
// those whose reported height covers at least minHeight.
func (s *Synchronizer) peersAtOrAbove(minHeight types.Height) []peer.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var peers []peer.ID
	for pid, h := range s.peerHeights {
		if h >= minHeight {
			peers = append(peers, pid)
		}
	}
	return peers
}

// nextPeer round-robins among the given candidates so repeated batches
// don't hammer the same peer.
func (s *Synchronizer) nextPeer(candidates []peer.ID) peer.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rrCursor = (s.rrCursor + 1) % len(candidates)
	return candidates[s.rrCursor]
}

// fetchBatch runs the two-pass fetch: GetHeaders, validate the whole
// batch's chain linkage, then GetBodies, validate and store each
// resulting block in order. A block that fails validation or storage
// stops the batch; the blocks stored before it in the batch stay stored.
func (s *Synchronizer) fetchBatch(ctx context.Context, pid peer.ID, from types.Height) error {
	headers, err := s.requestHeaders(ctx, pid, from)
	if err != nil {
		return err
	}
	if len(headers) == 0 {
		return nil
	}
	if err := s.validateHeaderChain(headers, from); err != nil {
		return err
	}

	heights := make([]types.Height, len(headers))
	for i, h := range headers {
		heights[i] = h.Height
	}
	bodies, err := s.requestBodies(ctx, pid, heights)
	if err != nil {
		return err
	}
	if len(bodies) != len(headers) {
		return fmt.Errorf("sync: peer returned %d bodies for %d headers", len(bodies), len(headers))
	}

	for i, header := range headers {
		block := &types.Block{Header: *header, Body: *bodies[i]}
		if err := block.Validate(); err != nil {
			return fmt.Errorf("%w: height %d: %v", types.ErrInvalidBlock, header.Height, err)
		}
		if s.validator != nil {
			if err := s.validator(block); err != nil {
				return fmt.Errorf("sync: height %d rejected: %w", header.Height, err)
			}
		}
		if err := s.store.Put(block); err != nil {
			return fmt.Errorf("sync: storing height %d: %w", header.Height, err)
		}
		if s.onBlock != nil {
			s.onBlock(block)
		}
	}
	return nil
}

// validateHeaderChain checks height contiguity starting at from and the
// lastBlockHash linkage between consecutive headers.
func (s *Synchronizer) validateHeaderChain(headers []*types.BlockHeader, from types.Height) error {
	for i, h := range headers {
		if h.Height != from+types.Height(i) {
			return fmt.Errorf("%w: expected height %d, got %d", types.ErrInvalidBlock, from+types.Height(i), h.Height)
		}
		if i == 0 {
			tip, err := s.store.HeaderOf(from - 1)
			if err == nil && !h.LastBlockHash.Equal(tip.Hash()) {
				return fmt.Errorf("%w: lastBlockHash does not match local tip", types.ErrInvalidBlock)
			}
			continue
		}
		if !h.LastBlockHash.Equal(headers[i-1].Hash()) {
			return fmt.Errorf("%w: non-contiguous header chain at height %d", types.ErrInvalidBlock, h.Height)
		}
	}
	return nil
}

func (s *Synchronizer) requestHeaders(ctx context.Context, pid peer.ID, from types.Height) ([]*types.BlockHeader, error) {
	req := &getHeadersMsg{From: from, Count: s.batchSize}
	resp, err := s.network.Request(ctx, pid, p2p.StreamBlockSync, wire.Encode(req))
	if err != nil {
		return nil, err
	}
	_, msg, err := wire.Decode(resp, decodeFactory)
	if err != nil {
		return nil, err
	}
	headers, ok := msg.(*headersMsg)
	if !ok {
		return nil, fmt.Errorf("sync: expected headers response, got %T", msg)
	}
	return headers.Headers, nil
}

func (s *Synchronizer) requestBodies(ctx context.Context, pid peer.ID, heights []types.Height) ([]*types.BlockBody, error) {
	req := &getBodiesMsg{Heights: heights}
	resp, err := s.network.Request(ctx, pid, p2p.StreamBlockSync, wire.Encode(req))
	if err != nil {
		return nil, err
	}
	_, msg, err := wire.Decode(resp, decodeFactory)
	if err != nil {
		return nil, err
	}
	bodies, ok := msg.(*bodiesMsg)
	if !ok {
		return nil, fmt.Errorf("sync: expected bodies response, got %T", msg)
	}
	return bodies.Bodies, nil
}

// handle serves GetHeaders/GetBodies requests from peers behind this
// node and absorbs height announcements pushed by peers ahead of it.
func (s *Synchronizer) handle(peerID peer.ID, data []byte) ([]byte, error) {
	_, msg, err := wire.Decode(data, decodeFactory)
	if err != nil {
		_ = s.network.AddPenalty(peerID, p2p.PenaltyProtocolViolation, p2p.ReasonProtocolViolation, err.Error())
		return nil, nil
	}

	switch m := msg.(type) {
	case *getHeadersMsg:
		return s.serveHeaders(m)
	case *getBodiesMsg:
		return s.serveBodies(m)
	case *newBlockHeightMsg:
		s.UpdatePeerHeight(peerID, m.Height)
		return nil, nil
	default:
		return nil, nil
	}
}

func (s *Synchronizer) serveHeaders(req *getHeadersMsg) ([]byte, error) {
	count := req.Count
	if count <= 0 || count > types.MaxBatchSize {
		count = types.MaxBatchSize
	}
	tip := s.store.Height()
	var headers []*types.BlockHeader
	for h := req.From; h <= tip && int32(len(headers)) < count; h++ {
		header, err := s.store.HeaderOf(h)
		if err != nil {
			break
		}
		headers = append(headers, header)
	}
	return wire.Encode(&headersMsg{Headers: headers}), nil
}

func (s *Synchronizer) serveBodies(req *getBodiesMsg) ([]byte, error) {
	var bodies []*types.BlockBody
	for _, h := range req.Heights {
		body, err := s.store.BodyOf(h)
		if err != nil {
			break
		}
		bodies = append(bodies, body)
	}
	return wire.Encode(&bodiesMsg{Bodies: bodies}), nil
}

// AnnounceHeight broadcasts the local tip to every connected peer so
// their synchronizers can compute a target height without polling.
func (s *Synchronizer) AnnounceHeight(ctx context.Context, height types.Height) {
	data := wire.Encode(&newBlockHeightMsg{Height: height})
	s.network.Broadcast(ctx, p2p.StreamBlockSync, data)
}
