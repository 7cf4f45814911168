package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/forgebound/ledgercore/p2p"
	"github.com/forgebound/ledgercore/statestore"
	"github.com/forgebound/ledgercore/wire"
)

// SnapshotOffer is one peer's answer to a snapshot discovery request.
type SnapshotOffer struct {
	PeerID    peer.ID
	Height    int64
	Hash      []byte
	Chunks    int
	AppHash   []byte
	CreatedAt time.Time
}

// StateSynchronizer restores local state from a peer-served snapshot
// instead of replaying every block from genesis, trading a trusted
// height/hash for a much shorter catch-up.
type StateSynchronizer struct {
	network *p2p.Network
	store   statestore.SnapshotStore

	trustHeight int64
	trustHash   []byte

	mu     sync.Mutex
	offers map[string]*SnapshotOffer // hash hex -> offer

	onComplete func(height int64, appHash []byte)
	onFailed   func(err error)
}

// NewStateSynchronizer builds a StateSynchronizer that only accepts
// snapshots at or above trustHeight, and matching trustHash if the
// offer is exactly at that height.
func NewStateSynchronizer(network *p2p.Network, store statestore.SnapshotStore, trustHeight int64, trustHash []byte) *StateSynchronizer {
	return &StateSynchronizer{
		network:     network,
		store:       store,
		trustHeight: trustHeight,
		trustHash:   trustHash,
		offers:      make(map[string]*SnapshotOffer),
	}
}

// SetOnComplete installs a callback run after a snapshot has been
// imported successfully.
func (s *StateSynchronizer) SetOnComplete(fn func(height int64, appHash []byte)) { s.onComplete = fn }

// SetOnFailed installs a callback run if import fails.
func (s *StateSynchronizer) SetOnFailed(fn func(err error)) { s.onFailed = fn }

// RegisterStream installs the snapshot/chunk request handler, serving
// peers that are state-syncing off this node.
func (s *StateSynchronizer) RegisterStream() error {
	return s.network.RegisterStream(p2p.StreamConfig{
		Name:           p2p.StreamStateSync,
		Encrypted:      true,
		Owner:          "statesync",
		RateLimit:      100,
		MaxMessageSize: 16 << 20,
	}, s.handle)
}

func (s *StateSynchronizer) handle(peerID peer.ID, data []byte) ([]byte, error) {
	_, msg, err := wire.Decode(data, stateSyncDecodeFactory)
	if err != nil {
		_ = s.network.AddPenalty(peerID, p2p.PenaltyProtocolViolation, p2p.ReasonProtocolViolation, err.Error())
		return nil, nil
	}
	switch m := msg.(type) {
	case *snapshotsRequestMsg:
		return s.serveSnapshots(m)
	case *chunkRequestMsg:
		return s.serveChunk(peerID, m)
	default:
		return nil, nil
	}
}

func (s *StateSynchronizer) serveSnapshots(req *snapshotsRequestMsg) ([]byte, error) {
	if s.store == nil {
		return wire.Encode(&snapshotsResponseMsg{}), nil
	}
	infos, err := s.store.List()
	if err != nil {
		return wire.Encode(&snapshotsResponseMsg{}), nil
	}
	var metas []snapshotMeta
	for _, info := range infos {
		if info.Height < req.MinHeight {
			continue
		}
		snap, err := s.store.Load(info.Hash)
		if err != nil {
			continue
		}
		metas = append(metas, snapshotMeta{
			Height:    info.Height,
			Hash:      info.Hash,
			Chunks:    int32(info.Chunks),
			AppHash:   snap.AppHash,
			CreatedAt: info.CreatedAt.UnixNano(),
		})
	}
	return wire.Encode(&snapshotsResponseMsg{Snapshots: metas}), nil
}

func (s *StateSynchronizer) serveChunk(peerID peer.ID, req *chunkRequestMsg) ([]byte, error) {
	if s.store == nil {
		return wire.Encode(&chunkResponseMsg{}), nil
	}
	chunk, err := s.store.LoadChunk(req.Hash, int(req.Index))
	if err != nil {
		return wire.Encode(&chunkResponseMsg{}), nil
	}
	return wire.Encode(&chunkResponseMsg{
		Hash:      req.Hash,
		Index:     req.Index,
		Data:      chunk.Data,
		ChunkHash: chunk.Hash,
	}), nil
}

// DiscoverSnapshots requests snapshot offers from every connected peer
// and returns the ones that clear the configured trust height/hash.
func (s *StateSynchronizer) DiscoverSnapshots(ctx context.Context) []*SnapshotOffer {
	s.mu.Lock()
	s.offers = make(map[string]*SnapshotOffer)
	s.mu.Unlock()

	for _, pid := range s.network.ConnectedPeers() {
		resp, err := s.network.Request(ctx, pid, p2p.StreamStateSync, wire.Encode(&snapshotsRequestMsg{MinHeight: s.trustHeight}))
		if err != nil {
			continue
		}
		_, msg, err := wire.Decode(resp, stateSyncDecodeFactory)
		if err != nil {
			continue
		}
		snapshots, ok := msg.(*snapshotsResponseMsg)
		if !ok {
			continue
		}
		s.recordOffers(pid, snapshots.Snapshots)
	}
	return s.bestOffers()
}

func (s *StateSynchronizer) recordOffers(pid peer.ID, metas []snapshotMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, meta := range metas {
		if meta.Height < s.trustHeight {
			continue
		}
		if meta.Height == s.trustHeight && len(s.trustHash) > 0 && !bytes.Equal(meta.AppHash, s.trustHash) {
			continue
		}
		s.offers[fmt.Sprintf("%x", meta.Hash)] = &SnapshotOffer{
			PeerID:    pid,
			Height:    meta.Height,
			Hash:      meta.Hash,
			Chunks:    int(meta.Chunks),
			AppHash:   meta.AppHash,
			CreatedAt: time.Unix(0, meta.CreatedAt),
		}
	}
}

func (s *StateSynchronizer) bestOffers() []*SnapshotOffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	offers := make([]*SnapshotOffer, 0, len(s.offers))
	for _, o := range s.offers {
		offers = append(offers, o)
	}
	return offers
}

// Download fetches every chunk of offer from its offering peer,
// verifies each chunk's hash, and imports the assembled snapshot into
// the local state store.
func (s *StateSynchronizer) Download(ctx context.Context, offer *SnapshotOffer) error {
	chunks := make([][]byte, offer.Chunks)
	for i := 0; i < offer.Chunks; i++ {
		resp, err := s.network.Request(ctx, offer.PeerID, p2p.StreamStateSync, wire.Encode(&chunkRequestMsg{Hash: offer.Hash, Index: int32(i)}))
		if err != nil {
			s.fail(fmt.Errorf("statesync: requesting chunk %d: %w", i, err))
			return err
		}
		_, msg, err := wire.Decode(resp, stateSyncDecodeFactory)
		if err != nil {
			s.fail(err)
			return err
		}
		chunk, ok := msg.(*chunkResponseMsg)
		if !ok || chunk.Data == nil {
			err := fmt.Errorf("statesync: peer has no chunk %d for snapshot %x", i, offer.Hash)
			s.fail(err)
			return err
		}
		sum := sha256.Sum256(chunk.Data)
		if !bytes.Equal(sum[:], chunk.ChunkHash) {
			_ = s.network.AddPenalty(offer.PeerID, p2p.PenaltyInvalidBlock, p2p.ReasonInvalidBlock, "snapshot chunk hash mismatch")
			err := fmt.Errorf("statesync: chunk %d hash mismatch", i)
			s.fail(err)
			return err
		}
		chunks[i] = chunk.Data
	}

	snapshot := &statestore.Snapshot{
		Version:   statestore.SnapshotVersion,
		Height:    offer.Height,
		Hash:      offer.Hash,
		Chunks:    offer.Chunks,
		AppHash:   offer.AppHash,
		CreatedAt: offer.CreatedAt,
	}
	if err := s.store.Import(snapshot, statestore.NewMemoryChunkProvider(chunks)); err != nil {
		s.fail(fmt.Errorf("statesync: importing snapshot: %w", err))
		return err
	}
	if s.onComplete != nil {
		s.onComplete(offer.Height, offer.AppHash)
	}
	return nil
}

func (s *StateSynchronizer) fail(err error) {
	if s.onFailed != nil {
		s.onFailed(err)
	}
}
