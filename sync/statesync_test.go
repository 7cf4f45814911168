package sync

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/forgebound/ledgercore/p2p"
	"github.com/forgebound/ledgercore/statestore"
)

// fakeSnapshotStore is a minimal in-memory statestore.SnapshotStore double,
// seeded with a single fixed snapshot for exercising the wire protocol
// without a real IAVL-backed store.
type fakeSnapshotStore struct {
	info     *statestore.SnapshotInfo
	snapshot *statestore.Snapshot
	chunks   [][]byte

	imported *statestore.Snapshot
}

func newFakeSnapshotStore(height int64, chunks [][]byte) *fakeSnapshotStore {
	hash := []byte("snapshot-hash")
	return &fakeSnapshotStore{
		info: &statestore.SnapshotInfo{Height: height, Hash: hash, Chunks: len(chunks), CreatedAt: time.Now()},
		snapshot: &statestore.Snapshot{
			Version: statestore.SnapshotVersion, Height: height, Hash: hash,
			Chunks: len(chunks), AppHash: []byte("apphash"),
		},
		chunks: chunks,
	}
}

func (f *fakeSnapshotStore) Create(int64) (*statestore.Snapshot, error) { return f.snapshot, nil }
func (f *fakeSnapshotStore) List() ([]*statestore.SnapshotInfo, error) {
	return []*statestore.SnapshotInfo{f.info}, nil
}
func (f *fakeSnapshotStore) Load(hash []byte) (*statestore.Snapshot, error) {
	return f.snapshot, nil
}
func (f *fakeSnapshotStore) LoadChunk(hash []byte, index int) (*statestore.SnapshotChunk, error) {
	data := f.chunks[index]
	sum := sha256.Sum256(data)
	return &statestore.SnapshotChunk{Index: index, Data: data, Hash: sum[:]}, nil
}
func (f *fakeSnapshotStore) Delete(hash []byte) error   { return nil }
func (f *fakeSnapshotStore) Prune(keepRecent int) error { return nil }
func (f *fakeSnapshotStore) Has(hash []byte) bool       { return true }
func (f *fakeSnapshotStore) Import(s *statestore.Snapshot, p statestore.ChunkProvider) error {
	f.imported = s
	return nil
}

var _ statestore.SnapshotStore = (*fakeSnapshotStore)(nil)

func TestNewStateSynchronizer(t *testing.T) {
	s := NewStateSynchronizer(nil, nil, 100, []byte("trust"))
	require.NotNil(t, s)
}

func TestStateSynchronizer_RegisterStream(t *testing.T) {
	h, err := libp2p.New(libp2p.NoListenAddrs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	net := p2p.NewNetwork(h)
	require.NoError(t, net.RegisterBuiltinStreams())

	s := NewStateSynchronizer(net, newFakeSnapshotStore(10, nil), 0, nil)
	require.NoError(t, s.RegisterStream())
	require.True(t, net.HasStream(p2p.StreamStateSync))
}

func TestStateSynchronizer_ServeSnapshotsAndChunk(t *testing.T) {
	store := newFakeSnapshotStore(10, [][]byte{[]byte("chunk0"), []byte("chunk1")})
	s := NewStateSynchronizer(nil, store, 0, nil)

	resp, err := s.serveSnapshots(&snapshotsRequestMsg{MinHeight: 0})
	require.NoError(t, err)
	require.NotEmpty(t, resp)

	resp, err = s.serveChunk(peer.ID("peer1"), &chunkRequestMsg{Hash: store.info.Hash, Index: 0})
	require.NoError(t, err)
	require.NotEmpty(t, resp)
}

func TestStateSynchronizer_DiscoverAndDownload(t *testing.T) {
	h1, h2 := newConnectedHosts(t)
	serverNet := newSyncTestNetwork(t, h1)
	clientNet := newSyncTestNetwork(t, h2)

	serverStore := newFakeSnapshotStore(10, [][]byte{[]byte("chunk0"), []byte("chunk1")})
	server := NewStateSynchronizer(serverNet, serverStore, 0, nil)
	require.NoError(t, server.RegisterStream())

	client := NewStateSynchronizer(clientNet, nil, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	offers := client.DiscoverSnapshots(ctx)
	require.Len(t, offers, 1)
	require.Equal(t, int64(10), offers[0].Height)
	require.Equal(t, h1.ID(), offers[0].PeerID)

	clientStore := newFakeSnapshotStore(10, nil)
	client.store = clientStore

	var completedHeight int64
	client.SetOnComplete(func(height int64, appHash []byte) { completedHeight = height })

	require.NoError(t, client.Download(ctx, offers[0]))
	require.Equal(t, int64(10), completedHeight)
	require.NotNil(t, clientStore.imported)
}

func TestStateSynchronizer_DiscoverRejectsBelowTrustHeight(t *testing.T) {
	h1, h2 := newConnectedHosts(t)
	serverNet := newSyncTestNetwork(t, h1)
	clientNet := newSyncTestNetwork(t, h2)

	serverStore := newFakeSnapshotStore(5, [][]byte{[]byte("chunk0")})
	server := NewStateSynchronizer(serverNet, serverStore, 0, nil)
	require.NoError(t, server.RegisterStream())

	client := NewStateSynchronizer(clientNet, nil, 100, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	offers := client.DiscoverSnapshots(ctx)
	require.Empty(t, offers)
}
