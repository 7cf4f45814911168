package sync

import (
	"context"
	"testing"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/forgebound/ledgercore/blockstore"
	"github.com/forgebound/ledgercore/p2p"
	"github.com/forgebound/ledgercore/types"
)

func newSyncTestNetwork(t *testing.T, h host.Host) *p2p.Network {
	t.Helper()
	n := p2p.NewNetwork(h)
	require.NoError(t, n.RegisterBuiltinStreams())
	require.NoError(t, n.Start())
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func newConnectedHosts(t *testing.T) (host.Host, host.Host) {
	t.Helper()
	h1, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	h2, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h1.Close() })
	t.Cleanup(func() { _ = h2.Close() })

	err = h1.Connect(context.Background(), peer.AddrInfo{ID: h2.ID(), Addrs: h2.Addrs()})
	require.NoError(t, err)
	return h1, h2
}

func makeTestValidatorSet(t *testing.T, powers ...int64) (*types.ValidatorSet, []*types.KeyPair) {
	t.Helper()
	validators := make([]*types.Validator, len(powers))
	keys := make([]*types.KeyPair, len(powers))
	for i, p := range powers {
		kp, err := types.GenerateKeyPair()
		require.NoError(t, err)
		keys[i] = kp
		validators[i] = &types.Validator{Address: kp.Address(), PublicKey: kp.PublicKey, VotingPower: p}
	}
	vs, err := types.NewValidatorSet(validators)
	require.NoError(t, err)
	return vs, keys
}

func buildCommit(vs *types.ValidatorSet, keys []*types.KeyPair, height types.Height, blockHash types.Hash) *types.Commit {
	sigs := make([]types.CommitSig, len(keys))
	for i, kp := range keys {
		v := vs.GetByAddress(kp.Address())
		vote := types.Vote{Type: types.VoteTypePrecommit, Height: height, Round: 0, BlockHash: blockHash}
		sigs[i] = types.CommitSig{ValidatorIndex: v.Index, Signature: kp.Sign(vote.SignBytes())}
	}
	return &types.Commit{Height: height, Round: 0, BlockHash: blockHash, Signatures: sigs}
}

// chainOf builds a store seeded with genesis plus n further empty blocks,
// signed by vs/keys, all carrying the same validator set forward.
func chainOf(t *testing.T, n int) (blockstore.BlockStore, *types.ValidatorSet, []*types.KeyPair) {
	t.Helper()
	store := blockstore.NewMemoryBlockStore()
	vs, keys := makeTestValidatorSet(t, 1, 1, 1)

	genesis, _, err := types.GenesisBlock(types.GenesisConfig{
		Timestamp:      time.Now().UTC(),
		Validators:     []*types.Validator{vs.GetByIndex(0), vs.GetByIndex(1), vs.GetByIndex(2)},
		InitialAppHash: types.EmptyHash(),
		AppState:       []byte("state"),
	})
	require.NoError(t, err)
	require.NoError(t, store.Put(genesis))

	parent := genesis
	for i := 1; i <= n; i++ {
		height := types.Height(i)
		commit := buildCommit(vs, keys, height-1, parent.Hash())
		body := types.BlockBody{
			Transactions:       nil,
			LastBlockConsensus: commit,
			NextValidatorSet:   vs,
		}
		header := types.BlockHeader{
			Height:                 height,
			Timestamp:              parent.Header.Timestamp.Add(time.Second),
			LastBlockHash:          parent.Hash(),
			TransactionRoot:        body.Transactions.Root(),
			LastBlockConsensusRoot: body.LastBlockConsensus.Hash(),
			NextValidatorSetRoot:   body.NextValidatorSet.Hash(),
			AppStateHash:           types.EmptyHash(),
		}
		block := &types.Block{Header: header, Body: body}
		require.NoError(t, store.Put(block))
		parent = block
	}
	return store, vs, keys
}

func TestNewSynchronizer(t *testing.T) {
	store := blockstore.NewMemoryBlockStore()
	s := NewSynchronizer(store, nil, time.Second, 50)
	require.NotNil(t, s)
}

func TestSynchronizer_IsIdleWithNoPeers(t *testing.T) {
	store, _, _ := chainOf(t, 2)
	s := NewSynchronizer(store, nil, time.Second, 50)
	require.True(t, s.IsIdle())
}

func TestSynchronizer_TargetHeightTracksPeers(t *testing.T) {
	store := blockstore.NewMemoryBlockStore()
	s := NewSynchronizer(store, nil, time.Second, 50)

	s.UpdatePeerHeight(peer.ID("p1"), 5)
	s.UpdatePeerHeight(peer.ID("p2"), 9)
	require.Equal(t, types.Height(9), s.TargetHeight())

	s.OnPeerDisconnected(peer.ID("p2"))
	require.Equal(t, types.Height(5), s.TargetHeight())
}

func TestSynchronizer_NextPeerRoundRobins(t *testing.T) {
	store := blockstore.NewMemoryBlockStore()
	s := NewSynchronizer(store, nil, time.Second, 50)

	candidates := []peer.ID{"p1", "p2", "p3"}
	seen := map[peer.ID]int{}
	for i := 0; i < 6; i++ {
		seen[s.nextPeer(candidates)]++
	}
	require.Equal(t, 2, seen["p1"])
	require.Equal(t, 2, seen["p2"])
	require.Equal(t, 2, seen["p3"])
}

func TestSynchronizer_ServeHeadersAndBodies(t *testing.T) {
	store, _, _ := chainOf(t, 3)
	s := NewSynchronizer(store, nil, time.Second, 50)

	resp, err := s.serveHeaders(&getHeadersMsg{From: 1, Count: 10})
	require.NoError(t, err)
	require.NotEmpty(t, resp)

	resp, err = s.serveBodies(&getBodiesMsg{Heights: []types.Height{1, 2, 3}})
	require.NoError(t, err)
	require.NotEmpty(t, resp)
}

func TestSynchronizer_FetchBatchCatchesUpFromPeer(t *testing.T) {
	aheadStore, _, _ := chainOf(t, 3)
	// The behind node shares the ahead node's genesis, so the fetched
	// headers link to its local tip.
	behindStore := blockstore.NewMemoryBlockStore()
	genesisHeader, err := aheadStore.HeaderOf(0)
	require.NoError(t, err)
	genesisBody, err := aheadStore.BodyOf(0)
	require.NoError(t, err)
	require.NoError(t, behindStore.Put(&types.Block{Header: *genesisHeader, Body: *genesisBody}))

	h1, h2 := newConnectedHosts(t)
	aheadNet := newSyncTestNetwork(t, h1)
	behindNet := newSyncTestNetwork(t, h2)

	ahead := NewSynchronizer(aheadStore, aheadNet, time.Hour, 10)
	require.NoError(t, ahead.RegisterStream())

	behind := NewSynchronizer(behindStore, behindNet, time.Hour, 10)
	require.NoError(t, behind.RegisterStream())

	var applied []types.Height
	behind.SetOnBlock(func(b *types.Block) { applied = append(applied, b.Header.Height) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, behind.fetchBatch(ctx, h1.ID(), 1))
	require.Equal(t, types.Height(3), behindStore.Height())
	require.Equal(t, []types.Height{1, 2, 3}, applied)
}

func TestSynchronizer_RegisterStream(t *testing.T) {
	store := blockstore.NewMemoryBlockStore()
	h, err := libp2p.New(libp2p.NoListenAddrs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	net := p2p.NewNetwork(h)
	require.NoError(t, net.RegisterBuiltinStreams())

	s := NewSynchronizer(store, net, time.Second, 50)
	require.NoError(t, s.RegisterStream())
	require.True(t, net.HasStream(p2p.StreamBlockSync))
}
