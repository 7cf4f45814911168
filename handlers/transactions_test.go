package handlers

import (
	"context"
	"testing"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/forgebound/ledgercore/mempool"
	"github.com/forgebound/ledgercore/p2p"
)

func newTestNetwork(t *testing.T) *p2p.Network {
	t.Helper()
	h, err := libp2p.New(libp2p.NoListenAddrs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	n := p2p.NewNetwork(h)
	require.NoError(t, n.RegisterBuiltinStreams())
	return n
}

func newTestPool(t *testing.T) mempool.Mempool {
	t.Helper()
	mp := mempool.NewTTLMempool(mempool.TTLMempoolConfig{
		MaxTxs:          100,
		MaxBytes:        1 << 20,
		TTL:             time.Hour,
		CleanupInterval: time.Hour,
	})
	mp.SetTxValidator(mempool.AcceptAllTxValidator)
	return mp
}

func TestNewTransactionsResponder(t *testing.T) {
	mp := newTestPool(t)
	net := newTestNetwork(t)
	r := NewTransactionsResponder(mp, net)
	require.NotNil(t, r)
}

func TestTransactionsResponder_RegisterStream(t *testing.T) {
	mp := newTestPool(t)
	net := newTestNetwork(t)
	r := NewTransactionsResponder(mp, net)

	require.NoError(t, r.RegisterStream())
	require.True(t, net.HasStream(p2p.StreamTransactions))
}

func TestTransactionsResponder_HandleAdmitsIntoPool(t *testing.T) {
	mp := newTestPool(t)
	net := newTestNetwork(t)
	r := NewTransactionsResponder(mp, net)

	resp, err := r.handle(peer.ID("peer1"), []byte("tx-data"))
	require.NoError(t, err)
	require.Nil(t, resp)
	require.Equal(t, 1, mp.Size())
}

func TestTransactionsResponder_HandleIgnoresDuplicate(t *testing.T) {
	mp := newTestPool(t)
	net := newTestNetwork(t)
	r := NewTransactionsResponder(mp, net)

	_, err := r.handle(peer.ID("peer1"), []byte("tx-data"))
	require.NoError(t, err)
	_, err = r.handle(peer.ID("peer2"), []byte("tx-data"))
	require.NoError(t, err)
	require.Equal(t, 1, mp.Size())
}

func TestTransactionsResponder_Submit(t *testing.T) {
	mp := newTestPool(t)
	net := newTestNetwork(t)
	r := NewTransactionsResponder(mp, net)

	err := r.Submit(context.Background(), []byte("local-tx"))
	require.NoError(t, err)
	require.Equal(t, 1, mp.Size())
}
