package pex

import (
	"context"
	"testing"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/forgebound/ledgercore/p2p"
	"github.com/forgebound/ledgercore/wire"
)

func newPexTestNetwork(t *testing.T) *p2p.Network {
	t.Helper()
	h, err := libp2p.New(libp2p.NoListenAddrs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	net := p2p.NewNetwork(h)
	require.NoError(t, net.RegisterBuiltinStreams())
	return net
}

func TestNewReactor(t *testing.T) {
	ab := NewAddressBook("")
	net := newPexTestNetwork(t)
	reactor := NewReactor(true, 30*time.Second, 100, ab, net, 10)

	require.NotNil(t, reactor)
	require.True(t, reactor.enabled)
	require.Equal(t, 30*time.Second, reactor.requestInterval)
	require.Equal(t, 100, reactor.maxAddresses)
	require.Equal(t, ab, reactor.addressBook)
	require.Equal(t, 10, reactor.maxOutbound)
}

func TestReactor_RegisterStream(t *testing.T) {
	ab := NewAddressBook("")
	net := newPexTestNetwork(t)
	reactor := NewReactor(true, time.Second, 100, ab, net, 10)

	require.NoError(t, reactor.RegisterStream())
	require.True(t, net.HasStream(p2p.StreamPEX))
}

func TestReactor_StartStop(t *testing.T) {
	ab := NewAddressBook("")
	net := newPexTestNetwork(t)
	reactor := NewReactor(true, 100*time.Millisecond, 100, ab, net, 10)

	require.NoError(t, reactor.Start())
	require.True(t, reactor.IsRunning())

	require.NoError(t, reactor.Stop())
	require.False(t, reactor.IsRunning())
}

func TestReactor_StartDisabled(t *testing.T) {
	ab := NewAddressBook("")
	net := newPexTestNetwork(t)
	reactor := NewReactor(false, 100*time.Millisecond, 100, ab, net, 10)

	require.NoError(t, reactor.Start())
	require.False(t, reactor.IsRunning())
}

func TestReactor_HandleInvalidData(t *testing.T) {
	ab := NewAddressBook("")
	net := newPexTestNetwork(t)
	reactor := NewReactor(true, time.Second, 100, ab, net, 10)

	resp, err := reactor.handle(peer.ID("test-peer"), []byte{0xff, 0xff})
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestReactor_HandleAddressRequest(t *testing.T) {
	ab := NewAddressBook("")
	ab.AddPeer(peer.ID("peer-1"), "/ip4/127.0.0.1/tcp/26656", "peer-1", 50)
	ab.AddPeer(peer.ID("peer-2"), "/ip4/127.0.0.2/tcp/26656", "peer-2", 60)

	net := newPexTestNetwork(t)
	reactor := NewReactor(true, time.Second, 100, ab, net, 10)

	lastSeen := time.Now().Add(-24 * time.Hour).Unix()
	resp, err := reactor.handle(peer.ID("requester"), wire.Encode(&addressRequestMsg{LastSeen: lastSeen}))
	require.NoError(t, err)

	_, msg, err := wire.Decode(resp, pexDecodeFactory)
	require.NoError(t, err)
	addrs := msg.(*addressResponseMsg)
	require.Len(t, addrs.Peers, 2)
}

func TestReactor_HandleAddressRequestExcludesRequester(t *testing.T) {
	ab := NewAddressBook("")
	requesterID := peer.ID("requester")
	ab.AddPeer(requesterID, "/ip4/127.0.0.1/tcp/26656", requesterID.String(), 50)
	ab.AddPeer(peer.ID("other-peer"), "/ip4/127.0.0.2/tcp/26656", "other-peer", 60)

	net := newPexTestNetwork(t)
	reactor := NewReactor(true, time.Second, 100, ab, net, 10)

	lastSeen := time.Now().Add(-24 * time.Hour).Unix()
	resp, err := reactor.handle(requesterID, wire.Encode(&addressRequestMsg{LastSeen: lastSeen}))
	require.NoError(t, err)

	_, msg, err := wire.Decode(resp, pexDecodeFactory)
	require.NoError(t, err)
	addrs := msg.(*addressResponseMsg)
	require.Len(t, addrs.Peers, 1)
	require.Equal(t, "other-peer", addrs.Peers[0].NodeID)
}

func TestReactor_RequestAddressesEndToEnd(t *testing.T) {
	h1, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h1.Close() })
	h2, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h2.Close() })

	require.NoError(t, h1.Connect(context.Background(), peer.AddrInfo{ID: h2.ID(), Addrs: h2.Addrs()}))

	serverNet := p2p.NewNetwork(h1)
	require.NoError(t, serverNet.RegisterBuiltinStreams())
	require.NoError(t, serverNet.Start())
	t.Cleanup(func() { _ = serverNet.Stop() })

	// The advertised NodeID is a real peer ID's string form, which
	// RequestAddresses decodes back with peer.Decode.
	h3, err := libp2p.New(libp2p.NoListenAddrs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h3.Close() })
	peerA := h3.ID()

	serverBook := NewAddressBook("")
	serverBook.AddPeer(peerA, "/ip4/10.0.0.1/tcp/26656", peerA.String(), 10)
	serverReactor := NewReactor(true, time.Second, 100, serverBook, serverNet, 10)
	require.NoError(t, serverReactor.RegisterStream())

	clientNet := p2p.NewNetwork(h2)
	require.NoError(t, clientNet.RegisterBuiltinStreams())
	require.NoError(t, clientNet.Start())
	t.Cleanup(func() { _ = clientNet.Stop() })

	clientBook := NewAddressBook("")
	clientReactor := NewReactor(true, time.Second, 100, clientBook, clientNet, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, clientReactor.RequestAddresses(ctx, h1.ID()))
	require.True(t, clientBook.HasPeer(peerA))
}

func TestReactor_OnPeerConnected(t *testing.T) {
	ab := NewAddressBook("")
	net := newPexTestNetwork(t)
	reactor := NewReactor(true, time.Second, 100, ab, net, 10)

	peerID := peer.ID("new-peer")
	multiaddr := "/ip4/127.0.0.1/tcp/26656"

	reactor.OnPeerConnected(peerID, multiaddr)

	require.True(t, ab.HasPeer(peerID))
	entry, ok := ab.GetPeer(peerID)
	require.True(t, ok)
	require.Equal(t, multiaddr, entry.Multiaddr)
}

func TestReactor_OnPeerDisconnected(t *testing.T) {
	ab := NewAddressBook("")
	net := newPexTestNetwork(t)
	reactor := NewReactor(true, time.Second, 100, ab, net, 10)

	peerID := peer.ID("peer")
	ab.AddPeer(peerID, "/ip4/127.0.0.1/tcp/26656", peerID.String(), 50)
	initial, _ := ab.GetPeer(peerID)

	time.Sleep(10 * time.Millisecond)
	reactor.OnPeerDisconnected(peerID)

	entry, ok := ab.GetPeer(peerID)
	require.True(t, ok)
	require.GreaterOrEqual(t, entry.LastSeen, initial.LastSeen)
}

func TestReactor_GetAddressBook(t *testing.T) {
	ab := NewAddressBook("")
	net := newPexTestNetwork(t)
	reactor := NewReactor(true, time.Second, 100, ab, net, 10)

	require.Equal(t, ab, reactor.GetAddressBook())
}
