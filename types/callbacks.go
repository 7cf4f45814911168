package types

import "github.com/libp2p/go-libp2p/core/peer"

// PeerInfo describes a connected peer once its handshake has completed.
type PeerInfo struct {
	NodeID          string
	ChainID         string
	ProtocolVersion int32
	Height          Height
}

// NodeCallbacks lets an embedder observe node lifecycle events without
// coupling to the handler/reactor types that produce them. Every field is
// optional; a nil callback is a no-op. Use the Invoke* helpers rather than
// calling the fields directly, since those are nil-safe on a nil receiver.
type NodeCallbacks struct {
	OnTxAdded   func(txHash []byte, tx []byte)
	OnTxRemoved func(txHash []byte, reason string)

	OnBlockCommitted func(height Height, hash Hash)

	// OnPeerConnected fires once a transport-level connection is
	// established, before the handshake completes. isOutbound reports
	// whether the local node dialed the peer.
	OnPeerConnected func(peerID peer.ID, isOutbound bool)
	// OnPeerHandshaked fires once the peer's handshake has been accepted.
	OnPeerHandshaked func(peerID peer.ID, info *PeerInfo)
	OnPeerDisconnected func(peerID peer.ID)
	OnPeerPenalized    func(peerID peer.ID, points int64, reason string)

	// OnConsensusMessage is called by InvokeConsensusMessage. No component
	// in this module calls InvokeConsensusMessage, so it does not fire.
	OnConsensusMessage func(peerID peer.ID, data []byte)

	OnSyncStarted   func(startHeight, targetHeight Height)
	OnSyncProgress  func(currentHeight, targetHeight Height)
	OnSyncCompleted func(height Height)
}

// InvokeTxAdded safely invokes OnTxAdded.
func (c *NodeCallbacks) InvokeTxAdded(txHash, tx []byte) {
	if c != nil && c.OnTxAdded != nil {
		c.OnTxAdded(txHash, tx)
	}
}

// InvokeTxRemoved safely invokes OnTxRemoved.
func (c *NodeCallbacks) InvokeTxRemoved(txHash []byte, reason string) {
	if c != nil && c.OnTxRemoved != nil {
		c.OnTxRemoved(txHash, reason)
	}
}

// InvokeBlockCommitted safely invokes OnBlockCommitted.
func (c *NodeCallbacks) InvokeBlockCommitted(height Height, hash Hash) {
	if c != nil && c.OnBlockCommitted != nil {
		c.OnBlockCommitted(height, hash)
	}
}

// InvokePeerConnected safely invokes OnPeerConnected.
func (c *NodeCallbacks) InvokePeerConnected(peerID peer.ID, isOutbound bool) {
	if c != nil && c.OnPeerConnected != nil {
		c.OnPeerConnected(peerID, isOutbound)
	}
}

// InvokePeerHandshaked safely invokes OnPeerHandshaked.
func (c *NodeCallbacks) InvokePeerHandshaked(peerID peer.ID, info *PeerInfo) {
	if c != nil && c.OnPeerHandshaked != nil {
		c.OnPeerHandshaked(peerID, info)
	}
}

// InvokePeerDisconnected safely invokes OnPeerDisconnected.
func (c *NodeCallbacks) InvokePeerDisconnected(peerID peer.ID) {
	if c != nil && c.OnPeerDisconnected != nil {
		c.OnPeerDisconnected(peerID)
	}
}

// InvokePeerPenalized safely invokes OnPeerPenalized.
func (c *NodeCallbacks) InvokePeerPenalized(peerID peer.ID, points int64, reason string) {
	if c != nil && c.OnPeerPenalized != nil {
		c.OnPeerPenalized(peerID, points, reason)
	}
}

// InvokeConsensusMessage safely invokes OnConsensusMessage.
func (c *NodeCallbacks) InvokeConsensusMessage(peerID peer.ID, data []byte) {
	if c != nil && c.OnConsensusMessage != nil {
		c.OnConsensusMessage(peerID, data)
	}
}

// InvokeSyncStarted safely invokes OnSyncStarted.
func (c *NodeCallbacks) InvokeSyncStarted(startHeight, targetHeight Height) {
	if c != nil && c.OnSyncStarted != nil {
		c.OnSyncStarted(startHeight, targetHeight)
	}
}

// InvokeSyncProgress safely invokes OnSyncProgress.
func (c *NodeCallbacks) InvokeSyncProgress(currentHeight, targetHeight Height) {
	if c != nil && c.OnSyncProgress != nil {
		c.OnSyncProgress(currentHeight, targetHeight)
	}
}

// InvokeSyncCompleted safely invokes OnSyncCompleted.
func (c *NodeCallbacks) InvokeSyncCompleted(height Height) {
	if c != nil && c.OnSyncCompleted != nil {
		c.OnSyncCompleted(height)
	}
}
