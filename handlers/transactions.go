package handlers

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/forgebound/ledgercore/mempool"
	"github.com/forgebound/ledgercore/p2p"
	"github.com/forgebound/ledgercore/types"
)

// TransactionsResponder gossips pool admissions: it feeds inbound
// transactions into the mempool and rebroadcasts anything it newly
// admitted to the rest of the connected peers.
type TransactionsResponder struct {
	pool    mempool.Mempool
	network *p2p.Network
}

// NewTransactionsResponder builds a responder over pool, gossiping
// admitted transactions through network.
func NewTransactionsResponder(pool mempool.Mempool, network *p2p.Network) *TransactionsResponder {
	return &TransactionsResponder{pool: pool, network: network}
}

// RegisterStream installs the transaction gossip handler on the network.
func (r *TransactionsResponder) RegisterStream() error {
	return r.network.RegisterStream(p2p.StreamConfig{
		Name:           p2p.StreamTransactions,
		Encrypted:      true,
		Owner:          "transactions",
		RateLimit:      1000,
		MaxMessageSize: 10 << 20,
	}, r.handle)
}

// handle admits an inbound transaction into the pool and rebroadcasts it.
// A rejection (already known, pool full, validator reject) is not an
// error: the sending peer just loses nothing more than the gossip.
func (r *TransactionsResponder) handle(peerID peer.ID, data []byte) ([]byte, error) {
	if err := r.pool.AddTx(data); err != nil {
		return nil, nil
	}
	hash := types.HashTx(data)
	_ = r.network.PeerManager().MarkTxReceived(peerID, hash)
	go r.network.BroadcastTx(context.Background(), hash, data)
	return nil, nil
}

// Submit admits a locally originated transaction into the pool and
// gossips it to every peer that's expected not to have seen it yet.
func (r *TransactionsResponder) Submit(ctx context.Context, tx []byte) error {
	if err := r.pool.AddTx(tx); err != nil {
		return err
	}
	r.network.BroadcastTx(ctx, types.HashTx(tx), tx)
	return nil
}
