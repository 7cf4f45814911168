package types

import "errors"

// Node-level sentinel errors, matched with errors.Is by callers across
// package boundaries. See SPEC_FULL.md §7 for the handling policy attached
// to each.
var (
	// ErrNotFound is returned by store reads past the tip or for unknown
	// keys. Peer handlers treat it as "respond empty", not as a fault.
	ErrNotFound = errors.New("not found")

	// ErrBadSignature is returned when a transaction's or vote's signature
	// fails verification.
	ErrBadSignature = errors.New("bad signature")

	// ErrAppRejected is returned when the dapp's validateTransaction
	// callback rejects a transaction.
	ErrAppRejected = errors.New("rejected by application")

	// ErrInvalidProposal is returned for a structurally or cryptographically
	// invalid consensus proposal.
	ErrInvalidProposal = errors.New("invalid proposal")

	// ErrInvalidVote is returned for a structurally or cryptographically
	// invalid consensus vote.
	ErrInvalidVote = errors.New("invalid vote")

	// ErrForeignChain is returned when a peer's handshake genesis hash does
	// not match the local genesis hash.
	ErrForeignChain = errors.New("foreign chain")

	// ErrHandshakeTimeout is returned when a peer handshake does not
	// complete within the configured deadline.
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrExecutorFault wraps a programmer or I/O error surfaced by the
	// dapp during block execution. It is always fatal.
	ErrExecutorFault = errors.New("executor fault")

	// ErrStoreClosed is returned by a BlockStore that has been closed, or
	// by NoOpBlockStore, whose writes always fail.
	ErrStoreClosed = errors.New("store closed")

	// ErrInvalidTx is returned when a nil or structurally malformed
	// transaction is offered to the pool.
	ErrInvalidTx = errors.New("invalid transaction")

	// ErrTxTooLarge is returned when a transaction exceeds the pool's
	// configured per-transaction size limit.
	ErrTxTooLarge = errors.New("transaction too large")

	// ErrTxAlreadyExists is returned when a transaction with the same
	// hash is already admitted to the pool.
	ErrTxAlreadyExists = errors.New("transaction already exists")

	// ErrTxNotFound is returned when a transaction hash is not present
	// in the pool, or has expired.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrMempoolFull is returned when the pool is at its size or byte
	// limit and no lower-priority entry could be evicted to make room.
	ErrMempoolFull = errors.New("mempool full")

	// ErrMempoolClosed is returned by NoOpMempool, and by a pool that has
	// been shut down.
	ErrMempoolClosed = errors.New("mempool closed")

	// ErrNoValidator is returned by the pool's default admission check:
	// until the node wires a validateTransaction callback, every
	// transaction is rejected rather than admitted unconditionally.
	ErrNoValidator = errors.New("no transaction validator configured")

	// ErrNodeAlreadyStarted is returned by Start on a node that is already
	// running.
	ErrNodeAlreadyStarted = errors.New("node already started")

	// ErrNodeNotStarted is returned by operations that require a running
	// node, and by Stop on a node that was never started.
	ErrNodeNotStarted = errors.New("node not started")

	// ErrPeerNotFound is returned when a peer cannot be found.
	ErrPeerNotFound = errors.New("peer not found")
)
