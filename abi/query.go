package abi

import "github.com/forgebound/ledgercore/types"

// QueryResult is the response to Dapp.Query.
type QueryResult struct {
	// Code indicates success (0) or failure (non-zero).
	Code ResultCode

	// Error provides a human-readable error message if Code != 0.
	Error error

	// Key is the key that was queried.
	Key []byte

	// Value is the value at the queried key.
	Value []byte

	// Proof is the merkle proof against the application state root at
	// Height, present only when the caller requested one and the
	// application's state store can produce one.
	Proof *Proof

	// Height is the height at which the query was executed.
	Height types.Height
}

// IsOK returns true if the query succeeded.
func (r *QueryResult) IsOK() bool {
	return r != nil && r.Code.IsOK()
}

// Proof is a merkle proof for verifying application state, backed by the
// state store's own proof representation (see statestore.GetStateProof).
type Proof struct {
	// Ops are the proof operations that compose into a full verification,
	// applied in order, outermost-first.
	Ops []ProofOp
}

// ProofOp is a single operation in a Proof.
type ProofOp struct {
	// Type identifies the proof operation's verification algorithm (e.g.
	// "ics23:iavl").
	Type string

	// Key is the key this operation applies to.
	Key []byte

	// Data contains the encoded proof for this operation.
	Data []byte
}
