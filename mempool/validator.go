package mempool

import "github.com/forgebound/ledgercore/types"

// TxValidator checks an admission candidate against application state. Set
// via SetTxValidator; the node wires the dapp's ValidateTransaction here
// once it has one.
type TxValidator func(tx []byte) error

// DefaultTxValidator rejects every transaction. It is the validator every
// pool starts with, so admission is fail-closed until the node wires a
// real one.
func DefaultTxValidator(_ []byte) error {
	return types.ErrNoValidator
}

// AcceptAllTxValidator admits every transaction unconditionally. Used by
// tests and by roles that trust their transaction source (e.g. a
// single-validator devnet) rather than gate on application state.
func AcceptAllTxValidator(_ []byte) error {
	return nil
}
