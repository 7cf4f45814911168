package abi

// TxResult is returned from Dapp.ExecuteTransaction. Code/Error describe
// whether the transaction itself succeeded; a non-nil error from
// ExecuteTransaction is a separate, fatal signal (see types.ErrExecutorFault)
// and is orthogonal to this result.
type TxResult struct {
	// Code indicates success (0) or failure (non-zero). A failing code
	// still means the transaction is included in the block — only the
	// application's view of its effect differs.
	Code ResultCode

	// Error provides a human-readable error message if Code != 0.
	Error error

	// GasUsed is the computation units consumed during execution.
	GasUsed uint64

	// Events are the events emitted during execution.
	Events []Event

	// Data is optional return data from execution.
	Data []byte
}

// IsOK returns true if the execution succeeded.
func (r *TxResult) IsOK() bool {
	return r != nil && r.Code.IsOK()
}
