package abi

import (
	"context"
	"errors"

	"github.com/forgebound/ledgercore/types"
)

// BaseDapp provides fail-closed default implementations of Dapp.
// Applications embed this and override only the methods their state
// machine needs; every unoverridden method rejects rather than silently
// accepting.
type BaseDapp struct{}

var _ Dapp = (*BaseDapp)(nil)

// InitChain is a no-op by default.
func (*BaseDapp) InitChain(ctx context.Context, validators []*types.Validator, appState []byte) error {
	return nil
}

// ExecuteTransaction returns an error by default, which block execution
// treats as a fatal fault rather than a rejected transaction.
func (*BaseDapp) ExecuteTransaction(ctx context.Context, tx *types.Transaction) (*TxResult, error) {
	return nil, errors.New("ExecuteTransaction not implemented: application must override this method")
}

// ValidateTransaction rejects every transaction by default.
func (*BaseDapp) ValidateTransaction(ctx context.Context, tx *types.Transaction) bool {
	return false
}

// SelectTransactions selects nothing by default.
func (*BaseDapp) SelectTransactions(ctx context.Context, candidates []*types.Transaction) []*types.Transaction {
	return nil
}

// EndBlock returns no validator updates by default.
func (*BaseDapp) EndBlock(ctx context.Context, height types.Height) ([]*types.Validator, error) {
	return nil, nil
}

// AppStateHash returns the empty hash by default. Applications MUST
// override this to return a real state root.
func (*BaseDapp) AppStateHash(ctx context.Context) types.Hash {
	return types.EmptyHash()
}

// Query rejects every query by default.
func (*BaseDapp) Query(ctx context.Context, path string, data []byte, height types.Height) (*QueryResult, error) {
	return nil, errors.New("Query not implemented: application must override this method")
}

// AcceptAllDapp accepts everything. For tests only.
type AcceptAllDapp struct{}

var _ Dapp = (*AcceptAllDapp)(nil)

// InitChain accepts genesis initialization.
func (*AcceptAllDapp) InitChain(ctx context.Context, validators []*types.Validator, appState []byte) error {
	return nil
}

// ExecuteTransaction accepts every transaction.
func (*AcceptAllDapp) ExecuteTransaction(ctx context.Context, tx *types.Transaction) (*TxResult, error) {
	return &TxResult{Code: CodeOK}, nil
}

// ValidateTransaction accepts every transaction.
func (*AcceptAllDapp) ValidateTransaction(ctx context.Context, tx *types.Transaction) bool {
	return true
}

// SelectTransactions returns candidates unchanged.
func (*AcceptAllDapp) SelectTransactions(ctx context.Context, candidates []*types.Transaction) []*types.Transaction {
	return candidates
}

// EndBlock returns no validator updates.
func (*AcceptAllDapp) EndBlock(ctx context.Context, height types.Height) ([]*types.Validator, error) {
	return nil, nil
}

// AppStateHash returns the empty hash.
func (*AcceptAllDapp) AppStateHash(ctx context.Context) types.Hash {
	return types.EmptyHash()
}

// Query returns an empty successful result.
func (*AcceptAllDapp) Query(ctx context.Context, path string, data []byte, height types.Height) (*QueryResult, error) {
	return &QueryResult{Code: CodeOK, Height: height}, nil
}
