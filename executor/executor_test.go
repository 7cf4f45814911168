package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forgebound/ledgercore/abi"
	"github.com/forgebound/ledgercore/blockstore"
	"github.com/forgebound/ledgercore/codec"
	"github.com/forgebound/ledgercore/config"
	"github.com/forgebound/ledgercore/mempool"
	"github.com/forgebound/ledgercore/types"
	"github.com/forgebound/ledgercore/wire"
)

// newTestPool builds a real TTLMempool through the same constructor the
// node uses, with a validator that accepts everything, and stops its
// cleanup goroutine when the test ends.
func newTestPool(t *testing.T) mempool.Mempool {
	t.Helper()
	pool := mempool.NewMempool(config.DefaultConfig().Mempool)
	pool.SetTxValidator(mempool.AcceptAllTxValidator)
	ttl, ok := pool.(*mempool.TTLMempool)
	require.True(t, ok)
	t.Cleanup(ttl.Stop)
	return pool
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

// buildCommit signs a quorum precommit for blockHash at height under vs
// using keys, and returns the resulting Commit.
func buildCommit(vs *types.ValidatorSet, keys []*types.KeyPair, height types.Height, blockHash types.Hash) *types.Commit {
	sigs := make([]types.CommitSig, len(keys))
	for i, kp := range keys {
		v := vs.GetByAddress(kp.Address())
		vote := types.Vote{Type: types.VoteTypePrecommit, Height: height, Round: 0, BlockHash: blockHash}
		sigs[i] = types.CommitSig{ValidatorIndex: v.Index, Signature: kp.Sign(vote.SignBytes())}
	}
	return &types.Commit{Height: height, Round: 0, BlockHash: blockHash, Signatures: sigs}
}

func testGenesisConfig(t *testing.T, validators []*types.Validator) types.GenesisConfig {
	t.Helper()
	return types.GenesisConfig{
		Timestamp:      time.Now().UTC(),
		Validators:     validators,
		InitialAppHash: types.EmptyHash(),
		AppState:       []byte("genesis app state"),
	}
}

func newTestExecutor(t *testing.T, dapp abi.Dapp, pool Pool) (*Executor, blockstore.BlockStore, *types.ValidatorSet, []*types.KeyPair) {
	t.Helper()
	store := blockstore.NewMemoryBlockStore()
	vs, keys := makeTestValidatorSet(t, 1, 1, 1, 1)

	validators := make([]*types.Validator, vs.Count())
	for i := 0; i < vs.Count(); i++ {
		validators[i] = vs.GetByIndex(uint16(i))
	}
	cfg := testGenesisConfig(t, validators)

	ex := NewExecutor(store, dapp, pool, 0)
	got, err := ex.Initialize(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, vs.Count(), got.Count())
	return ex, store, got, keys
}

func encodeTx(t *testing.T, tx *types.Transaction) []byte {
	t.Helper()
	w := wire.GetWriter()
	defer wire.PutWriter(w)
	codec.MarshalTransaction(w, tx)
	out := make([]byte, len(w.Bytes()))
	copy(out, w.Bytes())
	return out
}

func TestExecutorInitializeWritesGenesis(t *testing.T) {
	ex, store, vs, _ := newTestExecutor(t, &abi.AcceptAllDapp{}, newTestPool(t))
	require.Equal(t, types.Height(0), store.Height())
	require.Equal(t, vs.Count(), ex.CurrentValidatorSet().Count())
	require.Equal(t, types.Height(0), store.ExecutedHeight())
}

func TestExecutorInitializeResumesFromExistingGenesis(t *testing.T) {
	store := blockstore.NewMemoryBlockStore()
	vs, _ := makeTestValidatorSet(t, 1, 1)
	validators := []*types.Validator{vs.GetByIndex(0), vs.GetByIndex(1)}
	cfg := testGenesisConfig(t, validators)

	first := NewExecutor(store, &abi.AcceptAllDapp{}, newTestPool(t), 0)
	_, err := first.Initialize(context.Background(), cfg)
	require.NoError(t, err)

	second := NewExecutor(store, &abi.AcceptAllDapp{}, newTestPool(t), 0)
	got, err := second.Initialize(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 2, got.Count())
}

func TestExecutorCreateProposalAndCommit(t *testing.T) {
	pool := newTestPool(t)
	ex, store, vs, keys := newTestExecutor(t, &abi.AcceptAllDapp{}, pool)

	kp, err := types.GenerateKeyPair()
	require.NoError(t, err)
	tx := types.NewTransaction(1, []byte("payload"))
	tx.Sign(kp)
	require.NoError(t, pool.AddTx(encodeTx(t, tx)))

	block, err := ex.CreateProposalBlock(1)
	require.NoError(t, err)
	require.Equal(t, types.Height(1), block.Header.Height)
	require.Len(t, block.Body.Transactions, 1)
	require.True(t, block.Header.AppStateHash.Equal(store.AppStateHash()))

	require.NoError(t, ex.ValidateBlock(block))

	commit := buildCommit(vs, keys, 1, block.Hash())
	nextVS, err := ex.Commit(block, commit)
	require.NoError(t, err)
	require.Equal(t, vs.Count(), nextVS.Count())

	require.Equal(t, types.Height(1), store.Height())
	require.Equal(t, types.Height(1), store.ExecutedHeight())
	require.False(t, pool.HasTx(types.HashTx(encodeTx(t, tx))))
}

func TestExecutorValidateBlockRejectsBrokenLinkage(t *testing.T) {
	pool := newTestPool(t)
	ex, _, _, _ := newTestExecutor(t, &abi.AcceptAllDapp{}, pool)

	block, err := ex.CreateProposalBlock(1)
	require.NoError(t, err)
	block.Header.LastBlockHash = types.HashBytes([]byte("not the genesis hash"))
	block.Header.TransactionRoot = block.Body.Transactions.Root()

	require.Error(t, ex.ValidateBlock(block))
}

func TestExecutorValidateBlockRejectsWhenApplicationRejectsTransaction(t *testing.T) {
	pool := newTestPool(t)
	ex, _, _, _ := newTestExecutor(t, &abi.BaseDapp{}, pool)

	kp, err := types.GenerateKeyPair()
	require.NoError(t, err)
	tx := types.NewTransaction(1, []byte("payload"))
	tx.Sign(kp)
	require.NoError(t, pool.AddTx(encodeTx(t, tx)))

	block, err := ex.CreateProposalBlock(1)
	require.NoError(t, err)
	require.Empty(t, block.Body.Transactions, "BaseDapp.SelectTransactions returns nothing")

	block.Body.Transactions = types.TransactionList{tx}
	block.Header.TransactionRoot = block.Body.Transactions.Root()
	require.ErrorIs(t, ex.ValidateBlock(block), types.ErrInvalidTx)
}

func TestExecutorCommitAdvancesValidatorsOnEndBlockUpdates(t *testing.T) {
	pool := newTestPool(t)

	newVal, err := types.GenerateKeyPair()
	require.NoError(t, err)
	dapp := &addValidatorDapp{added: &types.Validator{Address: newVal.Address(), PublicKey: newVal.PublicKey, VotingPower: 1}}

	ex, _, vs, keys := newTestExecutor(t, dapp, pool)

	block, err := ex.CreateProposalBlock(1)
	require.NoError(t, err)
	commit := buildCommit(vs, keys, 1, block.Hash())

	nextVS, err := ex.Commit(block, commit)
	require.NoError(t, err)
	require.Equal(t, vs.Count()+1, nextVS.Count())
	require.Equal(t, nextVS.Count(), ex.CurrentValidatorSet().Count())
}

func TestExecutorSeedRecoveredState(t *testing.T) {
	pool := newTestPool(t)
	ex, _, vs, keys := newTestExecutor(t, &abi.AcceptAllDapp{}, pool)

	restarted, err := types.NewValidatorSet([]*types.Validator{vs.GetByIndex(0)})
	require.NoError(t, err)
	fakeCommit := buildCommit(vs, keys, 3, types.HashBytes([]byte("some earlier block")))

	ex.SeedRecoveredState(fakeCommit, restarted)
	require.Equal(t, 1, ex.CurrentValidatorSet().Count())
}

// addValidatorDapp accepts every transaction and appends one validator
// update on the first EndBlock call.
type addValidatorDapp struct {
	abi.BaseDapp
	added *types.Validator
	done  bool
}

func (d *addValidatorDapp) InitChain(ctx context.Context, validators []*types.Validator, appState []byte) error {
	return nil
}

func (d *addValidatorDapp) ExecuteTransaction(ctx context.Context, tx *types.Transaction) (*abi.TxResult, error) {
	return &abi.TxResult{Code: abi.CodeOK}, nil
}

func (d *addValidatorDapp) ValidateTransaction(ctx context.Context, tx *types.Transaction) bool {
	return true
}

func (d *addValidatorDapp) SelectTransactions(ctx context.Context, candidates []*types.Transaction) []*types.Transaction {
	return candidates
}

func (d *addValidatorDapp) EndBlock(ctx context.Context, height types.Height) ([]*types.Validator, error) {
	if d.done {
		return nil, nil
	}
	d.done = true
	return []*types.Validator{d.added}, nil
}

func (d *addValidatorDapp) AppStateHash(ctx context.Context) types.Hash {
	return types.HashBytes([]byte("state"))
}
