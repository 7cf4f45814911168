package blockstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forgebound/ledgercore/types"
)

// buildTestChain returns a genesis block plus n descendant blocks, each
// carrying a valid quorum commit for its parent under a fixed validator
// set, suitable for feeding straight into BlockStore.Put.
func buildTestChain(t *testing.T, n int) []*types.Block {
	t.Helper()

	validators := make([]*types.Validator, 4)
	keys := make([]*types.KeyPair, 4)
	for i := range validators {
		kp, err := types.GenerateKeyPair()
		require.NoError(t, err)
		keys[i] = kp
		validators[i] = &types.Validator{Address: kp.Address(), PublicKey: kp.PublicKey, VotingPower: 1}
	}

	genesis, vs, err := types.GenesisBlock(types.GenesisConfig{
		Timestamp:  time.Unix(0, 0).UTC(),
		Validators: validators,
	})
	require.NoError(t, err)

	blocks := make([]*types.Block, 0, n+1)
	blocks = append(blocks, genesis)

	prev := genesis
	for h := 1; h <= n; h++ {
		commit := signCommit(t, vs, keys, prev.Header.Height, prev.Hash())
		body := types.BlockBody{
			LastBlockConsensus: commit,
			NextValidatorSet:   vs,
		}
		header := types.BlockHeader{
			Height:                 types.Height(h),
			Timestamp:              prev.Header.Timestamp.Add(time.Second),
			LastBlockHash:          prev.Hash(),
			TransactionRoot:        body.Transactions.Root(),
			LastBlockConsensusRoot: body.LastBlockConsensus.Hash(),
			NextValidatorSetRoot:   vs.Hash(),
			AppStateHash:           types.EmptyHash(),
		}
		block := &types.Block{Header: header, Body: body}
		blocks = append(blocks, block)
		prev = block
	}
	return blocks
}

func signCommit(t *testing.T, vs *types.ValidatorSet, keys []*types.KeyPair, height types.Height, blockHash types.Hash) *types.Commit {
	t.Helper()
	sigs := make([]types.CommitSig, 0, len(keys))
	for _, kp := range keys {
		v := vs.GetByAddress(kp.Address())
		vote := &types.Vote{Type: types.VoteTypePrecommit, Height: height, Round: 0, BlockHash: blockHash, ValidatorIndex: v.Index}
		sigs = append(sigs, types.CommitSig{ValidatorIndex: v.Index, Signature: kp.Sign(vote.SignBytes())})
	}
	return &types.Commit{Height: height, Round: 0, BlockHash: blockHash, Signatures: sigs}
}

// putChain writes every block in chain to store via Put, failing the test
// on the first error.
func putChain(t *testing.T, store BlockStore, chain []*types.Block) {
	t.Helper()
	for _, b := range chain {
		require.NoError(t, store.Put(b))
	}
}
