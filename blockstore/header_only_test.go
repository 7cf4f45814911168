package blockstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebound/ledgercore/types"
)

func TestHeaderOnlyBlockStore_InterfaceCompliance(t *testing.T) {
	var _ BlockStore = (*HeaderOnlyBlockStore)(nil)
}

func TestNewHeaderOnlyBlockStore(t *testing.T) {
	store := NewHeaderOnlyBlockStore()
	require.NotNil(t, store)
	assert.Equal(t, types.Height(0), store.Height())
}

func TestHeaderOnlyBlockStore_Put(t *testing.T) {
	store := NewHeaderOnlyBlockStore()
	chain := buildTestChain(t, 3)
	putChain(t, store, chain)

	assert.Equal(t, types.Height(3), store.Height())
	assert.Equal(t, types.Height(0), store.Base())

	header, err := store.HeaderOf(2)
	require.NoError(t, err)
	assert.Equal(t, chain[2].Header.Height, header.Height)
}

func TestHeaderOnlyBlockStore_Put_GenesisMismatch(t *testing.T) {
	store := NewHeaderOnlyBlockStore()
	chain := buildTestChain(t, 1)
	require.NoError(t, store.Put(chain[0]))

	otherChain := buildTestChain(t, 1)
	err := store.Put(otherChain[0])
	assert.ErrorIs(t, err, types.ErrGenesisMismatch)
}

func TestHeaderOnlyBlockStore_Put_WrongHeight(t *testing.T) {
	store := NewHeaderOnlyBlockStore()
	chain := buildTestChain(t, 2)
	require.NoError(t, store.Put(chain[0]))

	err := store.Put(chain[2])
	assert.ErrorIs(t, err, types.ErrInvalidBlock)
}

func TestHeaderOnlyBlockStore_BlockOfAndBodyOfFail(t *testing.T) {
	store := NewHeaderOnlyBlockStore()
	putChain(t, store, buildTestChain(t, 1))

	_, err := store.BlockOf(0)
	assert.ErrorIs(t, err, ErrBodyNotStored)

	_, err = store.BodyOf(0)
	assert.ErrorIs(t, err, ErrBodyNotStored)
}

func TestHeaderOnlyBlockStore_HeaderOf_NotFound(t *testing.T) {
	store := NewHeaderOnlyBlockStore()

	_, err := store.HeaderOf(999)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestHeaderOnlyBlockStore_Close(t *testing.T) {
	store := NewHeaderOnlyBlockStore()
	putChain(t, store, buildTestChain(t, 1))

	err := store.Close()
	require.NoError(t, err)

	assert.Equal(t, types.Height(0), store.Height())
	_, err = store.HeaderOf(0)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
