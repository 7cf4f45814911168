package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgebound/ledgercore/types"
)

func TestSelfDetectorReportsMembership(t *testing.T) {
	vs, keys := makeTestValidatorSet(t, 1, 1)
	d := NewSelfDetector(keys[0].Address())

	require.True(t, d.IsValidator(vs))
	require.NotNil(t, d.Self(vs))

	outsider := NewSelfDetector(types.Address{0xff, 0xff, 0xff})
	require.False(t, outsider.IsValidator(vs))
	require.Nil(t, outsider.Self(vs))
}

func TestStatusTrackerFiresOnlyOnChange(t *testing.T) {
	vs, keys := makeTestValidatorSet(t, 1, 1)
	other, _ := types.GenerateKeyPair()

	calls := 0
	tracker := NewStatusTracker(NewSelfDetector(keys[0].Address()), func(isValidator bool, self *types.Validator) {
		calls++
	})

	changed := tracker.Update(vs)
	require.True(t, changed)
	require.Equal(t, 1, calls)

	changed = tracker.Update(vs)
	require.False(t, changed)
	require.Equal(t, 1, calls)

	vs2, err := types.NewValidatorSet([]*types.Validator{
		{Address: other.Address(), PublicKey: other.PublicKey, VotingPower: 1},
	})
	require.NoError(t, err)

	changed = tracker.Update(vs2)
	require.True(t, changed)
	require.Equal(t, 2, calls)
}
