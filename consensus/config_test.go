package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeoutsScaleGeometricallyByRound(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 3000*time.Millisecond, cfg.ProposeTimeoutFor(0))
	require.Equal(t, 1000*time.Millisecond, cfg.PrevoteTimeoutFor(0))
	require.Equal(t, 1000*time.Millisecond, cfg.PrecommitTimeoutFor(0))

	round1 := cfg.ProposeTimeoutFor(1)
	require.InDelta(t, float64(3600*time.Millisecond), float64(round1), float64(time.Millisecond))

	round2 := cfg.ProposeTimeoutFor(2)
	require.Greater(t, round2, round1)
}
