package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVirtualClockFiresOnAdvance(t *testing.T) {
	start := time.Now()
	clock := NewVirtualClock(start)

	ch := clock.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired before the clock advanced")
	default:
	}

	clock.Advance(3 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired before its deadline")
	default:
	}

	clock.Advance(3 * time.Second)
	select {
	case fired := <-ch:
		require.True(t, fired.After(start) || fired.Equal(start))
	default:
		t.Fatal("timer did not fire once its deadline passed")
	}
}

func TestVirtualClockNowAdvancesMonotonically(t *testing.T) {
	start := time.Now()
	clock := NewVirtualClock(start)
	clock.Advance(time.Minute)
	require.Equal(t, start.Add(time.Minute), clock.Now())
}
