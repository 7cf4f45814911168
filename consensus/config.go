package consensus

import "time"

// Config holds the round-timeout parameters for the state machine. Each
// timeout grows geometrically with the round number so a network that
// keeps failing to reach quorum backs off instead of hammering itself with
// ever-shorter deadlines.
type Config struct {
	ProposeTimeout   time.Duration
	ProposeDelta     float64
	PrevoteTimeout   time.Duration
	PrevoteDelta     float64
	PrecommitTimeout time.Duration
	PrecommitDelta   float64
}

// DefaultConfig returns the engine's default timeout schedule: a 3s base
// propose timeout and 1s base prevote/precommit timeouts, each scaled by
// 1.2^round.
func DefaultConfig() Config {
	return Config{
		ProposeTimeout:   3000 * time.Millisecond,
		ProposeDelta:     1.2,
		PrevoteTimeout:   1000 * time.Millisecond,
		PrevoteDelta:     1.2,
		PrecommitTimeout: 1000 * time.Millisecond,
		PrecommitDelta:   1.2,
	}
}

func scaledTimeout(base time.Duration, delta float64, round int32) time.Duration {
	if round <= 0 {
		return base
	}
	scale := 1.0
	for i := int32(0); i < round; i++ {
		scale *= delta
	}
	return time.Duration(float64(base) * scale)
}

// ProposeTimeoutFor returns the propose-step timeout for the given round.
func (c Config) ProposeTimeoutFor(round int32) time.Duration {
	return scaledTimeout(c.ProposeTimeout, c.ProposeDelta, round)
}

// PrevoteTimeoutFor returns the prevote-step timeout for the given round.
func (c Config) PrevoteTimeoutFor(round int32) time.Duration {
	return scaledTimeout(c.PrevoteTimeout, c.PrevoteDelta, round)
}

// PrecommitTimeoutFor returns the precommit-step timeout for the given round.
func (c Config) PrecommitTimeoutFor(round int32) time.Duration {
	return scaledTimeout(c.PrecommitTimeout, c.PrecommitDelta, round)
}
