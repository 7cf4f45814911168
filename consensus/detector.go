// Package consensus implements the Tendermint-style round-based BFT
// state machine: proposer selection, vote bookkeeping, the lock/unlock
// safety rule, and timeout-driven round advancement.
package consensus

import (
	"sync"

	"github.com/forgebound/ledgercore/types"
)

// SelfDetector determines whether the local node is a member of a given
// validator set, and at which index. Nodes that are not validators still
// run the engine passively (to validate and relay) but never propose or
// vote.
type SelfDetector struct {
	address types.Address
}

// NewSelfDetector builds a detector bound to the local node's address.
func NewSelfDetector(address types.Address) *SelfDetector {
	return &SelfDetector{address: address}
}

// IsValidator returns true if the local address is a member of valSet.
func (d *SelfDetector) IsValidator(valSet *types.ValidatorSet) bool {
	if valSet == nil {
		return false
	}
	return valSet.GetByAddress(d.address) != nil
}

// Self returns the local node's Validator entry in valSet, or nil if it is
// not a member.
func (d *SelfDetector) Self(valSet *types.ValidatorSet) *types.Validator {
	if valSet == nil {
		return nil
	}
	return valSet.GetByAddress(d.address)
}

// StatusCallback is invoked when the local node's validator membership
// changes across a validator set transition (e.g. at an epoch boundary).
type StatusCallback func(isValidator bool, self *types.Validator)

// StatusTracker watches validator set transitions and fires StatusCallback
// exactly when membership changes, so the node coordinator can start or
// stop proposing without polling every height.
type StatusTracker struct {
	mu       sync.Mutex
	detector *SelfDetector
	callback StatusCallback
	last     bool
}

// NewStatusTracker creates a tracker for the given detector.
func NewStatusTracker(detector *SelfDetector, callback StatusCallback) *StatusTracker {
	return &StatusTracker{detector: detector, callback: callback}
}

// Update re-evaluates membership against valSet and fires the callback if
// it changed since the last call. Returns true if it changed.
func (t *StatusTracker) Update(valSet *types.ValidatorSet) bool {
	t.mu.Lock()
	self := t.detector.Self(valSet)
	isValidator := self != nil
	changed := isValidator != t.last
	t.last = isValidator
	cb := t.callback
	t.mu.Unlock()

	if changed && cb != nil {
		cb(isValidator, self)
	}
	return changed
}
