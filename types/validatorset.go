package types

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Validator errors.
var (
	ErrValidatorNotFound  = errors.New("validator not found")
	ErrDuplicateValidator = errors.New("duplicate validator")
	ErrInvalidVotingPower = errors.New("invalid voting power")
	ErrEmptyValidatorSet   = errors.New("empty validator set")
)

// Validator is a single member of a ValidatorSet.
type Validator struct {
	Index            uint16
	Address          Address
	PublicKey        ed25519.PublicKey
	VotingPower      int64
	ProposerPriority int64
}

// Copy returns a deep copy of the validator.
func (v *Validator) Copy() *Validator {
	return &Validator{
		Index:            v.Index,
		Address:          append(Address{}, v.Address...),
		PublicKey:        append(ed25519.PublicKey{}, v.PublicKey...),
		VotingPower:      v.VotingPower,
		ProposerPriority: v.ProposerPriority,
	}
}

// ValidatorSet is an ordered, fixed-membership set of validators with
// proposer selection weighted by voting power. A ValidatorSet is scoped to
// a single height: its priorities advance by calling NextHeight, which
// returns a new ValidatorSet for the following height without mutating the
// receiver, so in-flight rounds always see a stable view.
type ValidatorSet struct {
	mu         sync.RWMutex
	validators []*Validator
	totalPower int64
}

// NewValidatorSet builds a validator set from a list of validators, sorted
// by address for a deterministic hash and index assignment.
func NewValidatorSet(validators []*Validator) (*ValidatorSet, error) {
	if len(validators) == 0 {
		return nil, ErrEmptyValidatorSet
	}

	sorted := make([]*Validator, len(validators))
	copy(sorted, validators)
	sort.Slice(sorted, func(i, j int) bool {
		return string(sorted[i].Address) < string(sorted[j].Address)
	})

	seen := make(map[string]bool, len(sorted))
	var total int64
	copied := make([]*Validator, len(sorted))
	for i, v := range sorted {
		if v.VotingPower <= 0 {
			return nil, fmt.Errorf("%w: validator %d has power %d", ErrInvalidVotingPower, i, v.VotingPower)
		}
		key := string(v.Address)
		if seen[key] {
			return nil, fmt.Errorf("%w: address %x", ErrDuplicateValidator, v.Address)
		}
		seen[key] = true
		total += v.VotingPower

		c := v.Copy()
		//nolint:gosec // validator count bounded well below uint16 range
		c.Index = uint16(i)
		copied[i] = c
	}

	return &ValidatorSet{validators: copied, totalPower: total}, nil
}

// Count returns the number of validators.
func (vs *ValidatorSet) Count() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return len(vs.validators)
}

// GetByIndex returns a copy of the validator at the given index, or nil.
func (vs *ValidatorSet) GetByIndex(index uint16) *Validator {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	if int(index) >= len(vs.validators) {
		return nil
	}
	return vs.validators[index].Copy()
}

// GetByAddress returns a copy of the validator with the given address, or nil.
func (vs *ValidatorSet) GetByAddress(address Address) *Validator {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	for _, v := range vs.validators {
		if v.Address.Equal(address) {
			return v.Copy()
		}
	}
	return nil
}

// Validators returns a copy of every validator, in index order.
func (vs *ValidatorSet) Validators() []*Validator {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	out := make([]*Validator, len(vs.validators))
	for i, v := range vs.validators {
		out[i] = v.Copy()
	}
	return out
}

// TotalVotingPower returns the sum of all voting power.
func (vs *ValidatorSet) TotalVotingPower() int64 {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.totalPower
}

// Quorum returns the minimum voting power needed for a BFT majority:
// the smallest integer strictly greater than 2T/3.
func (vs *ValidatorSet) Quorum() int64 {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return quorumFor(vs.totalPower)
}

func quorumFor(totalPower int64) int64 {
	if totalPower > math.MaxInt64/2 {
		return totalPower/3*2 + 1
	}
	return (2*totalPower)/3 + 1
}

// GetProposer returns the proposer for the given round, computed by
// replaying `round` additional weighted-priority steps from the height's
// base ordering without mutating the set. This implements round-robin
// weighted by voting power: each step adds every validator's power to its
// priority, then the highest-priority validator proposes and has the
// total power subtracted back out, exactly as Tendermint's proposer
// priority algorithm does, generalized here to answer "who proposes at
// round r" as a pure function instead of a single mutable cursor.
func (vs *ValidatorSet) GetProposer(round int32) *Validator {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if len(vs.validators) == 0 {
		return nil
	}
	if round < 0 {
		round = 0
	}

	priorities := make([]int64, len(vs.validators))
	for i, v := range vs.validators {
		priorities[i] = v.ProposerPriority
	}

	var proposerIdx int
	for step := int32(0); step <= round; step++ {
		for i, v := range vs.validators {
			priorities[i] += v.VotingPower
		}
		proposerIdx = indexOfMax(priorities)
		priorities[proposerIdx] -= vs.totalPower
	}

	return vs.validators[proposerIdx].Copy()
}

// NextHeight advances proposer priorities by one real step (the step the
// round-0 proposer of this height actually took) and returns a new
// ValidatorSet for the following height. Validator updates returned by the
// dapp's end-of-block hook are applied here, never mid-round.
func (vs *ValidatorSet) NextHeight(updates []*Validator) (*ValidatorSet, error) {
	vs.mu.RLock()
	validators := make([]*Validator, len(vs.validators))
	for i, v := range vs.validators {
		validators[i] = v.Copy()
	}
	total := vs.totalPower
	vs.mu.RUnlock()

	for _, v := range validators {
		v.ProposerPriority += v.VotingPower
	}
	idx := indexOfMaxValidators(validators)
	validators[idx].ProposerPriority -= total

	if len(updates) > 0 {
		byAddr := make(map[string]*Validator, len(validators))
		for _, v := range validators {
			byAddr[string(v.Address)] = v
		}
		for _, u := range updates {
			if u.VotingPower <= 0 {
				delete(byAddr, string(u.Address))
				continue
			}
			byAddr[string(u.Address)] = u
		}
		validators = validators[:0]
		for _, v := range byAddr {
			validators = append(validators, v)
		}
	}

	return NewValidatorSet(validators)
}

// VerifyCommit checks that a Commit carries valid precommit signatures from
// this validator set totaling at least Quorum voting power for the given
// block hash. Each CommitSig is verified as a precommit vote's signature
// over the commit's own height and round, per the canonical vote encoding.
func (vs *ValidatorSet) VerifyCommit(height Height, blockHash Hash, commit *Commit) error {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if commit == nil {
		return errors.New("nil commit")
	}
	if !commit.BlockHash.Equal(blockHash) {
		return errors.New("commit block hash does not match")
	}

	precommit := Vote{Type: VoteTypePrecommit, Height: height, Round: commit.Round, BlockHash: blockHash}
	msg := precommit.SignBytes()
	var power int64
	seen := make(map[uint16]bool, len(commit.Signatures))
	for _, sig := range commit.Signatures {
		if sig.Signature == nil {
			continue
		}
		if seen[sig.ValidatorIndex] {
			continue
		}
		if int(sig.ValidatorIndex) >= len(vs.validators) {
			continue
		}
		v := vs.validators[sig.ValidatorIndex]
		if !Verify(v.PublicKey, msg, sig.Signature) {
			continue
		}
		seen[sig.ValidatorIndex] = true
		power += v.VotingPower
	}

	quorum := quorumFor(vs.totalPower)
	if power < quorum {
		return fmt.Errorf("insufficient commit power: got %d, need %d", power, quorum)
	}
	return nil
}

func indexOfMax(priorities []int64) int {
	maxIdx := 0
	for i, p := range priorities {
		if p > priorities[maxIdx] {
			maxIdx = i
		}
	}
	return maxIdx
}

func indexOfMaxValidators(validators []*Validator) int {
	maxIdx := 0
	for i, v := range validators {
		if v.ProposerPriority > validators[maxIdx].ProposerPriority {
			maxIdx = i
		}
	}
	return maxIdx
}

// Hash returns a deterministic root hash of the validator set, folding each
// validator's address and voting power in index order.
func (vs *ValidatorSet) Hash() Hash {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if len(vs.validators) == 0 {
		return EmptyHash()
	}
	hashes := make([]Hash, len(vs.validators))
	for i, v := range vs.validators {
		buf := make([]byte, len(v.Address)+8)
		copy(buf, v.Address)
		putUint64(buf[len(v.Address):], uint64(v.VotingPower))
		hashes[i] = HashBytes(buf)
	}
	return HashOfRoots(hashes)
}
