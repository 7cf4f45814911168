package consensus

import (
	"sync"

	"github.com/forgebound/ledgercore/types"
)

// EquivocationCallback is invoked when a second, conflicting vote is seen
// for a (height, round, type, validator) slot that already holds a vote for
// a different block.
type EquivocationCallback func(validator *types.Validator, first, second *types.Vote)

// RoundVoteSet tracks every vote cast for a single (height, round, type)
// slot: one vote per validator index, plus the running per-block voting
// power needed to detect a two-thirds majority.
type RoundVoteSet struct {
	mu             sync.Mutex
	valSet         *types.ValidatorSet
	votes          map[uint16]*types.Vote // validator index -> its vote in this slot
	powerByHash    map[string]int64       // block hash (as string) -> accumulated power
	onEquivocation EquivocationCallback
}

// NewRoundVoteSet creates an empty vote set scoped to one (height, round,
// type) slot, evaluated against valSet.
func NewRoundVoteSet(valSet *types.ValidatorSet, onEquivocation EquivocationCallback) *RoundVoteSet {
	return &RoundVoteSet{
		valSet:         valSet,
		votes:          make(map[uint16]*types.Vote),
		powerByHash:    make(map[string]int64),
		onEquivocation: onEquivocation,
	}
}

// AddVote records vote. It returns added=false without error when the
// vote is an exact duplicate of one already recorded. A second, distinct
// vote from the same validator in the same slot is equivocation: the
// first vote stays recorded and counted, the second is not stored in the
// set and is only passed to onEquivocation if set (the validator is not
// slashed here, only reported).
func (rvs *RoundVoteSet) AddVote(vote *types.Vote) (added bool, err error) {
	rvs.mu.Lock()
	defer rvs.mu.Unlock()

	validator := rvs.valSet.GetByIndex(vote.ValidatorIndex)
	if validator == nil {
		return false, types.ErrInvalidVote
	}

	existing, ok := rvs.votes[vote.ValidatorIndex]
	if ok {
		if existing.BlockHash.Equal(vote.BlockHash) {
			return false, nil
		}
		if rvs.onEquivocation != nil {
			rvs.onEquivocation(validator, existing, vote)
		}
		// The first vote stays authoritative for quorum counting (it arrived
		// first); the second is not stored and is exposed only via the
		// callback for evidence handling.
		return false, nil
	}

	rvs.votes[vote.ValidatorIndex] = vote
	rvs.powerByHash[string(vote.BlockHash)] += validator.VotingPower
	return true, nil
}

// HasTwoThirdsMajority reports whether any single block hash in this slot
// has accumulated at least quorum voting power, returning that hash.
func (rvs *RoundVoteSet) HasTwoThirdsMajority() (types.Hash, bool) {
	rvs.mu.Lock()
	defer rvs.mu.Unlock()

	quorum := rvs.valSet.Quorum()
	for hash, power := range rvs.powerByHash {
		if power >= quorum {
			return types.Hash(hash), true
		}
	}
	return nil, false
}

// GetVotesByBlock returns every recorded vote for the given block hash.
func (rvs *RoundVoteSet) GetVotesByBlock(hash types.Hash) []*types.Vote {
	rvs.mu.Lock()
	defer rvs.mu.Unlock()

	var out []*types.Vote
	for _, v := range rvs.votes {
		if v.BlockHash.Equal(hash) {
			out = append(out, v)
		}
	}
	return out
}

// TotalVotingPower returns the voting power committed to this slot so far,
// across every distinct block hash.
func (rvs *RoundVoteSet) TotalVotingPower() int64 {
	rvs.mu.Lock()
	defer rvs.mu.Unlock()

	var total int64
	for _, p := range rvs.powerByHash {
		total += p
	}
	return total
}

// BuildCommit assembles a Commit from every recorded precommit for the
// given block hash. Callers should only call this after
// HasTwoThirdsMajority confirms quorum for hash.
func (rvs *RoundVoteSet) BuildCommit(height types.Height, round int32, hash types.Hash) *types.Commit {
	rvs.mu.Lock()
	defer rvs.mu.Unlock()

	var sigs []types.CommitSig
	for idx, v := range rvs.votes {
		if !v.BlockHash.Equal(hash) {
			continue
		}
		sigs = append(sigs, types.CommitSig{ValidatorIndex: idx, Signature: v.Signature})
	}
	return &types.Commit{Height: height, Round: round, BlockHash: hash, Signatures: sigs}
}

// HeightVoteSet owns the RoundVoteSet for every (round, type) pair seen at
// a single height, creating them lazily.
type HeightVoteSet struct {
	mu             sync.Mutex
	height         types.Height
	valSet         *types.ValidatorSet
	onEquivocation EquivocationCallback
	rounds         map[int32]*roundVotes
}

type roundVotes struct {
	prevotes   *RoundVoteSet
	precommits *RoundVoteSet
}

// NewHeightVoteSet creates an empty vote set for the given height.
func NewHeightVoteSet(height types.Height, valSet *types.ValidatorSet, onEquivocation EquivocationCallback) *HeightVoteSet {
	return &HeightVoteSet{
		height:         height,
		valSet:         valSet,
		onEquivocation: onEquivocation,
		rounds:         make(map[int32]*roundVotes),
	}
}

// AddVote routes vote to the RoundVoteSet for its round and type, creating
// it on first use.
func (hvs *HeightVoteSet) AddVote(vote *types.Vote) (added bool, err error) {
	if vote.Height != hvs.height {
		return false, types.ErrInvalidVote
	}
	set := hvs.roundSetFor(vote.Round, vote.Type)
	return set.AddVote(vote)
}

// Prevotes returns the prevote set for round, creating it on first use.
func (hvs *HeightVoteSet) Prevotes(round int32) *RoundVoteSet {
	return hvs.roundSetFor(round, types.VoteTypePrevote)
}

// Precommits returns the precommit set for round, creating it on first use.
func (hvs *HeightVoteSet) Precommits(round int32) *RoundVoteSet {
	return hvs.roundSetFor(round, types.VoteTypePrecommit)
}

func (hvs *HeightVoteSet) roundSetFor(round int32, voteType types.VoteType) *RoundVoteSet {
	hvs.mu.Lock()
	defer hvs.mu.Unlock()

	rv, ok := hvs.rounds[round]
	if !ok {
		rv = &roundVotes{}
		hvs.rounds[round] = rv
	}
	switch voteType {
	case types.VoteTypePrevote:
		if rv.prevotes == nil {
			rv.prevotes = NewRoundVoteSet(hvs.valSet, hvs.onEquivocation)
		}
		return rv.prevotes
	default:
		if rv.precommits == nil {
			rv.precommits = NewRoundVoteSet(hvs.valSet, hvs.onEquivocation)
		}
		return rv.precommits
	}
}
