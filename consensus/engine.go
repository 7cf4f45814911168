package consensus

import (
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/forgebound/ledgercore/types"
)

// Step names the phase of the round the engine is currently in.
type Step uint8

const (
	StepNewHeight Step = iota
	StepPropose
	StepPrevote
	StepPrecommit
	StepCommit
)

// String renders the step for logging.
func (s Step) String() string {
	switch s {
	case StepNewHeight:
		return "new-height"
	case StepPropose:
		return "propose"
	case StepPrevote:
		return "prevote"
	case StepPrecommit:
		return "precommit"
	case StepCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// BlockExecutor is the engine's narrow view of block execution: it never
// holds a reference back to the node, only this interface, so the engine
// package has no import-cycle risk with whatever assembles it.
type BlockExecutor interface {
	// CreateProposalBlock asks the mempool/application for a candidate
	// block to propose at height.
	CreateProposalBlock(height types.Height) (*types.Block, error)
	// ValidateBlock checks a received block against the application and
	// the chain's structural invariants, without committing it.
	ValidateBlock(block *types.Block) error
	// Commit applies block using commit as its proof and returns the
	// validator set for the following height.
	Commit(block *types.Block, commit *types.Commit) (nextValidators *types.ValidatorSet, err error)
}

// Broadcaster is the engine's narrow view of the network: send this
// message to every peer. It carries no peer addressing or connection
// state, keeping the engine ignorant of the transport.
type Broadcaster interface {
	BroadcastProposal(p *types.Proposal)
	BroadcastVote(v *types.Vote)
}

type timeoutEvent struct {
	step   Step
	height types.Height
	round  int32
	seq    uint64
}

// Engine runs the round-based propose/prevote/precommit/commit state
// machine for one chain. All mutable state is touched only from the run
// loop goroutine; HandleProposal/HandleVote/Start/Stop are the only
// thread-safe entry points.
type Engine struct {
	config         Config
	clock          Clock
	wal            WAL
	privValidator  PrivValidator
	executor       BlockExecutor
	broadcaster    Broadcaster
	onEquivocation EquivocationCallback

	height types.Height
	round  int32
	step   Step
	valSet *types.ValidatorSet

	lockedBlock *types.Block
	lockedRound int32
	validBlock  *types.Block
	validRound  int32
	proposal    *types.Proposal
	knownBlocks map[string]*types.Block
	heightVotes *HeightVoteSet

	proposalCh chan *types.Proposal
	voteCh     chan *types.Vote
	timeoutCh  chan timeoutEvent
	timeoutSeq uint64

	startOnce sync.Once
	done      chan struct{}
}

// NewEngine builds an Engine. Start must be called once with the genesis
// (or recovered) height and validator set before it does anything.
func NewEngine(config Config, clock Clock, wal WAL, privValidator PrivValidator, executor BlockExecutor, broadcaster Broadcaster, onEquivocation EquivocationCallback) *Engine {
	return &Engine{
		config:         config,
		clock:          clock,
		wal:            wal,
		privValidator:  privValidator,
		executor:       executor,
		broadcaster:    broadcaster,
		onEquivocation: onEquivocation,
		proposalCh:     make(chan *types.Proposal, 16),
		voteCh:         make(chan *types.Vote, 256),
		timeoutCh:      make(chan timeoutEvent, 16),
		done:           make(chan struct{}),
	}
}

// Start sets up the given height and validator set, then begins the run
// loop. It returns immediately; the loop runs on its own goroutine until
// Stop.
func (e *Engine) Start(height types.Height, valSet *types.ValidatorSet) {
	e.enterNewHeight(height, valSet)
	e.startOnce.Do(func() {
		go e.run()
	})
}

// Stop terminates the run loop.
func (e *Engine) Stop() {
	close(e.done)
}

// HandleProposal delivers a proposal received from a peer (or produced
// locally) into the run loop.
func (e *Engine) HandleProposal(p *types.Proposal) {
	select {
	case e.proposalCh <- p:
	case <-e.done:
	}
}

// HandleVote delivers a vote received from a peer (or cast locally) into
// the run loop.
func (e *Engine) HandleVote(v *types.Vote) {
	select {
	case e.voteCh <- v:
	case <-e.done:
	}
}

func (e *Engine) run() {
	for {
		select {
		case p := <-e.proposalCh:
			e.handleProposal(p)
		case v := <-e.voteCh:
			e.handleVote(v)
		case t := <-e.timeoutCh:
			e.handleTimeout(t)
		case <-e.done:
			return
		}
	}
}

func (e *Engine) enterNewHeight(height types.Height, valSet *types.ValidatorSet) {
	e.height = height
	e.round = 0
	e.step = StepNewHeight
	e.valSet = valSet
	e.lockedBlock = nil
	e.lockedRound = -1
	e.validBlock = nil
	e.validRound = -1
	e.proposal = nil
	e.knownBlocks = make(map[string]*types.Block)
	e.heightVotes = NewHeightVoteSet(height, valSet, e.onEquivocation)
	e.enterPropose(0)
}

func (e *Engine) enterPropose(round int32) {
	e.step = StepPropose
	e.round = round
	e.proposal = nil

	proposer := e.valSet.GetProposer(round)
	if proposer != nil && e.privValidator != nil && proposer.Address.Equal(e.privValidator.Address()) {
		block := e.validBlock
		if block == nil {
			var err error
			block, err = e.executor.CreateProposalBlock(e.height)
			if err != nil {
				block = nil
			}
		}
		if block != nil {
			p := &types.Proposal{Height: e.height, Round: round, LockedRound: e.validRound, Block: block}
			if err := e.privValidator.SignProposal(p); err == nil {
				if e.wal != nil {
					_ = e.wal.Write(WALMessage{Type: WALProposal, Height: e.height, Round: round, Proposal: p})
				}
				if e.broadcaster != nil {
					e.broadcaster.BroadcastProposal(p)
				}
				e.HandleProposal(p)
			}
		}
	}

	e.scheduleTimeout(StepPropose, e.config.ProposeTimeoutFor(round))
}

func (e *Engine) handleProposal(p *types.Proposal) {
	if p == nil || p.Height != e.height || p.Round != e.round || e.step != StepPropose {
		return
	}
	proposer := e.valSet.GetProposer(p.Round)
	if proposer == nil || !ed25519.Verify(proposer.PublicKey, p.SignBytes(), p.Signature) {
		return
	}
	e.proposal = p
	if p.Block != nil {
		e.knownBlocks[string(p.Block.Hash())] = p.Block
	}
	if e.executor.ValidateBlock(p.Block) != nil {
		return
	}
	e.enterPrevote(e.round)
}

func (e *Engine) enterPrevote(round int32) {
	if round != e.round || e.step != StepPropose {
		return
	}
	e.step = StepPrevote

	var hash types.Hash
	switch {
	case e.lockedBlock != nil && e.proposal != nil && e.proposal.Block != nil && e.proposal.Block.Hash().Equal(e.lockedBlock.Hash()):
		hash = e.lockedBlock.Hash()
	case e.lockedBlock != nil && e.proposal != nil && e.proposal.LockedRound >= e.lockedRound && e.proposal.LockedRound >= 0:
		// The proposer is re-proposing a block with a polka at least as
		// recent as our lock: safe to prevote it instead.
		hash = e.proposal.Block.Hash()
	case e.lockedBlock != nil:
		hash = e.lockedBlock.Hash()
	case e.proposal != nil && e.proposal.Block != nil:
		hash = e.proposal.Block.Hash()
	default:
		hash = nil // nil vote: no proposal seen, or nothing safe to prevote
	}

	e.scheduleTimeout(StepPrevote, e.config.PrevoteTimeoutFor(round))
	e.castVote(types.VoteTypePrevote, hash)
}

func (e *Engine) castVote(voteType types.VoteType, hash types.Hash) {
	if e.privValidator == nil {
		return
	}
	self := e.valSet.GetByAddress(e.privValidator.Address())
	if self == nil {
		return
	}
	vote := &types.Vote{Type: voteType, Height: e.height, Round: e.round, ValidatorIndex: self.Index, BlockHash: hash}
	if err := e.privValidator.SignVote(vote); err != nil {
		return
	}
	if e.wal != nil {
		_ = e.wal.Write(WALMessage{Type: WALVote, Height: e.height, Round: e.round, Vote: vote})
	}
	e.HandleVote(vote)
	if e.broadcaster != nil {
		e.broadcaster.BroadcastVote(vote)
	}
}

func (e *Engine) handleVote(v *types.Vote) {
	if v == nil || v.Height != e.height {
		return
	}
	validator := e.valSet.GetByIndex(v.ValidatorIndex)
	if validator == nil || !ed25519.Verify(validator.PublicKey, v.SignBytes(), v.Signature) {
		return
	}
	if _, err := e.heightVotes.AddVote(v); err != nil {
		return
	}

	switch v.Type {
	case types.VoteTypePrevote:
		if e.step == StepPrevote && v.Round == e.round {
			if hash, ok := e.heightVotes.Prevotes(e.round).HasTwoThirdsMajority(); ok {
				if !hash.IsEmpty() {
					e.validBlock = e.knownBlocks[string(hash)]
					e.validRound = e.round
				}
				e.enterPrecommit(e.round, hash)
			}
		}
	case types.VoteTypePrecommit:
		if e.step == StepPrecommit && v.Round == e.round {
			if hash, ok := e.heightVotes.Precommits(e.round).HasTwoThirdsMajority(); ok {
				if !hash.IsEmpty() {
					e.enterCommit(e.round, hash)
				}
			}
		}
	}
}

func (e *Engine) enterPrecommit(round int32, hash types.Hash) {
	if round != e.round || e.step != StepPrevote {
		return
	}
	e.step = StepPrecommit

	if !hash.IsEmpty() {
		if block, ok := e.knownBlocks[string(hash)]; ok {
			e.lockedBlock = block
			e.lockedRound = round
		}
	} else {
		e.lockedBlock = nil
		e.lockedRound = -1
	}

	e.scheduleTimeout(StepPrecommit, e.config.PrecommitTimeoutFor(round))
	e.castVote(types.VoteTypePrecommit, hash)
}

func (e *Engine) enterCommit(round int32, hash types.Hash) {
	if e.step != StepPrecommit {
		return
	}
	e.step = StepCommit

	block, ok := e.knownBlocks[string(hash)]
	if !ok {
		return
	}
	commit := e.heightVotes.Precommits(round).BuildCommit(e.height, round, hash)

	nextValidators, err := e.executor.Commit(block, commit)
	if err != nil {
		return
	}
	if e.wal != nil {
		_ = e.wal.Write(WALMessage{Type: WALEndHeight, Height: e.height, Round: round})
	}
	e.enterNewHeight(e.height+1, nextValidators)
}

func (e *Engine) handleTimeout(t timeoutEvent) {
	if t.seq != e.timeoutSeq || t.height != e.height || t.round != e.round {
		return
	}
	switch t.step {
	case StepPropose:
		if e.step == StepPropose {
			e.enterPrevote(e.round)
		}
	case StepPrevote:
		if e.step == StepPrevote {
			e.enterPrecommit(e.round, nil)
		}
	case StepPrecommit:
		if e.step == StepPrecommit {
			e.enterPropose(e.round + 1)
		}
	}
}

func (e *Engine) scheduleTimeout(step Step, d time.Duration) {
	e.timeoutSeq++
	seq := e.timeoutSeq
	height, round := e.height, e.round
	// Register with the clock synchronously so a VirtualClock's Advance
	// cannot race ahead of a timer that hasn't subscribed yet; only the
	// wait itself happens on a separate goroutine.
	fired := e.clock.After(d)
	go func() {
		select {
		case <-fired:
			select {
			case e.timeoutCh <- timeoutEvent{step: step, height: height, round: round, seq: seq}:
			case <-e.done:
			}
		case <-e.done:
		}
	}()
}
