package types

// VoteType distinguishes prevotes from precommits.
type VoteType uint8

const (
	VoteTypePrevote   VoteType = 1
	VoteTypePrecommit VoteType = 2
)

// String renders the vote type for logging.
func (t VoteType) String() string {
	switch t {
	case VoteTypePrevote:
		return "prevote"
	case VoteTypePrecommit:
		return "precommit"
	default:
		return "unknown"
	}
}

// Vote is a single validator's signed prevote or precommit for a round.
// BlockHash is nil for a nil vote (no value, or timeout).
type Vote struct {
	Type           VoteType
	Height         Height
	Round          int32
	ValidatorIndex uint16
	BlockHash      Hash
	Signature      Signature
}

// SignBytes returns the canonical bytes a validator signs for this vote:
// type, height, round, block hash, in that fixed order, big-endian.
func (v *Vote) SignBytes() []byte {
	buf := make([]byte, 1+8+4+len(v.BlockHash))
	buf[0] = byte(v.Type)
	putUint64(buf[1:9], uint64(v.Height))
	putUint32(buf[9:13], uint32(v.Round))
	copy(buf[13:], v.BlockHash)
	return buf
}

// Key identifies the (validator, height, round, type) slot this vote
// occupies for deduplication and equivocation detection.
func (v *Vote) Key() VoteKey {
	return VoteKey{Height: v.Height, Round: v.Round, Type: v.Type, ValidatorIndex: v.ValidatorIndex}
}

// VoteKey is the deduplication key for a vote slot.
type VoteKey struct {
	Height         Height
	Round          int32
	Type           VoteType
	ValidatorIndex uint16
}

// Proposal announces a candidate block for a round. LockedRound is set
// when the proposer is re-proposing a block it is locked on.
type Proposal struct {
	Height      Height
	Round       int32
	LockedRound int32 // -1 means "not locked"
	Block       *Block
	Signature   Signature
}

// SignBytes returns the canonical bytes signed for a proposal: height,
// round, locked round, and the proposed block's header hash.
func (p *Proposal) SignBytes() []byte {
	buf := make([]byte, 8+4+4+HashSize)
	putUint64(buf[0:8], uint64(p.Height))
	putUint32(buf[8:12], uint32(p.Round))
	putUint32(buf[12:16], uint32(p.LockedRound))
	copy(buf[16:], p.Block.Header.Hash())
	return buf
}

// CommitSig is one validator's precommit signature folded into a Commit.
// Signature is nil for a validator that did not precommit this block.
type CommitSig struct {
	ValidatorIndex uint16
	Signature      Signature
}

// Commit is the aggregate proof that a block received quorum precommits
// in a given round.
type Commit struct {
	Height     Height
	Round      int32
	BlockHash  Hash
	Signatures []CommitSig
}

// Hash returns a deterministic digest of the commit, used as
// BlockBody.LastBlockConsensus's root in the following header.
func (c *Commit) Hash() Hash {
	if c == nil {
		return EmptyHash()
	}
	buf := make([]byte, 8+4+len(c.BlockHash))
	putUint64(buf[0:8], uint64(c.Height))
	putUint32(buf[8:12], uint32(c.Round))
	copy(buf[12:], c.BlockHash)
	for _, sig := range c.Signatures {
		if sig.Signature == nil {
			continue
		}
		buf = append(buf, byte(sig.ValidatorIndex>>8), byte(sig.ValidatorIndex))
		buf = append(buf, sig.Signature...)
	}
	return HashBytes(buf)
}

// VotingPower sums the power of every validator whose signature is present,
// given the validator set the commit is evaluated against.
func (c *Commit) VotingPower(vs *ValidatorSet) int64 {
	var total int64
	for _, sig := range c.Signatures {
		if sig.Signature == nil {
			continue
		}
		if v := vs.GetByIndex(sig.ValidatorIndex); v != nil {
			total += v.VotingPower
		}
	}
	return total
}

func putUint32(buf []byte, v uint32) {
	buf[0] = byte(v >> 24)
	buf[1] = byte(v >> 16)
	buf[2] = byte(v >> 8)
	buf[3] = byte(v)
}
