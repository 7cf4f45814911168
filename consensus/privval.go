package consensus

import "github.com/forgebound/ledgercore/types"

// PrivValidator signs votes and proposals on behalf of the local validator.
// Implementations are responsible for protecting the private key; the
// engine never sees raw key material beyond this interface.
type PrivValidator interface {
	Address() types.Address
	PublicKey() []byte
	SignVote(vote *types.Vote) error
	SignProposal(proposal *types.Proposal) error
}

// LocalPrivValidator signs with an in-process ed25519 key pair. It is the
// only implementation this node ships; a hardware-backed or remote signer
// would satisfy the same interface.
type LocalPrivValidator struct {
	key *types.KeyPair
}

// NewLocalPrivValidator wraps a key pair as a PrivValidator.
func NewLocalPrivValidator(key *types.KeyPair) *LocalPrivValidator {
	return &LocalPrivValidator{key: key}
}

// Address returns the validator's address.
func (p *LocalPrivValidator) Address() types.Address {
	return p.key.Address()
}

// PublicKey returns the validator's public key.
func (p *LocalPrivValidator) PublicKey() []byte {
	return p.key.PublicKey
}

// SignVote signs the vote's canonical bytes in place.
func (p *LocalPrivValidator) SignVote(vote *types.Vote) error {
	vote.Signature = p.key.Sign(vote.SignBytes())
	return nil
}

// SignProposal signs the proposal's canonical bytes in place.
func (p *LocalPrivValidator) SignProposal(proposal *types.Proposal) error {
	proposal.Signature = p.key.Sign(proposal.SignBytes())
	return nil
}

var _ PrivValidator = (*LocalPrivValidator)(nil)
