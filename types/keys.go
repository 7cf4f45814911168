package types

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// KeyPair wraps an ed25519 key pair for validator identity, vote and
// proposal signing.
type KeyPair struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// GenerateKeyPair creates a new random ed25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	return &KeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

// KeyPairFromSeed derives a deterministic key pair from a 32-byte seed.
// Used by tests to produce reproducible validator keys.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{PrivateKey: priv, PublicKey: priv.Public().(ed25519.PublicKey)}, nil
}

// Address returns the validator address derived from the public key:
// the first 20 bytes of its SHA-256 hash.
func (k *KeyPair) Address() Address {
	return AddressFromPublicKey(k.PublicKey)
}

// AddressFromPublicKey derives an address from a raw public key.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	h := HashBytes(pub)
	return Address(h[:20])
}

// Sign signs the canonical bytes of a message with the private key.
func (k *KeyPair) Sign(msg []byte) Signature {
	return Signature(ed25519.Sign(k.PrivateKey, msg))
}

// Verify checks a signature over msg against a public key.
func Verify(pub ed25519.PublicKey, msg []byte, sig Signature) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}
