// Package types provides the core wire and domain types shared across the
// node: hashes, heights, peer identities, transactions, validator sets, votes
// and blocks. Lower layers (blockstore, statestore, mempool) and upper layers
// (consensus, sync, node) both depend on this package; it depends on nothing
// else in the module.
package types

import (
	"encoding/hex"
	"fmt"
)

// Height represents a block height in the blockchain. Height 0 is genesis.
type Height int64

// String returns the height as a string.
func (h Height) String() string {
	return fmt.Sprintf("%d", int64(h))
}

// Int64 returns the height as an int64.
func (h Height) Int64() int64 {
	return int64(h)
}

// Hash represents a cryptographic digest, 32 bytes for SHA-256.
type Hash []byte

// String returns the hash as a hexadecimal string.
func (h Hash) String() string {
	return hex.EncodeToString(h)
}

// Bytes returns the raw bytes of the hash.
func (h Hash) Bytes() []byte {
	return []byte(h)
}

// IsEmpty returns true if the hash is nil or zero-length.
func (h Hash) IsEmpty() bool {
	return len(h) == 0
}

// Equal returns true if the hashes are equal.
func (h Hash) Equal(other Hash) bool {
	if len(h) != len(other) {
		return false
	}
	for i := range h {
		if h[i] != other[i] {
			return false
		}
	}
	return true
}

// HashFromHex parses a hexadecimal string into a Hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return Hash(b), nil
}

// PeerID identifies a remote node. It is typically a libp2p peer ID string.
type PeerID string

// String returns the peer ID as a string.
func (p PeerID) String() string {
	return string(p)
}

// IsEmpty returns true if the peer ID is empty.
func (p PeerID) IsEmpty() bool {
	return p == ""
}

// Address identifies a validator or account, derived from a public key.
type Address []byte

// String returns the address as a hexadecimal string.
func (a Address) String() string {
	return hex.EncodeToString(a)
}

// Bytes returns the raw bytes of the address.
func (a Address) Bytes() []byte {
	return []byte(a)
}

// Equal returns true if the addresses are equal.
func (a Address) Equal(other Address) bool {
	if len(a) != len(other) {
		return false
	}
	for i := range a {
		if a[i] != other[i] {
			return false
		}
	}
	return true
}

// Signature is an opaque cryptographic signature over canonical bytes.
type Signature []byte

// Bytes returns the raw bytes of the signature.
func (s Signature) Bytes() []byte {
	return []byte(s)
}
