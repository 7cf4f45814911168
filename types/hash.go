package types

import (
	"crypto/sha256"
)

// HashSize is the size of a SHA-256 hash in bytes.
const HashSize = sha256.Size

// HashBytes computes the SHA-256 hash of arbitrary bytes.
func HashBytes(data []byte) Hash {
	h := sha256.Sum256(data)
	return h[:]
}

// HashTx computes a transaction's pool identity hash from its raw wire
// bytes. Distinct from Transaction.Hash, which hashes the decoded struct;
// the pool deals in opaque bytes and never decodes a tx it isn't proposing.
func HashTx(tx []byte) Hash {
	if tx == nil {
		return nil
	}
	return HashBytes(tx)
}

// HashConcat computes the SHA-256 hash of the concatenation of two hashes.
// Used to fold a sequence of leaf hashes into a single root without
// building a full merkle tree.
func HashConcat(left, right Hash) Hash {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// HashOfRoots folds a sequence of hashes into a single root by repeated
// concatenation. An empty sequence hashes to EmptyHash.
func HashOfRoots(hashes []Hash) Hash {
	if len(hashes) == 0 {
		return EmptyHash()
	}
	root := hashes[0]
	for _, h := range hashes[1:] {
		root = HashConcat(root, h)
	}
	return root
}

// EmptyHash returns the hash of an empty byte slice.
func EmptyHash() Hash {
	h := sha256.Sum256([]byte{})
	return h[:]
}
