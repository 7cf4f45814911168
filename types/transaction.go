package types

// Transaction is a signed, opaque-payload unit of work. The framework only
// interprets Nonce and Signature; Payload is handed to the application
// unchanged.
type Transaction struct {
	Nonce     uint64
	Payload   []byte
	Signature Signature

	// hash caches the transaction's identity hash, computed lazily.
	hash Hash
}

// NewTransaction builds an unsigned transaction. Callers sign it with Sign
// before submitting it to the pool.
func NewTransaction(nonce uint64, payload []byte) *Transaction {
	return &Transaction{Nonce: nonce, Payload: payload}
}

// SignBytes returns the canonical bytes signed by the transaction's author:
// big-endian nonce followed by the raw payload.
func (tx *Transaction) SignBytes() []byte {
	buf := make([]byte, 8+len(tx.Payload))
	putUint64(buf, tx.Nonce)
	copy(buf[8:], tx.Payload)
	return buf
}

// Sign signs the transaction with the given key pair.
func (tx *Transaction) Sign(key *KeyPair) {
	tx.Signature = key.Sign(tx.SignBytes())
	tx.hash = nil
}

// VerifySignature checks the transaction's signature against a public key.
func (tx *Transaction) VerifySignature(pub []byte) bool {
	return Verify(pub, tx.SignBytes(), tx.Signature)
}

// Hash returns the transaction's identity hash: hash(signBytes || signature).
// It is cached after the first call; mutating Nonce/Payload/Signature after
// hashing produces a stale cache, so callers must not mutate a signed
// transaction in place.
func (tx *Transaction) Hash() Hash {
	if tx.hash != nil {
		return tx.hash
	}
	buf := append(tx.SignBytes(), tx.Signature...)
	tx.hash = HashBytes(buf)
	return tx.hash
}

// Size returns the encoded size of the transaction in bytes.
func (tx *Transaction) Size() int {
	return 8 + len(tx.Payload) + len(tx.Signature)
}

// TransactionList is an ordered, immutable sequence of transactions.
type TransactionList []*Transaction

// Root computes the merkle-style root hash of the list: folding the
// per-transaction identity hashes in order. An empty list roots to
// EmptyHash, matching genesis blocks with no transactions.
func (l TransactionList) Root() Hash {
	if len(l) == 0 {
		return EmptyHash()
	}
	hashes := make([]Hash, len(l))
	for i, tx := range l {
		hashes[i] = tx.Hash()
	}
	return HashOfRoots(hashes)
}

func putUint64(buf []byte, v uint64) {
	buf[0] = byte(v >> 56)
	buf[1] = byte(v >> 48)
	buf[2] = byte(v >> 40)
	buf[3] = byte(v >> 32)
	buf[4] = byte(v >> 24)
	buf[5] = byte(v >> 16)
	buf[6] = byte(v >> 8)
	buf[7] = byte(v)
}
