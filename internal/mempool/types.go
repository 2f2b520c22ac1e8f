// Package mempool implements the block-producer's speculative transaction
// and batch scheduler: a two-level dependency-graph that admits proven
// transactions, projects their effects onto an in-flight account/note state,
// and groups them into batches and blocks ready for proving and commit.
package mempool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Digest-sized identifiers. The rollup's content hashes, account and note
// commitments, and nullifiers are all 32-byte digests, so we reuse
// common.Hash rather than inventing a parallel type.
type (
	TxID        = common.Hash
	BatchID     = common.Hash
	BlockID     = common.Hash
	AccountID   = common.Hash
	NoteID      = common.Hash
	Commitment  = common.Hash
	BlockHeight = uint64
)

// Transaction is an authenticated, already-proven transaction as submitted
// by a client. The mempool never inspects the proof blob; it is opaque
// payload carried through to the batch prover.
type Transaction struct {
	ID TxID

	Account         AccountID
	InitialAccount  Commitment
	FinalAccount    Commitment

	// ConsumedAuthenticated are notes already committed in the store.
	ConsumedAuthenticated []NoteID
	// ConsumedUnauthenticated are notes the submitter claims were produced
	// in-flight (or are about to be authenticated by a batch/block proof).
	ConsumedUnauthenticated []NoteID
	ProducedNotes           []NoteID

	Expiration BlockHeight
	Proof      []byte
}

// AllConsumedNotes returns every note id this transaction consumes,
// authenticated or not.
func (tx *Transaction) AllConsumedNotes() []NoteID {
	out := make([]NoteID, 0, len(tx.ConsumedAuthenticated)+len(tx.ConsumedUnauthenticated))
	out = append(out, tx.ConsumedAuthenticated...)
	out = append(out, tx.ConsumedUnauthenticated...)
	return out
}

// Batch is an ordered group of transactions sharing one recursive proof.
type Batch struct {
	ID  BatchID
	Txs []TxID

	AccountUpdates map[AccountID]Commitment
	ConsumedNotes  map[NoteID]struct{}
	ProducedNotes  map[NoteID]struct{}

	Proof []byte
}

// BlockInProgress is the single in-flight block being assembled from
// committed batches. At most one exists at a time.
type BlockInProgress struct {
	ID      BlockID
	Height  BlockHeight
	Batches []BatchID

	AccountUpdates map[AccountID]Commitment
	ConsumedNotes  map[NoteID]struct{}
	ProducedNotes  map[NoteID]struct{}
}

// DeriveTransactionID content-addresses a transaction by its account and
// commitment fields, its expiration height, and its proof bytes, for
// callers decoding a wire
// envelope that does not carry its own id (the transaction encoding
// itself is external to this package).
func DeriveTransactionID(account AccountID, initial, final Commitment, expiration BlockHeight, proof []byte) TxID {
	buf := make([]byte, 0, common.HashLength*3+8+len(proof))
	buf = append(buf, account.Bytes()...)
	buf = append(buf, initial.Bytes()...)
	buf = append(buf, final.Bytes()...)
	buf = append(buf, uint64ToBytes(expiration)...)
	buf = append(buf, proof...)
	return crypto.Keccak256Hash(buf)
}

// deriveBatchID content-addresses a batch by the ordered ids of its
// transactions, mirroring how the teacher derives deterministic ids from
// ordered member hashes.
func deriveBatchID(txs []TxID) BatchID {
	return hashIDs(txs)
}

// deriveBlockID content-addresses a block by its ordered batch ids and
// target height.
func deriveBlockID(height BlockHeight, batches []BatchID) BlockID {
	ids := make([]TxID, len(batches))
	copy(ids, batches)
	h := hashIDs(ids)
	return crypto.Keccak256Hash(h.Bytes(), uint64ToBytes(height))
}

func hashIDs(ids []common.Hash) common.Hash {
	buf := make([]byte, 0, len(ids)*common.HashLength)
	for _, id := range ids {
		buf = append(buf, id.Bytes()...)
	}
	return crypto.Keccak256Hash(buf)
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
	return b
}
