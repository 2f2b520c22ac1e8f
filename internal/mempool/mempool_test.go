package mempool

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func hash(b byte) common.Hash {
	var h common.Hash
	h[common.HashLength-1] = b
	return h
}

func acct(b byte) AccountID  { return hash(b) }
func commit(b byte) Commitment { return hash(b) }
func note(b byte) NoteID     { return hash(b) }

func newTestTx(id byte, account AccountID, initial, final Commitment, expiry BlockHeight) *Transaction {
	return &Transaction{
		ID:             hash(id),
		Account:        account,
		InitialAccount: initial,
		FinalAccount:   final,
		Expiration:     expiry,
	}
}

func newTestMempool() *Mempool {
	return New(Config{
		MaxTxsPerBatch:     10,
		MaxBatchesPerBlock: 10,
		BatchBudget:        DefaultBatchBudget,
		BlockBudget:        DefaultBlockBudget,
	})
}

// S1 Single-account chain: T1->T2->T3 on account A with commitments
// (c0,c1),(c1,c2),(c2,c3). Each should batch, commit, and block in
// sequence, with the aggregate account update spanning c0->c3.
func TestScenarioSingleAccountChain(t *testing.T) {
	m := newTestMempool()
	A := acct(1)
	c0, c1, c2, c3 := commit(0), commit(1), commit(2), commit(3)

	t1 := newTestTx(1, A, c0, c1, 100)
	t2 := newTestTx(2, A, c1, c2, 100)
	t3 := newTestTx(3, A, c2, c3, 100)

	_, err := m.AddTransaction(t1)
	require.NoError(t, err)
	_, err = m.AddTransaction(t2)
	require.NoError(t, err)
	_, err = m.AddTransaction(t3)
	require.NoError(t, err)

	// T2 and T3 must not be exposed as batch roots before T1 commits.
	_, txs, ok := m.SelectBatch()
	require.True(t, ok)
	require.Equal(t, []TxID{t1.ID}, txs)
	b1 := deriveBatchID(txs)
	require.NoError(t, m.CommitBatch(b1, []byte("proof1")))

	_, txs, ok = m.SelectBatch()
	require.True(t, ok)
	require.Equal(t, []TxID{t2.ID}, txs)
	b2 := deriveBatchID(txs)
	require.NoError(t, m.CommitBatch(b2, []byte("proof2")))

	_, txs, ok = m.SelectBatch()
	require.True(t, ok)
	require.Equal(t, []TxID{t3.ID}, txs)
	b3 := deriveBatchID(txs)
	require.NoError(t, m.CommitBatch(b3, []byte("proof3")))

	blockID, batches, err := m.SelectBlock()
	require.NoError(t, err)
	require.ElementsMatch(t, []BatchID{b1, b2, b3}, batches)
	require.NoError(t, m.CommitBlock(blockID))
	require.EqualValues(t, 1, m.CommittedHeight())
}

// S2 Cross-tx unauthenticated note: T1 produces note N, T2 consumes it.
// Admitting T2 before T1 fails; admitting T1 then T2 succeeds and T2 never
// appears before T1 in batch selection.
func TestScenarioCrossTxUnauthenticatedNote(t *testing.T) {
	N := note(1)

	m := newTestMempool()
	t2Early := &Transaction{
		ID:                      hash(2),
		Account:                 acct(2),
		ConsumedUnauthenticated: []NoteID{N},
		Expiration:              1000,
	}
	_, err := m.AddTransaction(t2Early)
	require.ErrorIs(t, err, ErrUnauthenticatedNoteNotFound)

	m2 := newTestMempool()
	t1 := &Transaction{
		ID:            hash(1),
		Account:       acct(1),
		ProducedNotes: []NoteID{N},
		Expiration:    1000,
	}
	t2 := &Transaction{
		ID:                      hash(2),
		Account:                 acct(2),
		ConsumedUnauthenticated: []NoteID{N},
		Expiration:              1000,
	}
	_, err = m2.AddTransaction(t1)
	require.NoError(t, err)
	_, err = m2.AddTransaction(t2)
	require.NoError(t, err)

	_, txs, ok := m2.SelectBatch()
	require.True(t, ok)
	require.Contains(t, txs, t1.ID)
	require.NotContains(t, txs, t2.ID)
}

// S3 Double-spend: T1 and T2 both consume committed note N. T2 fails
// NoteAlreadyConsumed.
func TestScenarioDoubleSpend(t *testing.T) {
	N := note(1)
	m := newTestMempool()

	t1 := &Transaction{ID: hash(1), Account: acct(1), ConsumedAuthenticated: []NoteID{N}, Expiration: 1000}
	t2 := &Transaction{ID: hash(2), Account: acct(2), ConsumedAuthenticated: []NoteID{N}, Expiration: 1000}

	_, err := m.AddTransaction(t1)
	require.NoError(t, err)
	_, err = m.AddTransaction(t2)
	require.ErrorIs(t, err, ErrNoteAlreadyConsumed)
}

// S4 Batch failure cascade: B1 contains T1; B2 contains T2 with parent T1.
// commit_batch(B1), commit_batch(B2), then fail_batch(B1) reverts T1, T2
// and B2 (they stay in their graphs in the Reverted state), and leaves the
// account's in-flight state empty.
func TestScenarioBatchFailureCascade(t *testing.T) {
	m := newTestMempool()
	A := acct(1)
	c0, c1, c2 := commit(0), commit(1), commit(2)

	t1 := newTestTx(1, A, c0, c1, 100)
	t2 := newTestTx(2, A, c1, c2, 100)
	_, err := m.AddTransaction(t1)
	require.NoError(t, err)
	_, err = m.AddTransaction(t2)
	require.NoError(t, err)

	_, txs1, ok := m.SelectBatch()
	require.True(t, ok)
	b1 := deriveBatchID(txs1)
	require.NoError(t, m.CommitBatch(b1, []byte("p1")))

	_, txs2, ok := m.SelectBatch()
	require.True(t, ok)
	require.Equal(t, []TxID{t2.ID}, txs2)
	b2 := deriveBatchID(txs2)
	require.NoError(t, m.CommitBatch(b2, []byte("p2")))

	require.NoError(t, m.FailBatch(b1))

	require.True(t, m.inflight.accountState(A).Empty())
	_, state, found := m.txGraph.Get(t1.ID)
	require.True(t, found)
	require.Equal(t, StateReverted, state)
	_, state, found = m.txGraph.Get(t2.ID)
	require.True(t, found)
	require.Equal(t, StateReverted, state)
	_, state, found = m.batchGraph.Get(b2)
	require.True(t, found)
	require.Equal(t, StateReverted, state)
}

// S5 Expiration purge: T1 expires at height 2. Committing block 1 advances
// the horizon (the next block height) to 2, reverting T1; a later
// select_batch never returns it.
func TestScenarioExpirationPurge(t *testing.T) {
	// MaxTxsPerBatch of 1 lets us control exactly which of the two
	// independent, unrelated transactions gets batched first.
	m := New(Config{MaxTxsPerBatch: 1, MaxBatchesPerBlock: 1, BatchBudget: DefaultBatchBudget, BlockBudget: DefaultBlockBudget})

	filler := newTestTx(2, acct(2), Commitment{}, commit(2), 1000)
	expiring := newTestTx(1, acct(1), Commitment{}, commit(1), 2)
	_, err := m.AddTransaction(filler)
	require.NoError(t, err)
	_, err = m.AddTransaction(expiring)
	require.NoError(t, err)

	_, txs, ok := m.SelectBatch()
	require.True(t, ok)
	require.Equal(t, []TxID{filler.ID}, txs)
	batchID := deriveBatchID(txs)
	require.NoError(t, m.CommitBatch(batchID, []byte("p")))

	blockID, _, err := m.SelectBlock()
	require.NoError(t, err)
	require.NoError(t, m.CommitBlock(blockID))
	require.EqualValues(t, 1, m.CommittedHeight())

	_, state, found := m.txGraph.Get(expiring.ID)
	require.True(t, found)
	require.Equal(t, StateReverted, state)

	_, _, ok = m.SelectBatch()
	require.False(t, ok)
}

// S6 Block rollback re-eligibility: batch B1 selected into a block;
// fail_block returns it to being available, and a later select_block
// includes it again.
func TestScenarioBlockRollbackReeligibility(t *testing.T) {
	m := newTestMempool()

	t1 := newTestTx(1, acct(1), Commitment{}, commit(1), 1000)
	_, err := m.AddTransaction(t1)
	require.NoError(t, err)
	_, txs, ok := m.SelectBatch()
	require.True(t, ok)
	b1 := deriveBatchID(txs)
	require.NoError(t, m.CommitBatch(b1, []byte("p1")))

	blockID, batches, err := m.SelectBlock()
	require.NoError(t, err)
	require.Contains(t, batches, b1)

	require.NoError(t, m.FailBlock())
	require.False(t, m.BlockInProgress())

	blockID2, batches2, err := m.SelectBlock()
	require.NoError(t, err)
	require.Contains(t, batches2, b1)
	require.NotEqual(t, BlockID{}, blockID)
	require.NoError(t, m.CommitBlock(blockID2))
}

// Idempotence: re-adding an identical transaction returns
// TransactionAlreadyInMempool and leaves state unchanged.
func TestAddTransactionIdempotent(t *testing.T) {
	m := newTestMempool()
	tx := newTestTx(1, acct(1), Commitment{}, commit(1), 1000)
	_, err := m.AddTransaction(tx)
	require.NoError(t, err)
	_, err = m.AddTransaction(tx)
	require.ErrorIs(t, err, ErrTransactionAlreadyInMempool)
	require.Equal(t, 1, m.txGraph.Len())
}

// Stale vs mismatched account state are distinguished: mismatch with no
// prior in-flight chain, stale once a chain exists.
func TestAccountStateErrors(t *testing.T) {
	m := newTestMempool()
	A := acct(1)

	bad := newTestTx(1, A, commit(9), commit(1), 1000)
	_, err := m.AddTransaction(bad)
	require.ErrorIs(t, err, ErrAccountStateMismatch)

	good := newTestTx(2, A, Commitment{}, commit(1), 1000)
	_, err = m.AddTransaction(good)
	require.NoError(t, err)

	stale := newTestTx(3, A, commit(9), commit(2), 1000)
	_, err = m.AddTransaction(stale)
	require.ErrorIs(t, err, ErrStaleAccountState)
}

func TestCommitBlockRequiresInProgress(t *testing.T) {
	m := newTestMempool()
	err := m.CommitBlock(hash(1))
	require.ErrorIs(t, err, ErrNoBlockInProgress)
}

func TestSelectBlockRejectsConcurrentBlock(t *testing.T) {
	m := newTestMempool()
	tx := newTestTx(1, acct(1), Commitment{}, commit(1), 1000)
	_, err := m.AddTransaction(tx)
	require.NoError(t, err)
	_, txs, ok := m.SelectBatch()
	require.True(t, ok)
	batchID := deriveBatchID(txs)
	require.NoError(t, m.CommitBatch(batchID, []byte("p")))

	_, _, err = m.SelectBlock()
	require.NoError(t, err)
	_, _, err = m.SelectBlock()
	require.ErrorIs(t, err, ErrBlockInProgress)
}
