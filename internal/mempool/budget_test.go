package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatchUsageSkipsOverBudgetCandidates(t *testing.T) {
	budget := BatchBudget{MaxTxs: 10, MaxAccounts: 1, MaxInputNotes: 10, MaxOutputNotes: 10}
	u := newBatchUsage()

	tx1 := &Transaction{Account: acct(1)}
	tx2 := &Transaction{Account: acct(2)}

	require.True(t, u.tryAdd(tx1, budget))
	require.False(t, u.tryAdd(tx2, budget), "second distinct account should exceed MaxAccounts")

	// The same account as already counted does not consume more budget.
	tx1b := &Transaction{Account: acct(1)}
	require.True(t, u.tryAdd(tx1b, budget))
}

func TestBatchUsageNoteLimits(t *testing.T) {
	budget := BatchBudget{MaxTxs: 10, MaxAccounts: 10, MaxInputNotes: 1, MaxOutputNotes: 10}
	u := newBatchUsage()

	tx := &Transaction{Account: acct(1), ConsumedAuthenticated: []NoteID{note(1), note(2)}}
	require.False(t, u.tryAdd(tx, budget))
}

func TestTransactionGraphSelectRootsRespectsMaxTxs(t *testing.T) {
	g := newTransactionGraph()
	for i := byte(1); i <= 5; i++ {
		tx := &Transaction{ID: hash(i), Account: acct(i)}
		require.NoError(t, g.InsertPending(tx.ID, nil, tx))
	}

	selected := g.SelectRoots(DefaultBatchBudget, 2)
	require.Len(t, selected, 2)
}
