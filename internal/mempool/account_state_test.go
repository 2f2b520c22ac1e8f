package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInflightAccountStateChain(t *testing.T) {
	a := newInflightAccountState(commit(0))

	require.NoError(t, a.Insert(commit(0), commit(1), hash(1)))
	require.NoError(t, a.Insert(commit(1), commit(2), hash(2)))

	err := a.Insert(commit(9), commit(3), hash(3))
	require.ErrorIs(t, err, ErrAccountStateMismatch)

	tail, tx, ok := a.Tail()
	require.True(t, ok)
	require.Equal(t, commit(2), tail)
	require.Equal(t, hash(2), tx)
}

func TestInflightAccountStateRevertTruncatesSuffix(t *testing.T) {
	a := newInflightAccountState(commit(0))
	require.NoError(t, a.Insert(commit(0), commit(1), hash(1)))
	require.NoError(t, a.Insert(commit(1), commit(2), hash(2)))
	require.NoError(t, a.Insert(commit(2), commit(3), hash(3)))

	a.Revert(map[TxID]struct{}{hash(2): {}})

	tail, tx, ok := a.Tail()
	require.True(t, ok)
	require.Equal(t, commit(1), tail)
	require.Equal(t, hash(1), tx)
}

func TestInflightAccountStatePruneCommittedPrefix(t *testing.T) {
	a := newInflightAccountState(commit(0))
	require.NoError(t, a.Insert(commit(0), commit(1), hash(1)))
	require.NoError(t, a.Insert(commit(1), commit(2), hash(2)))
	require.NoError(t, a.Insert(commit(2), commit(3), hash(3)))

	a.PruneCommitted(map[TxID]struct{}{hash(1): {}, hash(2): {}})

	tail, tx, ok := a.Tail()
	require.True(t, ok)
	require.Equal(t, commit(3), tail)
	require.Equal(t, hash(3), tx)

	// A fresh transaction must now chain from the remaining in-flight tail.
	require.NoError(t, a.Insert(commit(3), commit(4), hash(4)))
}
