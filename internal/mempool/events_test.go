package mempool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeBatchAndBlockCommitted(t *testing.T) {
	m := newTestMempool()

	batchCh := make(chan BatchCommitted, 1)
	sub := m.SubscribeBatchCommitted(batchCh)
	defer sub.Unsubscribe()

	blockCh := make(chan BlockCommitted, 1)
	blockSub := m.SubscribeBlockCommitted(blockCh)
	defer blockSub.Unsubscribe()

	tx := newTestTx(1, acct(1), Commitment{}, commit(1), 1000)
	_, err := m.AddTransaction(tx)
	require.NoError(t, err)

	batchID, txs, ok := m.SelectBatch()
	require.True(t, ok)
	require.Len(t, txs, 1)

	require.NoError(t, m.CommitBatch(batchID, []byte("proof")))

	select {
	case ev := <-batchCh:
		require.Equal(t, batchID, ev.BatchID)
		require.Equal(t, []TxID{tx.ID}, ev.Txs)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for BatchCommitted event")
	}

	blockID, batches, err := m.SelectBlock()
	require.NoError(t, err)
	require.Equal(t, []BatchID{batchID}, batches)

	require.NoError(t, m.CommitBlock(blockID))

	select {
	case ev := <-blockCh:
		require.Equal(t, blockID, ev.BlockID)
		require.Equal(t, BlockHeight(1), ev.Height)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for BlockCommitted event")
	}
}
