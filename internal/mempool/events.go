package mempool

import "github.com/ethereum/go-ethereum/event"

// BatchCommitted is sent on BatchCommittedFeed whenever CommitBatch
// succeeds, mirroring the teacher's chain-head-style event types
// (core/types.ChainHeadEvent) used to fan events out to subscribers
// instead of having them poll.
type BatchCommitted struct {
	BatchID BatchID
	Txs     []TxID
}

// BlockCommitted is sent on BlockCommittedFeed whenever CommitBlock
// succeeds.
type BlockCommitted struct {
	BlockID BlockID
	Height  BlockHeight
	Batches []BatchID
}

// SubscribeBatchCommitted registers ch to receive every future
// BatchCommitted event. The returned subscription must be closed by the
// caller when done, per event.Feed's contract.
func (m *Mempool) SubscribeBatchCommitted(ch chan<- BatchCommitted) event.Subscription {
	return m.batchCommittedFeed.Subscribe(ch)
}

// SubscribeBlockCommitted registers ch to receive every future
// BlockCommitted event.
func (m *Mempool) SubscribeBlockCommitted(ch chan<- BlockCommitted) event.Subscription {
	return m.blockCommittedFeed.Subscribe(ch)
}
