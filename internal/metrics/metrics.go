// Package metrics registers the block-producer's runtime gauges and
// counters against go-ethereum's metrics registry, the same registry the
// teacher's own subsystems (core/txpool, p2p) publish to.
package metrics

import "github.com/ethereum/go-ethereum/metrics"

var (
	// TxGraphSize tracks the number of transactions currently tracked by
	// the transaction dependency graph, across every lifecycle state.
	TxGraphSize = metrics.NewRegisteredGauge("blockproducer/mempool/txgraph/size", nil)

	// BatchGraphSize tracks the number of batches currently tracked by the
	// batch dependency graph.
	BatchGraphSize = metrics.NewRegisteredGauge("blockproducer/mempool/batchgraph/size", nil)

	// TxAdmitted counts successfully admitted transactions.
	TxAdmitted = metrics.NewRegisteredCounter("blockproducer/mempool/tx/admitted", nil)
	// TxRejected counts transactions that fail AddTransaction's validation,
	// incremented via Rejected(); the rejection reason is not recorded.
	TxRejected = metrics.NewRegisteredCounter("blockproducer/mempool/tx/rejected", nil)
	// TxReverted counts transactions reverted by a batch failure, or purged
	// by expiration.
	TxReverted = metrics.NewRegisteredCounter("blockproducer/mempool/tx/reverted", nil)
	// TxExpired counts transactions specifically purged by expiration
	// horizon advancement, a subset of TxReverted.
	TxExpired = metrics.NewRegisteredCounter("blockproducer/mempool/tx/expired", nil)

	// BatchesSelected counts batches proposed by the batch builder loop.
	BatchesSelected = metrics.NewRegisteredCounter("blockproducer/batchbuilder/selected", nil)
	// BatchesCommitted counts batches successfully proven and committed.
	BatchesCommitted = metrics.NewRegisteredCounter("blockproducer/batchbuilder/committed", nil)
	// BatchesFailed counts batches failed because fetching their store
	// inputs or proving them failed.
	BatchesFailed = metrics.NewRegisteredCounter("blockproducer/batchbuilder/failed", nil)

	// BlocksSelected counts blocks proposed by the block builder loop.
	BlocksSelected = metrics.NewRegisteredCounter("blockproducer/blockbuilder/selected", nil)
	// BlocksCommitted counts blocks successfully applied to the store.
	BlocksCommitted = metrics.NewRegisteredCounter("blockproducer/blockbuilder/committed", nil)
	// BlocksFailed counts blocks that failed before the store acknowledged
	// them (safe, retryable failures distinct from the fatal post-ack case).
	BlocksFailed = metrics.NewRegisteredCounter("blockproducer/blockbuilder/failed", nil)

	// BatchProvingTime times ProveBatch calls, local or remote.
	BatchProvingTime = metrics.NewRegisteredTimer("blockproducer/prover/batch/duration", nil)
	// BlockProvingTime times ProveBlock calls, local or remote.
	BlockProvingTime = metrics.NewRegisteredTimer("blockproducer/prover/block/duration", nil)

	// StoreRPCTime times outbound store RPCs, including their retries; it
	// is a single timer shared by every store call.
	StoreRPCTime = metrics.NewRegisteredTimer("blockproducer/store/rpc/duration", nil)
)

// Rejected increments TxRejected. Kept as a function rather than a bare
// counter so call sites read as an event, matching core/txpool's style of
// wrapping single-purpose increments.
func Rejected() {
	TxRejected.Inc(1)
}
