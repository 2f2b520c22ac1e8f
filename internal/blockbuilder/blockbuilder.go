// Package blockbuilder runs the periodic loop that assembles committed
// batches into a block, proves it, and submits it to the store (§4.7).
//
// A failure before the store acknowledges ApplyBlock is recoverable: the
// batches return to circulation via FailBlock. A failure after the store
// has acknowledged the block is not: the mempool and store would disagree
// about committed state, so the process exits rather than risk silently
// diverging from the chain it is supposed to be extending.
package blockbuilder

import (
	"context"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/rollup-labs/block-producer/internal/mempool"
	"github.com/rollup-labs/block-producer/internal/metrics"
	"github.com/rollup-labs/block-producer/internal/prover"
	"github.com/rollup-labs/block-producer/internal/store"
)

// FatalExitCode is the process exit status used when a block's store
// submission fails after the store has already acknowledged it: a
// condition this process cannot safely recover from on its own.
const FatalExitCode = 70

// Builder drives one block per tick: select, fetch block inputs, prove,
// submit, then commit or fail.
type Builder struct {
	Mempool  *mempool.Mempool
	Store    store.Client
	Prover   prover.BlockProver
	Interval time.Duration
	Log      log.Logger

	// Exit is called on unrecoverable post-ack failure; overridable in
	// tests. Defaults to os.Exit(FatalExitCode).
	Exit func()
}

// Run ticks until ctx is cancelled.
func (b *Builder) Run(ctx context.Context) {
	l := b.Log
	if l == nil {
		l = log.Root()
	}
	if b.Exit == nil {
		b.Exit = func() { os.Exit(FatalExitCode) }
	}

	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Info("block builder shutting down")
			return
		case <-ticker.C:
			b.tick(ctx, l)
		}
	}
}

func (b *Builder) tick(ctx context.Context, l log.Logger) {
	blockID, batches, err := b.Mempool.SelectBlock()
	if err != nil {
		l.Debug("no block selected", "err", err)
		return
	}
	if len(batches) == 0 {
		return
	}
	metrics.BlocksSelected.Inc(1)

	proof, blockBytes, err := b.proveBlock(ctx, l, blockID, batches)
	if err != nil {
		l.Warn("block proving failed, failing block", "block", blockID, "err", err)
		b.failBlock(blockID, l)
		return
	}
	_ = proof

	if err := b.submit(ctx, blockBytes); err != nil {
		l.Warn("block submission failed before store ack, failing block", "block", blockID, "err", err)
		b.failBlock(blockID, l)
		return
	}

	if err := b.Mempool.CommitBlock(blockID); err != nil {
		l.Error("store committed block but mempool commit failed; state has diverged", "block", blockID, "err", err)
		b.Exit()
		return
	}
	metrics.BlocksCommitted.Inc(1)
	l.Info("block committed", "block", blockID, "batches", len(batches))
}

func (b *Builder) proveBlock(ctx context.Context, l log.Logger, blockID mempool.BlockID, batches []mempool.BatchID) (proof []byte, blockBytes []byte, err error) {
	inputs, err := b.Store.GetBlockInputs(ctx, nil, nil, nil)
	if err != nil {
		return nil, nil, err
	}

	req := prover.BlockProvingRequest{
		PrevHeader: inputs.PrevHeader,
		MMRPeaks:   inputs.MMRPeaks,
	}
	start := time.Now()
	proof, err = b.Prover.ProveBlock(ctx, req)
	metrics.BlockProvingTime.UpdateSince(start)
	if err != nil {
		return nil, nil, err
	}
	return proof, proof, nil
}

// submit applies the block to the store. A non-nil error here means the
// store never acknowledged the block, so it is always safe to retry via
// FailBlock; ApplyBlock's own retry budget is what stands between this and
// a genuinely fatal divergence, which surfaces instead as a CommitBlock
// failure below once the store has already committed.
func (b *Builder) submit(ctx context.Context, blockBytes []byte) error {
	return b.Store.ApplyBlock(ctx, blockBytes)
}

func (b *Builder) failBlock(blockID mempool.BlockID, l log.Logger) {
	metrics.BlocksFailed.Inc(1)
	if err := b.Mempool.FailBlock(); err != nil {
		l.Error("failed to mark block failed", "block", blockID, "err", err)
	}
}
