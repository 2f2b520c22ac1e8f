// Package batchbuilder runs the periodic loop that turns mempool-selected
// transaction roots into proven, committed batches (§4.6).
package batchbuilder

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/rollup-labs/block-producer/internal/mempool"
	"github.com/rollup-labs/block-producer/internal/metrics"
	"github.com/rollup-labs/block-producer/internal/prover"
	"github.com/rollup-labs/block-producer/internal/store"
)

// Builder drives one batch per tick: select, fetch store inputs, prove,
// then commit or fail. Proving for distinct batches may overlap, bounded
// by MaxConcurrent, but each batch's own select->commit sequence is
// strictly ordered.
type Builder struct {
	Mempool       *mempool.Mempool
	Store         store.Client
	Prover        prover.BatchProver
	Interval      time.Duration
	MaxConcurrent int
	Log           log.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

// Run ticks until ctx is cancelled, then drains in-flight proving tasks
// before returning.
func (b *Builder) Run(ctx context.Context) {
	l := b.Log
	if l == nil {
		l = log.Root()
	}
	if b.MaxConcurrent <= 0 {
		b.MaxConcurrent = 1
	}
	b.sem = make(chan struct{}, b.MaxConcurrent)

	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Info("batch builder shutting down, draining in-flight proving tasks")
			b.wg.Wait()
			return
		case <-ticker.C:
			b.tick(ctx, l)
		}
	}
}

func (b *Builder) tick(ctx context.Context, l log.Logger) {
	select {
	case b.sem <- struct{}{}:
	default:
		// At capacity: skip this tick entirely, before anything is
		// selected. FailBatch permanently drops a batch's transactions
		// (§4.5: "not re-queued"), so a saturated prover pool must never
		// select a batch only to fail it right back out again.
		l.Debug("batch builder at capacity, skipping tick")
		return
	}

	batchID, txs, ok := b.Mempool.SelectBatch()
	if !ok {
		<-b.sem
		return
	}
	metrics.BatchesSelected.Inc(1)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.sem }()
		b.proveAndCommit(ctx, l, batchID, txs)
	}()
}

func (b *Builder) proveAndCommit(ctx context.Context, l log.Logger, batchID mempool.BatchID, txs []mempool.TxID) {
	unauth := b.unauthenticatedNotes(batchID)

	witnesses, err := b.Store.GetBatchInputs(ctx, unauth)
	if err != nil {
		l.Warn("failed to fetch batch inputs, failing batch", "batch", batchID, "err", err)
		b.fail(batchID, l)
		return
	}

	req := prover.BatchProvingRequest{
		NoteWitnesses: make(map[[32]byte][]byte, len(witnesses)),
	}
	for _, w := range witnesses {
		req.NoteWitnesses[w.NoteID] = w.Proof
	}

	start := time.Now()
	proof, err := b.Prover.ProveBatch(ctx, req)
	metrics.BatchProvingTime.UpdateSince(start)
	if err != nil {
		l.Warn("batch proving failed", "batch", batchID, "err", err)
		b.fail(batchID, l)
		return
	}

	if err := b.Mempool.CommitBatch(batchID, proof); err != nil {
		l.Error("failed to commit proven batch", "batch", batchID, "err", err)
		return
	}
	metrics.BatchesCommitted.Inc(1)
	l.Info("batch committed", "batch", batchID, "txs", len(txs))
}

func (b *Builder) fail(batchID mempool.BatchID, l log.Logger) {
	metrics.BatchesFailed.Inc(1)
	if err := b.Mempool.FailBatch(batchID); err != nil {
		l.Error("failed to mark batch failed", "batch", batchID, "err", err)
	}
}

// unauthenticatedNotes collects the notes this batch's transactions claim
// as unauthenticated but does not already know how to satisfy in-flight:
// a note produced by a sibling transaction in the same batch needs no
// store witness (§6: get_batch_inputs is for notes "claimed as
// unauthenticated but already committed"), so only the remainder is sent
// to the store.
func (b *Builder) unauthenticatedNotes(batchID mempool.BatchID) []mempool.NoteID {
	txs, ok := b.Mempool.BatchTransactions(batchID)
	if !ok {
		return nil
	}
	producedInBatch := make(map[mempool.NoteID]struct{})
	for _, tx := range txs {
		for _, n := range tx.ProducedNotes {
			producedInBatch[n] = struct{}{}
		}
	}
	var notes []mempool.NoteID
	for _, tx := range txs {
		for _, n := range tx.ConsumedUnauthenticated {
			if _, ok := producedInBatch[n]; ok {
				continue
			}
			notes = append(notes, n)
		}
	}
	return notes
}
