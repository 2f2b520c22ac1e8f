// Package prover abstracts batch and block proving behind one interface so
// the builder loops don't care whether proofs are generated in-process or
// fetched from a remote prover service (§6, §9: "two variants selected by
// configuration, not subclassing").
package prover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrProvingFailed is wrapped around whatever the underlying prover
// returned, letting callers use errors.Is without caring which variant
// produced it.
var ErrProvingFailed = errors.New("prover: proving failed")

// BatchProver proves a batch of transactions given their proofs and the
// merkle witnesses the store supplied for any unauthenticated notes.
type BatchProver interface {
	ProveBatch(ctx context.Context, req BatchProvingRequest) ([]byte, error)
}

// BlockProver proves a block given its constituent batches and the store's
// block inputs.
type BlockProver interface {
	ProveBlock(ctx context.Context, req BlockProvingRequest) ([]byte, error)
}

// BatchProvingRequest carries everything a batch prover needs: the raw
// transaction payloads plus any witnesses the store returned for notes
// claimed as unauthenticated.
type BatchProvingRequest struct {
	TxProofs        [][]byte
	NoteWitnesses   map[[32]byte][]byte
}

// BlockProvingRequest carries the batch proofs and the store-sourced block
// inputs a block prover needs to aggregate them.
type BlockProvingRequest struct {
	BatchProofs [][]byte
	PrevHeader  []byte
	MMRPeaks    [][]byte
}

// LocalBatchProver runs batch proving in-process. Production deployments
// with spare CPU headroom use this to avoid a network hop; it is also what
// tests exercise.
type LocalBatchProver struct {
	// Prove is the actual proving routine; tests substitute a stub that
	// returns a deterministic fixture instead of running a real prover.
	Prove func(req BatchProvingRequest) ([]byte, error)
}

// ProveBatch runs Prove synchronously, respecting ctx cancellation as a
// best-effort check before starting (the underlying prover routine is not
// itself preemptible).
func (p *LocalBatchProver) ProveBatch(ctx context.Context, req BatchProvingRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	proof, err := p.Prove(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvingFailed, err)
	}
	return proof, nil
}

// LocalBlockProver mirrors LocalBatchProver for block aggregation proofs.
type LocalBlockProver struct {
	Prove func(req BlockProvingRequest) ([]byte, error)
}

// ProveBlock runs Prove synchronously.
func (p *LocalBlockProver) ProveBlock(ctx context.Context, req BlockProvingRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	proof, err := p.Prove(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvingFailed, err)
	}
	return proof, nil
}

// RemoteTransport is the RPC surface a remote prover client drives;
// cmd/block-producer backs it with a hand-written gRPC transport.
type RemoteTransport interface {
	ProveBatch(ctx context.Context, req BatchProvingRequest) ([]byte, error)
	ProveBlock(ctx context.Context, req BlockProvingRequest) ([]byte, error)
}

// RemoteProver proves batches and blocks by delegating to a remote prover
// service, retrying transient failures with exponential backoff: proving
// clusters are expected to be bursty and occasionally saturated, not down.
type RemoteProver struct {
	transport  RemoteTransport
	maxElapsed time.Duration
}

// NewRemoteProver wraps transport with a bounded retry budget. A zero
// maxElapsed disables the bound and retries until ctx is done.
func NewRemoteProver(transport RemoteTransport, maxElapsed time.Duration) *RemoteProver {
	return &RemoteProver{transport: transport, maxElapsed: maxElapsed}
}

func (p *RemoteProver) backoffPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.maxElapsed
	return b
}

// ProveBatch dispatches to the remote prover with retry.
func (p *RemoteProver) ProveBatch(ctx context.Context, req BatchProvingRequest) ([]byte, error) {
	var proof []byte
	err := backoff.Retry(func() error {
		var err error
		proof, err = p.transport.ProveBatch(ctx, req)
		return err
	}, backoff.WithContext(p.backoffPolicy(), ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvingFailed, err)
	}
	return proof, nil
}

// ProveBlock dispatches to the remote prover with retry.
func (p *RemoteProver) ProveBlock(ctx context.Context, req BlockProvingRequest) ([]byte, error) {
	var proof []byte
	err := backoff.Retry(func() error {
		var err error
		proof, err = p.transport.ProveBlock(ctx, req)
		return err
	}, backoff.WithContext(p.backoffPolicy(), ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvingFailed, err)
	}
	return proof, nil
}
