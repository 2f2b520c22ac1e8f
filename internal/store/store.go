// Package store talks to the authoritative store service: the one source
// of truth for committed account/note state. Every call here is a
// suspension point and must run outside the mempool lock; callers re-apply
// results under the lock in a second critical section.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru"

	"github.com/rollup-labs/block-producer/internal/mempool"
	"github.com/rollup-labs/block-producer/internal/metrics"
)

// ErrUnavailable is the transient error surfaced to clients (§7
// StoreUnavailable) when the store cannot be reached within the retry
// budget; callers should retry the submission.
var ErrUnavailable = errors.New("store: unavailable")

// TransactionInputs is the store's answer to get_transaction_inputs: the
// account's current committed commitment, plus which of the referenced
// nullifiers are already spent.
type TransactionInputs struct {
	AccountCommitment mempool.Commitment
	SpentNullifiers   map[mempool.NoteID]bool
}

// NoteAuthentication is the per-note proof the store returns for notes
// claimed as unauthenticated-but-already-committed (get_batch_inputs).
type NoteAuthentication struct {
	NoteID mempool.NoteID
	Proof  []byte
}

// BlockInputs is the store's answer to get_block_inputs: everything a
// block prover needs beyond what the mempool already knows.
type BlockInputs struct {
	PrevHeader         []byte
	MMRPeaks           [][]byte
	AccountWitnesses   map[mempool.AccountID][]byte
	NullifierWitnesses map[mempool.NoteID][]byte
	NoteInclusions     []NoteAuthentication
}

// Client is the block-producer's view of the store. A concrete
// implementation dials the store's RPC endpoint; tests substitute an
// in-memory fake.
type Client interface {
	GetTransactionInputs(ctx context.Context, account mempool.AccountID, nullifiers []mempool.NoteID) (TransactionInputs, error)
	GetBatchInputs(ctx context.Context, unauthenticatedNotes []mempool.NoteID) ([]NoteAuthentication, error)
	GetBlockInputs(ctx context.Context, accounts []mempool.AccountID, nullifiers, unauthenticatedNotes []mempool.NoteID) (BlockInputs, error)
	ApplyBlock(ctx context.Context, blockBytes []byte) error
}

// RPCClient is a Client backed by a remote store over a transport the
// caller supplies (gRPC in production); a note-witness cache for
// GetBatchInputs smooths over the common case of several pending
// transactions referencing the same note.
type RPCClient struct {
	transport Transport

	witnessCache *lru.Cache
	backoff      func() backoff.BackOff
}

// Transport is the thin RPC surface RPCClient drives; cmd/block-producer
// backs it with a hand-written gRPC transport.
type Transport interface {
	GetTransactionInputs(ctx context.Context, account mempool.AccountID, nullifiers []mempool.NoteID) (TransactionInputs, error)
	GetBatchInputs(ctx context.Context, unauthenticatedNotes []mempool.NoteID) ([]NoteAuthentication, error)
	GetBlockInputs(ctx context.Context, accounts []mempool.AccountID, nullifiers, unauthenticatedNotes []mempool.NoteID) (BlockInputs, error)
	ApplyBlock(ctx context.Context, blockBytes []byte) error
}

const witnessCacheSize = 4096

// NewRPCClient wraps transport with witness caching and retry.
func NewRPCClient(transport Transport) (*RPCClient, error) {
	cache, err := lru.New(witnessCacheSize)
	if err != nil {
		return nil, fmt.Errorf("store: failed to allocate witness cache: %w", err)
	}
	return &RPCClient{
		transport:    transport,
		witnessCache: cache,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0 // bounded by the caller's context deadline instead
			return b
		},
	}, nil
}

func (c *RPCClient) withRetry(ctx context.Context, op func() error) error {
	start := time.Now()
	defer func() { metrics.StoreRPCTime.UpdateSince(start) }()
	err := backoff.Retry(func() error {
		if err := op(); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, backoff.WithContext(c.backoff(), ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetTransactionInputs fetches the account commitment and nullifier status
// needed to validate a freshly submitted transaction.
func (c *RPCClient) GetTransactionInputs(ctx context.Context, account mempool.AccountID, nullifiers []mempool.NoteID) (TransactionInputs, error) {
	var result TransactionInputs
	err := c.withRetry(ctx, func() error {
		var err error
		result, err = c.transport.GetTransactionInputs(ctx, account, nullifiers)
		return err
	})
	return result, err
}

// GetBatchInputs fetches merkle witnesses for notes a batch claims are
// unauthenticated but already committed, using the witness cache to avoid
// refetching a note several pending transactions reference.
func (c *RPCClient) GetBatchInputs(ctx context.Context, unauthenticatedNotes []mempool.NoteID) ([]NoteAuthentication, error) {
	var uncached []mempool.NoteID
	cached := make([]NoteAuthentication, 0, len(unauthenticatedNotes))
	for _, n := range unauthenticatedNotes {
		if v, ok := c.witnessCache.Get(n); ok {
			cached = append(cached, v.(NoteAuthentication))
			continue
		}
		uncached = append(uncached, n)
	}
	if len(uncached) == 0 {
		return cached, nil
	}

	var fetched []NoteAuthentication
	err := c.withRetry(ctx, func() error {
		var err error
		fetched, err = c.transport.GetBatchInputs(ctx, uncached)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, f := range fetched {
		c.witnessCache.Add(f.NoteID, f)
	}
	return append(cached, fetched...), nil
}

// GetBlockInputs fetches everything the block prover needs beyond what the
// mempool's aggregate state already provides.
func (c *RPCClient) GetBlockInputs(ctx context.Context, accounts []mempool.AccountID, nullifiers, unauthenticatedNotes []mempool.NoteID) (BlockInputs, error) {
	var result BlockInputs
	err := c.withRetry(ctx, func() error {
		var err error
		result, err = c.transport.GetBlockInputs(ctx, accounts, nullifiers, unauthenticatedNotes)
		return err
	})
	return result, err
}

// ApplyBlock submits a committed block to the store. A failure here after
// the store has actually acknowledged the block is fatal and must not be
// retried by this client: the caller is responsible for distinguishing
// "no ack received" (safe to retry/fail_block) from "ack received, then
// something else broke" (§7: process exit).
func (c *RPCClient) ApplyBlock(ctx context.Context, blockBytes []byte) error {
	return c.withRetry(ctx, func() error {
		return c.transport.ApplyBlock(ctx, blockBytes)
	})
}
