package mempool

import "errors"

// Graph-level errors, returned by the generic DependencyGraph and its
// transaction/batch specializations.
var (
	ErrUnknownParent       = errors.New("mempool: parent key not found or reverted")
	ErrDuplicateKey        = errors.New("mempool: key already present in graph")
	ErrParentsNotProcessed = errors.New("mempool: not all parents are processed")
	ErrNotProcessed        = errors.New("mempool: node is not processed")
	ErrUnknownKey          = errors.New("mempool: key not found in graph")
)

// InflightAccountState errors.
var (
	ErrAccountStateMismatch = errors.New("mempool: account state mismatch")
)

// InflightState / add_transaction errors, surfaced to clients per §7.
var (
	ErrStaleAccountState           = errors.New("mempool: stale account state")
	ErrNoteAlreadyConsumed         = errors.New("mempool: note already consumed")
	ErrUnauthenticatedNoteNotFound = errors.New("mempool: unauthenticated note not found")
	ErrExpired                     = errors.New("mempool: transaction expired")
)

// Mempool-level errors.
var (
	ErrTransactionAlreadyInMempool = errors.New("mempool: transaction already in mempool")
	ErrUnknownBatch                = errors.New("mempool: unknown batch id")
	ErrBlockInProgress             = errors.New("mempool: a block is already in progress")
	ErrNoBlockInProgress           = errors.New("mempool: no block in progress")
)
