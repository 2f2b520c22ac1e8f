package mempool

import (
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rollup-labs/block-producer/internal/metrics"
)

// Config bundles the tunables Mempool needs at construction time. Selection
// limits and budgets come from §6's recognized configuration options.
type Config struct {
	MaxTxsPerBatch     int
	MaxBatchesPerBlock int
	BatchBudget        BatchBudget
	BlockBudget        BlockBudget

	// CommittedHeight is the height of the last block the store has
	// already committed, used to seed the expiration horizon.
	CommittedHeight BlockHeight

	Log log.Logger
}

// DefaultConfig mirrors the teacher's DefaultConfig-constant convention
// (core/txpool's own DefaultConfig).
var DefaultConfig = Config{
	MaxTxsPerBatch:     DefaultBatchBudget.MaxTxs,
	MaxBatchesPerBlock: DefaultBlockBudget.MaxBatches,
	BatchBudget:        DefaultBatchBudget,
	BlockBudget:        DefaultBlockBudget,
}

// Mempool is the block-producer's speculative scheduler. It guards every
// piece of mutable state under a single mutex; operations are O(degree of
// the touched nodes) and never perform I/O or proving while holding the
// lock.
type Mempool struct {
	mu sync.Mutex

	log log.Logger

	txGraph    *TransactionGraph
	batchGraph *BatchGraph
	inflight   *InflightState

	batchBudget        BatchBudget
	blockBudget        BlockBudget
	maxTxsPerBatch     int
	maxBatchesPerBlock int

	committedHeight BlockHeight
	blockInProgress *BlockInProgress

	// txBatch tracks which batch currently owns a not-yet-committed
	// transaction, so SelectBatch can derive a new batch's parent batches
	// from its transactions' parents.
	txBatch map[TxID]BatchID

	batchCommittedFeed event.Feed
	blockCommittedFeed event.Feed
}

// New constructs an empty Mempool at the given committed height.
func New(cfg Config) *Mempool {
	l := cfg.Log
	if l == nil {
		l = log.Root()
	}
	maxTxs := cfg.MaxTxsPerBatch
	if maxTxs == 0 {
		maxTxs = DefaultBatchBudget.MaxTxs
	}
	maxBatches := cfg.MaxBatchesPerBlock
	if maxBatches == 0 {
		maxBatches = DefaultBlockBudget.MaxBatches
	}

	m := &Mempool{
		log:                l,
		txGraph:            newTransactionGraph(),
		batchGraph:         newBatchGraph(),
		inflight:           newInflightState(),
		batchBudget:        cfg.BatchBudget,
		blockBudget:        cfg.BlockBudget,
		maxTxsPerBatch:     maxTxs,
		maxBatchesPerBlock: maxBatches,
		committedHeight:    cfg.CommittedHeight,
		txBatch:            make(map[TxID]BatchID),
	}
	m.inflight.horizon = cfg.CommittedHeight + 1
	return m
}

// SeedAccountCommitment primes an account's committed baseline ahead of any
// transaction touching it. Never called by mempool operations themselves;
// an account that was never seeded starts from the zero commitment.
func (m *Mempool) SeedAccountCommitment(account AccountID, commitment Commitment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight.SeedAccountCommitment(account, commitment)
}

// SeedCommittedNote primes the known-committed-notes set ahead of any
// transaction referencing it as unauthenticated.
func (m *Mempool) SeedCommittedNote(note NoteID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight.SeedCommittedNote(note)
}

// AddTransaction validates tx against the committed-plus-in-flight state
// and, on success, admits it into the transaction graph. It returns the
// mempool's currently committed block height.
func (m *Mempool) AddTransaction(tx *Transaction) (BlockHeight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.txGraph.Contains(tx.ID) {
		return m.committedHeight, ErrTransactionAlreadyInMempool
	}

	parents, err := m.inflight.VerifyAndAdd(tx)
	if err != nil {
		metrics.Rejected()
		return 0, err
	}

	parentIDs := make([]TxID, 0, len(parents))
	for p := range parents {
		parentIDs = append(parentIDs, p)
	}
	if err := m.txGraph.InsertPending(tx.ID, parentIDs, tx); err != nil {
		// The ancestors VerifyAndAdd named are always graph members (they
		// were admitted through this same path); reaching here means the
		// two structures drifted out of sync, which is a programmer error.
		panic("mempool: transaction graph and inflight state diverged: " + err.Error())
	}

	metrics.TxAdmitted.Inc(1)
	metrics.TxGraphSize.Update(int64(m.txGraph.Len()))
	m.log.Debug("admitted transaction", "tx", tx.ID, "account", tx.Account, "parents", len(parentIDs))
	return m.committedHeight, nil
}

// SelectBatch greedily assembles up to MaxTxsPerBatch transaction roots
// within BatchBudget and promotes them to InFlight. It never blocks; an
// empty, ok=false result means there is currently no batch to propose.
func (m *Mempool) SelectBatch() (BatchID, []TxID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txs := m.txGraph.SelectRoots(m.batchBudget, m.maxTxsPerBatch)
	if len(txs) == 0 {
		return BatchID{}, nil, false
	}

	batchID := deriveBatchID(txs)
	batch := &Batch{
		ID:             batchID,
		Txs:            txs,
		AccountUpdates: make(map[AccountID]Commitment),
		ConsumedNotes:  make(map[NoteID]struct{}),
		ProducedNotes:  make(map[NoteID]struct{}),
	}

	parentBatches := make(map[BatchID]struct{})
	for _, id := range txs {
		tx, _, _ := m.txGraph.Get(id)
		batch.AccountUpdates[tx.Account] = tx.FinalAccount
		for _, n := range tx.AllConsumedNotes() {
			batch.ConsumedNotes[n] = struct{}{}
		}
		for _, n := range tx.ProducedNotes {
			batch.ProducedNotes[n] = struct{}{}
		}
		for _, p := range m.txGraph.Parents(id) {
			if bID, ok := m.txBatch[p]; ok {
				parentBatches[bID] = struct{}{}
			}
		}
	}
	parents := make([]BatchID, 0, len(parentBatches))
	for b := range parentBatches {
		parents = append(parents, b)
	}

	if err := m.batchGraph.InsertPending(batchID, parents, batch); err != nil {
		panic("mempool: batch graph insertion failed for freshly selected batch: " + err.Error())
	}
	for _, id := range txs {
		if err := m.txGraph.PromoteToInFlight(id); err != nil {
			panic("mempool: selected root failed promotion: " + err.Error())
		}
		m.txBatch[id] = batchID
	}

	metrics.BatchGraphSize.Update(int64(m.batchGraph.Len()))
	m.log.Debug("selected batch", "batch", batchID, "txs", len(txs))
	return batchID, txs, true
}

// CommitBatch marks every transaction in the batch Processed, attaches its
// proof, and promotes the batch itself to InFlight (available for a block)
// once its own parent batches have committed.
func (m *Mempool) CommitBatch(batchID BatchID, proof []byte) error {
	m.mu.Lock()

	batch, _, ok := m.batchGraph.Get(batchID)
	if !ok {
		m.mu.Unlock()
		return ErrUnknownBatch
	}

	for _, txID := range batch.Txs {
		if err := m.txGraph.MarkProcessed(txID); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	batch.Proof = proof
	m.batchGraph.SetValue(batchID, batch)
	_ = m.batchGraph.PromoteToInFlight(batchID)

	m.log.Debug("committed batch", "batch", batchID, "txs", len(batch.Txs))
	txs := append([]TxID(nil), batch.Txs...)
	m.mu.Unlock()

	m.batchCommittedFeed.Send(BatchCommitted{BatchID: batchID, Txs: txs})
	return nil
}

// FailBatch reverts every transaction in the batch and their transitive
// descendants, in both graphs, and releases their in-flight state. Reverted
// transactions are dropped; their proofs were conditional on an ordering
// that no longer exists.
func (m *Mempool) FailBatch(batchID BatchID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch, _, ok := m.batchGraph.Get(batchID)
	if !ok {
		return ErrUnknownBatch
	}

	revertedTxs := m.txGraph.Revert(batch.Txs)
	revertedSet := toSet(revertedTxs)
	m.inflight.Revert(revertedSet)
	for _, id := range revertedTxs {
		delete(m.txBatch, id)
	}

	m.batchGraph.Revert([]BatchID{batchID})

	metrics.TxReverted.Inc(int64(len(revertedTxs)))
	metrics.TxGraphSize.Update(int64(m.txGraph.Len()))
	metrics.BatchGraphSize.Update(int64(m.batchGraph.Len()))
	m.log.Warn("failed batch", "batch", batchID, "reverted_txs", len(revertedTxs))
	return nil
}

// SelectBlock picks up to MaxBatchesPerBlock batches available for a block
// (proven, with their own dependency chain already committed) within
// BlockBudget. Only one block may be in progress at a time.
func (m *Mempool) SelectBlock() (BlockID, []BatchID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.blockInProgress != nil {
		return BlockID{}, nil, ErrBlockInProgress
	}

	batches := m.batchGraph.SelectRoots(m.blockBudget, m.maxBatchesPerBlock)
	if len(batches) == 0 {
		return BlockID{}, nil, nil
	}

	height := m.committedHeight + 1
	blockID := deriveBlockID(height, batches)

	bip := &BlockInProgress{
		ID:             blockID,
		Height:         height,
		Batches:        batches,
		AccountUpdates: make(map[AccountID]Commitment),
		ConsumedNotes:  make(map[NoteID]struct{}),
		ProducedNotes:  make(map[NoteID]struct{}),
	}
	for _, id := range batches {
		b, _, _ := m.batchGraph.Get(id)
		for acc, commitment := range b.AccountUpdates {
			bip.AccountUpdates[acc] = commitment
		}
		for n := range b.ConsumedNotes {
			bip.ConsumedNotes[n] = struct{}{}
		}
		for n := range b.ProducedNotes {
			bip.ProducedNotes[n] = struct{}{}
		}
	}
	m.blockInProgress = bip

	m.log.Debug("selected block", "block", blockID, "height", height, "batches", len(batches))
	return blockID, batches, nil
}

// CommitBlock prunes the committed batches and their transactions from both
// graphs, commits the in-flight state deltas, advances the expiration
// horizon, and reverts any transaction that horizon newly expires.
func (m *Mempool) CommitBlock(blockID BlockID) error {
	m.mu.Lock()

	if m.blockInProgress == nil || m.blockInProgress.ID != blockID {
		m.mu.Unlock()
		return ErrNoBlockInProgress
	}
	bip := m.blockInProgress

	var allTxs []TxID
	for _, bID := range bip.Batches {
		batch, _, ok := m.batchGraph.Get(bID)
		if !ok {
			continue
		}
		if err := m.batchGraph.MarkProcessed(bID); err != nil {
			m.mu.Unlock()
			return err
		}
		allTxs = append(allTxs, batch.Txs...)
	}
	m.batchGraph.PromoteProven()

	if err := m.txGraph.Prune(allTxs); err != nil {
		m.mu.Unlock()
		return err
	}
	if err := m.batchGraph.Prune(bip.Batches); err != nil {
		m.mu.Unlock()
		return err
	}

	committedSet := toSet(allTxs)
	m.inflight.Commit(committedSet)
	for _, id := range allTxs {
		delete(m.txBatch, id)
	}

	m.committedHeight = bip.Height
	m.blockInProgress = nil

	expired := m.inflight.AdvanceHorizon(m.committedHeight + 1)
	if len(expired) > 0 {
		revertedTxs := m.txGraph.Revert(expired)
		m.inflight.Revert(toSet(revertedTxs))
		for _, id := range revertedTxs {
			delete(m.txBatch, id)
		}
		metrics.TxExpired.Inc(int64(len(revertedTxs)))
		metrics.TxReverted.Inc(int64(len(revertedTxs)))
		m.log.Debug("purged expired transactions", "count", len(revertedTxs), "horizon", m.inflight.Horizon())
	}

	metrics.TxGraphSize.Update(int64(m.txGraph.Len()))
	metrics.BatchGraphSize.Update(int64(m.batchGraph.Len()))
	m.log.Info("committed block", "block", blockID, "height", m.committedHeight, "batches", len(bip.Batches), "txs", len(allTxs))
	height := m.committedHeight
	batches := append([]BatchID(nil), bip.Batches...)
	m.mu.Unlock()

	m.blockCommittedFeed.Send(BlockCommitted{BlockID: blockID, Height: height, Batches: batches})
	return nil
}

// FailBlock reverts the block-in-progress. Its batches are left exactly as
// they were (InFlight, i.e. proven and available): their proofs are still
// valid against the earlier chain tip, so they become re-eligible for a
// future block without any further work. Transactions are not reverted.
func (m *Mempool) FailBlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.blockInProgress == nil {
		return ErrNoBlockInProgress
	}
	m.log.Warn("failed block", "block", m.blockInProgress.ID, "batches", len(m.blockInProgress.Batches))
	m.blockInProgress = nil
	return nil
}

// BatchTransactions returns the full transaction payloads belonging to a
// still-tracked batch, in selection order, for callers (the batch builder)
// that need more than the ids SelectBatch already returned.
func (m *Mempool) BatchTransactions(batchID BatchID) ([]*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch, _, ok := m.batchGraph.Get(batchID)
	if !ok {
		return nil, false
	}
	txs := make([]*Transaction, 0, len(batch.Txs))
	for _, id := range batch.Txs {
		tx, _, ok := m.txGraph.Get(id)
		if !ok {
			continue
		}
		txs = append(txs, tx)
	}
	return txs, true
}

// CommittedHeight returns the height of the last block this mempool has
// committed.
func (m *Mempool) CommittedHeight() BlockHeight {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committedHeight
}

// BlockInProgress reports whether a block is currently being assembled.
func (m *Mempool) BlockInProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockInProgress != nil
}

func toSet(ids []TxID) map[TxID]struct{} {
	set := make(map[TxID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
