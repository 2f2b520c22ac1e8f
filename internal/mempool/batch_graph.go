package mempool

// BatchGraph specializes DependencyGraph over batches: nodes are keyed by
// BatchID and hold the *Batch payload (proposed or proven).
type BatchGraph struct {
	*DependencyGraph[BatchID, *Batch]
}

func newBatchGraph() *BatchGraph {
	return &BatchGraph{DependencyGraph: NewDependencyGraph[BatchID, *Batch]()}
}

// SelectRoots greedily picks up to maxBatches batches available for a
// block, in insertion order, skipping (but leaving eligible) any candidate
// that would push the running block past budget.
//
// A batch becomes available for a block once it is proven (commit_batch
// has attached a proof) and its own parent batches have already committed
// into an earlier block — i.e. once it reaches InFlight in this graph.
// Pending batches (proposed but not yet proven, or proven but still
// waiting on a parent batch to commit) are never selected.
func (g *BatchGraph) SelectRoots(budget BlockBudget, maxBatches int) []BatchID {
	running := newBlockUsage()
	var selected []BatchID

	for _, id := range g.StateKeys(StateInFlight) {
		if len(selected) >= maxBatches {
			break
		}
		batch, _, ok := g.Get(id)
		if !ok {
			continue
		}
		if !running.tryAdd(batch, budget) {
			continue
		}
		selected = append(selected, id)
	}
	return selected
}

// PromoteProven promotes any batch that is currently a Pending root (its
// parent batches have just all become Processed) and already carries a
// proof, so that a batch proven before its dependency chain committed
// becomes selectable for a block as soon as it is eligible.
func (g *BatchGraph) PromoteProven() {
	g.TryPromotePendingRoots(func(b *Batch) bool {
		return b != nil && b.Proof != nil
	})
}
