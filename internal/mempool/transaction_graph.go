package mempool

// TransactionGraph specializes DependencyGraph over transactions: nodes are
// keyed by TxID and hold the full *Transaction payload.
type TransactionGraph struct {
	*DependencyGraph[TxID, *Transaction]
}

func newTransactionGraph() *TransactionGraph {
	return &TransactionGraph{DependencyGraph: NewDependencyGraph[TxID, *Transaction]()}
}

// SelectRoots greedily picks up to maxTxs roots, in root order, skipping
// (but leaving eligible) any candidate that would push the running batch
// past budget. It never mutates graph state.
func (g *TransactionGraph) SelectRoots(budget BatchBudget, maxTxs int) []TxID {
	running := newBatchUsage()
	var selected []TxID

	for _, id := range g.Roots() {
		if len(selected) >= maxTxs {
			break
		}
		tx, _, ok := g.Get(id)
		if !ok {
			continue
		}
		if !running.tryAdd(tx, budget) {
			continue
		}
		selected = append(selected, id)
	}
	return selected
}
