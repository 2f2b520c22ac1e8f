package mempool

// BatchBudget bounds the resources a single proposed batch may consume.
type BatchBudget struct {
	MaxTxs          int
	MaxAccounts     int
	MaxInputNotes   int
	MaxOutputNotes  int
}

// BlockBudget bounds the aggregate resources a single block may consume.
type BlockBudget struct {
	MaxBatches      int
	MaxAccounts     int
	MaxInputNotes   int
	MaxOutputNotes  int
}

// DefaultBatchBudget mirrors the SERVER_MAX_* constants named in §6/§4.5.
var DefaultBatchBudget = BatchBudget{
	MaxTxs:         64,
	MaxAccounts:    64,
	MaxInputNotes:  256,
	MaxOutputNotes: 256,
}

// DefaultBlockBudget mirrors the SERVER_MAX_* constants named in §6/§4.5.
var DefaultBlockBudget = BlockBudget{
	MaxBatches:     16,
	MaxAccounts:    1024,
	MaxInputNotes:  4096,
	MaxOutputNotes: 4096,
}

// batchUsage tracks the resources consumed so far while greedily filling a
// batch from transaction-graph roots.
type batchUsage struct {
	accounts    map[AccountID]struct{}
	inputNotes  int
	outputNotes int
}

func newBatchUsage() *batchUsage {
	return &batchUsage{accounts: make(map[AccountID]struct{})}
}

// tryAdd reports whether tx fits within budget given what has already been
// accepted, and if so commits the usage.
func (u *batchUsage) tryAdd(tx *Transaction, budget BatchBudget) bool {
	_, alreadyCounted := u.accounts[tx.Account]
	accounts := len(u.accounts)
	if !alreadyCounted {
		accounts++
	}
	inputNotes := u.inputNotes + len(tx.AllConsumedNotes())
	outputNotes := u.outputNotes + len(tx.ProducedNotes)

	if accounts > budget.MaxAccounts || inputNotes > budget.MaxInputNotes || outputNotes > budget.MaxOutputNotes {
		return false
	}

	u.accounts[tx.Account] = struct{}{}
	u.inputNotes = inputNotes
	u.outputNotes = outputNotes
	return true
}

// blockUsage tracks the resources consumed so far while greedily filling a
// block from batch-graph roots.
type blockUsage struct {
	accounts    map[AccountID]struct{}
	inputNotes  int
	outputNotes int
}

func newBlockUsage() *blockUsage {
	return &blockUsage{accounts: make(map[AccountID]struct{})}
}

func (u *blockUsage) tryAdd(batch *Batch, budget BlockBudget) bool {
	newAccounts := 0
	for acc := range batch.AccountUpdates {
		if _, ok := u.accounts[acc]; !ok {
			newAccounts++
		}
	}
	accounts := len(u.accounts) + newAccounts
	inputNotes := u.inputNotes + len(batch.ConsumedNotes)
	outputNotes := u.outputNotes + len(batch.ProducedNotes)

	if accounts > budget.MaxAccounts || inputNotes > budget.MaxInputNotes || outputNotes > budget.MaxOutputNotes {
		return false
	}

	for acc := range batch.AccountUpdates {
		u.accounts[acc] = struct{}{}
	}
	u.inputNotes = inputNotes
	u.outputNotes = outputNotes
	return true
}
