package mempool

// txRecord is the bookkeeping InflightState keeps per admitted transaction
// so that Revert/Commit can unwind exactly what VerifyAndAdd touched.
type txRecord struct {
	account  AccountID
	consumed []NoteID
	produced []NoteID
}

// InflightState is the speculative projection of the committed chain state
// plus every transaction admitted to the mempool but not yet committed. It
// answers verification queries for add_transaction and records the deltas
// those admissions cause.
type InflightState struct {
	accounts map[AccountID]*InflightAccountState
	// consumed maps a note id to the in-flight transaction consuming it,
	// authenticated or unauthenticated alike (invariant 5: exclusivity).
	consumed map[NoteID]TxID
	// produced maps a note id to the in-flight transaction producing it,
	// used to satisfy later unauthenticated consumption.
	produced map[NoteID]TxID
	// committedNotes are notes known to be committed in the store: either
	// seeded at startup or promoted here on Commit of their producer.
	committedNotes map[NoteID]struct{}

	records map[TxID]*txRecord

	expirations *TransactionExpirations
	horizon     BlockHeight
}

func newInflightState() *InflightState {
	return &InflightState{
		accounts:       make(map[AccountID]*InflightAccountState),
		consumed:       make(map[NoteID]TxID),
		produced:       make(map[NoteID]TxID),
		committedNotes: make(map[NoteID]struct{}),
		records:        make(map[TxID]*txRecord),
		expirations:    newTransactionExpirations(),
	}
}

// SeedAccountCommitment primes the committed baseline for an account that
// has no in-flight entries yet. Never called by the mempool's own
// operations.
func (s *InflightState) SeedAccountCommitment(account AccountID, commitment Commitment) {
	s.accounts[account] = newInflightAccountState(commitment)
}

// SeedCommittedNote marks a note as already committed in the store, so a
// transaction may later consume it as unauthenticated-but-known.
func (s *InflightState) SeedCommittedNote(note NoteID) {
	s.committedNotes[note] = struct{}{}
}

// Horizon returns the next-block height expirations are compared against.
func (s *InflightState) Horizon() BlockHeight { return s.horizon }

func (s *InflightState) accountState(account AccountID) *InflightAccountState {
	if a, ok := s.accounts[account]; ok {
		return a
	}
	a := newInflightAccountState(Commitment{})
	s.accounts[account] = a
	return a
}

// VerifyAndAdd validates tx against the committed-plus-in-flight state and,
// on success, records its deltas and returns the set of in-flight ancestor
// transaction ids (the account's predecessor, plus every producer of a
// consumed unauthenticated note).
func (s *InflightState) VerifyAndAdd(tx *Transaction) (map[TxID]struct{}, error) {
	if IsExpired(tx.Expiration, s.horizon) {
		return nil, ErrExpired
	}

	acct := s.accountState(tx.Account)
	tail, tailTx, hasTail := acct.Tail()
	if tail != tx.InitialAccount {
		if hasTail {
			return nil, ErrStaleAccountState
		}
		return nil, ErrAccountStateMismatch
	}

	allConsumed := tx.AllConsumedNotes()
	for _, n := range allConsumed {
		if _, ok := s.consumed[n]; ok {
			return nil, ErrNoteAlreadyConsumed
		}
	}

	parents := make(map[TxID]struct{})
	if hasTail {
		parents[tailTx] = struct{}{}
	}
	for _, n := range tx.ConsumedUnauthenticated {
		if producer, ok := s.produced[n]; ok {
			parents[producer] = struct{}{}
			continue
		}
		if _, ok := s.committedNotes[n]; ok {
			continue
		}
		return nil, ErrUnauthenticatedNoteNotFound
	}

	if err := acct.Insert(tx.InitialAccount, tx.FinalAccount, tx.ID); err != nil {
		return nil, err
	}
	for _, n := range allConsumed {
		s.consumed[n] = tx.ID
	}
	for _, n := range tx.ProducedNotes {
		s.produced[n] = tx.ID
	}
	s.expirations.Insert(tx.ID, tx.Expiration)
	s.records[tx.ID] = &txRecord{
		account:  tx.Account,
		consumed: allConsumed,
		produced: tx.ProducedNotes,
	}
	return parents, nil
}

// Revert atomically rolls back every transaction in ids: account chains are
// truncated, consumed notes unmarked, produced notes withdrawn, and
// expiration slots released.
func (s *InflightState) Revert(ids map[TxID]struct{}) {
	touchedAccounts := make(map[AccountID]struct{})
	for id := range ids {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		for _, n := range rec.consumed {
			if cur, ok := s.consumed[n]; ok && cur == id {
				delete(s.consumed, n)
			}
		}
		for _, n := range rec.produced {
			if cur, ok := s.produced[n]; ok && cur == id {
				delete(s.produced, n)
			}
		}
		s.expirations.Remove(id)
		touchedAccounts[rec.account] = struct{}{}
		delete(s.records, id)
	}
	for account := range touchedAccounts {
		s.accountState(account).Revert(ids)
	}
}

// Commit prunes the secondary indexes for ids with no possibility of later
// revert: committed prefixes are popped off each account's queue, consumed
// notes permanently leave the in-flight tracking set, and produced notes
// are promoted into the committed-notes set so later unauthenticated
// consumers can still find them.
func (s *InflightState) Commit(ids map[TxID]struct{}) {
	touchedAccounts := make(map[AccountID]struct{})
	for id := range ids {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		for _, n := range rec.consumed {
			delete(s.consumed, n)
		}
		for _, n := range rec.produced {
			delete(s.produced, n)
			s.committedNotes[n] = struct{}{}
		}
		s.expirations.Remove(id)
		touchedAccounts[rec.account] = struct{}{}
		delete(s.records, id)
	}
	for account := range touchedAccounts {
		s.accountState(account).PruneCommitted(ids)
	}
}

// AdvanceHorizon sets the next-block-height horizon and returns every
// transaction that is now expired (expiration <= horizon) so the caller
// can revert them from the graphs too.
func (s *InflightState) AdvanceHorizon(height BlockHeight) []TxID {
	s.horizon = height
	return s.expirations.ExpiresAtOrBefore(height)
}
