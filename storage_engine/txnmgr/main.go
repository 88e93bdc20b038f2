package txnmgr

import (
	"fmt"
	"sync/atomic"
)

/*
Transaction manager manages the BEGIN, COMMIT, ABORT state of quries that are to be made Atomically
(either all queries should run or none)
*/

func NewTxnManager() (*TxnManager, error) {
	return &TxnManager{
		nextID:     1,
		activeTxns: make(map[uint64]*Transaction),
	}, nil
}

// SetFlushHandler registers the callback Commit/Abort drive once a
// transaction's final state is set. Must be called once, before
// any Begin, since the engine and the txn manager are wired up together.
func (tm *TxnManager) SetFlushHandler(h FlushHandler) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.flusher = h
}

// Begin starts a new transaction and registers it as active.
func (tm *TxnManager) Begin() *Transaction {
	// Use atomic increment to safely issue txn IDs from multiple goroutines.
	txnID := atomic.AddUint64(&tm.nextID, 1) - 1

	txn := &Transaction{
		ID:    txnID,
		State: TxnActive,
	}

	tm.mu.Lock()
	tm.activeTxns[txnID] = txn
	tm.mu.Unlock()

	return txn
}

// Commit marks a transaction as committed, removes it from the active set and
// then runs the FlushHandler's OnCommit. It writes no WAL record itself.
func (tm *TxnManager) Commit(txnID uint64) error {
	tm.mu.Lock()
	txn, exists := tm.activeTxns[txnID]
	if !exists {
		tm.mu.Unlock()
		// Already committed/aborted or never existed — idempotent.
		return nil
	}

	if txn.State == TxnAborted {
		tm.mu.Unlock()
		return fmt.Errorf("transaction %d was already aborted", txnID)
	}

	txn.State = TxnCommitted
	delete(tm.activeTxns, txnID)
	flusher := tm.flusher
	tm.mu.Unlock()

	if flusher != nil {
		return flusher.OnCommit(txnID)
	}
	return nil
}

// Abort marks a transaction as aborted and removes it from the active set.
// It writes no WAL record itself. Rollback of
// the transaction's overlay operations is the engine's job, driven through
// the registered FlushHandler — nothing here reached the B-tree yet, so
// there's nothing to physically undo at this layer.
func (tm *TxnManager) Abort(txnID uint64) error {
	tm.mu.Lock()
	txn, exists := tm.activeTxns[txnID]
	if !exists {
		tm.mu.Unlock()
		// Already committed/aborted or never existed — idempotent.
		return nil
	}

	if txn.State == TxnCommitted {
		tm.mu.Unlock()
		return fmt.Errorf("transaction %d was already committed", txnID)
	}

	txn.State = TxnAborted
	delete(tm.activeTxns, txnID)
	flusher := tm.flusher
	tm.mu.Unlock()

	if flusher != nil {
		return flusher.OnAbort(txnID)
	}
	return nil
}

// GetTransaction returns the transaction with the given ID, or nil if not found.
func (tm *TxnManager) GetTransaction(txnID uint64) *Transaction {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.activeTxns[txnID]
}

// IsActive returns true if the given txnID is currently active.
func (tm *TxnManager) IsActive(txnID uint64) bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	_, exists := tm.activeTxns[txnID]
	return exists
}

// ActiveTransactions returns a snapshot of all currently active transactions.
// Used by the core's Database.Close to find transactions still in flight.
func (tm *TxnManager) ActiveTransactions() []*Transaction {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	txns := make([]*Transaction, 0, len(tm.activeTxns))
	for _, txn := range tm.activeTxns {
		txns = append(txns, txn)
	}
	return txns
}
