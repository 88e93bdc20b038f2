package txnmgr

import "sync"

type TxnState uint8

const (
	TxnActive TxnState = iota
	TxnCommitted
	TxnAborted
)

// FlushHandler lets a higher layer (the storage core) react to a
// transaction's commit or abort without txnmgr importing it back —
// engine registers itself as the Flusher so Commit can drive
// flush_txn_operation over everything the transaction touched.
type FlushHandler interface {
	OnCommit(txnID uint64) error
	OnAbort(txnID uint64) error
}

type Transaction struct {
	ID    uint64
	State TxnState

	// Touched is the set of database names this transaction wrote to.
	// Populated by the core as it records operations, consulted by the
	// core's Database.Close to find transactions still open against it.
	Touched map[string]struct{}
}

func (txn *Transaction) MarkTouched(dbName string) {
	if txn.Touched == nil {
		txn.Touched = make(map[string]struct{})
	}
	txn.Touched[dbName] = struct{}{}
}

type TxnManager struct {
	nextID     uint64
	activeTxns map[uint64]*Transaction // all currently active transactions
	flusher    FlushHandler
	mu         sync.RWMutex
}
