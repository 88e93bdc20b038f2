package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"txnkv/storage_engine/checkpoint"
	"txnkv/storage_engine/journal"
	"txnkv/storage_engine/pagemanager"
	"txnkv/storage_engine/txnmgr"
	"txnkv/types"
)

// Environment wires together the collaborators every Database shares: the
// page manager, the journal, the transaction manager, and the monotonic
// LSN counter and change-set the reference design keeps at environment
// scope rather than per-database (spec §5/§6).
type Environment struct {
	mu sync.Mutex

	Pages      *pagemanager.PageManager
	Journal    *journal.WALManager
	Txns       *txnmgr.TxnManager
	Checkpoint *checkpoint.CheckpointManager

	lsn uint64

	// changeSet holds, per transaction ID, the overlay ops that transaction
	// has recorded and that are not yet flushed: OnCommit drains a
	// transaction's list into the B-tree, OnAbort drops it (§4.10).
	changeSet map[uint64][]*pendingFlush

	databases map[string]*Database
}

type pendingFlush struct {
	dbName string
	node   *TxnNode
	op     *TxnOperation
}

// OpenEnvironment wires a fresh Environment against directory, creating the
// WAL and checkpoint files there if they don't already exist.
func OpenEnvironment(directory string, bufferPoolCapacity int) (*Environment, error) {
	wal, err := journal.OpenWAL(directory)
	if err != nil {
		return nil, fmt.Errorf("engine: open WAL: %w", err)
	}

	cp, err := checkpoint.NewCheckpointManager(directory)
	if err != nil {
		return nil, fmt.Errorf("engine: open checkpoint manager: %w", err)
	}

	pm := pagemanager.New(bufferPoolCapacity)
	pm.SetWALManager(wal)

	tm, err := txnmgr.NewTxnManager()
	if err != nil {
		return nil, fmt.Errorf("engine: open txn manager: %w", err)
	}

	env := &Environment{
		Pages:      pm,
		Journal:    wal,
		Txns:       tm,
		Checkpoint: cp,
		changeSet:  make(map[uint64][]*pendingFlush),
		databases:  make(map[string]*Database),
	}
	tm.SetFlushHandler(env)

	last, err := cp.LoadCheckpoint()
	if err != nil {
		return nil, fmt.Errorf("engine: load checkpoint: %w", err)
	}
	env.lsn = last.LSN

	return env, nil
}

// NextLSN hands out the next monotonic LSN (spec §5 ordering rule).
func (e *Environment) NextLSN() uint64 {
	return atomic.AddUint64(&e.lsn, 1)
}

func (e *Environment) registerDatabase(db *Database) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.databases[db.Name] = db
}

func (e *Environment) unregisterDatabase(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.databases, name)
}

// recordPending appends an op of txnID to that transaction's change-set at
// the time the op is recorded; OnCommit later drains it and OnAbort drops it
// (§4.10/§9).
func (e *Environment) recordPending(txnID uint64, dbName string, node *TxnNode, op *TxnOperation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changeSet[txnID] = append(e.changeSet[txnID], &pendingFlush{dbName: dbName, node: node, op: op})
}

// OnCommit implements txnmgr.FlushHandler: it is txn manager's
// flush_committed_txns() (§6), draining this transaction's change-set into
// each database's B-tree via flush_txn_operation (§4.6).
func (e *Environment) OnCommit(txnID uint64) error {
	e.mu.Lock()
	pending := e.changeSet[txnID]
	delete(e.changeSet, txnID)
	e.mu.Unlock()

	for _, p := range pending {
		db, ok := e.databases[p.dbName]
		if !ok {
			continue
		}
		if err := db.flushTxnOperation(p.node, p.op); err != nil {
			return fmt.Errorf("engine: flush on commit: %w", err)
		}
	}
	return nil
}

// OnAbort implements txnmgr.FlushHandler: an aborted transaction's ops are
// never flushed; they're dropped from the change-set and their TxnNodes
// are pruned once no cursor still references them.
func (e *Environment) OnAbort(txnID uint64) error {
	e.mu.Lock()
	delete(e.changeSet, txnID)
	databases := make([]*Database, 0, len(e.databases))
	for _, db := range e.databases {
		databases = append(databases, db)
	}
	e.mu.Unlock()

	for _, db := range databases {
		db.pruneAbortedTxn(txnID)
	}
	return nil
}

// Recover replays the journal from the last checkpoint's LSN against every
// currently open database, then raises the environment's LSN counter to the
// journal's high-water mark; the checkpoint file itself is not rewritten.
// This is recovery *wiring*: the byte-level log-replay
// mechanics stay a Non-goal, this just drives the replay loop.
func (e *Environment) Recover() error {
	last, err := e.Checkpoint.LoadCheckpoint()
	if err != nil {
		return err
	}

	if err := e.Journal.ReplayFromLSN(last.LSN+1, func(rec *types.JournalRecord) error {
		db, ok := e.databases[rec.DBName]
		if !ok {
			return nil
		}
		switch rec.Type {
		case types.JournalOpInsert:
			return db.btree.Insert(rec.Key, rec.Record)
		case types.JournalOpErase:
			return db.btree.Delete(rec.Key)
		}
		return nil
	}); err != nil {
		return err
	}

	if e.Journal.CurrentLSN > e.lsn {
		e.lsn = e.Journal.CurrentLSN
	}
	return nil
}
