package engine

import (
	"txnkv/storage_engine/txnmgr"
	"txnkv/types"
)

// OpKind tags what a TxnOperation did. Kept as an explicit small enum
// rather than layering it on top of types.Flags bits, per the reference
// design's recommendation to prefer explicit variants over flag soup.
type OpKind int

const (
	OpInsert OpKind = iota
	OpInsertOverwrite
	OpInsertDuplicate
	OpErase
	OpNop
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpInsertOverwrite:
		return "insert-overwrite"
	case OpInsertDuplicate:
		return "insert-duplicate"
	case OpErase:
		return "erase"
	case OpNop:
		return "nop"
	default:
		return "unknown"
	}
}

// TxnOperation is a single mutation attached to a transaction and a key's
// TxnNode. Immutable after creation except for Flushed and the cursor set,
// both of which are only ever touched under the owning Database's lock.
type TxnOperation struct {
	node *TxnNode
	// txn is a weak reference by identity: the spec never lets us mutate
	// another transaction's state through it, only compare State/ID.
	txn *txnmgr.Transaction

	Kind  OpKind
	Flags types.Flags
	LSN   uint64

	Record types.Record // present for Insert* kinds

	// RefDupe is the 1-based duplicate index this op refers to, 0 if none.
	RefDupe int

	Flushed bool

	prevInNode *TxnOperation

	cursors map[*Cursor]struct{}
}

func newTxnOperation(node *TxnNode, owner *txnmgr.Transaction, kind OpKind, flags types.Flags, lsn uint64) *TxnOperation {
	return &TxnOperation{
		node:    node,
		txn:     owner,
		Kind:    kind,
		Flags:   flags,
		LSN:     lsn,
		cursors: make(map[*Cursor]struct{}),
	}
}

func (op *TxnOperation) TxnID() uint64               { return op.txn.ID }
func (op *TxnOperation) belongsTo(t *txnmgr.Transaction) bool { return op.txn == t }
func (op *TxnOperation) isAborted() bool             { return op.txn.State == txnmgr.TxnAborted }
func (op *TxnOperation) isCommitted() bool           { return op.txn.State == txnmgr.TxnCommitted }

func (op *TxnOperation) PreviousInNode() *TxnOperation { return op.prevInNode }

func (op *TxnOperation) coupleCursor(c *Cursor) {
	op.cursors[c] = struct{}{}
}

func (op *TxnOperation) uncoupleCursor(c *Cursor) {
	delete(op.cursors, c)
}

// CoupledCursors returns a snapshot slice, safe to range over while the
// caller mutates cursor coupling state.
func (op *TxnOperation) CoupledCursors() []*Cursor {
	out := make([]*Cursor, 0, len(op.cursors))
	for c := range op.cursors {
		out = append(out, c)
	}
	return out
}
