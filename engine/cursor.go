package engine

import (
	"txnkv/storage_engine/txnmgr"
	"txnkv/types"
)

// Coupling is which side of the merged index a Cursor's position is
// authoritative on (spec §3/§4.7).
type Coupling int

const (
	CouplingNil Coupling = iota
	CouplingBtree
	CouplingTxnOp
)

// LastOp tags the most recent move made on a cursor, used to resolve the
// "never used" / "already at the end" NEXT-vs-FIRST rules in §4.7.
type LastOp int

const (
	LastOpNone LastOp = iota
	LastOpNext
	LastOpPrevious
	LastOpLookupOrInsert
)

// dupecacheEntry references one duplicate slot, either living in the
// B-tree's envelope (BtreeIndex >= 1) or as an uncommitted overlay op.
type dupecacheEntry struct {
	btreeIndex int // 1-based, 0 means "see Op instead"
	op         *TxnOperation
}

// Cursor is the unified position (C7): either Nil, coupled to a B-tree
// slot, or coupled to a TxnOperation, with a materialized duplicate cache
// on top.
type Cursor struct {
	db  *Database
	txn *txnmgr.Transaction

	coupling Coupling

	btreeKey []byte // key the B-tree side is positioned on, when Btree/mixed

	op   *TxnOperation // coupled op, when CouplingTxnOp
	node *TxnNode      // node the above op belongs to — needed to detect peer shifts

	posKey []byte // key the merged walker last positioned this cursor on

	dupecache []dupecacheEntry
	dupeIndex int // 1-based position in dupecache, 0 = not on a duplicate

	lastOp   LastOp
	firstUse bool
}

func newCursor(db *Database, txn *txnmgr.Transaction) *Cursor {
	return &Cursor{db: db, txn: txn, firstUse: true}
}

func (c *Cursor) coupleToBtree(key []byte) {
	c.clearTxnOpSide()
	c.coupling = CouplingBtree
	c.btreeKey = append([]byte(nil), key...)
}

func (c *Cursor) coupleToTxnOp(node *TxnNode, op *TxnOperation) {
	if c.op != nil {
		c.op.uncoupleCursor(c)
	}
	if c.node != node {
		if c.node != nil {
			c.node.release()
		}
		node.retain()
	}
	c.coupling = CouplingTxnOp
	c.node = node
	c.op = op
	op.coupleCursor(c)
}

func (c *Cursor) clearTxnOpSide() {
	if c.op != nil {
		c.op.uncoupleCursor(c)
		c.op = nil
	}
	if c.node != nil {
		c.node.release()
		c.node = nil
	}
}

// setNil clears both sides and invalidates the dupecache.
func (c *Cursor) setNil() {
	c.clearTxnOpSide()
	c.btreeKey = nil
	c.posKey = nil
	c.coupling = CouplingNil
	c.clearDupecache()
}

func (c *Cursor) clearDupecache() {
	c.dupecache = nil
	c.dupeIndex = 0
}

// DuplicatePosition returns the cursor's 1-based duplicate index, 0 if not
// positioned on a duplicate set.
func (c *Cursor) DuplicatePosition() int { return c.dupeIndex }

func (c *Cursor) Close() {
	c.setNil()
	if c.db != nil {
		c.db.unregisterCursor(c)
	}
}

// GetRecordCount returns the number of duplicates under the cursor's
// current key, or 1 if the key has no duplicates.
func (c *Cursor) GetRecordCount(db *Database) (int, types.Status) {
	return db.cursorRecordCount(c)
}

// DuplicatePositionOrOne reports the cursor's duplicate index, treating an
// unpositioned cursor (index 0) as duplicate 1 — the convention used by
// record-count/record-size queries that don't care about duplicates.
func (c *Cursor) DuplicatePositionOrOne() int {
	if c.dupeIndex == 0 {
		return 1
	}
	return c.dupeIndex
}

// liveCursors returns every cursor coupled to one of n's ops, each listed
// once. insertTxn walks it to apply the duplicate index shift rule (§4.3):
// a peer cursor whose duplicate index is >= the inserted slot moves up by one.
func (n *TxnNode) liveCursors() []*Cursor {
	seen := make(map[*Cursor]struct{})
	var out []*Cursor
	n.forEachOp(func(op *TxnOperation) bool {
		for c := range op.cursors {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				out = append(out, c)
			}
		}
		return true
	})
	return out
}
