package engine

import (
	"bytes"

	"txnkv/storage_engine/txnmgr"
	"txnkv/types"
)

// CreateCursor opens a new cursor against db, scoped to txn (nil for an
// implicit-transaction or non-transactional cursor).
func (db *Database) CreateCursor(t *txnmgr.Transaction) *Cursor {
	c := newCursor(db, t)
	db.registerCursor(c)
	return c
}

// Clone duplicates c's current coupling and duplicate position (§6
// Cursor.Clone) onto a freshly registered cursor.
func (c *Cursor) Clone() *Cursor {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()

	nc := newCursor(db, c.txn)
	nc.coupling = c.coupling
	nc.btreeKey = append([]byte(nil), c.btreeKey...)
	nc.posKey = append([]byte(nil), c.posKey...)
	nc.dupeIndex = c.dupeIndex
	nc.lastOp = c.lastOp
	nc.firstUse = c.firstUse

	if c.coupling == CouplingTxnOp && c.node != nil && c.op != nil {
		nc.node = c.node
		nc.op = c.op
		c.op.coupleCursor(nc)
		c.node.retain()
	}

	db.cursors[nc] = struct{}{}
	return nc
}

// Insert is Database.insertTxn/insertDirect routed through a positioned
// cursor, coupling it to the new item on success (§4.3 step 4).
func (c *Cursor) Insert(key types.Key, rec types.Record, flags types.Flags) (types.Key, types.Status) {
	db := c.db
	if !db.flags.Has(types.EnableTransactions) {
		rk, status := db.insertDirect(key, rec, flags)
		if status == types.Success {
			db.mu.Lock()
			c.coupleToBtree(rk.Data)
			db.mu.Unlock()
			c.posKey = append([]byte(nil), rk.Data...)
			c.firstUse = false
			c.lastOp = LastOpLookupOrInsert
		}
		return rk, status
	}

	rk, status := db.insertTxn(c.txn, key, rec, flags, c)
	if status == types.Success {
		c.posKey = append([]byte(nil), rk.Data...)
		c.firstUse = false
		c.lastOp = LastOpLookupOrInsert
	}
	return rk, status
}

// Find is Database.findTxn/findDirect routed through c so the cursor ends
// up coupled to whatever it found (§4.4).
func (c *Cursor) Find(key types.Key, flags types.Flags) (types.Key, types.Record, types.Status) {
	db := c.db

	if !db.flags.Has(types.EnableTransactions) {
		rk, rec, status := db.findDirect(key, flags)
		if status == types.Success {
			db.mu.Lock()
			c.coupleToBtree(rk.Data)
			db.mu.Unlock()
			c.posKey = append([]byte(nil), rk.Data...)
			c.firstUse = false
			c.lastOp = LastOpLookupOrInsert
		}
		return rk, rec, status
	}

	rk, rec, status := db.findTxn(c.txn, key, flags, c)
	if status == types.Success {
		db.mu.Lock()
		count := db.recordCountAtKeyLocked(c.txn, rk.Data)
		db.mu.Unlock()
		if count > 1 {
			c.dupeIndex = 1
		} else {
			c.dupeIndex = 0
		}
		c.posKey = append([]byte(nil), rk.Data...)
		c.firstUse = false
		c.lastOp = LastOpLookupOrInsert
	}
	return rk, rec, status
}

// Erase removes the item the cursor is positioned on (§4.5), leaving the
// cursor Nil on success — peer cursors are handled by eraseTxn/eraseDirect.
func (c *Cursor) Erase(flags types.Flags) types.Status {
	db := c.db
	if c.coupling == CouplingNil {
		return types.CursorIsNil
	}

	if !db.flags.Has(types.EnableTransactions) {
		status := db.eraseDirect(types.Key{Data: append([]byte(nil), c.btreeKey...)}, flags)
		if status == types.Success {
			c.setNil()
		}
		return status
	}

	var key []byte
	switch c.coupling {
	case CouplingBtree:
		key = c.btreeKey
	case CouplingTxnOp:
		key = c.node.key
	}

	status := db.eraseTxn(c.txn, types.Key{Data: append([]byte(nil), key...)}, flags, c)
	if status == types.Success {
		c.setNil()
		c.lastOp = LastOpLookupOrInsert
	}
	return status
}

// Overwrite replaces the record at the cursor's current position (§6),
// implemented as an Insert with the Overwrite flag forced on.
func (c *Cursor) Overwrite(rec types.Record, flags types.Flags) types.Status {
	if c.coupling == CouplingNil {
		return types.CursorIsNil
	}
	var key []byte
	switch c.coupling {
	case CouplingBtree:
		key = c.btreeKey
	case CouplingTxnOp:
		key = c.node.key
	}
	_, status := c.Insert(types.Key{Data: append([]byte(nil), key...)}, rec, flags|types.Overwrite)
	return status
}

// RecordSize reports the byte length of the record at the cursor's current
// position, respecting which duplicate slot it's on.
func (c *Cursor) RecordSize() (int, types.Status) {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()

	switch c.coupling {
	case CouplingNil:
		return 0, types.CursorIsNil
	case CouplingTxnOp:
		if c.op != nil && c.op.Kind != OpErase {
			return len(c.op.Record.Data), types.Success
		}
		return 0, types.KeyNotFound
	default:
		raw := db.lookupRaw(c.btreeKey)
		if raw == nil {
			return 0, types.KeyNotFound
		}
		if db.flags.Has(types.EnableDuplicateKeys) {
			v := decodeDupeEnvelope(raw).at(c.DuplicatePositionOrOne())
			if v == nil {
				return 0, types.KeyNotFound
			}
			return len(v), types.Success
		}
		return len(raw), types.Success
	}
}

// Move drives the merged NEXT/PREV/FIRST/LAST walker (§4.7): the overlay
// and B-tree are re-merged on every call rather than maintaining a live
// iterator across both, since the B-tree's own iterator is forward-only —
// an accepted simplification for a walker that otherwise has to support
// reversal at any point.
func (c *Cursor) Move(flags types.Flags) (types.Key, types.Record, types.Status) {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()

	dir := c.resolveDirection(flags)
	keys := db.liveKeysAscendingLocked(c.txn)
	if len(keys) == 0 {
		c.setNil()
		c.lastOp = LastOpNone
		return types.Key{}, types.Record{}, types.KeyNotFound
	}

	idx := -1
	switch dir {
	case types.CursorFirst:
		idx = 0

	case types.CursorLast:
		idx = len(keys) - 1

	case types.CursorNext:
		cur := indexOfKey(keys, c.posKey)
		if cur == -1 {
			idx = 0
			break
		}
		if count := db.recordCountAtKeyLocked(c.txn, c.posKey); c.dupeIndex > 0 && c.dupeIndex < count {
			c.dupeIndex++
			raw := db.lookupRaw(c.posKey)
			rec, status := db.recordAtDupeLocked(raw, c.dupeIndex)
			c.lastOp = LastOpNext
			c.firstUse = false
			return types.Key{Data: append([]byte(nil), c.posKey...)}, rec, status
		}
		idx = cur + 1

	case types.CursorPrevious:
		cur := indexOfKey(keys, c.posKey)
		if cur == -1 {
			idx = len(keys) - 1
			break
		}
		if c.dupeIndex > 1 {
			c.dupeIndex--
			raw := db.lookupRaw(c.posKey)
			rec, status := db.recordAtDupeLocked(raw, c.dupeIndex)
			c.lastOp = LastOpPrevious
			c.firstUse = false
			return types.Key{Data: append([]byte(nil), c.posKey...)}, rec, status
		}
		idx = cur - 1
	}

	if idx < 0 || idx >= len(keys) {
		c.setNil()
		c.lastOp = LastOpNone
		return types.Key{}, types.Record{}, types.KeyNotFound
	}

	targetKey := keys[idx]
	key := types.Key{Data: append([]byte(nil), targetKey...)}
	rk, rec, status := db.findTxnLocked(c.txn, key, types.ExactMatch, c, 0)
	if status != types.Success {
		c.setNil()
		c.lastOp = LastOpNone
		return rk, rec, types.KeyNotFound
	}

	c.posKey = append([]byte(nil), targetKey...)
	count := db.recordCountAtKeyLocked(c.txn, targetKey)
	switch {
	case count > 1 && dir == types.CursorPrevious:
		c.dupeIndex = count
	case count > 1:
		c.dupeIndex = 1
	default:
		c.dupeIndex = 0
	}

	switch dir {
	case types.CursorNext:
		c.lastOp = LastOpNext
	case types.CursorPrevious:
		c.lastOp = LastOpPrevious
	default:
		c.lastOp = LastOpLookupOrInsert
	}
	c.firstUse = false
	return rk, rec, types.Success
}

// resolveDirection implements the "never used -> treat NEXT as FIRST" /
// "used but nil -> treat NEXT as LAST" rules from §4.7.
func (c *Cursor) resolveDirection(flags types.Flags) types.Flags {
	switch {
	case flags.Has(types.CursorNext):
		if c.firstUse {
			return types.CursorFirst
		}
		if c.coupling == CouplingNil {
			return types.CursorLast
		}
		return types.CursorNext
	case flags.Has(types.CursorPrevious):
		if c.firstUse {
			return types.CursorLast
		}
		if c.coupling == CouplingNil {
			return types.CursorFirst
		}
		return types.CursorPrevious
	default:
		return flags & (types.CursorFirst | types.CursorLast)
	}
}

func indexOfKey(keys [][]byte, key []byte) int {
	if key == nil {
		return -1
	}
	for i, k := range keys {
		if bytes.Equal(k, key) {
			return i
		}
	}
	return -1
}

// liveKeysAscendingLocked collects every live key in ascending order, for
// the merged walker. Caller must hold db.mu.
func (db *Database) liveKeysAscendingLocked(t *txnmgr.Transaction) [][]byte {
	var keys [][]byte
	db.scanLocked(t, func(key []byte, _ int) bool {
		keys = append(keys, append([]byte(nil), key...))
		return true
	})
	return keys
}

// recordCountAtKeyLocked is cursorRecordCount keyed by raw key bytes
// instead of by cursor, used by the merged walker to know how many
// duplicates to step through at a given position. Caller must hold db.mu.
func (db *Database) recordCountAtKeyLocked(t *txnmgr.Transaction, key []byte) int {
	node := db.overlay.Get(key)
	if count, live := db.overlayLiveCount(t, node); live {
		return count
	}
	raw := db.lookupRaw(key)
	if raw == nil {
		return 0
	}
	if db.flags.Has(types.EnableDuplicateKeys) {
		return decodeDupeEnvelope(raw).count()
	}
	return 1
}

// recordAtDupeLocked reads one duplicate slot out of a flushed envelope.
// Stepping through duplicates still held only in an uncommitted overlay op
// (before flush_txn_operation has run) falls back to whatever the B-tree
// last held for this key — a documented simplification, since the overlay
// only ever holds the newest unflushed duplicate, not a full per-slot list.
func (db *Database) recordAtDupeLocked(raw []byte, idx int) (types.Record, types.Status) {
	if raw == nil {
		return types.Record{}, types.KeyNotFound
	}
	if !db.flags.Has(types.EnableDuplicateKeys) {
		return types.Record{Data: append([]byte(nil), raw...)}, types.Success
	}
	v := decodeDupeEnvelope(raw).at(idx)
	if v == nil {
		return types.Record{}, types.KeyNotFound
	}
	return types.Record{Data: append([]byte(nil), v...)}, types.Success
}
