package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"txnkv/storage_engine/btree"
	"txnkv/storage_engine/txnmgr"
	"txnkv/types"
)

// Database is the per-database handle (C8): it owns one BTreeIndex, one
// overlay TxnIndex, and the set of cursors currently open against it, and
// orchestrates every insert/find/erase/move/scan so the result is
// consistent with both stores.
type Database struct {
	Name string

	env     *Environment
	btree   *btree.BTreeIndex
	overlay *TxnIndex
	cursors map[*Cursor]struct{}

	mu sync.Mutex

	flags      types.Flags
	keyType    types.KeyType
	recno      uint64
	recordSize int // 0 means variable-length records

	hot *hotCache
}

// CreateDatabase opens (creating if needed) the B-tree file backing cfg and
// wires a fresh overlay/cursor set/hot cache on top of it, then registers
// the database with env so commits/aborts can reach it.
func CreateDatabase(env *Environment, cfg DatabaseConfig) (*Database, error) {
	bt, err := btree.OpenBTreeIndex(cfg.Path, cfg.FileID, env.Pages.BufferPool(), env.Pages.DiskManager())
	if err != nil {
		return nil, fmt.Errorf("engine: open database %q: %w", cfg.Name, err)
	}
	env.Pages.RegisterDatabase(cfg.Name, cfg.FileID)

	db := &Database{
		Name:    cfg.Name,
		env:     env,
		btree:   bt,
		overlay: newTxnIndex(),
		cursors: make(map[*Cursor]struct{}),
		flags:      cfg.Flags,
		keyType:    cfg.KeyType,
		recordSize: cfg.RecordSize,
		hot:        newHotCache(),
	}

	if db.keyType != types.KeyTypeBytes {
		if err := db.openRecnoCounter(); err != nil {
			return nil, fmt.Errorf("engine: seed record-number counter for %q: %w", cfg.Name, err)
		}
	}

	env.registerDatabase(db)
	return db, nil
}

// openRecnoCounter seeds the record-number counter from the current
// largest key on disk, mirroring db_local.cc's LAST-cursor seed on open
// (SPEC_FULL.md SUPPLEMENTED FEATURES).
func (db *Database) openRecnoCounter() error {
	it := db.btree.SeekGE(nil)
	defer it.Close()

	var last []byte
	for it.Key() != nil {
		last = append([]byte(nil), it.Key()...)
		if !it.Next() {
			break
		}
	}
	if last == nil {
		db.recno = 0
		return nil
	}

	switch db.keyType {
	case types.KeyTypeRecordNumber32:
		if len(last) >= 4 {
			db.recno = uint64(binary.BigEndian.Uint32(last))
		}
	case types.KeyTypeRecordNumber64:
		if len(last) >= 8 {
			db.recno = binary.BigEndian.Uint64(last)
		}
	}
	return nil
}

func (db *Database) nextRecnoKey() []byte {
	db.recno++
	if db.keyType == types.KeyTypeRecordNumber32 {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(db.recno))
		return b
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, db.recno)
	return b
}

// recnoKeyWidth is the fixed key width a record-number database enforces on
// any explicitly-supplied (non-empty) key, 0 for byte-keyed databases where
// any length is valid.
func (db *Database) recnoKeyWidth() int {
	switch db.keyType {
	case types.KeyTypeRecordNumber32:
		return 4
	case types.KeyTypeRecordNumber64:
		return 8
	default:
		return 0
	}
}

// validateInsertSizes is the Go-shaped equivalent of db_local.cc's
// `key->size != m_config.key_size` / `record->size != m_config.record_size`
// checks: a record-number database rejects an explicit key of the wrong
// width, and a database opened with a fixed RecordSize rejects a record of
// any other length.
func (db *Database) validateInsertSizes(key types.Key, rec types.Record) types.Status {
	if width := db.recnoKeyWidth(); width > 0 && len(key.Data) > 0 && len(key.Data) != width {
		return types.InvKeySize
	}
	if db.recordSize > 0 && len(rec.Data) != db.recordSize {
		return types.InvRecordSize
	}
	return types.Success
}

func (db *Database) lookupRaw(key []byte) []byte {
	v, err := db.btree.Search(key)
	if err != nil {
		return nil
	}
	return v
}

// withImplicitTxn begins a temporary transaction when t is nil and
// transactions are enabled, always runs fn, then commits on Success or
// aborts otherwise (§4.10, §9 — the Go-shaped FINALIZE_ON_SCOPE_EXIT).
func withImplicitTxn(db *Database, t *txnmgr.Transaction, fn func(*txnmgr.Transaction) types.Status) types.Status {
	implicit := false
	if t == nil {
		t = db.env.Txns.Begin()
		implicit = true
	}

	status := fn(t)

	if !implicit {
		return status
	}
	if status == types.Success {
		if err := db.env.Txns.Commit(t.ID); err != nil {
			return types.InvParameter
		}
		return types.Success
	}
	_ = db.env.Txns.Abort(t.ID)
	return status
}

// Insert implements the public insert_txn contract (§4.3, §6). txn may be
// nil, in which case an implicit transaction wraps the call (or, with
// transactions disabled entirely, the B-tree is mutated directly).
func (db *Database) Insert(t *txnmgr.Transaction, key types.Key, rec types.Record, flags types.Flags) (types.Key, types.Status) {
	if !db.flags.Has(types.EnableTransactions) {
		return db.insertDirect(key, rec, flags)
	}
	resultKey := key
	status := withImplicitTxn(db, t, func(txn *txnmgr.Transaction) types.Status {
		var st types.Status
		resultKey, st = db.insertTxn(txn, key, rec, flags, nil)
		return st
	})
	return resultKey, status
}

func (db *Database) insertDirect(key types.Key, rec types.Record, flags types.Flags) (types.Key, types.Status) {
	db.mu.Lock()
	defer db.mu.Unlock()

	isRecno := db.keyType != types.KeyTypeBytes
	if isRecno && len(key.Data) == 0 {
		key.Data = db.nextRecnoKey()
		flags |= types.HintAppend
	}
	if status := db.validateInsertSizes(key, rec); status != types.Success {
		return key, status
	}

	if !flags.Has(types.Overwrite) && !flags.Has(types.Duplicate) && !isRecno {
		if db.lookupRaw(key.Data) != nil {
			return key, types.DuplicateKey
		}
	}

	value := rec.Data
	if flags.Has(types.Duplicate) {
		env := decodeDupeEnvelope(db.lookupRaw(key.Data))
		env = env.insertAt(0, rec.Data)
		value = env.encode()
	}

	if err := db.btree.Insert(key.Data, value); err != nil {
		return key, types.InvParameter
	}

	if db.flags.Has(types.EnableRecovery) {
		db.env.NextLSN()
		_, _ = db.env.Journal.AppendInsert(db.Name, 0, key.Data, rec.Data, flags)
	}

	db.hot.set(db.Name, key.Data, rec.Data)
	db.nilCursorsOnKey(key.Data)
	return key, types.Success
}

// insertTxn is insert_txn (§4.3) with the environment/overlay lock held for
// its duration. cursor is non-nil only when called from a Cursor.Insert.
func (db *Database) insertTxn(t *txnmgr.Transaction, key types.Key, rec types.Record, flags types.Flags, cursor *Cursor) (types.Key, types.Status) {
	db.mu.Lock()
	defer db.mu.Unlock()

	isRecno := db.keyType != types.KeyTypeBytes
	if isRecno && len(key.Data) == 0 {
		key.Data = db.nextRecnoKey()
		flags |= types.HintAppend
	}
	if status := db.validateInsertSizes(key, rec); status != types.Success {
		return key, status
	}

	node := db.overlay.Get(key.Data)
	created := false
	if node == nil {
		node = newTxnNode(key.Data)
		db.overlay.Store(node)
		created = true
	}

	status := checkInsertConflict(t, node, key.Data, flags, isRecno, db.btree)
	if status != types.Success {
		if created {
			db.overlay.Remove(key.Data)
		}
		return key, status
	}

	kind := OpInsert
	switch {
	case flags.Has(types.Duplicate):
		kind = OpInsertDuplicate
	case flags.Has(types.Overwrite):
		kind = OpInsertOverwrite
	}

	lsn := db.env.NextLSN()
	op := newTxnOperation(node, t, kind, flags, lsn)
	op.Record = rec.Clone()

	// refDupe resolves which duplicate slot this op lands in (§4.3 step 4).
	// A caller positioned on a duplicate (cursor.dupeIndex > 0) sets the
	// default anchor; DuplicateInsertFirst/Last/Before/After let a caller
	// override that anchor explicitly instead of having to reposition a
	// cursor first.
	refDupe := 0
	if cursor != nil && cursor.dupeIndex > 0 {
		refDupe = cursor.dupeIndex
	}
	switch {
	case flags.Has(types.DuplicateInsertFirst):
		refDupe = 1
	case flags.Has(types.DuplicateInsertLast):
		refDupe = 0
	case flags.Has(types.DuplicateInsertBefore) && cursor != nil && cursor.dupeIndex > 0:
		refDupe = cursor.dupeIndex
	case flags.Has(types.DuplicateInsertAfter) && cursor != nil && cursor.dupeIndex > 0:
		refDupe = cursor.dupeIndex + 1
	}
	op.RefDupe = refDupe

	node.appendOp(op)

	if cursor != nil {
		cursor.coupleToTxnOp(node, op)
	}

	if refDupe > 0 {
		for _, c := range node.liveCursors() {
			if c == cursor {
				continue
			}
			if c.coupling == CouplingTxnOp && c.node == node && c.dupeIndex >= refDupe {
				c.dupeIndex++
			}
		}
	}

	if db.flags.Has(types.EnableRecovery) {
		_, _ = db.env.Journal.AppendInsert(db.Name, t.ID, key.Data, rec.Data, flags)
	}

	t.MarkTouched(db.Name)
	db.env.recordPending(t.ID, db.Name, node, op)
	db.hot.invalidate(db.Name, key.Data)

	return key, types.Success
}

// Find implements find_txn (§4.4, §6).
func (db *Database) Find(t *txnmgr.Transaction, key types.Key, flags types.Flags) (types.Key, types.Record, types.Status) {
	if !db.flags.Has(types.EnableTransactions) {
		return db.findDirect(key, flags)
	}
	resultKey := key
	var rec types.Record
	status := withImplicitTxn(db, t, func(txn *txnmgr.Transaction) types.Status {
		var st types.Status
		resultKey, rec, st = db.findTxn(txn, key, flags, nil)
		return st
	})
	return resultKey, rec, status
}

func (db *Database) findDirect(key types.Key, flags types.Flags) (types.Key, types.Record, types.Status) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if v, ok := db.hot.get(db.Name, key.Data); ok {
		return key, types.Record{Data: append([]byte(nil), v...)}, types.Success
	}

	v, err := db.btree.Search(key.Data)
	if err != nil {
		return key, types.Record{}, types.InvParameter
	}
	if v != nil {
		db.hot.set(db.Name, key.Data, v)
		return key, types.Record{Data: v}, types.Success
	}
	if !flags.Has(types.LtMatch) && !flags.Has(types.GtMatch) {
		return key, types.Record{}, types.KeyNotFound
	}
	nk, nv, found := db.btreeApproxSearch(key.Data, flags)
	if !found {
		return key, types.Record{}, types.KeyNotFound
	}
	rk := key.Clone()
	rk.Data = nk
	rk.SetApproximate()
	return rk, types.Record{Data: nv}, types.Success
}

func (db *Database) findTxn(t *txnmgr.Transaction, key types.Key, flags types.Flags, cursor *Cursor) (types.Key, types.Record, types.Status) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.findTxnLocked(t, key, flags, cursor, 0)
}

// findTxnLocked is find_txn (§4.4) run under db.mu; depth guards against
// runaway sibling/tiebreak recursion.
func (db *Database) findTxnLocked(t *txnmgr.Transaction, key types.Key, flags types.Flags, cursor *Cursor, depth int) (types.Key, types.Record, types.Status) {
	if depth > 8 {
		return key, types.Record{}, types.KeyNotFound
	}

	node := db.overlay.Get(key.Data)
	var decidedStatus types.Status
	var decidedRecord types.Record
	var approxOp *TxnOperation
	var approxNode *TxnNode
	var siblingRedirect *TxnNode
	decided := false

	if node != nil {
		node.forEachOp(func(op *TxnOperation) bool {
			if op.isAborted() {
				return true
			}
			if !(op.isCommitted() || op.belongsTo(t)) {
				decidedStatus = types.TxnConflict
				decided = true
				return false
			}
			if op.Flushed || op.Kind == OpNop {
				return true
			}

			if op.Kind == OpErase {
				if flags.Has(types.LtMatch) {
					if sib := db.overlay.PreviousSibling(node.key); sib != nil {
						siblingRedirect = sib
					} else {
						decidedStatus = types.KeyNotFound
					}
					decided = true
					return false
				}
				if flags.Has(types.GtMatch) {
					if sib := db.overlay.NextSibling(node.key); sib != nil {
						siblingRedirect = sib
					} else {
						decidedStatus = types.KeyNotFound
					}
					decided = true
					return false
				}
				switch {
				case op.RefDupe > 1:
					decidedStatus = types.Success
				case op.RefDupe == 0:
					decidedStatus = types.KeyNotFound
				default:
					raw := db.lookupRaw(node.key)
					if decodeDupeEnvelope(raw).count() > 0 {
						decidedStatus = types.Success
					} else {
						decidedStatus = types.KeyNotFound
					}
				}
				if decidedStatus == types.Success {
					if cursor != nil {
						cursor.coupleToTxnOp(node, op)
					}
					decidedRecord = types.Record{Data: db.lookupRaw(node.key)}
				}
				decided = true
				return false
			}

			// Insert / InsertOverwrite / InsertDuplicate.
			if key.IsApproximate() {
				approxOp = op
				approxNode = node
				decided = true
				return false
			}
			if cursor != nil {
				cursor.coupleToTxnOp(node, op)
			}
			decidedStatus = types.Success
			decidedRecord = op.Record.Clone()
			decided = true
			return false
		})
	}

	switch {
	case siblingRedirect != nil:
		nk := key.Clone()
		nk.Data = append([]byte(nil), siblingRedirect.key...)
		nk.SetApproximate()
		return db.findTxnLocked(t, nk, flags, cursor, depth+1)

	case approxOp != nil:
		return db.approxTiebreak(t, key, approxNode, approxOp, flags, cursor, depth)

	case decided:
		if decidedStatus == types.Success {
			db.hot.set(db.Name, key.Data, decidedRecord.Data)
		}
		return key, decidedRecord, decidedStatus
	}

	// No overlay op exists for K itself. An approximate query may still be
	// satisfied by an overlay key on the requested side of K that hasn't
	// been flushed to the B-tree yet -- a plain exact-key overlay lookup
	// above can never see it, so walk the TxnIndex's own ordering directly.
	if flags.Has(types.LtMatch) || flags.Has(types.GtMatch) {
		if sib, op := db.overlayApproxSearch(t, key.Data, flags); sib != nil {
			return db.approxTiebreak(t, key, sib, op, flags, cursor, depth)
		}
	}

	return db.findBtree(key, flags, cursor)
}

// overlayLiveInsertOp returns the op that currently makes node's key visible
// under t (an own-or-committed Insert/InsertOverwrite/InsertDuplicate not yet
// shadowed by a later Erase), or nil if the key is erased, conflicted, or
// node holds no live op at all.
func (db *Database) overlayLiveInsertOp(t *txnmgr.Transaction, node *TxnNode) *TxnOperation {
	if node == nil {
		return nil
	}
	var result *TxnOperation
	node.forEachOp(func(op *TxnOperation) bool {
		if op.isAborted() {
			return true
		}
		if !(op.isCommitted() || op.belongsTo(t)) {
			return false
		}
		if op.Flushed || op.Kind == OpNop {
			return true
		}
		if op.Kind == OpErase {
			return false
		}
		result = op
		return false
	})
	return result
}

// overlayApproxSearch walks the overlay's sibling chain from key towards the
// requested direction, skipping nodes with no currently-live insert, and
// returns the nearest one found.
func (db *Database) overlayApproxSearch(t *txnmgr.Transaction, key []byte, flags types.Flags) (*TxnNode, *TxnOperation) {
	cur := key
	for i := 0; i < 64; i++ {
		var sib *TxnNode
		if flags.Has(types.GtMatch) {
			sib = db.overlay.NextSibling(cur)
		} else {
			sib = db.overlay.PreviousSibling(cur)
		}
		if sib == nil {
			return nil, nil
		}
		if op := db.overlayLiveInsertOp(t, sib); op != nil {
			return sib, op
		}
		cur = sib.key
	}
	return nil, nil
}

func (db *Database) findBtree(key types.Key, flags types.Flags, cursor *Cursor) (types.Key, types.Record, types.Status) {
	v, err := db.btree.Search(key.Data)
	if err != nil {
		return key, types.Record{}, types.InvParameter
	}
	if v != nil {
		if cursor != nil {
			cursor.coupleToBtree(key.Data)
		}
		return key, types.Record{Data: v}, types.Success
	}
	if !flags.Has(types.LtMatch) && !flags.Has(types.GtMatch) {
		return key, types.Record{}, types.KeyNotFound
	}
	nk, nv, found := db.btreeApproxSearch(key.Data, flags)
	if !found {
		return key, types.Record{}, types.KeyNotFound
	}
	rk := key.Clone()
	rk.Data = nk
	rk.SetApproximate()
	if cursor != nil {
		cursor.coupleToBtree(nk)
	}
	return rk, types.Record{Data: nv}, types.Success
}

// btreeApproxSearch finds the nearest key strictly greater (GtMatch) or
// strictly less (LtMatch) than key. The B-tree's iterator is forward-only
// (no SeekLE primitive), so LtMatch walks from the start; acceptable for an
// operation already documented as a full nearest-match fallback.
func (db *Database) btreeApproxSearch(key []byte, flags types.Flags) ([]byte, []byte, bool) {
	if flags.Has(types.GtMatch) {
		it := db.btree.SeekGE(key)
		defer it.Close()
		k := it.Key()
		if k != nil && bytes.Equal(k, key) {
			if !it.Next() {
				return nil, nil, false
			}
			k = it.Key()
		}
		if k == nil {
			return nil, nil, false
		}
		return append([]byte(nil), k...), append([]byte(nil), it.Value()...), true
	}

	it := db.btree.SeekGE(nil)
	defer it.Close()
	var lastKey, lastVal []byte
	for it.Key() != nil {
		if bytes.Compare(it.Key(), key) >= 0 {
			break
		}
		lastKey = append([]byte(nil), it.Key()...)
		lastVal = append([]byte(nil), it.Value()...)
		if !it.Next() {
			break
		}
	}
	if lastKey == nil {
		return nil, nil, false
	}
	return lastKey, lastVal, true
}

// approxTiebreak resolves the overlay's approximate candidate against the
// B-tree per §4.4's tiebreak rules.
func (db *Database) approxTiebreak(t *txnmgr.Transaction, key types.Key, overlayNode *TxnNode, overlayOp *TxnOperation, flags types.Flags, cursor *Cursor, depth int) (types.Key, types.Record, types.Status) {
	overlayKey := append([]byte(nil), overlayNode.key...)

	exactKey := key.Clone()
	exactKey.ClearApproximate()

	v, err := db.btree.Search(exactKey.Data)
	if err != nil {
		return key, types.Record{}, types.InvParameter
	}

	useOverlay := func() (types.Key, types.Record, types.Status) {
		rk := key.Clone()
		rk.Data = overlayKey
		rk.SetApproximate()
		if cursor != nil {
			cursor.coupleToTxnOp(overlayNode, overlayOp)
		}
		return rk, overlayOp.Record.Clone(), types.Success
	}

	// The query key itself is in the B-tree. When key is an overlay
	// sibling (already approximate), the overlay's op for it is newer.
	if v != nil && !key.IsApproximate() {
		if cursor != nil {
			cursor.coupleToBtree(exactKey.Data)
		}
		return exactKey, types.Record{Data: v}, types.Success
	}

	btApproxKey, _, found := db.btreeApproxSearch(exactKey.Data, flags)
	if !found {
		return useOverlay()
	}

	cmp := bytes.Compare(btApproxKey, overlayKey)
	btreeWins := (flags.Has(types.GtMatch) && cmp < 0) || (flags.Has(types.LtMatch) && cmp > 0)
	if !btreeWins {
		return useOverlay()
	}

	nk := key.Clone()
	nk.Data = btApproxKey
	nk.ClearApproximate()
	rk, rec, status := db.findTxnLocked(t, nk, types.ExactMatch, cursor, depth+1)
	if status == types.Success {
		rk.SetApproximate()
	}
	return rk, rec, status
}

// Erase implements erase_txn (§4.5, §6).
func (db *Database) Erase(t *txnmgr.Transaction, key types.Key, flags types.Flags) types.Status {
	if !db.flags.Has(types.EnableTransactions) {
		return db.eraseDirect(key, flags)
	}
	return withImplicitTxn(db, t, func(txn *txnmgr.Transaction) types.Status {
		return db.eraseTxn(txn, key, flags, nil)
	})
}

func (db *Database) eraseDirect(key types.Key, flags types.Flags) types.Status {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.lookupRaw(key.Data) == nil {
		return types.KeyNotFound
	}
	if err := db.btree.Delete(key.Data); err != nil {
		return types.InvParameter
	}
	if db.flags.Has(types.EnableRecovery) {
		db.env.NextLSN()
		_, _ = db.env.Journal.AppendErase(db.Name, 0, key.Data, 0, flags)
	}
	db.hot.invalidate(db.Name, key.Data)
	db.nilCursorsOnKey(key.Data)
	return types.Success
}

func (db *Database) eraseTxn(t *txnmgr.Transaction, key types.Key, flags types.Flags, cursor *Cursor) types.Status {
	db.mu.Lock()
	defer db.mu.Unlock()

	node := db.overlay.Get(key.Data)
	created := false
	if node == nil {
		node = newTxnNode(key.Data)
		db.overlay.Store(node)
		created = true
	}

	deferred := cursor != nil && cursor.dupeIndex > 0
	if !deferred {
		status := checkEraseConflict(t, node, key.Data, db.btree)
		if status != types.Success {
			if created {
				db.overlay.Remove(key.Data)
			}
			return status
		}
	}

	lsn := db.env.NextLSN()
	op := newTxnOperation(node, t, OpErase, flags, lsn)
	if cursor != nil {
		op.RefDupe = cursor.dupeIndex
	}
	node.appendOp(op)

	erasedIdx := op.RefDupe
	db.nilAllCursorsInNode(node, cursor, erasedIdx)
	db.nilAllCursorsInBtree(key.Data, erasedIdx)

	if db.flags.Has(types.EnableRecovery) {
		_, _ = db.env.Journal.AppendErase(db.Name, t.ID, key.Data, erasedIdx, flags)
	}

	t.MarkTouched(db.Name)
	db.env.recordPending(t.ID, db.Name, node, op)
	db.hot.invalidate(db.Name, key.Data)
	return types.Success
}

// nilAllCursorsInNode is nil_all_cursors_in_node (§4.5).
func (db *Database) nilAllCursorsInNode(node *TxnNode, except *Cursor, erasedIdx int) {
	for c := range db.cursors {
		if c == except {
			continue
		}
		if c.coupling != CouplingTxnOp || c.node != node {
			continue
		}
		switch {
		case erasedIdx == 0:
			c.clearTxnOpSide()
			c.lastOp = LastOpLookupOrInsert
		case c.dupeIndex > erasedIdx:
			c.dupeIndex--
		case c.dupeIndex == erasedIdx:
			c.clearTxnOpSide()
			c.lastOp = LastOpLookupOrInsert
		}
	}
}

// nilAllCursorsInBtree is nil_all_cursors_in_btree (§4.5).
func (db *Database) nilAllCursorsInBtree(key []byte, erasedIdx int) {
	for c := range db.cursors {
		if c.coupling != CouplingBtree || !bytes.Equal(c.btreeKey, key) {
			continue
		}
		switch {
		case erasedIdx == 0:
			c.setNil()
		case c.dupeIndex > erasedIdx:
			c.dupeIndex--
		case c.dupeIndex == erasedIdx:
			c.setNil()
		}
	}
}

func (db *Database) nilCursorsOnKey(key []byte) {
	for c := range db.cursors {
		if c.coupling == CouplingBtree && bytes.Equal(c.btreeKey, key) {
			c.setNil()
		}
	}
}

// flushTxnOperation is flush_txn_operation (§4.6), driven by
// Environment.OnCommit once a transaction has committed.
func (db *Database) flushTxnOperation(node *TxnNode, op *TxnOperation) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if op.Flushed {
		return nil
	}

	switch op.Kind {
	case OpInsert, OpInsertOverwrite, OpInsertDuplicate:
		value := op.Record.Data
		if op.Kind == OpInsertDuplicate {
			env := decodeDupeEnvelope(db.lookupRaw(node.key))
			env = env.insertAt(op.RefDupe, op.Record.Data)
			value = env.encode()
		}
		if err := db.btree.Insert(node.key, value); err != nil {
			return fmt.Errorf("engine: flush insert: %w", err)
		}
		for _, c := range op.CoupledCursors() {
			c.coupleToBtree(node.key)
		}

	case OpErase:
		if op.RefDupe > 0 {
			env := decodeDupeEnvelope(db.lookupRaw(node.key)).removeAt(op.RefDupe)
			if env.count() == 0 {
				_ = db.btree.Delete(node.key)
			} else if err := db.btree.Insert(node.key, env.encode()); err != nil {
				return fmt.Errorf("engine: flush erase (rewrite): %w", err)
			}
		} else {
			_ = db.btree.Delete(node.key) // KeyNotFound here just means it lived only in the overlay.
		}

	case OpNop:

	default:
		panic(fmt.Sprintf("engine: flush of unrecognised op kind %v", op.Kind))
	}

	op.Flushed = true
	db.hot.invalidate(db.Name, node.key)

	node.removeFlushedOps()
	if node.isEmpty() {
		db.overlay.Remove(node.key)
	}
	return nil
}

// pruneAbortedTxn drops every aborted, uncoupled op left over once
// TxnManager.Abort's FlushHandler callback has run.
func (db *Database) pruneAbortedTxn(txnID uint64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	_ = txnID

	var empty [][]byte
	db.overlay.AscendFrom(nil, func(node *TxnNode) bool {
		node.forEachOp(func(op *TxnOperation) bool {
			if op.isAborted() {
				for _, c := range op.CoupledCursors() {
					c.clearTxnOpSide()
					c.lastOp = LastOpLookupOrInsert
				}
			}
			return true
		})
		node.removeAbortedOps()
		if node.isEmpty() {
			empty = append(empty, node.key)
		}
		return true
	})
	for _, k := range empty {
		db.overlay.Remove(k)
	}
}

// Count implements count(distinct) (§6).
func (db *Database) Count(t *txnmgr.Transaction, distinct bool) (uint64, types.Status) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var count uint64
	status := db.scanLocked(t, func(key []byte, dupeCount int) bool {
		if distinct || dupeCount <= 0 {
			count++
		} else {
			count += uint64(dupeCount)
		}
		return true
	})
	return count, status
}

// Scan implements scan (§4.8, §6): purge the page cache, then visit every
// live key in ascending order, merging the overlay with the B-tree.
func (db *Database) Scan(t *txnmgr.Transaction, visitor func(key []byte, count int) bool, distinct bool) types.Status {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.env.Pages.PurgeCache(); err != nil {
		return types.InvParameter
	}
	return db.scanLocked(t, func(key []byte, count int) bool {
		if distinct && count > 0 {
			count = 1
		}
		return visitor(key, count)
	})
}

func (db *Database) scanLocked(t *txnmgr.Transaction, visitor func(key []byte, count int) bool) types.Status {
	var overlayKeys [][]byte
	db.overlay.AscendFrom(nil, func(node *TxnNode) bool {
		overlayKeys = append(overlayKeys, node.key)
		return true
	})

	it := db.btree.SeekGE(nil)
	defer it.Close()
	btreeKey := it.Key()

	oi := 0
	for btreeKey != nil || oi < len(overlayKeys) {
		fromOverlay := false
		var nextKey []byte
		switch {
		case btreeKey == nil:
			nextKey, fromOverlay = overlayKeys[oi], true
		case oi >= len(overlayKeys):
			nextKey = btreeKey
		case bytes.Compare(overlayKeys[oi], btreeKey) <= 0:
			nextKey, fromOverlay = overlayKeys[oi], true
		default:
			nextKey = btreeKey
		}

		sameBtreeKey := btreeKey != nil && bytes.Equal(btreeKey, nextKey)

		if fromOverlay {
			node := db.overlay.Get(nextKey)
			count, live := db.overlayLiveCount(t, node)
			if live && !visitor(append([]byte(nil), nextKey...), count) {
				return types.Success
			}
			oi++
		} else {
			count := 1
			if db.flags.Has(types.EnableDuplicateKeys) {
				count = decodeDupeEnvelope(it.Value()).count()
			}
			if !visitor(append([]byte(nil), nextKey...), count) {
				return types.Success
			}
		}

		if sameBtreeKey {
			if !it.Next() {
				btreeKey = nil
			} else {
				btreeKey = it.Key()
			}
		}
	}
	return types.Success
}

func (db *Database) overlayLiveCount(t *txnmgr.Transaction, node *TxnNode) (int, bool) {
	if node == nil {
		return 0, false
	}
	result, live := 0, false
	node.forEachOp(func(op *TxnOperation) bool {
		if op.isAborted() {
			return true
		}
		if !(op.isCommitted() || op.belongsTo(t)) {
			return true
		}
		if op.Flushed || op.Kind == OpNop {
			return true
		}
		if op.Kind == OpErase {
			live = false
			return false
		}
		live = true
		result = 1
		if op.Kind == OpInsertDuplicate && op.RefDupe > 0 {
			result = op.RefDupe
		}
		return false
	})
	return result, live
}

// CheckIntegrity is check_integrity (SUPPLEMENTED FEATURES): validates
// B-tree key ordering and overlay bookkeeping invariants.
func (db *Database) CheckIntegrity(flags types.Flags) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	it := db.btree.SeekGE(nil)
	defer it.Close()
	var prev []byte
	for it.Key() != nil {
		k := it.Key()
		if prev != nil && bytes.Compare(prev, k) >= 0 {
			return fmt.Errorf("engine: check_integrity: keys out of order at %x", k)
		}
		prev = append([]byte(nil), k...)
		if !it.Next() {
			break
		}
	}

	var err error
	db.overlay.AscendFrom(nil, func(node *TxnNode) bool {
		if node.isEmpty() {
			err = fmt.Errorf("engine: check_integrity: empty TxnNode %x still indexed", node.key)
			return false
		}
		node.forEachOp(func(op *TxnOperation) bool {
			if op.RefDupe < 0 {
				err = fmt.Errorf("engine: check_integrity: negative referenced_dupe on %x", node.key)
				return false
			}
			return true
		})
		return err == nil
	})
	return err
}

// GetParameters is get_parameters (SUPPLEMENTED FEATURES).
func (db *Database) GetParameters(out *Parameters) error {
	if out == nil {
		return types.InvParameter
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	out.KeyType = db.keyType
	out.Flags = db.flags
	out.DatabaseName = db.Name
	out.MaxKeysPerPage = btree.MaxKeys
	out.RecordSize = db.recordSize
	switch db.keyType {
	case types.KeyTypeRecordNumber32:
		out.KeySize = 4
	case types.KeyTypeRecordNumber64:
		out.KeySize = 8
	default:
		out.KeySize = 0
	}
	return nil
}

// Close fails with TxnStillOpen if any active transaction has unflushed
// ops against this database; otherwise flushes and releases it.
func (db *Database) Close(flags types.Flags) types.Status {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, txn := range db.env.Txns.ActiveTransactions() {
		if _, touched := txn.Touched[db.Name]; touched {
			return types.TxnStillOpen
		}
	}

	for c := range db.cursors {
		c.setNil()
	}

	if err := db.btree.Close(); err != nil {
		return types.InvParameter
	}
	if err := db.env.Pages.CloseDatabase(db.Name); err != nil {
		return types.InvParameter
	}
	db.env.unregisterDatabase(db.Name)
	return types.Success
}

func (db *Database) registerCursor(c *Cursor) {
	db.mu.Lock()
	db.cursors[c] = struct{}{}
	db.mu.Unlock()
}

func (db *Database) unregisterCursor(c *Cursor) {
	db.mu.Lock()
	delete(db.cursors, c)
	db.mu.Unlock()
}

// cursorRecordCount returns how many duplicates live under c's current key.
func (db *Database) cursorRecordCount(c *Cursor) (int, types.Status) {
	db.mu.Lock()
	defer db.mu.Unlock()

	switch c.coupling {
	case CouplingNil:
		return 0, types.CursorIsNil
	case CouplingTxnOp:
		if count, live := db.overlayLiveCount(c.txn, c.node); live {
			return count, types.Success
		}
		return 0, types.KeyNotFound
	default:
		raw := db.lookupRaw(c.btreeKey)
		if raw == nil {
			return 0, types.KeyNotFound
		}
		if db.flags.Has(types.EnableDuplicateKeys) {
			return decodeDupeEnvelope(raw).count(), types.Success
		}
		return 1, types.Success
	}
}
