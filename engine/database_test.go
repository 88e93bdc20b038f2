package engine

import (
	"bytes"
	"testing"

	"txnkv/types"
)

func newTestDatabase(t *testing.T, name string, flags types.Flags, keyType types.KeyType) (*Environment, *Database) {
	t.Helper()

	dir := t.TempDir()
	env, err := OpenEnvironment(dir, 32)
	if err != nil {
		t.Fatalf("OpenEnvironment: %v", err)
	}

	db, err := CreateDatabase(env, DatabaseConfig{
		Name:    name,
		Path:    dir + "/" + name + ".idx",
		FileID:  1,
		Flags:   flags,
		KeyType: keyType,
	})
	if err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	return env, db
}

const defaultFlags = types.EnableTransactions | types.EnableRecovery | types.EnableDuplicateKeys

func TestRoundTrip(t *testing.T) {
	_, db := newTestDatabase(t, "roundtrip", defaultFlags, types.KeyTypeBytes)

	txn := db.env.Txns.Begin()
	_, status := db.Insert(txn, types.Key{Data: []byte("k")}, types.Record{Data: []byte("v")}, 0)
	if status != types.Success {
		t.Fatalf("insert: %v", status)
	}
	if err := db.env.Txns.Commit(txn.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	_, rec, status := db.Find(nil, types.Key{Data: []byte("k")}, 0)
	if status != types.Success {
		t.Fatalf("find: %v", status)
	}
	if !bytes.Equal(rec.Data, []byte("v")) {
		t.Fatalf("expected %q, got %q", "v", rec.Data)
	}
}

func TestOverlayPrecedence(t *testing.T) {
	_, db := newTestDatabase(t, "overlay", defaultFlags, types.KeyTypeBytes)

	base := db.env.Txns.Begin()
	if _, status := db.Insert(base, types.Key{Data: []byte("k")}, types.Record{Data: []byte("base")}, 0); status != types.Success {
		t.Fatalf("base insert: %v", status)
	}
	if err := db.env.Txns.Commit(base.ID); err != nil {
		t.Fatalf("commit base: %v", err)
	}

	txn := db.env.Txns.Begin()
	if _, status := db.Insert(txn, types.Key{Data: []byte("k")}, types.Record{Data: []byte("overlay")}, types.Overwrite); status != types.Success {
		t.Fatalf("overlay insert: %v", status)
	}
	_, rec, status := db.Find(txn, types.Key{Data: []byte("k")}, 0)
	if status != types.Success {
		t.Fatalf("find in same txn: %v", status)
	}
	if !bytes.Equal(rec.Data, []byte("overlay")) {
		t.Fatalf("expected overlay value, got %q", rec.Data)
	}

	if status := db.Erase(txn, types.Key{Data: []byte("erased-only-in-overlay")}, 0); status != types.KeyNotFound {
		t.Fatalf("erase of unknown key: expected KeyNotFound, got %v", status)
	}

	if err := db.env.Txns.Abort(txn.ID); err != nil {
		t.Fatalf("abort: %v", err)
	}
}

func TestIsolationConflict(t *testing.T) {
	_, db := newTestDatabase(t, "isolation", defaultFlags, types.KeyTypeBytes)

	a := db.env.Txns.Begin()
	if _, status := db.Insert(a, types.Key{Data: []byte("k")}, types.Record{Data: []byte("1")}, 0); status != types.Success {
		t.Fatalf("insert under A: %v", status)
	}

	b := db.env.Txns.Begin()
	_, _, status := db.Find(b, types.Key{Data: []byte("k")}, 0)
	if status != types.TxnConflict {
		t.Fatalf("expected TxnConflict while A active, got %v", status)
	}

	if err := db.env.Txns.Abort(a.ID); err != nil {
		t.Fatalf("abort A: %v", err)
	}
	if err := db.env.Txns.Abort(b.ID); err != nil {
		t.Fatalf("abort B: %v", err)
	}
}

func TestConflictSymmetric(t *testing.T) {
	_, db := newTestDatabase(t, "symmetric", defaultFlags, types.KeyTypeBytes)

	base := db.env.Txns.Begin()
	if _, status := db.Insert(base, types.Key{Data: []byte("k")}, types.Record{Data: []byte("v")}, 0); status != types.Success {
		t.Fatalf("base insert: %v", status)
	}
	if err := db.env.Txns.Commit(base.ID); err != nil {
		t.Fatalf("commit base: %v", err)
	}

	a := db.env.Txns.Begin()
	if status := db.Erase(a, types.Key{Data: []byte("k")}, 0); status != types.Success {
		t.Fatalf("erase under A: %v", status)
	}

	b := db.env.Txns.Begin()
	if status := db.Erase(b, types.Key{Data: []byte("k")}, 0); status != types.TxnConflict {
		t.Fatalf("expected TxnConflict on concurrent erase, got %v", status)
	}
	if _, status := db.Insert(b, types.Key{Data: []byte("k")}, types.Record{Data: []byte("v2")}, types.Overwrite); status != types.TxnConflict {
		t.Fatalf("expected TxnConflict on concurrent insert over active erase, got %v", status)
	}

	if err := db.env.Txns.Abort(a.ID); err != nil {
		t.Fatalf("abort A: %v", err)
	}
	if err := db.env.Txns.Abort(b.ID); err != nil {
		t.Fatalf("abort B: %v", err)
	}
}

func TestLSNMonotonic(t *testing.T) {
	_, db := newTestDatabase(t, "lsn", defaultFlags, types.KeyTypeBytes)

	txn := db.env.Txns.Begin()
	for i := 0; i < 3; i++ {
		if _, status := db.Insert(txn, types.Key{Data: []byte{byte('a' + i)}}, types.Record{Data: []byte("v")}, 0); status != types.Success {
			t.Fatalf("insert %d: %v", i, status)
		}
	}

	node := db.overlay.Get([]byte{'a' + 2})
	var lsns []uint64
	node.forEachOp(func(op *TxnOperation) bool {
		lsns = append(lsns, op.LSN)
		return true
	})
	if len(lsns) != 1 {
		t.Fatalf("expected one op on this node, got %d", len(lsns))
	}

	var prev uint64
	db.overlay.AscendFrom(nil, func(n *TxnNode) bool {
		n.forEachOp(func(op *TxnOperation) bool {
			if prev != 0 && op.LSN <= prev {
				t.Fatalf("LSNs not strictly increasing across insert order: %d then %d", prev, op.LSN)
			}
			prev = op.LSN
			return true
		})
		return true
	})

	if err := db.env.Txns.Abort(txn.ID); err != nil {
		t.Fatalf("abort: %v", err)
	}
}

func TestScanCompleteness(t *testing.T) {
	_, db := newTestDatabase(t, "scan", defaultFlags, types.KeyTypeBytes)

	txn := db.env.Txns.Begin()
	keys := []string{"a", "b", "c", "d"}
	for _, k := range keys {
		if _, status := db.Insert(txn, types.Key{Data: []byte(k)}, types.Record{Data: []byte(k)}, 0); status != types.Success {
			t.Fatalf("insert %q: %v", k, status)
		}
	}
	if err := db.env.Txns.Commit(txn.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var seen []string
	status := db.Scan(nil, func(key []byte, _ int) bool {
		seen = append(seen, string(key))
		return true
	}, true)
	if status != types.Success {
		t.Fatalf("scan: %v", status)
	}
	if len(seen) != len(keys) {
		t.Fatalf("expected %d keys, got %d (%v)", len(keys), len(seen), seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i-1] >= seen[i] {
			t.Fatalf("scan not ascending: %v", seen)
		}
	}

	count, status := db.Count(nil, true)
	if status != types.Success {
		t.Fatalf("count: %v", status)
	}
	if int(count) != len(keys) {
		t.Fatalf("count mismatch: expected %d, got %d", len(keys), count)
	}
}

func TestScenarioBasicOverlayShadow(t *testing.T) {
	_, db := newTestDatabase(t, "shadow", defaultFlags, types.KeyTypeBytes)

	t1 := db.env.Txns.Begin()
	if _, status := db.Insert(t1, types.Key{Data: []byte("a")}, types.Record{Data: []byte("1")}, 0); status != types.Success {
		t.Fatalf("T1 insert: %v", status)
	}
	if err := db.env.Txns.Commit(t1.ID); err != nil {
		t.Fatalf("commit T1: %v", err)
	}

	t2 := db.env.Txns.Begin()
	if _, status := db.Insert(t2, types.Key{Data: []byte("a")}, types.Record{Data: []byte("2")}, types.Overwrite); status != types.Success {
		t.Fatalf("T2 insert: %v", status)
	}

	t3 := db.env.Txns.Begin()
	if _, _, status := db.Find(t3, types.Key{Data: []byte("a")}, 0); status != types.TxnConflict {
		t.Fatalf("expected TxnConflict while T2 active, got %v", status)
	}

	if err := db.env.Txns.Abort(t2.ID); err != nil {
		t.Fatalf("abort T2: %v", err)
	}

	_, rec, status := db.Find(t3, types.Key{Data: []byte("a")}, 0)
	if status != types.Success {
		t.Fatalf("find after T2 abort: %v", status)
	}
	if !bytes.Equal(rec.Data, []byte("1")) {
		t.Fatalf("expected original value %q, got %q", "1", rec.Data)
	}

	if err := db.env.Txns.Abort(t3.ID); err != nil {
		t.Fatalf("abort T3: %v", err)
	}
}

func TestScenarioEraseThenInsert(t *testing.T) {
	_, db := newTestDatabase(t, "erase-insert", defaultFlags, types.KeyTypeBytes)

	t1 := db.env.Txns.Begin()
	if _, status := db.Insert(t1, types.Key{Data: []byte("x")}, types.Record{Data: []byte("10")}, 0); status != types.Success {
		t.Fatalf("T1 insert: %v", status)
	}
	if err := db.env.Txns.Commit(t1.ID); err != nil {
		t.Fatalf("commit T1: %v", err)
	}

	raw := db.lookupRaw([]byte("x"))
	if !bytes.Equal(raw, []byte("10")) {
		t.Fatalf("expected flushed value %q, got %q", "10", raw)
	}

	t2 := db.env.Txns.Begin()
	if status := db.Erase(t2, types.Key{Data: []byte("x")}, 0); status != types.Success {
		t.Fatalf("T2 erase: %v", status)
	}
	if _, status := db.Insert(t2, types.Key{Data: []byte("x")}, types.Record{Data: []byte("20")}, types.Overwrite); status != types.Success {
		t.Fatalf("T2 re-insert: %v", status)
	}
	_, rec, status := db.Find(t2, types.Key{Data: []byte("x")}, 0)
	if status != types.Success {
		t.Fatalf("T2 find: %v", status)
	}
	if !bytes.Equal(rec.Data, []byte("20")) {
		t.Fatalf("expected %q within T2, got %q", "20", rec.Data)
	}

	if err := db.env.Txns.Commit(t2.ID); err != nil {
		t.Fatalf("commit T2: %v", err)
	}

	raw = db.lookupRaw([]byte("x"))
	if !bytes.Equal(raw, []byte("20")) {
		t.Fatalf("expected post-flush value %q, got %q", "20", raw)
	}
}

func TestScenarioApproximateMatchWithOverlay(t *testing.T) {
	_, db := newTestDatabase(t, "approx", defaultFlags, types.KeyTypeBytes)

	base := db.env.Txns.Begin()
	if _, status := db.Insert(base, types.Key{Data: []byte("10")}, types.Record{Data: []byte("ten")}, 0); status != types.Success {
		t.Fatalf("insert 10: %v", status)
	}
	if _, status := db.Insert(base, types.Key{Data: []byte("30")}, types.Record{Data: []byte("thirty")}, 0); status != types.Success {
		t.Fatalf("insert 30: %v", status)
	}
	if err := db.env.Txns.Commit(base.ID); err != nil {
		t.Fatalf("commit base: %v", err)
	}

	txn := db.env.Txns.Begin()
	if _, status := db.Insert(txn, types.Key{Data: []byte("20")}, types.Record{Data: []byte("twenty")}, 0); status != types.Success {
		t.Fatalf("insert 20: %v", status)
	}

	rk, rec, status := db.Find(txn, types.Key{Data: []byte("25")}, types.LtMatch)
	if status != types.Success {
		t.Fatalf("find(25, LtMatch): %v", status)
	}
	if !bytes.Equal(rk.Data, []byte("20")) || !bytes.Equal(rec.Data, []byte("twenty")) {
		t.Fatalf("expected overlay match 20/twenty, got %s/%s", rk.Data, rec.Data)
	}

	rk, rec, status = db.Find(txn, types.Key{Data: []byte("15")}, types.LtMatch)
	if status != types.Success {
		t.Fatalf("find(15, LtMatch): %v", status)
	}
	if !bytes.Equal(rk.Data, []byte("10")) || !bytes.Equal(rec.Data, []byte("ten")) {
		t.Fatalf("expected btree match 10/ten, got %s/%s", rk.Data, rec.Data)
	}

	if err := db.env.Txns.Abort(txn.ID); err != nil {
		t.Fatalf("abort: %v", err)
	}
}

func TestScenarioRecordNumberAppend(t *testing.T) {
	dir := t.TempDir()
	env, err := OpenEnvironment(dir, 32)
	if err != nil {
		t.Fatalf("OpenEnvironment: %v", err)
	}

	db, err := CreateDatabase(env, DatabaseConfig{
		Name:    "recno",
		Path:    dir + "/recno.idx",
		FileID:  1,
		Flags:   defaultFlags,
		KeyType: types.KeyTypeRecordNumber64,
	})
	if err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	db.recno = 42

	txn := db.env.Txns.Begin()
	rk, status := db.Insert(txn, types.Key{}, types.Record{Data: []byte("new")}, 0)
	if status != types.Success {
		t.Fatalf("recno insert: %v", status)
	}
	if err := db.env.Txns.Commit(txn.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if db.recno != 43 {
		t.Fatalf("expected counter 43, got %d", db.recno)
	}
	var want [8]byte
	want[7] = 43
	if !bytes.Equal(rk.Data, want[:]) {
		t.Fatalf("expected key %v, got %v", want, rk.Data)
	}
}

func TestScenarioCloseWithOpenTxn(t *testing.T) {
	_, db := newTestDatabase(t, "closewithtxn", defaultFlags, types.KeyTypeBytes)

	txn := db.env.Txns.Begin()
	if _, status := db.Insert(txn, types.Key{Data: []byte("k")}, types.Record{Data: []byte("v")}, 0); status != types.Success {
		t.Fatalf("insert: %v", status)
	}

	if status := db.Close(0); status != types.TxnStillOpen {
		t.Fatalf("expected TxnStillOpen, got %v", status)
	}

	if err := db.env.Txns.Abort(txn.ID); err != nil {
		t.Fatalf("abort: %v", err)
	}

	if status := db.Close(0); status != types.Success {
		t.Fatalf("expected Success after abort, got %v", status)
	}
}

// TestDuplicateIndexShift drives insertTxn's peer-shift loop directly
// through a second cursor positioned at the same duplicate index, matching
// the "key d has duplicates [A,B,C]" scenario: inserting a new duplicate at
// index 2 must push every cursor at index >= 2 up by one.
func TestDuplicateIndexShift(t *testing.T) {
	_, db := newTestDatabase(t, "dupeshift", defaultFlags, types.KeyTypeBytes)

	t0 := db.env.Txns.Begin()

	if _, status := db.insertTxn(t0, types.Key{Data: []byte("d")}, types.Record{Data: []byte("A")}, types.Duplicate, nil); status != types.Success {
		t.Fatalf("insert A: %v", status)
	}

	c1 := db.CreateCursor(t0)
	defer c1.Close()
	if _, status := db.insertTxn(t0, types.Key{Data: []byte("d")}, types.Record{Data: []byte("B")}, types.Duplicate, c1); status != types.Success {
		t.Fatalf("insert B: %v", status)
	}
	c1.dupeIndex = 2 // c1 is now "positioned" on duplicate 2 (B)

	if _, status := db.insertTxn(t0, types.Key{Data: []byte("d")}, types.Record{Data: []byte("C")}, types.Duplicate, nil); status != types.Success {
		t.Fatalf("insert C: %v", status)
	}

	node := db.overlay.Get([]byte("d"))
	c2 := db.CreateCursor(t0)
	defer c2.Close()
	c2.coupleToTxnOp(node, c1.op) // couples to B's op, the one at duplicate index 2
	c2.dupeIndex = 2

	if _, status := db.insertTxn(t0, types.Key{Data: []byte("d")}, types.Record{Data: []byte("X")}, types.Duplicate, c2); status != types.Success {
		t.Fatalf("insert X at index 2: %v", status)
	}

	if c1.dupeIndex != 3 {
		t.Fatalf("expected c1 shifted to index 3, got %d", c1.dupeIndex)
	}
	if c1.op == nil || !bytes.Equal(c1.op.Record.Data, []byte("B")) {
		t.Fatalf("expected c1 to still yield B")
	}

	if err := db.env.Txns.Abort(t0.ID); err != nil {
		t.Fatalf("abort: %v", err)
	}
}

// TestFlushIdempotence checks that flushing a committed op leaves the B-tree
// holding exactly the op's value, and that once flushed the node is pruned
// from the overlay so later reads resolve straight to the B-tree instead of
// re-deciding anything from the (now-gone) op.
func TestFlushIdempotence(t *testing.T) {
	_, db := newTestDatabase(t, "flushidem", defaultFlags, types.KeyTypeBytes)

	txn := db.env.Txns.Begin()
	if _, status := db.Insert(txn, types.Key{Data: []byte("k")}, types.Record{Data: []byte("v")}, 0); status != types.Success {
		t.Fatalf("insert: %v", status)
	}
	if err := db.env.Txns.Commit(txn.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if node := db.overlay.Get([]byte("k")); node != nil {
		t.Fatalf("expected flushed node to be pruned from the overlay, found %v", node)
	}

	raw := db.lookupRaw([]byte("k"))
	if !bytes.Equal(raw, []byte("v")) {
		t.Fatalf("expected b-tree to hold %q, got %q", "v", raw)
	}

	_, rec, status := db.Find(nil, types.Key{Data: []byte("k")}, 0)
	if status != types.Success || !bytes.Equal(rec.Data, []byte("v")) {
		t.Fatalf("find after flush: rec=%q status=%v", rec.Data, status)
	}
}

// TestDuplicateInsertPositionFlags drives DuplicateInsertFirst/Last/Before/
// After through insertTxn and checks the resulting duplicate order once
// flushed to the B-tree's envelope.
func TestDuplicateInsertPositionFlags(t *testing.T) {
	_, db := newTestDatabase(t, "dupeposition", defaultFlags, types.KeyTypeBytes)

	txn := db.env.Txns.Begin()
	key := types.Key{Data: []byte("d")}

	if _, status := db.insertTxn(txn, key, types.Record{Data: []byte("A")}, types.Duplicate, nil); status != types.Success {
		t.Fatalf("insert A: %v", status)
	}
	if _, status := db.insertTxn(txn, key, types.Record{Data: []byte("B")}, types.Duplicate, nil); status != types.Success {
		t.Fatalf("insert B: %v", status)
	}
	node := db.overlay.Get(key.Data)
	opB := node.NewestOp()
	if _, status := db.insertTxn(txn, key, types.Record{Data: []byte("C")}, types.Duplicate, nil); status != types.Success {
		t.Fatalf("insert C: %v", status)
	}
	opC := node.NewestOp()

	// order so far: A, B, C
	if _, status := db.insertTxn(txn, key, types.Record{Data: []byte("Z")}, types.Duplicate|types.DuplicateInsertFirst, nil); status != types.Success {
		t.Fatalf("insert Z first: %v", status)
	}
	// order: Z, A, B, C -- B is now at index 3, C at index 4

	anchorB := db.CreateCursor(txn)
	anchorB.coupleToTxnOp(node, opB)
	anchorB.dupeIndex = 3
	if _, status := db.insertTxn(txn, key, types.Record{Data: []byte("M")}, types.Duplicate|types.DuplicateInsertAfter, anchorB); status != types.Success {
		t.Fatalf("insert M after B: %v", status)
	}
	anchorB.Close()
	// order: Z, A, B, M, C -- C is now at index 5

	anchorC := db.CreateCursor(txn)
	anchorC.coupleToTxnOp(node, opC)
	anchorC.dupeIndex = 5
	if _, status := db.insertTxn(txn, key, types.Record{Data: []byte("N")}, types.Duplicate|types.DuplicateInsertBefore, anchorC); status != types.Success {
		t.Fatalf("insert N before C: %v", status)
	}
	anchorC.Close()
	// order: Z, A, B, M, N, C

	if _, status := db.insertTxn(txn, key, types.Record{Data: []byte("Q")}, types.Duplicate|types.DuplicateInsertLast, nil); status != types.Success {
		t.Fatalf("insert Q last: %v", status)
	}
	// order: Z, A, B, M, N, C, Q

	if err := db.env.Txns.Commit(txn.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	raw := db.lookupRaw(key.Data)
	env := decodeDupeEnvelope(raw)
	want := []string{"Z", "A", "B", "M", "N", "C", "Q"}
	if env.count() != len(want) {
		t.Fatalf("expected %d duplicates, got %d", len(want), env.count())
	}
	for i, w := range want {
		if got := string(env.at(i + 1)); got != w {
			t.Fatalf("duplicate %d: expected %q, got %q", i+1, w, got)
		}
	}
}

func TestInsertRejectsWrongRecnoKeyWidth(t *testing.T) {
	_, db := newTestDatabase(t, "recnowidth", defaultFlags, types.KeyTypeRecordNumber32)

	// An explicit, wrong-width key is rejected...
	_, status := db.Insert(nil, types.Key{Data: []byte{1, 2, 3}}, types.Record{Data: []byte("v")}, 0)
	if status != types.InvKeySize {
		t.Fatalf("expected InvKeySize, got %v", status)
	}

	// ...while an empty key (auto-assigned) and a correctly-sized explicit
	// key both succeed.
	if _, status := db.Insert(nil, types.Key{}, types.Record{Data: []byte("v")}, 0); status != types.Success {
		t.Fatalf("auto-assigned key: %v", status)
	}
	if _, status := db.Insert(nil, types.Key{Data: []byte{0, 0, 0, 99}}, types.Record{Data: []byte("v")}, 0); status != types.Success {
		t.Fatalf("correctly-sized explicit key: %v", status)
	}
}

func TestInsertRejectsWrongRecordSize(t *testing.T) {
	dir := t.TempDir()
	env, err := OpenEnvironment(dir, 32)
	if err != nil {
		t.Fatalf("OpenEnvironment: %v", err)
	}
	db, err := CreateDatabase(env, DatabaseConfig{
		Name:       "fixedrec",
		Path:       dir + "/fixedrec.idx",
		FileID:     1,
		Flags:      defaultFlags,
		KeyType:    types.KeyTypeBytes,
		RecordSize: 4,
	})
	if err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}

	_, status := db.Insert(nil, types.Key{Data: []byte("k")}, types.Record{Data: []byte("toolong")}, 0)
	if status != types.InvRecordSize {
		t.Fatalf("expected InvRecordSize, got %v", status)
	}

	if _, status := db.Insert(nil, types.Key{Data: []byte("k")}, types.Record{Data: []byte("1234")}, 0); status != types.Success {
		t.Fatalf("correctly-sized record: %v", status)
	}
}

// TestScanDistinctCollapsesDuplicateCount checks §4.8's distinct contract:
// scan(distinct) reports count=1 for a key with duplicates, scan(!distinct)
// reports the real duplicate count.
func TestScanDistinctCollapsesDuplicateCount(t *testing.T) {
	_, db := newTestDatabase(t, "scandistinct", defaultFlags, types.KeyTypeBytes)

	txn := db.env.Txns.Begin()
	if _, status := db.Insert(txn, types.Key{Data: []byte("b")}, types.Record{Data: []byte("1")}, types.Duplicate); status != types.Success {
		t.Fatalf("insert b/1: %v", status)
	}
	if _, status := db.Insert(txn, types.Key{Data: []byte("b")}, types.Record{Data: []byte("2")}, types.Duplicate); status != types.Success {
		t.Fatalf("insert b/2: %v", status)
	}
	if _, status := db.Insert(txn, types.Key{Data: []byte("b")}, types.Record{Data: []byte("3")}, types.Duplicate); status != types.Success {
		t.Fatalf("insert b/3: %v", status)
	}
	if _, status := db.Insert(txn, types.Key{Data: []byte("a")}, types.Record{Data: []byte("x")}, 0); status != types.Success {
		t.Fatalf("insert a: %v", status)
	}
	if err := db.env.Txns.Commit(txn.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	counts := map[string]int{}
	if status := db.Scan(nil, func(key []byte, count int) bool {
		counts[string(key)] = count
		return true
	}, true); status != types.Success {
		t.Fatalf("scan(distinct): %v", status)
	}
	if counts["a"] != 1 {
		t.Fatalf("expected a's distinct count 1, got %d", counts["a"])
	}
	if counts["b"] != 1 {
		t.Fatalf("expected b's distinct count collapsed to 1, got %d", counts["b"])
	}

	counts = map[string]int{}
	if status := db.Scan(nil, func(key []byte, count int) bool {
		counts[string(key)] = count
		return true
	}, false); status != types.Success {
		t.Fatalf("scan(!distinct): %v", status)
	}
	if counts["a"] != 1 {
		t.Fatalf("expected a's count 1, got %d", counts["a"])
	}
	if counts["b"] != 3 {
		t.Fatalf("expected b's full duplicate count 3, got %d", counts["b"])
	}
}
