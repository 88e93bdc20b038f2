package engine

import (
	"bytes"
	"testing"

	"txnkv/types"
)

func TestCursorMoveWalksAscending(t *testing.T) {
	_, db := newTestDatabase(t, "cursorwalk", defaultFlags, types.KeyTypeBytes)

	txn := db.env.Txns.Begin()
	for _, k := range []string{"b", "d", "a", "c"} {
		if _, status := db.Insert(txn, types.Key{Data: []byte(k)}, types.Record{Data: []byte(k + "-val")}, 0); status != types.Success {
			t.Fatalf("insert %q: %v", k, status)
		}
	}
	if err := db.env.Txns.Commit(txn.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	cur := db.CreateCursor(nil)
	defer cur.Close()

	var got []string
	for {
		key, _, status := cur.Move(types.CursorNext)
		if status != types.Success {
			break
		}
		got = append(got, string(key.Data))
	}
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	key, _, status := cur.Move(types.CursorLast)
	if status != types.Success || string(key.Data) != "d" {
		t.Fatalf("move LAST: key=%q status=%v", key.Data, status)
	}

	key, _, status = cur.Move(types.CursorPrevious)
	if status != types.Success || string(key.Data) != "c" {
		t.Fatalf("move PREV: key=%q status=%v", key.Data, status)
	}

	key, _, status = cur.Move(types.CursorFirst)
	if status != types.Success || string(key.Data) != "a" {
		t.Fatalf("move FIRST: key=%q status=%v", key.Data, status)
	}
}

func TestCursorMoveNextAfterUnusedTreatedAsFirst(t *testing.T) {
	_, db := newTestDatabase(t, "cursorfirst", defaultFlags, types.KeyTypeBytes)

	txn := db.env.Txns.Begin()
	if _, status := db.Insert(txn, types.Key{Data: []byte("x")}, types.Record{Data: []byte("1")}, 0); status != types.Success {
		t.Fatalf("insert x: %v", status)
	}
	if _, status := db.Insert(txn, types.Key{Data: []byte("y")}, types.Record{Data: []byte("2")}, 0); status != types.Success {
		t.Fatalf("insert y: %v", status)
	}
	if err := db.env.Txns.Commit(txn.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	cur := db.CreateCursor(nil)
	defer cur.Close()

	key, _, status := cur.Move(types.CursorNext)
	if status != types.Success || string(key.Data) != "x" {
		t.Fatalf("first NEXT on unused cursor should behave like FIRST: key=%q status=%v", key.Data, status)
	}

	key, _, status = cur.Move(types.CursorNext)
	if status != types.Success || string(key.Data) != "y" {
		t.Fatalf("second NEXT: key=%q status=%v", key.Data, status)
	}

	_, _, status = cur.Move(types.CursorNext)
	if status != types.KeyNotFound {
		t.Fatalf("NEXT past the end: status=%v", status)
	}
}

func TestCursorCloneCouplesIndependently(t *testing.T) {
	_, db := newTestDatabase(t, "cursorclone", defaultFlags, types.KeyTypeBytes)

	txn := db.env.Txns.Begin()
	if _, status := db.Insert(txn, types.Key{Data: []byte("k")}, types.Record{Data: []byte("v1")}, 0); status != types.Success {
		t.Fatalf("insert: %v", status)
	}

	c1 := db.CreateCursor(txn)
	defer c1.Close()
	if _, _, status := c1.Find(types.Key{Data: []byte("k")}, 0); status != types.Success {
		t.Fatalf("find: %v", status)
	}

	c2 := c1.Clone()
	defer c2.Close()

	if c2.coupling != c1.coupling {
		t.Fatalf("clone coupling mismatch: %v vs %v", c2.coupling, c1.coupling)
	}
	if !bytes.Equal(c2.posKey, c1.posKey) {
		t.Fatalf("clone posKey mismatch: %q vs %q", c2.posKey, c1.posKey)
	}

	if err := db.env.Txns.Commit(txn.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	c1.Close()
	if _, _, status := c2.Find(types.Key{Data: []byte("k")}, 0); status != types.Success {
		t.Fatalf("clone still usable after original closed: %v", status)
	}
}

func TestCursorOverwrite(t *testing.T) {
	_, db := newTestDatabase(t, "cursoroverwrite", defaultFlags, types.KeyTypeBytes)

	txn := db.env.Txns.Begin()
	if _, status := db.Insert(txn, types.Key{Data: []byte("k")}, types.Record{Data: []byte("old")}, 0); status != types.Success {
		t.Fatalf("insert: %v", status)
	}
	if err := db.env.Txns.Commit(txn.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	txn2 := db.env.Txns.Begin()
	cur := db.CreateCursor(txn2)
	defer cur.Close()
	if _, _, status := cur.Find(types.Key{Data: []byte("k")}, 0); status != types.Success {
		t.Fatalf("find: %v", status)
	}
	if status := cur.Overwrite(types.Record{Data: []byte("new")}, 0); status != types.Success {
		t.Fatalf("overwrite: %v", status)
	}
	if err := db.env.Txns.Commit(txn2.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	_, rec, status := db.Find(nil, types.Key{Data: []byte("k")}, 0)
	if status != types.Success || !bytes.Equal(rec.Data, []byte("new")) {
		t.Fatalf("expected overwritten value, got %q status=%v", rec.Data, status)
	}
}

func TestCursorEraseNilsCursor(t *testing.T) {
	_, db := newTestDatabase(t, "cursorerase", defaultFlags, types.KeyTypeBytes)

	txn := db.env.Txns.Begin()
	if _, status := db.Insert(txn, types.Key{Data: []byte("k")}, types.Record{Data: []byte("v")}, 0); status != types.Success {
		t.Fatalf("insert: %v", status)
	}
	if err := db.env.Txns.Commit(txn.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	txn2 := db.env.Txns.Begin()
	cur := db.CreateCursor(txn2)
	defer cur.Close()
	if _, _, status := cur.Find(types.Key{Data: []byte("k")}, 0); status != types.Success {
		t.Fatalf("find: %v", status)
	}
	if status := cur.Erase(0); status != types.Success {
		t.Fatalf("erase: %v", status)
	}
	if cur.coupling != CouplingNil {
		t.Fatalf("expected cursor nil after erase, got coupling %v", cur.coupling)
	}
	if status := cur.Erase(0); status != types.CursorIsNil {
		t.Fatalf("erase on nil cursor should fail: %v", status)
	}
	if err := db.env.Txns.Commit(txn2.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	_, _, status := db.Find(nil, types.Key{Data: []byte("k")}, 0)
	if status != types.KeyNotFound {
		t.Fatalf("expected key gone after commit, got %v", status)
	}
}
