// Demo program: opens an environment, creates a database, and runs a
// handful of transactional inserts/finds/scans against it.
// Run: go run ./cmd/demo
package main

import (
	"fmt"
	"log"
	"os"

	"txnkv/engine"
	"txnkv/types"
)

const baseDir = "data/demo"

func main() {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		log.Fatalf("mkdir: %v", err)
	}

	env, err := engine.OpenEnvironment(baseDir, 64)
	if err != nil {
		log.Fatalf("open environment: %v", err)
	}

	flags := types.EnableTransactions | types.EnableRecovery | types.EnableDuplicateKeys

	db, err := engine.CreateDatabase(env, engine.DatabaseConfig{
		Name:    "users",
		Path:    baseDir + "/users.idx",
		FileID:  1,
		Flags:   flags,
		KeyType: types.KeyTypeBytes,
	})
	if err != nil {
		log.Fatalf("create database: %v", err)
	}

	fmt.Println("Inserting a few rows under a single transaction...")
	txn := env.Txns.Begin()

	for _, row := range []struct{ key, value string }{
		{"alice", "engineer"},
		{"bob", "designer"},
		{"carol", "manager"},
	} {
		_, status := db.Insert(txn, types.Key{Data: []byte(row.key)}, types.Record{Data: []byte(row.value)}, 0)
		if status != types.Success {
			log.Fatalf("insert %q: %v", row.key, status)
		}
	}

	if err := env.Txns.Commit(txn.ID); err != nil {
		log.Fatalf("commit: %v", err)
	}

	fmt.Println("\n--- find(\"bob\") ---")
	_, rec, status := db.Find(nil, types.Key{Data: []byte("bob")}, 0)
	if status != types.Success {
		log.Fatalf("find bob: %v", status)
	}
	fmt.Printf("bob -> %s\n", rec.Data)

	fmt.Println("\n--- scan ---")
	status = db.Scan(nil, func(key []byte, count int) bool {
		fmt.Printf("%-10s (duplicates: %d)\n", key, count)
		return true
	}, false)
	if status != types.Success {
		log.Fatalf("scan: %v", status)
	}

	fmt.Println("\n--- cursor walk ---")
	cur := db.CreateCursor(nil)
	defer cur.Close()
	for {
		key, rec, status := cur.Move(types.CursorNext)
		if status != types.Success {
			break
		}
		fmt.Printf("%-10s -> %s\n", key.Data, rec.Data)
	}

	fmt.Println("\n--- erase(\"alice\") under its own transaction ---")
	eraseTxn := env.Txns.Begin()
	if status := db.Erase(eraseTxn, types.Key{Data: []byte("alice")}, 0); status != types.Success {
		log.Fatalf("erase alice: %v", status)
	}
	if err := env.Txns.Commit(eraseTxn.ID); err != nil {
		log.Fatalf("commit: %v", err)
	}

	count, status := db.Count(nil, true)
	if status != types.Success {
		log.Fatalf("count: %v", status)
	}
	fmt.Printf("\nremaining distinct keys: %d\n", count)

	if status := db.Close(0); status != types.Success {
		log.Fatalf("close database: %v", status)
	}
	if err := env.Journal.Close(); err != nil {
		log.Fatalf("close journal: %v", err)
	}
}
