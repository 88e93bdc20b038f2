package engine

import (
	"txnkv/storage_engine/txnmgr"
	"txnkv/types"
)

// btreeLookup is the narrow collaborator conflict resolution needs from
// BTreeIndex: does the key currently exist on disk.
type btreeLookup interface {
	Search(key []byte) ([]byte, error)
}

// checkInsertConflict implements ConflictResolver — insert (spec §4.1).
// node may be nil (brand new key, nothing in the overlay to walk).
func checkInsertConflict(t *txnmgr.Transaction, node *TxnNode, key []byte, flags types.Flags, isRecno bool, bt btreeLookup) types.Status {
	if node != nil {
		decided, status := false, types.Success
		node.forEachOp(func(op *TxnOperation) bool {
			if op.isAborted() {
				return true // skip, keep walking
			}
			if op.isCommitted() || op.belongsTo(t) {
				if op.Flushed || op.Kind == OpNop {
					return true
				}
				switch op.Kind {
				case OpErase:
					status = types.Success
				case OpInsert, OpInsertOverwrite, OpInsertDuplicate:
					if flags.Has(types.Overwrite) || flags.Has(types.Duplicate) {
						status = types.Success
					} else {
						status = types.DuplicateKey
					}
				}
				decided = true
				return false
			}
			status = types.TxnConflict
			decided = true
			return false
		})
		if decided {
			return status
		}
	}

	if flags.Has(types.Overwrite) || flags.Has(types.Duplicate) || isRecno {
		return types.Success
	}

	rec, err := bt.Search(key)
	if err != nil {
		return types.InvParameter
	}
	if rec != nil {
		return types.DuplicateKey
	}
	return types.Success
}

// checkEraseConflict implements ConflictResolver — erase (spec §4.2).
func checkEraseConflict(t *txnmgr.Transaction, node *TxnNode, key []byte, bt btreeLookup) types.Status {
	if node != nil {
		decided, status := false, types.Success
		node.forEachOp(func(op *TxnOperation) bool {
			if op.isAborted() {
				return true
			}
			if op.isCommitted() || op.belongsTo(t) {
				if op.Flushed || op.Kind == OpNop {
					return true
				}
				switch op.Kind {
				case OpErase:
					status = types.KeyNotFound
				case OpInsert, OpInsertOverwrite, OpInsertDuplicate:
					status = types.Success
				}
				decided = true
				return false
			}
			status = types.TxnConflict
			decided = true
			return false
		})
		if decided {
			return status
		}
	}

	rec, err := bt.Search(key)
	if err != nil {
		return types.InvParameter
	}
	if rec == nil {
		return types.KeyNotFound
	}
	return types.Success
}
