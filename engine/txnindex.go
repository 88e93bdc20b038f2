package engine

import (
	"bytes"

	"github.com/google/btree"
)

// txnIndexItem adapts a TxnNode to google/btree's Item interface, ordering
// purely by key bytes — the user-key comparator from spec §5.
type txnIndexItem struct {
	node *TxnNode
}

func (a txnIndexItem) Less(than btree.Item) bool {
	return bytes.Compare(a.node.key, than.(txnIndexItem).node.key) < 0
}

// TxnIndex is the ordered map of TxnNodes keyed by user key (C5). Backed by
// google/btree so Get/Store/Remove and sibling lookups are all O(log n)
// without hand-rolling a balanced tree.
type TxnIndex struct {
	tree *btree.BTree
}

func newTxnIndex() *TxnIndex {
	return &TxnIndex{tree: btree.New(32)}
}

func (idx *TxnIndex) Get(key []byte) *TxnNode {
	probe := &TxnNode{key: key}
	item := idx.tree.Get(txnIndexItem{node: probe})
	if item == nil {
		return nil
	}
	return item.(txnIndexItem).node
}

func (idx *TxnIndex) Store(n *TxnNode) {
	idx.tree.ReplaceOrInsert(txnIndexItem{node: n})
}

func (idx *TxnIndex) Remove(key []byte) {
	probe := &TxnNode{key: key}
	idx.tree.Delete(txnIndexItem{node: probe})
}

func (idx *TxnIndex) Count() int {
	return idx.tree.Len()
}

func (idx *TxnIndex) First() *TxnNode {
	var out *TxnNode
	idx.tree.Ascend(func(item btree.Item) bool {
		out = item.(txnIndexItem).node
		return false
	})
	return out
}

func (idx *TxnIndex) Last() *TxnNode {
	var out *TxnNode
	idx.tree.Descend(func(item btree.Item) bool {
		out = item.(txnIndexItem).node
		return false
	})
	return out
}

// NextSibling returns the node with the smallest key strictly greater than
// key, or nil if key is the last one present.
func (idx *TxnIndex) NextSibling(key []byte) *TxnNode {
	probe := &TxnNode{key: key}
	var out *TxnNode
	idx.tree.AscendGreaterOrEqual(txnIndexItem{node: probe}, func(item btree.Item) bool {
		n := item.(txnIndexItem).node
		if bytes.Equal(n.key, key) {
			return true // skip the exact match itself
		}
		out = n
		return false
	})
	return out
}

// PreviousSibling returns the node with the largest key strictly less than
// key, or nil if key is the first one present.
func (idx *TxnIndex) PreviousSibling(key []byte) *TxnNode {
	var out *TxnNode
	idx.tree.DescendLessOrEqual(txnIndexItem{node: &TxnNode{key: key}}, func(item btree.Item) bool {
		n := item.(txnIndexItem).node
		if bytes.Equal(n.key, key) {
			return true
		}
		out = n
		return false
	})
	return out
}

// AscendFrom walks every node with key >= from in ascending order, stopping
// when visit returns false. Used by scan (§4.8) and cursor NEXT.
func (idx *TxnIndex) AscendFrom(from []byte, visit func(*TxnNode) bool) {
	idx.tree.AscendGreaterOrEqual(txnIndexItem{node: &TxnNode{key: from}}, func(item btree.Item) bool {
		return visit(item.(txnIndexItem).node)
	})
}

// DescendFrom walks every node with key <= from in descending order.
func (idx *TxnIndex) DescendFrom(from []byte, visit func(*TxnNode) bool) {
	idx.tree.DescendLessOrEqual(txnIndexItem{node: &TxnNode{key: from}}, func(item btree.Item) bool {
		return visit(item.(txnIndexItem).node)
	})
}
