package engine

// TxnNode is the per-key chronological operation list (C4). It exists as
// long as any TxnOperation for its key is alive in memory, or any cursor
// still references it directly — whichever outlives the other.
type TxnNode struct {
	key []byte

	newest *TxnOperation

	// refCount counts cursors coupled to this node's TxnOp side or to the
	// node itself (e.g. mid-dupecache-rebuild); it is the "+cursors" half
	// of the node's lifetime rule in spec §3.
	refCount int
}

func newTxnNode(key []byte) *TxnNode {
	k := make([]byte, len(key))
	copy(k, key)
	return &TxnNode{key: k}
}

func (n *TxnNode) Key() []byte { return n.key }

func (n *TxnNode) NewestOp() *TxnOperation { return n.newest }

// appendOp links op as the new head of this node's chronological chain.
// Caller must ensure op.LSN > every existing op's LSN (monotonicity, §5).
func (n *TxnNode) appendOp(op *TxnOperation) {
	op.prevInNode = n.newest
	n.newest = op
}

func (n *TxnNode) retain()  { n.refCount++ }
func (n *TxnNode) release() { n.refCount-- }

// isEmpty reports whether this node can be safely dropped from the
// TxnIndex: no operations and no cursor references (spec §3 invariant).
func (n *TxnNode) isEmpty() bool {
	return n.newest == nil && n.refCount <= 0
}

// forEachOp walks the chain from newest to oldest, per the walk order every
// conflict/find/erase routine in §4 relies on.
func (n *TxnNode) forEachOp(visit func(*TxnOperation) bool) {
	for op := n.newest; op != nil; op = op.prevInNode {
		if !visit(op) {
			return
		}
	}
}

// removeAbortedOps drops every op whose owning transaction has aborted and
// which no cursor still references, so a long-lived node doesn't
// accumulate dead ops forever. Matched by op.isAborted() rather than by
// transaction identity, since by the time TxnManager.Abort's FlushHandler
// callback runs the transaction has already left the active-transaction
// map — only op.txn's own State field is still reachable.
func (n *TxnNode) removeAbortedOps() {
	n.filterOps(func(op *TxnOperation) bool {
		return op.isAborted() && len(op.cursors) == 0
	})
}

// removeFlushedOps drops every op already durable in the B-tree and no
// longer referenced by a cursor, so a node whose ops have all settled
// (flushed or aborted) can become isEmpty() and leave the TxnIndex instead
// of lingering there forever.
func (n *TxnNode) removeFlushedOps() {
	n.filterOps(func(op *TxnOperation) bool {
		return op.Flushed && len(op.cursors) == 0
	})
}

// filterOps rebuilds the chain keeping only ops for which drop returns
// false, preserving relative (newest-to-oldest) order.
func (n *TxnNode) filterOps(drop func(*TxnOperation) bool) {
	var head *TxnOperation
	var tail *TxnOperation
	for op := n.newest; op != nil; {
		next := op.prevInNode
		if drop(op) {
			op = next
			continue
		}
		op.prevInNode = nil
		if head == nil {
			head = op
		} else {
			tail.prevInNode = op
		}
		tail = op
		op = next
	}
	n.newest = head
}
