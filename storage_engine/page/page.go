package page

import (
	"txnkv/types"
	"sync"
)

const (
	PageSize      = 4096
	PageLSNOffset = 0 // first 8 bytes of every page = LSN
)

// Page is the in-memory representation of one on-disk page, shared by the
// BufferPool and the B+Tree's node (de)serialization in
// storage_engine/btree/node_to_index_page.go.
type Page struct {
	ID       int64
	FileID   uint32
	Data     []byte
	IsDirty  bool
	PinCount int32
	PageType types.PageType
	LSN      uint64 // in-memory, set by the B+ tree node layer on write
	mu       sync.RWMutex
}

func (p *Page) Lock() {
	p.mu.Lock()
}

func (p *Page) Unlock() {
	p.mu.Unlock()
}

func (p *Page) RLock() {
	p.mu.RLock()
}

func (p *Page) RUnlock() {
	p.mu.RUnlock()
}
