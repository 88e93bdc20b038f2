// Package pagemanager is the single seam the engine package talks to for
// anything page-shaped, fronting the buffer pool and disk manager the way
// a page manager fronts paging in the reference design.
package pagemanager

import (
	"fmt"

	"txnkv/storage_engine/bufferpool"
	"txnkv/storage_engine/diskmanager"
	"txnkv/storage_engine/page"
)

// PageManager owns one BufferPool/DiskManager pair per open environment and
// tracks which file IDs belong to which database name, so CloseDatabase can
// close that database's file.
type PageManager struct {
	bufferPool  *bufferpool.BufferPool
	diskManager *diskmanager.DiskManager
	dbFiles     map[string]uint32 // database name -> btree file ID
}

func New(capacity int) *PageManager {
	dm := diskmanager.NewDiskManager()
	return &PageManager{
		bufferPool:  bufferpool.NewBufferPool(capacity, dm),
		diskManager: dm,
		dbFiles:     make(map[string]uint32),
	}
}

func (pm *PageManager) SetWALManager(wal bufferpool.WALFlushedLSNGetter) {
	pm.bufferPool.SetWALManager(wal)
}

func (pm *PageManager) BufferPool() *bufferpool.BufferPool   { return pm.bufferPool }
func (pm *PageManager) DiskManager() *diskmanager.DiskManager { return pm.diskManager }

// RegisterDatabase records which file ID backs a database's B-tree, so a
// later CloseDatabase call knows what to flush and close.
func (pm *PageManager) RegisterDatabase(dbName string, fileID uint32) {
	pm.dbFiles[dbName] = fileID
}

// PurgeCache drops every cached page, forcing the next Fetch to reload from
// disk. Used before a full scan to guarantee a consistent page-eviction view.
func (pm *PageManager) PurgeCache() error {
	return pm.bufferPool.Reset()
}

// Fetch loads a page, pinning it in the buffer pool. Callers must Unpin.
func (pm *PageManager) Fetch(pageID int64) (*page.Page, error) {
	return pm.bufferPool.FetchPage(pageID)
}

func (pm *PageManager) Unpin(pageID int64, dirty bool) error {
	return pm.bufferPool.UnpinPage(pageID, dirty)
}

// CloseDatabase flushes every dirty page in the shared buffer pool, those of
// other databases included, then closes dbName's file descriptor. Pages of
// the closed file stay cached in the buffer pool.
func (pm *PageManager) CloseDatabase(dbName string) error {
	fileID, ok := pm.dbFiles[dbName]
	if !ok {
		return nil
	}

	if err := pm.bufferPool.FlushAllPages(); err != nil {
		return fmt.Errorf("pagemanager: flush before close of %q: %w", dbName, err)
	}
	if err := pm.diskManager.CloseFile(fileID); err != nil {
		return fmt.Errorf("pagemanager: close file for %q: %w", dbName, err)
	}

	delete(pm.dbFiles, dbName)
	return nil
}

// Sync flushes every dirty page and fsyncs every open file.
func (pm *PageManager) Sync() error {
	if err := pm.bufferPool.FlushAllPages(); err != nil {
		return err
	}
	return pm.diskManager.Sync()
}

// Close flushes and closes every file this page manager owns.
func (pm *PageManager) Close() error {
	if err := pm.bufferPool.FlushAllPages(); err != nil {
		return err
	}
	return pm.diskManager.CloseAll()
}
