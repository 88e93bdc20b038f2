package journal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"txnkv/types"
)

/*

WAL Segment File
────────────────────────────────────
| Record | Record | Record | ...   |
────────────────────────────────────

Each Record:
────────────────────────────────────────────
| LSN (8) | LEN (4) | CRC (4) | DATA (LEN) |
────────────────────────────────────────────

	RecordHeaderSize = 16
	SegmentSize      = 16 * 1024 * 1024

*/

func OpenWAL(directory string) (*WALManager, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, err
	}

	wal := &WALManager{
		Directory: directory,
		Segments:  make(map[uint64]*WALSegment),
	}

	// recover existing onces
	if err := wal.recoverWALEntries(); err != nil {
		return nil, err
	}

	if wal.CurrSegment == nil {
		if err := wal.createNewSegment(); err != nil {
			return nil, err
		}
	}

	return wal, nil
}

// recover exisitng wal entries
// updates the current lsn and current segment number
// set the segmentId to segment mapping
func (w *WALManager) recoverWALEntries() error {
	files, err := filepath.Glob(filepath.Join(w.Directory, "wal_*.log"))
	if err != nil {
		return err
	}

	// exctrating the segments id from the wal files
	var segmentIDs []uint64
	for _, file := range files {
		name := filepath.Base(file)
		if !strings.HasPrefix(name, "wal_") || !strings.HasSuffix(name, ".log") {
			continue
		}

		// extract hex part
		hexPart := strings.TrimSuffix(
			strings.TrimPrefix(name, "wal_"),
			".log",
		)
		segmentID, err := strconv.ParseUint(hexPart, 16, 64)
		if err != nil {
			continue
		}

		segmentIDs = append(segmentIDs, segmentID)
	}

	if len(segmentIDs) == 0 {
		return nil
	}

	slices.Sort(segmentIDs)

	maxLSN := uint64(0)
	for _, segmentID := range segmentIDs {
		segment := InitializeWALSegment(segmentID, w.Directory)
		if err := segment.Open(); err != nil {
			return err
		}
		w.Segments[segmentID] = segment

		// Scan segment for largest LSN
		lsn, err := w.findLargestLSN(segment)
		if err != nil {
			return err
		}
		if lsn > maxLSN {
			maxLSN = lsn
		}
	}

	// Set current segment to the last one
	lastSegmentID := segmentIDs[len(segmentIDs)-1]
	w.CurrSegment = w.Segments[lastSegmentID]
	w.CurrentLSN = maxLSN

	return nil
}

func (w *WALManager) createNewSegment() error {
	segmentID := uint64(len(w.Segments))
	segment := InitializeWALSegment(segmentID, w.Directory)

	if err := segment.Open(); err != nil {
		return err
	}

	w.Segments[segmentID] = segment
	w.CurrSegment = segment
	return nil
}

// ReplayFromLSN walks every segment in ascending order and hands every
// record at or after startLSN to applyFunc, in the order it was written.
func (wm *WALManager) ReplayFromLSN(startLSN uint64, applyFunc func(*types.JournalRecord) error) error {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	var segmentIDs []uint64
	for id := range wm.Segments {
		segmentIDs = append(segmentIDs, id)
	}
	slices.Sort(segmentIDs)

	for _, segmentID := range segmentIDs {
		segment := wm.Segments[segmentID]
		if err := wm.replaySegment(segment, startLSN, applyFunc); err != nil {
			return fmt.Errorf("failed to replay segment %d: %w", segmentID, err)
		}
	}

	return nil
}

func (wm *WALManager) replaySegment(segment *WALSegment, startLSN uint64, applyFunc func(*types.JournalRecord) error) error {
	segment.mu.Lock()
	defer segment.mu.Unlock()

	file, err := os.Open(segment.FilePath)
	if err != nil {
		return err
	}
	defer file.Close()

	header := make([]byte, RecordHeaderSize)

	for {
		_, err := io.ReadFull(file, header)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		lsn := binary.BigEndian.Uint64(header[0:8])
		dataLen := binary.BigEndian.Uint32(header[8:12])
		crc := binary.BigEndian.Uint32(header[12:16])

		data := make([]byte, dataLen)
		if _, err := io.ReadFull(file, data); err != nil {
			return err
		}

		if calculateCRC(lsn, data) != crc {
			return fmt.Errorf("CRC mismatch at LSN %d", lsn)
		}

		if lsn < startLSN {
			continue
		}

		rec, err := types.DecodeJournalRecord(data)
		if err != nil {
			return fmt.Errorf("failed to decode journal record at LSN %d: %w", lsn, err)
		}

		if err := applyFunc(rec); err != nil {
			return fmt.Errorf("failed to apply journal record at LSN %d: %w", lsn, err)
		}
	}

	return nil
}

func (wm *WALManager) Close() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	for _, seg := range wm.Segments {
		if seg.File != nil {
			if err := wm.flushAndCloseSegment(seg); err != nil {
				return err
			}
		}
	}

	return nil
}

func (wm *WALManager) flushAndCloseSegment(seg *WALSegment) error {
	if err := seg.File.Sync(); err != nil {
		return err
	}

	if err := seg.File.Close(); err != nil {
		return err
	}

	seg.File = nil
	return nil
}

// AppendRecord is the low-level write path every Append* helper funnels
// through. It assigns the next LSN and returns it to the caller so the
// B-tree node or TxnOperation touched by this call can be stamped with it.
func (wm *WALManager) AppendRecord(rec *types.JournalRecord) (uint64, error) {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	data := rec.Encode()

	wm.CurrentLSN++
	lsn := wm.CurrentLSN

	record := &WALRecord{
		LSN:  lsn,
		Data: data,
		CRC:  calculateCRC(lsn, data),
	}

	encodedRecord := record.Encode()

	if wm.CurrSegment.IsFull() {
		if err := wm.createNewSegment(); err != nil {
			return 0, err
		}
	}

	if _, err := wm.CurrSegment.Append(encodedRecord); err != nil {
		return 0, err
	}

	return lsn, nil
}

// AppendInsert logs a committed or to-be-flushed insert so recovery can
// replay it against the B-tree without consulting the transaction overlay.
func (wm *WALManager) AppendInsert(dbName string, txnID uint64, key, record []byte, flags types.Flags) (uint64, error) {
	return wm.AppendRecord(&types.JournalRecord{
		Type:   types.JournalOpInsert,
		TxnID:  txnID,
		DBName: dbName,
		Key:    key,
		Record: record,
		Flags:  flags,
	})
}

// AppendErase logs an erase. dupeIndex is the 1-based duplicate slot erased,
// or 0 when the whole key (or EraseAllDuplicates) was removed.
func (wm *WALManager) AppendErase(dbName string, txnID uint64, key []byte, dupeIndex int, flags types.Flags) (uint64, error) {
	return wm.AppendRecord(&types.JournalRecord{
		Type:      types.JournalOpErase,
		TxnID:     txnID,
		DBName:    dbName,
		Key:       key,
		DupeIndex: dupeIndex,
		Flags:     flags,
	})
}

func (wm *WALManager) AppendTxnBegin(txnID uint64) (uint64, error) {
	return wm.AppendRecord(&types.JournalRecord{Type: types.JournalOpTxnBegin, TxnID: txnID})
}

func (wm *WALManager) AppendTxnCommit(txnID uint64) (uint64, error) {
	return wm.AppendRecord(&types.JournalRecord{Type: types.JournalOpTxnCommit, TxnID: txnID})
}

func (wm *WALManager) AppendTxnAbort(txnID uint64) (uint64, error) {
	return wm.AppendRecord(&types.JournalRecord{Type: types.JournalOpTxnAbort, TxnID: txnID})
}

func (wm *WALManager) Sync() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	return wm.CurrSegment.Sync()
}

// GetFlushedLSN reports the highest LSN appended to the log, which the
// buffer pool treats as the highest LSN it may evict a dirty page for
// (WAL-before-data-page, per spec §5). AppendRecord writes each record
// before returning but does not fsync it (Sync does), so this is simply the
// current counter.
func (wm *WALManager) GetFlushedLSN() uint64 {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	return wm.CurrentLSN
}

func (w *WALManager) findLargestLSN(segment *WALSegment) (uint64, error) {
	segment.mu.Lock()
	defer segment.mu.Unlock()

	if segment.File == nil {
		return 0, fmt.Errorf("segment not opened")
	}

	file, err := os.Open(segment.FilePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	maxLSN := uint64(0)
	buf := make([]byte, RecordHeaderSize)

	for {
		n, err := file.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		if n < RecordHeaderSize {
			break
		}

		lsn := binary.BigEndian.Uint64(buf[0:8])
		dataLen := binary.BigEndian.Uint32(buf[8:12])

		if lsn > maxLSN {
			maxLSN = lsn
		}

		_, err = file.Seek(int64(dataLen), 1)
		if err != nil {
			break
		}
	}

	return maxLSN, nil
}
