package types

import "encoding/json"

// JournalOpType tags a single journal record for replay during recovery.
type JournalOpType byte

const (
	JournalOpInsert     JournalOpType = 1
	JournalOpErase      JournalOpType = 2
	JournalOpTxnBegin   JournalOpType = 3
	JournalOpTxnCommit  JournalOpType = 4
	JournalOpTxnAbort   JournalOpType = 5
	JournalOpCheckpoint JournalOpType = 6
)

// JournalRecord is the payload written behind each WAL record header.
// Insert/Erase records carry enough of the call to replay it against the
// B-tree without needing the original transaction overlay.
type JournalRecord struct {
	Type  JournalOpType `json:"type"`
	TxnID uint64        `json:"txn_id,omitempty"`
	DBName string       `json:"db_name,omitempty"`

	Key       []byte `json:"key,omitempty"`
	Record    []byte `json:"record,omitempty"`
	DupeIndex int     `json:"dupe_index,omitempty"`
	Flags     Flags  `json:"flags,omitempty"`
}

func (r *JournalRecord) Encode() []byte {
	data, _ := json.Marshal(r)
	return data
}

func DecodeJournalRecord(data []byte) (*JournalRecord, error) {
	var r JournalRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
