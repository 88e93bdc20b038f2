package engine

import "txnkv/types"

// Config groups OpenEnvironment's two settings; OpenEnvironment itself takes
// them as separate arguments. There is no config-file/flag library
// in this stack (the teacher takes explicit struct literals too) — callers
// build one directly.
type Config struct {
	Directory          string
	BufferPoolCapacity int
}

// DatabaseConfig configures CreateDatabase.
type DatabaseConfig struct {
	Name    string
	Path    string
	FileID  uint32
	Flags   types.Flags
	KeyType types.KeyType

	// RecordSize fixes every record in this database to an exact byte
	// length, validated on every insert (InvRecordSize on mismatch). Zero
	// means variable-length records, the common case.
	RecordSize int
}

// Parameters mirrors the reference design's get_parameters() output: the
// recognised, queryable properties of an open database.
type Parameters struct {
	KeySize        int
	KeyType        types.KeyType
	RecordSize     int // 0 for variable-length records
	Flags          types.Flags
	DatabaseName   string
	MaxKeysPerPage int
}
