package types

// Flags are caller-supplied hints on insert/find/erase/cursor_move calls.
// They're bit flags, OR-ed together, mirroring the embedded-database
// handle APIs this core is modeled after.
type Flags uint32

const (
	// Insert flags.
	Overwrite Flags = 1 << 0
	Duplicate Flags = 1 << 1
	Partial   Flags = 1 << 2
	HintAppend Flags = 1 << 3

	DuplicateInsertBefore Flags = 1 << 4
	DuplicateInsertAfter  Flags = 1 << 5
	DuplicateInsertFirst  Flags = 1 << 6
	DuplicateInsertLast   Flags = 1 << 7

	// Find / cursor_move flags.
	ExactMatch Flags = 1 << 8
	LtMatch    Flags = 1 << 9
	GtMatch    Flags = 1 << 10

	// Erase flags.
	EraseAllDuplicates Flags = 1 << 11

	// Cursor move direction flags.
	CursorFirst    Flags = 1 << 12
	CursorLast     Flags = 1 << 13
	CursorNext     Flags = 1 << 14
	CursorPrevious Flags = 1 << 15

	// Database-level flags.
	EnableTransactions  Flags = 1 << 16
	EnableRecovery      Flags = 1 << 17
	EnableDuplicateKeys Flags = 1 << 18
	RecordNumber32      Flags = 1 << 19
	RecordNumber64      Flags = 1 << 20

	// Transaction flags.
	TxnTemporary Flags = 1 << 21
)

func (f Flags) Has(bit Flags) bool {
	return f&bit != 0
}
