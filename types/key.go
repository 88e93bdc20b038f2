package types

// KeyType identifies how keys of a database are interpreted. Fixed-width
// numeric key types enable record-number auto-increment and fixed-size
// page layouts; Bytes is an arbitrary opaque byte string.
type KeyType uint8

const (
	KeyTypeBytes KeyType = iota
	KeyTypeRecordNumber32
	KeyTypeRecordNumber64
)

// IntFlag bits are carried alongside a key across a single call; unlike
// the caller-supplied Flags, they're set internally to report how a
// result was produced.
type IntFlag uint32

const (
	// IntFlagApproximate marks a key returned by a find/cursor-move as a
	// nearest match rather than an exact one.
	IntFlagApproximate IntFlag = 1 << 0
)

// Key is the opaque byte string half of a key/record pair, plus the
// internal flags the core attaches while resolving a lookup.
type Key struct {
	Data     []byte
	IntFlags IntFlag
}

func (k *Key) Clone() Key {
	data := make([]byte, len(k.Data))
	copy(data, k.Data)
	return Key{Data: data, IntFlags: k.IntFlags}
}

func (k *Key) SetApproximate() {
	k.IntFlags |= IntFlagApproximate
}

func (k *Key) ClearApproximate() {
	k.IntFlags &^= IntFlagApproximate
}

func (k *Key) IsApproximate() bool {
	return k.IntFlags&IntFlagApproximate != 0
}
