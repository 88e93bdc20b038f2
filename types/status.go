package types

import "errors"

// Status is the domain error taxonomy every core operation resolves to.
// Wrap with fmt.Errorf("...: %w", status) when a collaborator error needs
// to be chained underneath it.
type Status int

const (
	Success Status = iota
	KeyNotFound
	DuplicateKey
	// KeyErasedInTxn is an internal sentinel: it must never cross the
	// public cursor-move boundary, where it is translated to KeyNotFound.
	KeyErasedInTxn
	TxnConflict
	TxnStillOpen
	CursorIsNil
	InvKeySize
	InvRecordSize
	InvParameter
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case KeyNotFound:
		return "key not found"
	case DuplicateKey:
		return "duplicate key"
	case KeyErasedInTxn:
		return "key erased in txn"
	case TxnConflict:
		return "txn conflict"
	case TxnStillOpen:
		return "txn still open"
	case CursorIsNil:
		return "cursor is nil"
	case InvKeySize:
		return "invalid key size"
	case InvRecordSize:
		return "invalid record size"
	case InvParameter:
		return "invalid parameter"
	default:
		return "unknown status"
	}
}

func (s Status) Error() string {
	return s.String()
}

// Is lets errors.Is(err, types.KeyNotFound) work when s has been wrapped
// with fmt.Errorf("%w", ...) by a caller.
func (s Status) Is(target error) bool {
	var other Status
	if errors.As(target, &other) {
		return other == s
	}
	return false
}
