package engine

import "encoding/binary"

// dupeEnvelope is the on-disk representation of every duplicate stored
// under one B-tree key, serialized into the single []byte leaf value the
// B-tree (C1) stores. The B-tree itself stays byte-string-only; only the
// engine knows this layout.
//
// Format: [count uint32] { [len uint32][bytes] } * count
//
// A value that does not parse as an envelope (shorter than 4 bytes, or a
// count and lengths that do not account for its exact size) is read as a
// single raw record, which is how non-duplicate inserts are stored.
type dupeEnvelope struct {
	values [][]byte
}

func decodeDupeEnvelope(data []byte) dupeEnvelope {
	if len(data) == 0 {
		return dupeEnvelope{}
	}
	if len(data) < 4 {
		return dupeEnvelope{values: [][]byte{cloneBytes(data)}}
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	if uint64(count) > uint64(len(data)-4)/4 {
		return dupeEnvelope{values: [][]byte{cloneBytes(data)}}
	}
	off := 4
	values := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(data) {
			break
		}
		l := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		if off+int(l) > len(data) {
			break
		}
		values = append(values, cloneBytes(data[off:off+int(l)]))
		off += int(l)
	}
	if len(values) != int(count) || off != len(data) {
		return dupeEnvelope{values: [][]byte{cloneBytes(data)}}
	}
	return dupeEnvelope{values: values}
}

func (e dupeEnvelope) encode() []byte {
	size := 4
	for _, v := range e.values {
		size += 4 + len(v)
	}
	out := make([]byte, size)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(e.values)))
	off := 4
	for _, v := range e.values {
		binary.LittleEndian.PutUint32(out[off:off+4], uint32(len(v)))
		off += 4
		copy(out[off:], v)
		off += len(v)
	}
	return out
}

func (e dupeEnvelope) count() int { return len(e.values) }

// at returns the value at the given 1-based duplicate index, or nil if out
// of range.
func (e dupeEnvelope) at(idx int) []byte {
	if idx < 1 || idx > len(e.values) {
		return nil
	}
	return e.values[idx-1]
}

// insertAt inserts v so it becomes the given 1-based index. idx == 0 or
// idx > count appends at the end.
func (e dupeEnvelope) insertAt(idx int, v []byte) dupeEnvelope {
	if idx <= 0 || idx > len(e.values) {
		e.values = append(e.values, v)
		return e
	}
	out := make([][]byte, 0, len(e.values)+1)
	out = append(out, e.values[:idx-1]...)
	out = append(out, v)
	out = append(out, e.values[idx-1:]...)
	e.values = out
	return e
}

// removeAt removes the 1-based duplicate index. idx == 0 removes all.
func (e dupeEnvelope) removeAt(idx int) dupeEnvelope {
	if idx == 0 {
		e.values = nil
		return e
	}
	if idx < 1 || idx > len(e.values) {
		return e
	}
	out := make([][]byte, 0, len(e.values)-1)
	out = append(out, e.values[:idx-1]...)
	out = append(out, e.values[idx:]...)
	e.values = out
	return e
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
