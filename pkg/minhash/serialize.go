package minhash

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire layout, all integers little-endian:
//
//	+------+---+-----+------+---------+--------------------+
//	| MHSK | V | N/U | Seed | NumPerm | Slot values        |
//	+------+---+-----+------+---------+--------------------+
//
// "MHSK" is a 4-byte magic string, "V" a one-byte format version, "N/U" three
// reserved bytes. Seed is 8 bytes, NumPerm 4 bytes, followed by NumPerm 4-byte
// slot values. The permutation coefficients are not stored: they regenerate
// deterministically from (seed, numPerm), so the encoding is byte-exact and
// round-trips bit-for-bit.

const (
	serialMagic   = "MHSK"
	serialVersion = 1
	headerSize    = 4 + 1 + 3 + 8 + 4
)

// ErrInvalidEncoding is returned when Deserialize is given bytes that are not
// a valid sketch encoding.
var ErrInvalidEncoding = errors.New("minhash: invalid signature encoding")

// MarshalBinary encodes the sketch in the versioned wire layout above.
func (m *MinHash) MarshalBinary() ([]byte, error) {
	buf := make([]byte, headerSize+4*len(m.values))
	copy(buf[0:4], serialMagic)
	buf[4] = serialVersion
	binary.LittleEndian.PutUint64(buf[8:16], m.seed)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(m.values)))
	for i, v := range m.values {
		binary.LittleEndian.PutUint32(buf[headerSize+4*i:], uint32(v))
	}
	return buf, nil
}

// UnmarshalBinary decodes a sketch previously produced by MarshalBinary,
// replacing the receiver's parameters and values.
func (m *MinHash) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("%w: truncated header (%d bytes)", ErrInvalidEncoding, len(data))
	}
	if string(data[0:4]) != serialMagic {
		return fmt.Errorf("%w: bad magic", ErrInvalidEncoding)
	}
	if data[4] != serialVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidEncoding, data[4])
	}

	seed := binary.LittleEndian.Uint64(data[8:16])
	numPerm := int(binary.LittleEndian.Uint32(data[16:20]))
	if numPerm <= 0 {
		return fmt.Errorf("%w: non-positive length %d", ErrInvalidEncoding, numPerm)
	}
	if want := headerSize + 4*numPerm; len(data) != want {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidEncoding, len(data), want)
	}

	values := make([]uint64, numPerm)
	for i := range values {
		values[i] = uint64(binary.LittleEndian.Uint32(data[headerSize+4*i:]))
	}

	m.seed = seed
	m.perm = permsFor(numPerm, seed)
	m.values = values
	return nil
}

// Deserialize reconstructs a sketch from its wire encoding.
func Deserialize(data []byte) (*MinHash, error) {
	m := &MinHash{}
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return m, nil
}
