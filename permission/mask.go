package permission

import (
	"encoding/binary"
	"errors"
	"strconv"
)

// MaxBits is the number of capability bits a Mask can hold.
const MaxBits = 64

// MaskSize is the encoded width of a Mask in bytes.
const MaskSize = 8

// Mask is a permission bitmask where each set bit grants one capability.
type Mask uint64

// Has reports whether bit is set.
func (m Mask) Has(bit int) bool {
	if bit < 0 || bit >= MaxBits {
		return false
	}
	return m&(1<<bit) != 0
}

// Set returns m with bit set. Out-of-range bits are ignored.
func (m Mask) Set(bit int) Mask {
	if bit < 0 || bit >= MaxBits {
		return m
	}
	return m | (1 << bit)
}

// Clear returns m with bit cleared. Out-of-range bits are ignored.
func (m Mask) Clear(bit int) Mask {
	if bit < 0 || bit >= MaxBits {
		return m
	}
	return m &^ (1 << bit)
}

// Contains reports whether every bit of required is also set in m.
func (m Mask) Contains(required Mask) bool {
	return m&required == required
}

// Raw returns the underlying integer.
func (m Mask) Raw() uint64 {
	return uint64(m)
}

func (m Mask) String() string {
	return "0x" + strconv.FormatUint(uint64(m), 16)
}

// EncodeMask writes m as 8 big-endian bytes.
func EncodeMask(m Mask) []byte {
	b := make([]byte, MaskSize)
	binary.BigEndian.PutUint64(b, uint64(m))
	return b
}

// DecodeMask parses the output of EncodeMask.
func DecodeMask(data []byte) (Mask, error) {
	if len(data) != MaskSize {
		return 0, errors.New("invalid mask size")
	}
	return Mask(binary.BigEndian.Uint64(data)), nil
}
