package evo

import (
	"fmt"
	"math/rand"
	"strings"
)

// Bitstring is a fixed-length binary genome. Bit i set means item i is
// selected.
type Bitstring []bool

func RandomBitstring(rng *rand.Rand, length int) Bitstring {
	bits := make(Bitstring, length)
	for i := range bits {
		bits[i] = rng.Intn(2) == 1
	}
	return bits
}

// ParseBitstring accepts strings of '0' and '1', ignoring spaces and
// underscores.
func ParseBitstring(s string) (Bitstring, error) {
	bits := make(Bitstring, 0, len(s))
	for i, r := range s {
		switch r {
		case '0':
			bits = append(bits, false)
		case '1':
			bits = append(bits, true)
		case ' ', '_':
		default:
			return nil, fmt.Errorf("invalid bit %q at offset %d", r, i)
		}
	}
	return bits, nil
}

func (b Bitstring) Len() int {
	return len(b)
}

func (b Bitstring) Ones() int {
	n := 0
	for _, bit := range b {
		if bit {
			n++
		}
	}
	return n
}

func (b Bitstring) Clone() Bitstring {
	return append(Bitstring(nil), b...)
}

func (b Bitstring) Equal(o Bitstring) bool {
	if len(b) != len(o) {
		return false
	}
	for i := range b {
		if b[i] != o[i] {
			return false
		}
	}
	return true
}

func (b Bitstring) String() string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, bit := range b {
		if bit {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Key packs the bits into a compact string usable as a map or cache key.
func (b Bitstring) Key() string {
	packed := make([]byte, (len(b)+7)/8+1)
	packed[0] = byte(len(b) % 8)
	for i, bit := range b {
		if bit {
			packed[1+i/8] |= 1 << (i % 8)
		}
	}
	return string(packed)
}
