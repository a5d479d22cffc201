// Package bitarray provides a densely-packed, append-only array of bits, used
// to hold sifted keys as they grow one qubit at a time.
package bitarray

import (
	"math/bits"
	"strings"
)

// TODO: this could be more efficient on many architectures if we used larger
//   blocks than 8-bit bytes.

// A Dense is a bit array where every bit is explicitly represented. Bit i
// lives at position i%8 of byte i/8. The zero value is an empty array.
type Dense struct {
	bits []byte
	len  int
}

const blockSize = 8

// NewDense returns a new Dense whose data is a copy of data,
// and whose length is bitLen. If bitLen is longer than data, then
// trailing zeros are added. If bitLen is negative, then it is inferred
// from data.
func NewDense(data []byte, bitLen int) Dense {
	if bitLen < 0 {
		bitLen = len(data) * blockSize
	}
	bits := make([]byte, blocksFor(bitLen))
	copy(bits, data)
	d := Dense{bits: bits, len: bitLen}
	d.clearTail()
	return d
}

// Empty returns an empty, dense bit array.
func Empty() Dense {
	return Dense{}
}

// Size returns the number of bits in d.
func (d Dense) Size() int {
	return d.len
}

// ByteSize returns the number of bytes necessary to represent d.
func (d Dense) ByteSize() int {
	return blocksFor(d.len)
}

// Data returns a copy of the bytes data underlying d.
func (d Dense) Data() []byte {
	data := make([]byte, blocksFor(d.len))
	copy(data, d.bits)
	return data
}

// Clone returns a copy of d sharing no storage with it.
func (d Dense) Clone() Dense {
	return Dense{bits: d.Data(), len: d.len}
}

// XOr computes a bitwise XOR operation between d and other. If one of the two
// is shorter than the other, then trailing 0s are implicitly added to make the
// sizes match.
func (d Dense) XOr(other Dense) Dense {
	short, long := other, d
	if d.len < other.len {
		short, long = d, other
	}
	r := Dense{
		bits: make([]byte, 0, blocksFor(long.len)),
		len:  long.len,
	}
	for i := range short.bits {
		r.bits = append(r.bits, short.bits[i]^long.bits[i])
	}
	r.bits = append(r.bits, long.bits[len(short.bits):]...) // 0^v == v
	return r
}

// CountOnes returns the total number of bits set in d.
func (d Dense) CountOnes() int {
	var sum int
	for _, b := range d.bits {
		sum += bits.OnesCount8(b)
	}
	return sum
}

// Get returns the bit at idx. Out of range indices read as false.
func (d Dense) Get(idx int) bool {
	if idx < 0 || idx >= d.len {
		return false
	}
	return 0 < d.bits[idx/blockSize]&(1<<(idx%blockSize))
}

// AppendBit adds a single bit to the end of d.
func (d *Dense) AppendBit(bit bool) {
	pos := d.len % blockSize
	d.len += 1
	if pos == 0 {
		d.bits = append(d.bits, 0)
	}
	if bit {
		d.bits[len(d.bits)-1] |= 1 << pos
	}
}

// String renders d as '0's and '1's, first bit first.
func (d Dense) String() string {
	var sb strings.Builder
	sb.Grow(d.len)
	for i := 0; i < d.len; i++ {
		if d.Get(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// clearTail zeroes the unused high bits of the last byte so that byte-wise
// operations never see them.
func (d *Dense) clearTail() {
	if off := d.len % blockSize; off != 0 {
		d.bits[len(d.bits)-1] &= byte(1<<off) - 1
	}
}

func blocksFor(bits int) int {
	return (bits + blockSize - 1) / blockSize
}
