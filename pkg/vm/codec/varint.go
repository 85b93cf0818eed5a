// Variable-width integer primitives shared by the module and ABI codecs.
//
// All integers on the wire use base-128 little-endian groups with a
// continuation bit, and only the minimal form is accepted: an encoding with
// a redundant trailing zero group is rejected, so every value has exactly
// one byte representation.
package codec

import (
	"errors"
	"math/big"
)

var (
	// ErrNonMinimal is returned when a varint uses a non-minimal form.
	ErrNonMinimal = errors.New("non-minimal varint encoding")

	// ErrVarintOverflow is returned when a varint exceeds its range.
	ErrVarintOverflow = errors.New("varint overflow")

	// ErrTruncated is returned when input ends mid-value.
	ErrTruncated = errors.New("truncated input")
)

// maxUvarintLen is the longest minimal encoding of a uint64.
const maxUvarintLen = 10

// AppendUvarint appends the minimal encoding of v to dst.
func AppendUvarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// ReadUvarint decodes a minimal-form uvarint from the front of data and
// returns the value and the number of bytes consumed.
func ReadUvarint(data []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; i < len(data); i++ {
		if i == maxUvarintLen {
			return 0, 0, ErrVarintOverflow
		}
		b := data[i]
		if i == maxUvarintLen-1 && b > 1 {
			return 0, 0, ErrVarintOverflow
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if b == 0 && i > 0 {
				return 0, 0, ErrNonMinimal
			}
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrTruncated
}

// AppendUbig appends the minimal encoding of a non-negative big integer.
func AppendUbig(dst []byte, v *big.Int) []byte {
	if v.Sign() == 0 {
		return append(dst, 0)
	}
	n := new(big.Int).Set(v)
	mask := big.NewInt(0x7f)
	tmp := new(big.Int)
	for n.BitLen() > 7 {
		dst = append(dst, byte(tmp.And(n, mask).Uint64())|0x80)
		n.Rsh(n, 7)
	}
	return append(dst, byte(n.Uint64()))
}

// ReadUbig decodes a minimal-form unsigned big integer from the front of
// data. maxLen caps the number of encoded bytes to bound allocation.
func ReadUbig(data []byte, maxLen int) (*big.Int, int, error) {
	v := new(big.Int)
	tmp := new(big.Int)
	for i := 0; i < len(data); i++ {
		if i >= maxLen {
			return nil, 0, ErrVarintOverflow
		}
		b := data[i]
		tmp.SetUint64(uint64(b & 0x7f))
		tmp.Lsh(tmp, uint(7*i))
		v.Or(v, tmp)
		if b&0x80 == 0 {
			if b == 0 && i > 0 {
				return nil, 0, ErrNonMinimal
			}
			return v, i + 1, nil
		}
	}
	return nil, 0, ErrTruncated
}

// ZigZag folds a signed integer into an unsigned one: 0, -1, 1, -2, ...
// map to 0, 1, 2, 3, ...
func ZigZag(v *big.Int) *big.Int {
	out := new(big.Int)
	if v.Sign() < 0 {
		// -2v - 1
		out.Lsh(v, 1)
		out.Neg(out)
		out.Sub(out, big.NewInt(1))
		return out
	}
	return out.Lsh(v, 1)
}

// UnZigZag reverses ZigZag.
func UnZigZag(v *big.Int) *big.Int {
	out := new(big.Int).Rsh(v, 1)
	if v.Bit(0) == 1 {
		out.Neg(out)
		out.Sub(out, big.NewInt(1))
	}
	return out
}
