// Package bigint implements the fixed-width 256-bit unsigned integer
// arithmetic spec.md §4.8 requires for Target/Work computation.
// math/big is arbitrary-precision and would hide the "stay within
// 256 bits" overflow contract the spec calls out, so arithmetic here
// is expressed directly over four little-endian uint64 words.
package bigint

import (
	"math/big"
	"math/bits"
)

// Uint256 is a 256-bit unsigned integer stored as four 64-bit words in
// little-endian order: w[0] is the least-significant word.
type Uint256 struct {
	w [4]uint64
}

// NewFromUint64 builds a Uint256 from a single 64-bit value.
func NewFromUint64(v uint64) Uint256 {
	return Uint256{w: [4]uint64{v, 0, 0, 0}}
}

// NewFromWords builds a Uint256 from four little-endian words.
func NewFromWords(w0, w1, w2, w3 uint64) Uint256 {
	return Uint256{w: [4]uint64{w0, w1, w2, w3}}
}

// Words returns the four little-endian words.
func (u Uint256) Words() [4]uint64 { return u.w }

// IsZero reports whether every word is zero.
func (u Uint256) IsZero() bool {
	return u.w[0] == 0 && u.w[1] == 0 && u.w[2] == 0 && u.w[3] == 0
}

// Cmp returns -1, 0, or 1 as u is less than, equal to, or greater than v.
func (u Uint256) Cmp(v Uint256) int {
	for i := 3; i >= 0; i-- {
		if u.w[i] < v.w[i] {
			return -1
		}
		if u.w[i] > v.w[i] {
			return 1
		}
	}
	return 0
}

// Add returns u+v and whether the addition overflowed 256 bits.
func (u Uint256) Add(v Uint256) (Uint256, bool) {
	var out Uint256
	var carry uint64
	for i := 0; i < 4; i++ {
		sum, c := bits.Add64(u.w[i], v.w[i], carry)
		out.w[i] = sum
		carry = c
	}
	return out, carry != 0
}

// Sub returns u-v and whether the subtraction borrowed (u < v).
func (u Uint256) Sub(v Uint256) (Uint256, bool) {
	var out Uint256
	var borrow uint64
	for i := 0; i < 4; i++ {
		diff, b := bits.Sub64(u.w[i], v.w[i], borrow)
		out.w[i] = diff
		borrow = b
	}
	return out, borrow != 0
}

// Not returns the bitwise complement of u.
func (u Uint256) Not() Uint256 {
	return Uint256{w: [4]uint64{^u.w[0], ^u.w[1], ^u.w[2], ^u.w[3]}}
}

// Lsh returns u shifted left by n bits (0..256). Bits shifted out of
// the top are discarded.
func (u Uint256) Lsh(n uint) Uint256 {
	if n == 0 {
		return u
	}
	if n >= 256 {
		return Uint256{}
	}
	var out Uint256
	wordShift := n / 64
	bitShift := n % 64
	for i := 3; i >= 0; i-- {
		srcIdx := i - int(wordShift)
		if srcIdx < 0 {
			continue
		}
		v := u.w[srcIdx] << bitShift
		if bitShift > 0 && srcIdx > 0 {
			v |= u.w[srcIdx-1] >> (64 - bitShift)
		}
		out.w[i] = v
	}
	return out
}

// Rsh returns u shifted right by n bits (0..256).
func (u Uint256) Rsh(n uint) Uint256 {
	if n == 0 {
		return u
	}
	if n >= 256 {
		return Uint256{}
	}
	var out Uint256
	wordShift := n / 64
	bitShift := n % 64
	for i := 0; i < 4; i++ {
		srcIdx := i + int(wordShift)
		if srcIdx > 3 {
			continue
		}
		v := u.w[srcIdx] >> bitShift
		if bitShift > 0 && srcIdx < 3 {
			v |= u.w[srcIdx+1] << (64 - bitShift)
		}
		out.w[i] = v
	}
	return out
}

// SignificantBits returns the position (1-based) of the most
// significant set bit, or 0 if u is zero.
func (u Uint256) SignificantBits() int {
	for i := 3; i >= 0; i-- {
		if u.w[i] != 0 {
			return i*64 + (64 - bits.LeadingZeros64(u.w[i]))
		}
	}
	return 0
}

// Bit returns the value (0 or 1) of bit n (0 = least significant).
func (u Uint256) Bit(n uint) uint {
	if n >= 256 {
		return 0
	}
	return uint((u.w[n/64] >> (n % 64)) & 1)
}

func (u Uint256) setBit(n uint, v uint) Uint256 {
	if v != 0 {
		u.w[n/64] |= 1 << (n % 64)
	} else {
		u.w[n/64] &^= 1 << (n % 64)
	}
	return u
}

// ToBig converts u to a math/big.Int, for the rare computations (such
// as difficulty retarget, grounded on the teacher's PowLimit handling
// in pkg/go-chaincfg/params.go) that need a general multiply this
// fixed-width type deliberately does not provide.
func (u Uint256) ToBig() *big.Int {
	out := new(big.Int)
	for i := 3; i >= 0; i-- {
		out.Lsh(out, 64)
		out.Or(out, new(big.Int).SetUint64(u.w[i]))
	}
	return out
}

// FromBig converts a non-negative big.Int back into a Uint256,
// truncating silently to 256 bits (callers that retarget difficulty
// always clamp to the PoW limit first, so truncation never triggers).
func FromBig(b *big.Int) Uint256 {
	var out Uint256
	mask := new(big.Int).SetUint64(^uint64(0))
	tmp := new(big.Int).Set(b)
	for i := 0; i < 4; i++ {
		word := new(big.Int).And(tmp, mask)
		out.w[i] = word.Uint64()
		tmp.Rsh(tmp, 64)
	}
	return out
}

// DivMod performs long division: returns (a/b, a%b). Panics if b is
// zero — callers (Work) must never invoke it with a zero divisor.
func (a Uint256) DivMod(b Uint256) (q, r Uint256) {
	if b.IsZero() {
		panic("bigint: division by zero")
	}
	if a.Cmp(b) < 0 {
		return Uint256{}, a
	}

	n := a.SignificantBits()
	for i := n - 1; i >= 0; i-- {
		r = r.Lsh(1)
		r = r.setBit(0, a.Bit(uint(i)))
		if r.Cmp(b) >= 0 {
			r, _ = r.Sub(b)
			q = q.setBit(uint(i), 1)
		}
	}
	return q, r
}
