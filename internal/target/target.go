// Package target implements compact-target expansion/compression and
// proof-of-work "Work" calculation, per spec.md §4.8. Grounded on the
// proof-of-work-limit semantics in pkg/go-chaincfg/params.go, but
// reimplemented at fixed 256-bit width (see DESIGN.md).
package target

import "github.com/chainforge/core/internal/bigint"

// CompactTarget is the 32-bit compact representation of a Target: a
// 1-byte exponent (bits 31:24) and a 23-bit mantissa with an implicit
// sign bit at bit 23.
type CompactTarget uint32

const (
	maxExponent = 0x1D
	maxMantissa = 0x7FFFFF // mantissa's sign bit (bit 23) must be clear
)

// powLimitMainnet is the protocol maximum target (mainnet):
// 2^224 - 2^208, i.e. compact 0x1d00ffff expanded.
func powLimitMainnet() bigint.Uint256 {
	// 0x00ffff << (8*(0x1d-3)) = 0xffff << 208
	return bigint.NewFromUint64(0xffff).Lsh(208)
}

// Expand converts a CompactTarget to its 256-bit Target value.
//
// Edge cases per spec.md §4.8:
//   - mantissa == 0 → target is 0 (explicit, even though exponent/sign
//     bit may be set).
//   - exponent > 32 → invalid; treated as the protocol maximum.
//   - exponent > 0x1D, or (exponent == 0x1D and mantissa > 0xFFFF) →
//     protocol maximum.
func (c CompactTarget) Expand() bigint.Uint256 {
	exponent := uint(c >> 24)
	mantissa := uint64(c & 0x007FFFFF)

	if mantissa == 0 {
		return bigint.Uint256{}
	}

	if exponent > 32 {
		return powLimitMainnet()
	}

	if exponent > maxExponent || (exponent == maxExponent && mantissa > 0xFFFF) {
		return powLimitMainnet()
	}

	m := bigint.NewFromUint64(mantissa)
	if exponent >= 3 {
		return m.Lsh(8 * (exponent - 3))
	}
	return m.Rsh(8 * (3 - exponent))
}

// Compress is the inverse of Expand: the smallest compact
// representation whose expansion equals (or most closely
// approximates, by truncation) t.
func Compress(t bigint.Uint256) CompactTarget {
	if t.IsZero() {
		return 0
	}

	// size is the number of bytes needed to hold t's significant bits.
	size := uint((t.SignificantBits() + 7) / 8)

	var mantissa uint64
	switch {
	case size <= 3:
		mantissa = extractLowBytes(t) << (8 * (3 - size))
	default:
		mantissa = extractLowBytes(t.Rsh(8 * (size - 3)))
	}

	// If the mantissa's sign bit (bit 23) would be set, shift right by
	// a byte and bump the exponent — compact form has no sign bit.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		size++
	}

	return CompactTarget(uint32(size)<<24 | uint32(mantissa&0x007FFFFF))
}

func extractLowBytes(t bigint.Uint256) uint64 {
	w := t.Words()
	return w[0] & 0xFFFFFFFF
}

// Work returns the proof-of-work "work" contributed by a block whose
// target is t: (~target / (target+1)) + 1, computed to stay within
// 256-bit arithmetic per spec.md §3.
func Work(t bigint.Uint256) bigint.Uint256 {
	if t.IsZero() {
		// A zero target would make every hash pass; treat as maximal
		// difficulty so callers summing work never divide by zero.
		return bigint.NewFromUint64(1)
	}

	denom, overflow := t.Add(bigint.NewFromUint64(1))
	if overflow {
		// target+1 wrapped to zero only when target is the all-ones
		// maximum; work of the easiest possible target is defined as 1.
		return bigint.NewFromUint64(1)
	}

	numer := t.Not()
	quotient, _ := numer.DivMod(denom)

	work, _ := quotient.Add(bigint.NewFromUint64(1))
	return work
}
