package bigint

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDivModIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		a := NewFromWords(rng.Uint64(), rng.Uint64(), rng.Uint64(), rng.Uint64())
		b := NewFromWords(rng.Uint64()|1, rng.Uint64(), 0, 0) // keep b nonzero and smaller-ish

		q, r := a.DivMod(b)
		require.True(t, r.Cmp(b) < 0, "remainder must be < divisor")

		prod, overflow := mul(q, b)
		require.False(t, overflow, "q*b must not overflow for this test's operand sizes")
		sum, addOverflow := prod.Add(r)
		require.False(t, addOverflow)
		require.Equal(t, a, sum, "(a/b)*b + r == a")
	}
}

// mul is a tiny schoolbook multiplier used only by the test to verify
// DivMod's identity; production code never needs general multiply.
func mul(a, b Uint256) (Uint256, bool) {
	var result Uint256
	overflowed := false
	for i := 0; i < 256; i++ {
		if b.Bit(uint(i)) == 1 {
			shifted := a.Lsh(uint(i))
			// detect overflow: shifting a left by i bits loses bits if
			// a's significant bits + i exceed 256
			if a.SignificantBits()+i > 256 {
				overflowed = true
			}
			var ov bool
			result, ov = result.Add(shifted)
			if ov {
				overflowed = true
			}
		}
	}
	return result, overflowed
}

func TestCmpAndArithmetic(t *testing.T) {
	a := NewFromUint64(10)
	b := NewFromUint64(3)

	require.Equal(t, 1, a.Cmp(b))
	sum, overflow := a.Add(b)
	require.False(t, overflow)
	require.Equal(t, NewFromUint64(13), sum)

	diff, borrow := a.Sub(b)
	require.False(t, borrow)
	require.Equal(t, NewFromUint64(7), diff)

	_, borrow = b.Sub(a)
	require.True(t, borrow)
}

func TestShifts(t *testing.T) {
	one := NewFromUint64(1)
	shifted := one.Lsh(64)
	require.Equal(t, NewFromWords(0, 1, 0, 0), shifted)

	back := shifted.Rsh(64)
	require.Equal(t, one, back)
}

func TestSignificantBits(t *testing.T) {
	require.Equal(t, 0, Uint256{}.SignificantBits())
	require.Equal(t, 1, NewFromUint64(1).SignificantBits())
	require.Equal(t, 65, NewFromWords(0, 1, 0, 0).SignificantBits())
}
