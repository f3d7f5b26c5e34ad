package target

import (
	"math/rand"
	"testing"

	"github.com/chainforge/core/internal/bigint"
	"github.com/stretchr/testify/require"
)

// newRawTarget builds an arbitrary-magnitude target value for test
// purposes only: mantissa shifted left by 8*(exponent-3) bits, with no
// canonicalization applied.
func newRawTarget(mantissa uint64, exponent uint) bigint.Uint256 {
	m := bigint.NewFromUint64(mantissa)
	if exponent >= 3 {
		return m.Lsh(8 * (exponent - 3))
	}
	return m.Rsh(8 * (3 - exponent))
}

func TestExpandZeroMantissa(t *testing.T) {
	c := CompactTarget(0x04000000)
	require.True(t, c.Expand().IsZero())
}

func TestExpandKnownMainnetGenesisBits(t *testing.T) {
	// 0x1d00ffff expands to 0x00ffff * 2^(8*(0x1d-3)) = 0xffff << 208.
	c := CompactTarget(0x1d00ffff)
	expanded := c.Expand()
	require.Equal(t, powLimitMainnet(), expanded)
}

func TestCompactRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	// A protocol-valid compact value is one already produced by
	// Compress (canonical: its mantissa's significant bytes match its
	// declared size) and does not exceed the protocol maximum. Build
	// such values from random targets below 2^224 (exponent <= 0x1c),
	// then verify compress(expand(b)) == b.
	for i := 0; i < 500; i++ {
		exponent := uint(3 + rng.Intn(0x1c-3+1))
		mantissa := uint64(1 + rng.Intn(0xFFFFFF))
		raw := newRawTarget(mantissa, exponent)

		b := Compress(raw)
		require.Equal(t, b, Compress(b.Expand()),
			"compress(expand(b)) must equal b for protocol-valid b")
	}
}

func TestWorkMonotonicWithDifficulty(t *testing.T) {
	easy := CompactTarget(0x1d00ffff).Expand()
	harder := CompactTarget(0x1c00ffff).Expand()

	easyWork := Work(easy)
	harderWork := Work(harder)

	require.Equal(t, 1, harderWork.Cmp(easyWork), "a smaller target must yield more work")
}
