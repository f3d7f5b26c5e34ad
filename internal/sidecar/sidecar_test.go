package sidecar

import (
	"testing"

	"github.com/chainforge/core/internal/timechain"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

func TestKeyframeSetGet(t *testing.T) {
	k := NewKeyframe[int]()
	k.Set(0, 1)
	k.Set(5, 2)
	k.Set(10, 1)

	v, ok := k.Get(0)
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = k.Get(4)
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = k.Get(7)
	require.True(t, ok)
	require.Equal(t, 2, v)

	v, ok = k.Get(100)
	require.True(t, ok)
	require.Equal(t, 1, v)

	_, ok = k.Get(-1)
	require.False(t, ok)
}

func TestKeyframeMinimalRLE(t *testing.T) {
	k := NewKeyframe[int]()
	k.Set(0, 1)
	k.Set(3, 1) // same value: must not create an adjacent duplicate frame
	require.Len(t, k.frames, 1)

	k.Set(5, 2)
	k.Set(8, 2) // again a no-op duplicate
	require.Len(t, k.frames, 2)

	for i := 0; i < len(k.frames)-1; i++ {
		require.NotEqual(t, k.frames[i].value, k.frames[i+1].value)
	}
}

func TestKeyframePromotionOnReorg(t *testing.T) {
	k := NewKeyframe[int]()
	k.Set(0, 10)
	k.Set(1, 20)
	k.Set(2, 30)

	bHash := chainhash.Hash{0xB}
	cHash := chainhash.Hash{0xC}
	bPrimeHash := chainhash.Hash{0xB1}
	cPrimeHash := chainhash.Hash{0xC1}
	k.SetFork(bPrimeHash, 200)
	k.SetFork(cPrimeHash, 300)

	k.AddSync(timechain.AddSyncEvent{
		ForkHeight:     0,
		MovedFromChain: []chainhash.Hash{bHash, cHash},
		PromotedHashes: []chainhash.Hash{bPrimeHash, cPrimeHash},
	})

	v, ok := k.Get(1)
	require.True(t, ok)
	require.Equal(t, 200, v)

	v, ok = k.Get(2)
	require.True(t, ok)
	require.Equal(t, 300, v)

	// Displaced values are now reachable via the fork tree.
	v, ok = k.GetFork(bHash)
	require.True(t, ok)
	require.Equal(t, 20, v)
}

func TestStatusSidecarTransitions(t *testing.T) {
	s := NewStatusSidecar()
	require.Equal(t, StatusUnvalidated, s.Get(5))

	require.NoError(t, s.MarkStructureValid(5))
	require.Equal(t, StatusStructureValid, s.Get(5))

	require.NoError(t, s.MarkValidated(5))
	require.Equal(t, StatusValidated, s.Get(5))

	// Validated -> AssumedValid is not a legal transition.
	require.Error(t, s.MarkAssumedValid(5))
}
