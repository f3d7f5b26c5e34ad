package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPushTryPopFIFO(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	v, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, 1, v)
	v, ok = q.TryPop()
	require.True(t, ok)
	require.Equal(t, 2, v)
	_, ok = q.TryPop()
	require.False(t, ok)
}

func TestWaitPopImmediateEmpty(t *testing.T) {
	q := New[int]()
	_, ok := q.WaitPop(Immediate())
	require.False(t, ok)
}

func TestWaitPopWakesOnPush(t *testing.T) {
	q := New[int]()
	done := make(chan int, 1)
	go func() {
		v, ok := q.WaitPop(After(time.Second))
		if ok {
			done <- v
		} else {
			done <- -1
		}
	}()
	time.Sleep(10 * time.Millisecond)
	q.Push(42)
	select {
	case v := <-done:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("WaitPop did not wake on push")
	}
}

func TestStopWakesAllWaiters(t *testing.T) {
	q := New[int]()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.WaitPop(Infinite())
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Stop()
	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Stop did not wake waiter")
	}
}

func TestEraseIf(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)
	q.EraseIf(func(v int) bool { return v%2 == 0 })
	require.Equal(t, 2, q.Len())
	v, _ := q.TryPop()
	require.Equal(t, 1, v)
	v, _ = q.TryPop()
	require.Equal(t, 3, v)
}

func TestTimeoutRemainingMsMonotonic(t *testing.T) {
	to := After(50 * time.Millisecond)
	last := to.RemainingMs()
	for i := 0; i < 5; i++ {
		time.Sleep(5 * time.Millisecond)
		cur := to.RemainingMs()
		require.LessOrEqual(t, cur, last)
		last = cur
	}
}
