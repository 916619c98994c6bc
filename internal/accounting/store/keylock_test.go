package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyLockSerialisesSameKey(t *testing.T) {
	locks := NewKeyLock()
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(context.Background(), "account:1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxSeen)
	require.Zero(t, locks.Len())
}

func TestKeyLockIndependentKeys(t *testing.T) {
	locks := NewKeyLock()
	releaseA, err := locks.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := locks.Acquire(ctx, "b")
	require.NoError(t, err)
	releaseB()
}

func TestKeyLockHonoursContext(t *testing.T) {
	locks := NewKeyLock()
	release, err := locks.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Acquire(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	require.Zero(t, locks.Len())
}
