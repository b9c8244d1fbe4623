package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			unlock, err := l.Lock(ctx, "sub-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	exerciseMutualExclusion(t, m)
	assert.Zero(t, m.Len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, "a")
	require.NoError(t, err)
	unlockB, err := m.Lock(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	unlockA()
	unlockB()
	assert.Zero(t, m.Len())
}

func TestKeyedMutexTimeout(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "a")
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutexUnlockIsIdempotent(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
	unlock()
	assert.Zero(t, m.Len())
}

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, 5*time.Second), mr
}

func TestRedisLockerSerializesSameKey(t *testing.T) {
	l, _ := newTestRedisLocker(t)
	exerciseMutualExclusion(t, l)
}

func TestRedisLockerReleaseDeletesKey(t *testing.T) {
	l, mr := newTestRedisLocker(t)
	unlock, err := l.Lock(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("ledger:lock:sub-1"))

	unlock()
	assert.False(t, mr.Exists("ledger:lock:sub-1"))
}

func TestRedisLockerDoesNotReleaseForeignToken(t *testing.T) {
	l, mr := newTestRedisLocker(t)
	unlock, err := l.Lock(context.Background(), "sub-1")
	require.NoError(t, err)

	// Simulate TTL expiry followed by another holder taking the key.
	require.NoError(t, mr.Set("ledger:lock:sub-1", "someone-else"))
	unlock()

	got, err := mr.Get("ledger:lock:sub-1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockerTimeout(t *testing.T) {
	l, _ := newTestRedisLocker(t)
	unlock, err := l.Lock(context.Background(), "sub-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "sub-1")
	assert.ErrorIs(t, err, ErrLockTimeout)
}
