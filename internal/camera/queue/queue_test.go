package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rizzu97/app/internal/camera/nal"
)

func unitN(t *testing.T, n byte) nal.Unit {
	t.Helper()
	u, ok := nal.NewUnit([]byte{0x00, 0x00, 0x00, 0x01, 0x41, n})
	require.True(t, ok)
	return u
}

func seq(u nal.Unit) byte { return u.Bytes()[5] }

func TestFrameQueueDropsOldest(t *testing.T) {
	t.Parallel()
	const capacity = 10
	q := New(capacity)

	evictions := 0
	for i := 0; i < capacity+5; i++ {
		if q.Push(unitN(t, byte(i))) {
			evictions++
		}
	}

	assert.Equal(t, 5, evictions)
	assert.Equal(t, uint64(5), q.Dropped())
	assert.Equal(t, uint64(capacity+5), q.Pushed())
	require.Equal(t, capacity, q.Len())

	for want := 5; want < capacity+5; want++ {
		u, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, byte(want), seq(u))
	}
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestFrameQueueDefaultCapacity(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultCapacity, New(0).Cap())
	assert.Equal(t, 3, New(3).Cap())
}

func TestFrameQueueClearIsIdempotent(t *testing.T) {
	t.Parallel()
	q := New(4)
	q.Push(unitN(t, 1))
	q.Push(unitN(t, 2))

	q.Clear()
	q.Clear()
	assert.Equal(t, 0, q.Len())

	q.Push(unitN(t, 3))
	u, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, byte(3), seq(u))
}

func TestFrameQueuePopWait(t *testing.T) {
	t.Parallel()
	q := New(4)

	start := time.Now()
	_, ok := q.PopWait(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(unitN(t, 7))
	}()
	u, ok := q.PopWait(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, byte(7), seq(u))
}

func TestFrameQueuePopWaitCancelled(t *testing.T) {
	t.Parallel()
	q := New(4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, ok := q.PopWait(ctx, time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestFrameQueueConcurrentProducerConsumer(t *testing.T) {
	t.Parallel()
	q := New(8)
	const total = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			q.Push(unitN(t, byte(i)))
		}
	}()

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		u, ok := q.PopWait(context.Background(), 20*time.Millisecond)
		if !ok {
			if q.Pushed() == total && q.Len() == 0 {
				break
			}
			continue
		}
		got = append(got, seq(u))
	}
	wg.Wait()

	assert.Equal(t, uint64(total), uint64(len(got))+q.Dropped())
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i], "units must stay in arrival order")
	}
}
