// Package queue holds admitted NAL units between the network reader and the
// decode consumer.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/Rizzu97/app/internal/camera/nal"
)

// DefaultCapacity is the number of units held before the oldest is evicted.
const DefaultCapacity = 50

// FrameQueue is a bounded FIFO. Push never blocks: when the queue is full
// the oldest unit is evicted to make room.
type FrameQueue struct {
	mu      sync.Mutex
	ring    []nal.Unit
	head    int
	size    int
	dropped uint64
	pushed  uint64

	// notify has room for one pending wake-up.
	notify chan struct{}
}

// New creates a queue. capacity <= 0 selects DefaultCapacity.
func New(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FrameQueue{
		ring:   make([]nal.Unit, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Push appends u. It reports whether an older unit was evicted.
func (q *FrameQueue) Push(u nal.Unit) (evicted bool) {
	q.mu.Lock()
	if q.size == len(q.ring) {
		q.ring[q.head] = nal.Unit{}
		q.head = (q.head + 1) % len(q.ring)
		q.size--
		q.dropped++
		evicted = true
	}
	q.ring[(q.head+q.size)%len(q.ring)] = u
	q.size++
	q.pushed++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return evicted
}

// Pop removes the oldest unit without blocking.
func (q *FrameQueue) Pop() (nal.Unit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return nal.Unit{}, false
	}
	u := q.ring[q.head]
	q.ring[q.head] = nal.Unit{}
	q.head = (q.head + 1) % len(q.ring)
	q.size--
	return u, true
}

// PopWait is Pop that waits up to timeout for a unit to arrive. It returns
// early when ctx is done.
func (q *FrameQueue) PopWait(ctx context.Context, timeout time.Duration) (nal.Unit, bool) {
	if u, ok := q.Pop(); ok {
		return u, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.notify:
			if u, ok := q.Pop(); ok {
				return u, true
			}
		case <-timer.C:
			return q.Pop()
		case <-ctx.Done():
			return nal.Unit{}, false
		}
	}
}

// Clear empties the queue. Counters are kept.
func (q *FrameQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.ring {
		q.ring[i] = nal.Unit{}
	}
	q.head = 0
	q.size = 0
}

// Len returns the number of queued units.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the capacity.
func (q *FrameQueue) Cap() int { return len(q.ring) }

// Dropped returns how many units were evicted by Push.
func (q *FrameQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Pushed returns how many units were ever pushed.
func (q *FrameQueue) Pushed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed
}
