// Package pipeline fans camera events out to any number of listeners.
package pipeline

import (
	"log/slog"
	"sync"

	"github.com/Rizzu97/app/internal/camera/core"
	"github.com/Rizzu97/app/internal/util"
)

// Broadcaster distributes events to subscribers. The most recent
// session.state event is remembered and replayed to new subscribers so they
// start with the current state.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan core.Event
	lastState   *core.Event
	closed      bool
	log         *slog.Logger
}

// NewBroadcaster creates an empty broadcaster. nil log uses util.GetLogger().
func NewBroadcaster(log *slog.Logger) *Broadcaster {
	if log == nil {
		log = util.GetLogger()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan core.Event),
		log:         log,
	}
}

// Subscribe registers id and returns its channel. Subscribing an existing id
// replaces (and closes) the previous channel.
func (b *Broadcaster) Subscribe(id string, bufferSize int) <-chan core.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan core.Event)
		close(ch)
		return ch
	}

	if old, ok := b.subscribers[id]; ok {
		close(old)
	}
	ch := make(chan core.Event, bufferSize)
	b.subscribers[id] = ch

	if b.lastState != nil {
		select {
		case ch <- *b.lastState:
		default:
			b.log.Warn("Failed to replay state to new subscriber (channel full)", "id", id)
		}
	}

	b.log.Debug("Event subscriber added", "id", id, "total", len(b.subscribers))
	return ch
}

// Unsubscribe removes id and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
		b.log.Debug("Event subscriber removed", "id", id, "remaining", len(b.subscribers))
	}
}

// Publish delivers ev without blocking. A subscriber whose channel is full
// is dropped and its channel closed.
func (b *Broadcaster) Publish(ev core.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if ev.Type == core.EventSessionState {
		cp := ev
		b.lastState = &cp
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.log.Warn("Dropping event subscriber due to full channel", "id", id)
			close(ch)
			delete(b.subscribers, id)
		}
	}
}

// Close closes every subscriber channel. Later Publish calls are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[string]chan core.Event)
	b.log.Debug("Event broadcaster closed")
}

// SubscriberCount returns the current number of subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
