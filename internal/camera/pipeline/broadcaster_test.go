package pipeline

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rizzu97/app/internal/camera/core"
)

func newTestBroadcaster() *Broadcaster {
	return NewBroadcaster(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBroadcasterFanOut(t *testing.T) {
	b := newTestBroadcaster()
	a := b.Subscribe("a", 4)
	c := b.Subscribe("c", 4)

	ev := core.NewEvent(core.EventButtonPressed, "", nil)
	b.Publish(ev)

	assert.Equal(t, core.EventButtonPressed, (<-a).Type)
	assert.Equal(t, core.EventButtonPressed, (<-c).Type)
	assert.Equal(t, 2, b.SubscriberCount())
}

func TestBroadcasterReplaysLastState(t *testing.T) {
	b := newTestBroadcaster()
	b.Publish(core.NewEvent(core.EventSessionState, "s1", map[string]string{"state": "connecting"}))
	b.Publish(core.NewEvent(core.EventSessionState, "s1", map[string]string{"state": "streaming"}))
	b.Publish(core.NewEvent(core.EventButtonReleased, "", nil))

	ch := b.Subscribe("late", 2)
	ev := <-ch
	assert.Equal(t, core.EventSessionState, ev.Type)
	assert.Equal(t, "streaming", ev.Data["state"])
	assert.Empty(t, ch)
}

func TestBroadcasterDropsSlowSubscriber(t *testing.T) {
	b := newTestBroadcaster()
	slow := b.Subscribe("slow", 1)
	fast := b.Subscribe("fast", 4)

	b.Publish(core.NewEvent(core.EventButtonPressed, "", nil))
	b.Publish(core.NewEvent(core.EventButtonReleased, "", nil))

	assert.Equal(t, 1, b.SubscriberCount())
	<-slow
	_, ok := <-slow
	assert.False(t, ok, "slow subscriber channel must be closed")
	assert.Len(t, fast, 2)
}

func TestBroadcasterUnsubscribeAndClose(t *testing.T) {
	b := newTestBroadcaster()
	ch := b.Subscribe("x", 1)
	b.Unsubscribe("x")
	b.Unsubscribe("x")
	_, ok := <-ch
	assert.False(t, ok)

	other := b.Subscribe("y", 1)
	b.Close()
	b.Close()
	_, ok = <-other
	assert.False(t, ok)

	closed := b.Subscribe("z", 1)
	_, ok = <-closed
	require.False(t, ok)
	b.Publish(core.NewEvent(core.EventButtonPressed, "", nil))
}
