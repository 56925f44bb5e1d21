package udp

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rizzu97/app/internal/camera/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReceiverForwardsDatagrams(t *testing.T) {
	r := NewReceiver("127.0.0.1:0", 2*time.Second, testLogger())
	require.NoError(t, r.Open(context.Background()))

	var (
		mu  sync.Mutex
		got bytes.Buffer
	)
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- r.Stream(ctx, func(chunk []byte) {
			mu.Lock()
			got.Write(chunk)
			mu.Unlock()
		})
	}()

	conn, err := net.Dial("udp", r.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	conn.Write([]byte{0, 0, 0, 1, 0x67, 0xAA})
	conn.Write([]byte{0, 0, 0, 1, 0x68, 0xBB})

	require.Eventually(t, func() bool { return r.Packets() == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stream did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte{0, 0, 0, 1, 0x67, 0xAA, 0, 0, 0, 1, 0x68, 0xBB}, got.Bytes())
	assert.Nil(t, r.LocalAddr())
}

func TestReceiverIdleTimeout(t *testing.T) {
	r := NewReceiver("127.0.0.1:0", 50*time.Millisecond, testLogger())
	require.NoError(t, r.Open(context.Background()))

	err := r.Stream(context.Background(), func([]byte) {})
	assert.ErrorIs(t, err, core.ErrStreamTerminated)
}

func TestReceiverCloseUnblocks(t *testing.T) {
	r := NewReceiver("127.0.0.1:0", 0, testLogger())
	require.NoError(t, r.Open(context.Background()))

	result := make(chan error, 1)
	go func() { result <- r.Stream(context.Background(), func([]byte) {}) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stream did not return after Close")
	}
}

func TestReceiverBindConflict(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	r := NewReceiver(pc.LocalAddr().String(), 0, testLogger())
	assert.ErrorIs(t, r.Open(context.Background()), core.ErrConnect)
	assert.Equal(t, "udp://"+pc.LocalAddr().String(), r.Describe())
}
