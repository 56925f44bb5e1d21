// Package udp receives a camera video stream pushed as UDP datagrams.
package udp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/Rizzu97/app/internal/camera/core"
	"github.com/Rizzu97/app/internal/util"
)

const (
	// DatagramSize fits the largest UDP payload.
	DatagramSize = 64 * 1024
	retryDelay   = 100 * time.Millisecond
)

// Receiver binds a local UDP port and forwards every datagram payload to the
// sink. It implements core.Source.
type Receiver struct {
	addr        string
	idleTimeout time.Duration
	log         *slog.Logger

	mu     sync.Mutex
	conn   net.PacketConn
	closed bool

	packets atomic.Uint64
	bytes   atomic.Uint64
}

var _ core.Source = (*Receiver)(nil)

// NewReceiver listens on addr ("host:port" or ":port") once opened.
// idleTimeout bounds the wait for each datagram; zero disables it.
func NewReceiver(addr string, idleTimeout time.Duration, log *slog.Logger) *Receiver {
	if log == nil {
		log = util.GetLogger()
	}
	return &Receiver{addr: addr, idleTimeout: idleTimeout, log: log}
}

// Open binds the socket.
func (r *Receiver) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return errors.New("udp receiver already open")
	}
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", r.addr)
	if err != nil {
		return errors.Wrapf(core.ErrConnect, "bind udp %s: %v", r.addr, err)
	}
	r.conn = conn
	r.closed = false
	r.log.Info("UDP video receiver listening", "addr", conn.LocalAddr().String())
	return nil
}

// Stream reads datagrams until ctx is done, Close is called or no datagram
// arrives within the idle timeout. Transient receive errors are retried after
// a short pause.
func (r *Receiver) Stream(ctx context.Context, sink func(chunk []byte)) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return errors.Wrap(core.ErrStreamTerminated, "udp receiver not open")
	}
	defer r.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, DatagramSize)
	for {
		if r.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(r.idleTimeout))
		}
		n, _, err := conn.ReadFrom(buf)
		if n > 0 {
			r.packets.Add(1)
			r.bytes.Add(uint64(n))
			sink(buf[:n])
		}
		if err == nil {
			continue
		}

		if ctx.Err() != nil || r.isClosed() || errors.Is(err, net.ErrClosed) {
			return nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			r.log.Warn("No UDP video data", "idle_timeout", r.idleTimeout)
			return errors.Wrapf(core.ErrStreamTerminated, "no datagram for %s", r.idleTimeout)
		}

		r.log.Warn("UDP receive failed, retrying", "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
	}
}

// Close releases the socket. It is safe to call more than once.
func (r *Receiver) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.closed = true
	r.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "close udp receiver")
	}
	return nil
}

// LocalAddr returns the bound address, or nil when closed.
func (r *Receiver) LocalAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Packets returns the number of datagrams received.
func (r *Receiver) Packets() uint64 { return r.packets.Load() }

// Describe implements core.Source.
func (r *Receiver) Describe() string {
	return fmt.Sprintf("udp://%s", r.addr)
}

func (r *Receiver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
