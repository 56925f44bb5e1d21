package protocol

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/Rizzu97/app/internal/camera/core"
	"github.com/Rizzu97/app/internal/util"
)

// Client is one camera video connection. It can be reused: after the stream
// ends, Open connects again with the current variant.
type Client struct {
	mu      sync.Mutex
	cfg     Config
	variant Variant
	state   State
	conn    net.Conn
	closed  bool
	onState func(State)

	bytesRead atomic.Uint64
	now       func() time.Time
	log       *slog.Logger
}

var _ core.Source = (*Client)(nil)

// NewClient creates a disconnected client for cfg.
func NewClient(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = util.GetLogger()
	}
	return &Client{
		cfg:     cfg,
		variant: cfg.Variant.normalize(),
		now:     time.Now,
		log:     log,
	}
}

// OnStateChange registers fn, replacing any previous callback. fn runs on
// the goroutine that changed the state.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// Open connects and sends the handshake.
func (c *Client) Open(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.SendHandshake()
}

// Connect dials the port of the current variant within ConnectTimeout.
// No retry happens here.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("client already connected")
	}
	c.closed = false
	v := c.variant
	cfg := c.cfg
	c.mu.Unlock()

	addr := cfg.Address(v)
	c.setState(Connecting)
	c.log.Info("Connecting to camera", "addr", addr, "variant", v)

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.setState(Disconnected)
		return &ConnectError{Addr: addr, Variant: v, Op: "dial", Err: err}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		c.setState(Disconnected)
		return &ConnectError{Addr: addr, Variant: v, Op: "dial", Err: net.ErrClosed}
	}
	c.conn = conn
	c.mu.Unlock()

	c.log.Info("Connected to camera", "addr", addr, "local", conn.LocalAddr().String())
	return nil
}

// SendHandshake writes the payload of the current variant.
func (c *Client) SendHandshake() error {
	c.mu.Lock()
	conn := c.conn
	v := c.variant
	cfg := c.cfg
	c.mu.Unlock()

	addr := cfg.Address(v)
	if conn == nil {
		return &ConnectError{Addr: addr, Variant: v, Op: "handshake", Err: net.ErrClosed}
	}

	host := cfg.Host
	if h, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		host = h
	}
	payload := Handshake(v, cfg, host, c.now())
	c.log.Debug("Sending handshake", "variant", v, "size", len(payload), "bytes", util.HexPreview(payload, 16))

	if cfg.ConnectTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(cfg.ConnectTimeout))
		defer conn.SetWriteDeadline(time.Time{})
	}
	if _, err := conn.Write(payload); err != nil {
		c.drop(conn)
		return &ConnectError{Addr: addr, Variant: v, Op: "handshake", Err: err}
	}

	c.setState(HandshakeSent)
	return nil
}

// Stream waits HandshakeDelay, then reads the body with the reader of the
// current variant until the peer stops, a read fails or times out, ctx is
// cancelled or Close is called. The connection is closed on return.
//
// It returns nil when stopped through ctx or Close, and an error matching
// core.ErrStreamTerminated otherwise.
func (c *Client) Stream(ctx context.Context, sink func(chunk []byte)) error {
	c.mu.Lock()
	conn := c.conn
	v := c.variant
	cfg := c.cfg
	c.mu.Unlock()

	if conn == nil {
		return errors.Wrap(core.ErrStreamTerminated, "not connected")
	}
	defer c.drop(conn)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if cfg.HandshakeDelay > 0 {
		timer := time.NewTimer(cfg.HandshakeDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	c.setState(Streaming)
	c.log.Info("Reading video stream", "variant", v, "buffer_size", cfg.bufferSize())

	r := &idleConn{Conn: conn, timeout: cfg.IdleTimeout}
	count := func(chunk []byte) {
		c.bytesRead.Add(uint64(len(chunk)))
		sink(chunk)
	}

	var err error
	switch v {
	case HTTP:
		err = ReadHTTP(r, cfg.bufferSize(), c.log, count)
	default:
		// RTSP and ONVIF bodies are not framed; whatever follows the
		// handshake goes to the demuxer as is.
		err = ReadRaw(r, cfg.bufferSize(), count)
	}
	return c.terminated(ctx, err, cfg.IdleTimeout)
}

func (c *Client) terminated(ctx context.Context, err error, idle time.Duration) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if ctx.Err() != nil || closed {
		c.log.Debug("Stream stopped locally")
		return nil
	}

	var ne net.Error
	switch {
	case err == nil, errors.Is(err, io.EOF):
		c.log.Info("Camera closed the stream")
		return errors.Wrap(core.ErrStreamTerminated, "peer closed stream")
	case errors.As(err, &ne) && ne.Timeout():
		c.log.Warn("No data from camera", "idle_timeout", idle)
		return errors.Wrapf(core.ErrStreamTerminated, "no data for %s", idle)
	default:
		c.log.Error("Video stream read failed", "error", err)
		return errors.Wrapf(core.ErrStreamTerminated, "read: %v", err)
	}
}

// Close closes the connection, unblocking any read in Stream. Safe to call
// at any time and more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	c.setState(Disconnected)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "close camera connection")
	}
	return nil
}

func (c *Client) drop(conn net.Conn) {
	conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	c.setState(Disconnected)
}

// TryNextProtocol advances the variant cyclically and returns it. It takes
// effect on the next Open.
func (c *Client) TryNextProtocol() Variant {
	c.mu.Lock()
	c.variant = c.variant.Next()
	v := c.variant
	c.mu.Unlock()

	c.log.Info("Switching camera protocol", "variant", v)
	return v
}

// SetVariant selects v for the next Open.
func (c *Client) SetVariant(v Variant) {
	c.mu.Lock()
	c.variant = v.normalize()
	c.mu.Unlock()
}

// Variant returns the variant used by the next or current connection.
func (c *Client) Variant() Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.variant
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// BytesRead returns the body bytes delivered to sinks so far.
func (c *Client) BytesRead() uint64 { return c.bytesRead.Load() }

// Describe implements core.Source.
func (c *Client) Describe() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("tcp://%s (%s)", c.cfg.Address(c.variant), c.variant)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	fn := c.onState
	c.mu.Unlock()

	c.log.Debug("Connection state changed", "state", s)
	if fn != nil {
		fn(s)
	}
}

// idleConn arms a read deadline before every read.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	return c.Conn.Read(p)
}
