// Package button receives push-button state packets that the camera sends
// to the client over inbound TCP connections.
package button

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/Rizzu97/app/internal/camera/core"
	"github.com/Rizzu97/app/internal/util"
)

const (
	// DefaultPort is where cameras of this family connect to report buttons.
	DefaultPort = 40004

	// PacketSize is the minimum packet length; byte 7 carries the state.
	PacketSize = 8
	stateIndex = 7

	readSize         = 10
	acceptRetryDelay = time.Second
)

// Handlers receive button transitions. They run on the connection
// goroutine that decoded the packet and must not block for long.
type Handlers struct {
	OnPressed  func()
	OnReleased func()
}

// BindError reports that the listening socket could not be opened.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("listen on %s: %v", e.Addr, e.Err)
}

// Unwrap exposes both core.ErrListenerBind and the cause.
func (e *BindError) Unwrap() []error {
	return []error{core.ErrListenerBind, e.Err}
}

// Pressed reports the button state encoded in packet. ok is false when the
// packet is shorter than PacketSize.
func Pressed(packet []byte) (pressed, ok bool) {
	if len(packet) < PacketSize {
		return false, false
	}
	return packet[stateIndex] > 0, true
}

// Server accepts camera connections and decodes button packets.
type Server struct {
	addr        string
	joinTimeout time.Duration
	log         *slog.Logger

	mu       sync.Mutex
	ln       net.Listener
	handlers Handlers
	conns    map[net.Conn]struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	pressed  atomic.Uint64
	released atomic.Uint64
}

// NewServer creates a server for port on all interfaces. Port 0 picks a free
// port; see Addr.
func NewServer(port int, log *slog.Logger) *Server {
	return NewServerAddr(net.JoinHostPort("", strconv.Itoa(port)), log)
}

// NewServerAddr creates a server listening on addr.
func NewServerAddr(addr string, log *slog.Logger) *Server {
	if log == nil {
		log = util.GetLogger()
	}
	return &Server{
		addr:        addr,
		joinTimeout: time.Second,
		log:         log,
	}
}

// Start binds the listener and begins accepting. When already running it
// only replaces the handlers.
func (s *Server) Start(h Handlers) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers = h
	if s.ln != nil {
		s.log.Debug("Button server already running, handlers replaced", "addr", s.ln.Addr().String())
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return &BindError{Addr: s.addr, Err: err}
	}
	s.ln = ln
	s.conns = make(map[net.Conn]struct{})
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.acceptLoop(ln, s.done)

	s.log.Info("Button server listening", "addr", ln.Addr().String())
	return nil
}

// Stop closes the listener and every open connection and waits up to one
// second for the goroutines to exit. Calling Stop again is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.ln == nil {
		s.mu.Unlock()
		return nil
	}
	close(s.done)
	err := s.ln.Close()
	s.ln = nil
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(s.joinTimeout):
		s.log.Warn("Button server goroutines did not exit in time", "timeout", s.joinTimeout)
	}

	s.log.Info("Button server stopped")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "close button listener")
	}
	return nil
}

// Addr returns the bound address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Running reports whether the listener is open.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ln != nil
}

// Counts returns how many press and release packets were decoded.
func (s *Server) Counts() (pressed, released uint64) {
	return s.pressed.Load(), s.released.Load()
}

func (s *Server) acceptLoop(ln net.Listener, done chan struct{}) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			s.log.Error("Accept failed, retrying", "error", err)
			select {
			case <-done:
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.log.Debug("Button connection accepted", "remote", remote)

	buf := make([]byte, readSize)
	pending := make([]byte, 0, readSize+PacketSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.log.Debug("Button data received", "remote", remote, "bytes", util.HexPreview(buf[:n], readSize))
			pending = append(pending, buf[:n]...)
			if len(pending) >= PacketSize {
				s.dispatch(pending[:PacketSize])
				pending = pending[:0]
			}
		}
		if err != nil {
			s.log.Debug("Button connection closed", "remote", remote, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(packet []byte) {
	pressed, ok := Pressed(packet)
	if !ok {
		return
	}

	s.mu.Lock()
	h := s.handlers
	s.mu.Unlock()

	if pressed {
		s.pressed.Add(1)
		s.log.Info("Button pressed", "state", packet[stateIndex])
		if h.OnPressed != nil {
			h.OnPressed()
		}
		return
	}
	s.released.Add(1)
	s.log.Info("Button released")
	if h.OnReleased != nil {
		h.OnReleased()
	}
}
