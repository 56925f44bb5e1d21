// Package server exposes the camera engine over HTTP: status, playback
// control, the last decoded frame and a WebSocket event stream.
package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/Rizzu97/app/internal/camera/core"
	"github.com/Rizzu97/app/internal/camera/pipeline"
	"github.com/Rizzu97/app/internal/camera/player"
	"github.com/Rizzu97/app/internal/camera/protocol"
	"github.com/Rizzu97/app/internal/util"
)

// PlayerService is the playback control the server needs.
type PlayerService interface {
	StartPlayback(ctx context.Context, onFrame core.FrameHandler) (string, error)
	StopPlayback() error
	TryNextProtocol() protocol.Variant
	CaptureCurrentFrame() ([]byte, bool)
	Status() player.Status
}

// ButtonService reports the button server state.
type ButtonService interface {
	Running() bool
	Counts() (pressed, released uint64)
}

// MonitorServer serves the monitoring API.
type MonitorServer struct {
	port       int
	httpServer *http.Server
	mux        *http.ServeMux
	upgrader   websocket.Upgrader

	player  PlayerService
	buttons ButtonService
	events  *pipeline.Broadcaster
	log     *slog.Logger

	mu        sync.RWMutex
	running   bool
	startTime time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a server. buttons may be nil when no button server runs.
func New(port int, p PlayerService, buttons ButtonService, events *pipeline.Broadcaster, log *slog.Logger) *MonitorServer {
	if log == nil {
		log = util.GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &MonitorServer{
		port:    port,
		mux:     http.NewServeMux(),
		player:  p,
		buttons: buttons,
		events:  events,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.setupRoutes()
	return s
}

func (s *MonitorServer) setupRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/playback/start", s.handlePlaybackStart)
	s.mux.HandleFunc("POST /api/playback/stop", s.handlePlaybackStop)
	s.mux.HandleFunc("POST /api/playback/next-protocol", s.handleNextProtocol)
	s.mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /ws", s.handleEvents)
}

// Handler returns the routed handler wrapped in request logging.
func (s *MonitorServer) Handler() http.Handler {
	return s.loggingMiddleware(s.mux)
}

// Start listens on the configured port and blocks until Stop.
func (s *MonitorServer) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", s.port)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and blocks until Stop.
func (s *MonitorServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No write or idle timeout for the event stream
	}
	s.running = true
	s.startTime = time.Now()
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("Monitor server listening", "addr", ln.Addr().String())
	err := srv.Serve(ln)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrap(err, "monitor server failed")
}

// Stop shuts the server down, closing event streams.
func (s *MonitorServer) Stop() error {
	s.mu.Lock()
	s.cancel()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn("Monitor server shutdown error, forcing close", "error", err)
		if err := srv.Close(); err != nil {
			return errors.Wrap(err, "force close monitor server")
		}
	}
	s.log.Info("Monitor server stopped")
	return nil
}

// IsRunning returns whether the server is serving.
func (s *MonitorServer) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the time since Serve started.
func (s *MonitorServer) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	length int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.status = code
	lw.ResponseWriter.WriteHeader(code)
}

func (lw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lw.status == 0 {
		lw.status = http.StatusOK
	}
	n, err := lw.ResponseWriter.Write(b)
	lw.length += n
	return n, err
}

func (lw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("http.Hijacker interface is not supported")
	}
	return hj.Hijack()
}

func (s *MonitorServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		s.log.Debug("HTTP request",
			"method", r.Method, "path", r.URL.Path, "status", lw.status,
			"bytes", lw.length, "duration", time.Since(start), "remote", r.RemoteAddr)
	})
}
