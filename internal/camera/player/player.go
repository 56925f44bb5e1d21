// Package player runs a playback session: it pulls bytes from a camera
// source, splits them into NAL units, gates them and feeds a decoder from a
// dedicated consumer goroutine.
package player

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Rizzu97/app/internal/camera/core"
	"github.com/Rizzu97/app/internal/camera/gate"
	"github.com/Rizzu97/app/internal/camera/nal"
	"github.com/Rizzu97/app/internal/camera/protocol"
	"github.com/Rizzu97/app/internal/camera/queue"
	"github.com/Rizzu97/app/internal/camera/udp"
	"github.com/Rizzu97/app/internal/util"
)

// Player owns at most one session at a time. Its methods are safe for
// concurrent use.
type Player struct {
	cfg     Config
	decoder core.Decoder
	client  *protocol.Client
	publish func(core.Event)
	log     *slog.Logger

	mu      sync.Mutex
	session *session

	lastFrame atomic.Pointer[core.DecodedFrame]
	frameSeq  atomic.Uint64
}

// Option customises a Player.
type Option func(*Player)

// WithEvents publishes session events to fn.
func WithEvents(fn func(core.Event)) Option {
	return func(p *Player) { p.publish = fn }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Player) { p.log = log }
}

// New creates an idle player that drives dec.
func New(cfg Config, dec core.Decoder, opts ...Option) *Player {
	p := &Player{
		cfg:     cfg,
		decoder: dec,
		publish: func(core.Event) {},
		log:     util.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = protocol.NewClient(cfg.Protocol, p.log)
	return p
}

type session struct {
	id      string
	started time.Time
	source  core.Source
	gate    *gate.Gate
	queue   *queue.FrameQueue
	onFrame core.FrameHandler
	cancel  context.CancelFunc
	done    chan struct{}

	emitted   atomic.Uint64
	overflows atomic.Uint64
	decoded   atomic.Uint64
	frames    atomic.Uint64
	lastAdmit atomic.Int64
	lastEvent atomic.Int64
	width     atomic.Int64
	height    atomic.Int64

	mu  sync.Mutex
	err error
}

func (s *session) ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// StartPlayback opens the camera source and starts the reader and decode
// loops. A running session is stopped first and onFrame replaces the
// previous frame callback. It returns the new session id.
func (p *Player) StartPlayback(ctx context.Context, onFrame core.FrameHandler) (string, error) {
	if err := p.StopPlayback(); err != nil && !errors.Is(err, core.ErrNotPlaying) {
		return "", err
	}

	s := &session{
		id:      uuid.New().String(),
		started: time.Now(),
		gate:    gate.New(gate.Options{PassUnknown: p.cfg.PassUnknown, Logger: p.log}),
		queue:   queue.New(p.cfg.QueueCapacity),
		onFrame: onFrame,
		done:    make(chan struct{}),
	}
	s.lastAdmit.Store(s.started.UnixNano())
	log := p.log.With("session", s.id)

	if p.cfg.Transport == TransportUDP {
		s.source = udp.NewReceiver(p.cfg.UDPAddr, p.cfg.Protocol.IdleTimeout, p.log)
	} else {
		p.client.OnStateChange(func(st protocol.State) {
			p.publish(core.NewEvent(core.EventSessionState, s.id, map[string]string{
				"state":   st.String(),
				"variant": p.client.Variant().String(),
			}))
		})
		s.source = p.client
	}

	log.Info("Starting playback", "source", s.source.Describe())
	if err := s.source.Open(ctx); err != nil {
		p.publishState(s, "failed", err)
		return "", err
	}

	p.decoder.SetFrameHandler(p.frameHandler(s))
	if !p.decoder.Initialize(p.cfg.Width, p.cfg.Height) {
		s.source.Close()
		p.publishState(s, "failed", core.ErrDecoderInit)
		return "", errors.Wrapf(core.ErrDecoderInit, "initialize %dx%d", p.cfg.Width, p.cfg.Height)
	}
	s.width.Store(int64(p.cfg.Width))
	s.height.Store(int64(p.cfg.Height))

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	p.mu.Lock()
	p.session = s
	p.mu.Unlock()

	if p.cfg.Transport == TransportUDP {
		p.publishState(s, "streaming", nil)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return p.readLoop(gctx, s, log) })
	g.Go(func() error { return p.decodeLoop(gctx, s, log) })
	go func() {
		err := g.Wait()
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)

		if err != nil {
			log.Info("Playback session ended", "error", err)
			p.publishState(s, "terminated", err)
		}
	}()

	return s.id, nil
}

// readLoop owns the demuxer and the gate: it is their only writer. When the
// source ends, for whatever reason, the decode loop is stopped as well.
func (p *Player) readLoop(ctx context.Context, s *session, log *slog.Logger) error {
	defer s.cancel()
	demux := nal.NewDemuxer(p.cfg.MaxUnitSize, log)

	err := s.source.Stream(ctx, func(chunk []byte) {
		for _, u := range demux.Feed(chunk) {
			s.emitted.Add(1)
			p.admit(s, u)
		}
		s.overflows.Store(demux.Overflows())
	})
	// Partial unit data is dropped with the demuxer.
	return err
}

func (p *Player) admit(s *session, u nal.Unit) {
	if s.gate.Admit(u) == gate.Drop {
		return
	}
	s.lastAdmit.Store(time.Now().UnixNano())
	s.queue.Push(u)
}

func (p *Player) decodeLoop(ctx context.Context, s *session, log *slog.Logger) error {
	poll := p.cfg.PollInterval
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}

	for ctx.Err() == nil {
		u, ok := s.queue.PopWait(ctx, poll)
		if !ok {
			continue
		}
		if u.Type() == h264.NALUTypeSPS {
			p.reinitialize(s, u, log)
		}
		p.decoder.QueueNalUnit(u.Bytes())
		s.decoded.Add(1)
	}
	return nil
}

// reinitialize restarts the decoder when an SPS announces a new picture size.
func (p *Player) reinitialize(s *session, u nal.Unit, log *slog.Logger) {
	var sps h264.SPS
	if err := sps.Unmarshal(u.Payload()); err != nil {
		log.Debug("SPS not parsed, keeping decoder configuration", "error", err)
		return
	}

	w, h := sps.Width(), sps.Height()
	if int64(w) == s.width.Load() && int64(h) == s.height.Load() {
		return
	}

	log.Info("Picture size changed, reinitialising decoder",
		"from", strconv.FormatInt(s.width.Load(), 10)+"x"+strconv.FormatInt(s.height.Load(), 10),
		"width", w, "height", h)
	p.decoder.Release()
	if !p.decoder.Initialize(w, h) {
		log.Error("Decoder reinitialisation failed", "error", core.ErrDecoderInit, "width", w, "height", h)
		return
	}
	s.width.Store(int64(w))
	s.height.Store(int64(h))
}

func (p *Player) frameHandler(s *session) core.FrameHandler {
	return func(img []byte) {
		frame := &core.DecodedFrame{Image: img, Seq: p.frameSeq.Add(1), At: time.Now()}
		p.lastFrame.Store(frame)
		s.frames.Add(1)

		if s.onFrame != nil {
			s.onFrame(img)
		}

		interval := p.cfg.FrameEventInterval
		last := s.lastEvent.Load()
		if interval > 0 && frame.At.UnixNano()-last >= int64(interval) && s.lastEvent.CompareAndSwap(last, frame.At.UnixNano()) {
			p.publish(core.NewEvent(core.EventSessionFrame, s.id, map[string]string{
				"seq":    strconv.FormatUint(frame.Seq, 10),
				"size":   strconv.Itoa(len(img)),
				"frames": strconv.FormatUint(s.frames.Load(), 10),
			}))
		}
	}
}

// StopPlayback ends the current session: it cancels the loops, closes the
// source to unblock a pending read, waits up to JoinTimeout for both loops,
// then clears the queue and gate and releases the decoder. It returns
// core.ErrNotPlaying when there is no session.
func (p *Player) StopPlayback() error {
	p.mu.Lock()
	s := p.session
	p.session = nil
	p.mu.Unlock()

	if s == nil {
		return core.ErrNotPlaying
	}

	s.cancel()
	closeErr := s.source.Close()

	join := p.cfg.JoinTimeout
	if join <= 0 {
		join = time.Second
	}
	select {
	case <-s.done:
	case <-time.After(join):
		p.log.Warn("Playback loops did not exit in time", "session", s.id, "timeout", join)
	}

	s.queue.Clear()
	s.gate.Reset()
	p.decoder.Release()

	p.publishState(s, "stopped", nil)
	p.log.Info("Playback stopped", "session", s.id, "decoded", s.decoded.Load(), "frames", s.frames.Load())
	return closeErr
}

// TryNextProtocol advances the TCP protocol variant; it applies to the
// next StartPlayback.
func (p *Player) TryNextProtocol() protocol.Variant {
	return p.client.TryNextProtocol()
}

// CaptureCurrentFrame returns the most recent decoded image of any session.
func (p *Player) CaptureCurrentFrame() ([]byte, bool) {
	f := p.lastFrame.Load()
	if f == nil {
		return nil, false
	}
	return f.Image, true
}

// IsPlaying reports whether a session is running and its loops are alive.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil && !p.session.ended()
}

// current returns the active session, which may have ended on its own.
func (p *Player) current() *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *Player) publishState(s *session, state string, err error) {
	data := map[string]string{"state": state}
	if err != nil {
		data["error"] = err.Error()
	}
	p.publish(core.NewEvent(core.EventSessionState, s.id, data))
}
