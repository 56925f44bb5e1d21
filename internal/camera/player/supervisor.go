package player

import (
	"context"
	"log/slog"
	"time"

	"github.com/Rizzu97/app/internal/camera/core"
)

// SupervisorConfig controls reconnection.
type SupervisorConfig struct {
	RetryDelay    time.Duration // first backoff step
	MaxRetryDelay time.Duration // backoff cap
	// FallbackAfter switches to the next protocol variant when no unit was
	// admitted for this long. Zero disables switching.
	FallbackAfter time.Duration
	CheckInterval time.Duration
}

// DefaultSupervisorConfig backs off from 1s to 30s without protocol fallback.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		RetryDelay:    time.Second,
		MaxRetryDelay: 30 * time.Second,
		CheckInterval: 250 * time.Millisecond,
	}
}

// Supervisor keeps a player streaming: it restarts ended sessions with
// exponential backoff and cycles protocol variants when a session connects
// but produces nothing usable.
type Supervisor struct {
	player  *Player
	cfg     SupervisorConfig
	onFrame core.FrameHandler
	log     *slog.Logger

	attempts int
}

// NewSupervisor wraps p. onFrame is passed to every session.
func NewSupervisor(p *Player, cfg SupervisorConfig, onFrame core.FrameHandler) *Supervisor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 250 * time.Millisecond
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = cfg.RetryDelay
	}
	return &Supervisor{player: p, cfg: cfg, onFrame: onFrame, log: p.log}
}

type outcome int

const (
	outcomeCancelled outcome = iota
	outcomeEnded
	outcomeStalled
)

// Run blocks until ctx is done, then stops the player and returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.player.StopPlayback()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := s.player.StartPlayback(ctx, s.onFrame); err != nil {
			s.log.Error("Playback start failed", "error", err, "attempt", s.attempts+1)
			if s.cfg.FallbackAfter > 0 {
				s.player.TryNextProtocol()
			}
			if !s.backoff(ctx) {
				return nil
			}
			continue
		}

		switch s.watch(ctx) {
		case outcomeCancelled:
			return nil
		case outcomeStalled:
			s.log.Warn("No usable video, trying next protocol", "after", s.cfg.FallbackAfter)
			s.player.StopPlayback()
			s.player.TryNextProtocol()
			s.attempts = 0
		case outcomeEnded:
			if !s.backoff(ctx) {
				return nil
			}
		}
	}
}

func (s *Supervisor) watch(ctx context.Context) outcome {
	sess := s.player.current()
	if sess == nil {
		return outcomeEnded
	}

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return outcomeCancelled
		case <-sess.done:
			return outcomeEnded
		case <-ticker.C:
			// A session that keeps delivering resets the backoff.
			if sess.decoded.Load() > 0 {
				s.attempts = 0
			}
			if s.cfg.FallbackAfter <= 0 {
				continue
			}
			idle := time.Since(time.Unix(0, sess.lastAdmit.Load()))
			if idle >= s.cfg.FallbackAfter {
				return outcomeStalled
			}
		}
	}
}

// backoff sleeps RetryDelay * 2^attempts capped at MaxRetryDelay. It returns
// false when ctx ended first.
func (s *Supervisor) backoff(ctx context.Context) bool {
	delay := s.cfg.RetryDelay
	for i := 0; i < s.attempts && delay < s.cfg.MaxRetryDelay; i++ {
		delay *= 2
	}
	if delay > s.cfg.MaxRetryDelay {
		delay = s.cfg.MaxRetryDelay
	}
	s.attempts++

	s.log.Info("Reconnecting to camera", "delay", delay, "attempt", s.attempts)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}
