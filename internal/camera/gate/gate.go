// Package gate decides which NAL units may reach the decoder.
//
// A decoder cannot use a slice before it has seen the parameter sets, and
// cannot use a predicted slice before a keyframe. Gate tracks what has been
// seen since the last SPS and drops everything the decoder could not use.
package gate

import (
	"log/slog"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/Rizzu97/app/internal/camera/core"
	"github.com/Rizzu97/app/internal/camera/nal"
	"github.com/Rizzu97/app/internal/util"
)

// Decision is the outcome of admitting one unit.
type Decision int

const (
	// Drop discards the unit.
	Drop Decision = iota
	// Forward passes the unit to the decoder.
	Forward
	// ForwardAndResetSession passes an SPS and restarts the decoding session.
	ForwardAndResetSession
)

func (d Decision) String() string {
	switch d {
	case Drop:
		return "drop"
	case Forward:
		return "forward"
	case ForwardAndResetSession:
		return "forward+reset"
	default:
		return "unknown"
	}
}

// State is a snapshot of the gate flags and counters.
type State struct {
	HaveSPS      bool   `json:"have_sps"`
	HavePPS      bool   `json:"have_pps"`
	HaveKeyframe bool   `json:"have_keyframe"`
	Forwarded    uint64 `json:"forwarded"`
	Dropped      uint64 `json:"dropped"`
	Resets       uint64 `json:"resets"`
}

// Options tunes the gate.
type Options struct {
	// PassUnknown forwards SEI, AUD and other non-VCL units once the
	// parameter sets are known instead of dropping them.
	PassUnknown bool
	Logger      *slog.Logger
}

// Gate is safe for concurrent use.
type Gate struct {
	mu           sync.Mutex
	haveSPS      bool
	havePPS      bool
	haveKeyframe bool

	forwarded uint64
	dropped   uint64
	resets    uint64

	passUnknown bool
	log         *slog.Logger
}

// New creates a gate with all flags cleared.
func New(opts Options) *Gate {
	log := opts.Logger
	if log == nil {
		log = util.GetLogger()
	}
	return &Gate{
		passUnknown: opts.PassUnknown,
		log:         log,
	}
}

// Admit classifies u and updates the gate state.
func (g *Gate) Admit(u nal.Unit) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	d := g.decide(u)
	switch d {
	case Drop:
		g.dropped++
	case ForwardAndResetSession:
		g.resets++
		g.forwarded++
	default:
		g.forwarded++
	}
	return d
}

func (g *Gate) decide(u nal.Unit) Decision {
	if !u.HasHeader() {
		return Drop
	}

	switch typ := u.Type(); typ {
	case h264.NALUTypeSPS:
		// A new SPS may change resolution or profile; everything seen
		// before it is void.
		g.haveSPS = true
		g.havePPS = false
		g.haveKeyframe = false
		g.log.Debug("SPS received, decoding session reset", "size", u.Len())
		return ForwardAndResetSession

	case h264.NALUTypePPS:
		if !g.haveSPS {
			g.log.Debug("PPS before SPS, dropping", "reason", core.ErrDecoderNotReady)
			return Drop
		}
		g.havePPS = true
		return Forward

	case h264.NALUTypeIDR:
		if !g.haveSPS || !g.havePPS {
			g.log.Debug("IDR before parameter sets, dropping", "reason", core.ErrDecoderNotReady)
			return Drop
		}
		if !g.haveKeyframe {
			g.log.Debug("First keyframe of session", "size", u.Len())
		}
		g.haveKeyframe = true
		return Forward

	case h264.NALUTypeNonIDR:
		if !g.haveKeyframe {
			return Drop
		}
		return Forward

	default:
		if g.passUnknown && g.haveSPS && g.havePPS {
			return Forward
		}
		return Drop
	}
}

// Reset clears all flags as at the start of a session. Counters are kept.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.haveSPS = false
	g.havePPS = false
	g.haveKeyframe = false
}

// State returns a snapshot.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		HaveSPS:      g.haveSPS,
		HavePPS:      g.havePPS,
		HaveKeyframe: g.haveKeyframe,
		Forwarded:    g.forwarded,
		Dropped:      g.dropped,
		Resets:       g.resets,
	}
}
