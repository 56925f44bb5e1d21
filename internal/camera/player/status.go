package player

import (
	"time"

	"github.com/Rizzu97/app/internal/camera/gate"
)

// Status is a point-in-time view of the player for monitors.
type Status struct {
	SessionID string    `json:"session_id,omitempty"`
	Playing   bool      `json:"playing"`
	Source    string    `json:"source,omitempty"`
	Transport Transport `json:"transport"`
	Variant   string    `json:"variant"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`

	BytesRead      uint64 `json:"bytes_read"`
	UnitsEmitted   uint64 `json:"units_emitted"`
	UnitsDecoded   uint64 `json:"units_decoded"`
	DemuxOverflows uint64 `json:"demux_overflows"`
	Frames         uint64 `json:"frames"`

	QueueLen     int    `json:"queue_len"`
	QueueCap     int    `json:"queue_cap"`
	QueueDropped uint64 `json:"queue_dropped"`

	Gate   gate.State `json:"gate"`
	Width  int        `json:"width"`
	Height int        `json:"height"`
}

// Status reports the current or most recently ended session.
func (p *Player) Status() Status {
	st := Status{
		Transport: p.cfg.Transport,
		Variant:   p.client.Variant().String(),
		State:     p.client.State().String(),
		BytesRead: p.client.BytesRead(),
	}
	if st.Transport == "" {
		st.Transport = TransportTCP
	}

	s := p.current()
	if s == nil {
		return st
	}

	st.SessionID = s.id
	st.Playing = !s.ended()
	st.Source = s.source.Describe()
	st.StartedAt = s.started
	if p.cfg.Transport == TransportUDP {
		st.State = "streaming"
		if !st.Playing {
			st.State = "disconnected"
		}
	}
	s.mu.Lock()
	if s.err != nil {
		st.LastError = s.err.Error()
	}
	s.mu.Unlock()

	st.UnitsEmitted = s.emitted.Load()
	st.UnitsDecoded = s.decoded.Load()
	st.DemuxOverflows = s.overflows.Load()
	st.Frames = s.frames.Load()
	st.QueueLen = s.queue.Len()
	st.QueueCap = s.queue.Cap()
	st.QueueDropped = s.queue.Dropped()
	st.Gate = s.gate.State()
	st.Width = int(s.width.Load())
	st.Height = int(s.height.Load())
	return st
}
