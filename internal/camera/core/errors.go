package core

import "errors"

// Error taxonomy shared by the ingest engine. Concrete errors returned by the
// protocol, button and player packages wrap one of these sentinels so callers
// can classify failures with errors.Is.
var (
	// ErrConnect covers socket creation, connect and handshake write failures.
	ErrConnect = errors.New("camera connect failed")

	// ErrStreamTerminated means the peer closed the stream or a read failed
	// mid-stream. Recoverable by reconnecting or switching protocol.
	ErrStreamTerminated = errors.New("camera stream terminated")

	// ErrDemuxOverflow is raised when an assembling NAL unit exceeds the
	// demuxer buffer cap. The unit is dropped and demuxing continues.
	ErrDemuxOverflow = errors.New("nal unit exceeds demux buffer")

	// ErrDecoderNotReady marks units that arrived before the decoder could
	// accept them. The gate drops these silently.
	ErrDecoderNotReady = errors.New("decoder not ready")

	// ErrListenerBind is returned when the button server cannot bind its port.
	ErrListenerBind = errors.New("button listener bind failed")

	// ErrDecoderInit is returned when the decoder refuses to initialize.
	ErrDecoderInit = errors.New("decoder initialization failed")

	// ErrNotPlaying is returned by operations that need an active session.
	ErrNotPlaying = errors.New("no active playback session")
)
