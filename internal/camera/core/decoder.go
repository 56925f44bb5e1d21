package core

import "context"

// FrameHandler receives a decoded image. It may be invoked from a decoder
// owned goroutine, zero or more times per queued unit.
type FrameHandler func(image []byte)

// Decoder is the hardware or software H.264 decoder the engine feeds.
type Decoder interface {
	// Initialize prepares the decoder for the given picture size. It returns
	// false when the decoder cannot be configured.
	Initialize(width, height int) bool

	// QueueNalUnit hands one Annex-B NAL unit (start code included) to the
	// decoder. The slice must not be modified after the call.
	QueueNalUnit(unit []byte)

	// SetFrameHandler replaces the decoded-frame callback. A nil handler
	// discards decoded frames.
	SetFrameHandler(h FrameHandler)

	// Release frees decoder resources. Initialize may be called again later.
	Release()
}

// Source produces the raw camera byte stream for one playback session.
type Source interface {
	// Open establishes the transport and performs any handshake.
	Open(ctx context.Context) error

	// Stream blocks, passing every chunk read from the transport to sink,
	// until ctx is cancelled or the stream terminates. The chunk is only
	// valid for the duration of the sink call.
	Stream(ctx context.Context, sink func(chunk []byte)) error

	// Close releases the transport and unblocks any pending read.
	Close() error

	// Describe returns a short human readable form, e.g. "tcp 10.0.0.2:40005 standard".
	Describe() string
}
