package decoder

import (
	"bufio"
	"log/slog"
	"os"
	"sync"

	"github.com/Rizzu97/app/internal/camera/core"
)

// Recorder appends every queued unit to an Annex-B .h264 file that ffplay
// or ffmpeg can read back. The file is truncated by the first Initialize and
// appended to after a re-initialisation.
type Recorder struct {
	path string
	log  *slog.Logger

	mu      sync.Mutex
	file    *os.File
	w       *bufio.Writer
	created bool
	written int64
}

var _ core.Decoder = (*Recorder)(nil)

func NewRecorder(path string, log *slog.Logger) *Recorder {
	return &Recorder{path: path, log: log}
}

func (r *Recorder) Initialize(width, height int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return true
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if !r.created {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(r.path, flags, 0o644)
	if err != nil {
		r.log.Error("Failed to open recording", "path", r.path, "error", err)
		return false
	}
	r.file = f
	r.w = bufio.NewWriterSize(f, 256*1024)
	r.created = true

	r.log.Info("Recording H.264 stream", "path", r.path, "width", width, "height", height)
	return true
}

func (r *Recorder) QueueNalUnit(unit []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w == nil {
		return
	}
	n, err := r.w.Write(unit)
	r.written += int64(n)
	if err != nil {
		r.log.Error("Failed to write recording", "path", r.path, "error", err)
	}
}

// SetFrameHandler is a no-op; a recorder produces no images.
func (r *Recorder) SetFrameHandler(core.FrameHandler) {}

func (r *Recorder) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return
	}
	if err := r.w.Flush(); err != nil {
		r.log.Error("Failed to flush recording", "path", r.path, "error", err)
	}
	if err := r.file.Close(); err != nil {
		r.log.Error("Failed to close recording", "path", r.path, "error", err)
	}
	r.log.Info("Recording closed", "path", r.path, "bytes", r.written)
	r.file = nil
	r.w = nil
}

// Written returns the number of bytes written so far.
func (r *Recorder) Written() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}
