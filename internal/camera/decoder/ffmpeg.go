package decoder

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Rizzu97/app/internal/camera/core"
	procgroup "github.com/Rizzu97/app/internal/proc_group"
)

const (
	maxJPEGSize     = 8 << 20
	ffmpegStopGrace = 2 * time.Second
	ffmpegInboxSize = 64
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FFmpeg decodes Annex-B H.264 written to an ffmpeg subprocess and delivers
// the decoded pictures as JPEG images to the frame handler.
type FFmpeg struct {
	path string
	log  *slog.Logger

	handler atomic.Pointer[core.FrameHandler]

	mu      sync.Mutex
	cmd     *exec.Cmd
	inbox   chan []byte
	stop    chan struct{}
	cancel  context.CancelFunc
	workers sync.WaitGroup
	width   int
	height  int

	frames atomic.Uint64
	units  atomic.Uint64
}

var _ core.Decoder = (*FFmpeg)(nil)

// NewFFmpeg uses the binary at path, "ffmpeg" from PATH when empty.
func NewFFmpeg(path string, log *slog.Logger) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path, log: log}
}

// Initialize starts the subprocess. Calling it while running is a no-op.
func (f *FFmpeg) Initialize(width, height int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cmd != nil {
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, f.path,
		"-hide_banner",
		"-loglevel", "error",
		"-fflags", "nobuffer", // Decode as soon as a picture is complete
		"-flags", "low_delay",
		"-f", "h264", // Input format: raw H.264
		"-i", "pipe:0", // Read from stdin
		"-f", "image2pipe", // One image after another on stdout
		"-c:v", "mjpeg",
		"-q:v", "5",
		"pipe:1", // Write to stdout
	)

	procgroup.SetProcGrp(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		f.log.Error("Failed to open ffmpeg stdin", "error", err)
		return false
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		stdin.Close()
		f.log.Error("Failed to open ffmpeg stdout", "error", err)
		return false
	}

	if err := cmd.Start(); err != nil {
		cancel()
		stdin.Close()
		stdout.Close()
		f.log.Error("Failed to start ffmpeg", "path", f.path, "error", err)
		return false
	}

	f.cmd = cmd
	f.inbox = make(chan []byte, ffmpegInboxSize)
	f.stop = make(chan struct{})
	f.cancel = cancel
	f.width, f.height = width, height

	f.workers.Add(2)
	go f.feedInputLoop(stdin, f.inbox, f.stop)
	go f.readOutputLoop(stdout)

	f.log.Info("FFmpeg decoder started", "pid", cmd.Process.Pid, "width", width, "height", height)
	return true
}

// QueueNalUnit hands one unit to the stdin writer. It blocks while the
// writer's inbox is full and returns at once after Release. Units queued
// before Initialize or after Release are discarded.
func (f *FFmpeg) QueueNalUnit(unit []byte) {
	f.mu.Lock()
	inbox, stop := f.inbox, f.stop
	f.mu.Unlock()

	if inbox == nil {
		return
	}
	select {
	case inbox <- unit:
		f.units.Add(1)
	case <-stop:
	}
}

func (f *FFmpeg) SetFrameHandler(h core.FrameHandler) {
	if h == nil {
		f.handler.Store(nil)
		return
	}
	f.handler.Store(&h)
}

// Release stops the writer, which closes stdin so ffmpeg drains, then
// terminates ffmpeg if it has not exited within the grace period.
func (f *FFmpeg) Release() {
	f.mu.Lock()
	cmd, stop, cancel := f.cmd, f.stop, f.cancel
	f.cmd, f.inbox, f.stop, f.cancel = nil, nil, nil, nil
	f.mu.Unlock()

	if cmd == nil {
		return
	}
	close(stop)

	done := make(chan error, 1)
	go func() {
		f.workers.Wait()
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		f.log.Info("FFmpeg decoder stopped", "frames", f.frames.Load(), "error", err)
	case <-time.After(ffmpegStopGrace):
		procgroup.Terminate(cmd.Process)
		select {
		case <-done:
		case <-time.After(ffmpegStopGrace):
			cancel()
			<-done
		}
		f.log.Warn("FFmpeg decoder force stopped")
	}
	cancel()
}

// feedInputLoop is the only writer of stdin. When stop is closed it writes
// the units still in the inbox, then closes stdin so ffmpeg flushes.
func (f *FFmpeg) feedInputLoop(stdin io.WriteCloser, inbox <-chan []byte, stop <-chan struct{}) {
	defer f.workers.Done()
	defer stdin.Close()
	defer f.log.Debug("FFmpeg input feed loop stopped")

	failed := false
	write := func(unit []byte) {
		if failed {
			return
		}
		if _, err := stdin.Write(unit); err != nil {
			// Keep consuming so QueueNalUnit never blocks on a dead process.
			f.log.Error("Failed to write to ffmpeg stdin", "error", err)
			failed = true
		}
	}

	for {
		select {
		case <-stop:
			for {
				select {
				case unit := <-inbox:
					write(unit)
				default:
					return
				}
			}
		case unit := <-inbox:
			write(unit)
		}
	}
}

// Frames returns how many images were delivered.
func (f *FFmpeg) Frames() uint64 { return f.frames.Load() }

func (f *FFmpeg) readOutputLoop(stdout io.ReadCloser) {
	defer f.workers.Done()
	defer f.log.Debug("FFmpeg output read loop stopped")

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 256*1024), maxJPEGSize)
	sc.Split(ScanJPEG)

	for sc.Scan() {
		img := append([]byte(nil), sc.Bytes()...)
		f.frames.Add(1)

		if h := f.handler.Load(); h != nil {
			(*h)(img)
		}
	}
	if err := sc.Err(); err != nil {
		f.log.Error("Reading ffmpeg output failed", "error", err)
		// Keep the pipe drained so ffmpeg is not blocked on a full stdout.
		io.Copy(io.Discard, stdout)
	}
}

// ScanJPEG is a bufio.SplitFunc returning one JPEG image (SOI through EOI)
// per token. Bytes outside an image are skipped.
func ScanJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		// Keep a trailing 0xFF that may begin the next SOI.
		if n := len(data); n > 0 && data[n-1] == 0xFF && !atEOF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}
