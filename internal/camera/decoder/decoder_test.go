package decoder

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rizzu97/app/internal/camera/nal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    any
		wantErr bool
	}{
		{name: "default", opts: Options{}, want: &Discard{}},
		{name: "none", opts: Options{Kind: KindNone}, want: &Discard{}},
		{name: "ffmpeg", opts: Options{Kind: "FFmpeg"}, want: &FFmpeg{}},
		{name: "record", opts: Options{Kind: KindRecord, RecordPath: "out.h264"}, want: &Recorder{}},
		{name: "record without path", opts: Options{Kind: KindRecord}, wantErr: true},
		{name: "unknown", opts: Options{Kind: "vaapi"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Logger = testLogger()
			d, err := New(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, d)
		})
	}
}

func TestDiscardCounts(t *testing.T) {
	d := NewDiscard()
	assert.True(t, d.Initialize(640, 480))
	d.QueueNalUnit([]byte{0, 0, 0, 1, 0x65, 1, 2})
	d.QueueNalUnit([]byte{0, 0, 1, 0x41})

	assert.Equal(t, uint64(2), d.Units())
	assert.Equal(t, uint64(11), d.Bytes())
	w, h, inits := d.Size()
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
	assert.Equal(t, 1, inits)
}

func TestRecorderWritesAnnexB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.h264")
	os.WriteFile(path, []byte("stale"), 0o644)

	r := NewRecorder(path, testLogger())
	r.QueueNalUnit([]byte{0, 0, 0, 1, 0x09}) // before Initialize, dropped

	require.True(t, r.Initialize(1920, 1080))
	r.QueueNalUnit([]byte{0, 0, 0, 1, 0x67, 0xAA})
	r.QueueNalUnit([]byte{0, 0, 0, 1, 0x68, 0xBB})
	r.Release()

	// Re-initialisation appends.
	require.True(t, r.Initialize(1280, 720))
	r.QueueNalUnit([]byte{0, 0, 1, 0x65, 0xCC})
	r.Release()
	r.Release()

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0, 0, 0, 1, 0x67, 0xAA,
		0, 0, 0, 1, 0x68, 0xBB,
		0, 0, 1, 0x65, 0xCC,
	}, got)
	assert.Equal(t, int64(17), r.Written())
}

func TestRecorderInitializeFailsOnBadPath(t *testing.T) {
	r := NewRecorder(filepath.Join(t.TempDir(), "missing", "out.h264"), testLogger())
	assert.False(t, r.Initialize(0, 0))
}

func TestScanJPEG(t *testing.T) {
	img1 := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0x00, 0xFF, 0xD9}
	img2 := []byte{0xFF, 0xD8, 0xFF, 0xD9}

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x13})
	stream.Write(img1)
	stream.Write([]byte{0x42})
	stream.Write(img2)
	stream.Write([]byte{0xFF, 0xD8, 0x55}) // truncated tail

	for _, size := range []int{1, 3, 64} {
		sc := bufio.NewScanner(&chunkReader{data: stream.Bytes(), size: size})
		sc.Split(ScanJPEG)

		var got [][]byte
		for sc.Scan() {
			got = append(got, append([]byte(nil), sc.Bytes()...))
		}
		require.NoError(t, sc.Err())
		assert.Equal(t, [][]byte{img1, img2}, got, "read size %d", size)
	}
}

// chunkReader returns at most size bytes per Read.
type chunkReader struct {
	data []byte
	size int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := min(r.size, len(p), len(r.data))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestFFmpegDecodesFrames(t *testing.T) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not found in PATH")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	stream, err := exec.CommandContext(ctx, ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=64x64:rate=5",
		"-frames:v", "5",
		"-c:v", "libx264", "-bf", "0",
		"-f", "h264", "pipe:1",
	).Output()
	if err != nil || len(stream) == 0 {
		t.Skip("ffmpeg cannot encode H.264 here")
	}

	var au h264.AnnexB
	require.NoError(t, au.Unmarshal(stream))

	d := NewFFmpeg(ffmpeg, testLogger())
	var (
		mu     sync.Mutex
		images [][]byte
	)
	d.SetFrameHandler(func(img []byte) {
		mu.Lock()
		images = append(images, img)
		mu.Unlock()
	})
	require.True(t, d.Initialize(64, 64))

	dm := nal.NewDemuxer(0, testLogger())
	for _, u := range dm.Feed(stream) {
		d.QueueNalUnit(u.Bytes())
	}
	if u, ok := dm.Flush(); ok {
		d.QueueNalUnit(u.Bytes())
	}
	d.Release()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, images)
	for _, img := range images {
		assert.True(t, bytes.HasPrefix(img, jpegSOI))
		assert.True(t, bytes.HasSuffix(img, jpegEOI))
	}
	assert.Equal(t, uint64(len(images)), d.Frames())
}

func TestFFmpegMissingBinary(t *testing.T) {
	d := NewFFmpeg(filepath.Join(t.TempDir(), "no-ffmpeg"), testLogger())
	assert.False(t, d.Initialize(64, 64))
	d.QueueNalUnit([]byte{0, 0, 0, 1, 0x65})
	d.Release()
}

// catFFmpeg installs a stand-in ffmpeg that echoes stdin to stdout, so the
// units written are read back as the decoder's output.
func catFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexec cat\n"), 0o755))
	return path
}

// jpegUnit builds a unit of about size bytes holding back-to-back JPEG
// images; it returns the unit and the number of images in it.
func jpegUnit(size int) ([]byte, int) {
	frame := append([]byte{0xFF, 0xD8}, bytes.Repeat([]byte{0x42}, 4096)...)
	frame = append(frame, 0xFF, 0xD9)

	unit := []byte{0x00, 0x00, 0x00, 0x01, 0x65}
	n := 0
	for len(unit) < size {
		unit = append(unit, frame...)
		n++
	}
	return unit, n
}

func TestFFmpegLargeUnitsDoNotStallOutput(t *testing.T) {
	d := NewFFmpeg(catFFmpeg(t), testLogger())

	var delivered atomic.Uint64
	d.SetFrameHandler(func(img []byte) {
		assert.True(t, bytes.HasPrefix(img, jpegSOI))
		delivered.Add(1)
	})
	require.True(t, d.Initialize(64, 64))

	unit, perUnit := jpegUnit(1 << 20)
	const units = 3

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for range units {
			d.QueueNalUnit(unit)
		}
		d.Release()
	}()

	select {
	case <-finished:
	case <-time.After(15 * time.Second):
		t.Fatalf("QueueNalUnit/Release blocked, %d frames delivered", delivered.Load())
	}
	assert.Equal(t, uint64(units*perUnit), delivered.Load())
	assert.Equal(t, uint64(units*perUnit), d.Frames())
}

func TestFFmpegQueueAfterReleaseReturns(t *testing.T) {
	d := NewFFmpeg(catFFmpeg(t), testLogger())
	require.True(t, d.Initialize(64, 64))
	d.Release()

	done := make(chan struct{})
	go func() {
		d.QueueNalUnit([]byte{0, 0, 0, 1, 0x65})
		d.SetFrameHandler(nil)
		d.Release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("calls after Release blocked")
	}
}
