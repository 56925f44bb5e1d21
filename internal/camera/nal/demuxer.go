package nal

import (
	"log/slog"

	"github.com/Rizzu97/app/internal/camera/core"
	"github.com/Rizzu97/app/internal/util"
)

// DefaultMaxUnitSize caps the working buffer of one assembling unit.
const DefaultMaxUnitSize = 1000000

// Demuxer scans a byte stream for Annex-B start codes and emits complete
// units. It is not safe for concurrent use; one network reader owns it.
type Demuxer struct {
	buf     []byte
	scSize  int  // start code size of the unit in buf
	started bool // a start code has been seen since the last reset
	dropped bool // the unit in buf exceeded maxSize and will be discarded
	zeros   int  // consecutive 0x00 bytes immediately before the cursor

	maxSize   int
	overflows uint64
	emitted   uint64
	log       *slog.Logger
}

// NewDemuxer creates a demuxer. maxUnitSize <= 0 selects DefaultMaxUnitSize.
// If log is nil, util.GetLogger() is used.
func NewDemuxer(maxUnitSize int, log *slog.Logger) *Demuxer {
	if maxUnitSize <= 0 {
		maxUnitSize = DefaultMaxUnitSize
	}
	if log == nil {
		log = util.GetLogger()
	}
	return &Demuxer{
		maxSize: maxUnitSize,
		log:     log,
	}
}

// Feed consumes chunk and returns the units completed by it, in stream
// order. Bytes before the first start code are discarded. The returned units
// own their memory.
func (d *Demuxer) Feed(chunk []byte) []Unit {
	var out []Unit
	for _, b := range chunk {
		if b == 0x01 && d.zeros >= 2 {
			if u, ok := d.boundary(); ok {
				out = append(out, u)
			}
			continue
		}

		if b == 0x00 {
			d.zeros++
		} else {
			d.zeros = 0
		}
		if d.started {
			d.appendByte(b)
		}
	}
	return out
}

// Flush finalizes the unit being assembled, as at end of stream, and resets
// the demuxer. It returns false when nothing beyond a bare start code is
// pending.
func (d *Demuxer) Flush() (Unit, bool) {
	defer d.Reset()

	if !d.started || d.dropped || len(d.buf) <= d.scSize {
		return Unit{}, false
	}
	data := make([]byte, len(d.buf))
	copy(data, d.buf)
	d.emitted++
	return Unit{data: data, scSize: d.scSize}, true
}

// Reset discards any partial unit and forgets the start code state.
func (d *Demuxer) Reset() {
	d.buf = d.buf[:0]
	d.scSize = 0
	d.started = false
	d.dropped = false
	d.zeros = 0
}

// Pending returns the number of bytes held for the unit being assembled.
func (d *Demuxer) Pending() int { return len(d.buf) }

// Overflows returns how many units were discarded for exceeding the cap.
func (d *Demuxer) Overflows() uint64 { return d.overflows }

// Emitted returns how many units have been produced since creation.
func (d *Demuxer) Emitted() uint64 { return d.emitted }

// boundary is called on the 0x01 byte that completes a start code. The
// preceding zeros of the start code are already in buf when a unit is being
// assembled.
func (d *Demuxer) boundary() (Unit, bool) {
	size := len(StartCode3)
	if d.zeros >= 3 {
		size = len(StartCode4)
	}
	d.zeros = 0

	var (
		unit Unit
		ok   bool
	)
	if d.started && !d.dropped {
		end := len(d.buf) - (size - 1)
		if end > d.scSize {
			data := make([]byte, end)
			copy(data, d.buf[:end])
			unit, ok = Unit{data: data, scSize: d.scSize}, true
			d.emitted++
			d.log.Debug("NAL unit assembled", "type", unit.Type(), "size", end)
		}
	}

	d.buf = d.buf[:0]
	if size == len(StartCode4) {
		d.buf = append(d.buf, StartCode4...)
	} else {
		d.buf = append(d.buf, StartCode3...)
	}
	d.scSize = size
	d.started = true
	d.dropped = false
	return unit, ok
}

func (d *Demuxer) appendByte(b byte) {
	if d.dropped {
		return
	}
	if len(d.buf) >= d.maxSize {
		d.dropped = true
		d.overflows++
		d.log.Warn("NAL buffer overflow, discarding unit",
			"error", core.ErrDemuxOverflow, "limit", d.maxSize, "overflows", d.overflows)
		return
	}
	d.buf = append(d.buf, b)
}
