package decoder

import (
	"sync"
	"sync/atomic"

	"github.com/Rizzu97/app/internal/camera/core"
)

// Discard accepts units and only counts them. It never produces frames.
type Discard struct {
	mu            sync.Mutex
	width, height int
	inits         int

	units atomic.Uint64
	bytes atomic.Uint64
}

var _ core.Decoder = (*Discard)(nil)

func NewDiscard() *Discard { return &Discard{} }

func (d *Discard) Initialize(width, height int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = width, height
	d.inits++
	return true
}

func (d *Discard) QueueNalUnit(unit []byte) {
	d.units.Add(1)
	d.bytes.Add(uint64(len(unit)))
}

func (d *Discard) SetFrameHandler(core.FrameHandler) {}

func (d *Discard) Release() {}

// Units returns how many units were queued.
func (d *Discard) Units() uint64 { return d.units.Load() }

// Bytes returns the total size of the queued units.
func (d *Discard) Bytes() uint64 { return d.bytes.Load() }

// Size returns the dimensions of the last Initialize and how many times it
// was called.
func (d *Discard) Size() (width, height, inits int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height, d.inits
}
