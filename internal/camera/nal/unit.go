// Package nal splits an H.264 Annex-B byte stream into NAL units.
//
// The stream arrives in arbitrary chunks from a camera socket. [Demuxer]
// keeps its scan state between [Demuxer.Feed] calls, so the units it emits
// do not depend on where the chunk boundaries fall.
package nal

import (
	"bytes"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

var (
	// Standard Annex-B start codes
	StartCode3 = []byte{0x00, 0x00, 0x01}
	StartCode4 = []byte{0x00, 0x00, 0x00, 0x01}
)

// Unit is one NAL unit including its leading start code. It is immutable once
// emitted by the demuxer.
type Unit struct {
	data   []byte
	scSize int
}

// NewUnit wraps data that begins with a 3 or 4 byte start code. It returns
// false if data does not start with one. The slice is retained, not copied.
func NewUnit(data []byte) (Unit, bool) {
	switch {
	case bytes.HasPrefix(data, StartCode4):
		return Unit{data: data, scSize: len(StartCode4)}, true
	case bytes.HasPrefix(data, StartCode3):
		return Unit{data: data, scSize: len(StartCode3)}, true
	}
	return Unit{}, false
}

// Bytes returns the unit with its start code. Callers must not modify it.
func (u Unit) Bytes() []byte { return u.data }

// Len returns the unit size including the start code.
func (u Unit) Len() int { return len(u.data) }

// StartCodeLen is 3 or 4.
func (u Unit) StartCodeLen() int { return u.scSize }

// Payload returns the NAL header and body without the start code.
func (u Unit) Payload() []byte {
	if len(u.data) <= u.scSize {
		return nil
	}
	return u.data[u.scSize:]
}

// HasHeader reports whether the unit carries at least the NAL header byte.
func (u Unit) HasHeader() bool {
	return u.scSize > 0 && len(u.data) > u.scSize
}

// Type returns the low 5 bits of the header byte following the start code.
// For a four byte start code this is byte 4 of the unit.
func (u Unit) Type() h264.NALUType {
	if !u.HasHeader() {
		return 0
	}
	return h264.NALUType(u.data[u.scSize] & 0x1F)
}
