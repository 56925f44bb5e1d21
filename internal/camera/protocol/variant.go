// Package protocol connects to a camera over TCP, performs one of the known
// handshakes and pumps the video body into a sink.
package protocol

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Variant selects the handshake and body framing.
type Variant int

const (
	Standard Variant = iota
	HTTP
	RTSP
	ONVIF

	variantCount = 4
)

func (v Variant) String() string {
	switch v {
	case Standard:
		return "standard"
	case HTTP:
		return "http"
	case RTSP:
		return "rtsp"
	case ONVIF:
		return "onvif"
	default:
		return "variant(" + strconv.Itoa(int(v)) + ")"
	}
}

// Next returns the following variant, wrapping after ONVIF.
func (v Variant) Next() Variant {
	return Variant((int(v.normalize()) + 1) % variantCount)
}

func (v Variant) normalize() Variant {
	n := int(v) % variantCount
	if n < 0 {
		n += variantCount
	}
	return Variant(n)
}

// ParseVariant accepts a name ("http") or index ("1").
func ParseVariant(s string) (Variant, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v := Standard; v < variantCount; v++ {
		if s == v.String() {
			return v, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < variantCount {
		return Variant(n), nil
	}
	return Standard, errors.Errorf("unknown protocol variant %q", s)
}

// State is the connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	HandshakeSent
	Streaming
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case HandshakeSent:
		return "handshake_sent"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}
