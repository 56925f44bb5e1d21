package protocol

import (
	"net"
	"strconv"
	"time"
)

// Config is the per-session connection setup. It is a value; a copy is taken
// when a client is created.
type Config struct {
	Host    string
	Variant Variant

	VideoPort int // standard variant
	HTTPPort  int
	RTSPPort  int
	ONVIFPort int

	HTTPPath string
	RTSPPath string

	BufferSize     int
	ConnectTimeout time.Duration
	HandshakeDelay time.Duration
	// IdleTimeout bounds each body read. Zero disables it.
	IdleTimeout time.Duration
}

// DefaultConfig returns the settings most cameras of this family accept.
func DefaultConfig() Config {
	return Config{
		Host:           "192.168.1.1",
		Variant:        Standard,
		VideoPort:      40005,
		HTTPPort:       80,
		RTSPPort:       554,
		ONVIFPort:      80,
		HTTPPath:       "/videostream.cgi?user=admin&pwd=admin",
		RTSPPath:       "/h264/ch1/main/av_stream",
		BufferSize:     4096,
		ConnectTimeout: 5 * time.Second,
		HandshakeDelay: time.Second,
		IdleTimeout:    10 * time.Second,
	}
}

// Port returns the TCP port used for v.
func (c Config) Port(v Variant) int {
	switch v.normalize() {
	case HTTP:
		return c.HTTPPort
	case RTSP:
		return c.RTSPPort
	case ONVIF:
		return c.ONVIFPort
	default:
		return c.VideoPort
	}
}

// Address returns host:port for v.
func (c Config) Address(v Variant) string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port(v)))
}

func (c Config) bufferSize() int {
	if c.BufferSize <= 0 {
		return 4096
	}
	return c.BufferSize
}
