package player

import (
	"time"

	"github.com/Rizzu97/app/internal/camera/nal"
	"github.com/Rizzu97/app/internal/camera/protocol"
	"github.com/Rizzu97/app/internal/camera/queue"
)

// Transport selects where video bytes come from.
type Transport string

const (
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
)

// Config configures a Player.
type Config struct {
	Protocol  protocol.Config
	Transport Transport
	// UDPAddr is the local address bound for TransportUDP.
	UDPAddr string

	QueueCapacity int
	MaxUnitSize   int
	PassUnknown   bool

	// Width and Height initialise the decoder before the first SPS tells
	// the real picture size.
	Width  int
	Height int

	JoinTimeout  time.Duration
	PollInterval time.Duration
	// FrameEventInterval throttles session.frame events.
	FrameEventInterval time.Duration
}

// DefaultConfig matches the defaults of the configuration file.
func DefaultConfig() Config {
	return Config{
		Protocol:           protocol.DefaultConfig(),
		Transport:          TransportTCP,
		UDPAddr:            ":40005",
		QueueCapacity:      queue.DefaultCapacity,
		MaxUnitSize:        nal.DefaultMaxUnitSize,
		Width:              1920,
		Height:             1080,
		JoinTimeout:        time.Second,
		PollInterval:       10 * time.Millisecond,
		FrameEventInterval: time.Second,
	}
}
