// Package decoder provides the core.Decoder implementations the player can
// drive: an ffmpeg subprocess producing JPEG frames, an elementary stream
// recorder and a counting sink.
package decoder

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/Rizzu97/app/internal/camera/core"
	"github.com/Rizzu97/app/internal/util"
)

// Kind names a decoder implementation.
type Kind string

const (
	KindNone   Kind = "none"
	KindFFmpeg Kind = "ffmpeg"
	KindRecord Kind = "record"
)

// Options selects and configures a decoder.
type Options struct {
	Kind       Kind
	FFmpegPath string
	RecordPath string
	Logger     *slog.Logger
}

// New builds the decoder named by opts.Kind. An empty kind means KindNone.
func New(opts Options) (core.Decoder, error) {
	log := opts.Logger
	if log == nil {
		log = util.GetLogger()
	}

	switch Kind(strings.ToLower(string(opts.Kind))) {
	case "", KindNone:
		return NewDiscard(), nil
	case KindFFmpeg:
		return NewFFmpeg(opts.FFmpegPath, log), nil
	case KindRecord:
		if opts.RecordPath == "" {
			return nil, errors.New("record decoder needs an output path")
		}
		return NewRecorder(opts.RecordPath, log), nil
	default:
		return nil, errors.Errorf("unknown decoder kind %q", opts.Kind)
	}
}
