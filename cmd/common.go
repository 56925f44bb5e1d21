package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Rizzu97/app/config"
	"github.com/Rizzu97/app/internal/camera/core"
	"github.com/Rizzu97/app/internal/camera/decoder"
	"github.com/Rizzu97/app/internal/camera/player"
	"github.com/Rizzu97/app/internal/util"
)

// cameraFlagKeys maps the shared camera flags to config keys.
var cameraFlagKeys = map[string]string{
	"host":           "camera.host",
	"port":           "camera.video_port",
	"protocol":       "camera.protocol",
	"transport":      "camera.transport",
	"decoder":        "decoder.kind",
	"fallback-after": "player.fallback_after",
}

func addCameraFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("host", "", "Camera address (default from config, 192.168.1.1)")
	flags.IntP("port", "p", 0, "Video port for the standard protocol (default 40005)")
	flags.StringP("protocol", "P", "", "Initial protocol: standard, http, rtsp, onvif or 0-3")
	flags.String("transport", "", "Video transport: tcp or udp")
	flags.StringP("decoder", "d", "", "Decoder: none, ffmpeg or record")
	flags.Duration("fallback-after", 0, "Switch protocol when no video arrives within this window (0 disables)")
	flags.String("record", "", "Write the gated stream to --record=FILE, or under the recordings directory when no file is given (implies --decoder record)")
	flags.Lookup("record").NoOptDefVal = recordDefault
}

// recordDefault is the value of a bare --record.
const recordDefault = " "

// recordPath resolves the --record value to a file path.
func recordPath(value string, now time.Time) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return filepath.Join(config.GetRecordingsDir(), now.Format("20060102-150405")+".h264")
}

// bindCameraFlags is run from PreRunE so each command binds its own flags.
func bindCameraFlags(cmd *cobra.Command) error {
	for name, key := range cameraFlagKeys {
		if err := config.BindFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("record") {
		value, _ := cmd.Flags().GetString("record")
		record := recordPath(value, time.Now())
		if err := os.MkdirAll(filepath.Dir(record), 0o755); err != nil {
			return errors.Wrap(err, "create recording directory")
		}
		config.Set("decoder.record_path", record)
		config.Set("decoder.kind", string(decoder.KindRecord))
	}
	return nil
}

// newPlayer assembles a player and its decoder from the merged configuration.
func newPlayer(events func(core.Event)) (*player.Player, error) {
	cfg, err := config.Player()
	if err != nil {
		return nil, err
	}

	opts := config.Decoder()
	opts.Logger = util.GetLogger()
	dec, err := decoder.New(opts)
	if err != nil {
		return nil, err
	}

	playerOpts := []player.Option{player.WithLogger(util.GetLogger())}
	if events != nil {
		playerOpts = append(playerOpts, player.WithEvents(events))
	}
	return player.New(cfg, dec, playerOpts...), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
