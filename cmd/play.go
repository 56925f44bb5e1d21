package cmd

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Rizzu97/app/config"
	"github.com/Rizzu97/app/internal/camera/player"
)

type playOptions struct {
	once     bool
	duration time.Duration
	interval time.Duration
}

// NewPlayCommand creates the play command
func NewPlayCommand() *cobra.Command {
	opts := &playOptions{}

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Stream video from the camera",
		Long: `Connect to the camera, split the H.264 stream into NAL units and feed the decoder.

Sessions that end are restarted with backoff unless --once is given. With --fallback-after the next protocol variant is tried when no video arrives in time.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindCameraFlags(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), opts)
		},
		Example: `  # Play from the default camera
  camstream play

  # Use the HTTP variant on another camera and record the stream
  camstream play --host 10.0.0.7 --protocol http --record=./cam.h264

  # Record under ~/.camstream/recordings with a timestamped name
  camstream play --record

  # Decode with ffmpeg and cycle protocols after 5s without video
  camstream play -d ffmpeg --fallback-after 5s`,
	}

	addCameraFlags(cmd)
	flags := cmd.Flags()
	flags.BoolVar(&opts.once, "once", false, "Exit when the first session ends instead of reconnecting")
	flags.DurationVar(&opts.duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	flags.DurationVar(&opts.interval, "stats-interval", time.Second, "How often to print statistics")

	return cmd
}

func runPlay(parent context.Context, opts *playOptions) error {
	ctx, stop := signalContext(parent)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	p, err := newPlayer(nil)
	if err != nil {
		return err
	}

	var frames atomic.Uint64
	onFrame := func([]byte) { frames.Add(1) }

	fmt.Printf("%s %s\n", color.GreenString("▶ Playing"), color.CyanString(config.GetCameraHost()))
	fmt.Println(color.New(color.Faint).Sprint("Press Ctrl+C to stop..."))

	runErr := make(chan error, 1)
	if opts.once {
		if _, err := p.StartPlayback(ctx, onFrame); err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			runErr <- nil
		}()
	} else {
		sup := player.NewSupervisor(p, config.Supervisor(), onFrame)
		go func() { runErr <- sup.Run(ctx) }()
	}

	printer := newStatusPrinter(os.Stdout)
	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for {
		select {
		case err := <-runErr:
			p.StopPlayback()
			printer.done(p.Status(), frames.Load())
			return err
		case <-ticker.C:
			st := p.Status()
			printer.print(st, frames.Load())
			if opts.once && st.SessionID != "" && !st.Playing {
				p.StopPlayback()
				printer.done(st, frames.Load())
				if st.LastError != "" {
					return fmt.Errorf("session ended: %s", st.LastError)
				}
				return nil
			}
		}
	}
}

// statusPrinter redraws one line on a terminal and appends lines otherwise.
type statusPrinter struct {
	out *os.File
	tty bool
}

func newStatusPrinter(out *os.File) *statusPrinter {
	return &statusPrinter{out: out, tty: term.IsTerminal(int(out.Fd()))}
}

func (sp *statusPrinter) line(st player.Status, frames uint64) string {
	state := color.YellowString(st.State)
	if st.Playing && st.State == "streaming" {
		state = color.GreenString(st.State)
	} else if !st.Playing {
		state = color.RedString(st.State)
	}
	return fmt.Sprintf("%s %-8s %s  bytes=%d units=%d decoded=%d frames=%d queue=%d/%d dropped=%d gate=%d/%d %dx%d",
		state, st.Variant, st.Source,
		st.BytesRead, st.UnitsEmitted, st.UnitsDecoded, frames,
		st.QueueLen, st.QueueCap, st.QueueDropped,
		st.Gate.Forwarded, st.Gate.Dropped, st.Width, st.Height)
}

func (sp *statusPrinter) print(st player.Status, frames uint64) {
	if sp.tty {
		fmt.Fprintf(sp.out, "\r\033[K%s", sp.line(st, frames))
		return
	}
	fmt.Fprintln(sp.out, sp.line(st, frames))
}

func (sp *statusPrinter) done(st player.Status, frames uint64) {
	if sp.tty {
		fmt.Fprintln(sp.out)
	}
	fmt.Fprintf(sp.out, "%s units=%d frames=%d overflows=%d\n",
		color.New(color.Faint).Sprint("■ Stopped"), st.UnitsDecoded, frames, st.DemuxOverflows)
	if st.LastError != "" {
		fmt.Fprintf(sp.out, "%s %s\n", color.RedString("last error:"), st.LastError)
	}
}
