package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Rizzu97/app/config"
	"github.com/Rizzu97/app/internal/camera/button"
	"github.com/Rizzu97/app/internal/camera/core"
	"github.com/Rizzu97/app/internal/camera/pipeline"
	"github.com/Rizzu97/app/internal/camera/player"
	"github.com/Rizzu97/app/internal/daemon"
	"github.com/Rizzu97/app/internal/server"
	"github.com/Rizzu97/app/internal/util"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var (
		port      int
		noButtons bool
		detach    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run playback, the button listener and the monitor API together",
		Long: `Keep a playback session running with automatic reconnection, listen for the camera's button and expose both over an HTTP monitor API.

Endpoints:
  GET  /api/health
  GET  /api/status
  POST /api/playback/start
  POST /api/playback/stop
  POST /api/playback/next-protocol
  GET  /api/snapshot
  GET  /ws                 (event stream)`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindCameraFlags(cmd); err != nil {
				return err
			}
			return config.BindFlag("server.port", cmd.Flags().Lookup("server-port"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			port = config.GetServerPort()
			if detach {
				return runServeDetached(port)
			}
			return runServe(cmd.Context(), port, !noButtons)
		},
		Example: `  # Serve with the configured camera
  camstream serve

  # Serve the monitor API on another port without the button listener
  camstream serve --server-port 8080 --no-buttons

  # Run in the background, then query it
  camstream serve -D
  camstream ctl status`,
	}

	addCameraFlags(cmd)
	flags := cmd.Flags()
	flags.Int("server-port", 0, "Monitor API port (default 29889)")
	flags.BoolVar(&noButtons, "no-buttons", false, "Do not start the button listener")
	flags.BoolVarP(&detach, "detach", "D", false, "Run in the background (see 'camstream ctl')")

	return cmd
}

func runServeDetached(port int) error {
	args := make([]string, 0, len(os.Args))
	for _, a := range os.Args[1:] {
		if a == "--detach" || a == "-D" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		args = append(args, a)
	}

	m := daemon.NewManager(port, config.GetHome())
	pid, err := m.StartServer(args)
	if err != nil {
		return err
	}
	fmt.Printf("%s (pid %d) %s\n", color.GreenString("📹 camstream server started"), pid, color.CyanString(m.URL()))
	fmt.Printf("   logs: %s\n", m.LogFile())
	return nil
}

func runServe(parent context.Context, port int, withButtons bool) error {
	ctx, stop := signalContext(parent)
	defer stop()

	log := util.GetLogger()
	events := pipeline.NewBroadcaster(log)
	defer events.Close()

	p, err := newPlayer(events.Publish)
	if err != nil {
		return err
	}

	var buttons server.ButtonService
	if withButtons {
		srv := button.NewServer(config.GetButtonPort(), log)
		err := srv.Start(button.Handlers{
			OnPressed: func() {
				events.Publish(core.NewEvent(core.EventButtonPressed, "", nil))
			},
			OnReleased: func() {
				events.Publish(core.NewEvent(core.EventButtonReleased, "", nil))
			},
		})
		if err != nil {
			return err
		}
		defer srv.Stop()
		buttons = srv
	}

	monitor := server.New(port, p, buttons, events, log)
	sup := player.NewSupervisor(p, config.Supervisor(), nil)

	fmt.Printf("%s %s\n", color.GreenString("📹 camstream monitor ➜"), color.CyanString("http://localhost:%d", port))
	fmt.Println(color.New(color.Faint).Sprint("Press Ctrl+C to stop..."))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(gctx)
	})
	g.Go(func() error {
		return monitor.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		return monitor.Stop()
	})

	err = g.Wait()
	log.Info("camstream serve stopped")
	return err
}
