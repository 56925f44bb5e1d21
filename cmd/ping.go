package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Rizzu97/app/config"
	"github.com/Rizzu97/app/internal/camera/probe"
	"github.com/Rizzu97/app/internal/util"
)

// NewPingCommand creates the ping command
func NewPingCommand() *cobra.Command {
	var (
		host    string
		port    int
		timeout time.Duration
		noFall  bool
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check whether the camera answers on the network",
		Long:  `Probe the camera's video port. When it does not answer, a set of common ports is tried; a refused connection still proves the host is up.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if host == "" {
				host = config.GetCameraHost()
			}
			if port == 0 {
				port = config.GetVideoPort()
			}
			fallbacks := probe.DefaultFallbackPorts
			if noFall {
				fallbacks = nil
			}
			return runPing(cmd.Context(), host, port, fallbacks, timeout)
		},
		Example: `  # Probe the configured camera
  camstream ping

  # Probe another host, video port only
  camstream ping --host 10.0.0.7 --no-fallback`,
	}

	flags := cmd.Flags()
	flags.StringVar(&host, "host", "", "Camera address (default from config)")
	flags.IntVarP(&port, "port", "p", 0, "Port to probe first (default video port)")
	flags.DurationVarP(&timeout, "timeout", "t", 2*time.Second, "Timeout per port")
	flags.BoolVar(&noFall, "no-fallback", false, "Do not try fallback ports")

	return cmd
}

func runPing(ctx context.Context, host string, port int, fallbacks []int, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := probe.Host(ctx, host, port, fallbacks, timeout)
	if err != nil {
		return err
	}

	rows := make([]map[string]string, 0, 1+len(report.Fallbacks))
	for _, r := range report.Results() {
		status := r.Status.String()
		switch r.Status {
		case probe.Open:
			status = color.GreenString(status)
		case probe.Refused:
			status = color.YellowString(status)
		default:
			status = color.RedString(status)
		}
		rows = append(rows, map[string]string{
			"port":    strconv.Itoa(r.Port),
			"status":  status,
			"latency": r.Latency.Round(time.Millisecond).String(),
		})
	}

	util.RenderTable(os.Stdout, []util.TableColumn{
		{Header: "PORT", Key: "port"},
		{Header: "STATUS", Key: "status"},
		{Header: "LATENCY", Key: "latency"},
	}, rows)

	if !report.Reachable() {
		fmt.Printf("\n❌ %s is not reachable\n", color.CyanString(host))
		return errors.Errorf("host %s is not reachable", host)
	}
	fmt.Printf("\n✅ %s is reachable\n", color.CyanString(host))
	return nil
}
