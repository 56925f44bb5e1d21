package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Rizzu97/app/config"
	"github.com/Rizzu97/app/internal/daemon"
	"github.com/Rizzu97/app/internal/server"
	"github.com/Rizzu97/app/internal/util"
)

// NewCtlCommand creates the ctl command for a running `camstream serve`
func NewCtlCommand() *cobra.Command {
	var port int

	manager := func() *daemon.Manager {
		if port == 0 {
			port = config.GetServerPort()
		}
		return daemon.NewManager(port, config.GetHome())
	}

	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running camstream server",
		Long:  `Query and control a server started with 'camstream serve' through its monitor API.`,
	}
	cmd.PersistentFlags().IntVar(&port, "server-port", 0, "Monitor API port (default from config, 29889)")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show playback and button status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st server.StatusResponse
			if err := manager().CallAPI(http.MethodGet, "/api/status", nil, &st); err != nil {
				return err
			}
			printServerStatus(st)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start a playback session",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]string
			if err := manager().CallAPI(http.MethodPost, "/api/playback/start", nil, &resp); err != nil {
				return err
			}
			fmt.Printf("%s session %s\n", color.GreenString("▶ Started"), resp["session_id"])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the playback session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := manager().CallAPI(http.MethodPost, "/api/playback/stop", nil, nil); err != nil {
				return err
			}
			fmt.Println(color.New(color.Faint).Sprint("■ Stopped"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "next-protocol",
		Short: "Select the next protocol variant for the next session",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]string
			if err := manager().CallAPI(http.MethodPost, "/api/playback/next-protocol", nil, &resp); err != nil {
				return err
			}
			fmt.Printf("Next variant: %s\n", color.CyanString(resp["variant"]))
			return nil
		},
	})

	var snapshotOut string
	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "Save the most recent decoded frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			var img bytes.Buffer
			if err := manager().CallAPI(http.MethodGet, "/api/snapshot", nil, &img); err != nil {
				return err
			}
			if err := os.WriteFile(snapshotOut, img.Bytes(), 0o644); err != nil {
				return errors.Wrap(err, "write snapshot")
			}
			fmt.Printf("Saved %d bytes to %s\n", img.Len(), snapshotOut)
			return nil
		},
	}
	snapshot.Flags().StringVarP(&snapshotOut, "output", "o", "snapshot.jpg", "Output file")
	cmd.AddCommand(snapshot)

	cmd.AddCommand(&cobra.Command{
		Use:   "shutdown",
		Short: "Stop a server started with 'serve --detach'",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := manager().StopServer(); err != nil {
				return err
			}
			fmt.Println("✅ Server stopped")
			return nil
		},
	})

	return cmd
}

func printServerStatus(st server.StatusResponse) {
	p := st.Player
	playing := color.RedString("stopped")
	if p.Playing {
		playing = color.GreenString("playing")
	}
	fmt.Printf("%s %s  uptime %s  version %s\n", playing, color.CyanString(p.Source), st.Uptime, st.Version.Version)
	if p.LastError != "" {
		fmt.Printf("%s %s\n", color.RedString("last error:"), p.LastError)
	}

	rows := []map[string]string{
		{"key": "session", "value": p.SessionID},
		{"key": "variant", "value": p.Variant},
		{"key": "state", "value": p.State},
		{"key": "bytes read", "value": strconv.FormatUint(p.BytesRead, 10)},
		{"key": "units decoded", "value": strconv.FormatUint(p.UnitsDecoded, 10)},
		{"key": "frames", "value": strconv.FormatUint(p.Frames, 10)},
		{"key": "queue", "value": fmt.Sprintf("%d/%d (dropped %d)", p.QueueLen, p.QueueCap, p.QueueDropped)},
		{"key": "gate", "value": fmt.Sprintf("forwarded %d, dropped %d, resets %d", p.Gate.Forwarded, p.Gate.Dropped, p.Gate.Resets)},
		{"key": "size", "value": fmt.Sprintf("%dx%d", p.Width, p.Height)},
	}
	if st.Buttons != nil {
		rows = append(rows, map[string]string{
			"key":   "buttons",
			"value": fmt.Sprintf("running=%t pressed=%d released=%d", st.Buttons.Running, st.Buttons.Pressed, st.Buttons.Released),
		})
	}
	fmt.Println()
	util.RenderTable(os.Stdout, []util.TableColumn{
		{Header: "FIELD", Key: "key"},
		{Header: "VALUE", Key: "value"},
	}, rows)
}
