package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Rizzu97/app/config"
	"github.com/Rizzu97/app/internal/camera/button"
	"github.com/Rizzu97/app/internal/util"
)

// NewButtonsCommand creates the buttons command
func NewButtonsCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "buttons",
		Short: "Listen for the camera's hardware button",
		Long:  `Accept button connections from the camera and print each press and release. The camera connects to this host, so the listener binds on all interfaces.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == 0 {
				port = config.GetButtonPort()
			}
			return runButtons(cmd, port)
		},
		Example: `  # Listen on the configured button port
  camstream buttons

  # Listen on another port
  camstream buttons -p 41004`,
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, fmt.Sprintf("Listening port (default %d)", button.DefaultPort))
	return cmd
}

func runButtons(cmd *cobra.Command, port int) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	srv := button.NewServer(port, util.GetLogger())
	err := srv.Start(button.Handlers{
		OnPressed: func() {
			fmt.Printf("%s %s\n", time.Now().Format("15:04:05.000"), color.GreenString("● pressed"))
		},
		OnReleased: func() {
			fmt.Printf("%s %s\n", time.Now().Format("15:04:05.000"), color.New(color.Faint).Sprint("○ released"))
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", color.GreenString("Listening for buttons on"), color.CyanString(srv.Addr().String()))
	fmt.Println(color.New(color.Faint).Sprint("Press Ctrl+C to stop..."))

	<-ctx.Done()
	if err := srv.Stop(); err != nil {
		return err
	}
	pressed, released := srv.Counts()
	fmt.Printf("\npressed=%d released=%d\n", pressed, released)
	return nil
}
