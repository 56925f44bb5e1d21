package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rizzu97/app/config"
	"github.com/Rizzu97/app/internal/util"
	"github.com/Rizzu97/app/internal/version"
)

var (
	verbose    bool
	configFile string
	cameraName string

	rootCmd = &cobra.Command{
		Use:   "camstream",
		Short: "IP camera H.264 ingest tool",
		Long: `camstream connects to an IP camera over TCP, splits its H.264 Annex-B stream into NAL units, gates them until the decoder can start, and hands them to a decoder. It also listens for the camera's hardware button.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.InitLogger(verbose || util.IsVerbose())
			if configFile != "" {
				if err := config.Load(configFile); err != nil {
					return err
				}
			}
			if f := config.ConfigFileUsed(); f != "" {
				util.GetLogger().Debug("Using config file", "path", f)
			}
			if cmd.HasParent() && cmd.Parent().Name() == "camera" {
				return nil
			}
			return applyCameraProfile(cmd, cameraName)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("version").Changed {
				info := version.Get()
				fmt.Printf("camstream version %s, build %s\n", info.Version, info.GitCommit)
				return nil
			}
			return cmd.Help()
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./config.yaml or $XDG_CONFIG_HOME/camstream/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&cameraName, "camera", "c", "", "Camera profile to use (default: current profile)")
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")

	rootCmd.AddCommand(NewPlayCommand())
	rootCmd.AddCommand(NewButtonsCommand())
	rootCmd.AddCommand(NewPingCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewCtlCommand())
	rootCmd.AddCommand(NewCameraCommand())
	rootCmd.AddCommand(NewVersionCommand())
}
