package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Rizzu97/app/internal/version"
)

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if outputFormat == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Printf("Version:    %s\n", info.Version)
			fmt.Printf("Build time: %s\n", info.FormattedTime)
			fmt.Printf("Commit:     %s\n", info.GitCommit)
			fmt.Printf("Go version: %s\n", info.GoVersion)
			fmt.Printf("Platform:   %s/%s\n", info.OS, info.Arch)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (json or text)")
	return cmd
}
