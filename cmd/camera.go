package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Rizzu97/app/config"
	"github.com/Rizzu97/app/internal/profile"
)

// profileKeyFlags names the flag that overrides each profile setting.
var profileKeyFlags = map[string]string{
	"camera.host":        "host",
	"camera.video_port":  "port",
	"camera.protocol":    "protocol",
	"camera.button_port": "port",
}

func loadProfiles() (*profile.ProfileManager, error) {
	pm := profile.NewProfileManager(config.GetProfilePath())
	if err := pm.Load(); err != nil {
		return nil, err
	}
	return pm, nil
}

// applyCameraProfile copies the selected or current camera profile into the
// config, except for settings the command line overrides.
func applyCameraProfile(cmd *cobra.Command, name string) error {
	pm, err := loadProfiles()
	if err != nil {
		return err
	}

	var (
		p  profile.Profile
		ok bool
	)
	if name != "" {
		if p, ok = pm.Get(name); !ok {
			return errors.Wrap(profile.ErrProfileNotFound, name)
		}
	} else if _, p, ok = pm.GetCurrent(); !ok {
		return nil
	}

	settings, err := p.Settings()
	if err != nil {
		return err
	}
	for key, value := range settings {
		flag := profileKeyFlags[key]
		if key == "camera.button_port" && cmd.Name() != "buttons" {
			flag = ""
		} else if key == "camera.video_port" && cmd.Name() == "buttons" {
			flag = ""
		}
		if f := cmd.Flags().Lookup(flag); flag != "" && f != nil && f.Changed {
			continue
		}
		config.Set(key, value)
	}
	return nil
}

// NewCameraCommand creates the camera profile command
func NewCameraCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "camera",
		Short: "Manage camera profiles",
		Long:  `Store named cameras and pick the one other commands connect to. The current profile is used unless --camera selects another.`,
	}

	var add profile.Profile
	addCmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add or replace a camera profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := loadProfiles()
			if err != nil {
				return err
			}
			id, err := pm.Add(args[0], add)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Camera %s saved\n", color.CyanString(id))
			return nil
		},
		Example: `  camstream camera add front --host 192.168.1.1
  camstream camera add garage --host 10.0.0.9 --protocol http --user admin --password admin`,
	}
	flags := addCmd.Flags()
	flags.StringVar(&add.Host, "host", "", "Camera address")
	flags.StringVar(&add.Protocol, "protocol", "", "Initial protocol: standard, http, rtsp, onvif")
	flags.IntVar(&add.VideoPort, "video-port", 0, "Video port for the standard protocol")
	flags.IntVar(&add.ButtonPort, "button-port", 0, "Button listener port")
	flags.StringVar(&add.User, "user", "", "User for the HTTP variant")
	flags.StringVar(&add.Password, "password", "", "Password for the HTTP variant")
	addCmd.MarkFlagRequired("host")
	cmd.AddCommand(addCmd)

	var format string
	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List camera profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := loadProfiles()
			if err != nil {
				return err
			}
			return pm.List(os.Stdout, format)
		},
	}
	listCmd.Flags().StringVarP(&format, "output", "o", "table", "Output format (table or json)")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "use NAME",
		Short: "Make a camera profile current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := loadProfiles()
			if err != nil {
				return err
			}
			if err := pm.Use(args[0]); err != nil {
				return err
			}
			fmt.Printf("Current camera: %s\n", color.CyanString(args[0]))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a camera profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := loadProfiles()
			if err != nil {
				return err
			}
			return pm.Remove(args[0])
		},
	})

	return cmd
}
