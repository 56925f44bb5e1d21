package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Rizzu97/app/internal/camera/decoder"
	"github.com/Rizzu97/app/internal/camera/player"
	"github.com/Rizzu97/app/internal/camera/protocol"
)

const envPrefix = "CAMSTREAM"

var v *viper.Viper

func init() {
	v = viper.New()
	setDefaults(v)

	// Environment variables: CAMSTREAM_CAMERA_HOST, CAMSTREAM_QUEUE_CAPACITY, ...
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("camstream.home", "CAMSTREAM_HOME")
	v.BindEnv("camera.host", "CAMSTREAM_CAMERA_HOST", "CAMERA_HOST")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Look for config in the following paths
	configPaths := []string{
		".",
		filepath.Join(xdg.ConfigHome, "camstream"),
		"$HOME/.camstream",
		"/etc/camstream",
	}

	for _, path := range configPaths {
		expandedPath := os.ExpandEnv(path)
		v.AddConfigPath(expandedPath)
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
		// Config file not found; ignore error and use defaults
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("camstream.home", filepath.Join(xdg.Home, ".camstream"))

	v.SetDefault("camera.host", "192.168.1.1")
	v.SetDefault("camera.video_port", 40005)
	v.SetDefault("camera.button_port", 40004)
	v.SetDefault("camera.buffer_size", 4096)
	v.SetDefault("camera.protocol", "standard")
	v.SetDefault("camera.http_port", 80)
	v.SetDefault("camera.rtsp_port", 554)
	v.SetDefault("camera.onvif_port", 80)
	v.SetDefault("camera.http_path", "/videostream.cgi?user=admin&pwd=admin")
	v.SetDefault("camera.rtsp_path", "/h264/ch1/main/av_stream")
	v.SetDefault("camera.connect_timeout", 5*time.Second)
	v.SetDefault("camera.handshake_delay", time.Second)
	v.SetDefault("camera.idle_timeout", 10*time.Second)
	v.SetDefault("camera.transport", string(player.TransportTCP))
	v.SetDefault("camera.udp_port", 40005)

	v.SetDefault("decoder.kind", string(decoder.KindNone))
	v.SetDefault("decoder.width", 1920)
	v.SetDefault("decoder.height", 1080)
	v.SetDefault("decoder.ffmpeg_path", "ffmpeg")
	v.SetDefault("decoder.record_path", "")

	v.SetDefault("queue.capacity", 50)
	v.SetDefault("demux.max_unit_size", 1000000)
	v.SetDefault("gate.pass_unknown", false)

	v.SetDefault("player.join_timeout", time.Second)
	v.SetDefault("player.poll_interval", 10*time.Millisecond)
	v.SetDefault("player.fallback_after", time.Duration(0))
	v.SetDefault("player.retry_delay", time.Second)
	v.SetDefault("player.max_retry_delay", 30*time.Second)

	v.SetDefault("server.port", 29889)
}

// Load reads an explicit config file, replacing the one found at startup.
func Load(path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	return nil
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	return v.ConfigFileUsed()
}

// BindFlag lets a command line flag override key when it is set.
func BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return errors.Errorf("no flag for %s", key)
	}
	return v.BindPFlag(key, flag)
}

// Set overrides key for the rest of the process.
func Set(key string, value any) {
	v.Set(key, value)
}

// GetHome returns the camstream home directory
func GetHome() string {
	return v.GetString("camstream.home")
}

// GetProfilePath returns the camera profile file
func GetProfilePath() string {
	return filepath.Join(GetHome(), "cameras.toml")
}

// GetRecordingsDir returns where recordings go when no path is given
func GetRecordingsDir() string {
	return filepath.Join(GetHome(), "recordings")
}

// GetCameraHost returns the camera address
func GetCameraHost() string {
	return v.GetString("camera.host")
}

// GetVideoPort returns the standard protocol video port
func GetVideoPort() int {
	return v.GetInt("camera.video_port")
}

// GetButtonPort returns the port the button server listens on
func GetButtonPort() int {
	return v.GetInt("camera.button_port")
}

// GetServerPort returns the monitor server port
func GetServerPort() int {
	return v.GetInt("server.port")
}

// GetProtocol returns the configured initial protocol variant.
func GetProtocol() (protocol.Variant, error) {
	return protocol.ParseVariant(v.GetString("camera.protocol"))
}

// GetFallbackAfter returns the no-video window before switching protocol
func GetFallbackAfter() time.Duration {
	return v.GetDuration("player.fallback_after")
}

// Camera assembles the connection settings.
func Camera() (protocol.Config, error) {
	variant, err := GetProtocol()
	if err != nil {
		return protocol.Config{}, err
	}
	return protocol.Config{
		Host:           GetCameraHost(),
		Variant:        variant,
		VideoPort:      GetVideoPort(),
		HTTPPort:       v.GetInt("camera.http_port"),
		RTSPPort:       v.GetInt("camera.rtsp_port"),
		ONVIFPort:      v.GetInt("camera.onvif_port"),
		HTTPPath:       v.GetString("camera.http_path"),
		RTSPPath:       v.GetString("camera.rtsp_path"),
		BufferSize:     v.GetInt("camera.buffer_size"),
		ConnectTimeout: v.GetDuration("camera.connect_timeout"),
		HandshakeDelay: v.GetDuration("camera.handshake_delay"),
		IdleTimeout:    v.GetDuration("camera.idle_timeout"),
	}, nil
}

// Player assembles the player settings.
func Player() (player.Config, error) {
	pc, err := Camera()
	if err != nil {
		return player.Config{}, err
	}

	transport := player.Transport(strings.ToLower(v.GetString("camera.transport")))
	switch transport {
	case player.TransportTCP, player.TransportUDP:
	default:
		return player.Config{}, errors.Errorf("unknown transport %q", transport)
	}

	cfg := player.DefaultConfig()
	cfg.Protocol = pc
	cfg.Transport = transport
	cfg.UDPAddr = fmt.Sprintf(":%d", v.GetInt("camera.udp_port"))
	cfg.QueueCapacity = v.GetInt("queue.capacity")
	cfg.MaxUnitSize = v.GetInt("demux.max_unit_size")
	cfg.PassUnknown = v.GetBool("gate.pass_unknown")
	cfg.Width = v.GetInt("decoder.width")
	cfg.Height = v.GetInt("decoder.height")
	cfg.JoinTimeout = v.GetDuration("player.join_timeout")
	cfg.PollInterval = v.GetDuration("player.poll_interval")
	return cfg, nil
}

// Supervisor assembles the reconnection settings.
func Supervisor() player.SupervisorConfig {
	cfg := player.DefaultSupervisorConfig()
	cfg.RetryDelay = v.GetDuration("player.retry_delay")
	cfg.MaxRetryDelay = v.GetDuration("player.max_retry_delay")
	cfg.FallbackAfter = GetFallbackAfter()
	return cfg
}

// Decoder assembles the decoder selection.
func Decoder() decoder.Options {
	return decoder.Options{
		Kind:       decoder.Kind(v.GetString("decoder.kind")),
		FFmpegPath: v.GetString("decoder.ffmpeg_path"),
		RecordPath: v.GetString("decoder.record_path"),
	}
}
