package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rizzu97/app/config"
	"github.com/Rizzu97/app/internal/camera/player"
	"github.com/Rizzu97/app/internal/profile"
)

func TestRootRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"play", "buttons", "ping", "serve", "ctl", "camera", "version"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestCameraFlagsExist(t *testing.T) {
	for _, c := range []string{"play", "serve"} {
		sub, _, err := rootCmd.Find([]string{c})
		require.NoError(t, err)
		for name := range cameraFlagKeys {
			assert.NotNil(t, sub.Flags().Lookup(name), "%s --%s", c, name)
		}
		assert.NotNil(t, sub.Flags().Lookup("record"))
	}
}

func TestStatusLineNonTTY(t *testing.T) {
	sp := &statusPrinter{}
	line := sp.line(player.Status{
		Playing:      true,
		State:        "streaming",
		Variant:      "standard",
		Source:       "tcp://127.0.0.1:40005 (standard)",
		UnitsEmitted: 12,
		QueueCap:     50,
	}, 3)
	assert.Contains(t, line, "streaming")
	assert.Contains(t, line, "units=12")
	assert.Contains(t, line, "frames=3")
	assert.Contains(t, line, "queue=0/50")
}

func TestVersionCommand(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		cmd := NewVersionCommand()
		cmd.SetArgs([]string{"-o", format})
		require.NoError(t, cmd.Execute())
	}
}

func TestApplyCameraProfileRespectsFlags(t *testing.T) {
	t.Setenv("CAMSTREAM_HOME", t.TempDir())

	pm, err := loadProfiles()
	require.NoError(t, err)
	_, err = pm.Add("yard", profile.Profile{Host: "10.1.1.1", Protocol: "http", VideoPort: 41005})
	require.NoError(t, err)

	cmd := NewPlayCommand()
	require.NoError(t, cmd.Flags().Set("host", "10.9.9.9"))
	require.NoError(t, applyCameraProfile(cmd, "yard"))

	assert.Equal(t, 41005, config.GetVideoPort())
	v, err := config.GetProtocol()
	require.NoError(t, err)
	assert.Equal(t, "http", v.String())
	assert.NotEqual(t, "10.1.1.1", config.GetCameraHost())

	assert.Error(t, applyCameraProfile(cmd, "missing"))

	config.Set("camera.video_port", 40005)
	config.Set("camera.protocol", "standard")
}

func TestBareRecordFlagUsesRecordingsDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CAMSTREAM_HOME", home)
	t.Cleanup(func() {
		config.Set("decoder.kind", "none")
		config.Set("decoder.record_path", "")
	})

	cmd := NewPlayCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--record"}))
	require.NoError(t, bindCameraFlags(cmd))

	opts := config.Decoder()
	assert.Equal(t, "record", string(opts.Kind))
	assert.Equal(t, filepath.Join(home, "recordings"), filepath.Dir(opts.RecordPath))
	assert.Equal(t, ".h264", filepath.Ext(opts.RecordPath))
	assert.DirExists(t, filepath.Join(home, "recordings"))

	cmd = NewPlayCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--record=" + filepath.Join(home, "cam.h264")}))
	require.NoError(t, bindCameraFlags(cmd))
	assert.Equal(t, filepath.Join(home, "cam.h264"), config.Decoder().RecordPath)
}

func TestRecordPath(t *testing.T) {
	now := time.Date(2024, 3, 5, 6, 7, 8, 0, time.UTC)
	assert.Equal(t, "out.h264", recordPath("out.h264", now))
	assert.Equal(t, "20240305-060708.h264", filepath.Base(recordPath(recordDefault, now)))
	assert.Equal(t, "20240305-060708.h264", filepath.Base(recordPath("", now)))
}

func TestPlayRejectsPositionalArgs(t *testing.T) {
	cmd := NewPlayCommand()
	assert.Error(t, cmd.Args(cmd, []string{"cam.h264"}))
}
