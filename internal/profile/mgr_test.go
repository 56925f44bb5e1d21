package profile

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *ProfileManager {
	t.Helper()
	pm := NewProfileManager(filepath.Join(t.TempDir(), "cameras.toml"))
	require.NoError(t, pm.Load())
	return pm
}

func TestAddUseRemove(t *testing.T) {
	pm := newManager(t)

	id, err := pm.Add("Front Door", Profile{Host: "192.168.1.1", Protocol: "1", User: "admin", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "front-door", id)

	cur, p, ok := pm.GetCurrent()
	require.True(t, ok)
	assert.Equal(t, "front-door", cur)
	assert.Equal(t, "http", p.Protocol)
	assert.NotEqual(t, "secret", p.Password)
	pwd, err := p.DecodePassword()
	require.NoError(t, err)
	assert.Equal(t, "secret", pwd)

	_, err = pm.Add("garage", Profile{Host: "10.0.0.9", VideoPort: 41005})
	require.NoError(t, err)
	assert.Equal(t, []string{"front-door", "garage"}, pm.IDs())

	assert.ErrorIs(t, pm.Remove("front-door"), ErrCannotDeleteCurrent)
	require.NoError(t, pm.Use("garage"))
	require.NoError(t, pm.Remove("front-door"))
	assert.True(t, errors.Is(pm.Use("front-door"), ErrProfileNotFound))

	// Persisted
	reloaded := NewProfileManager(pm.path)
	require.NoError(t, reloaded.Load())
	cur, p, ok = reloaded.GetCurrent()
	require.True(t, ok)
	assert.Equal(t, "garage", cur)
	assert.Equal(t, 41005, p.VideoPort)
}

func TestAddValidates(t *testing.T) {
	pm := newManager(t)
	_, err := pm.Add("x", Profile{})
	assert.Error(t, err)
	_, err = pm.Add("x", Profile{Host: "h", Protocol: "sip"})
	assert.Error(t, err)
	assert.ErrorIs(t, pm.Use("x"), ErrNoProfiles)
}

func TestSettings(t *testing.T) {
	p := Profile{Host: "cam.local", Protocol: "rtsp", ButtonPort: 41004}
	s, err := p.Settings()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"camera.host":        "cam.local",
		"camera.protocol":    "rtsp",
		"camera.button_port": 41004,
	}, s)

	pm := newManager(t)
	_, err = pm.Add("c", Profile{Host: "h", User: "admin", Password: "a&b"})
	require.NoError(t, err)
	stored, _ := pm.Get("c")
	s, err = stored.Settings()
	require.NoError(t, err)
	assert.Equal(t, "/videostream.cgi?pwd=a%26b&user=admin", s["camera.http_path"])
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.toml")
	require.NoError(t, os.WriteFile(path, []byte("current = [broken"), 0o600))
	assert.Error(t, NewProfileManager(path).Load())
}

func TestListJSON(t *testing.T) {
	pm := newManager(t)
	_, err := pm.Add("a", Profile{Host: "h1"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, pm.List(&buf, "json"))
	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0]["id"])
	assert.Equal(t, true, out[0]["current"])

	buf.Reset()
	require.NoError(t, pm.List(&buf, "table"))
	assert.Contains(t, buf.String(), "h1")
}
