package daemon

import (
	"bytes"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, int) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"playing":true,"variant":"http"}`))
	})
	mux.HandleFunc("POST /api/playback/stop", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not playing", http.StatusConflict)
	})
	mux.HandleFunc("GET /api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return srv, port
}

func TestManagerTalksToServer(t *testing.T) {
	_, port := newTestServer(t)
	m := NewManager(port, t.TempDir())

	assert.True(t, m.IsServerRunning())

	var status struct {
		Playing bool   `json:"playing"`
		Variant string `json:"variant"`
	}
	require.NoError(t, m.CallAPI(http.MethodGet, "/api/status", nil, &status))
	assert.True(t, status.Playing)
	assert.Equal(t, "http", status.Variant)

	var img bytes.Buffer
	require.NoError(t, m.CallAPI(http.MethodGet, "/api/snapshot", nil, &img))
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xD9}, img.Bytes())

	err := m.CallAPI(http.MethodPost, "/api/playback/stop", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

func TestManagerNotRunning(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m := NewManager(port, t.TempDir())
	assert.False(t, m.IsServerRunning())

	err = m.CallAPI(http.MethodGet, "/api/status", nil, nil)
	assert.True(t, errors.Is(err, ErrNotRunning))
	assert.True(t, errors.Is(m.StopServer(), ErrNotRunning))
}

func TestManagerRemovesStalePIDFile(t *testing.T) {
	home := t.TempDir()
	m := NewManager(1, home)
	require.NoError(t, os.WriteFile(m.pidFile(), []byte("999999999"), 0o644))
	assert.Equal(t, 999999999, m.PID())

	assert.False(t, m.IsServerRunning())
	assert.Equal(t, 0, m.PID())
}
