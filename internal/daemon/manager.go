// Package daemon runs `camstream serve` in the background and talks to it
// through the monitor API.
package daemon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Rizzu97/app/internal/util"
)

// ErrNotRunning is returned when no background server answers.
var ErrNotRunning = errors.New("camstream server not running")

// Manager handles the background server lifecycle
type Manager struct {
	port int
	url  string
	home string

	client *http.Client
}

// NewManager creates a manager for a server on port whose pid and log files
// live under home.
func NewManager(port int, home string) *Manager {
	return &Manager{
		port:   port,
		url:    fmt.Sprintf("http://localhost:%d", port),
		home:   home,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// URL returns the monitor API base URL.
func (m *Manager) URL() string { return m.url }

// LogFile returns where the background server writes its output.
func (m *Manager) LogFile() string {
	return filepath.Join(m.home, "serve.log")
}

func (m *Manager) pidFile() string {
	return filepath.Join(m.home, "serve.pid")
}

// PID returns the recorded server pid, or 0.
func (m *Manager) PID() int {
	b, err := os.ReadFile(m.pidFile())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0
	}
	return pid
}

// IsServerRunning checks if the server is running
func (m *Manager) IsServerRunning() bool {
	if pid := m.PID(); pid != 0 && !isProcessAlive(pid) {
		// Stale pid file from a crashed server
		os.Remove(m.pidFile())
	}
	return m.checkHTTPHealth()
}

func (m *Manager) checkHTTPHealth() bool {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(m.url + "/api/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StartServer re-executes this binary with args, detached from the terminal,
// and waits until the monitor API answers.
func (m *Manager) StartServer(args []string) (int, error) {
	if m.IsServerRunning() {
		return 0, errors.Errorf("a server already answers on port %d", m.port)
	}
	if err := os.MkdirAll(m.home, 0o755); err != nil {
		return 0, errors.Wrap(err, "failed to create camstream home")
	}

	logFd, err := os.OpenFile(m.LogFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, errors.Wrap(err, "failed to open server log")
	}
	defer logFd.Close()

	exePath, err := os.Executable()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get executable path")
	}

	cmd := exec.Command(exePath, args...)
	cmd.Stdout = logFd
	cmd.Stderr = logFd
	cmd.Env = append(os.Environ(), "CAMSTREAM_DAEMON=1")
	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return 0, errors.Wrap(err, "failed to start server")
	}
	pid := cmd.Process.Pid
	cmd.Process.Release()

	if err := os.WriteFile(m.pidFile(), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		util.GetLogger().Warn("Failed to write pid file", "error", err)
	}

	for range 20 {
		time.Sleep(250 * time.Millisecond)
		if m.checkHTTPHealth() {
			return pid, nil
		}
		if !isProcessAlive(pid) {
			os.Remove(m.pidFile())
			return 0, errors.Errorf("server exited during startup, see %s", m.LogFile())
		}
	}
	return pid, errors.Errorf("server started but not responding on port %d", m.port)
}

// StopServer terminates the background server recorded in the pid file.
func (m *Manager) StopServer() error {
	pid := m.PID()
	if pid == 0 {
		return ErrNotRunning
	}
	defer os.Remove(m.pidFile())

	if !isProcessAlive(pid) {
		return ErrNotRunning
	}
	if err := terminate(pid); err != nil {
		return errors.Wrapf(err, "failed to stop server (pid %d)", pid)
	}

	for range 20 {
		if !isProcessAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.Errorf("server (pid %d) did not exit", pid)
}

// CallAPI makes an API call to the server and decodes a JSON reply into
// result when it is not nil.
func (m *Manager) CallAPI(method, endpoint string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, m.url+endpoint, bodyReader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return errors.Wrap(ErrNotRunning, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return errors.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if result == nil {
		return nil
	}
	if w, ok := result.(io.Writer); ok {
		_, err := io.Copy(w, resp.Body)
		return errors.Wrap(err, "failed to read response")
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
