//go:build !windows

package daemon

import (
	"os/exec"
	"syscall"
)

func terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

func isProcessAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// setSysProcAttr detaches the child into its own session
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
