//go:build !windows

// Package procgroup detaches helper subprocesses from the terminal's process
// group so an interactive Ctrl-C reaches only camstream, which then shuts
// them down in order.
package procgroup

import (
	"os"
	"os/exec"
	"syscall"
)

// SetProcGrp starts cmd in a new process group.
func SetProcGrp(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// Terminate asks the process group led by p to exit.
func Terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := syscall.Kill(-p.Pid, syscall.SIGTERM); err != nil {
		return p.Signal(syscall.SIGTERM)
	}
	return nil
}
