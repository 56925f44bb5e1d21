//go:build windows

package procgroup

import (
	"os"
	"os/exec"
	"syscall"
)

// SetProcGrp starts cmd in a new process group.
func SetProcGrp(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// Terminate kills p; Windows has no polite signal for console-less children.
func Terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
