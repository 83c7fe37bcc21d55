//go:build unix

package services

import (
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// interruptProcess asks the process group to stop before the tree is killed
func interruptProcess(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
