//go:build !unix && !windows

package services

import "os/exec"

func setProcessGroup(*exec.Cmd) {}

func interruptProcess(int) error { return nil }
