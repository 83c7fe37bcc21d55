package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// interruptGrace is how long an interrupted tree may take to exit on its own
const interruptGrace = 2 * time.Second

// terminateProcess interrupts the process group, waits briefly, then kills
// whatever is left of the tree rooted at p.
func terminateProcess(ctx context.Context, p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	if err := interruptProcess(p.Pid); err != nil {
		slog.DebugContext(ctx, "interrupt process group", "pid", p.Pid, "error", err)
	}

	deadline := time.Now().Add(interruptGrace)
	for time.Now().Before(deadline) {
		alive, err := process.PidExists(int32(p.Pid))
		if err != nil || !alive {
			return os.ErrProcessDone
		}
		time.Sleep(100 * time.Millisecond)
	}
	return killTree(ctx, int32(p.Pid))
}

// killTree kills pid and all of its descendants, children first
func killTree(ctx context.Context, pid int32) error {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return os.ErrProcessDone
		}
		return err
	}
	children, err := proc.ChildrenWithContext(ctx)
	if err != nil && !errors.Is(err, process.ErrorNoChildren) {
		slog.DebugContext(ctx, "list child processes", "pid", pid, "error", err)
	}
	for _, child := range children {
		if err := killTree(ctx, child.Pid); err != nil && !errors.Is(err, os.ErrProcessDone) {
			slog.WarnContext(ctx, "kill child process", "pid", child.Pid, "error", err)
		}
	}
	return proc.KillWithContext(ctx)
}
