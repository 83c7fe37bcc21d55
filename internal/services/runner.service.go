package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	// maxOutputBytes bounds the raw output kept for a single service result
	maxOutputBytes = 64 * 1024
	maxLineBytes   = 1024 * 1024
	waitDelay      = 5 * time.Second
)

// Command describes a child process to run
type Command struct {
	Path    string
	Args    []string
	Env     []string
	Timeout time.Duration
}

// ProcessResult is the outcome of RunProcess
type ProcessResult struct {
	Started   time.Time
	Stopped   time.Time
	ExitCode  int
	Output    string
	Truncated bool
	TimedOut  bool
	Cancelled bool
	Err       error
}

// LineFunc receives every non-empty line of combined output
type LineFunc func(line string)

// RunProcess runs cmd to completion and returns the tail of its combined
// stdout and stderr. Lines are split on both \n and \r so tools that redraw a
// progress counter in place still produce a line per update.
// Cancelling ctx or hitting the timeout terminates the whole process tree.
func RunProcess(ctx context.Context, cmd Command, onLine LineFunc) ProcessResult {
	res := ProcessResult{ExitCode: -1}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	} else {
		slog.WarnContext(ctx, "command has no timeout", "path", cmd.Path)
	}

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	setProcessGroup(c)
	c.Cancel = func() error {
		return terminateProcess(context.WithoutCancel(ctx), c.Process)
	}
	c.WaitDelay = waitDelay

	pr, pw := io.Pipe()
	c.Stdout = pw
	c.Stderr = pw

	tail := newTailBuffer(maxOutputBytes)
	res.Started = time.Now().UTC()
	if err := c.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		res.Stopped = time.Now().UTC()
		res.Err = err
		return res
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		scanner.Split(scanLinesCR)
		for scanner.Scan() {
			// tools writing UTF-16 to a pipe leave NUL bytes behind
			line := strings.TrimRight(strings.ReplaceAll(scanner.Text(), "\x00", ""), " \t")
			if line == "" {
				continue
			}
			tail.WriteLine(line)
			if onLine != nil {
				onLine(line)
			}
		}
		if err := scanner.Err(); err != nil {
			slog.WarnContext(ctx, "reading process output", "path", cmd.Path, "error", err)
			_, _ = io.Copy(io.Discard, pr)
		}
	}()

	err := c.Wait()
	_ = pw.Close()
	<-done

	res.Stopped = time.Now().UTC()
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}
	res.Output, res.Truncated = tail.String()
	res.Err = err
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
	case errors.Is(ctx.Err(), context.Canceled):
		res.Cancelled = true
	}
	return res
}

// scanLinesCR is bufio.ScanLines that also treats a lone \r as a line break
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		j := i + 1
		if data[i] == '\r' && j < len(data) && data[j] == '\n' {
			j++
		}
		return j, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last max bytes of written lines
type tailBuffer struct {
	mu        sync.Mutex
	max       int
	buf       []byte
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if over := len(t.buf) - t.max; over > 0 {
		// cut at the next line boundary so the kept tail starts with a full
		// line; a line longer than max keeps its last max bytes
		cut := over
		if i := bytes.IndexByte(t.buf[over:], '\n'); i >= 0 && over+i+1 < len(t.buf) {
			cut = over + i + 1
		}
		t.buf = append(t.buf[:0], t.buf[cut:]...)
		t.truncated = true
	}
}

func (t *tailBuffer) String() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf), t.truncated
}
