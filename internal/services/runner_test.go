package services

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
}

func TestRunProcessCapturesOutput(t *testing.T) {
	requireShell(t)

	var mu sync.Mutex
	var lines []string
	res := RunProcess(testContext(t), Command{
		Path:    "/bin/sh",
		Args:    []string{"-c", `printf 'one\ntwo\r50%%\rdone\n' && echo err >&2 && exit 3`},
		Timeout: 10 * time.Second,
	}, func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	})

	require.Equal(t, 3, res.ExitCode)
	require.False(t, res.TimedOut)
	require.False(t, res.Cancelled)
	require.Error(t, res.Err)
	require.Equal(t, []string{"one", "two", "50%", "done", "err"}, lines)
	require.Equal(t, "one\ntwo\n50%\ndone\nerr\n", res.Output)
	require.False(t, res.Truncated)
}

func TestRunProcessTimeout(t *testing.T) {
	requireShell(t)

	started := time.Now()
	res := RunProcess(testContext(t), Command{
		Path:    "/bin/sh",
		Args:    []string{"-c", "sleep 30"},
		Timeout: 200 * time.Millisecond,
	}, nil)

	require.True(t, res.TimedOut)
	require.Less(t, time.Since(started), 10*time.Second)
}

func TestRunProcessCancel(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithCancel(testContext(t))
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	res := RunProcess(ctx, Command{Path: "/bin/sh", Args: []string{"-c", "sleep 30"}, Timeout: time.Minute}, nil)
	require.True(t, res.Cancelled)
	require.False(t, res.TimedOut)
}

func TestRunProcessMissingBinary(t *testing.T) {
	res := RunProcess(testContext(t), Command{Path: "/nonexistent/autoservice-tool", Timeout: time.Second}, nil)
	require.Error(t, res.Err)
	require.Equal(t, -1, res.ExitCode)
}

func TestTailBuffer(t *testing.T) {
	t.Parallel()

	tb := newTailBuffer(10)
	tb.WriteLine("abc")
	out, truncated := tb.String()
	require.Equal(t, "abc\n", out)
	require.False(t, truncated)

	tb.WriteLine("defg")
	tb.WriteLine("hij")
	out, truncated = tb.String()
	require.True(t, truncated)
	require.LessOrEqual(t, len(out), 10)
	require.True(t, strings.HasSuffix(out, "hij\n"))
	require.False(t, strings.HasPrefix(out, "bc"), "tail starts at a line boundary")
}

func TestTailBufferKeepsEndOfLongLine(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    []string
	}{
		{"single line", []string{"0123456789abcdef"}},
		{"after short lines", []string{"ab", "cd", "0123456789abcdef"}},
	}
	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			tb := newTailBuffer(10)
			for _, line := range tt.given {
				tb.WriteLine(line)
			}
			out, truncated := tb.String()
			require.True(t, truncated)
			require.Equal(t, "789abcdef\n", out)
		})
	}
}

func TestScanLinesCR(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		given   string
		advance int
		token   string
	}{
		{"a\nb", 2, "a"},
		{"a\r\nb", 3, "a"},
		{"a\rb", 2, "a"},
	}
	for _, tt := range testCases {
		advance, token, err := scanLinesCR([]byte(tt.given), false)
		require.NoError(t, err)
		require.Equal(t, tt.advance, advance, tt.given)
		require.Equal(t, tt.token, string(token), tt.given)
	}

	advance, token, err := scanLinesCR([]byte("tail"), true)
	require.NoError(t, err)
	require.Equal(t, 4, advance)
	require.Equal(t, "tail", string(token))
}
