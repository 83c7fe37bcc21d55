package services

import (
	"autoservice/internal/models"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOutputParsers(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		parse    OutputParser
		output   string
		exitCode int
		opts     models.OptionValues
		then     models.ResultStatus
		finding  string
	}{
		{"ping linux ok", parsePing,
			"4 packets transmitted, 4 received, 0% packet loss, time 3004ms\nrtt min/avg/max/mdev = 9.1/10.5/12.0/1.1 ms",
			0, models.OptionValues{"host": "8.8.8.8"}, models.ResultSuccess, "8.8.8.8 reachable"},
		{"ping windows loss", parsePing,
			"Packets: Sent = 4, Received = 3, Lost = 1 (25% loss),\nMinimum = 10ms, Maximum = 12ms, Average = 11ms",
			0, models.OptionValues{"host": "1.1.1.1"}, models.ResultWarning, "1.1.1.1: 25% packet loss"},
		{"ping unreachable", parsePing, "4 packets transmitted, 0 received, 100% packet loss",
			1, models.OptionValues{"host": "10.0.0.1"}, models.ResultFailure, "10.0.0.1 unreachable"},
		{"ping no statistics", parsePing, "ping: unknown host", 2,
			models.OptionValues{"host": "nowhere"}, models.ResultFailure, "ping nowhere failed with no statistics"},
		{"smart passed", parseSmart, "SMART overall-health self-assessment test result: PASSED\n" +
			"  5 Reallocated_Sector_Ct   0x0033   100   100   010    Pre-fail  Always       -       0\n",
			0, models.OptionValues{"device": "/dev/sda"}, models.ResultSuccess, "/dev/sda: SMART health PASSED"},
		{"smart reallocated", parseSmart, "SMART overall-health self-assessment test result: PASSED\n" +
			"  5 Reallocated_Sector_Ct   0x0033   100   100   010    Pre-fail  Always       -       12\n",
			0, models.OptionValues{"device": "/dev/sda"}, models.ResultWarning, "/dev/sda: SMART health PASSED"},
		{"smart failed", parseSmart, "SMART overall-health self-assessment test result: FAILED!",
			0, models.OptionValues{"device": "/dev/sdb"}, models.ResultFailure, "/dev/sdb: SMART health FAILED"},
		{"chkdsk clean", parseChkdsk, "Windows has scanned the file system and found no problems.", 0,
			nil, models.ResultSuccess, "file system scan found no problems"},
		{"chkdsk problems", parseChkdsk, "Windows has scanned the file system and found problems.", 3,
			nil, models.ResultWarning, "file system problems found, run chkdsk /f to repair"},
		{"sfc clean", parseSFC, "Windows Resource Protection did not find any integrity violations.", 0,
			nil, models.ResultSuccess, "no integrity violations"},
		{"sfc unable", parseSFC, "Windows Resource Protection found corrupt files but was unable to fix some of them.", 0,
			nil, models.ResultFailure, "corrupt system files found that could not be repaired"},
		{"dism healthy", parseDISM, "No component store corruption detected.", 0,
			nil, models.ResultSuccess, "component store healthy"},
		{"dism error", parseDISM, "Error: 0x800f081f\nThe source files could not be found.", 1,
			nil, models.ResultFailure, "DISM error 0x800f081f"},
		{"defender threats", parseDefender, "Scan finished. found 2 threats.", 2,
			nil, models.ResultWarning, "2 threats detected"},
		{"defender clean", parseDefender, "Scan starting...\nScan finished.", 0,
			nil, models.ResultSuccess, "no threats found"},
		{"winsat", parseWinSAT, "> Disk  Sequential 64.0 Read                   512.33 MB/s          8.1", 0,
			nil, models.ResultSuccess, "Sequential 64.0 Read: 512.33 MB/s"},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			status, findings := tt.parse(tt.output, tt.exitCode, tt.opts)
			require.Equal(t, tt.then, status)
			require.NotEmpty(t, findings)
			require.Equal(t, tt.finding, findings[0].Message)
		})
	}
}

func TestParsersLeaveUnknownOutputToExitCode(t *testing.T) {
	t.Parallel()

	status, findings := parseSFC("something unexpected", 1, nil)
	require.Empty(t, status)
	require.Empty(t, findings)

	status, _ = parseWinSAT("", 0, nil)
	require.Empty(t, status)
}

func TestArgsBuilders(t *testing.T) {
	t.Parallel()

	args, err := pingArgs(models.OptionValues{"host": "example.com", "count": 4})
	require.NoError(t, err)
	require.Contains(t, args, "example.com")
	require.Contains(t, args, "4")

	for _, host := range []string{"", "-f", "evil.com; rm -rf /", "a b"} {
		_, err := pingArgs(models.OptionValues{"host": host, "count": 4})
		require.ErrorIs(t, err, ErrInvalidOption, host)
	}

	letter, err := driveLetter(`d:\`)
	require.NoError(t, err)
	require.Equal(t, "D", letter)
	_, err = driveLetter("C:/Windows")
	require.ErrorIs(t, err, ErrInvalidOption)

	_, err = heavyLoadArgs(models.OptionValues{"duration_minutes": 5})
	require.ErrorIs(t, err, ErrInvalidOption)
	args, err = heavyLoadArgs(models.OptionValues{"stress_cpu": true, "duration_minutes": 5})
	require.NoError(t, err)
	require.Equal(t, []string{"/CPU", "/DURATION", "5", "/AUTOEXIT", "/START"}, args)
}

func TestProgressParsers(t *testing.T) {
	t.Parallel()

	ping := pingProgress(models.OptionValues{"count": 4})
	_, ok := ping("PING 8.8.8.8 (8.8.8.8) 56(84) bytes of data.")
	require.False(t, ok)
	pct, ok := ping("64 bytes from 8.8.8.8: icmp_seq=1 ttl=117 time=10.2 ms")
	require.True(t, ok)
	require.Equal(t, 25.0, pct)

	var parser ProgressParser
	for _, reg := range BuiltinCatalog(nil) {
		if reg.Definition.ID == "dism_health" {
			parser = reg.Adapter.(*ExecAdapter).Progress(nil)
		}
	}
	require.NotNil(t, parser)
	pct, ok = parser("[==========================62.3%=====      ]")
	require.True(t, ok)
	require.InDelta(t, 62.3, pct, 1e-9)

	heavy := heavyLoadProgress(models.OptionValues{"duration_minutes": 0})
	_, ok = heavy("tick")
	require.False(t, ok)
}

func TestExecAdapterRun(t *testing.T) {
	requireShell(t)

	locator, err := NewProgramLocator([]models.RequiredProgramDef{{ID: "sh", Name: "Shell", Executable: "sh"}}, programPaths{"sh": "/bin/sh"})
	require.NoError(t, err)

	var mu sync.Mutex
	var updates []models.ProgressUpdate
	adapter := &ExecAdapter{
		ServiceID: "shell",
		Program:   "sh",
		Locator:   locator,
		Args: func(opts models.OptionValues) ([]string, error) {
			return []string{"-c", opts.String("script")}, nil
		},
		Progress: percentProgress(regexp.MustCompile(`^(\d{1,3})%$`)),
		Timeout:  10 * time.Second,
	}
	require.Equal(t, []string{"sh"}, adapter.Requirements())

	res := adapter.Run(testContext(t), models.OptionValues{"script": "echo 50%; echo 100%"}, func(u models.ProgressUpdate) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
	})
	require.Equal(t, models.ResultSuccess, res.Status)
	require.Equal(t, "50%\n100%\n", res.Output)
	require.Len(t, updates, 2)
	require.NotNil(t, updates[1].Percent)
	require.Equal(t, 100.0, *updates[1].Percent)

	res = adapter.Run(testContext(t), models.OptionValues{"script": "exit 4"}, nil)
	require.Equal(t, models.ResultFailure, res.Status)
	require.Equal(t, "exited with code 4", res.Findings[0].Message)

	adapter.Timeout = 100 * time.Millisecond
	res = adapter.Run(testContext(t), models.OptionValues{"script": "sleep 20"}, nil)
	require.Equal(t, models.ResultFailure, res.Status)
	require.Contains(t, res.Findings[0].Message, "timed out")
}
