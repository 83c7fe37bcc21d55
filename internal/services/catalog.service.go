package services

import (
	"autoservice/internal/models"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Program ids of the built-in catalog
const (
	ProgramPing      = "ping"
	ProgramSmartctl  = "smartctl"
	ProgramChkdsk    = "chkdsk"
	ProgramSFC       = "sfc"
	ProgramDISM      = "dism"
	ProgramDefender  = "defender"
	ProgramWinSAT    = "winsat"
	ProgramHeavyLoad = "heavyload"
)

// BuiltinPrograms returns the external programs the built-in services use
func BuiltinPrograms() []models.RequiredProgramDef {
	return []models.RequiredProgramDef{
		{ID: ProgramPing, Name: "Ping", Executable: "ping",
			DefaultPaths: []string{`C:\Windows\System32\PING.EXE`, "/bin/ping", "/usr/bin/ping"}},
		{ID: ProgramSmartctl, Name: "smartmontools", Executable: "smartctl",
			DefaultPaths: []string{`C:\Program Files\smartmontools\bin\smartctl.exe`, "/usr/sbin/smartctl"}},
		{ID: ProgramChkdsk, Name: "Check Disk", Executable: "chkdsk",
			DefaultPaths: []string{`C:\Windows\System32\chkdsk.exe`}},
		{ID: ProgramSFC, Name: "System File Checker", Executable: "sfc",
			DefaultPaths: []string{`C:\Windows\System32\sfc.exe`}},
		{ID: ProgramDISM, Name: "DISM", Executable: "dism",
			DefaultPaths: []string{`C:\Windows\System32\Dism.exe`}},
		{ID: ProgramDefender, Name: "Microsoft Defender", Executable: "MpCmdRun",
			DefaultPaths: []string{`C:\Program Files\Windows Defender\MpCmdRun.exe`}},
		{ID: ProgramWinSAT, Name: "Windows System Assessment Tool", Executable: "winsat",
			DefaultPaths: []string{`C:\Windows\System32\WinSAT.exe`}},
		{ID: ProgramHeavyLoad, Name: "HeavyLoad", Executable: "HeavyLoad",
			DefaultPaths: []string{`C:\Program Files\JAM Software\HeavyLoad\HeavyLoad.exe`}},
	}
}

// BuiltinCatalog returns the built-in service table. Adapters resolve their
// programs through locator.
func BuiltinCatalog(locator ProgramResolver) []Registration {
	return []Registration{
		{
			Definition: models.ServiceDefinition{
				ID: "disk_space", Name: "Disk Space", Category: "diagnostics",
				Description: "Reports used space on every mounted volume",
				Options: models.OptionSchema{
					{Key: "warn_percent", Label: "Warn above (%)", Kind: models.OptionInt, Default: 90, Min: 50, Max: 99},
				},
				Timeout: time.Minute,
			},
			Adapter: AdapterFunc(DiskSpaceCheck),
		},
		{
			Definition: models.ServiceDefinition{
				ID: "ping_test", Name: "Ping Test", Category: "diagnostics",
				Description: "Checks network reachability and latency",
				Options: models.OptionSchema{
					{Key: "host", Label: "Host", Kind: models.OptionText, Default: "8.8.8.8", MaxLength: 253},
					{Key: "count", Label: "Echo requests", Kind: models.OptionInt, Default: 4, Min: 1, Max: 100},
				},
				Timeout: 2 * time.Minute,
			},
			Adapter: &ExecAdapter{
				ServiceID: "ping_test", Program: ProgramPing, Locator: locator,
				Args: pingArgs, Progress: pingProgress, Parse: parsePing,
				TimeoutFor: func(opts models.OptionValues) time.Duration {
					return time.Duration(opts.Int("count"))*2*time.Second + 30*time.Second
				},
			},
			Validate: argsValid(pingArgs),
		},
		{
			Definition: models.ServiceDefinition{
				ID: "smart_check", Name: "SMART Health", Category: "diagnostics",
				Description: "Reads drive SMART health and reallocated sector counts",
				Options: models.OptionSchema{
					{Key: "device", Label: "Device", Kind: models.OptionText, Default: "/dev/sda", MaxLength: 64},
				},
				Timeout: 2 * time.Minute,
			},
			Adapter: &ExecAdapter{
				ServiceID: "smart_check", Program: ProgramSmartctl, Locator: locator,
				Args: func(opts models.OptionValues) ([]string, error) {
					return []string{"-H", "-A", opts.String("device")}, nil
				},
				Parse:   parseSmart,
				Timeout: 2 * time.Minute,
			},
		},
		{
			Definition: models.ServiceDefinition{
				ID: "chkdsk_scan", Name: "Check Disk", Category: "repair",
				Description: "Read-only file system scan of a volume",
				Options: models.OptionSchema{
					{Key: "drive", Label: "Drive", Kind: models.OptionText, Default: "C:", MaxLength: 3},
				},
				Timeout: 2 * time.Hour,
			},
			Adapter: &ExecAdapter{
				ServiceID: "chkdsk_scan", Program: ProgramChkdsk, Locator: locator,
				Args: func(opts models.OptionValues) ([]string, error) {
					drive, err := driveLetter(opts.String("drive"))
					if err != nil {
						return nil, err
					}
					return []string{drive + ":", "/scan"}, nil
				},
				Progress: percentProgress(regexp.MustCompile(`(\d{1,3}) percent complete`)),
				Parse:    parseChkdsk,
				Timeout:  2 * time.Hour,
			},
			Validate: validDrive,
		},
		{
			Definition: models.ServiceDefinition{
				ID: "sfc_scan", Name: "System File Checker", Category: "repair",
				Description: "Verifies and repairs protected system files",
				Timeout:     2 * time.Hour,
			},
			Adapter: &ExecAdapter{
				ServiceID: "sfc_scan", Program: ProgramSFC, Locator: locator,
				Args: func(models.OptionValues) ([]string, error) {
					return []string{"/scannow"}, nil
				},
				Progress: percentProgress(regexp.MustCompile(`Verification (\d{1,3})% complete`)),
				Parse:    parseSFC,
				Timeout:  2 * time.Hour,
			},
		},
		{
			Definition: models.ServiceDefinition{
				ID: "dism_health", Name: "DISM Image Health", Category: "repair",
				Description: "Checks or restores the Windows component store",
				Options: models.OptionSchema{
					{Key: "mode", Label: "Mode", Kind: models.OptionSelect, Default: "scan",
						Choices: []string{"check", "scan", "restore"}},
				},
				Timeout: 2 * time.Hour,
			},
			Adapter: &ExecAdapter{
				ServiceID: "dism_health", Program: ProgramDISM, Locator: locator,
				Args: func(opts models.OptionValues) ([]string, error) {
					flag := map[string]string{
						"check":   "/CheckHealth",
						"scan":    "/ScanHealth",
						"restore": "/RestoreHealth",
					}[opts.String("mode")]
					return []string{"/Online", "/Cleanup-Image", flag}, nil
				},
				Progress: percentProgress(regexp.MustCompile(`\[[= ]*(\d{1,3}(?:\.\d+)?)%`)),
				Parse:    parseDISM,
				Timeout:  2 * time.Hour,
			},
		},
		{
			Definition: models.ServiceDefinition{
				ID: "defender_scan", Name: "Defender Scan", Category: "security",
				Description: "Runs a Microsoft Defender malware scan",
				Options: models.OptionSchema{
					{Key: "scan_type", Label: "Scan type", Kind: models.OptionSelect, Default: "quick",
						Choices: []string{"quick", "full"}},
				},
				Timeout: 6 * time.Hour,
			},
			Adapter: &ExecAdapter{
				ServiceID: "defender_scan", Program: ProgramDefender, Locator: locator,
				Args: func(opts models.OptionValues) ([]string, error) {
					scanType := "1"
					if opts.String("scan_type") == "full" {
						scanType = "2"
					}
					return []string{"-Scan", "-ScanType", scanType}, nil
				},
				Parse: parseDefender,
				TimeoutFor: func(opts models.OptionValues) time.Duration {
					if opts.String("scan_type") == "full" {
						return 6 * time.Hour
					}
					return time.Hour
				},
			},
		},
		{
			Definition: models.ServiceDefinition{
				ID: "winsat_disk", Name: "Disk Benchmark", Category: "benchmark",
				Description: "Measures sequential and random disk throughput with WinSAT",
				Options: models.OptionSchema{
					{Key: "drive", Label: "Drive", Kind: models.OptionText, Default: "C:", MaxLength: 3},
				},
				Timeout: 30 * time.Minute,
			},
			Adapter: &ExecAdapter{
				ServiceID: "winsat_disk", Program: ProgramWinSAT, Locator: locator,
				Args: func(opts models.OptionValues) ([]string, error) {
					drive, err := driveLetter(opts.String("drive"))
					if err != nil {
						return nil, err
					}
					return []string{"disk", "-drive", strings.ToLower(drive)}, nil
				},
				Parse:   parseWinSAT,
				Timeout: 30 * time.Minute,
			},
			Validate: validDrive,
		},
		{
			Definition: models.ServiceDefinition{
				ID: "heavyload_stress", Name: "Stress Test", Category: "stress",
				Description: "Loads CPU, memory and GPU with HeavyLoad for a fixed time",
				Options: models.OptionSchema{
					{Key: "duration_minutes", Label: "Duration (minutes)", Kind: models.OptionInt, Default: 5, Min: 1, Max: 120},
					{Key: "stress_cpu", Label: "Stress CPU", Kind: models.OptionBool, Default: true},
					{Key: "stress_memory", Label: "Stress memory", Kind: models.OptionBool, Default: false},
					{Key: "stress_gpu", Label: "Stress GPU", Kind: models.OptionBool, Default: false},
				},
				Timeout: 125 * time.Minute,
			},
			Adapter: &ExecAdapter{
				ServiceID: "heavyload_stress", Program: ProgramHeavyLoad, Locator: locator,
				Args:     heavyLoadArgs,
				Progress: heavyLoadProgress,
				Parse:    parseHeavyLoad,
				TimeoutFor: func(opts models.OptionValues) time.Duration {
					return time.Duration(opts.Int("duration_minutes"))*time.Minute + 5*time.Minute
				},
			},
			Validate: argsValid(heavyLoadArgs),
		},
	}
}

// argsValid accepts the options an argument builder accepts
func argsValid(args func(models.OptionValues) ([]string, error)) func(models.OptionValues) error {
	return func(opts models.OptionValues) error {
		_, err := args(opts)
		return err
	}
}

func validDrive(opts models.OptionValues) error {
	_, err := driveLetter(opts.String("drive"))
	return err
}

var driveRe = regexp.MustCompile(`^([A-Za-z]):?\\?$`)

func driveLetter(s string) (string, error) {
	m := driveRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", fmt.Errorf("%w: drive %q", ErrInvalidOption, s)
	}
	return strings.ToUpper(m[1]), nil
}

// percentProgress builds a progress parser from a regexp whose first group is a percentage
func percentProgress(re *regexp.Regexp) func(models.OptionValues) ProgressParser {
	return func(models.OptionValues) ProgressParser {
		return func(line string) (float64, bool) {
			m := re.FindStringSubmatch(line)
			if m == nil {
				return 0, false
			}
			pct, err := strconv.ParseFloat(m[1], 64)
			if err != nil || pct < 0 || pct > 100 {
				return 0, false
			}
			return pct, true
		}
	}
}

var (
	pingReplyRe   = regexp.MustCompile(`(?i)(reply from|bytes from)`)
	pingLossRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)% (?:packet )?loss`)
	pingAvgWinRe  = regexp.MustCompile(`Average = (\d+)ms`)
	pingAvgUnixRe = regexp.MustCompile(`= [\d.]+/([\d.]+)/[\d.]+`)
	hostRe        = regexp.MustCompile(`^[A-Za-z0-9.:-]+$`)
)

func pingArgs(opts models.OptionValues) ([]string, error) {
	host := strings.TrimSpace(opts.String("host"))
	if host == "" || strings.HasPrefix(host, "-") || !hostRe.MatchString(host) {
		return nil, fmt.Errorf("%w: host %q", ErrInvalidOption, host)
	}
	count := strconv.Itoa(opts.Int("count"))
	if runtime.GOOS == "windows" {
		return []string{"-n", count, host}, nil
	}
	return []string{"-c", count, host}, nil
}

func pingProgress(opts models.OptionValues) ProgressParser {
	total := opts.Int("count")
	seen := 0
	return func(line string) (float64, bool) {
		if total <= 0 || !pingReplyRe.MatchString(line) {
			return 0, false
		}
		seen++
		return min(100, float64(seen)*100/float64(total)), true
	}
}

func parsePing(output string, exitCode int, opts models.OptionValues) (models.ResultStatus, []models.ServiceFinding) {
	host := opts.String("host")
	m := pingLossRe.FindStringSubmatch(output)
	if m == nil {
		if exitCode != 0 {
			return models.ResultFailure, []models.ServiceFinding{
				models.NewFinding(models.SeverityCritical, "ping "+host+" failed with no statistics"),
			}
		}
		return "", nil
	}
	loss, _ := strconv.ParseFloat(m[1], 64)
	detail := map[string]any{"host": host, "loss_percent": loss}
	if a := pingAvgWinRe.FindStringSubmatch(output); a != nil {
		avg, _ := strconv.ParseFloat(a[1], 64)
		detail["avg_ms"] = avg
	} else if a := pingAvgUnixRe.FindStringSubmatch(output); a != nil {
		avg, _ := strconv.ParseFloat(a[1], 64)
		detail["avg_ms"] = avg
	}

	switch {
	case loss >= 100:
		return models.ResultFailure, []models.ServiceFinding{{
			Severity: models.SeverityCritical, Message: host + " unreachable", Detail: detail,
		}}
	case loss > 0:
		return models.ResultWarning, []models.ServiceFinding{{
			Severity: models.SeverityWarning, Message: fmt.Sprintf("%s: %.0f%% packet loss", host, loss), Detail: detail,
		}}
	}
	return models.ResultSuccess, []models.ServiceFinding{{
		Severity: models.SeveritySuccess, Message: host + " reachable", Detail: detail,
	}}
}

var (
	smartHealthRe = regexp.MustCompile(`self-assessment test result: (\w+)`)
	smartRealloRe = regexp.MustCompile(`(?m)Reallocated_Sector_Ct.*\s(\d+)\s*$`)
)

func parseSmart(output string, _ int, opts models.OptionValues) (models.ResultStatus, []models.ServiceFinding) {
	device := opts.String("device")
	m := smartHealthRe.FindStringSubmatch(output)
	if m == nil {
		return models.ResultFailure, []models.ServiceFinding{
			models.NewFinding(models.SeverityCritical, "no SMART health report for "+device),
		}
	}
	if m[1] != "PASSED" {
		return models.ResultFailure, []models.ServiceFinding{
			models.NewFinding(models.SeverityCritical, device+": SMART health "+m[1]),
		}
	}
	findings := []models.ServiceFinding{models.NewFinding(models.SeveritySuccess, device+": SMART health PASSED")}
	if r := smartRealloRe.FindStringSubmatch(output); r != nil {
		if n, _ := strconv.Atoi(r[1]); n > 0 {
			findings = append(findings, models.ServiceFinding{
				Severity: models.SeverityWarning,
				Message:  fmt.Sprintf("%s: %d reallocated sectors", device, n),
				Detail:   map[string]any{"reallocated_sectors": n},
			})
			return models.ResultWarning, findings
		}
	}
	return models.ResultSuccess, findings
}

func parseChkdsk(output string, exitCode int, _ models.OptionValues) (models.ResultStatus, []models.ServiceFinding) {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "found no problems"):
		return models.ResultSuccess, []models.ServiceFinding{
			models.NewFinding(models.SeveritySuccess, "file system scan found no problems"),
		}
	case strings.Contains(lower, "found problems"), strings.Contains(lower, "errors found"):
		return models.ResultWarning, []models.ServiceFinding{
			models.NewFinding(models.SeverityWarning, "file system problems found, run chkdsk /f to repair"),
		}
	case strings.Contains(lower, "cannot open volume"), strings.Contains(lower, "access denied"):
		return models.ResultFailure, []models.ServiceFinding{
			models.NewFinding(models.SeverityCritical, "chkdsk could not open the volume"),
		}
	}
	if exitCode == 0 {
		return models.ResultSuccess, nil
	}
	return "", nil
}

func parseSFC(output string, _ int, _ models.OptionValues) (models.ResultStatus, []models.ServiceFinding) {
	switch {
	case strings.Contains(output, "did not find any integrity violations"):
		return models.ResultSuccess, []models.ServiceFinding{
			models.NewFinding(models.SeveritySuccess, "no integrity violations"),
		}
	case strings.Contains(output, "successfully repaired"):
		return models.ResultWarning, []models.ServiceFinding{
			models.NewFinding(models.SeverityWarning, "corrupt system files found and repaired"),
		}
	case strings.Contains(output, "unable to fix"):
		return models.ResultFailure, []models.ServiceFinding{
			models.NewFinding(models.SeverityCritical, "corrupt system files found that could not be repaired"),
		}
	case strings.Contains(output, "could not perform"):
		return models.ResultFailure, []models.ServiceFinding{
			models.NewFinding(models.SeverityCritical, "Windows Resource Protection could not perform the operation"),
		}
	}
	return "", nil
}

var dismErrorRe = regexp.MustCompile(`Error: (\w+)`)

func parseDISM(output string, _ int, _ models.OptionValues) (models.ResultStatus, []models.ServiceFinding) {
	switch {
	case strings.Contains(output, "No component store corruption detected"):
		return models.ResultSuccess, []models.ServiceFinding{
			models.NewFinding(models.SeveritySuccess, "component store healthy"),
		}
	case strings.Contains(output, "The restore operation completed successfully"):
		return models.ResultSuccess, []models.ServiceFinding{
			models.NewFinding(models.SeveritySuccess, "component store restored"),
		}
	case strings.Contains(output, "The component store is repairable"):
		return models.ResultWarning, []models.ServiceFinding{
			models.NewFinding(models.SeverityWarning, "component store corrupted but repairable, run with mode=restore"),
		}
	}
	if m := dismErrorRe.FindStringSubmatch(output); m != nil {
		return models.ResultFailure, []models.ServiceFinding{{
			Severity: models.SeverityCritical, Message: "DISM error " + m[1], Detail: map[string]any{"code": m[1]},
		}}
	}
	return "", nil
}

var defenderThreatsRe = regexp.MustCompile(`found (\d+) threats?`)

func parseDefender(output string, exitCode int, _ models.OptionValues) (models.ResultStatus, []models.ServiceFinding) {
	if m := defenderThreatsRe.FindStringSubmatch(output); m != nil {
		n, _ := strconv.Atoi(m[1])
		return models.ResultWarning, []models.ServiceFinding{{
			Severity: models.SeverityCritical,
			Message:  fmt.Sprintf("%d threats detected", n),
			Detail:   map[string]any{"threats": n},
		}}
	}
	if strings.Contains(output, "found no threats") || exitCode == 0 {
		return models.ResultSuccess, []models.ServiceFinding{
			models.NewFinding(models.SeveritySuccess, "no threats found"),
		}
	}
	if exitCode == 2 {
		return models.ResultWarning, []models.ServiceFinding{
			models.NewFinding(models.SeverityCritical, "threats detected"),
		}
	}
	return "", nil
}

var winsatRe = regexp.MustCompile(`Disk\s+(Sequential 64\.0 Read|Random 16\.0 Read|Sequential 64\.0 Write)\s+([\d.]+) MB/s`)

func parseWinSAT(output string, exitCode int, _ models.OptionValues) (models.ResultStatus, []models.ServiceFinding) {
	matches := winsatRe.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return "", nil
	}
	findings := make([]models.ServiceFinding, 0, len(matches))
	for _, m := range matches {
		mbps, _ := strconv.ParseFloat(m[2], 64)
		findings = append(findings, models.ServiceFinding{
			Severity: models.SeverityInfo,
			Message:  fmt.Sprintf("%s: %.2f MB/s", m[1], mbps),
			Detail:   map[string]any{"test": m[1], "mb_per_s": mbps},
		})
	}
	if exitCode != 0 {
		return models.ResultWarning, findings
	}
	return models.ResultSuccess, findings
}

func heavyLoadArgs(opts models.OptionValues) ([]string, error) {
	var args []string
	if opts.Bool("stress_cpu") {
		args = append(args, "/CPU")
	}
	if opts.Bool("stress_memory") {
		args = append(args, "/MEMORY")
	}
	if opts.Bool("stress_gpu") {
		args = append(args, "/GPU")
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: select at least one of stress_cpu, stress_memory, stress_gpu", ErrInvalidOption)
	}
	args = append(args, "/DURATION", strconv.Itoa(opts.Int("duration_minutes")), "/AUTOEXIT", "/START")
	return args, nil
}

// heavyLoadProgress has no output to scrape; every line counts against elapsed time
func heavyLoadProgress(opts models.OptionValues) ProgressParser {
	total := time.Duration(opts.Int("duration_minutes")) * time.Minute
	started := time.Now()
	return func(string) (float64, bool) {
		if total <= 0 {
			return 0, false
		}
		return min(100, float64(time.Since(started))*100/float64(total)), true
	}
}

func parseHeavyLoad(_ string, exitCode int, opts models.OptionValues) (models.ResultStatus, []models.ServiceFinding) {
	if exitCode != 0 {
		return "", nil
	}
	return models.ResultSuccess, []models.ServiceFinding{
		models.NewFinding(models.SeveritySuccess,
			fmt.Sprintf("stress test completed after %d minutes", opts.Int("duration_minutes"))),
	}
}
