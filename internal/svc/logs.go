package svc

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// LogOptions selects which service logs to show and how.
type LogOptions struct {
	ServiceName string
	Follow      bool
	Lines       int
}

// darwinLogPaths returns the launchd stdout/stderr log files for the
// service. NewServiceConfig points launchd at the same two paths.
func darwinLogPaths(name string) (outLog, errLog string) {
	return "/var/log/" + name + ".out.log", "/var/log/" + name + ".err.log"
}

// ViewLogs streams or prints the daemon's logs using whatever the host
// platform records them with: journald on Linux, the launchd log files
// on macOS, the Application event log on Windows.
func ViewLogs(opts LogOptions) error {
	if opts.Lines <= 0 {
		opts.Lines = 50
	}

	switch runtime.GOOS {
	case "linux":
		return journalLogs(opts)
	case "darwin":
		return launchdLogs(opts)
	case "windows":
		return eventLogs(opts)
	default:
		return fmt.Errorf("log viewing not supported on %s", runtime.GOOS)
	}
}

func journalLogs(opts LogOptions) error {
	args := []string{"-u", opts.ServiceName, "-n", strconv.Itoa(opts.Lines), "--no-pager"}
	if opts.Follow {
		args = append(args, "-f")
	}
	return runAttached("journalctl", args...)
}

func launchdLogs(opts LogOptions) error {
	outLog, errLog := darwinLogPaths(opts.ServiceName)

	var files []string
	for _, f := range []string{errLog, outLog} {
		if info, err := os.Stat(f); err == nil && !info.IsDir() {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		fmt.Printf("no log files for service %q (expected %s and %s)\n", opts.ServiceName, outLog, errLog)
		return nil
	}

	args := []string{"-n", strconv.Itoa(opts.Lines)}
	if opts.Follow {
		args = append(args, "-f")
	}
	return runAttached("tail", append(args, files...)...)
}

func eventLogs(opts LogOptions) error {
	// Follow mode has no event-log equivalent short of polling; point the
	// user at the one-shot query instead.
	if opts.Follow {
		return fmt.Errorf("--follow is not supported on Windows; rerun without it")
	}

	script := fmt.Sprintf(`$events = Get-WinEvent -FilterHashtable @{LogName='Application'; ProviderName='%[1]s'} -MaxEvents %[2]d -ErrorAction SilentlyContinue
if ($events) {
    $events | Format-Table -Property TimeCreated, LevelDisplayName, Message -AutoSize -Wrap
} else {
    Write-Host "no Application log entries for service '%[1]s'"
}`, opts.ServiceName, opts.Lines)

	if err := runAttached("powershell", "-NoProfile", "-Command", script); err != nil {
		return fmt.Errorf("query event log (try Event Viewer > Windows Logs > Application, source %q): %w", opts.ServiceName, err)
	}
	return nil
}

// runAttached runs a command wired to the caller's terminal.
func runAttached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}
