// Local process listing, used by the Process criterion.
// Uses gopsutil for cross-platform process listing.
package collector

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/vitalis-app/hwmon/internal/extension"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

// normalizedStatuses maps raw gopsutil status strings to a consistent set of
// display values used across all platforms.
var normalizedStatuses = map[string]string{
	"running":               "running",
	"sleeping":              "sleeping",
	"idle":                  "idle",
	"stopped":               "stopped",
	"zombie":                "zombie",
	"wait":                  "sleeping",
	"lock":                  "sleeping",
	"sleep":                 "sleeping",
	"disk-sleep":            "sleeping",
	"tracing-stop":          "stopped",
	"dead":                  "zombie",
	"wake-kill":             "sleeping",
	"waking":                "running",
	"parked":                "idle",
	"idle-interrupt":        "idle",
	"suspended":             "stopped",
	"uninterruptible-sleep": "sleeping",
}

// normalizeStatus maps a raw gopsutil status string to a consistent display
// value. An empty status is reported as "unknown".
func normalizeStatus(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "unknown"
	}
	if mapped, ok := normalizedStatuses[key]; ok {
		return mapped
	}
	return key
}

// ProcessInfo describes one running process.
type ProcessInfo struct {
	PID         int32
	Name        string
	CommandLine string
	Status      string
}

// ProcessLister lists the processes of the local machine.
type ProcessLister interface {
	Processes(ctx context.Context) ([]ProcessInfo, error)
}

// LocalProcesses lists processes with gopsutil.
type LocalProcesses struct{}

// Processes returns the running processes sorted by PID. Processes that
// vanish or cannot be inspected while listing are skipped.
func (LocalProcesses) Processes(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cmdline, _ := p.CmdlineWithContext(ctx)
		if cmdline == "" {
			cmdline = name
		}
		status, _ := p.StatusWithContext(ctx)

		rawStatus := ""
		if len(status) > 0 {
			rawStatus = status[0]
		}

		infos = append(infos, ProcessInfo{
			PID:         p.Pid,
			Name:        name,
			CommandLine: cmdline,
			Status:      normalizeStatus(rawStatus),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].PID < infos[j].PID })
	return infos, nil
}

// MatchProcess checks whether one of the processes listed by lister has a
// command line matching the PSL expression.
func MatchProcess(ctx context.Context, lister ProcessLister, commandLine string) extension.CriterionTestResult {
	re, err := regexp.Compile("(?i)" + sourcetable.PSLRegexp(commandLine))
	if err != nil {
		return extension.CriterionTestResult{
			Message: fmt.Sprintf("Process presence check: invalid expression %q: %v", commandLine, err),
			Err:     err,
		}
	}

	procs, err := lister.Processes(ctx)
	if err != nil {
		return extension.CriterionTestResult{
			Message: fmt.Sprintf("Process presence check: could not list processes: %v", err),
			Err:     err,
		}
	}

	lines := make([]string, 0, len(procs))
	for _, p := range procs {
		if re.MatchString(p.CommandLine) {
			return extension.Success(
				"Process presence check: one or more processes match the command line.",
				fmt.Sprintf("%d;%s;%s;%s", p.PID, p.Name, p.CommandLine, p.Status),
			)
		}
		lines = append(lines, fmt.Sprintf("%d;%s;%s;%s", p.PID, p.Name, p.CommandLine, p.Status))
	}

	return extension.Failure(
		fmt.Sprintf("Process presence check: no running process matches the command line %q.", commandLine),
		strings.Join(lines, "\n"),
	)
}
