package detection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/collector"
	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/extension"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

var errHostNotWindows = errors.New("host OS is not Windows, skipping this test")

// evaluate runs one criterion. Built-in criteria are handled here, the
// others go to the first extension that supports them for this host.
func (e *Engine) evaluate(ctx context.Context, tm *telemetry.Manager, c *connector.Connector, criterion connector.Criterion) extension.CriterionTestResult {
	if err := ctx.Err(); err != nil {
		return extension.Error(criterion, err)
	}

	switch cr := criterion.(type) {
	case *connector.DeviceTypeCriterion:
		return deviceType(cr, tm.Host.DeviceKind)
	case *connector.ProductRequirementsCriterion:
		return productRequirements(cr, e.version)
	case *connector.ProcessCriterion:
		return e.process(ctx, cr, tm.Host)
	case *connector.ServiceCriterion:
		if !tm.Host.Local && tm.Host.DeviceKind == connector.KindWindows {
			// Remote services are checked by a WMI capable extension.
			return e.dispatch(ctx, tm, c, criterion)
		}
		return e.service(cr, tm.Host)
	default:
		return e.dispatch(ctx, tm, c, criterion)
	}
}

func (e *Engine) dispatch(ctx context.Context, tm *telemetry.Manager, c *connector.Connector, criterion connector.Criterion) extension.CriterionTestResult {
	ext, ok := e.extensions.FindCriterionExtension(criterion, tm.Host)
	if !ok {
		e.logger.Debug("No extension for criterion",
			zap.String("hostname", tm.Host.Hostname),
			zap.String("connector", c.ID),
			zap.String("criterion", criterion.TypeName()),
		)
		return extension.Error(criterion, fmt.Errorf("no protocol extension can process this criterion on host %s", tm.Host.Hostname))
	}
	return ext.ProcessCriterion(ctx, criterion, c.ID, tm)
}

// deviceType passes when kind is kept, fails when it is excluded, and
// otherwise passes only if the keep set is empty.
func deviceType(cr *connector.DeviceTypeCriterion, kind connector.DeviceKind) extension.CriterionTestResult {
	result := "Configured OS type : " + strings.ToUpper(string(kind))
	if passesDeviceType(cr, kind) {
		return extension.Success("Successful OS detection operation", result)
	}
	return extension.Failure("Failed OS detection operation", result)
}

func passesDeviceType(cr *connector.DeviceTypeCriterion, kind connector.DeviceKind) bool {
	for _, k := range cr.Keep {
		if k == kind {
			return true
		}
	}
	for _, k := range cr.Exclude {
		if k == kind {
			return false
		}
	}
	return len(cr.Keep) == 0
}

func productRequirements(cr *connector.ProductRequirementsCriterion, version string) extension.CriterionTestResult {
	required := strings.TrimSpace(cr.EngineVersion)
	if required == "" {
		return extension.CriterionTestResult{Success: true}
	}
	result := fmt.Sprintf("Engine version: %s. Required: %s.", version, required)
	if compareVersions(required, version) <= 0 {
		return extension.Success("Engine version requirement satisfied.", result)
	}
	return extension.Failure("Engine version requirement not satisfied.", result)
}

// compareVersions compares dotted versions numerically, part by part.
// Missing parts count as 0 and non-numeric suffixes ("1.2-beta") are ignored.
func compareVersions(a, b string) int {
	pa, pb := versionParts(a), versionParts(b)
	for len(pa) < len(pb) {
		pa = append(pa, 0)
	}
	for len(pb) < len(pa) {
		pb = append(pb, 0)
	}
	for i := range pa {
		switch {
		case pa[i] < pb[i]:
			return -1
		case pa[i] > pb[i]:
			return 1
		}
	}
	return 0
}

func versionParts(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+ "); i >= 0 {
		v = v[:i]
	}
	var parts []int
	for _, p := range strings.Split(v, ".") {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		parts = append(parts, n)
	}
	return parts
}

func (e *Engine) process(ctx context.Context, cr *connector.ProcessCriterion, host *telemetry.HostConfiguration) extension.CriterionTestResult {
	if strings.TrimSpace(cr.CommandLine) == "" {
		return extension.Success("Process presence check: No test will be performed.", "")
	}
	if !host.Local {
		return extension.Success("Process presence check: No test will be performed remotely.", "")
	}
	return collector.MatchProcess(ctx, e.processes, cr.CommandLine)
}

func (e *Engine) service(cr *connector.ServiceCriterion, host *telemetry.HostConfiguration) extension.CriterionTestResult {
	if host.DeviceKind != connector.KindWindows {
		return extension.Error(cr, errHostNotWindows)
	}
	if e.localOS != "windows" {
		return extension.Success("Local OS is not Windows. Skipping this test.", "")
	}
	name := strings.TrimSpace(cr.Name)
	if name == "" {
		return extension.Success("Service name is not specified. Skipping this test.", "")
	}

	running, err := e.isRunning(name)
	if err != nil {
		return extension.Error(cr, err)
	}
	if running {
		return extension.Success(fmt.Sprintf("The %s Windows Service is currently running.", name), "running")
	}
	return extension.Failure(fmt.Sprintf("The %s Windows Service is not reported as running:\n%s", name, "stopped"), "stopped")
}
