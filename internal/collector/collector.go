// Package collector provides the protocol extensions built into the engine
// and the facts it gathers about the machine it runs on. The OS command
// extension runs CommandLine sources and criteria, the awk extension runs
// Jawk sources, and the process and host helpers back the detection of
// local hosts.
package collector

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/extension"
	"github.com/vitalis-app/hwmon/internal/oscommand"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// OSCommandExtension executes CommandLine sources and criteria, locally or
// over SSH.
type OSCommandExtension struct {
	logger   *zap.Logger
	executor *oscommand.Executor
}

// NewOSCommandExtension creates the extension. A nil executor runs SSH
// commands with one permit per host.
func NewOSCommandExtension(logger *zap.Logger, executor *oscommand.Executor) *OSCommandExtension {
	if logger == nil {
		logger = zap.NewNop()
	}
	if executor == nil {
		executor = oscommand.NewExecutor(logger, nil)
	}
	return &OSCommandExtension{
		logger:   logger.Named("oscommand"),
		executor: executor,
	}
}

// Name returns the extension identifier.
func (e *OSCommandExtension) Name() string { return telemetry.ProtocolOSCommand }

// IsValidConfiguration accepts local hosts and hosts with an SSH or OS
// command configuration.
func (e *OSCommandExtension) IsValidConfiguration(host *telemetry.HostConfiguration) bool {
	if host == nil {
		return false
	}
	if host.Local {
		return true
	}
	if _, ok := host.Protocol(telemetry.ProtocolSSH); ok {
		return true
	}
	_, ok := host.Protocol(telemetry.ProtocolOSCommand)
	return ok
}

// SupportsSource reports whether src is a CommandLine source.
func (e *OSCommandExtension) SupportsSource(src connector.Source) bool {
	_, ok := src.(*connector.CommandLineSource)
	return ok
}

// SupportsCriterion reports whether c is a CommandLine criterion.
func (e *OSCommandExtension) SupportsCriterion(c connector.Criterion) bool {
	_, ok := c.(*connector.CommandLineCriterion)
	return ok
}

// ProcessSource runs the command and turns its filtered output into a table.
func (e *OSCommandExtension) ProcessSource(ctx context.Context, src connector.Source, connectorID string, tm *telemetry.Manager) (*sourcetable.Table, error) {
	s, ok := src.(*connector.CommandLineSource)
	if !ok {
		return nil, fmt.Errorf("cannot process source %s", src.TypeName())
	}
	if strings.TrimSpace(s.CommandLine) == "" {
		return nil, errors.New("malformed OS command source: empty command line")
	}

	res, err := e.executor.Run(ctx, tm.Host, request(s.CommandLine, s.Timeout, s.ExecuteLocally, connectorID, tm))
	if err != nil {
		return nil, fmt.Errorf("OS command %q: %w", res.Command, err)
	}

	lines := strings.Split(res.Output, sourcetable.NewLine)
	header, footer := lineBounds(len(lines), s.BeginAtLineNumber, s.EndAtLineNumber)
	lines, err = sourcetable.FilterLines(lines, header, footer, s.Exclude, s.Keep)
	if err != nil {
		return nil, fmt.Errorf("filter output of %q: %w", res.Command, err)
	}
	lines = sourcetable.SelectColumns(lines, s.Separators, s.SelectColumns)

	raw := strings.Join(lines, sourcetable.NewLine)
	t := sourcetable.FromRaw(raw)
	t.Rows = sourcetable.FromCSV(raw, sourcetable.Separator)

	e.logger.Debug("OS command executed",
		zap.String("hostname", tm.Host.Hostname),
		zap.String("connector", connectorID),
		zap.String("command", res.Command),
		zap.Int("lines", len(lines)),
	)
	return t, nil
}

// ProcessCriterion runs the command and matches its output against the
// expected result, a case-insensitive regular expression.
func (e *OSCommandExtension) ProcessCriterion(ctx context.Context, c connector.Criterion, connectorID string, tm *telemetry.Manager) extension.CriterionTestResult {
	cl, ok := c.(*connector.CommandLineCriterion)
	if !ok {
		return extension.Error(c, fmt.Errorf("cannot process criterion %s", c.TypeName()))
	}
	if strings.TrimSpace(cl.CommandLine) == "" || cl.ExpectedResult == "" {
		return extension.Success("CommandLine or ExpectedResult are empty. Skipping this test.", "")
	}

	res, err := e.executor.Run(ctx, tm.Host, request(cl.CommandLine, cl.Timeout, cl.ExecuteLocally, connectorID, tm))
	if err != nil {
		return extension.Error(c, err)
	}

	re, err := regexp.Compile("(?im)" + sourcetable.PSLRegexp(cl.ExpectedResult))
	if err != nil {
		return extension.Error(c, fmt.Errorf("invalid expected result %q: %w", cl.ExpectedResult, err))
	}

	message := fmt.Sprintf("OS command: %s. Expected result: %s.", res.Command, cl.ExpectedResult)
	if re.MatchString(res.Output) {
		return extension.Success(message+" Result matched.", res.Output)
	}
	if cl.ErrorMessage != "" {
		message += " " + cl.ErrorMessage
	}
	return extension.Failure(message+" Result did not match.", res.Output)
}

func request(commandLine string, timeoutSeconds int64, executeLocally bool, connectorID string, tm *telemetry.Manager) oscommand.Request {
	req := oscommand.Request{
		CommandLine:    commandLine,
		Timeout:        time.Duration(timeoutSeconds) * time.Second,
		ExecuteLocally: executeLocally,
	}
	if conn, ok := tm.Connector(connectorID); ok {
		req.EmbeddedFiles = conn.EmbeddedFiles
	}
	return req
}

// lineBounds converts 1-based inclusive line numbers into the number of
// lines to drop at each end. Zero leaves that end unbounded.
func lineBounds(count, begin, end int) (int, int) {
	header, footer := 0, 0
	if begin > 1 {
		header = begin - 1
	}
	if end > 0 && end < count {
		footer = count - end
	}
	return header, footer
}
