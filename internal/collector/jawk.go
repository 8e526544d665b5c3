package collector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/compute"
	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/extension"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// JawkExtension runs Jawk sources: an awk script applied to a text that
// usually comes from another source.
type JawkExtension struct {
	logger *zap.Logger
	runner compute.ScriptRunner
}

// NewJawkExtension creates the extension. A nil runner uses the embedded
// awk interpreter.
func NewJawkExtension(logger *zap.Logger, runner compute.ScriptRunner) *JawkExtension {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = compute.GoAWK{}
	}
	return &JawkExtension{logger: logger.Named("jawk"), runner: runner}
}

// Name returns the extension identifier.
func (e *JawkExtension) Name() string { return "jawk" }

// IsValidConfiguration accepts every host: scripts run on the engine.
func (e *JawkExtension) IsValidConfiguration(*telemetry.HostConfiguration) bool { return true }

// SupportsSource reports whether src is a Jawk source.
func (e *JawkExtension) SupportsSource(src connector.Source) bool {
	_, ok := src.(*connector.JawkSource)
	return ok
}

// SupportsCriterion is always false: there is no awk criterion.
func (e *JawkExtension) SupportsCriterion(connector.Criterion) bool { return false }

// ProcessSource runs the script over the resolved input. The output is the
// raw text of the table and is parsed as ;-separated rows.
func (e *JawkExtension) ProcessSource(ctx context.Context, src connector.Source, connectorID string, tm *telemetry.Manager) (*sourcetable.Table, error) {
	s, ok := src.(*connector.JawkSource)
	if !ok {
		return nil, fmt.Errorf("cannot process source %s", src.TypeName())
	}
	if strings.TrimSpace(s.Script) == "" {
		return nil, fmt.Errorf("malformed jawk source %s: empty script", s.Key)
	}

	conn, _ := tm.Connector(connectorID)
	script, ok := compute.ResolveScript(s.Script, conn)
	if !ok {
		return nil, fmt.Errorf("embedded script %s not found in connector %s", s.Script, connectorID)
	}

	out, err := e.runner.Run(ctx, script, s.Input)
	if err != nil {
		return nil, err
	}
	out = strings.TrimRight(out, "\r\n")

	t := sourcetable.FromRaw(out)
	t.Rows = sourcetable.FromCSV(out, sourcetable.Separator)
	e.logger.Debug("Jawk script executed", zap.String("connector", connectorID), zap.String("source", s.Key), zap.Int("rows", len(t.Rows)))
	return t, nil
}

// ProcessCriterion reports an error: there is no awk criterion.
func (e *JawkExtension) ProcessCriterion(_ context.Context, c connector.Criterion, _ string, _ *telemetry.Manager) extension.CriterionTestResult {
	return extension.Error(c, fmt.Errorf("jawk cannot process criterion %s", c.TypeName()))
}
