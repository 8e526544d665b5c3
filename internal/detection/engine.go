// Package detection decides which connectors apply to a host. Candidate
// connectors are filtered by device kind and locality, their criteria are
// evaluated (built-in criteria here, protocol criteria through the extension
// registry), then supersedes and last-resort rules trim the accepted set.
package detection

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitalis-app/hwmon/internal/collector"
	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/extension"
	"github.com/vitalis-app/hwmon/internal/service"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// DefaultParallelism bounds the number of connectors tested at once on a
// host when sequential mode is off.
const DefaultParallelism = 8

// TestedConnector is a connector with the results of its criteria, in
// declaration order.
type TestedConnector struct {
	Connector *connector.Connector
	Results   []extension.CriterionTestResult
}

// IsSuccess reports whether every criterion passed. A connector without
// criteria is accepted.
func (t TestedConnector) IsSuccess() bool {
	for _, r := range t.Results {
		if !r.Success {
			return false
		}
	}
	return true
}

// Engine evaluates connector criteria against hosts.
type Engine struct {
	logger      *zap.Logger
	extensions  *extension.Registry
	processes   collector.ProcessLister
	isRunning   func(name string) (bool, error)
	localOS     string
	version     string
	parallelism int
}

// NewEngine creates a detection engine. version is the engine version
// checked by ProductRequirements criteria.
func NewEngine(logger *zap.Logger, extensions *extension.Registry, version string) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extensions == nil {
		extensions = extension.NewRegistry(logger)
	}
	return &Engine{
		logger:      logger.Named("detection"),
		extensions:  extensions,
		processes:   collector.LocalProcesses{},
		isRunning:   service.IsRunning,
		localOS:     runtime.GOOS,
		version:     version,
		parallelism: DefaultParallelism,
	}
}

// Detect tests the candidate connectors against the host of tm and returns
// every tested connector, in the order of connectors. The connectors are
// also registered in tm so extensions can reach their embedded files.
//
// Without an explicit selection, connectors with DisableAutoDetection are
// skipped. With one, the selected connectors are tested even when auto
// detection is disabled for them.
func (e *Engine) Detect(ctx context.Context, tm *telemetry.Manager, connectors []*connector.Connector) []TestedConnector {
	tm.SetConnectors(connectors)
	host := tm.Host

	candidates := make([]*connector.Connector, 0, len(connectors))
	for _, c := range connectors {
		if !host.IsSelected(c.ID) {
			continue
		}
		if c.DisableAutoDetection && len(host.SelectedConnectors) == 0 {
			continue
		}
		if !c.AppliesToKind(host.DeviceKind) {
			continue
		}
		if host.Local && !c.SupportsLocal() || !host.Local && !c.SupportsRemote() {
			continue
		}
		candidates = append(candidates, c)
	}

	e.logger.Debug("Testing connectors",
		zap.String("hostname", host.Hostname),
		zap.Int("candidates", len(candidates)),
		zap.Int("connectors", len(connectors)),
	)

	tested := make([]TestedConnector, len(candidates))
	if host.Sequential {
		for i, c := range candidates {
			tested[i] = e.TestConnector(ctx, tm, c)
		}
		return tested
	}

	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			tested[i] = e.TestConnector(ctx, tm, c)
			return nil
		})
	}
	_ = g.Wait()
	return tested
}

// Accept keeps the successful connectors, then removes the connectors
// superseded by another accepted one and the last-resort connectors whose
// monitor type is already covered.
func (e *Engine) Accept(tested []TestedConnector) []TestedConnector {
	accepted := make([]TestedConnector, 0, len(tested))
	for _, t := range tested {
		if t.IsSuccess() {
			accepted = append(accepted, t)
		}
	}

	superseded := make(map[string]struct{})
	for _, t := range accepted {
		for _, id := range t.Connector.Supersedes {
			superseded[connector.NormalizeID(id)] = struct{}{}
		}
	}
	kept := accepted[:0]
	for _, t := range accepted {
		if _, ok := superseded[connector.NormalizeID(t.Connector.ID)]; ok {
			e.logger.Debug("Connector superseded", zap.String("connector", t.Connector.ID))
			continue
		}
		kept = append(kept, t)
	}

	return e.filterLastResort(kept)
}

func (e *Engine) filterLastResort(accepted []TestedConnector) []TestedConnector {
	var regular, lastResort []TestedConnector
	for _, t := range accepted {
		if t.Connector.OnLastResort != "" {
			lastResort = append(lastResort, t)
		} else {
			regular = append(regular, t)
		}
	}
	if len(lastResort) == 0 {
		return accepted
	}

	out := append([]TestedConnector(nil), regular...)
	for _, lr := range lastResort {
		if by, ok := coveredBy(regular, lr.Connector.OnLastResort); ok {
			e.logger.Info("Connector is a last resort connector and its components are already discovered",
				zap.String("connector", lr.Connector.ID),
				zap.String("monitor_type", lr.Connector.OnLastResort),
				zap.String("discovered_by", by),
			)
			continue
		}
		out = append(out, lr)
	}
	return out
}

// coveredBy returns the first regular connector with a mapped job for the
// monitor type.
func coveredBy(regular []TestedConnector, monitorType string) (string, bool) {
	for _, t := range regular {
		for _, j := range t.Connector.Jobs {
			if j.Monitor == monitorType && j.Mapping != nil {
				return t.Connector.ID, true
			}
		}
	}
	return "", false
}

// TestConnector evaluates every criterion of c in order. All criteria are
// evaluated even after a failure so the status report is complete.
func (e *Engine) TestConnector(ctx context.Context, tm *telemetry.Manager, c *connector.Connector) TestedConnector {
	tested := TestedConnector{Connector: c, Results: make([]extension.CriterionTestResult, 0, len(c.Criteria))}
	for _, criterion := range c.Criteria {
		if criterion == nil {
			continue
		}
		var result extension.CriterionTestResult
		if criterion.Base().ForceSerialization {
			tm.Namespace(c.ID).Serialize(func() {
				result = e.evaluate(ctx, tm, c, criterion)
			})
		} else {
			result = e.evaluate(ctx, tm, c, criterion)
		}
		tested.Results = append(tested.Results, result)
	}

	e.logger.Debug("Connector tested",
		zap.String("hostname", tm.Host.Hostname),
		zap.String("connector", c.ID),
		zap.Bool("success", tested.IsSuccess()),
	)
	return tested
}
