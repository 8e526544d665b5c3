package detection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/models"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// Strategy runs detection for one host and records the outcome as monitors.
type Strategy struct {
	engine *Engine
	logger *zap.Logger
}

// NewStrategy creates a detection strategy backed by engine.
func NewStrategy(logger *zap.Logger, engine *Engine) *Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategy{engine: engine, logger: logger.Named("detection")}
}

// Run detects the connectors of the host, upserts the host monitor and one
// connector monitor per retained connector, and returns the connectors the
// rest of the cycle should run.
//
// With an explicit connector selection every tested connector is retained
// and a failed one reports a 0 status. Otherwise only accepted connectors
// are retained. A connector retained by an earlier cycle that is no longer
// has its monitor updated with this cycle's result, and the monitors it
// discovered are removed.
func (s *Strategy) Run(ctx context.Context, tm *telemetry.Manager, connectors []*connector.Connector) []*connector.Connector {
	now := time.Now().UTC()
	host := tm.Host

	hostID := tm.HostMonitorID()
	tm.UpdateMonitor(models.MonitorTypeHost, hostID, func(m *models.Monitor) {
		m.IsEndpoint = true
		m.Attributes[models.AttributeHostname] = host.Hostname
		m.Attributes[models.AttributeHostType] = string(host.DeviceKind)
		m.Attributes[models.AttributeName] = host.Hostname
	})

	tested := s.engine.Detect(ctx, tm, connectors)
	retained := tested
	if len(host.SelectedConnectors) == 0 {
		retained = s.engine.Accept(tested)
	}

	out := make([]*connector.Connector, 0, len(retained))
	kept := make(map[string]struct{}, len(retained))
	for _, t := range retained {
		kept[t.Connector.ID] = struct{}{}
		s.createMonitor(tm, hostID, t, now)
		if t.IsSuccess() {
			out = append(out, t.Connector)
		} else {
			s.dropDiscovered(tm, t.Connector.ID)
		}
	}

	for _, t := range tested {
		id := t.Connector.ID
		if _, ok := kept[id]; ok {
			continue
		}
		if _, ok := tm.Monitor(models.MonitorTypeConnector, ConnectorMonitorID(id)); !ok {
			continue
		}
		s.createMonitor(tm, hostID, t, now)
		tm.UpdateMonitor(models.MonitorTypeConnector, ConnectorMonitorID(id), func(m *models.Monitor) {
			m.SetMetric(models.MetricConnectorStatus, 0, now)
		})
		s.dropDiscovered(tm, id)
	}

	s.logger.Info("Detection completed",
		zap.String("hostname", host.Hostname),
		zap.Int("tested", len(tested)),
		zap.Int("accepted", len(out)),
	)
	return out
}

func (s *Strategy) dropDiscovered(tm *telemetry.Manager, connectorID string) {
	if n := tm.RemoveDiscoveredMonitors(connectorID); n > 0 {
		s.logger.Info("Connector no longer detected, monitors removed",
			zap.String("hostname", tm.Host.Hostname),
			zap.String("connector", connectorID),
			zap.Int("monitors", n),
		)
	}
}

// ConnectorMonitorID returns the id of the monitor of a connector.
func ConnectorMonitorID(connectorID string) string {
	return fmt.Sprintf("%s_%s", models.MonitorTypeConnector, connectorID)
}

func (s *Strategy) createMonitor(tm *telemetry.Manager, hostID string, t TestedConnector, now time.Time) {
	c := t.Connector
	status := 0.0
	if t.IsSuccess() {
		status = 1
	}
	name := c.DisplayName
	if name == "" {
		name = c.ID
	}

	tm.UpdateMonitor(models.MonitorTypeConnector, ConnectorMonitorID(c.ID), func(m *models.Monitor) {
		m.ConnectorID = c.ID
		m.Attributes[models.AttributeName] = name
		m.Attributes[models.AttributeAppliesToOS] = c.AppliesToOS()
		m.Attributes[models.AttributeDescription] = c.Information
		m.Attributes[models.AttributeParentID] = hostID
		m.Legacy[models.LegacyStatusInformation] = StatusInformation(tm.Host.Hostname, t)
		m.SetMetric(models.MetricConnectorStatus, status, now)
	})
}

// StatusInformation renders the criteria results of a tested connector as a
// human-readable report ending with the overall conclusion.
func StatusInformation(hostname string, t TestedConnector) string {
	var lines []string
	for _, r := range t.Results {
		if r.Result == nil && r.Message == "" {
			continue
		}
		result := "N/A"
		if r.Result != nil {
			result = *r.Result
		}
		message := r.Message
		if message == "" {
			message = "N/A"
		}
		lines = append(lines, fmt.Sprintf("Received Result: %s. %s", result, message))
	}

	conclusion := "FAILED"
	if t.IsSuccess() {
		conclusion = "SUCCEEDED"
	}
	return strings.Join(lines, "\n") + fmt.Sprintf("\nConclusion: Test on %s %s", hostname, conclusion)
}
