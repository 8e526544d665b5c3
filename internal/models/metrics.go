// Package models defines the monitor and snapshot structures produced by the
// engine. These structures are serialized to JSON for export.
package models

import (
	"sort"
	"time"
)

// Well-known monitor types.
const (
	MonitorTypeHost      = "host"
	MonitorTypeConnector = "connector"
)

// Well-known attribute and metric names.
const (
	AttributeID          = "id"
	AttributeName        = "name"
	AttributeParentID    = "parent_id"
	AttributeAppliesToOS = "applies_to_os"
	AttributeDescription = "description"
	AttributeHostname    = "host.name"
	AttributeHostType    = "host.type"

	// LegacyStatusInformation carries the human-readable criteria report.
	LegacyStatusInformation = "StatusInformation"

	MetricConnectorStatus = "metricshub.connector.status"
)

// Metric is a single collected value.
type Metric struct {
	Value       float64   `json:"value"`
	CollectTime time.Time `json:"collect_time"`
}

// Monitor represents one monitored entity: the host itself, a connector or
// any hardware component discovered by a connector.
type Monitor struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	ConnectorID string            `json:"connector_id,omitempty"`
	Attributes  map[string]string `json:"attributes"`
	Legacy      map[string]string `json:"legacy_text_parameters,omitempty"`
	Metrics     map[string]Metric `json:"metrics"`
	IsEndpoint  bool              `json:"is_endpoint,omitempty"`
	DiscoveryAt time.Time         `json:"discovery_time"`
}

// NewMonitor returns a monitor with initialized maps.
func NewMonitor(monitorType, id string) *Monitor {
	return &Monitor{
		ID:         id,
		Type:       monitorType,
		Attributes: map[string]string{AttributeID: id},
		Legacy:     map[string]string{},
		Metrics:    map[string]Metric{},
	}
}

// SetMetric records a metric value collected at t.
func (m *Monitor) SetMetric(name string, value float64, t time.Time) {
	if m.Metrics == nil {
		m.Metrics = map[string]Metric{}
	}
	m.Metrics[name] = Metric{Value: value, CollectTime: t}
}

// Copy returns a deep copy of the monitor.
func (m *Monitor) Copy() Monitor {
	c := *m
	c.Attributes = copyStrings(m.Attributes)
	c.Legacy = copyStrings(m.Legacy)
	c.Metrics = make(map[string]Metric, len(m.Metrics))
	for k, v := range m.Metrics {
		c.Metrics[k] = v
	}
	return c
}

// HostSnapshot is the state of one host at the end of a monitoring cycle.
type HostSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	HostID    string    `json:"host_id"`
	Hostname  string    `json:"hostname"`
	Monitors  []Monitor `json:"monitors"`
}

// SortMonitors orders monitors by type then id.
func (s *HostSnapshot) SortMonitors() {
	sort.Slice(s.Monitors, func(i, j int) bool {
		if s.Monitors[i].Type != s.Monitors[j].Type {
			return s.Monitors[i].Type < s.Monitors[j].Type
		}
		return s.Monitors[i].ID < s.Monitors[j].ID
	})
}

// SnapshotBatch is the payload sent to the export endpoint.
type SnapshotBatch struct {
	AgentToken string         `json:"agent_token"`
	Snapshots  []HostSnapshot `json:"snapshots"`
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
