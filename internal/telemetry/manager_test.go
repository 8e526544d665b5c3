package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalis-app/hwmon/internal/models"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

func TestNamespaceLookup(t *testing.T) {
	ns := NewNamespace()
	ns.SetSourceTable("monitors.disk.discovery.sources.source1", sourcetable.FromRaw("a"))
	ns.SetSourceTable("monitors.fan.discovery.sources.source1", sourcetable.FromRaw("b"))
	ns.SetSourceTable("monitors.fan.discovery.sources.source2", sourcetable.FromRaw("c"))

	got, ok := ns.SourceTable("monitors.disk.discovery.sources.source1")
	require.True(t, ok)
	assert.Equal(t, "a", got.RawText())

	got, ok = ns.SourceTable("source2")
	require.True(t, ok)
	assert.Equal(t, "c", got.RawText())

	_, ok = ns.SourceTable("source1")
	assert.False(t, ok, "ambiguous suffix must not resolve")

	ns.Reset()
	_, ok = ns.SourceTable("monitors.disk.discovery.sources.source1")
	assert.False(t, ok)
}

func TestManagerMonitors(t *testing.T) {
	m := NewManager(&HostConfiguration{Hostname: "server-1"})
	assert.Equal(t, "server-1", m.HostMonitorID())

	m.UpdateMonitor(models.MonitorTypeConnector, "c1", func(mon *models.Monitor) {
		mon.ConnectorID = "c1"
		mon.Attributes[models.AttributeName] = "Connector 1"
	})
	first := m.UpsertMonitor(models.MonitorTypeConnector, "c1")
	second := m.UpsertMonitor(models.MonitorTypeConnector, "c1")
	assert.Same(t, first, second)

	mon, ok := m.Monitor(models.MonitorTypeConnector, "c1")
	require.True(t, ok)
	assert.Equal(t, "Connector 1", mon.Attributes[models.AttributeName])

	m.UpsertMonitor(models.MonitorTypeHost, "server-1")
	snap := m.Snapshot()
	require.Len(t, snap.Monitors, 2)
	assert.Equal(t, models.MonitorTypeConnector, snap.Monitors[0].Type)
}

func TestHostIsSelected(t *testing.T) {
	h := &HostConfiguration{
		SelectedConnectors: []string{"LinuxDisk.yaml", "MIB2"},
		ExcludedConnectors: []string{"mib2"},
	}

	tests := []struct {
		id   string
		want bool
	}{
		{"LinuxDisk", true},
		{"linuxdisk", true},
		{"MIB2", false},
		{"Other", false},
	}
	for _, tt := range tests {
		if got := h.IsSelected(tt.id); got != tt.want {
			t.Errorf("IsSelected(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}

	open := &HostConfiguration{}
	assert.True(t, open.IsSelected("anything"))
}

func TestNamespaceRemembersFilledKeysForOneCycle(t *testing.T) {
	ns := NewNamespace()
	ns.SetSourceTable("monitors.disk.discovery.sources.source1", sourcetable.FromRows([][]string{{"disk0"}}))
	ns.SetSourceTable("monitors.disk.discovery.sources.source2", sourcetable.Empty())
	assert.False(t, ns.WasFilled("monitors.disk.discovery.sources.source1"), "the current cycle is not the previous one")

	ns.Reset()
	_, ok := ns.SourceTable("monitors.disk.discovery.sources.source1")
	assert.False(t, ok)
	assert.True(t, ns.WasFilled("monitors.disk.discovery.sources.source1"))
	assert.False(t, ns.WasFilled("monitors.disk.discovery.sources.source2"))

	ns.Reset()
	assert.False(t, ns.WasFilled("monitors.disk.discovery.sources.source1"), "a key not run during the last cycle is forgotten")
}

func TestManagerConnectorMonitors(t *testing.T) {
	m := NewManager(&HostConfiguration{Hostname: "server-1"})
	own := func(monitorType, id, connectorID string) {
		m.UpdateMonitor(monitorType, id, func(mon *models.Monitor) { mon.ConnectorID = connectorID })
	}
	own(models.MonitorTypeConnector, "connector_Storage", "Storage")
	own("physical_disk", "Storage_physical_disk_b", "Storage")
	own("physical_disk", "Storage_physical_disk_a", "Storage")
	own("physical_disk", "Other_physical_disk_a", "Other")

	disks := m.ConnectorMonitors("physical_disk", "Storage")
	require.Len(t, disks, 2)
	assert.Equal(t, "Storage_physical_disk_a", disks[0].ID)

	assert.Equal(t, 2, m.RemoveDiscoveredMonitors("Storage"))
	assert.Empty(t, m.ConnectorMonitors("physical_disk", "Storage"))
	assert.Len(t, m.Monitors("physical_disk"), 1)
	_, ok := m.Monitor(models.MonitorTypeConnector, "connector_Storage")
	assert.True(t, ok, "the connector monitor is kept")
}
