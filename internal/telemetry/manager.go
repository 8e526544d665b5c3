package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/models"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

// Namespace stores the source results of one connector on one host for the
// duration of a cycle. Only the keys that held rows are remembered from the
// previous cycle.
type Namespace struct {
	mu       sync.RWMutex
	tables   map[string]*sourcetable.Table
	filled   map[string]bool
	previous map[string]bool

	// serialization guards criteria and sources flagged forceSerialization.
	serialization sync.Mutex
}

// NewNamespace returns an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{
		tables:   make(map[string]*sourcetable.Table),
		filled:   make(map[string]bool),
		previous: make(map[string]bool),
	}
}

// SourceTable returns the table stored under key. When no exact match
// exists, a single key ending with "."+key is accepted.
func (n *Namespace) SourceTable(key string) (*sourcetable.Table, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if t, ok := n.tables[key]; ok {
		return t, true
	}

	var found *sourcetable.Table
	for k, t := range n.tables {
		if strings.HasSuffix(k, "."+key) {
			if found != nil {
				return nil, false
			}
			found = t
		}
	}
	return found, found != nil
}

// SetSourceTable stores a table under key, replacing any previous one.
func (n *Namespace) SetSourceTable(key string, t *sourcetable.Table) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tables[key] = t
	if t != nil && !t.IsEmpty() {
		n.filled[key] = true
	}
}

// WasFilled reports whether the source stored under key had rows during the
// previous cycle.
func (n *Namespace) WasFilled(key string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.previous[key]
}

// Reset drops every stored table and starts a new cycle.
func (n *Namespace) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tables = make(map[string]*sourcetable.Table)
	n.previous = n.filled
	n.filled = make(map[string]bool)
}

// Serialize runs fn while holding the namespace serialization lock.
func (n *Namespace) Serialize(fn func()) {
	n.serialization.Lock()
	defer n.serialization.Unlock()
	fn()
}

// Manager holds everything known about one host during a cycle.
type Manager struct {
	Host *HostConfiguration

	mu         sync.Mutex
	namespaces map[string]*Namespace
	monitors   map[string]map[string]*models.Monitor
	connectors map[string]*connector.Connector
}

// NewManager creates the state holder of a host.
func NewManager(host *HostConfiguration) *Manager {
	return &Manager{
		Host:       host,
		namespaces: make(map[string]*Namespace),
		monitors:   make(map[string]map[string]*models.Monitor),
		connectors: make(map[string]*connector.Connector),
	}
}

// SetConnectors records the connectors available to the host, keyed by
// their normalized id.
func (m *Manager) SetConnectors(connectors []*connector.Connector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectors = make(map[string]*connector.Connector, len(connectors))
	for _, c := range connectors {
		m.connectors[connector.NormalizeID(c.ID)] = c
	}
}

// Connector returns a connector recorded with SetConnectors.
func (m *Manager) Connector(id string) (*connector.Connector, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connectors[connector.NormalizeID(id)]
	return c, ok
}

// Namespace returns the namespace of a connector, creating it on first use.
func (m *Manager) Namespace(connectorID string) *Namespace {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[connectorID]
	if !ok {
		ns = NewNamespace()
		m.namespaces[connectorID] = ns
	}
	return ns
}

// ResetNamespaces drops the source results of every connector. The cycle
// runner calls it first so results never leak from one cycle to the next.
func (m *Manager) ResetNamespaces() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ns := range m.namespaces {
		ns.Reset()
	}
}

// UpsertMonitor returns the monitor of the given type and id, creating it
// when missing. The returned monitor must only be modified through
// UpdateMonitor.
func (m *Manager) UpsertMonitor(monitorType, id string) *models.Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.monitors[monitorType]
	if !ok {
		byID = make(map[string]*models.Monitor)
		m.monitors[monitorType] = byID
	}
	mon, ok := byID[id]
	if !ok {
		mon = models.NewMonitor(monitorType, id)
		mon.DiscoveryAt = time.Now().UTC()
		byID[id] = mon
	}
	return mon
}

// UpdateMonitor upserts a monitor then applies fn to it under the manager lock.
func (m *Manager) UpdateMonitor(monitorType, id string, fn func(*models.Monitor)) {
	mon := m.UpsertMonitor(monitorType, id)
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(mon)
}

// Monitor returns a copy of a monitor.
func (m *Manager) Monitor(monitorType, id string) (models.Monitor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mon, ok := m.monitors[monitorType][id]
	if !ok {
		return models.Monitor{}, false
	}
	return mon.Copy(), true
}

// Monitors returns copies of all monitors of a type.
func (m *Manager) Monitors(monitorType string) []models.Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Monitor, 0, len(m.monitors[monitorType]))
	for _, mon := range m.monitors[monitorType] {
		out = append(out, mon.Copy())
	}
	return out
}

// RemoveDiscoveredMonitors drops the monitors a connector discovered. Its
// connector monitor is kept.
func (m *Manager) RemoveDiscoveredMonitors(connectorID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for monitorType, byID := range m.monitors {
		if monitorType == models.MonitorTypeConnector {
			continue
		}
		for id, mon := range byID {
			if mon.ConnectorID == connectorID {
				delete(byID, id)
				removed++
			}
		}
	}
	return removed
}

// ConnectorMonitors returns copies of the monitors of a type owned by a
// connector, sorted by id.
func (m *Manager) ConnectorMonitors(monitorType, connectorID string) []models.Monitor {
	m.mu.Lock()
	var out []models.Monitor
	for _, mon := range m.monitors[monitorType] {
		if mon.ConnectorID == connectorID {
			out = append(out, mon.Copy())
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HostMonitorID returns the id of the host monitor.
func (m *Manager) HostMonitorID() string {
	if m.Host.HostID != "" {
		return m.Host.HostID
	}
	return m.Host.Hostname
}

// Snapshot returns a sorted copy of every monitor of the host.
func (m *Manager) Snapshot() models.HostSnapshot {
	m.mu.Lock()
	snap := models.HostSnapshot{
		Timestamp: time.Now().UTC(),
		HostID:    m.HostMonitorID(),
		Hostname:  m.Host.Hostname,
	}
	for _, byID := range m.monitors {
		for _, mon := range byID {
			snap.Monitors = append(snap.Monitors, mon.Copy())
		}
	}
	m.mu.Unlock()

	snap.SortMonitors()
	return snap
}
