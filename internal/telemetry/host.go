// Package telemetry holds the per-host state of a monitoring cycle: the host
// configuration, the per-connector source result namespaces used to resolve
// cross-source references, and the monitors produced so far.
package telemetry

import (
	"strings"
	"time"

	"github.com/vitalis-app/hwmon/internal/connector"
)

// Protocol names used as keys of HostConfiguration.Protocols.
const (
	ProtocolSSH       = "ssh"
	ProtocolOSCommand = "oscommand"
	ProtocolHTTP      = "http"
	ProtocolSNMP      = "snmp"
	ProtocolWMI       = "wmi"
	ProtocolWBEM      = "wbem"
	ProtocolIPMI      = "ipmi"
	ProtocolSQL       = "sql"
)

// ProtocolConfig is the configuration of one protocol for one host.
type ProtocolConfig struct {
	Username   string
	Password   string
	PrivateKey string
	Port       int
	Timeout    time.Duration

	// UseSudo and SudoCommand apply to OS commands.
	UseSudo         bool
	SudoCommand     string
	UseSudoCommands []string

	// Options carries protocol specific settings (community, namespace, ...).
	Options map[string]string
}

// HostConfiguration describes a monitored host.
type HostConfiguration struct {
	HostID     string
	Hostname   string
	DeviceKind connector.DeviceKind

	// Local is set when the host is the machine the engine runs on.
	Local bool

	// Sequential disables parallel evaluation of criteria.
	Sequential bool

	// SelectedConnectors restricts detection to these ids when non-empty.
	SelectedConnectors []string

	// ExcludedConnectors are never detected.
	ExcludedConnectors []string

	// Protocols by lowercase protocol name.
	Protocols map[string]*ProtocolConfig
}

// Protocol returns the configuration of a protocol, if configured.
func (h *HostConfiguration) Protocol(name string) (*ProtocolConfig, bool) {
	if h == nil || h.Protocols == nil {
		return nil, false
	}
	p, ok := h.Protocols[strings.ToLower(name)]
	return p, ok && p != nil
}

// IsSelected reports whether the connector id passes the selection and
// exclusion lists. Comparison is done on normalized ids.
func (h *HostConfiguration) IsSelected(id string) bool {
	id = connector.NormalizeID(id)
	for _, ex := range h.ExcludedConnectors {
		if connector.NormalizeID(ex) == id {
			return false
		}
	}
	if len(h.SelectedConnectors) == 0 {
		return true
	}
	for _, sel := range h.SelectedConnectors {
		if connector.NormalizeID(sel) == id {
			return true
		}
	}
	return false
}
