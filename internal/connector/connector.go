// Package connector models the declarative connector description consumed by
// the engine: detection criteria, monitor jobs made of sources and computes,
// and translation tables. The model is read-only once decoded; every stage
// that needs to rewrite a definition works on a copy.
package connector

import (
	"fmt"
	"sort"
	"strings"
)

// DeviceKind is the kind of host a connector applies to.
type DeviceKind string

const (
	KindLinux   DeviceKind = "linux"
	KindWindows DeviceKind = "windows"
	KindAIX     DeviceKind = "aix"
	KindHPUX    DeviceKind = "hpux"
	KindSolaris DeviceKind = "solaris"
	KindTru64   DeviceKind = "tru64"
	KindOOB     DeviceKind = "oob"
	KindNetwork DeviceKind = "network"
	KindStorage DeviceKind = "storage"
	KindVMS     DeviceKind = "vms"
	KindOther   DeviceKind = "other"
)

// ParseDeviceKind maps a free-form OS name to a DeviceKind. Unknown names map
// to KindOther.
func ParseDeviceKind(s string) DeviceKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linux", "lin":
		return KindLinux
	case "windows", "win", "nt", "microsoft windows":
		return KindWindows
	case "aix", "ibm aix":
		return KindAIX
	case "hpux", "hp-ux", "hp":
		return KindHPUX
	case "solaris", "sun", "sunos":
		return KindSolaris
	case "tru64", "osf1":
		return KindTru64
	case "oob", "management", "out-of-band":
		return KindOOB
	case "network", "switch":
		return KindNetwork
	case "storage", "san":
		return KindStorage
	case "vms", "openvms":
		return KindVMS
	default:
		return KindOther
	}
}

// ConnectionType is a locality a connector can run from.
type ConnectionType string

const (
	ConnectionLocal  ConnectionType = "local"
	ConnectionRemote ConnectionType = "remote"
)

// Connector is one hardware/software integration: detection criteria plus
// the monitor jobs to run once the connector is accepted for a host.
type Connector struct {
	// ID is the connector file name without extension.
	ID string `yaml:"-"`

	DisplayName          string            `yaml:"displayName"`
	Information          string            `yaml:"information"`
	AppliesTo            []DeviceKind      `yaml:"appliesTo"`
	ConnectionTypes      []ConnectionType  `yaml:"connectionTypes"`
	Supersedes           []string          `yaml:"supersedes"`
	DisableAutoDetection bool              `yaml:"disableAutoDetection"`
	OnLastResort         string            `yaml:"onLastResort"`
	Criteria             CriterionList     `yaml:"criteria"`
	SudoCommands         []string          `yaml:"sudoCommands"`
	EmbeddedFiles        map[string]string `yaml:"embeddedFiles"`

	Translations map[string]TranslationTable `yaml:"translations"`

	// Jobs are ordered by monitor type then job name.
	Jobs []*Job `yaml:"-"`
}

// TranslationTable maps lowercase raw values to their translation. The
// "default" key, when present, is the fallback.
type TranslationTable map[string]string

// DefaultKey is the fallback key of a translation table.
const DefaultKey = "default"

// Lookup returns the translation of value, falling back to the default entry.
func (t TranslationTable) Lookup(value string) (string, bool) {
	if t == nil {
		return "", false
	}
	if v, ok := t[strings.ToLower(value)]; ok {
		return v, true
	}
	if v, ok := t[DefaultKey]; ok {
		return v, true
	}
	return "", false
}

// Job is one named job (discovery, collect, simple) of a monitor type.
type Job struct {
	Monitor string `yaml:"-"`
	Name    string `yaml:"-"`

	// Sources by name. SourceOrder keeps the declaration order.
	Sources     map[string]Source `yaml:"-"`
	SourceOrder []string          `yaml:"-"`

	// ExecutionOrder, when set, lists every source name exactly once.
	ExecutionOrder []string `yaml:"executionOrder"`

	// DependencyTree is an ordered list of source name sets.
	DependencyTree [][]string `yaml:"dependencyTree"`

	Mapping *Mapping `yaml:"mapping"`
}

// Mapping turns the rows of a source table into monitors.
type Mapping struct {
	Source     string            `yaml:"source"`
	Attributes map[string]string `yaml:"attributes"`
	Metrics    map[string]string `yaml:"metrics"`
}

// Key returns the job identifier used in logs and source keys.
func (j *Job) Key() string {
	return j.Monitor + "." + j.Name
}

// SourceKey returns the namespace key of a source declared in this job.
func (j *Job) SourceKey(name string) string {
	return SourceKey(j.Monitor, j.Name, name)
}

// SourceKey builds the namespace key of a source:
// monitors.<monitor>.<job>.sources.<name>.
func SourceKey(monitor, job, name string) string {
	return fmt.Sprintf("monitors.%s.%s.sources.%s", monitor, job, name)
}

// Job returns the job of the given monitor type and name.
func (c *Connector) Job(monitor, name string) (*Job, bool) {
	for _, j := range c.Jobs {
		if j.Monitor == monitor && j.Name == name {
			return j, true
		}
	}
	return nil, false
}

// MonitorTypes returns the sorted monitor types the connector declares jobs for.
func (c *Connector) MonitorTypes() []string {
	seen := make(map[string]struct{})
	for _, j := range c.Jobs {
		seen[j.Monitor] = struct{}{}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// AppliesToKind reports whether the connector applies to kind. An empty
// AppliesTo set means no restriction.
func (c *Connector) AppliesToKind(kind DeviceKind) bool {
	if len(c.AppliesTo) == 0 {
		return true
	}
	for _, k := range c.AppliesTo {
		if k == kind {
			return true
		}
	}
	return false
}

// SupportsLocal reports whether the connector can run on the local host.
func (c *Connector) SupportsLocal() bool {
	return c.supports(ConnectionLocal)
}

// SupportsRemote reports whether the connector can run against a remote host.
func (c *Connector) SupportsRemote() bool {
	return c.supports(ConnectionRemote)
}

func (c *Connector) supports(t ConnectionType) bool {
	if len(c.ConnectionTypes) == 0 {
		return true
	}
	for _, ct := range c.ConnectionTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// AppliesToOS returns the sorted, lowercase, comma-joined device kinds.
func (c *Connector) AppliesToOS() string {
	kinds := make([]string, 0, len(c.AppliesTo))
	for _, k := range c.AppliesTo {
		kinds = append(kinds, strings.ToLower(string(k)))
	}
	sort.Strings(kinds)
	return strings.Join(kinds, ",")
}

// NormalizeID lowercases a connector id and trims a connector file suffix.
func NormalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, ext := range []string{".yaml", ".yml", ".connector", ".hdfs"} {
		id = strings.TrimSuffix(id, ext)
	}
	return id
}

// Translation resolves a translation table by name.
func (c *Connector) Translation(name string) (TranslationTable, bool) {
	if c == nil || c.Translations == nil {
		return nil, false
	}
	t, ok := c.Translations[name]
	return t, ok
}
