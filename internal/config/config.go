// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > embedded > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "15s", "30s", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds the whole engine configuration.
type Config struct {
	Hosts      []HostConfig     `yaml:"hosts"`
	Connectors ConnectorsConfig `yaml:"connectors"`
	Collection CollectionConfig `yaml:"collection"`
	Logging    LoggingConfig    `yaml:"logging"`
	Export     ExportConfig     `yaml:"export"`
}

// HostConfig describes one monitored host.
type HostConfig struct {
	ID         string `yaml:"id,omitempty"`
	Hostname   string `yaml:"hostname"`
	Type       string `yaml:"type,omitempty"`
	Local      bool   `yaml:"local,omitempty"`
	Sequential bool   `yaml:"sequential,omitempty"`

	// Connectors restricts detection to these connector ids.
	Connectors        []string `yaml:"connectors,omitempty"`
	ExcludeConnectors []string `yaml:"exclude_connectors,omitempty"`

	Protocols map[string]ProtocolConfig `yaml:"protocols,omitempty"`
}

// ProtocolConfig holds the credentials and settings of one protocol.
type ProtocolConfig struct {
	Username        string            `yaml:"username,omitempty"`
	Password        string            `yaml:"password,omitempty"`
	PrivateKey      string            `yaml:"private_key,omitempty"`
	Port            int               `yaml:"port,omitempty"`
	Timeout         Duration          `yaml:"timeout,omitempty"`
	UseSudo         bool              `yaml:"use_sudo,omitempty"`
	SudoCommand     string            `yaml:"sudo_command,omitempty"`
	UseSudoCommands []string          `yaml:"use_sudo_commands,omitempty"`
	Options         map[string]string `yaml:"options,omitempty"`
}

// ConnectorsConfig locates the connector definitions.
type ConnectorsConfig struct {
	Directory string `yaml:"directory"`
}

// CollectionConfig holds the monitoring cycle settings.
type CollectionConfig struct {
	Interval      Duration `yaml:"interval"`
	ParallelHosts int      `yaml:"parallel_hosts"`
	SSHPermits    int      `yaml:"ssh_permits"`
	PermitTimeout Duration `yaml:"permit_timeout"`
	RetryDelay    Duration `yaml:"retry_delay"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ExportConfig holds the snapshot export settings. Export is disabled when
// URL is empty.
type ExportConfig struct {
	URL             string `yaml:"url"`
	Token           string `yaml:"token"`
	BufferDir       string `yaml:"buffer_dir"`
	BufferMaxSizeMB int    `yaml:"buffer_max_size_mb"`
}

// Enabled reports whether snapshots are exported.
func (e ExportConfig) Enabled() bool {
	return e.URL != ""
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Connectors: ConnectorsConfig{
			Directory: "./connectors",
		},
		Collection: CollectionConfig{
			Interval:      Duration{2 * time.Minute},
			ParallelHosts: 20,
			SSHPermits:    1,
			PermitTimeout: Duration{2 * time.Minute},
			RetryDelay:    Duration{2 * time.Second},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "./hwmon.log",
		},
		Export: ExportConfig{
			BufferDir:       "./buffer",
			BufferMaxSizeMB: 50,
		},
	}
}

// LoadFromBytes parses YAML configuration from a byte slice and merges with defaults.
// Environment variables take highest precedence and override values from the byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config data: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Load reads configuration from a YAML file and merges with defaults.
// If path is empty or the file does not exist, only defaults and environment
// variables are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromBytes(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		return LoadFromBytes(nil)
	}

	return LoadFromBytes(data)
}

// CLIOverrides holds values from command-line flags.
// Empty strings are treated as "not set" and skipped.
type CLIOverrides struct {
	ExportURL     string
	Token         string
	ConnectorsDir string
	LogLevel      string
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value  → use that path ("" means no external file)
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	var filePath string
	if len(configPath) > 0 {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", filePath, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if cli.ExportURL != "" {
		cfg.Export.URL = cli.ExportURL
	}
	if cli.Token != "" {
		cfg.Export.Token = cli.Token
	}
	if cli.ConnectorsDir != "" {
		cfg.Connectors.Directory = cli.ConnectorsDir
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}

	return cfg, nil
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies HW_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("HW_EXPORT_URL"); url != "" {
		cfg.Export.URL = url
	}
	if token := os.Getenv("HW_EXPORT_TOKEN"); token != "" {
		cfg.Export.Token = token
	}
	if level := os.Getenv("HW_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if dir := os.Getenv("HW_CONNECTORS_DIR"); dir != "" {
		cfg.Connectors.Directory = dir
	}
	if interval := os.Getenv("HW_COLLECTION_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Collection.Interval = Duration{d}
		}
	}
	if permits := os.Getenv("HW_SSH_PERMITS"); permits != "" {
		if n, err := strconv.Atoi(permits); err == nil {
			cfg.Collection.SSHPermits = n
		}
	}
}

var knownProtocols = map[string]bool{
	telemetry.ProtocolSSH:       true,
	telemetry.ProtocolOSCommand: true,
	telemetry.ProtocolHTTP:      true,
	telemetry.ProtocolSNMP:      true,
	telemetry.ProtocolWMI:       true,
	telemetry.ProtocolWBEM:      true,
	telemetry.ProtocolIPMI:      true,
	telemetry.ProtocolSQL:       true,
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs error

	if c.Collection.Interval.Duration <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("collection interval must be positive"))
	}
	if c.Collection.ParallelHosts < 1 {
		errs = multierr.Append(errs, fmt.Errorf("collection parallel_hosts must be at least 1"))
	}
	if c.Collection.SSHPermits < 1 {
		errs = multierr.Append(errs, fmt.Errorf("collection ssh_permits must be at least 1"))
	}
	if c.Connectors.Directory == "" {
		errs = multierr.Append(errs, fmt.Errorf("connectors directory is required"))
	}

	seen := make(map[string]bool)
	for i, h := range c.Hosts {
		if h.Hostname == "" && !h.Local {
			errs = multierr.Append(errs, fmt.Errorf("hosts[%d]: hostname is required", i))
		}
		id := strings.ToLower(h.MonitorID())
		if id != "" && seen[id] {
			errs = multierr.Append(errs, fmt.Errorf("hosts[%d]: duplicate host id %q", i, h.MonitorID()))
		}
		seen[id] = true
		for name := range h.Protocols {
			if !knownProtocols[strings.ToLower(name)] {
				errs = multierr.Append(errs, fmt.Errorf("hosts[%d]: unknown protocol %q", i, name))
			}
		}
	}

	if c.Export.Enabled() && !strings.HasPrefix(c.Export.URL, "https://") {
		// Allow localhost for development
		if !strings.Contains(c.Export.URL, "localhost") && !strings.Contains(c.Export.URL, "127.0.0.1") {
			errs = multierr.Append(errs, fmt.Errorf("export URL must use HTTPS (got: %s)", c.Export.URL))
		}
	}
	return errs
}

// MonitorID returns the host id, or the hostname when no id is set.
func (h HostConfig) MonitorID() string {
	if h.ID != "" {
		return h.ID
	}
	return h.Hostname
}

// LocalHost is the host monitored when no host is configured.
func LocalHost() HostConfig {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "localhost"
	}
	return HostConfig{Hostname: name, Local: true}
}

// Telemetry converts the host to the engine host configuration. localKind is
// the device kind used for local hosts without an explicit type.
func (h HostConfig) Telemetry(localKind connector.DeviceKind) *telemetry.HostConfiguration {
	kind := connector.ParseDeviceKind(h.Type)
	if h.Type == "" && h.Local {
		kind = localKind
	}
	hostname := h.Hostname
	if hostname == "" {
		hostname = "localhost"
	}

	protocols := make(map[string]*telemetry.ProtocolConfig, len(h.Protocols))
	for name, p := range h.Protocols {
		protocols[strings.ToLower(name)] = &telemetry.ProtocolConfig{
			Username:        p.Username,
			Password:        p.Password,
			PrivateKey:      p.PrivateKey,
			Port:            p.Port,
			Timeout:         p.Timeout.Duration,
			UseSudo:         p.UseSudo,
			SudoCommand:     p.SudoCommand,
			UseSudoCommands: append([]string(nil), p.UseSudoCommands...),
			Options:         p.Options,
		}
	}

	return &telemetry.HostConfiguration{
		HostID:             h.MonitorID(),
		Hostname:           hostname,
		DeviceKind:         kind,
		Local:              h.Local,
		Sequential:         h.Sequential,
		SelectedConnectors: append([]string(nil), h.Connectors...),
		ExcludedConnectors: append([]string(nil), h.ExcludeConnectors...),
		Protocols:          protocols,
	}
}
