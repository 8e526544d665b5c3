// Local host facts: the operating system of the machine the engine runs on.
// Uses gopsutil for the platform, refined with /etc/os-release on Linux.
//
// Results are cached since the OS rarely changes during runtime.
package collector

import (
	"context"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/vitalis-app/hwmon/internal/connector"
)

// HostFacts describes the local operating system.
type HostFacts struct {
	OSName     string               `json:"os_name"`
	OSVersion  string               `json:"os_version"`
	DeviceKind connector.DeviceKind `json:"device_kind"`
}

// HostFactsCollector gathers the local host facts once.
type HostFactsCollector struct {
	cache HostFacts
	once  sync.Once
}

// NewHostFactsCollector creates a new host facts collector.
func NewHostFactsCollector() *HostFactsCollector {
	return &HostFactsCollector{}
}

// Collect returns the local host facts. Results are cached after the first call.
func (c *HostFactsCollector) Collect(ctx context.Context) HostFacts {
	c.once.Do(func() {
		c.cache = collectHostFacts(ctx)
	})
	return c.cache
}

func collectHostFacts(ctx context.Context) HostFacts {
	facts := HostFacts{
		OSName:     runtime.GOOS,
		OSVersion:  "unknown",
		DeviceKind: connector.ParseDeviceKind(runtime.GOOS),
	}

	info, err := host.InfoWithContext(ctx)
	if err == nil {
		if info.Platform != "" {
			facts.OSName = info.Platform
		}
		if info.PlatformVersion != "" {
			facts.OSVersion = info.PlatformVersion
		}
		if info.OS != "" {
			facts.DeviceKind = connector.ParseDeviceKind(info.OS)
		}
	}

	if runtime.GOOS == "linux" {
		if content, err := os.ReadFile("/etc/os-release"); err == nil {
			fields := parseKeyValueFile(string(content))
			if pretty, ok := fields["PRETTY_NAME"]; ok {
				facts.OSName = strings.Trim(pretty, "\"")
			}
			if version, ok := fields["VERSION_ID"]; ok {
				facts.OSVersion = strings.Trim(version, "\"")
			}
		}
	}
	return facts
}

// parseKeyValueFile parses a file with KEY=VALUE lines (like /etc/os-release).
func parseKeyValueFile(content string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			fields[parts[0]] = parts[1]
		}
	}
	return fields
}
