//go:build windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	local := os.Getenv("LOCALAPPDATA")
	programData := os.Getenv("ProgramData")
	return []string{
		filepath.Join(local, "HWMon", "config.yaml"),
		filepath.Join(programData, "HWMon", "hwmon.yaml"),
	}
}
