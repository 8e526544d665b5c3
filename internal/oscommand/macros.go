// Package oscommand runs the OS commands of connectors, locally or on the
// monitored host over SSH. It expands the command macros, materializes the
// embedded files a command refers to and bounds the number of concurrent SSH
// commands per host.
package oscommand

import (
	"regexp"
	"strings"
	"time"

	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// DefaultTimeout applies when neither the command nor the configuration
// sets one.
const DefaultTimeout = 30 * time.Second

// Mask replaces the password in commands written to logs and results.
const Mask = "********"

var (
	usernameMacro = regexp.MustCompile(`(?i)%\{USERNAME\}`)
	passwordMacro = regexp.MustCompile(`(?i)%\{PASSWORD\}`)
	hostnameMacro = regexp.MustCompile(`(?i)%\{HOSTNAME\}`)
	sudoMacro     = regexp.MustCompile(`(?i)%\{SUDO:([^\}]*)\}`)
	filePattern   = regexp.MustCompile(`(?i)\$\{file::([^\}]+)\}`)
)

// Macros holds the values substituted into a command line.
type Macros struct {
	Username string
	Password string
	Hostname string

	// Sudo is the OS command configuration; nil disables sudo.
	Sudo *telemetry.ProtocolConfig
}

// Expand replaces the macros in command. It returns the command to execute
// and the same command with the password masked.
func (m Macros) Expand(command string) (string, string) {
	if m.Username != "" {
		command = usernameMacro.ReplaceAllLiteralString(command, m.Username)
	}
	command = hostnameMacro.ReplaceAllLiteralString(command, m.Hostname)
	command = ReplaceSudo(command, m.Sudo)

	if m.Password == "" {
		return command, command
	}
	return passwordMacro.ReplaceAllLiteralString(command, m.Password),
		passwordMacro.ReplaceAllLiteralString(command, Mask)
}

// ReplaceSudo replaces %{SUDO:cmd} with the configured sudo command when
// sudo is enabled and cmd is one of the commands allowed to use it, and with
// nothing otherwise.
func ReplaceSudo(command string, cfg *telemetry.ProtocolConfig) string {
	if !strings.Contains(command, "%{") {
		return command
	}
	return sudoMacro.ReplaceAllStringFunc(command, func(match string) string {
		if cfg == nil || !cfg.UseSudo {
			return ""
		}
		target := sudoMacro.FindStringSubmatch(match)[1]
		for _, allowed := range cfg.UseSudoCommands {
			if allowed == target {
				return sudoCommand(cfg)
			}
		}
		return ""
	})
}

func sudoCommand(cfg *telemetry.ProtocolConfig) string {
	if cfg.SudoCommand != "" {
		return cfg.SudoCommand
	}
	return "sudo"
}

// EmbeddedFileNames returns the names of the ${file::name} references in
// command, in order of appearance and without duplicates.
func EmbeddedFileNames(command string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range filePattern.FindAllStringSubmatch(command, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// ReplaceEmbeddedFiles replaces every ${file::name} reference with the path
// returned by paths. References without a path are left untouched.
func ReplaceEmbeddedFiles(command string, paths map[string]string) string {
	if len(paths) == 0 {
		return command
	}
	return filePattern.ReplaceAllStringFunc(command, func(match string) string {
		if p, ok := paths[filePattern.FindStringSubmatch(match)[1]]; ok {
			return p
		}
		return match
	})
}

// Timeout picks the timeout of a command: the command's own, then the OS
// command configuration's, then the protocol's, then DefaultTimeout.
func Timeout(command time.Duration, osCommand, protocol *telemetry.ProtocolConfig) time.Duration {
	switch {
	case command > 0:
		return command
	case osCommand != nil && osCommand.Timeout > 0:
		return osCommand.Timeout
	case protocol != nil && protocol.Timeout > 0:
		return protocol.Timeout
	default:
		return DefaultTimeout
	}
}
