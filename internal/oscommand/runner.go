package oscommand

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// ErrNoCredentials is returned when a remote command has no username.
var ErrNoCredentials = errors.New("no credentials provided")

// ErrRemoteWindows is returned for remote commands on Windows hosts, which
// need a remote Windows protocol this engine does not provide.
var ErrRemoteWindows = errors.New("remote commands on Windows hosts are not supported")

// CommandRunner runs a command on the local machine.
type CommandRunner interface {
	Run(ctx context.Context, command, masked string, timeout time.Duration) (string, error)
}

// Request describes one command to run for a host.
type Request struct {
	CommandLine string

	// Timeout overrides the configured timeouts when positive.
	Timeout time.Duration

	// ExecuteLocally runs the command on the engine machine even when the
	// host is remote.
	ExecuteLocally bool

	// EmbeddedFiles are the connector's embedded files by name.
	EmbeddedFiles map[string]string
}

// Result is the output of a command and the command that produced it, with
// the password masked.
type Result struct {
	Output  string
	Command string
}

// Executor chooses between local and SSH execution and prepares commands.
type Executor struct {
	logger  *zap.Logger
	local   CommandRunner
	remote  RemoteRunner
	limiter *Limiter
	tempDir string
}

// NewExecutor creates an executor running remote commands over SSH through
// limiter. A nil limiter allows one SSH command per host at a time.
func NewExecutor(logger *zap.Logger, limiter *Limiter) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = NewLimiter(nil, 0)
	}
	return &Executor{
		logger:  logger.Named("oscommand"),
		local:   LocalRunner{},
		remote:  SSHRunner{},
		limiter: limiter,
		tempDir: os.TempDir(),
	}
}

// IsLocal reports whether req runs on the engine machine for host.
func IsLocal(host *telemetry.HostConfiguration, req Request) bool {
	return req.ExecuteLocally || host.Local
}

// Run expands and executes req for host.
func (e *Executor) Run(ctx context.Context, host *telemetry.HostConfiguration, req Request) (Result, error) {
	local := IsLocal(host, req)
	sshCfg, _ := host.Protocol(telemetry.ProtocolSSH)
	osCfg, _ := host.Protocol(telemetry.ProtocolOSCommand)

	var username, password string
	if sshCfg != nil {
		username, password = sshCfg.Username, sshCfg.Password
	}
	if !local {
		if host.DeviceKind == connector.KindWindows {
			return Result{}, ErrRemoteWindows
		}
		if strings.TrimSpace(username) == "" {
			return Result{}, ErrNoCredentials
		}
	}

	timeout := Timeout(req.Timeout, osCfg, sshCfg)
	macros := Macros{Username: username, Password: password, Hostname: host.Hostname, Sudo: osCfg}

	log := e.logger.With(zap.String("hostname", host.Hostname), zap.Bool("local", local))

	if local {
		paths, cleanup, err := e.writeLocalFiles(req)
		if err != nil {
			return Result{}, err
		}
		defer cleanup()

		command, masked := macros.Expand(ReplaceEmbeddedFiles(req.CommandLine, paths))
		log.Debug("Running local command", zap.String("command", masked), zap.Duration("timeout", timeout))
		out, err := e.local.Run(ctx, command, masked, timeout)
		return Result{Output: out, Command: masked}, err
	}

	files, paths, err := remoteFiles(req)
	if err != nil {
		return Result{}, err
	}
	command, masked := macros.Expand(ReplaceEmbeddedFiles(req.CommandLine, paths))
	log.Debug("Running ssh command", zap.String("command", masked), zap.Duration("timeout", timeout))

	out, err := e.limiter.Do(ctx, host.Hostname, func() (string, error) {
		return e.remote.Run(ctx, host.Hostname, sshCfg, command, files, timeout)
	})
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		timeoutErr.Command = masked
	}
	return Result{Output: out, Command: masked}, err
}

// writeLocalFiles writes the embedded files referenced by the command to
// temporary files. cleanup removes them.
func (e *Executor) writeLocalFiles(req Request) (map[string]string, func(), error) {
	names := EmbeddedFileNames(req.CommandLine)
	paths := make(map[string]string, len(names))
	var created []string
	cleanup := func() {
		for _, p := range created {
			os.Remove(p)
		}
	}

	for _, name := range names {
		content, ok := req.EmbeddedFiles[name]
		if !ok {
			cleanup()
			return nil, func() {}, fmt.Errorf("embedded file %q not found", name)
		}
		f, err := os.CreateTemp(e.tempDir, "hwmon-*"+path.Ext(name))
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("create temp file for %q: %w", name, err)
		}
		created = append(created, f.Name())
		_, err = f.WriteString(content)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("write temp file for %q: %w", name, err)
		}
		if err := os.Chmod(f.Name(), 0o700); err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("chmod temp file for %q: %w", name, err)
		}
		paths[name] = f.Name()
	}
	return paths, cleanup, nil
}

// remoteFiles maps the embedded files referenced by the command to paths
// under /tmp on the remote host.
func remoteFiles(req Request) (map[string][]byte, map[string]string, error) {
	names := EmbeddedFileNames(req.CommandLine)
	files := make(map[string][]byte, len(names))
	paths := make(map[string]string, len(names))
	stamp := strconv.FormatInt(time.Now().UnixNano(), 36)

	for i, name := range names {
		content, ok := req.EmbeddedFiles[name]
		if !ok {
			return nil, nil, fmt.Errorf("embedded file %q not found", name)
		}
		p := fmt.Sprintf("/tmp/hwmon-%s-%d%s", stamp, i, path.Ext(name))
		files[p] = []byte(content)
		paths[name] = p
	}
	return files, paths, nil
}
