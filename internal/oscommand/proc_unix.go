//go:build !windows

package oscommand

import (
	"context"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// shellCommand runs command with /bin/sh in its own process group so that a
// timeout kills the shell and everything it started.
func shellCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	return cmd
}
