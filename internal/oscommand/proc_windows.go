//go:build windows

package oscommand

import (
	"context"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// shellCommand runs command with CMD.EXE /C. The process gets its own
// process group so the console control events of the engine do not reach it.
func shellCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "CMD.EXE", "/C", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	return cmd
}
