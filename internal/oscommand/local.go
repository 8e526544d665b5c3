package oscommand

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrCommandTimeout is returned when a command did not complete in time.
var ErrCommandTimeout = errors.New("command timed out")

// TimeoutError reports the command that timed out. The command is the
// masked one so it can be logged.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Command %q execution has timed out after %d s", e.Command, int64(e.Timeout/time.Second))
}

// Unwrap makes errors.Is(err, ErrCommandTimeout) hold.
func (e *TimeoutError) Unwrap() error { return ErrCommandTimeout }

// LocalRunner runs commands on the machine the engine runs on.
type LocalRunner struct{}

// Run executes command through the system shell and returns its standard
// output, lines joined with "\n". The exit status is ignored. masked is the
// command reported in errors.
func (LocalRunner) Run(ctx context.Context, command, masked string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return "", fmt.Errorf("invalid timeout %s", timeout)
	}
	if masked == "" {
		masked = command
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := shellCommand(ctx, command)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", &TimeoutError{Command: masked, Timeout: timeout}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("run %q: %w", masked, err)
		}
	}
	return joinLines(stdout.String()), nil
}

// joinLines normalizes line endings and drops the final newline.
func joinLines(output string) string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	return strings.Join(lines, "\n")
}
