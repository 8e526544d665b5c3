package oscommand

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/vitalis-app/hwmon/internal/telemetry"
)

func TestMacrosExpand(t *testing.T) {
	m := Macros{
		Username: "admin",
		Password: "s3cr$t",
		Hostname: "server-1",
		Sudo:     &telemetry.ProtocolConfig{UseSudo: true, UseSudoCommands: []string{"lsblk"}},
	}

	tests := []struct {
		in         string
		wantCmd    string
		wantMasked string
	}{
		{"whoami", "whoami", "whoami"},
		{"login %{username} %{Password} on %{HOSTNAME}", "login admin s3cr$t on server-1", "login admin ******** on server-1"},
		{"%{SUDO:lsblk} lsblk", "sudo lsblk", "sudo lsblk"},
		{"%{SUDO:fdisk} fdisk -l", " fdisk -l", " fdisk -l"},
	}

	for _, tt := range tests {
		gotCmd, gotMasked := m.Expand(tt.in)
		if gotCmd != tt.wantCmd || gotMasked != tt.wantMasked {
			t.Errorf("Expand(%q) = (%q, %q), want (%q, %q)", tt.in, gotCmd, gotMasked, tt.wantCmd, tt.wantMasked)
		}
	}
}

func TestReplaceSudo(t *testing.T) {
	cmd := "%{SUDO:dmidecode} dmidecode"

	assert.Equal(t, " dmidecode", ReplaceSudo(cmd, nil))
	assert.Equal(t, " dmidecode", ReplaceSudo(cmd, &telemetry.ProtocolConfig{UseSudoCommands: []string{"dmidecode"}}))
	assert.Equal(t, "pfexec dmidecode", ReplaceSudo(cmd, &telemetry.ProtocolConfig{
		UseSudo:         true,
		SudoCommand:     "pfexec",
		UseSudoCommands: []string{"dmidecode"},
	}))
}

func TestEmbeddedFiles(t *testing.T) {
	cmd := "/bin/sh ${file::probe.sh} ${FILE::probe.sh} ${file::other}"
	assert.Equal(t, []string{"probe.sh", "other"}, EmbeddedFileNames(cmd))
	assert.Equal(t, "/bin/sh /tmp/a /tmp/a ${file::other}", ReplaceEmbeddedFiles(cmd, map[string]string{"probe.sh": "/tmp/a"}))
}

func TestTimeout(t *testing.T) {
	osCfg := &telemetry.ProtocolConfig{Timeout: 20 * time.Second}
	sshCfg := &telemetry.ProtocolConfig{Timeout: 10 * time.Second}

	tests := []struct {
		name    string
		command time.Duration
		os, ssh *telemetry.ProtocolConfig
		want    time.Duration
	}{
		{"command wins", 5 * time.Second, osCfg, sshCfg, 5 * time.Second},
		{"os command config", 0, osCfg, sshCfg, 20 * time.Second},
		{"protocol config", 0, &telemetry.ProtocolConfig{}, sshCfg, 10 * time.Second},
		{"default", 0, nil, nil, DefaultTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Timeout(tt.command, tt.os, tt.ssh))
		})
	}
}

func TestTimeoutError(t *testing.T) {
	err := error(&TimeoutError{Command: "sleep 60", Timeout: 2 * time.Second})
	assert.True(t, errors.Is(err, ErrCommandTimeout))
	assert.Equal(t, `Command "sleep 60" execution has timed out after 2 s`, err.Error())
}

func TestLimiterPermitTimeout(t *testing.T) {
	l := NewLimiter(PermitFactory(1), 20*time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.Do(context.Background(), "host-1", func() (string, error) {
			close(started)
			<-release
			return "", nil
		})
	}()
	<-started

	_, err := l.Do(context.Background(), "HOST-1", func() (string, error) { return "ok", nil })
	require.ErrorIs(t, err, ErrPermitTimeout)
	assert.Equal(t, "Failed to run SSH command on HOST-1. Timed out trying to get ssh semaphore permit.", err.Error())

	out, err := l.Do(context.Background(), "host-2", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", out, "permits are per host")

	close(release)
	wg.Wait()
}

func TestLimiterUsesFactoryOncePerHost(t *testing.T) {
	calls := 0
	l := NewLimiter(func(string) *semaphore.Weighted {
		calls++
		return semaphore.NewWeighted(2)
	}, time.Second)

	for i := 0; i < 3; i++ {
		_, err := l.Do(context.Background(), "host-1", func() (string, error) { return "", nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}

func TestLimiterCanceled(t *testing.T) {
	l := NewLimiter(PermitFactory(1), time.Hour)
	sem := l.semaphore("h")
	require.True(t, sem.TryAcquire(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Do(ctx, "h", func() (string, error) { return "", nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrPermitTimeout)
}

type fakeLocal struct {
	command, masked string
	timeout         time.Duration
	files           map[string]string
}

func (f *fakeLocal) Run(_ context.Context, command, masked string, timeout time.Duration) (string, error) {
	f.command, f.masked, f.timeout = command, masked, timeout
	f.files = make(map[string]string)
	for _, field := range strings.Fields(command) {
		if data, err := os.ReadFile(field); err == nil {
			f.files[field] = string(data)
		}
	}
	return "output", nil
}

type fakeRemote struct {
	host    string
	command string
	files   map[string][]byte
	err     error
}

func (f *fakeRemote) Run(_ context.Context, host string, _ *telemetry.ProtocolConfig, command string, files map[string][]byte, _ time.Duration) (string, error) {
	f.host, f.command, f.files = host, command, files
	return "remote output", f.err
}

func newTestExecutor(t *testing.T) (*Executor, *fakeLocal, *fakeRemote) {
	t.Helper()
	local, remote := &fakeLocal{}, &fakeRemote{}
	e := NewExecutor(nil, nil)
	e.local = local
	e.remote = remote
	e.tempDir = t.TempDir()
	return e, local, remote
}

func TestExecutorLocal(t *testing.T) {
	e, local, _ := newTestExecutor(t)
	host := &telemetry.HostConfiguration{
		Hostname: "localhost",
		Local:    true,
		Protocols: map[string]*telemetry.ProtocolConfig{
			telemetry.ProtocolOSCommand: {Timeout: 7 * time.Second},
		},
	}

	res, err := e.Run(context.Background(), host, Request{
		CommandLine:   "/bin/sh ${file::probe.sh} %{HOSTNAME}",
		EmbeddedFiles: map[string]string{"probe.sh": "echo hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "output", res.Output)
	assert.Equal(t, 7*time.Second, local.timeout)

	fields := strings.Fields(local.command)
	require.Len(t, fields, 3)
	assert.Equal(t, "localhost", fields[2])
	assert.Equal(t, "echo hi", local.files[fields[1]], "embedded file written before the run")

	_, err = os.Stat(fields[1])
	assert.True(t, os.IsNotExist(err), "embedded file removed after the run")
}

func TestExecutorMissingEmbeddedFile(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	_, err := e.Run(context.Background(), &telemetry.HostConfiguration{Local: true}, Request{CommandLine: "${file::nope}"})
	assert.ErrorContains(t, err, `embedded file "nope" not found`)
}

func TestExecutorRemote(t *testing.T) {
	e, _, remote := newTestExecutor(t)
	host := &telemetry.HostConfiguration{
		Hostname: "server-1",
		Protocols: map[string]*telemetry.ProtocolConfig{
			telemetry.ProtocolSSH: {Username: "admin", Password: "pw"},
		},
	}

	res, err := e.Run(context.Background(), host, Request{
		CommandLine:   "sh ${file::a.sh} -u %{USERNAME} -p %{PASSWORD}",
		EmbeddedFiles: map[string]string{"a.sh": "uname"},
	})
	require.NoError(t, err)
	assert.Equal(t, "remote output", res.Output)
	assert.Equal(t, "server-1", remote.host)
	assert.Contains(t, remote.command, "-u admin -p pw")
	assert.Contains(t, res.Command, "-p ********")

	require.Len(t, remote.files, 1)
	for p, content := range remote.files {
		assert.True(t, strings.HasPrefix(p, "/tmp/hwmon-"))
		assert.Contains(t, remote.command, p)
		assert.Equal(t, "uname", string(content))
	}
}

func TestExecutorRemoteErrors(t *testing.T) {
	e, _, remote := newTestExecutor(t)

	_, err := e.Run(context.Background(), &telemetry.HostConfiguration{Hostname: "server-1"}, Request{CommandLine: "ls"})
	assert.ErrorIs(t, err, ErrNoCredentials)

	host := &telemetry.HostConfiguration{
		Hostname:  "server-1",
		Protocols: map[string]*telemetry.ProtocolConfig{telemetry.ProtocolSSH: {Username: "u", Password: "secret"}},
	}
	remote.err = &TimeoutError{Command: "ls secret", Timeout: time.Second}
	res, err := e.Run(context.Background(), host, Request{CommandLine: "ls %{PASSWORD}"})
	require.ErrorIs(t, err, ErrCommandTimeout)
	assert.NotContains(t, err.Error(), "secret")
	assert.Equal(t, "ls ********", res.Command)

	_, err = e.Run(context.Background(), host, Request{CommandLine: "ls", ExecuteLocally: true})
	assert.NoError(t, err, "execute locally needs no remote credentials")
}
