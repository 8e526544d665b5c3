package oscommand

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// DefaultSSHPort is used when the SSH configuration has no port.
const DefaultSSHPort = 22

// RemoteRunner runs commands on a remote host.
type RemoteRunner interface {
	// Run uploads files (remote path to content), executes command and
	// removes the files.
	Run(ctx context.Context, host string, cfg *telemetry.ProtocolConfig, command string, files map[string][]byte, timeout time.Duration) (string, error)
}

// SSHRunner runs commands over SSH.
type SSHRunner struct {
	// HostKeyCallback verifies the remote host key. Nil accepts any key.
	HostKeyCallback ssh.HostKeyCallback
}

// Run dials host, runs command in a new session and returns its standard
// output, lines joined with "\n".
func (r SSHRunner) Run(ctx context.Context, host string, cfg *telemetry.ProtocolConfig, command string, files map[string][]byte, timeout time.Duration) (string, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return "", err
	}
	callback := r.HostKeyCallback
	if callback == nil {
		callback = ssh.InsecureIgnoreHostKey()
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	address := net.JoinHostPort(host, strconv.Itoa(port))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", address, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: callback,
		Timeout:         timeout,
	})
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", address, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	// Closing the client unblocks any pending session call.
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	for path, content := range files {
		if err := remoteWriteFile(client, path, content); err != nil {
			return "", fmt.Errorf("upload %s: %w", path, err)
		}
		defer remoteRun(client, "rm -f "+path)
	}

	out, err := remoteRun(client, command)
	if ctx.Err() != nil {
		return "", &TimeoutError{Command: command, Timeout: timeout}
	}
	var exitErr *ssh.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", err
	}
	return joinLines(out), nil
}

func authMethods(cfg *telemetry.ProtocolConfig) ([]ssh.AuthMethod, error) {
	var auth []ssh.AuthMethod
	if cfg.PrivateKey != "" {
		raw, err := os.ReadFile(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		var signer ssh.Signer
		if cfg.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(raw, []byte(cfg.Password))
		} else {
			signer, err = ssh.ParsePrivateKey(raw)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	return auth, nil
}

func remoteRun(client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout
	err = session.Run(command)
	return stdout.String(), err
}

func remoteWriteFile(client *ssh.Client, path string, content []byte) error {
	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	session.Stdin = bytes.NewReader(content)
	return session.Run("cat > " + path)
}
