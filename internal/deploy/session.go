package deploy

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ssd-technologies/nocturne-fleet/internal/registry"
)

// Session is one authenticated SSH connection to a TargetServer (§4.6
// "Session" in the glossary). It carries no state across calls beyond the
// live connection itself.
type Session struct {
	client *ssh.Client
	server registry.ServerEntry
}

// Connect opens a Session using the server's configured auth variant.
// password is the already-deobfuscated secret (empty for key auth without
// a passphrase).
func Connect(ctx context.Context, server registry.ServerEntry, password []byte, timeout time.Duration) (*Session, error) {
	auths, err := authMethodsFor(server, password)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User: server.Username,
		Auth: auths,
		// The registry is centrally administered (§9 "Ownership of the
		// fleet registry"); there is no host-key distribution mechanism in
		// scope, so host identity is not pinned here.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(server.IP, fmt.Sprintf("%d", server.Port))
	dialer := net.Dialer{Timeout: timeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, NewError(KindNetworkUnreachable, err)
	}

	conn, chans, reqs, err := ssh.NewClientConn(rawConn, addr, cfg)
	if err != nil {
		rawConn.Close()
		if isAuthError(err) {
			return nil, NewError(KindAuthFailed, err)
		}
		return nil, NewError(KindProtocolError, err)
	}

	return &Session{client: ssh.NewClient(conn, chans, reqs), server: server}, nil
}

// Close ends the session's underlying connection.
func (s *Session) Close() error {
	return s.client.Close()
}

func authMethodsFor(server registry.ServerEntry, password []byte) ([]ssh.AuthMethod, error) {
	switch server.Auth.Method {
	case registry.MethodKey, registry.MethodKeyWithPassphrase:
		keyBytes, err := os.ReadFile(server.Auth.KeyPath)
		if err != nil {
			return nil, NewError(KindIoError, err)
		}
		var signer ssh.Signer
		if server.Auth.Method == registry.MethodKeyWithPassphrase {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, password)
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, NewError(KindAuthFailed, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	case registry.MethodPassword:
		return []ssh.AuthMethod{ssh.Password(string(password))}, nil
	default:
		return nil, NewError(KindProtocolError, fmt.Errorf("unsupported auth method %q", server.Auth.Method))
	}
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// Exec runs one command to completion, capturing stdout/stderr (§4.6
// "exec").
func (s *Session) Exec(ctx context.Context, command string, timeout time.Duration) (exitCode int, stdout, stderr string, err error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return 0, "", "", NewError(KindProtocolError, err)
	}
	defer sess.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	sess.Stdout = &stdoutBuf
	sess.Stderr = &stderrBuf

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		sess.Signal(ssh.SIGKILL)
		return -1, stdoutBuf.String(), stderrBuf.String(), NewError(KindTimeout, ctx.Err())
	case <-timer.C:
		sess.Signal(ssh.SIGKILL)
		return -1, stdoutBuf.String(), stderrBuf.String(), NewError(KindTimeout, fmt.Errorf("exec timed out after %s", timeout))
	case runErr := <-done:
		if runErr == nil {
			return 0, stdoutBuf.String(), stderrBuf.String(), nil
		}
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			return exitErr.ExitStatus(), stdoutBuf.String(), stderrBuf.String(), nil
		}
		return -1, stdoutBuf.String(), stderrBuf.String(), NewError(KindProtocolError, runErr)
	}
}

// WriteRemoteFile is the primitive both Upload and the unit-file/aux
// writers use: it streams data to remotePath via the remote shell and sets
// mode on completion (§4.6 "upload" — byte-exact transfer, mode bits set on
// completion). There is no SFTP subsystem dependency anywhere in the
// corpus; piping through a remote shell command is the same posture the
// teacher takes for its own remote operations (plain command execution
// over the session, no separate file-transfer protocol).
func (s *Session) WriteRemoteFile(ctx context.Context, remotePath string, data []byte, mode os.FileMode, timeout time.Duration) (int64, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return 0, NewError(KindProtocolError, err)
	}
	defer sess.Close()

	stdin, err := sess.StdinPipe()
	if err != nil {
		return 0, NewError(KindProtocolError, err)
	}

	dir := posixDir(remotePath)
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s && chmod %o %s",
		shellQuote(dir), shellQuote(remotePath), mode.Perm(), shellQuote(remotePath))

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	n, writeErr := stdin.Write(data)
	stdin.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return int64(n), NewError(KindTimeout, ctx.Err())
	case <-timer.C:
		return int64(n), NewError(KindTimeout, fmt.Errorf("upload of %s timed out after %s", remotePath, timeout))
	case runErr := <-done:
		if writeErr != nil {
			return int64(n), NewError(KindIoError, writeErr)
		}
		if runErr != nil {
			if strings.Contains(runErr.Error(), "Permission denied") {
				return int64(n), NewError(KindPermissionDenied, runErr)
			}
			return int64(n), NewError(KindIoError, runErr)
		}
		return int64(n), nil
	}
}

// Upload transfers a local file to remotePath with mode bits set on
// completion (§4.6 "upload").
func (s *Session) Upload(ctx context.Context, localPath, remotePath string, mode os.FileMode, timeout time.Duration) (int64, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return 0, NewError(KindIoError, err)
	}
	return s.WriteRemoteFile(ctx, remotePath, data, mode, timeout)
}

// shellQuote wraps s in single quotes for safe use in a remote shell
// command, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// posixDir mirrors path.Dir but is named separately here since remote
// paths are always POSIX regardless of the host OS running this binary.
func posixDir(remotePath string) string {
	idx := strings.LastIndex(remotePath, "/")
	if idx <= 0 {
		return "/"
	}
	return remotePath[:idx]
}
