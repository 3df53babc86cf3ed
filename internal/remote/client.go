package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/docker/docker/pkg/archive"
	"golang.org/x/crypto/ssh"
)

// Client executes commands on a single host over SSH. Every call dials a
// fresh connection so a dropped session never poisons later stages.
// Authentication is key-only and non-interactive: a rejected key fails
// the call instead of prompting.
type Client struct {
	user    string
	addr    string
	keyPath string
	timeout time.Duration
	log     *slog.Logger
}

// NewClient returns a client for user@addr authenticating with the
// private key at keyPath. The key is read on each dial, so a key problem
// surfaces on the first connectivity check rather than at construction.
func NewClient(user, addr, keyPath string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{user: user, addr: addr, keyPath: keyPath, timeout: timeout, log: log}
}

// Run executes cmd and returns its exit status with combined output.
func (c *Client) Run(ctx context.Context, cmd Command) (Result, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	session, err := conn.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out
	if cmd.stdin != nil {
		session.Stdin = cmd.stdin
	}

	c.log.Debug("remote command", "cmd", cmd.line)
	if err := session.Start(cmd.line); err != nil {
		return Result{}, fmt.Errorf("start remote command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		conn.Close()
		<-done
		return Result{}, ctx.Err()
	case err := <-done:
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return Result{ExitStatus: exitErr.ExitStatus(), Output: out.String()}, nil
		}
		if err != nil {
			return Result{Output: out.String()}, fmt.Errorf("run remote command: %w", err)
		}
		return Result{Output: out.String()}, nil
	}
}

// Push streams localDir as a gzipped tar into remoteDir on the host,
// creating the directory first. Existing files are overwritten.
func (c *Client) Push(ctx context.Context, localDir, remoteDir string) (Result, error) {
	stream, err := archive.TarWithOptions(localDir, &archive.TarOptions{
		Compression: archive.Gzip,
	})
	if err != nil {
		return Result{}, fmt.Errorf("tar %s: %w", localDir, err)
	}
	defer stream.Close()

	line := fmt.Sprintf("mkdir -p %s && tar -xzf - -C %s", quote(remoteDir), quote(remoteDir))
	c.log.Debug("remote copy", "local", localDir, "remote", remoteDir)
	return c.Run(ctx, Command{line: line, stdin: stream})
}

func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	signer, err := c.loadKey()
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User:            c.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.timeout,
	}

	hostPort := net.JoinHostPort(c.addr, "22")
	dialer := net.Dialer{Timeout: c.timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", hostPort, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, hostPort, cfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake as %s: %w", c.user, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (c *Client) loadKey() (ssh.Signer, error) {
	data, err := os.ReadFile(c.keyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", c.keyPath, err)
	}
	return signer, nil
}
