// Package validate runs the post-deployment health checks, from the
// host's service state down to public reachability.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/splax/deckhand/internal/domain"
	"github.com/splax/deckhand/internal/remote"
)

// Target names what a deployment run left behind on the host.
type Target struct {
	Name string
	Port int
	Kind domain.BuildKind
	Addr string // public address of the host
}

// Executor runs commands on the target host.
type Executor interface {
	Run(ctx context.Context, cmd remote.Command) (remote.Result, error)
}

// Checker verifies a finished deployment. The host-side checks go over
// the executor; the public check leaves from the operator's machine so
// it exercises the real network path.
type Checker struct {
	exec Executor
	log  *slog.Logger
	sudo bool

	// HTTP issues the public reachability requests.
	HTTP *http.Client
	// DialTimeout is the bare TCP fallback for hosts that accept
	// connections without answering HTTP.
	DialTimeout func(network, address string, timeout time.Duration) (net.Conn, error)
	// PublicPort is where the proxy listens.
	PublicPort int
}

func New(exec Executor, log *slog.Logger, sudo bool) *Checker {
	return &Checker{
		exec:        exec,
		log:         log,
		sudo:        sudo,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		DialTimeout: net.DialTimeout,
		PublicPort:  80,
	}
}

// Validate runs every check in order and fails on the first one that
// does not hold.
func (c *Checker) Validate(ctx context.Context, t Target) error {
	checks := []struct {
		name string
		fn   func(context.Context, Target) error
	}{
		{"docker service", c.dockerActive},
		{"application container", c.containerRunning},
		{"nginx service", c.nginxActive},
		{"application endpoint", c.appAnswers},
		{"proxy endpoint", c.proxyAnswers},
		{"public endpoint", c.publicAnswers},
	}
	for _, chk := range checks {
		if err := chk.fn(ctx, t); err != nil {
			return fmt.Errorf("%s check: %w", chk.name, err)
		}
		c.log.Info("check passed", "check", chk.name)
	}
	return nil
}

func (c *Checker) dockerActive(ctx context.Context, _ Target) error {
	return c.serviceActive(ctx, "docker")
}

func (c *Checker) nginxActive(ctx context.Context, _ Target) error {
	return c.serviceActive(ctx, "nginx")
}

// serviceActive queries systemd; is-active exits zero only for a
// running unit, so no sudo is needed.
func (c *Checker) serviceActive(ctx context.Context, unit string) error {
	res, err := c.exec.Run(ctx, remote.Exec("systemctl", "is-active", unit))
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%s is %s", unit, strings.TrimSpace(res.Output))
	}
	return nil
}

// containerRunning looks for the project's container in the running
// set. A single-container deployment must match its name exactly;
// compose prefixes the project name onto every service container.
func (c *Checker) containerRunning(ctx context.Context, t Target) error {
	cmd := remote.Exec("docker", "ps",
		"--filter", "name="+t.Name,
		"--format", "{{.Names}}").Sudo(c.sudo)
	res, err := c.exec.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("docker ps exited %d: %s", res.ExitStatus, res.Tail(3))
	}
	for _, line := range strings.Split(res.Output, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		if name == t.Name {
			return nil
		}
		if t.Kind == domain.KindCompose &&
			(strings.HasPrefix(name, t.Name+"-") || strings.HasPrefix(name, t.Name+"_")) {
			return nil
		}
	}
	return fmt.Errorf("no running container named %s", t.Name)
}

func (c *Checker) appAnswers(ctx context.Context, t Target) error {
	return c.curlLoopback(ctx, t.Port)
}

func (c *Checker) proxyAnswers(ctx context.Context, t Target) error {
	return c.curlLoopback(ctx, c.PublicPort)
}

// curlLoopback asks the host itself; any HTTP answer counts, the
// status code is for the log.
func (c *Checker) curlLoopback(ctx context.Context, port int) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/", port)
	cmd := remote.Exec("curl", "-s", "-o", "/dev/null", "-w", "%{http_code}", "--max-time", "5", url)
	res, err := c.exec.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("no answer on %s", url)
	}
	c.log.Debug("loopback answered", "url", url, "status", strings.TrimSpace(res.Output))
	return nil
}

// publicAnswers tries /health, then /, then a bare TCP connect. Any
// status below 400 passes; a plain TCP accept still proves the host
// routes traffic and passes with a warning.
func (c *Checker) publicAnswers(ctx context.Context, t Target) error {
	hostPort := net.JoinHostPort(t.Addr, strconv.Itoa(c.PublicPort))
	var failures []string
	for _, path := range []string{"/health", "/"} {
		status, err := c.get(ctx, "http://"+hostPort+path)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		if status < http.StatusBadRequest {
			c.log.Info("public endpoint answered", "path", path, "status", status)
			return nil
		}
		failures = append(failures, fmt.Sprintf("%s: status %d", path, status))
	}

	conn, err := c.DialTimeout("tcp", hostPort, 5*time.Second)
	if err == nil {
		conn.Close()
		c.log.Warn("public endpoint accepts connections but did not answer HTTP",
			"detail", strings.Join(failures, "; "))
		return nil
	}
	failures = append(failures, fmt.Sprintf("tcp: %v", err))
	return fmt.Errorf("unreachable from this machine: %s", strings.Join(failures, "; "))
}

func (c *Checker) get(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
