package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/sethvargo/go-retry"

	"github.com/splax/deckhand/internal/domain"
	"github.com/splax/deckhand/internal/project"
	"github.com/splax/deckhand/internal/remote"
)

// Executor runs commands on and pushes files to the target host.
type Executor interface {
	Run(ctx context.Context, cmd remote.Command) (remote.Result, error)
	Push(ctx context.Context, localDir, remoteDir string) (remote.Result, error)
}

// App describes one deployable working copy.
type App struct {
	Name      string
	LocalDir  string
	RemoteDir string
	Port      int
	Build     project.Config
}

// Deployer transfers the working copy to the target host and starts the
// application according to its discovered build kind.
type Deployer struct {
	exec Executor
	log  *slog.Logger
	sudo bool

	// Settle intervals give containers time to come up before the state
	// check; the probe knobs bound the reachability retry budget.
	SettleCompose   time.Duration
	SettleContainer time.Duration
	ProbeAttempts   uint64
	ProbeInterval   time.Duration
}

func New(exec Executor, log *slog.Logger, sudo bool) *Deployer {
	return &Deployer{
		exec:            exec,
		log:             log,
		sudo:            sudo,
		SettleCompose:   15 * time.Second,
		SettleContainer: 10 * time.Second,
		ProbeAttempts:   3,
		ProbeInterval:   5 * time.Second,
	}
}

// Deploy replaces the remote source tree, retires the previous
// deployment, starts the new one and waits for it to answer locally.
// Failure anywhere aborts before proxy configuration is attempted.
func (d *Deployer) Deploy(ctx context.Context, app App) error {
	if err := d.push(ctx, app); err != nil {
		return err
	}
	d.stopPrevious(ctx, app)

	var err error
	switch app.Build.Kind {
	case domain.KindCompose:
		err = d.composeUp(ctx, app)
	case domain.KindDockerfile:
		err = d.containerUp(ctx, app)
	default:
		err = fmt.Errorf("no deployable build configuration (kind %s)", app.Build.Kind)
	}
	if err != nil {
		return err
	}
	return d.probe(ctx, app)
}

// push mirrors the working copy into the remote project directory with
// full overwrite semantics.
func (d *Deployer) push(ctx context.Context, app App) error {
	res, err := d.exec.Run(ctx, remote.Exec("rm", "-rf", app.RemoteDir))
	if err != nil {
		return fmt.Errorf("clear remote project directory: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("clear remote project directory: exit %d: %s", res.ExitStatus, res.Tail(3))
	}

	d.log.Info("transferring working copy", "remote_dir", app.RemoteDir)
	res, err = d.exec.Push(ctx, app.LocalDir, app.RemoteDir)
	if err != nil {
		return fmt.Errorf("transfer working copy: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("transfer working copy: exit %d: %s", res.ExitStatus, res.Tail(3))
	}
	return nil
}

// stopPrevious retires whatever ran under this identity before, whether
// compose-managed or a single named container. Nothing to stop is fine.
func (d *Deployer) stopPrevious(ctx context.Context, app App) {
	teardown := remote.NewScript().
		Rawf("if [ -d %s ]; then", app.RemoteDir).
		Rawf("  cd %s", app.RemoteDir).
		Raw("  if [ -f docker-compose.yml ] || [ -f docker-compose.yaml ]; then").
		Raw("    docker compose down --remove-orphans 2>/dev/null || docker-compose down --remove-orphans || true").
		Raw("  fi").
		Raw("fi").
		Sudo(d.sudo)
	d.runBestEffort(ctx, teardown.Command(), "stopped previous compose stack")
	d.runBestEffort(ctx, remote.Exec("docker", "rm", "-f", app.Name).Sudo(d.sudo), "removed previous container")
}

// runBestEffort executes cmd and downgrades a non-zero exit to a debug
// entry; only the caller's fatal steps decide the stage outcome.
func (d *Deployer) runBestEffort(ctx context.Context, cmd remote.Command, what string) {
	res, err := d.exec.Run(ctx, cmd)
	if err != nil {
		d.log.Warn("best-effort step errored", "step", what, "error", err)
		return
	}
	if !res.OK() {
		d.log.Debug("best-effort step had nothing to do", "step", what, "exit", res.ExitStatus, "output", res.Tail(3))
		return
	}
	d.log.Info(what)
}

// composeCommand picks the compose invocation available on the host,
// preferring the docker plugin over the legacy binary.
func (d *Deployer) composeCommand(ctx context.Context) ([]string, error) {
	res, err := d.exec.Run(ctx, remote.Exec("docker", "compose", "version"))
	if err != nil {
		return nil, fmt.Errorf("detect compose implementation: %w", err)
	}
	if res.OK() {
		return []string{"docker", "compose"}, nil
	}
	res, err = d.exec.Run(ctx, remote.Exec("docker-compose", "--version"))
	if err != nil {
		return nil, fmt.Errorf("detect compose implementation: %w", err)
	}
	if res.OK() {
		return []string{"docker-compose"}, nil
	}
	return nil, fmt.Errorf("no compose implementation available on the host")
}

func (d *Deployer) composeUp(ctx context.Context, app App) error {
	cc, err := d.composeCommand(ctx)
	if err != nil {
		return err
	}

	up := remote.NewScript().
		Rawf("cd %s", app.RemoteDir).
		Exec(cc[0], append(cc[1:], "up", "-d", "--build")...).
		Sudo(d.sudo)
	d.log.Info("building and starting compose services")
	res, err := d.exec.Run(ctx, up.Command())
	if err != nil {
		return fmt.Errorf("compose up: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("compose up exited %d: %s", res.ExitStatus, res.Tail(15))
	}

	if err := settle(ctx, d.SettleCompose); err != nil {
		return err
	}

	ps := remote.NewScript().
		Rawf("cd %s", app.RemoteDir).
		Exec(cc[0], append(cc[1:], "ps")...).
		Sudo(d.sudo)
	res, err = d.exec.Run(ctx, ps.Command())
	if err != nil {
		return fmt.Errorf("compose ps: %w", err)
	}
	if !res.OK() || !showsRunning(res.Output) {
		d.dumpComposeLogs(ctx, app, cc)
		return fmt.Errorf("no compose container reported an up state after start")
	}
	d.log.Info("compose services running")
	return nil
}

func (d *Deployer) containerUp(ctx context.Context, app App) error {
	portSpec := fmt.Sprintf("%d:%d", app.Port, app.Port)
	if _, err := nat.ParsePortSpec(portSpec); err != nil {
		return fmt.Errorf("port mapping %s: %w", portSpec, err)
	}

	build := remote.NewScript().
		Rawf("cd %s", app.RemoteDir).
		Exec("docker", "build", "-f", app.Build.Dockerfile, "-t", app.Name, ".").
		Sudo(d.sudo)
	d.log.Info("building image", "image", app.Name)
	res, err := d.exec.Run(ctx, build.Command())
	if err != nil {
		return fmt.Errorf("docker build: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("docker build exited %d: %s", res.ExitStatus, res.Tail(15))
	}

	run := remote.Exec("docker", "run", "-d",
		"--name", app.Name,
		"--restart", "unless-stopped",
		"-p", portSpec,
		app.Name).Sudo(d.sudo)
	d.log.Info("starting container", "name", app.Name, "port", app.Port)
	res, err = d.exec.Run(ctx, run)
	if err != nil {
		return fmt.Errorf("docker run: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("docker run exited %d: %s", res.ExitStatus, res.Tail(15))
	}

	if err := settle(ctx, d.SettleContainer); err != nil {
		return err
	}

	res, err = d.exec.Run(ctx, remote.Exec("docker", "ps",
		"--filter", "name="+app.Name,
		"--format", "{{.Names}}\t{{.Status}}").Sudo(d.sudo))
	if err != nil {
		return fmt.Errorf("docker ps: %w", err)
	}
	if !res.OK() || !containerListed(res.Output, app.Name) {
		d.dumpContainerLogs(ctx, app)
		return fmt.Errorf("container %s is not running after start", app.Name)
	}
	d.log.Info("container running", "name", app.Name)
	return nil
}

// probe curls the application from inside the host until it answers or
// the retry budget is spent.
func (d *Deployer) probe(ctx context.Context, app App) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/", app.Port)
	cmd := remote.Exec("curl", "-s", "-o", "/dev/null", "--max-time", "5", url)

	attempts := d.ProbeAttempts
	if attempts == 0 {
		attempts = 1
	}
	attempt := 0
	backoff := retry.WithMaxRetries(attempts-1, retry.NewConstant(d.ProbeInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		res, err := d.exec.Run(ctx, cmd)
		if err != nil {
			return err
		}
		if !res.OK() {
			d.log.Debug("application not answering yet", "attempt", attempt, "port", app.Port)
			return retry.RetryableError(fmt.Errorf("application did not answer on port %d", app.Port))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reachability probe exhausted its budget: %w", err)
	}
	d.log.Info("application answering locally", "port", app.Port)
	return nil
}

func (d *Deployer) dumpComposeLogs(ctx context.Context, app App, cc []string) {
	logs := remote.NewScript().
		Rawf("cd %s", app.RemoteDir).
		Exec(cc[0], append(cc[1:], "logs", "--tail", "50")...).
		Sudo(d.sudo)
	res, err := d.exec.Run(ctx, logs.Command())
	if err != nil {
		d.log.Warn("could not capture compose logs", "error", err)
		return
	}
	d.log.Error("compose container logs", "logs", strings.TrimSpace(res.Output))
}

func (d *Deployer) dumpContainerLogs(ctx context.Context, app App) {
	res, err := d.exec.Run(ctx, remote.Exec("docker", "logs", "--tail", "50", app.Name).Sudo(d.sudo))
	if err != nil {
		d.log.Warn("could not capture container logs", "error", err)
		return
	}
	d.log.Error("container logs", "name", app.Name, "logs", strings.TrimSpace(res.Output))
}

// containerListed reports whether the docker ps output lists name with
// an Up status.
func containerListed(out, name string) bool {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(strings.TrimSpace(line), "\t", 2)
		if len(fields) == 2 && fields[0] == name && strings.HasPrefix(fields[1], "Up") {
			return true
		}
	}
	return false
}

// showsRunning reports whether a compose ps listing contains at least
// one container in an up or running state, covering both the plugin and
// the legacy output format.
func showsRunning(out string) bool {
	return strings.Contains(out, " Up") || strings.Contains(strings.ToLower(out), "running")
}

// settle waits a fixed interval, honoring cancellation.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
