// Package pipeline drives a run through its stages in order, tracking
// progression in a state machine and mapping every failure to the
// stage that raised it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/splax/deckhand/internal/cleanup"
	"github.com/splax/deckhand/internal/deploy"
	"github.com/splax/deckhand/internal/domain"
	"github.com/splax/deckhand/internal/project"
	"github.com/splax/deckhand/internal/proxy"
	"github.com/splax/deckhand/internal/remote"
	"github.com/splax/deckhand/internal/validate"
	"github.com/splax/deckhand/pkg/config"
	"github.com/splax/deckhand/pkg/logger"
)

// The pipeline sees its collaborators through interfaces the concrete
// stage types already satisfy; tests substitute fakes.
type (
	Executor interface {
		Run(ctx context.Context, cmd remote.Command) (remote.Result, error)
	}
	Workspace interface {
		Path(name string) (string, error)
		Remove(name string) error
	}
	SourceSyncer interface {
		Sync(ctx context.Context, params *config.Params, dir string) error
	}
	Provisioner interface {
		Ensure(ctx context.Context) error
	}
	Deployer interface {
		Deploy(ctx context.Context, app deploy.App) error
	}
	ProxyConfigurator interface {
		Apply(ctx context.Context, site proxy.Site) error
		Remove(ctx context.Context, name string) error
	}
	Checker interface {
		Validate(ctx context.Context, t validate.Target) error
	}
	Reclaimer interface {
		Reclaim(ctx context.Context, t cleanup.Target) error
	}
)

// Stages bundles the collaborators for one run.
type Stages struct {
	Exec      Executor
	Workspace Workspace
	Source    SourceSyncer
	Provision Provisioner
	Deploy    Deployer
	Proxy     ProxyConfigurator
	Validate  Checker
	Cleanup   Reclaimer
}

// Pipeline owns the state of a single run. It is not reusable; build a
// new one per invocation.
type Pipeline struct {
	params *config.Params
	stages Stages
	log    *slog.Logger

	state State
	name  domain.ProjectName
	dir   string
	build project.Config
}

func New(params *config.Params, stages Stages, log *slog.Logger) *Pipeline {
	return &Pipeline{params: params, stages: stages, log: log, state: Init}
}

// State reports how far the run got.
func (p *Pipeline) State() State { return p.state }

// Run executes the deployment chain and returns the first failure as a
// StageError.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.prepare(); err != nil {
		return p.fail(KindInput, err)
	}
	if err := p.connect(ctx); err != nil {
		return p.fail(KindConnectivity, err)
	}
	if err := p.syncSource(ctx); err != nil {
		return p.fail(KindSourceSync, err)
	}
	if err := p.discover(ctx); err != nil {
		return p.fail(KindDiscovery, err)
	}
	if err := p.provision(ctx); err != nil {
		return p.fail(KindProvision, err)
	}
	if err := p.deployApp(ctx); err != nil {
		return p.fail(KindDeploy, err)
	}
	if err := p.configureProxy(ctx); err != nil {
		return p.fail(KindProxy, err)
	}
	if err := p.validateRun(ctx); err != nil {
		return p.fail(KindValidation, err)
	}

	logger.Success(ctx, p.log, "DEPLOYMENT COMPLETED SUCCESSFULLY", "project", p.name.String())
	logger.Success(ctx, p.log, "application available", "url", "http://"+p.params.ServerAddr)
	return nil
}

// Cleanup connects and removes everything a deployment of this project
// put on the host, then drops the local working copy.
func (p *Pipeline) Cleanup(ctx context.Context) error {
	if err := p.prepare(); err != nil {
		return p.fail(KindInput, err)
	}
	if err := p.connect(ctx); err != nil {
		return p.fail(KindConnectivity, err)
	}

	// a surviving working copy names the images the compose file pins
	var images []string
	if cfg, err := project.Discover(p.dir); err == nil {
		cfg = project.Inspect(ctx, p.dir, cfg, p.name.String(), p.params.AppPort, p.log)
		images = cfg.Images()
	}

	target := cleanup.Target{
		Name:   p.name.String(),
		Dir:    p.name.RemoteDir(p.params.SSHUser),
		Images: images,
	}
	if err := p.stages.Cleanup.Reclaim(ctx, target); err != nil {
		return p.fail(KindCleanup, err)
	}
	if err := p.stages.Proxy.Remove(ctx, p.name.String()); err != nil {
		return p.fail(KindCleanup, err)
	}
	if err := p.stages.Workspace.Remove(p.name.String()); err != nil {
		return p.fail(KindCleanup, err)
	}
	p.advance(Cleaned)

	logger.Success(ctx, p.log, "CLEANUP COMPLETED", "project", p.name.String())
	return nil
}

// prepare validates the parameters and derives everything later stages
// need from them.
func (p *Pipeline) prepare() error {
	if err := p.params.Validate(); err != nil {
		return err
	}
	name, err := domain.ProjectNameFromRepo(p.params.RepoURL)
	if err != nil {
		return err
	}
	dir, err := p.stages.Workspace.Path(name.String())
	if err != nil {
		return err
	}
	p.name, p.dir = name, dir
	p.advance(ParamsReady)
	p.log.Info("parameters validated",
		"project", name.String(),
		"server", p.params.ServerAddr,
		"branch", p.params.Branch)
	return nil
}

// connect proves the SSH path end to end before any stage depends on it.
func (p *Pipeline) connect(ctx context.Context) error {
	res, err := p.stages.Exec.Run(ctx, remote.Exec("echo", "ok"))
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("connectivity probe exited %d: %s", res.ExitStatus, res.Tail(3))
	}
	p.advance(Connected)
	p.log.Info("connected", "host", p.params.ServerAddr, "user", p.params.SSHUser)
	return nil
}

func (p *Pipeline) syncSource(ctx context.Context) error {
	if err := p.stages.Source.Sync(ctx, p.params, p.dir); err != nil {
		return err
	}
	// the token was only ever needed for git
	p.params.AccessToken.Zero()
	p.advance(SourceSynced)
	return nil
}

func (p *Pipeline) discover(ctx context.Context) error {
	cfg, err := project.Discover(p.dir)
	if err != nil {
		return err
	}
	p.build = project.Inspect(ctx, p.dir, cfg, p.name.String(), p.params.AppPort, p.log)
	p.advance(ConfigDiscovered)
	return nil
}

func (p *Pipeline) provision(ctx context.Context) error {
	if err := p.stages.Provision.Ensure(ctx); err != nil {
		return err
	}
	p.advance(Provisioned)
	return nil
}

func (p *Pipeline) deployApp(ctx context.Context) error {
	app := deploy.App{
		Name:      p.name.String(),
		LocalDir:  p.dir,
		RemoteDir: p.name.RemoteDir(p.params.SSHUser),
		Port:      p.params.AppPort,
		Build:     p.build,
	}
	if err := p.stages.Deploy.Deploy(ctx, app); err != nil {
		return err
	}
	p.advance(Deployed)
	return nil
}

func (p *Pipeline) configureProxy(ctx context.Context) error {
	site := proxy.Site{
		Name:       p.name.String(),
		ServerName: p.params.ServerAddr,
		Port:       p.params.AppPort,
	}
	if err := p.stages.Proxy.Apply(ctx, site); err != nil {
		return err
	}
	p.advance(ProxyConfigured)
	return nil
}

func (p *Pipeline) validateRun(ctx context.Context) error {
	target := validate.Target{
		Name: p.name.String(),
		Port: p.params.AppPort,
		Kind: p.build.Kind,
		Addr: p.params.ServerAddr,
	}
	if err := p.stages.Validate.Validate(ctx, target); err != nil {
		return err
	}
	p.advance(Validated)
	return nil
}

// advance moves the state machine. The chains above only request legal
// transitions, so a refusal is a bug in this package.
func (p *Pipeline) advance(next State) {
	if !p.state.canAdvanceTo(next) {
		panic(fmt.Sprintf("illegal state transition %s -> %s", p.state, next))
	}
	p.log.Debug("state transition", "from", p.state.String(), "to", next.String())
	p.state = next
}

// fail pins the run in its terminal state and wraps err with the stage
// that raised it.
func (p *Pipeline) fail(kind Kind, err error) error {
	p.advance(Failed)
	p.log.Error("stage failed", "stage", kind.String(), "error", err)
	return &StageError{Kind: kind, Err: err}
}
