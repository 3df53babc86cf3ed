package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/splax/deckhand/internal/remote"
)

// Executor runs commands on the target host.
type Executor interface {
	Run(ctx context.Context, cmd remote.Command) (remote.Result, error)
}

// Provisioner installs and activates the container and proxy runtime on
// the target host. Every install is gated on an existence probe, so
// re-running against a provisioned host performs no install actions.
type Provisioner struct {
	exec Executor
	log  *slog.Logger
	sudo bool
}

func New(exec Executor, log *slog.Logger, sudo bool) *Provisioner {
	return &Provisioner{exec: exec, log: log, sudo: sudo}
}

// Ensure brings docker, a compose implementation, nginx and curl to
// installed-and-running as one strict script: any failing install aborts
// the whole stage, and partial provisioning is never proceeded from. The
// trailing version commands leave an audit trail in the run log.
func (p *Provisioner) Ensure(ctx context.Context) error {
	script := remote.NewScript().
		Raw("export DEBIAN_FRONTEND=noninteractive").
		Raw("apt-get update -q").
		Raw(`if ! command -v docker >/dev/null 2>&1; then
  apt-get install -y -q docker.io
fi`).
		Raw(`if ! docker compose version >/dev/null 2>&1 && ! command -v docker-compose >/dev/null 2>&1; then
  apt-get install -y -q docker-compose-v2 || apt-get install -y -q docker-compose-plugin || apt-get install -y -q docker-compose
fi`).
		Raw(`if ! command -v nginx >/dev/null 2>&1; then
  apt-get install -y -q nginx
fi`).
		Raw(`if ! command -v curl >/dev/null 2>&1; then
  apt-get install -y -q curl
fi`).
		Exec("systemctl", "enable", "--now", "docker").
		Exec("systemctl", "enable", "--now", "nginx").
		Raw("docker --version").
		Raw("docker compose version 2>/dev/null || docker-compose --version").
		Raw("nginx -v 2>&1")

	p.log.Info("provisioning target host")
	res, err := p.exec.Run(ctx, script.Sudo(p.sudo).Command())
	if err != nil {
		return fmt.Errorf("provision host: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("provisioning script exited %d: %s", res.ExitStatus, res.Tail(5))
	}
	p.log.Info("host provisioned", "versions", res.Tail(3))
	return nil
}
