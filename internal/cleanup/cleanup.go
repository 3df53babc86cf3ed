// Package cleanup reclaims what a deployment run put on the host.
package cleanup

import (
	"context"
	"log/slog"

	"github.com/splax/deckhand/internal/remote"
)

// Target names the artifacts to remove.
type Target struct {
	Name   string
	Dir    string
	Images []string // extra images a compose file pins, removed as well
}

// Executor runs commands on the target host.
type Executor interface {
	Run(ctx context.Context, cmd remote.Command) (remote.Result, error)
}

// Reclaimer undoes deployments. Steps are independent so a partially
// deployed host still gets cleaned as far as possible.
type Reclaimer struct {
	exec Executor
	log  *slog.Logger
	sudo bool
}

func New(exec Executor, log *slog.Logger, sudo bool) *Reclaimer {
	return &Reclaimer{exec: exec, log: log, sudo: sudo}
}

// Reclaim removes containers, images and the project directory. A step
// finding nothing to remove is normal; only transport errors abort.
func (r *Reclaimer) Reclaim(ctx context.Context, t Target) error {
	down := remote.NewScript().
		Rawf("if [ -d %s ]; then", t.Dir).
		Rawf("  cd %s", t.Dir).
		Raw("  if [ -f docker-compose.yml ] || [ -f docker-compose.yaml ]; then").
		Raw("    docker compose down --rmi local --remove-orphans 2>/dev/null || docker-compose down --rmi local --remove-orphans || true").
		Raw("  fi").
		Raw("fi").
		Sudo(r.sudo)
	if err := r.step(ctx, down.Command(), "compose stack removed"); err != nil {
		return err
	}

	if err := r.step(ctx, remote.Exec("docker", "rm", "-f", t.Name).Sudo(r.sudo), "container removed"); err != nil {
		return err
	}
	if err := r.step(ctx, remote.Exec("docker", "rmi", t.Name).Sudo(r.sudo), "image removed"); err != nil {
		return err
	}
	for _, img := range t.Images {
		if err := r.step(ctx, remote.Exec("docker", "rmi", img).Sudo(r.sudo), "image removed"); err != nil {
			return err
		}
	}

	if err := r.step(ctx, remote.Exec("rm", "-rf", t.Dir).Sudo(r.sudo), "project directory removed"); err != nil {
		return err
	}
	return nil
}

// step runs one reclaim action. A non-zero exit usually means the
// object was already gone, so it only lands in the debug log.
func (r *Reclaimer) step(ctx context.Context, cmd remote.Command, what string) error {
	res, err := r.exec.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK() {
		r.log.Debug("nothing to reclaim", "step", what, "exit", res.ExitStatus, "output", res.Tail(3))
		return nil
	}
	r.log.Info(what)
	return nil
}
