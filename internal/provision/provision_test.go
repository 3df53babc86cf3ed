package provision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/deckhand/internal/remote"
)

type fakeExec struct {
	cmds []remote.Command
	res  remote.Result
	err  error
}

func (f *fakeExec) Run(_ context.Context, cmd remote.Command) (remote.Result, error) {
	f.cmds = append(f.cmds, cmd)
	return f.res, f.err
}

func body(t *testing.T, cmd remote.Command) string {
	t.Helper()
	require.NotNil(t, cmd.Stdin())
	data, err := io.ReadAll(cmd.Stdin())
	require.NoError(t, err)
	return string(data)
}

func TestEnsureRunsOneGuardedScript(t *testing.T) {
	fake := &fakeExec{res: remote.Result{Output: "ok"}}
	p := New(fake, slog.New(slog.NewTextHandler(io.Discard, nil)), true)

	require.NoError(t, p.Ensure(context.Background()))
	require.Len(t, fake.cmds, 1)

	cmd := fake.cmds[0]
	assert.Equal(t, "sudo -n /bin/bash -s", cmd.Line())

	script := body(t, cmd)
	assert.True(t, strings.HasPrefix(script, "set -euo pipefail\n"))

	// each install is gated on an existence probe
	assert.Contains(t, script, "if ! command -v docker >/dev/null 2>&1; then\n  apt-get install -y -q docker.io")
	assert.Contains(t, script, "if ! command -v nginx >/dev/null 2>&1; then\n  apt-get install -y -q nginx")
	assert.Contains(t, script, "if ! command -v curl >/dev/null 2>&1; then\n  apt-get install -y -q curl")
	assert.Contains(t, script, "docker compose version >/dev/null 2>&1")

	assert.Contains(t, script, "apt-get update -q")
	assert.Contains(t, script, "systemctl enable --now docker")
	assert.Contains(t, script, "systemctl enable --now nginx")

	// version report for the audit trail comes last
	assert.Less(t, strings.Index(script, "systemctl enable --now nginx"), strings.Index(script, "docker --version"))
}

func TestEnsureWithoutSudo(t *testing.T) {
	fake := &fakeExec{}
	p := New(fake, slog.New(slog.NewTextHandler(io.Discard, nil)), false)

	require.NoError(t, p.Ensure(context.Background()))
	require.Len(t, fake.cmds, 1)
	assert.Equal(t, "/bin/bash -s", fake.cmds[0].Line())
}

func TestEnsureFailsOnNonZeroExit(t *testing.T) {
	fake := &fakeExec{res: remote.Result{ExitStatus: 100, Output: "E: Unable to locate package docker.io"}}
	p := New(fake, slog.New(slog.NewTextHandler(io.Discard, nil)), true)

	err := p.Ensure(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited 100")
	assert.Contains(t, err.Error(), "Unable to locate package")
}

func TestEnsureFailsOnTransportError(t *testing.T) {
	fake := &fakeExec{err: errors.New("dial tcp: connection refused")}
	p := New(fake, slog.New(slog.NewTextHandler(io.Discard, nil)), true)

	err := p.Ensure(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
