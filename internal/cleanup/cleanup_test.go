package cleanup

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

type rule struct {
	match string
	res   remote.Result
	err   error
}

type fakeExec struct {
	cmds  []string
	rules []rule
}

func (f *fakeExec) Run(_ context.Context, cmd remote.Command) (remote.Result, error) {
	full := cmd.Line()
	if cmd.Stdin() != nil {
		body, err := io.ReadAll(cmd.Stdin())
		if err != nil {
			return remote.Result{}, err
		}
		full += "\n" + string(body)
	}
	f.cmds = append(f.cmds, full)
	for _, r := range f.rules {
		if strings.Contains(full, r.match) {
			return r.res, r.err
		}
	}
	return remote.Result{}, nil
}

func (f *fakeExec) indexOf(sub string) int {
	for i, c := range f.cmds {
		if strings.Contains(c, sub) {
			return i
		}
	}
	return -1
}

func testTarget() Target {
	return Target{
		Name:   "app",
		Dir:    "/home/deploy/app",
		Images: []string{"redis:7", "postgres:16"},
	}
}

func TestReclaimRemovesEverything(t *testing.T) {
	fake := &fakeExec{}
	r := New(fake, slog.New(slog.NewTextHandler(io.Discard, nil)), true)

	require.NoError(t, r.Reclaim(context.Background(), testTarget()))

	order := []string{
		"docker compose down --rmi local --remove-orphans",
		"docker rm -f app",
		"docker rmi app",
		"docker rmi redis:7",
		"docker rmi postgres:16",
		"rm -rf /home/deploy/app",
	}
	last := -1
	for _, step := range order {
		idx := fake.indexOf(step)
		require.NotEqual(t, -1, idx, "missing step %q", step)
		assert.Greater(t, idx, last, "step %q out of order", step)
		last = idx
	}

	downIdx := fake.indexOf("docker compose down")
	assert.Contains(t, fake.cmds[downIdx], "if [ -d /home/deploy/app ]; then")
	assert.Contains(t, fake.cmds[downIdx], "sudo -n /bin/bash -s")
}

func TestReclaimToleratesMissingObjects(t *testing.T) {
	fake := &fakeExec{rules: []rule{
		{match: "docker rm -f", res: remote.Result{ExitStatus: 1, Output: "No such container: app"}},
		{match: "docker rmi", res: remote.Result{ExitStatus: 1, Output: "No such image: app"}},
	}}
	r := New(fake, slog.New(slog.NewTextHandler(io.Discard, nil)), true)

	require.NoError(t, r.Reclaim(context.Background(), testTarget()))
	// the directory removal still ran
	assert.NotEqual(t, -1, fake.indexOf("rm -rf /home/deploy/app"))
}

func TestReclaimAbortsOnTransportError(t *testing.T) {
	fake := &fakeExec{rules: []rule{
		{match: "docker rmi app", err: errors.New("connection lost")},
	}}
	r := New(fake, slog.New(slog.NewTextHandler(io.Discard, nil)), true)

	err := r.Reclaim(context.Background(), testTarget())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")
	assert.Equal(t, -1, fake.indexOf("rm -rf /home/deploy/app"))
}

func TestReclaimWithoutExtraImages(t *testing.T) {
	fake := &fakeExec{}
	r := New(fake, slog.New(slog.NewTextHandler(io.Discard, nil)), false)

	require.NoError(t, r.Reclaim(context.Background(), Target{Name: "app", Dir: "/root/app"}))
	assert.Equal(t, 1, strings.Count(strings.Join(fake.cmds, "\n"), "docker rmi"))
	for _, cmd := range fake.cmds {
		assert.False(t, strings.HasPrefix(cmd, "sudo -n"), "unexpected sudo in %q", cmd)
	}
}
