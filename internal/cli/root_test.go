package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionFlag(t *testing.T) {
	cmd := NewRootCommand("1.2.3")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "deckhand version 1.2.3\n", out.String())
}

func TestHelpListsEveryFlag(t *testing.T) {
	cmd := NewRootCommand("dev")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	help := out.String()
	assert.Contains(t, help, "Usage:")
	for _, flag := range []string{
		"--repo-url", "--access-token", "--branch", "--ssh-user",
		"--server-ip", "--ssh-key", "--app-port",
		"--cleanup", "--config", "--workdir", "--log-dir",
		"--non-interactive", "--verbose",
	} {
		assert.Contains(t, help, flag)
	}
}

func TestUnknownFlagPrintsUsage(t *testing.T) {
	cmd := NewRootCommand("dev")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--bogus"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
	assert.Contains(t, errOut.String(), "Usage:")
}

func TestRejectsPositionalArguments(t *testing.T) {
	cmd := NewRootCommand("dev")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"deploy"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unexpected argument "deploy"`)
	// rejected arguments render usage just like unknown flags do
	assert.Contains(t, errOut.String(), "Usage:")
}

func TestNonInteractiveFailsFastAndWritesRunLog(t *testing.T) {
	logDir := t.TempDir()
	cmd := NewRootCommand("dev")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{
		"--non-interactive",
		"--log-dir", logDir,
		"--workdir", t.TempDir(),
	})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing parameters in non-interactive mode")

	// even an aborted run leaves its log behind
	logs, globErr := filepath.Glob(filepath.Join(logDir, "deckhand_*.log"))
	require.NoError(t, globErr)
	assert.Len(t, logs, 1)
}
