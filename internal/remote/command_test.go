package remote

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecQuotesArguments(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"plain", Exec("docker", "rm", "-f", "app"), "docker rm -f app"},
		{"spaces", Exec("rm", "-rf", "/home/deploy/my app"), "rm -rf '/home/deploy/my app'"},
		{"single quote", Exec("echo", "it's"), `echo 'it'\''s'`},
		{"subshell", Exec("echo", "$(reboot)"), "echo '$(reboot)'"},
		{"backticks", Exec("echo", "`id`"), "echo '`id`'"},
		{"semicolon", Exec("echo", "a;b"), "echo 'a;b'"},
		{"empty argument", Exec("git", "commit", "-m", ""), "git commit -m ''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cmd.Line())
		})
	}
}

func TestCommandSudo(t *testing.T) {
	cmd := Exec("systemctl", "reload", "nginx")
	assert.Equal(t, "sudo -n systemctl reload nginx", cmd.Sudo(true).Line())
	assert.Equal(t, "systemctl reload nginx", cmd.Sudo(false).Line())
}

func TestScriptRendersStrictBash(t *testing.T) {
	script := NewScript().
		Raw("apt-get update -q").
		Exec("systemctl", "enable", "--now", "docker").
		Rawf("cd %s", "/home/deploy/my app")

	cmd := script.Command()
	assert.Equal(t, "/bin/bash -s", cmd.Line())

	require.NotNil(t, cmd.stdin)
	body, err := io.ReadAll(cmd.stdin)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Equal(t, []string{
		"set -euo pipefail",
		"apt-get update -q",
		"systemctl enable --now docker",
		"cd '/home/deploy/my app'",
	}, lines)
}

func TestScriptSudo(t *testing.T) {
	cmd := NewScript().Raw("nginx -t").Sudo(true).Command()
	assert.Equal(t, "sudo -n /bin/bash -s", cmd.Line())

	cmd = NewScript().Raw("nginx -t").Sudo(false).Command()
	assert.Equal(t, "/bin/bash -s", cmd.Line())
}

func TestWithStdin(t *testing.T) {
	cmd := Exec("tee", "/etc/nginx/sites-available/app.conf").WithStdin(strings.NewReader("server {}"))
	require.NotNil(t, cmd.stdin)
	body, err := io.ReadAll(cmd.stdin)
	require.NoError(t, err)
	assert.Equal(t, "server {}", string(body))
}

func TestResultOK(t *testing.T) {
	assert.True(t, Result{ExitStatus: 0}.OK())
	assert.False(t, Result{ExitStatus: 1}.OK())
}

func TestResultTail(t *testing.T) {
	r := Result{Output: "a\nb\nc\nd\n"}
	assert.Equal(t, "c\nd", r.Tail(2))
	assert.Equal(t, "a\nb\nc\nd", r.Tail(10))
}
