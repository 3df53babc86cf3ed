package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/deckhand/pkg/config"
)

func TestAskRepeatsUntilValid(t *testing.T) {
	in := strings.NewReader("notaurl\nhttps://github.com/acme/app.git\n")
	var out bytes.Buffer
	p := newPrompter(in, &out)

	v, err := p.ask("Repository URL (https)", config.ValidateRepoURL)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/app.git", v)
	assert.Contains(t, out.String(), "must use https")
}

func TestAskAbortsOnEOF(t *testing.T) {
	p := newPrompter(strings.NewReader(""), io.Discard)
	_, err := p.ask("SSH user", config.ValidateSSHUser)
	require.Error(t, err)
}

func TestAskPortRetries(t *testing.T) {
	in := strings.NewReader("abc\n70000\n3000\n")
	var out bytes.Buffer
	p := newPrompter(in, &out)

	port, err := p.askPort("Application port")
	require.NoError(t, err)
	assert.Equal(t, 3000, port)
	assert.Contains(t, out.String(), "not a number")
	assert.Contains(t, out.String(), "between 1 and 65535")
}

func TestAskTokenRejectsEmpty(t *testing.T) {
	in := strings.NewReader("\ntok\n")
	var out bytes.Buffer
	p := newPrompter(in, &out)
	p.readSecret = p.readLine

	var s config.Secret
	require.NoError(t, p.askToken(&s))
	assert.Equal(t, "tok", s.Reveal())
	assert.Contains(t, out.String(), "must not be empty")
}

func TestFillAsksOnlyMissing(t *testing.T) {
	key := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(key, []byte("k"), 0o600))

	params := &config.Params{
		RepoURL:    "https://github.com/acme/app.git",
		SSHUser:    "root",
		ServerAddr: "203.0.113.7",
		SSHKeyPath: key,
		AppPort:    3000,
	}

	in := strings.NewReader("tok\n\n") // token, branch kept default
	var out bytes.Buffer
	p := newPrompter(in, &out)
	p.readSecret = p.readLine

	require.NoError(t, p.fill(params))
	assert.Equal(t, "tok", params.AccessToken.Reveal())
	assert.Empty(t, params.Branch, "empty answer leaves the default to ApplyDefaults")
	assert.NotContains(t, out.String(), "Repository URL")
	assert.NotContains(t, out.String(), "SSH user")
}

func TestFillCollectsEverything(t *testing.T) {
	key := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(key, []byte("k"), 0o600))

	lines := []string{
		"https://github.com/acme/app.git", // repo
		"tok",                             // token
		"develop",                         // branch
		"deploy",                          // ssh user
		"256.1.1.1",                       // bad address, asked again
		"203.0.113.7",                     // good address
		key,                               // key path
		"3000",                            // port
	}
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer
	p := newPrompter(in, &out)
	p.readSecret = p.readLine

	params := &config.Params{}
	require.NoError(t, p.fill(params))

	assert.Equal(t, "https://github.com/acme/app.git", params.RepoURL)
	assert.Equal(t, "develop", params.Branch)
	assert.Equal(t, "deploy", params.SSHUser)
	assert.Equal(t, "203.0.113.7", params.ServerAddr)
	assert.Equal(t, key, params.SSHKeyPath)
	assert.Equal(t, 3000, params.AppPort)
	assert.Contains(t, out.String(), "not an IPv4 address")
}
