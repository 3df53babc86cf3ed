package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultBranch is used when no branch is supplied from any source.
const DefaultBranch = "main"

// Params is the deployment parameter set. It is collected once per
// invocation, validated, and read-only afterwards; every component
// receives the same pointer.
type Params struct {
	RepoURL     string `env:"REPO_URL" yaml:"repo_url"`
	AccessToken Secret `env:"ACCESS_TOKEN" yaml:"access_token"`
	Branch      string `env:"BRANCH" yaml:"branch"`
	SSHUser     string `env:"SSH_USER" yaml:"ssh_user"`
	ServerAddr  string `env:"SERVER_ADDR" yaml:"server_addr"`
	SSHKeyPath  string `env:"SSH_KEY_PATH" yaml:"ssh_key_path"`
	AppPort     int    `env:"APP_PORT" yaml:"app_port"`
}

// Load populates params from the optional YAML file, then from
// DECKHAND_-prefixed environment variables; a .env file in the current
// directory is honored. Later sources win, and the CLI layers flag
// values and interactive answers on top.
func Load(file string) (*Params, error) {
	p := &Params{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", file, err)
		}
	}
	_ = godotenv.Load()
	if err := env.ParseWithOptions(p, env.Options{Prefix: "DECKHAND_"}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return p, nil
}

// ApplyDefaults fills parameters that may legitimately stay empty.
func (p *Params) ApplyDefaults() {
	if p.Branch == "" {
		p.Branch = DefaultBranch
	}
}

// Validate checks the full parameter set. Field-level helpers are split
// out so interactive collection can re-check one answer at a time.
func (p *Params) Validate() error {
	if err := ValidateRepoURL(p.RepoURL); err != nil {
		return err
	}
	if p.AccessToken.Empty() {
		return fmt.Errorf("access token must not be empty")
	}
	if p.Branch == "" {
		return fmt.Errorf("branch must not be empty")
	}
	if err := ValidateSSHUser(p.SSHUser); err != nil {
		return err
	}
	if err := ValidateServerAddr(p.ServerAddr); err != nil {
		return err
	}
	if err := ValidateSSHKeyPath(p.SSHKeyPath); err != nil {
		return err
	}
	return ValidatePort(p.AppPort)
}

// ValidateRepoURL requires a well-formed https repository URL.
func ValidateRepoURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("repository URL must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("repository URL %q is not a valid URL", raw)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("repository URL must use https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("repository URL %q has no host", raw)
	}
	return nil
}

// ValidateServerAddr requires a dotted-quad IPv4 literal.
func ValidateServerAddr(raw string) error {
	if raw == "" {
		return fmt.Errorf("server address must not be empty")
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil || !addr.Is4() {
		return fmt.Errorf("server address %q is not an IPv4 address", raw)
	}
	return nil
}

// ValidateSSHUser requires a non-empty user name.
func ValidateSSHUser(user string) error {
	if user == "" {
		return fmt.Errorf("ssh user must not be empty")
	}
	return nil
}

// ValidateSSHKeyPath requires an existing regular file.
func ValidateSSHKeyPath(path string) error {
	if path == "" {
		return fmt.Errorf("ssh key path must not be empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("ssh key %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("ssh key %s is a directory", path)
	}
	return nil
}

// ValidatePort requires a port in the inclusive range 1-65535.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("application port must be between 1 and 65535, got %d", port)
	}
	return nil
}
