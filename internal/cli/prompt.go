package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/splax/deckhand/pkg/config"
)

// prompter fills missing parameters from the terminal. Every answer is
// validated immediately and asked again until it passes; running out of
// input aborts.
type prompter struct {
	in  *bufio.Reader
	out io.Writer

	// readSecret hides the echo on a real terminal; tests swap it out.
	readSecret func() (string, error)
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), out: out}
	p.readSecret = p.readSecretDefault
	return p
}

// fill asks for every parameter that is still unset. The branch is the
// only optional answer; an empty line keeps the default.
func (p *prompter) fill(params *config.Params) error {
	if params.RepoURL == "" {
		v, err := p.ask("Repository URL (https)", config.ValidateRepoURL)
		if err != nil {
			return err
		}
		params.RepoURL = v
	}
	if params.AccessToken.Empty() {
		if err := p.askToken(&params.AccessToken); err != nil {
			return err
		}
	}
	if params.Branch == "" {
		v, err := p.askOptional(fmt.Sprintf("Branch [%s]", config.DefaultBranch))
		if err != nil {
			return err
		}
		params.Branch = v
	}
	if params.SSHUser == "" {
		v, err := p.ask("SSH user", config.ValidateSSHUser)
		if err != nil {
			return err
		}
		params.SSHUser = v
	}
	if params.ServerAddr == "" {
		v, err := p.ask("Server IPv4 address", config.ValidateServerAddr)
		if err != nil {
			return err
		}
		params.ServerAddr = v
	}
	if params.SSHKeyPath == "" {
		v, err := p.ask("SSH private key path", config.ValidateSSHKeyPath)
		if err != nil {
			return err
		}
		params.SSHKeyPath = v
	}
	if params.AppPort == 0 {
		port, err := p.askPort("Application port")
		if err != nil {
			return err
		}
		params.AppPort = port
	}
	return nil
}

// ask repeats the question until the answer validates.
func (p *prompter) ask(label string, valid func(string) error) (string, error) {
	for {
		fmt.Fprintf(p.out, "%s: ", label)
		v, err := p.readLine()
		if err != nil {
			return "", err
		}
		if err := valid(v); err != nil {
			fmt.Fprintf(p.out, "  %v\n", err)
			continue
		}
		return v, nil
	}
}

func (p *prompter) askOptional(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	return p.readLine()
}

func (p *prompter) askToken(s *config.Secret) error {
	for {
		fmt.Fprint(p.out, "Access token: ")
		v, err := p.readSecret()
		if err != nil {
			return err
		}
		if v == "" {
			fmt.Fprintln(p.out, "  access token must not be empty")
			continue
		}
		return s.Set(v)
	}
}

func (p *prompter) askPort(label string) (int, error) {
	for {
		fmt.Fprintf(p.out, "%s: ", label)
		v, err := p.readLine()
		if err != nil {
			return 0, err
		}
		port, err := strconv.Atoi(v)
		if err != nil {
			fmt.Fprintf(p.out, "  %q is not a number\n", v)
			continue
		}
		if err := config.ValidatePort(port); err != nil {
			fmt.Fprintf(p.out, "  %v\n", err)
			continue
		}
		return port, nil
	}
}

func (p *prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *prompter) readSecretDefault() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return p.readLine()
}
