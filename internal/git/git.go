package git

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/splax/deckhand/pkg/config"
)

// runner executes one git invocation and returns its combined output.
type runner interface {
	run(ctx context.Context, dir string, args ...string) (string, error)
}

// execRunner shells out to the git binary with prompts disabled, so an
// auth problem fails instead of hanging on credential input.
type execRunner struct{}

func (execRunner) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// Syncer materializes the configured branch of the repository into a
// local working copy, cloning fresh or updating in place.
type Syncer struct {
	r   runner
	log *slog.Logger
}

func NewSyncer(log *slog.Logger) *Syncer {
	return &Syncer{r: execRunner{}, log: log}
}

// Sync brings dir to the tip of params.Branch. A directory containing a
// .git entry is updated in place; anything else is replaced by a fresh
// clone. The access token travels only as a process argument and is
// stripped from the stored remote URL before Sync returns.
func (s *Syncer) Sync(ctx context.Context, params *config.Params, dir string) error {
	if hasRepo(dir) {
		s.log.Info("updating existing working copy", "dir", dir, "branch", params.Branch)
		return s.update(ctx, params, dir)
	}
	s.log.Info("cloning repository", "dir", dir, "branch", params.Branch)
	return s.clone(ctx, params, dir)
}

func (s *Syncer) clone(ctx context.Context, params *config.Params, dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear stale working copy: %w", err)
	}
	token := params.AccessToken.Reveal()
	authURL := authenticatedURL(params.RepoURL, token)

	out, err := s.r.run(ctx, "", "clone", "--branch", params.Branch, "--single-branch", authURL, dir)
	if err == nil {
		return s.scrubRemote(ctx, params.RepoURL, dir)
	}
	s.log.Warn("branch clone failed, falling back to default branch",
		"branch", params.Branch, "output", redact(out, token))

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear working copy before retry: %w", err)
	}
	out, err = s.r.run(ctx, "", "clone", authURL, dir)
	if err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, redact(out, token))
	}
	if out, err := s.r.run(ctx, dir, "checkout", params.Branch); err != nil {
		s.log.Warn("branch not found upstream, deploying default branch",
			"branch", params.Branch, "output", strings.TrimSpace(out))
	}
	return s.scrubRemote(ctx, params.RepoURL, dir)
}

func (s *Syncer) update(ctx context.Context, params *config.Params, dir string) error {
	// Local modifications would block the fast-forward; park them.
	if out, err := s.r.run(ctx, dir, "stash", "push", "--include-untracked"); err != nil {
		s.log.Warn("stashing local changes failed", "output", strings.TrimSpace(out))
	}

	token := params.AccessToken.Reveal()
	refspec := fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", params.Branch, params.Branch)
	if out, err := s.r.run(ctx, dir, "fetch", authenticatedURL(params.RepoURL, token), refspec); err != nil {
		return fmt.Errorf("git fetch failed: %w: %s", err, redact(out, token))
	}

	if _, err := s.r.run(ctx, dir, "checkout", params.Branch); err != nil {
		out, err := s.r.run(ctx, dir, "checkout", "-b", params.Branch, "origin/"+params.Branch)
		if err != nil {
			return fmt.Errorf("git checkout %s failed: %w: %s", params.Branch, err, strings.TrimSpace(out))
		}
	}

	if out, err := s.r.run(ctx, dir, "merge", "--ff-only", "origin/"+params.Branch); err != nil {
		return fmt.Errorf("git fast-forward failed: %w: %s", err, strings.TrimSpace(out))
	}
	return nil
}

// scrubRemote resets origin to the credential-free URL so the token
// never lands in .git/config.
func (s *Syncer) scrubRemote(ctx context.Context, cleanURL, dir string) error {
	if out, err := s.r.run(ctx, dir, "remote", "set-url", "origin", cleanURL); err != nil {
		return fmt.Errorf("reset remote url: %w: %s", err, strings.TrimSpace(out))
	}
	return nil
}

func hasRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// authenticatedURL injects the token as inline credentials, the form git
// hosts accept for token auth over https.
func authenticatedURL(repoURL, token string) string {
	if token == "" {
		return repoURL
	}
	u, err := url.Parse(repoURL)
	if err != nil {
		return repoURL
	}
	u.User = url.UserPassword("oauth2", token)
	return u.String()
}

// redact masks the token anywhere git echoed it back, e.g. clone errors
// that include the remote URL.
func redact(out, token string) string {
	out = strings.TrimSpace(out)
	if token == "" {
		return out
	}
	out = strings.ReplaceAll(out, token, "********")
	if esc := url.QueryEscape(token); esc != token {
		out = strings.ReplaceAll(out, esc, "********")
	}
	return out
}
