package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/splax/deckhand/internal/cleanup"
	"github.com/splax/deckhand/internal/deploy"
	"github.com/splax/deckhand/internal/git"
	"github.com/splax/deckhand/internal/pipeline"
	"github.com/splax/deckhand/internal/provision"
	"github.com/splax/deckhand/internal/proxy"
	"github.com/splax/deckhand/internal/remote"
	"github.com/splax/deckhand/internal/validate"
	"github.com/splax/deckhand/internal/workspace"
	"github.com/splax/deckhand/pkg/config"
	"github.com/splax/deckhand/pkg/logger"
)

// run collects the parameters, assembles the stages and executes the
// requested mode.
func run(cmd *cobra.Command, opts config.Options, flagParams *config.Params) error {
	consoleLevel := slog.LevelInfo
	if opts.Verbose {
		consoleLevel = slog.LevelDebug
	}
	log, err := logger.New(logger.Options{
		Dir:          opts.LogDir,
		ConsoleLevel: consoleLevel,
		Console:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer log.Close()

	mode := "deploy"
	if opts.Cleanup {
		mode = "cleanup"
	}
	log.Info("starting run", "mode", mode, "version", cmd.Version, "log", log.Path())

	params, err := collectParams(cmd, opts, flagParams)
	if err != nil {
		log.Error("parameter collection failed", "error", err)
		return err
	}

	ws, err := workspace.New(opts.WorkDir)
	if err != nil {
		log.Error("workspace unavailable", "error", err)
		return err
	}

	client := remote.NewClient(params.SSHUser, params.ServerAddr, params.SSHKeyPath, opts.ConnectTimeout, log.Logger)
	// anything but root has to elevate for package and service work
	sudo := params.SSHUser != "root"
	p := pipeline.New(params, pipeline.Stages{
		Exec:      client,
		Workspace: ws,
		Source:    git.NewSyncer(log.Logger),
		Provision: provision.New(client, log.Logger, sudo),
		Deploy:    deploy.New(client, log.Logger, sudo),
		Proxy:     proxy.New(client, log.Logger, sudo),
		Validate:  validate.New(client, log.Logger, sudo),
		Cleanup:   cleanup.New(client, log.Logger, sudo),
	}, log.Logger)

	ctx := cmd.Context()
	if opts.Cleanup {
		err = p.Cleanup(ctx)
	} else {
		err = p.Run(ctx)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("run interrupted")
		}
		log.Error("run failed", "state", p.State().String(), "log", log.Path())
		return err
	}
	return nil
}

// collectParams layers the sources: config file, then environment, then
// flags, then interactive answers for whatever is still missing.
func collectParams(cmd *cobra.Command, opts config.Options, flagParams *config.Params) (*config.Params, error) {
	params, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	mergeFlagParams(cmd, params, flagParams)

	if missing := missingFields(params); len(missing) > 0 {
		if opts.NonInteractive {
			return nil, fmt.Errorf("missing parameters in non-interactive mode: %s", strings.Join(missing, ", "))
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Missing parameters; answers are validated as you type.")
		pr := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err := pr.fill(params); err != nil {
			return nil, fmt.Errorf("collect parameters: %w", err)
		}
	}

	params.ApplyDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// mergeFlagParams overrides file and environment values with every flag
// the user actually set.
func mergeFlagParams(cmd *cobra.Command, dst, src *config.Params) {
	flags := cmd.Flags()
	if flags.Changed("repo-url") {
		dst.RepoURL = src.RepoURL
	}
	if flags.Changed("access-token") {
		dst.AccessToken = src.AccessToken
	}
	if flags.Changed("branch") {
		dst.Branch = src.Branch
	}
	if flags.Changed("ssh-user") {
		dst.SSHUser = src.SSHUser
	}
	if flags.Changed("server-ip") {
		dst.ServerAddr = src.ServerAddr
	}
	if flags.Changed("ssh-key") {
		dst.SSHKeyPath = src.SSHKeyPath
	}
	if flags.Changed("app-port") {
		dst.AppPort = src.AppPort
	}
}

// missingFields lists what still has to be asked for. The branch is not
// on the list; it has a default.
func missingFields(p *config.Params) []string {
	var missing []string
	if p.RepoURL == "" {
		missing = append(missing, "repo-url")
	}
	if p.AccessToken.Empty() {
		missing = append(missing, "access-token")
	}
	if p.SSHUser == "" {
		missing = append(missing, "ssh-user")
	}
	if p.ServerAddr == "" {
		missing = append(missing, "server-ip")
	}
	if p.SSHKeyPath == "" {
		missing = append(missing, "ssh-key")
	}
	if p.AppPort == 0 {
		missing = append(missing, "app-port")
	}
	return missing
}
