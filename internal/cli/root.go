// Package cli wires the command line to the deployment pipeline.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splax/deckhand/pkg/config"
)

// NewRootCommand builds the deckhand command.
func NewRootCommand(version string) *cobra.Command {
	opts := config.DefaultOptions()
	flagParams := &config.Params{}

	cmd := &cobra.Command{
		Use:   "deckhand",
		Short: "Deploy a containerized application from a git repository to a remote host",
		Long: `Deckhand provisions a remote host over SSH and deploys an application
from its git repository: it syncs the source, installs docker and
nginx when missing, builds and starts the app from its compose file or
Dockerfile, puts nginx in front of it and verifies the result end to
end. Runs are idempotent; deploying the same repository again updates
the existing deployment. With --cleanup it removes everything a
previous run put on the host.

Parameters come from flags, DECKHAND_-prefixed environment variables
or a YAML config file; anything still missing is asked interactively.`,
		Version:       version,
		Args:          rejectArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, flagParams)
		},
	}

	cmd.SetVersionTemplate("deckhand version {{.Version}}\n")
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		fmt.Fprintln(c.ErrOrStderr(), c.UsageString())
		return err
	})

	bindFlags(cmd, &opts, flagParams)
	return cmd
}

// rejectArgs refuses positional arguments; everything is flag-driven.
// The usage block goes to stderr the same way flag errors render it.
func rejectArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), cmd.UsageString())
		return fmt.Errorf("unexpected argument %q (see --help)", args[0])
	}
	return nil
}

func bindFlags(cmd *cobra.Command, opts *config.Options, params *config.Params) {
	flags := cmd.Flags()

	flags.StringVar(&params.RepoURL, "repo-url", "", "https URL of the repository to deploy")
	flags.Var(&params.AccessToken, "access-token", "personal access token used to fetch the repository")
	flags.StringVar(&params.Branch, "branch", "", `branch to deploy (default "main")`)
	flags.StringVar(&params.SSHUser, "ssh-user", "", "user for the SSH connection")
	flags.StringVar(&params.ServerAddr, "server-ip", "", "IPv4 address of the target server")
	flags.StringVar(&params.SSHKeyPath, "ssh-key", "", "path to the SSH private key")
	flags.IntVar(&params.AppPort, "app-port", 0, "port the application listens on")

	flags.BoolVar(&opts.Cleanup, "cleanup", false, "remove a previous deployment instead of deploying")
	flags.StringVar(&opts.ConfigFile, "config", "", "YAML file with deployment parameters")
	flags.StringVar(&opts.WorkDir, "workdir", opts.WorkDir, "directory local working copies are kept in")
	flags.StringVar(&opts.LogDir, "log-dir", opts.LogDir, "directory the run log is written to")
	flags.BoolVar(&opts.NonInteractive, "non-interactive", false, "fail instead of prompting for missing parameters")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "debug detail on the console")
}
