package config

import "time"

// Options are operational knobs that shape a run without being part of
// the deployment parameter set.
type Options struct {
	Cleanup        bool
	ConfigFile     string
	WorkDir        string
	LogDir         string
	NonInteractive bool
	Verbose        bool
	ConnectTimeout time.Duration
}

// DefaultOptions returns the options used when no flags override them.
// Working copies and the run log live in the current directory.
func DefaultOptions() Options {
	return Options{
		WorkDir:        ".",
		LogDir:         ".",
		ConnectTimeout: 10 * time.Second,
	}
}
