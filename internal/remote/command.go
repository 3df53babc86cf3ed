package remote

import (
	"fmt"
	"io"
	"strings"
)

// Command is one remote invocation: a rendered shell line plus optional
// stdin. Build it with Exec or a Script so user-supplied values are
// always quoted; lines are never assembled from raw concatenation.
type Command struct {
	line  string
	stdin io.Reader
}

// Exec builds a single command from a program name and arguments. Every
// argument is quoted.
func Exec(name string, args ...string) Command {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quote(name))
	for _, a := range args {
		parts = append(parts, quote(a))
	}
	return Command{line: strings.Join(parts, " ")}
}

// WithStdin attaches a stream the remote process reads from.
func (c Command) WithStdin(r io.Reader) Command {
	c.stdin = r
	return c
}

// Sudo prefixes the command with a non-interactive sudo when elevate is
// set. Callers pass false when the session user is already root.
func (c Command) Sudo(elevate bool) Command {
	if elevate {
		c.line = "sudo -n " + c.line
	}
	return c
}

// Line returns the rendered shell line.
func (c Command) Line() string { return c.line }

// Stdin returns the stream the remote process reads, nil when none.
func (c Command) Stdin() io.Reader { return c.stdin }

func (c Command) String() string { return c.line }

// Script accumulates commands that run as one strict bash unit on the
// remote host; the first failing line aborts the rest.
type Script struct {
	lines []string
	sudo  bool
}

func NewScript() *Script { return &Script{} }

// Exec appends one command with every argument quoted.
func (s *Script) Exec(name string, args ...string) *Script {
	s.lines = append(s.lines, Exec(name, args...).line)
	return s
}

// Raw appends a fixed shell fragment. Only compile-time literals belong
// here; anything user-supplied goes through Exec or Rawf.
func (s *Script) Raw(fragment string) *Script {
	s.lines = append(s.lines, fragment)
	return s
}

// Rawf appends a shell fragment with each argument quoted into its %s slot.
func (s *Script) Rawf(format string, args ...string) *Script {
	quoted := make([]any, len(args))
	for i, a := range args {
		quoted[i] = quote(a)
	}
	s.lines = append(s.lines, fmt.Sprintf(format, quoted...))
	return s
}

// Sudo runs the whole script through a non-interactive sudo.
func (s *Script) Sudo(elevate bool) *Script {
	s.sudo = elevate
	return s
}

// Command renders the script to a bash invocation that reads its body
// from stdin with abort-on-error semantics.
func (s *Script) Command() Command {
	body := "set -euo pipefail\n" + strings.Join(s.lines, "\n") + "\n"
	line := "/bin/bash -s"
	if s.sudo {
		line = "sudo -n " + line
	}
	return Command{line: line, stdin: strings.NewReader(body)}
}

const safeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789@%+=:,./_-"

// quote wraps s in single quotes unless every character is shell-safe,
// escaping embedded single quotes.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !strings.ContainsRune(safeChars, r) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
