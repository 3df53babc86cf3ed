package remote

import "strings"

// Result is the outcome of one remote command. A non-zero ExitStatus is
// data for the caller to judge; the error return of Run is reserved for
// transport and session failures.
type Result struct {
	ExitStatus int
	Output     string
}

// OK reports a zero exit status.
func (r Result) OK() bool { return r.ExitStatus == 0 }

// Tail returns the last n lines of the combined output, for compact
// error and log context.
func (r Result) Tail(n int) string {
	lines := strings.Split(strings.TrimSpace(r.Output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
