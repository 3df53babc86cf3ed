package pipeline

import "fmt"

// State tracks how far a run has progressed. The deployment chain is
// strictly linear, cleanup branches off after the connectivity stage,
// and every state may fall to Failed.
type State int

const (
	Init State = iota
	ParamsReady
	Connected
	SourceSynced
	ConfigDiscovered
	Provisioned
	Deployed
	ProxyConfigured
	Validated
	Cleaned
	Failed
)

var stateNames = map[State]string{
	Init:             "init",
	ParamsReady:      "params_ready",
	Connected:        "connected",
	SourceSynced:     "source_synced",
	ConfigDiscovered: "config_discovered",
	Provisioned:      "provisioned",
	Deployed:         "deployed",
	ProxyConfigured:  "proxy_configured",
	Validated:        "validated",
	Cleaned:          "cleaned",
	Failed:           "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// canAdvanceTo reports whether next is a legal successor of s.
func (s State) canAdvanceTo(next State) bool {
	switch {
	case s == Failed || s == Cleaned || s == Validated:
		return false // terminal
	case next == Failed:
		return true
	case next == Cleaned:
		return s == Connected
	default:
		return next == s+1 && next <= Validated
	}
}
