package pipeline

import "fmt"

// Kind classifies a failure by the stage that produced it.
type Kind int

const (
	KindInput Kind = iota
	KindConnectivity
	KindSourceSync
	KindDiscovery
	KindProvision
	KindDeploy
	KindProxy
	KindValidation
	KindCleanup
)

var kindNames = map[Kind]string{
	KindInput:        "input",
	KindConnectivity: "connectivity",
	KindSourceSync:   "source_sync",
	KindDiscovery:    "discovery",
	KindProvision:    "provision",
	KindDeploy:       "deploy",
	KindProxy:        "proxy",
	KindValidation:   "validation",
	KindCleanup:      "cleanup",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// StageError ties a failure to the stage that raised it.
type StageError struct {
	Kind Kind
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
